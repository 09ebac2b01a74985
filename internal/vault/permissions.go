package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

const (
	// DirMode is applied to the vault root.
	DirMode fs.FileMode = 0o700

	// FileMode is applied to every credential file in the vault.
	FileMode fs.FileMode = 0o600
)

// chmod is replaced in tests.
var chmod = os.Chmod

// SetOwnerOnlyPermissions restricts path to its owner: 0700 for directories
// and 0600 for files. Permission-denied is swallowed; every other failure is
// returned wrapped in ErrPermissionHardening.
func SetOwnerOnlyPermissions(path string, isDir bool) error {
	mode := FileMode
	if isDir {
		mode = DirMode
	}

	if err := chmod(path, mode); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil
		}
		return fmt.Errorf("%w on %s: %w", ErrPermissionHardening, path, err)
	}
	return nil
}
