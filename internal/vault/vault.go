package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"

	"github.com/giantswarm/kubedeck/internal/logging"
)

// CredentialExt is the file extension of credential files in the vault.
const CredentialExt = ".yaml"

// Vault owns the credential directory. Every credential file it writes holds
// a single context together with the cluster and user that context references.
type Vault struct {
	root     string
	logger   *slog.Logger
	maxDepth int
}

// Option configures a Vault.
type Option func(*Vault)

// WithLogger sets the logger used by the vault.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Vault) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithMaxDiscoveryDepth overrides MaxDiscoveryDepth for folder discovery.
func WithMaxDiscoveryDepth(depth int) Option {
	return func(v *Vault) {
		if depth > 0 {
			v.maxDepth = depth
		}
	}
}

// New creates the vault root if needed, restricts it to its owner and
// returns a Vault anchored at its canonical path.
func New(root string, opts ...Option) (*Vault, error) {
	if root == "" {
		return nil, errors.New("vault root must not be empty")
	}

	v := &Vault{
		logger:   slog.Default(),
		maxDepth: MaxDiscoveryDepth,
	}
	for _, opt := range opts {
		opt(v)
	}

	if err := os.MkdirAll(root, DirMode); err != nil {
		return nil, fmt.Errorf("failed to create vault root %s: %w", root, err)
	}
	if err := SetOwnerOnlyPermissions(root, true); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve vault root %s: %w", root, err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve vault root %s: %w", root, err)
	}
	v.root = canonical

	return v, nil
}

// Root returns the canonical vault root.
func (v *Vault) Root() string {
	return v.root
}

// CredentialPath returns the destination path for a cluster's credential file.
// The path is not validated.
func (v *Vault) CredentialPath(clusterID string) string {
	return filepath.Join(v.root, clusterID+CredentialExt)
}

// ValidatePath canonicalizes candidate and verifies that it lies strictly
// inside the vault root. Candidates that do not exist yet are accepted when
// their parent directory canonicalizes inside the root.
func (v *Vault) ValidatePath(candidate string) (string, error) {
	if candidate == "" {
		return "", &PathTraversalError{Path: candidate, Root: v.root, Reason: "empty path"}
	}

	abs, err := filepath.Abs(candidate)
	if err != nil {
		return "", &PathTraversalError{Path: candidate, Root: v.root, Reason: "cannot make path absolute", Err: err}
	}

	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return "", &PathTraversalError{Path: candidate, Root: v.root, Reason: "cannot resolve path", Err: err}
		}
		parent, perr := filepath.EvalSymlinks(filepath.Dir(abs))
		if perr != nil {
			return "", &PathTraversalError{Path: candidate, Root: v.root, Reason: "cannot resolve parent directory", Err: perr}
		}
		canonical = filepath.Join(parent, filepath.Base(abs))
	}

	if !strings.HasPrefix(canonical, v.root+string(filepath.Separator)) {
		return "", &PathTraversalError{Path: candidate, Root: v.root, Reason: "outside of vault root"}
	}
	return canonical, nil
}

// ImportSource canonicalizes an externally supplied credential path and
// checks that it names a readable regular file.
func (v *Vault) ImportSource(path string) (string, error) {
	if path == "" {
		return "", &CredentialError{Path: path, Reason: "path is empty", NotFound: true, Err: fs.ErrNotExist}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &CredentialError{Path: path, Reason: "cannot make path absolute", Err: err}
	}

	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &CredentialError{Path: path, Reason: "file does not exist", NotFound: true, Err: err}
		}
		return "", &CredentialError{Path: path, Reason: "cannot resolve path", Err: err}
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return "", &CredentialError{Path: path, Reason: "cannot stat file", Err: err}
	}
	if info.IsDir() {
		return "", &CredentialError{Path: path, Reason: "path is a directory"}
	}
	if !info.Mode().IsRegular() {
		return "", &CredentialError{Path: path, Reason: "not a regular file"}
	}

	f, err := os.Open(canonical)
	if err != nil {
		return "", &CredentialError{Path: path, Reason: "file is not readable", Err: err}
	}
	_ = f.Close()

	return canonical, nil
}

// ExtractContext copies a single context out of source into the vault as
// <root>/<clusterID>.yaml and returns the destination path. The written
// document contains exactly that context, its cluster and its user, with
// current-context set to contextName. The file is written atomically.
func (v *Vault) ExtractContext(source, contextName, clusterID string) (string, error) {
	if clusterID == "" || clusterID == "." || clusterID == ".." || strings.ContainsAny(clusterID, `/\`) {
		return "", &PathTraversalError{Path: clusterID, Root: v.root, Reason: "invalid cluster id"}
	}

	src, err := loadKubeconfig(source)
	if err != nil {
		return "", err
	}

	kctx, ok := src.Contexts[contextName]
	if !ok || kctx == nil {
		return "", &MissingEntryError{Kind: "context", Name: contextName, Sentinel: ErrContextNotFound}
	}
	cluster, ok := src.Clusters[kctx.Cluster]
	if !ok || cluster == nil {
		return "", &MissingEntryError{Kind: "cluster", Name: kctx.Cluster, Sentinel: ErrClusterNotFound}
	}
	user, ok := src.AuthInfos[kctx.AuthInfo]
	if !ok || user == nil {
		return "", &MissingEntryError{Kind: "user", Name: kctx.AuthInfo, Sentinel: ErrUserNotFound}
	}

	out := clientcmdapi.NewConfig()
	out.Clusters[kctx.Cluster] = cluster
	out.AuthInfos[kctx.AuthInfo] = user
	out.Contexts[contextName] = kctx
	out.CurrentContext = contextName

	data, err := clientcmd.Write(*out)
	if err != nil {
		return "", fmt.Errorf("failed to serialize context %q: %w", contextName, err)
	}

	dest, err := v.ValidatePath(v.CredentialPath(clusterID))
	if err != nil {
		return "", err
	}
	if err := v.writeAtomic(dest, data); err != nil {
		return "", err
	}

	v.logger.Debug("Extracted context into vault",
		logging.Context(contextName),
		logging.ClusterID(clusterID),
		logging.Path(dest))

	return dest, nil
}

// Remove deletes a credential file from the vault. A missing file is not an
// error.
func (v *Vault) Remove(path string) error {
	canonical, err := v.ValidatePath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(canonical); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove credential file %s: %w", canonical, err)
	}
	return nil
}

func (v *Vault) writeAtomic(dest string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary credential file: %w", err)
	}
	tmpName := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credential file: %w", err)
	}

	// The mode is fixed before the rename so that dest never exists with
	// wider permissions. A failure leaves dest untouched.
	if err := SetOwnerOnlyPermissions(tmpName, false); err != nil {
		return err
	}

	if err := os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("failed to move credential file into place: %w", err)
	}
	committed = true
	return nil
}

// loadKubeconfig parses a kubeconfig file and resolves its relative file
// references against the file's own directory so the document stays valid
// after being copied elsewhere.
func loadKubeconfig(path string) (*clientcmdapi.Config, error) {
	cfg, err := clientcmd.LoadFromFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &CredentialError{Path: path, Reason: "file does not exist", NotFound: true, Err: err}
		}
		return nil, &CredentialError{Path: path, Reason: "not a valid kubeconfig", Err: err}
	}
	if err := clientcmd.ResolveLocalPaths(cfg); err != nil {
		return nil, &CredentialError{Path: path, Reason: "cannot resolve file references", Err: err}
	}
	return cfg, nil
}
