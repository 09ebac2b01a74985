package vault

import (
	"errors"
	"fmt"
)

// Sentinel errors for vault failures.
// These errors can be checked using errors.Is() for programmatic error handling.
var (
	// ErrPathTraversal indicates that a path resolved outside of the vault root.
	ErrPathTraversal = errors.New("path escapes vault root")

	// ErrNotFound indicates that a source credential file does not exist.
	ErrNotFound = errors.New("credential file not found")

	// ErrCredentialRead indicates that a credential file could not be read
	// or parsed as a kubeconfig document.
	ErrCredentialRead = errors.New("credential file unreadable")

	// ErrContextNotFound indicates that the named context is not present in
	// the source document.
	ErrContextNotFound = errors.New("context not found")

	// ErrClusterNotFound indicates that the cluster referenced by a context
	// is not present in the source document.
	ErrClusterNotFound = errors.New("cluster not found")

	// ErrUserNotFound indicates that the user referenced by a context is not
	// present in the source document.
	ErrUserNotFound = errors.New("user not found")

	// ErrPermissionHardening indicates that restricting permissions on a
	// vault path failed for a reason other than lack of permission.
	ErrPermissionHardening = errors.New("failed to restrict permissions")
)

// PathTraversalError describes a candidate path rejected by ValidatePath.
type PathTraversalError struct {
	Path   string
	Root   string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *PathTraversalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("path %q rejected (vault root %q): %s: %v", e.Path, e.Root, e.Reason, e.Err)
	}
	return fmt.Sprintf("path %q rejected (vault root %q): %s", e.Path, e.Root, e.Reason)
}

// Unwrap returns the underlying cause, if any.
func (e *PathTraversalError) Unwrap() error {
	return e.Err
}

// Is matches ErrPathTraversal.
func (e *PathTraversalError) Is(target error) bool {
	return target == ErrPathTraversal
}

// UserFacingError returns a message that does not reveal the vault layout.
func (e *PathTraversalError) UserFacingError() string {
	return "path is outside of the credential vault"
}

// CredentialError describes a failure to admit or parse a credential bundle.
//
// Is() matches ErrNotFound when NotFound is set and ErrCredentialRead otherwise.
// The underlying cause stays reachable through Unwrap().
type CredentialError struct {
	Path     string
	Reason   string
	Err      error
	NotFound bool
}

// Error implements the error interface.
func (e *CredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credential file %q: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("credential file %q: %s", e.Path, e.Reason)
}

// Unwrap returns the underlying error.
func (e *CredentialError) Unwrap() error {
	return e.Err
}

// Is implements custom error matching for errors.Is().
func (e *CredentialError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.NotFound
	case ErrCredentialRead:
		return !e.NotFound
	}
	return false
}

// UserFacingError returns a message suitable for the GUI.
func (e *CredentialError) UserFacingError() string {
	if e.NotFound {
		return fmt.Sprintf("kubeconfig file %s does not exist", e.Path)
	}
	return fmt.Sprintf("kubeconfig file %s could not be read: %s", e.Path, e.Reason)
}

// MissingEntryError reports a context, cluster or user that a kubeconfig
// document does not contain.
type MissingEntryError struct {
	Kind string
	Name string
	// Sentinel is one of ErrContextNotFound, ErrClusterNotFound or ErrUserNotFound.
	Sentinel error
}

// Error implements the error interface.
func (e *MissingEntryError) Error() string {
	return fmt.Sprintf("%s %q not found in kubeconfig", e.Kind, e.Name)
}

// Unwrap returns the matching sentinel error.
func (e *MissingEntryError) Unwrap() error {
	return e.Sentinel
}

// UserFacingError returns a message suitable for the GUI.
func (e *MissingEntryError) UserFacingError() string {
	return e.Error()
}
