package supervisor

import (
	"errors"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

var (
	// ErrInvalidRequest indicates a start request with missing arguments.
	ErrInvalidRequest = errors.New("invalid session request")

	// ErrStream indicates that a running session failed mid-stream.
	ErrStream = errors.New("session stream failed")

	// ErrShutdown indicates that the supervisor no longer accepts sessions.
	ErrShutdown = errors.New("session supervisor is shut down")
)

// StreamError reports a mid-session failure. It terminates that session only.
type StreamError struct {
	Session string
	Kind    string
	Reason  string
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s session %q: %s: %v", e.Kind, e.Session, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s session %q: %s", e.Kind, e.Session, e.Reason)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// Is matches ErrStream.
func (e *StreamError) Is(target error) bool {
	return target == ErrStream
}

// UserFacingError returns the message carried by session_error events.
func (e *StreamError) UserFacingError() string {
	switch {
	case apierrors.IsUnauthorized(e.Err):
		return e.Reason + ": credentials were rejected by the cluster"
	case apierrors.IsForbidden(e.Err):
		return e.Reason + ": access denied"
	case apierrors.IsNotFound(e.Err):
		return e.Reason + ": not found"
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	default:
		return e.Reason
	}
}

// isFatalWatchError reports whether a watch error will not go away by
// relisting.
func isFatalWatchError(err error) bool {
	return apierrors.IsUnauthorized(err) || apierrors.IsForbidden(err) || apierrors.IsNotFound(err)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
