package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrStopTimeout is returned by Replace when the session it replaces did not
// finish in time. No new session is started in that case.
var ErrStopTimeout = errors.New("previous session did not stop in time")

// Key identifies a session slot. At most one live session exists per key.
type Key string

// PodWatchKey returns the key of a pod watch on namespace ("all" for every
// namespace) of a cluster.
func PodWatchKey(clusterID, namespace string) Key {
	return Key("pod_watch:" + clusterID + ":" + namespace)
}

// LogTailKey returns the key of a log tail stream.
func LogTailKey(streamID string) Key {
	return Key("logs:" + streamID)
}

// RunFunc is the body of a session. It must return promptly once ctx is
// cancelled.
type RunFunc func(ctx context.Context)

// Handle controls one running session.
type Handle struct {
	key    Key
	cancel context.CancelFunc
	done   chan struct{}
}

// Key returns the slot the handle was started for.
func (h *Handle) Key() Key {
	return h.key
}

// Cancel requests termination. It does not wait.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed once the session body has returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the session body has returned or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Table maps keys to running sessions.
type Table struct {
	mu       sync.Mutex
	sessions map[Key]*Handle

	// replaceMu serializes Replace so that two concurrent replacements of
	// one key cannot both end up running.
	replaceMu sync.Mutex
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{sessions: make(map[Key]*Handle)}
}

// Replace stops the session registered under key, waits for it to finish
// (bounded by ctx) and starts run under a fresh cancellable context derived
// from parent. If the old session is still running when ctx is done, it is
// put back in its slot, run is not started and the error wraps
// ErrStopTimeout.
//
// The new handle is registered before run starts, so a concurrent Remove
// always finds it. The session removes itself from the table when run
// returns. The table lock is never held while waiting or while starting run.
func (t *Table) Replace(ctx context.Context, parent context.Context, key Key, run RunFunc) (*Handle, error) {
	t.replaceMu.Lock()
	defer t.replaceMu.Unlock()

	t.mu.Lock()
	old := t.sessions[key]
	delete(t.sessions, key)
	t.mu.Unlock()

	if old != nil {
		old.Cancel()
		if err := old.Wait(ctx); err != nil {
			t.mu.Lock()
			if _, taken := t.sessions[key]; !taken && !old.finished() {
				t.sessions[key] = old
			}
			t.mu.Unlock()
			return nil, fmt.Errorf("%w: %s: %w", ErrStopTimeout, key, err)
		}
	}

	runCtx, cancel := context.WithCancel(parent)
	h := &Handle{
		key:    key,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	t.mu.Lock()
	t.sessions[key] = h
	t.mu.Unlock()

	go func() {
		defer t.release(key, h)
		defer close(h.done)
		defer cancel()
		run(runCtx)
	}()

	return h, nil
}

// Remove cancels and unregisters the session under key. It reports whether
// a session was registered. Removing an absent key is a no-op.
func (t *Table) Remove(key Key) (*Handle, bool) {
	t.mu.Lock()
	h, ok := t.sessions[key]
	delete(t.sessions, key)
	t.mu.Unlock()

	if ok {
		h.Cancel()
	}
	return h, ok
}

// release is called by a session when it finishes. It only clears the slot
// if the slot still holds h.
func (t *Table) release(key Key, h *Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sessions[key] == h {
		delete(t.sessions, key)
	}
}

// Get returns the session registered under key.
func (t *Table) Get(key Key) (*Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.sessions[key]
	return h, ok
}

// Len returns the number of registered sessions.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Keys returns the registered keys in sorted order.
func (t *Table) Keys() []Key {
	t.mu.Lock()
	keys := make([]Key, 0, len(t.sessions))
	for k := range t.sessions {
		keys = append(keys, k)
	}
	t.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// CancelAll cancels every registered session and waits for them to finish,
// bounded by ctx.
func (t *Table) CancelAll(ctx context.Context) error {
	t.mu.Lock()
	handles := make([]*Handle, 0, len(t.sessions))
	for k, h := range t.sessions {
		handles = append(handles, h)
		delete(t.sessions, k)
	}
	t.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
	for _, h := range handles {
		if err := h.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
