package events

import (
	"context"
	"errors"
	"sync"
)

// Event names emitted by sessions.
const (
	NamePodEvent      = "pod_event"
	NameSessionEnded  = "session_ended"
	NameSessionError  = "session_error"
	containerLogsName = "container_logs_"
)

// ErrClosed is returned by emitters that have been shut down.
var ErrClosed = errors.New("event channel is closed")

// Event is one message on the GUI event channel. Session is the key of the
// session that produced it; Type tags the change for resource watches.
type Event struct {
	Name      string `json:"name"`
	Session   string `json:"session"`
	ClusterID string `json:"clusterId,omitempty"`
	Type      string `json:"type,omitempty"`
	Data      any    `json:"data"`
}

// ContainerLogsName returns the event name used for the lines of one log
// tail stream.
func ContainerLogsName(streamID string) string {
	return containerLogsName + streamID
}

// Emitter delivers events to the GUI.
type Emitter interface {
	Emit(ctx context.Context, e Event) error
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ctx context.Context, e Event) error

// Emit calls f.
func (f EmitterFunc) Emit(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Multi fans an event out to several emitters. Every emitter is called even
// when an earlier one fails.
type Multi []Emitter

// Emit delivers e to all emitters and joins their errors. It returns
// ErrClosed only when every emitter is closed.
func (m Multi) Emit(ctx context.Context, e Event) error {
	var errs []error
	closed := 0
	for _, emitter := range m {
		if emitter == nil {
			continue
		}
		if err := emitter.Emit(ctx, e); err != nil {
			if errors.Is(err, ErrClosed) {
				closed++
				continue
			}
			errs = append(errs, err)
		}
	}
	if len(m) > 0 && closed == len(m) {
		return ErrClosed
	}
	return errors.Join(errs...)
}

// Recorder keeps every emitted event in memory. The CLI uses it to print
// events of a foreground session and tests use it to assert on them.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

// Emit records e.
func (r *Recorder) Emit(_ context.Context, e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Named returns the recorded events with the given name.
func (r *Recorder) Named(name string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Updated is signalled after an event has been recorded. It is a hint only:
// several emits may coalesce into one signal.
func (r *Recorder) Updated() <-chan struct{} {
	return r.notify
}
