package supervisor

import (
	"bufio"
	"context"
	"errors"

	"github.com/giantswarm/kubedeck/internal/events"
	"github.com/giantswarm/kubedeck/internal/k8s"
)

// maxLogLineSize bounds a single log line. Longer lines fail the session
// rather than growing the buffer without limit.
const maxLogLineSize = 1024 * 1024

// tailLogs follows one container's logs and emits each line in order. The
// end of the stream ends the session normally.
func (s *Supervisor) tailLogs(ctx context.Context, clients *k8s.Clients, req LogTailRequest, out *emitter) error {
	stream, err := k8s.OpenLogStream(ctx, clients.Kube, req.Namespace, req.Pod, req.Container, s.tailLines)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &StreamError{
			Session: out.info.Key,
			Kind:    out.info.Kind,
			Reason:  "failed to open log stream",
			Err:     err,
		}
	}
	defer stream.Close()

	// A blocked read only returns once the body is closed.
	stop := context.AfterFunc(ctx, func() {
		_ = stream.Close()
	})
	defer stop()

	name := events.ContainerLogsName(req.StreamID)

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLineSize)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := out.emit(ctx, name, "", scanner.Text()); err != nil {
			if errors.Is(err, events.ErrClosed) {
				return nil
			}
			return err
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return &StreamError{
			Session: out.info.Key,
			Kind:    out.info.Kind,
			Reason:  "log stream interrupted",
			Err:     err,
		}
	}
	return nil
}
