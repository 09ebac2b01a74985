package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/giantswarm/kubedeck/internal/events"
	"github.com/giantswarm/kubedeck/internal/instrumentation"
	"github.com/giantswarm/kubedeck/internal/k8s"
	"github.com/giantswarm/kubedeck/internal/logging"
	"github.com/giantswarm/kubedeck/internal/session"
)

const (
	// DefaultResyncPeriod is the informer resync period of pod watches.
	DefaultResyncPeriod = 5 * time.Minute

	// DefaultStopTimeout bounds how long a start request waits for the
	// session it replaces to finish.
	DefaultStopTimeout = 5 * time.Second
)

// Resolver provides clients for registered clusters.
type Resolver interface {
	Resolve(ctx context.Context, clusterID string) (*k8s.Clients, error)
}

// Toucher records that a cluster was used.
type Toucher interface {
	Touch(ctx context.Context, id string) error
}

// Metrics receives session lifecycle events.
type Metrics interface {
	SessionStarted(ctx context.Context, kind string)
	SessionFinished(ctx context.Context, kind, outcome string)
	RecordSessionEvent(ctx context.Context, kind string)
}

type noopMetrics struct{}

func (noopMetrics) SessionStarted(context.Context, string)          {}
func (noopMetrics) SessionFinished(context.Context, string, string) {}
func (noopMetrics) RecordSessionEvent(context.Context, string)      {}

// SessionInfo describes a running session.
type SessionInfo struct {
	Key       string    `json:"key"`
	Kind      string    `json:"kind"`
	ClusterID string    `json:"clusterId"`
	Namespace string    `json:"namespace"`
	Pod       string    `json:"pod,omitempty"`
	Container string    `json:"container,omitempty"`
	StreamID  string    `json:"streamId,omitempty"`
	StartedAt time.Time `json:"startedAt"`
}

// Supervisor starts, replaces and stops pod watches and log tails. Each
// session runs in its own goroutine and is registered in a session.Table
// under its key, so at most one session per key is live.
type Supervisor struct {
	table    *session.Table
	resolver Resolver
	emitter  events.Emitter
	toucher  Toucher
	metrics  Metrics
	logger   *slog.Logger

	resyncPeriod time.Duration
	tailLines    int64
	stopTimeout  time.Duration
	now          func() time.Time

	// base is the parent of every session context. Shutdown cancels it.
	base       context.Context
	cancelBase context.CancelFunc

	mu    sync.Mutex
	infos map[*session.Handle]SessionInfo
	down  bool
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the session metrics recorder.
func WithMetrics(metrics Metrics) Option {
	return func(s *Supervisor) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithToucher sets where successful starts are recorded, normally the
// cluster registry.
func WithToucher(toucher Toucher) Option {
	return func(s *Supervisor) {
		s.toucher = toucher
	}
}

// WithResyncPeriod sets the informer resync period of pod watches.
func WithResyncPeriod(d time.Duration) Option {
	return func(s *Supervisor) {
		if d >= 0 {
			s.resyncPeriod = d
		}
	}
}

// WithTailLines sets how many past lines a log tail starts with.
func WithTailLines(n int64) Option {
	return func(s *Supervisor) {
		if n > 0 {
			s.tailLines = n
		}
	}
}

// WithStopTimeout bounds how long a replacement waits for the old session.
func WithStopTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.stopTimeout = d
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(s *Supervisor) {
		s.now = now
	}
}

// New creates a Supervisor that resolves clients with resolver and delivers
// session output to emitter.
func New(resolver Resolver, emitter events.Emitter, opts ...Option) *Supervisor {
	base, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		table:        session.NewTable(),
		resolver:     resolver,
		emitter:      emitter,
		metrics:      noopMetrics{},
		logger:       slog.Default(),
		resyncPeriod: DefaultResyncPeriod,
		tailLines:    k8s.DefaultLogTailLines,
		stopTimeout:  DefaultStopTimeout,
		now:          time.Now,
		base:         base,
		cancelBase:   cancel,
		infos:        make(map[*session.Handle]SessionInfo),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartPodWatch starts streaming pod changes of namespace ("all" for every
// namespace) as "pod_event" events, replacing any watch on the same cluster
// and namespace. Client resolution happens before anything is registered;
// its error is returned and no session is started.
func (s *Supervisor) StartPodWatch(ctx context.Context, clusterID, namespace string) (err error) {
	ctx, span := instrumentation.StartSpan(ctx, "supervisor.start_pod_watch",
		instrumentation.NewSpanAttributeBuilder().WithClusterID(clusterID).WithNamespace(namespace).Build()...)
	defer func() { instrumentation.EndSpan(span, err) }()

	if clusterID == "" {
		return invalid("clusterId is required")
	}
	if namespace == "" {
		return invalid("namespace is required")
	}

	clients, err := s.resolve(ctx, clusterID)
	if err != nil {
		return err
	}

	key := session.PodWatchKey(clusterID, namespace)
	info := SessionInfo{
		Key:       string(key),
		Kind:      instrumentation.SessionKindPodWatch,
		ClusterID: clusterID,
		Namespace: namespace,
	}
	return s.start(ctx, info, func(ctx context.Context, out *emitter) error {
		return s.watchPods(ctx, clients, namespace, out)
	})
}

// StopPodWatch stops the watch on namespace of a cluster. It reports whether
// one was running.
func (s *Supervisor) StopPodWatch(clusterID, namespace string) bool {
	return s.stop(session.PodWatchKey(clusterID, namespace))
}

// LogTailRequest selects the container a log tail follows. StreamID is
// chosen by the caller and scopes the event name, so independent tails of
// one container can coexist.
type LogTailRequest struct {
	ClusterID string
	Namespace string
	Pod       string
	Container string
	StreamID  string
}

func (r LogTailRequest) validate() error {
	switch {
	case r.ClusterID == "":
		return invalid("clusterId is required")
	case r.Namespace == "":
		return invalid("namespace is required")
	case r.Pod == "":
		return invalid("pod is required")
	case r.StreamID == "":
		return invalid("streamId is required")
	}
	return nil
}

// StartLogTail follows the logs of one container, emitting each line as a
// "container_logs_<streamId>" event. A tail with the same stream id is
// replaced.
func (s *Supervisor) StartLogTail(ctx context.Context, req LogTailRequest) (err error) {
	ctx, span := instrumentation.StartSpan(ctx, "supervisor.start_log_tail",
		instrumentation.NewSpanAttributeBuilder().WithClusterID(req.ClusterID).WithNamespace(req.Namespace).Build()...)
	defer func() { instrumentation.EndSpan(span, err) }()

	if err := req.validate(); err != nil {
		return err
	}

	clients, err := s.resolve(ctx, req.ClusterID)
	if err != nil {
		return err
	}

	key := session.LogTailKey(req.StreamID)
	info := SessionInfo{
		Key:       string(key),
		Kind:      instrumentation.SessionKindLogTail,
		ClusterID: req.ClusterID,
		Namespace: req.Namespace,
		Pod:       req.Pod,
		Container: req.Container,
		StreamID:  req.StreamID,
	}
	return s.start(ctx, info, func(ctx context.Context, out *emitter) error {
		return s.tailLogs(ctx, clients, req, out)
	})
}

// StopLogTail stops the tail with the given stream id. It reports whether
// one was running.
func (s *Supervisor) StopLogTail(streamID string) bool {
	return s.stop(session.LogTailKey(streamID))
}

// StopCluster stops every pod watch and log tail of clusterID and returns
// how many were stopped. It does not wait for them to finish.
func (s *Supervisor) StopCluster(clusterID string) int {
	stopped := 0
	for _, info := range s.Sessions() {
		if info.ClusterID == clusterID && s.stop(session.Key(info.Key)) {
			stopped++
		}
	}
	return stopped
}

// Sessions lists the running sessions ordered by key.
func (s *Supervisor) Sessions() []SessionInfo {
	keys := s.table.Keys()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()

	out := make([]SessionInfo, 0, len(keys))
	for _, key := range keys {
		h, ok := s.table.Get(key)
		if !ok {
			continue
		}
		if info, ok := s.infos[h]; ok {
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Shutdown stops every session and waits for them to finish, bounded by ctx.
// Later start requests fail with ErrShutdown.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.down = true
	s.mu.Unlock()

	s.cancelBase()
	if err := s.table.CancelAll(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.infos = make(map[*session.Handle]SessionInfo)
	s.mu.Unlock()

	s.logger.Info("Session supervisor stopped")
	return nil
}

func (s *Supervisor) resolve(ctx context.Context, clusterID string) (*k8s.Clients, error) {
	if s.isDown() {
		return nil, ErrShutdown
	}
	clients, err := s.resolver.Resolve(ctx, clusterID)
	if err != nil {
		s.logger.Warn("Session not started",
			logging.ClusterID(clusterID),
			logging.SanitizedErr(err))
		return nil, err
	}
	return clients, nil
}

func (s *Supervisor) isDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.down
}

type sessionBody func(ctx context.Context, out *emitter) error

func (s *Supervisor) start(ctx context.Context, info SessionInfo, body sessionBody) error {
	if s.isDown() {
		return ErrShutdown
	}

	key := session.Key(info.Key)
	info.StartedAt = s.now()

	stopCtx, cancel := context.WithTimeout(ctx, s.stopTimeout)
	defer cancel()

	h, err := s.table.Replace(stopCtx, s.base, key, s.run(info, body))
	if err != nil {
		s.logger.Warn("Session not started",
			logging.SessionKey(info.Key),
			logging.ClusterID(info.ClusterID),
			logging.Err(err))
		return err
	}

	s.mu.Lock()
	s.pruneLocked()
	s.infos[h] = info
	s.mu.Unlock()

	if s.toucher != nil {
		if err := s.toucher.Touch(ctx, info.ClusterID); err != nil {
			s.logger.Warn("Failed to record cluster access",
				logging.ClusterID(info.ClusterID), logging.Err(err))
		}
	}

	s.logger.Info("Session started",
		logging.SessionKey(info.Key),
		logging.ClusterID(info.ClusterID),
		logging.Namespace(info.Namespace))
	return nil
}

func (s *Supervisor) stop(key session.Key) bool {
	h, ok := s.table.Remove(key)
	if ok {
		s.logger.Info("Session stop requested", logging.SessionKey(string(key)))
		s.mu.Lock()
		delete(s.infos, h)
		s.mu.Unlock()
	}
	return ok
}

// pruneLocked drops infos of sessions that have finished.
func (s *Supervisor) pruneLocked() {
	for h := range s.infos {
		select {
		case <-h.Done():
			delete(s.infos, h)
		default:
		}
	}
}

// run wraps body with the terminal state handling shared by all sessions:
// metrics, logging and exactly one session_ended or session_error event.
func (s *Supervisor) run(info SessionInfo, body sessionBody) session.RunFunc {
	return func(ctx context.Context) {
		bg := context.WithoutCancel(ctx)
		logger := logging.WithSession(s.logger, info.Key)
		out := &emitter{
			target:  s.emitter,
			metrics: s.metrics,
			logger:  logger,
			info:    info,
		}

		s.metrics.SessionStarted(bg, info.Kind)

		err := body(ctx, out)

		outcome := instrumentation.OutcomeEnded
		terminal := events.Event{
			Name:      events.NameSessionEnded,
			Session:   info.Key,
			ClusterID: info.ClusterID,
		}

		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			outcome = instrumentation.OutcomeErrored
			terminal.Name = events.NameSessionError
			terminal.Data = map[string]string{"error": userFacing(err)}
			logger.Error("Session failed", logging.SanitizedErr(err))
		case ctx.Err() != nil:
			outcome = instrumentation.OutcomeCancelled
			terminal.Data = map[string]string{"reason": outcome}
			logger.Debug("Session cancelled")
		default:
			terminal.Data = map[string]string{"reason": outcome}
			logger.Info("Session ended")
		}

		if err := s.emitter.Emit(bg, terminal); err != nil && !errors.Is(err, events.ErrClosed) {
			logger.Warn("Failed to emit terminal session event", logging.Err(err))
		}
		s.metrics.SessionFinished(bg, info.Kind, outcome)
	}
}

func userFacing(err error) string {
	var uf interface{ UserFacingError() string }
	if errors.As(err, &uf) {
		return uf.UserFacingError()
	}
	return err.Error()
}

// emitter stamps events with their session and counts them.
type emitter struct {
	target  events.Emitter
	metrics Metrics
	logger  *slog.Logger
	info    SessionInfo
}

// emit delivers one event. It returns events.ErrClosed when the channel is
// gone, which ends the session; other delivery failures are logged.
func (e *emitter) emit(ctx context.Context, name, eventType string, data any) error {
	err := e.target.Emit(ctx, events.Event{
		Name:      name,
		Session:   e.info.Key,
		ClusterID: e.info.ClusterID,
		Type:      eventType,
		Data:      data,
	})
	switch {
	case err == nil:
		e.metrics.RecordSessionEvent(ctx, e.info.Kind)
		return nil
	case errors.Is(err, events.ErrClosed):
		return err
	default:
		e.logger.Warn("Failed to emit session event", "event", name, logging.Err(err))
		return nil
	}
}
