package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
	"k8s.io/client-go/tools/cache"

	"github.com/giantswarm/kubedeck/internal/events"
	"github.com/giantswarm/kubedeck/internal/instrumentation"
	"github.com/giantswarm/kubedeck/internal/k8s"
	"github.com/giantswarm/kubedeck/internal/registry"
	"github.com/giantswarm/kubedeck/internal/session"
)

type stubResolver struct {
	clients map[string]*k8s.Clients
}

func (r *stubResolver) Resolve(_ context.Context, clusterID string) (*k8s.Clients, error) {
	c, ok := r.clients[clusterID]
	if !ok {
		return nil, &k8s.ClientError{
			ClusterID: clusterID,
			Stage:     k8s.StageLookup,
			Reason:    "cluster is not registered",
			Err:       &registry.NotFoundError{ID: clusterID},
		}
	}
	return c, nil
}

type recordingToucher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (r *recordingToucher) Touch(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return r.err
}

func (r *recordingToucher) touched() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

type recordingMetrics struct {
	mu       sync.Mutex
	started  map[string]int
	finished map[string]int
	emitted  map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		started:  make(map[string]int),
		finished: make(map[string]int),
		emitted:  make(map[string]int),
	}
}

func (m *recordingMetrics) SessionStarted(_ context.Context, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started[kind]++
}

func (m *recordingMetrics) SessionFinished(_ context.Context, kind, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished[kind+"/"+outcome]++
}

func (m *recordingMetrics) RecordSessionEvent(_ context.Context, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitted[kind]++
}

func (m *recordingMetrics) get(counter map[string]int, key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return counter[key]
}

func testPod(ns, name, resourceVersion string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns, ResourceVersion: resourceVersion},
		Status:     corev1.PodStatus{Phase: corev1.PodRunning},
	}
}

type fixture struct {
	sup      *Supervisor
	kube     *fake.Clientset
	watcher  *watch.FakeWatcher
	recorder *events.Recorder
	toucher  *recordingToucher
	metrics  *recordingMetrics
}

func newFixture(t *testing.T, objects ...runtime.Object) *fixture {
	t.Helper()

	kube := fake.NewSimpleClientset(objects...)

	f := &fixture{
		kube:     kube,
		recorder: events.NewRecorder(),
		toucher:  &recordingToucher{},
		metrics:  newRecordingMetrics(),
	}
	resolver := &stubResolver{clients: map[string]*k8s.Clients{
		"c-1": {Kube: kube},
	}}
	f.sup = New(resolver, f.recorder,
		WithToucher(f.toucher),
		WithMetrics(f.metrics),
		WithResyncPeriod(0),
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = f.sup.Shutdown(ctx)
	})
	return f
}

// useFakeWatcher routes pod watches to a FakeWatcher the test drives. Only
// one informer may use it: stopping a FakeWatcher is permanent.
func (f *fixture) useFakeWatcher() {
	f.watcher = watch.NewFake()
	f.kube.PrependWatchReactor("pods", k8stesting.DefaultWatchReactor(f.watcher, nil))
}

func (f *fixture) waitForEvents(t *testing.T, name string, n int) []events.Event {
	t.Helper()
	var got []events.Event
	require.Eventually(t, func() bool {
		got = f.recorder.Named(name)
		return len(got) >= n
	}, 5*time.Second, 10*time.Millisecond, "waiting for %d %q events", n, name)
	return got
}

func (f *fixture) waitForNoSessions(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.sup.table.Len() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStartPodWatch_Events(t *testing.T) {
	f := newFixture(t, testPod("shop", "api", ""))
	f.useFakeWatcher()
	ctx := context.Background()

	require.NoError(t, f.sup.StartPodWatch(ctx, "c-1", "shop"))

	added := f.waitForEvents(t, events.NamePodEvent, 1)
	assert.Equal(t, "pod_watch:c-1:shop", added[0].Session)
	assert.Equal(t, "c-1", added[0].ClusterID)
	assert.Equal(t, PodAdded, added[0].Type)
	summary, ok := added[0].Data.(k8s.PodSummary)
	require.True(t, ok)
	assert.Equal(t, "api", summary.Name)
	assert.Equal(t, "Running", summary.Status)

	// FakeWatcher sends block until the informer consumes them, so the watch
	// is established once Add returns.
	f.watcher.Add(testPod("shop", "worker", "2"))
	f.watcher.Modify(testPod("shop", "worker", "3"))
	f.watcher.Delete(testPod("shop", "worker", "4"))

	got := f.waitForEvents(t, events.NamePodEvent, 4)
	types := make([]string, 0, len(got))
	for _, e := range got {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{PodAdded, PodAdded, PodModified, PodDeleted}, types)

	assert.Equal(t, []string{"c-1"}, f.toucher.touched())
	assert.Equal(t, 1, f.metrics.get(f.metrics.started, instrumentation.SessionKindPodWatch))
	assert.GreaterOrEqual(t, f.metrics.get(f.metrics.emitted, instrumentation.SessionKindPodWatch), 4)

	sessions := f.sup.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, SessionInfo{
		Key:       "pod_watch:c-1:shop",
		Kind:      instrumentation.SessionKindPodWatch,
		ClusterID: "c-1",
		Namespace: "shop",
		StartedAt: sessions[0].StartedAt,
	}, sessions[0])
	assert.False(t, sessions[0].StartedAt.IsZero())
}

func TestStopPodWatch(t *testing.T) {
	f := newFixture(t, testPod("shop", "api", ""))
	ctx := context.Background()

	require.NoError(t, f.sup.StartPodWatch(ctx, "c-1", "shop"))
	f.waitForEvents(t, events.NamePodEvent, 1)

	assert.True(t, f.sup.StopPodWatch("c-1", "shop"))
	assert.False(t, f.sup.StopPodWatch("c-1", "shop"))

	ended := f.waitForEvents(t, events.NameSessionEnded, 1)
	assert.Equal(t, "pod_watch:c-1:shop", ended[0].Session)
	assert.Equal(t, map[string]string{"reason": instrumentation.OutcomeCancelled}, ended[0].Data)

	f.waitForNoSessions(t)
	assert.Empty(t, f.sup.Sessions())
	require.Eventually(t, func() bool {
		return f.metrics.get(f.metrics.finished, "pod_watch/cancelled") == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStartPodWatch_ReplacesExisting(t *testing.T) {
	f := newFixture(t, testPod("shop", "api", ""))
	ctx := context.Background()

	require.NoError(t, f.sup.StartPodWatch(ctx, "c-1", "shop"))
	f.waitForEvents(t, events.NamePodEvent, 1)

	require.NoError(t, f.sup.StartPodWatch(ctx, "c-1", "shop"))
	f.waitForEvents(t, events.NamePodEvent, 2)

	assert.Equal(t, 1, f.sup.table.Len())
	assert.Len(t, f.sup.Sessions(), 1)

	// The first session's terminal event comes after all of its own events
	// and before anything from its replacement.
	all := f.recorder.Events()
	endIdx := -1
	for i, e := range all {
		if e.Name == events.NameSessionEnded {
			require.Equal(t, -1, endIdx, "only one session may have ended")
			endIdx = i
		}
	}
	require.NotEqual(t, -1, endIdx)

	before, after := 0, 0
	for i, e := range all {
		if e.Name != events.NamePodEvent {
			continue
		}
		if i < endIdx {
			before++
		} else {
			after++
		}
	}
	assert.Equal(t, 1, before)
	assert.Equal(t, 1, after)
}

func TestStartPodWatch_AllNamespaces(t *testing.T) {
	f := newFixture(t, testPod("shop", "api", ""), testPod("infra", "dns", ""))

	require.NoError(t, f.sup.StartPodWatch(context.Background(), "c-1", "all"))

	got := f.waitForEvents(t, events.NamePodEvent, 2)
	names := []string{got[0].Data.(k8s.PodSummary).Name, got[1].Data.(k8s.PodSummary).Name}
	assert.ElementsMatch(t, []string{"api", "dns"}, names)
	assert.Equal(t, "pod_watch:c-1:all", got[0].Session)
}

func TestStartPodWatch_FatalWatchError(t *testing.T) {
	f := newFixture(t)
	f.kube.PrependReactor("list", "pods", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewForbidden(corev1.Resource("pods"), "", errors.New("rbac"))
	})

	require.NoError(t, f.sup.StartPodWatch(context.Background(), "c-1", "shop"))

	failed := f.waitForEvents(t, events.NameSessionError, 1)
	assert.Equal(t, "pod_watch:c-1:shop", failed[0].Session)
	data, ok := failed[0].Data.(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "pod watch failed: access denied", data["error"])

	f.waitForNoSessions(t)
	assert.Empty(t, f.recorder.Named(events.NameSessionEnded))
	require.Eventually(t, func() bool {
		return f.metrics.get(f.metrics.finished, "pod_watch/errored") == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStartPodWatch_ResolveError(t *testing.T) {
	f := newFixture(t)

	err := f.sup.StartPodWatch(context.Background(), "missing", "shop")
	require.Error(t, err)
	assert.ErrorIs(t, err, k8s.ErrClientConstruction)
	assert.ErrorIs(t, err, registry.ErrNotFound)

	assert.Zero(t, f.sup.table.Len())
	assert.Empty(t, f.recorder.Events())
	assert.Empty(t, f.toucher.touched())
}

func TestStartPodWatch_InvalidRequest(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.sup.StartPodWatch(context.Background(), "", "shop"), ErrInvalidRequest)
	assert.ErrorIs(t, f.sup.StartPodWatch(context.Background(), "c-1", ""), ErrInvalidRequest)
}

func TestStartPodWatch_TouchFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, testPod("shop", "api", ""))
	f.toucher.err = errors.New("database is locked")

	require.NoError(t, f.sup.StartPodWatch(context.Background(), "c-1", "shop"))
	f.waitForEvents(t, events.NamePodEvent, 1)
}

func TestStartLogTail(t *testing.T) {
	f := newFixture(t, testPod("shop", "api", ""))

	err := f.sup.StartLogTail(context.Background(), LogTailRequest{
		ClusterID: "c-1",
		Namespace: "shop",
		Pod:       "api",
		Container: "app",
		StreamID:  "s1",
	})
	require.NoError(t, err)

	lines := f.waitForEvents(t, "container_logs_s1", 1)
	assert.Equal(t, "fake logs", lines[0].Data)
	assert.Equal(t, "logs:s1", lines[0].Session)
	assert.Empty(t, lines[0].Type)

	// The fake log stream ends after one line.
	ended := f.waitForEvents(t, events.NameSessionEnded, 1)
	assert.Equal(t, map[string]string{"reason": instrumentation.OutcomeEnded}, ended[0].Data)

	f.waitForNoSessions(t)
	assert.Equal(t, []string{"c-1"}, f.toucher.touched())
	require.Eventually(t, func() bool {
		return f.metrics.get(f.metrics.finished, "log_tail/ended") == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStartLogTail_InvalidRequest(t *testing.T) {
	f := newFixture(t)
	valid := LogTailRequest{ClusterID: "c-1", Namespace: "shop", Pod: "api", StreamID: "s"}

	for name, mutate := range map[string]func(*LogTailRequest){
		"cluster":   func(r *LogTailRequest) { r.ClusterID = "" },
		"namespace": func(r *LogTailRequest) { r.Namespace = "" },
		"pod":       func(r *LogTailRequest) { r.Pod = "" },
		"stream":    func(r *LogTailRequest) { r.StreamID = "" },
	} {
		t.Run(name, func(t *testing.T) {
			req := valid
			mutate(&req)
			assert.ErrorIs(t, f.sup.StartLogTail(context.Background(), req), ErrInvalidRequest)
		})
	}
}

func TestStopLogTail_Unknown(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.sup.StopLogTail("nope"))
}

func TestShutdown(t *testing.T) {
	f := newFixture(t, testPod("shop", "api", ""))
	ctx := context.Background()

	require.NoError(t, f.sup.StartPodWatch(ctx, "c-1", "shop"))
	require.NoError(t, f.sup.StartPodWatch(ctx, "c-1", "infra"))
	f.waitForEvents(t, events.NamePodEvent, 1)

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, f.sup.Shutdown(shutdownCtx))

	assert.Zero(t, f.sup.table.Len())
	assert.Len(t, f.recorder.Named(events.NameSessionEnded), 2)
	assert.ErrorIs(t, f.sup.StartPodWatch(ctx, "c-1", "shop"), ErrShutdown)
}

func TestPodFromObject(t *testing.T) {
	pod := testPod("ns", "p", "1")

	assert.Same(t, pod, podFromObject(pod))
	assert.Same(t, pod, podFromObject(cache.DeletedFinalStateUnknown{Key: "ns/p", Obj: pod}))
	assert.Nil(t, podFromObject(&corev1.Node{}))
	assert.Nil(t, podFromObject(cache.DeletedFinalStateUnknown{Key: "x", Obj: "junk"}))
	assert.Nil(t, podFromObject(nil))
}

func TestIsResync(t *testing.T) {
	assert.True(t, isResync(testPod("ns", "p", "5"), testPod("ns", "p", "5")))
	assert.False(t, isResync(testPod("ns", "p", "5"), testPod("ns", "p", "6")))
	assert.False(t, isResync(testPod("ns", "p", ""), testPod("ns", "p", "")))
	assert.False(t, isResync("x", testPod("ns", "p", "5")))
}

func TestStreamError(t *testing.T) {
	forbidden := apierrors.NewForbidden(corev1.Resource("pods"), "", errors.New("rbac"))
	err := &StreamError{Session: "k", Kind: "pod_watch", Reason: "pod watch failed", Err: forbidden}

	assert.ErrorIs(t, err, ErrStream)
	assert.True(t, apierrors.IsForbidden(err))
	assert.Equal(t, "pod watch failed: access denied", err.UserFacingError())

	plain := &StreamError{Session: "k", Kind: "log_tail", Reason: "log stream interrupted"}
	assert.Equal(t, "log stream interrupted", plain.UserFacingError())
	assert.Equal(t, `log_tail session "k": log stream interrupted`, plain.Error())
}

func TestIsFatalWatchError(t *testing.T) {
	gr := corev1.Resource("pods")
	assert.True(t, isFatalWatchError(apierrors.NewUnauthorized("expired")))
	assert.True(t, isFatalWatchError(apierrors.NewForbidden(gr, "", errors.New("x"))))
	assert.True(t, isFatalWatchError(apierrors.NewNotFound(gr, "")))
	assert.False(t, isFatalWatchError(apierrors.NewServiceUnavailable("later")))
	assert.False(t, isFatalWatchError(errors.New("connection reset")))
}

func TestStart_PreviousSessionDoesNotStopInTime(t *testing.T) {
	f := newFixture(t)
	f.sup.stopTimeout = 20 * time.Millisecond
	ctx := context.Background()

	info := SessionInfo{
		Key:       "logs:slow",
		Kind:      instrumentation.SessionKindLogTail,
		ClusterID: "c-1",
		StreamID:  "slow",
	}
	running := make(chan struct{})
	slowStop := func(ctx context.Context, _ *emitter) error {
		close(running)
		<-ctx.Done()
		time.Sleep(300 * time.Millisecond)
		return ctx.Err()
	}
	require.NoError(t, f.sup.start(ctx, info, slowStop))
	<-running

	var started atomic.Bool
	err := f.sup.start(ctx, info, func(context.Context, *emitter) error {
		started.Store(true)
		return nil
	})
	require.ErrorIs(t, err, session.ErrStopTimeout)

	keys := f.sup.table.Keys()
	assert.Equal(t, []session.Key{"logs:slow"}, keys)

	f.waitForNoSessions(t)
	assert.False(t, started.Load())
	assert.Len(t, f.recorder.Named(events.NameSessionEnded), 1)
}
