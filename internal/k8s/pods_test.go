package k8s

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
)

func namespace(name string) *corev1.Namespace {
	return &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: name}}
}

func pod(ns, name string, phase corev1.PodPhase) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns},
		Status:     corev1.PodStatus{Phase: phase},
	}
}

func TestNamespaceScope(t *testing.T) {
	assert.Equal(t, "", NamespaceScope("all"))
	assert.Equal(t, "default", NamespaceScope("default"))
	assert.Equal(t, "", NamespaceScope(""))
}

func TestListNamespaces(t *testing.T) {
	kube := fake.NewSimpleClientset(namespace("zeta"), namespace("alpha"), namespace("default"))

	names, err := ListNamespaces(context.Background(), kube)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "default", "zeta"}, names)
}

func TestListNamespaces_Error(t *testing.T) {
	kube := fake.NewSimpleClientset()
	kube.PrependReactor("list", "namespaces", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewForbidden(corev1.Resource("namespaces"), "", errors.New("denied"))
	})

	_, err := ListNamespaces(context.Background(), kube)
	require.Error(t, err)
	assert.True(t, apierrors.IsForbidden(err))
}

func TestListPods(t *testing.T) {
	kube := fake.NewSimpleClientset(
		pod("shop", "api", corev1.PodRunning),
		pod("shop", "worker", corev1.PodPending),
		pod("infra", "dns", corev1.PodRunning),
	)
	ctx := context.Background()

	pods, err := ListPods(ctx, kube, "shop", testNow)
	require.NoError(t, err)
	assert.Len(t, pods, 2)
	for _, p := range pods {
		assert.Equal(t, "shop", p.Namespace)
	}

	pods, err = ListPods(ctx, kube, AllNamespaces, testNow)
	require.NoError(t, err)
	assert.Len(t, pods, 3)

	pods, err = ListPods(ctx, kube, "empty", testNow)
	require.NoError(t, err)
	assert.NotNil(t, pods)
	assert.Empty(t, pods)
}

func TestDeletePod(t *testing.T) {
	kube := fake.NewSimpleClientset(pod("shop", "api", corev1.PodRunning))
	ctx := context.Background()

	require.NoError(t, DeletePod(ctx, kube, "shop", "api"))

	_, err := kube.CoreV1().Pods("shop").Get(ctx, "api", metav1.GetOptions{})
	assert.True(t, apierrors.IsNotFound(err))

	err = DeletePod(ctx, kube, "shop", "api")
	require.Error(t, err)
	assert.True(t, apierrors.IsNotFound(err))
	assert.Contains(t, err.Error(), "shop/api")
}

func event(ns, name, involved string, last time.Time) *corev1.Event {
	e := &corev1.Event{
		ObjectMeta:     metav1.ObjectMeta{Name: name, Namespace: ns},
		InvolvedObject: corev1.ObjectReference{Kind: "Pod", Name: involved, Namespace: ns},
		Reason:         "Reason-" + name,
		Message:        "message " + name,
	}
	if !last.IsZero() {
		e.LastTimestamp = metav1.NewTime(last)
	}
	return e
}

func TestPodEvents(t *testing.T) {
	older := event("shop", "e-old", "api", testNow.Add(-time.Hour))
	older.Type = corev1.EventTypeWarning
	older.Count = 4
	older.Source.Component = "kubelet"
	older.FirstTimestamp = metav1.NewTime(testNow.Add(-2 * time.Hour))

	newer := event("shop", "e-new", "api", testNow.Add(-time.Minute))
	undated := event("shop", "e-undated", "api", time.Time{})
	other := event("shop", "e-other", "worker", testNow)

	kube := fake.NewSimpleClientset(undated, older, other, newer)

	events, err := PodEvents(context.Background(), kube, "shop", "api")
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, "Reason-e-new", events[0].Reason)
	assert.Equal(t, "Reason-e-old", events[1].Reason)
	assert.Equal(t, "Reason-e-undated", events[2].Reason)

	assert.Equal(t, "Normal", events[0].EventType)
	assert.Equal(t, int32(1), events[0].Count)
	assert.Equal(t, "unknown", events[0].Source)
	assert.Nil(t, events[0].FirstTimestamp)

	assert.Equal(t, "Warning", events[1].EventType)
	assert.Equal(t, int32(4), events[1].Count)
	assert.Equal(t, "kubelet", events[1].Source)
	require.NotNil(t, events[1].FirstTimestamp)
	assert.Equal(t, "2026-03-10T10:00:00Z", *events[1].FirstTimestamp)

	assert.Nil(t, events[2].LastTimestamp)
}

func TestPodEvents_None(t *testing.T) {
	events, err := PodEvents(context.Background(), fake.NewSimpleClientset(), "shop", "api")
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestOpenLogStream(t *testing.T) {
	kube := fake.NewSimpleClientset(pod("shop", "api", corev1.PodRunning))

	stream, err := OpenLogStream(context.Background(), kube, "shop", "api", "api", DefaultLogTailLines)
	require.NoError(t, err)
	defer stream.Close()

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "fake logs", string(data))
}
