package dashboard

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/giantswarm/kubedeck/internal/k8s"
	"github.com/giantswarm/kubedeck/internal/tools/tooltest"
)

func node(name, cpu, memory string) *corev1.Node {
	list := corev1.ResourceList{
		corev1.ResourceCPU:    resource.MustParse(cpu),
		corev1.ResourceMemory: resource.MustParse(memory),
		corev1.ResourcePods:   resource.MustParse("110"),
	}
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Status:     corev1.NodeStatus{Capacity: list, Allocatable: list},
	}
}

func pod(name string, phase corev1.PodPhase, cpuRequest string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "default"},
		Spec: corev1.PodSpec{Containers: []corev1.Container{{
			Name: "app",
			Resources: corev1.ResourceRequirements{
				Requests: corev1.ResourceList{corev1.ResourceCPU: resource.MustParse(cpuRequest)},
			},
		}}},
		Status: corev1.PodStatus{Phase: phase},
	}
}

func TestHandleGetClusterMetrics(t *testing.T) {
	f := tooltest.New(t, tooltest.Objects(
		node("n1", "4", "8Gi"),
		node("n2", "2", "4Gi"),
		pod("a", corev1.PodRunning, "500m"),
		pod("b", corev1.PodPending, "250m"),
		pod("done", corev1.PodSucceeded, "1"),
	))
	rec := f.Register(t, "Dev", "dev")

	result := f.Call(t, handleGetClusterMetrics, map[string]any{"clusterId": rec.ID})
	require.False(t, result.IsError, tooltest.Text(t, result))

	var m k8s.ClusterMetrics
	require.NoError(t, json.Unmarshal([]byte(tooltest.Text(t, result)), &m))
	assert.InDelta(t, 6.0, m.CPU.Capacity, 1e-9)
	assert.InDelta(t, 0.75, m.CPU.Requests, 1e-9)
	assert.InDelta(t, float64(12<<30), m.Memory.Allocatable, 1)
	assert.InDelta(t, 220.0, m.Pods.Capacity, 1e-9)
	assert.InDelta(t, 2.0, m.Pods.Usage, 1e-9)
	assert.False(t, m.UsageAvailable)
}

func TestHandleGetWarningEvents(t *testing.T) {
	now := time.Now()
	var objects []runtime.Object
	for i := range 60 {
		objects = append(objects, &corev1.Event{
			ObjectMeta:     metav1.ObjectMeta{Name: fmt.Sprintf("warn-%02d", i), Namespace: "default"},
			InvolvedObject: corev1.ObjectReference{Kind: "Pod", Name: "web"},
			Type:           corev1.EventTypeWarning,
			Message:        "Back-off restarting failed container",
			LastTimestamp:  metav1.NewTime(now.Add(-2 * time.Hour)),
		})
	}
	objects = append(objects, &corev1.Event{
		ObjectMeta: metav1.ObjectMeta{Name: "normal", Namespace: "default"},
		Type:       corev1.EventTypeNormal,
	})

	f := tooltest.New(t, tooltest.Objects(objects...))
	rec := f.Register(t, "Dev", "dev")

	result := f.Call(t, handleGetWarningEvents, map[string]any{"clusterId": rec.ID})
	require.False(t, result.IsError, tooltest.Text(t, result))

	var warnings []k8s.WarningEvent
	require.NoError(t, json.Unmarshal([]byte(tooltest.Text(t, result)), &warnings))
	require.Len(t, warnings, k8s.MaxWarningEvents)
	for _, w := range warnings {
		assert.Equal(t, corev1.EventTypeWarning, w.Type)
		assert.Equal(t, "Pod/web", w.Object)
		assert.Equal(t, "2h", w.Age)
		assert.Equal(t, int32(1), w.Count)
	}
}

func TestDashboardTools_Errors(t *testing.T) {
	f := tooltest.New(t)

	for name, handler := range map[string]tooltest.Handler{
		"get_cluster_metrics": handleGetClusterMetrics,
		"get_warning_events":  handleGetWarningEvents,
	} {
		t.Run(name, func(t *testing.T) {
			result := f.Call(t, handler, map[string]any{})
			assert.True(t, result.IsError)
			assert.Contains(t, tooltest.Text(t, result), "clusterId is required")

			result = f.Call(t, handler, map[string]any{"clusterId": "missing"})
			assert.True(t, result.IsError)
			assert.Contains(t, tooltest.Text(t, result), `cluster "missing" not registered`)
		})
	}
}
