package k8s

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
)

func TestWarningEvents(t *testing.T) {
	warning := event("shop", "w1", "api", testNow.Add(-3*time.Minute))
	warning.Type = corev1.EventTypeWarning
	warning.Count = 7

	undated := event("infra", "w2", "dns", time.Time{})
	undated.Type = corev1.EventTypeWarning

	normal := event("shop", "n1", "api", testNow)
	normal.Type = corev1.EventTypeNormal

	kube := fake.NewSimpleClientset()
	kube.PrependReactor("list", "events", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, &corev1.EventList{Items: []corev1.Event{*warning, *normal, *undated}}, nil
	})

	events, err := WarningEvents(context.Background(), kube, testNow)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, WarningEvent{
		Message: "message w2", Object: "Pod/dns", Type: "Warning", Age: "-", Count: 1,
	}, events[0])
	assert.Equal(t, WarningEvent{
		Message: "message w1", Object: "Pod/api", Type: "Warning", Age: "3m", Count: 7,
	}, events[1])
}

func TestWarningEvents_Capped(t *testing.T) {
	items := make([]corev1.Event, 0, 80)
	for i := 0; i < 80; i++ {
		e := event("shop", fmt.Sprintf("w%02d", i), "api", testNow)
		e.Type = corev1.EventTypeWarning
		items = append(items, *e)
	}

	kube := fake.NewSimpleClientset()
	kube.PrependReactor("list", "events", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, &corev1.EventList{Items: items}, nil
	})

	events, err := WarningEvents(context.Background(), kube, testNow)
	require.NoError(t, err)
	require.Len(t, events, MaxWarningEvents)
	assert.Equal(t, "message w79", events[0].Message)
	assert.Equal(t, "message w30", events[MaxWarningEvents-1].Message)
}

func TestWarningEvents_Empty(t *testing.T) {
	events, err := WarningEvents(context.Background(), fake.NewSimpleClientset(), testNow)
	require.NoError(t, err)
	assert.Empty(t, events)
}
