package k8s

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/giantswarm/kubedeck/internal/instrumentation"
)

// MaxWarningEvents bounds the result of WarningEvents.
const MaxWarningEvents = 50

// WarningEvent is a cluster-wide Warning event as shown on the dashboard.
type WarningEvent struct {
	Message string `json:"message"`
	Object  string `json:"object"`
	Type    string `json:"type"`
	Age     string `json:"age"`
	Count   int32  `json:"count"`
}

// WarningEvents lists Warning events across all namespaces. The list order
// from the API server is reversed so the newest come first, and at most
// MaxWarningEvents are returned.
func WarningEvents(ctx context.Context, kube kubernetes.Interface, now time.Time) (_ []WarningEvent, err error) {
	ctx, span := instrumentation.StartK8sSpan(ctx, instrumentation.OperationList, "events", "")
	defer func() { instrumentation.EndSpan(span, err) }()

	list, err := kube.CoreV1().Events(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	warnings := make([]WarningEvent, 0, MaxWarningEvents)
	for i := len(list.Items) - 1; i >= 0 && len(warnings) < MaxWarningEvents; i-- {
		e := list.Items[i]
		if e.Type != corev1.EventTypeWarning {
			continue
		}

		age := "-"
		if !e.LastTimestamp.IsZero() {
			age = FormatAge(now.Sub(e.LastTimestamp.Time))
		}
		count := e.Count
		if count == 0 {
			count = 1
		}

		warnings = append(warnings, WarningEvent{
			Message: e.Message,
			Object:  e.InvolvedObject.Kind + "/" + e.InvolvedObject.Name,
			Type:    e.Type,
			Age:     age,
			Count:   count,
		})
	}
	return warnings, nil
}
