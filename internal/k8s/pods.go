package k8s

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/client-go/kubernetes"

	"github.com/giantswarm/kubedeck/internal/instrumentation"
)

// AllNamespaces is the namespace argument that selects every namespace.
const AllNamespaces = "all"

// DefaultLogTailLines is how many past lines a log tail starts with.
const DefaultLogTailLines int64 = 1000

// NamespaceScope maps the "all" namespace to the empty string client-go
// uses for cluster-wide requests.
func NamespaceScope(namespace string) string {
	if namespace == AllNamespaces {
		return metav1.NamespaceAll
	}
	return namespace
}

// ListNamespaces returns the names of all namespaces, sorted.
func ListNamespaces(ctx context.Context, kube kubernetes.Interface) (_ []string, err error) {
	ctx, span := instrumentation.StartK8sSpan(ctx, instrumentation.OperationList, "namespaces", "")
	defer func() { instrumentation.EndSpan(span, err) }()

	list, err := kube.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}

	names := make([]string, 0, len(list.Items))
	for _, ns := range list.Items {
		names = append(names, ns.Name)
	}
	sort.Strings(names)
	return names, nil
}

// ListPods returns summaries of the pods in namespace ("all" for every
// namespace).
func ListPods(ctx context.Context, kube kubernetes.Interface, namespace string, now time.Time) (_ []PodSummary, err error) {
	ctx, span := instrumentation.StartK8sSpan(ctx, instrumentation.OperationList, "pods", namespace)
	defer func() { instrumentation.EndSpan(span, err) }()

	list, err := kube.CoreV1().Pods(NamespaceScope(namespace)).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}

	pods := make([]PodSummary, 0, len(list.Items))
	for i := range list.Items {
		pods = append(pods, SummarizePod(&list.Items[i], now))
	}
	return pods, nil
}

// DeletePod deletes a pod with the default grace period.
func DeletePod(ctx context.Context, kube kubernetes.Interface, namespace, name string) (err error) {
	ctx, span := instrumentation.StartK8sSpan(ctx, instrumentation.OperationDelete, "pods", namespace)
	defer func() { instrumentation.EndSpan(span, err) }()

	if err := kube.CoreV1().Pods(namespace).Delete(ctx, name, metav1.DeleteOptions{}); err != nil {
		return fmt.Errorf("failed to delete pod %s/%s: %w", namespace, name, err)
	}
	return nil
}

// PodEventInfo is one event recorded against a pod.
type PodEventInfo struct {
	EventType      string  `json:"event_type"`
	Reason         string  `json:"reason"`
	Message        string  `json:"message"`
	Count          int32   `json:"count"`
	FirstTimestamp *string `json:"first_timestamp"`
	LastTimestamp  *string `json:"last_timestamp"`
	Source         string  `json:"source"`
}

// PodEvents lists the events whose involved object is the named pod, most
// recent first. Events without a last timestamp sort last.
func PodEvents(ctx context.Context, kube kubernetes.Interface, namespace, pod string) (_ []PodEventInfo, err error) {
	ctx, span := instrumentation.StartK8sSpan(ctx, instrumentation.OperationList, "events", namespace)
	defer func() { instrumentation.EndSpan(span, err) }()

	selector := fields.OneTermEqualSelector("involvedObject.name", pod).String()
	list, err := kube.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{FieldSelector: selector})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	items := make([]corev1.Event, 0, len(list.Items))
	for _, e := range list.Items {
		if e.InvolvedObject.Name == pod {
			items = append(items, e)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[j].LastTimestamp.Before(&items[i].LastTimestamp)
	})

	events := make([]PodEventInfo, 0, len(items))
	for _, e := range items {
		count := e.Count
		if count == 0 {
			count = 1
		}
		events = append(events, PodEventInfo{
			EventType:      orDefault(e.Type, corev1.EventTypeNormal),
			Reason:         e.Reason,
			Message:        e.Message,
			Count:          count,
			FirstTimestamp: timestamp(e.FirstTimestamp),
			LastTimestamp:  timestamp(e.LastTimestamp),
			Source:         orDefault(e.Source.Component, "unknown"),
		})
	}
	return events, nil
}

// OpenLogStream starts following the logs of one container, beginning with
// the last tailLines lines. The stream ends when the container stops or ctx
// is cancelled.
func OpenLogStream(ctx context.Context, kube kubernetes.Interface, namespace, pod, container string, tailLines int64) (io.ReadCloser, error) {
	opts := &corev1.PodLogOptions{
		Container: container,
		Follow:    true,
	}
	if tailLines > 0 {
		opts.TailLines = &tailLines
	}

	stream, err := kube.CoreV1().Pods(namespace).GetLogs(pod, opts).Stream(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open log stream for %s/%s: %w", namespace, pod, err)
	}
	return stream, nil
}
