package k8s

import (
	"context"
	"fmt"
	"log/slog"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/giantswarm/kubedeck/internal/instrumentation"
	"github.com/giantswarm/kubedeck/internal/logging"
)

// ResourceStats aggregates one resource across the cluster. CPU is in
// cores, memory in bytes and pods in pod counts.
type ResourceStats struct {
	Capacity    float64 `json:"capacity"`
	Allocatable float64 `json:"allocatable"`
	Requests    float64 `json:"requests"`
	Limits      float64 `json:"limits"`
	Usage       float64 `json:"usage"`
}

// ClusterMetrics is the dashboard summary of a cluster.
type ClusterMetrics struct {
	CPU    ResourceStats `json:"cpu"`
	Memory ResourceStats `json:"memory"`
	Pods   ResourceStats `json:"pods"`

	// UsageAvailable is set when CPU and memory usage came from the
	// metrics API.
	UsageAvailable bool `json:"usage_available"`
}

// GetClusterMetrics sums node capacity and allocatable resources and the
// requests and limits of every pod that has not finished. Pods usage is the
// number of such pods. CPU and memory usage are read from metrics-server
// when it is installed; its absence is not an error.
func GetClusterMetrics(ctx context.Context, clients *Clients, logger *slog.Logger) (_ *ClusterMetrics, err error) {
	ctx, span := instrumentation.StartK8sSpan(ctx, instrumentation.OperationList, "nodes", "")
	defer func() { instrumentation.EndSpan(span, err) }()

	nodes, err := clients.Kube.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	pods, err := clients.Kube.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}

	m := &ClusterMetrics{}

	for _, node := range nodes.Items {
		addQuantity(&m.CPU.Capacity, node.Status.Capacity, corev1.ResourceCPU, cores)
		addQuantity(&m.Memory.Capacity, node.Status.Capacity, corev1.ResourceMemory, units)
		addQuantity(&m.Pods.Capacity, node.Status.Capacity, corev1.ResourcePods, units)
		addQuantity(&m.CPU.Allocatable, node.Status.Allocatable, corev1.ResourceCPU, cores)
		addQuantity(&m.Memory.Allocatable, node.Status.Allocatable, corev1.ResourceMemory, units)
		addQuantity(&m.Pods.Allocatable, node.Status.Allocatable, corev1.ResourcePods, units)
	}

	for _, pod := range pods.Items {
		if pod.Status.Phase == corev1.PodSucceeded || pod.Status.Phase == corev1.PodFailed {
			continue
		}
		m.Pods.Usage++

		for _, c := range pod.Spec.Containers {
			addQuantity(&m.CPU.Requests, c.Resources.Requests, corev1.ResourceCPU, cores)
			addQuantity(&m.Memory.Requests, c.Resources.Requests, corev1.ResourceMemory, units)
			addQuantity(&m.CPU.Limits, c.Resources.Limits, corev1.ResourceCPU, cores)
			addQuantity(&m.Memory.Limits, c.Resources.Limits, corev1.ResourceMemory, units)
		}
	}

	if clients.Metrics != nil {
		usage, err := clients.Metrics.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
		if err != nil {
			if logger != nil {
				logger.Debug("Node metrics unavailable", logging.Err(err))
			}
		} else {
			m.UsageAvailable = true
			for _, nm := range usage.Items {
				addQuantity(&m.CPU.Usage, nm.Usage, corev1.ResourceCPU, cores)
				addQuantity(&m.Memory.Usage, nm.Usage, corev1.ResourceMemory, units)
			}
		}
	}

	return m, nil
}

func addQuantity(dst *float64, list corev1.ResourceList, name corev1.ResourceName, convert func(resource.Quantity) float64) {
	if q, ok := list[name]; ok {
		*dst += convert(q)
	}
}

func cores(q resource.Quantity) float64 {
	return float64(q.MilliValue()) / 1000
}

func units(q resource.Quantity) float64 {
	return float64(q.Value())
}
