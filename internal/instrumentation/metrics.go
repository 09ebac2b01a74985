package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrMethod       = "method"
	attrPath         = "path"
	attrStatus       = "status"
	attrOperation    = "operation"
	attrResourceType = "resource_type"
	attrNamespace    = "namespace"
	attrTool         = "tool"
	attrKind         = "kind"
	attrOutcome      = "outcome"
	attrReason       = "reason"
)

var durationBuckets = []float64{0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0}

// Metrics provides methods for recording observability metrics. A nil
// *Metrics records nothing.
type Metrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	toolCallsTotal   metric.Int64Counter
	toolCallDuration metric.Float64Histogram

	k8sOperationsTotal   metric.Int64Counter
	k8sOperationDuration metric.Float64Histogram

	activeSessions      metric.Int64UpDownCounter
	sessionTerminations metric.Int64Counter
	sessionEvents       metric.Int64Counter
	eventClients        metric.Int64UpDownCounter

	registryOperationsTotal   metric.Int64Counter
	registryOperationDuration metric.Float64Histogram

	cacheHits      metric.Int64Counter
	cacheMisses    metric.Int64Counter
	cacheEvictions metric.Int64Counter
	cacheEntries   metric.Int64Gauge

	// detailedLabels adds namespace and resource_type to Kubernetes
	// operation metrics.
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{detailedLabels: detailedLabels}

	var err error

	if m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	if m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	if m.toolCallsTotal, err = meter.Int64Counter(
		"kubedeck_tool_calls_total",
		metric.WithDescription("Total number of MCP tool calls"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create kubedeck_tool_calls_total counter: %w", err)
	}

	if m.toolCallDuration, err = meter.Float64Histogram(
		"kubedeck_tool_call_duration_seconds",
		metric.WithDescription("MCP tool call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, fmt.Errorf("failed to create kubedeck_tool_call_duration_seconds histogram: %w", err)
	}

	if m.k8sOperationsTotal, err = meter.Int64Counter(
		"kubedeck_kubernetes_operations_total",
		metric.WithDescription("Total number of Kubernetes operations"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create kubedeck_kubernetes_operations_total counter: %w", err)
	}

	if m.k8sOperationDuration, err = meter.Float64Histogram(
		"kubedeck_kubernetes_operation_duration_seconds",
		metric.WithDescription("Kubernetes operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, fmt.Errorf("failed to create kubedeck_kubernetes_operation_duration_seconds histogram: %w", err)
	}

	if m.activeSessions, err = meter.Int64UpDownCounter(
		"kubedeck_active_sessions",
		metric.WithDescription("Number of running watch and log sessions"),
		metric.WithUnit("{session}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create kubedeck_active_sessions gauge: %w", err)
	}

	if m.sessionTerminations, err = meter.Int64Counter(
		"kubedeck_session_terminations_total",
		metric.WithDescription("Total number of finished sessions by outcome"),
		metric.WithUnit("{session}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create kubedeck_session_terminations_total counter: %w", err)
	}

	if m.sessionEvents, err = meter.Int64Counter(
		"kubedeck_session_events_total",
		metric.WithDescription("Total number of events emitted by sessions"),
		metric.WithUnit("{event}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create kubedeck_session_events_total counter: %w", err)
	}

	if m.eventClients, err = meter.Int64UpDownCounter(
		"kubedeck_event_stream_clients",
		metric.WithDescription("Number of connected event stream clients"),
		metric.WithUnit("{client}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create kubedeck_event_stream_clients gauge: %w", err)
	}

	if m.registryOperationsTotal, err = meter.Int64Counter(
		"kubedeck_registry_operations_total",
		metric.WithDescription("Total number of cluster registry operations"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create kubedeck_registry_operations_total counter: %w", err)
	}

	if m.registryOperationDuration, err = meter.Float64Histogram(
		"kubedeck_registry_operation_duration_seconds",
		metric.WithDescription("Cluster registry operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, fmt.Errorf("failed to create kubedeck_registry_operation_duration_seconds histogram: %w", err)
	}

	if m.cacheHits, err = meter.Int64Counter(
		"kubedeck_client_cache_hits_total",
		metric.WithDescription("Total number of cluster client cache hits"),
	); err != nil {
		return nil, fmt.Errorf("failed to create kubedeck_client_cache_hits_total counter: %w", err)
	}

	if m.cacheMisses, err = meter.Int64Counter(
		"kubedeck_client_cache_misses_total",
		metric.WithDescription("Total number of cluster client cache misses"),
	); err != nil {
		return nil, fmt.Errorf("failed to create kubedeck_client_cache_misses_total counter: %w", err)
	}

	if m.cacheEvictions, err = meter.Int64Counter(
		"kubedeck_client_cache_evictions_total",
		metric.WithDescription("Total number of cluster client cache evictions"),
	); err != nil {
		return nil, fmt.Errorf("failed to create kubedeck_client_cache_evictions_total counter: %w", err)
	}

	if m.cacheEntries, err = meter.Int64Gauge(
		"kubedeck_client_cache_entries",
		metric.WithDescription("Current number of cached cluster clients"),
	); err != nil {
		return nil, fmt.Errorf("failed to create kubedeck_client_cache_entries gauge: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordToolCall records one MCP tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, duration time.Duration) {
	if m == nil || m.toolCallsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrTool, tool),
		attribute.String(attrStatus, status),
	)
	m.toolCallsTotal.Add(ctx, 1, attrs)
	m.toolCallDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordK8sOperation records a Kubernetes API call.
//
// Only operation and status are recorded unless detailed labels are enabled;
// namespaces are unbounded in large clusters.
func (m *Metrics) RecordK8sOperation(ctx context.Context, operation, resourceType, namespace, status string, duration time.Duration) {
	if m == nil || m.k8sOperationsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels {
		attrs = append(attrs,
			attribute.String(attrResourceType, resourceType),
			attribute.String(attrNamespace, namespace),
		)
	}

	m.k8sOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.k8sOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// SessionStarted increments the active session gauge for kind.
func (m *Metrics) SessionStarted(ctx context.Context, kind string) {
	if m == nil || m.activeSessions == nil {
		return
	}
	m.activeSessions.Add(ctx, 1, metric.WithAttributes(attribute.String(attrKind, kind)))
}

// SessionFinished decrements the active session gauge and counts the outcome.
func (m *Metrics) SessionFinished(ctx context.Context, kind, outcome string) {
	if m == nil || m.activeSessions == nil {
		return
	}
	m.activeSessions.Add(ctx, -1, metric.WithAttributes(attribute.String(attrKind, kind)))
	m.sessionTerminations.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrKind, kind),
		attribute.String(attrOutcome, outcome),
	))
}

// RecordSessionEvent counts one event emitted by a session of kind.
func (m *Metrics) RecordSessionEvent(ctx context.Context, kind string) {
	if m == nil || m.sessionEvents == nil {
		return
	}
	m.sessionEvents.Add(ctx, 1, metric.WithAttributes(attribute.String(attrKind, kind)))
}

// EventClientConnected increments the connected event stream clients gauge.
func (m *Metrics) EventClientConnected(ctx context.Context) {
	if m == nil || m.eventClients == nil {
		return
	}
	m.eventClients.Add(ctx, 1)
}

// EventClientDisconnected decrements the connected event stream clients gauge.
func (m *Metrics) EventClientDisconnected(ctx context.Context) {
	if m == nil || m.eventClients == nil {
		return
	}
	m.eventClients.Add(ctx, -1)
}

// RecordRegistryOperation records one cluster registry operation.
func (m *Metrics) RecordRegistryOperation(ctx context.Context, operation, status string, duration time.Duration) {
	if m == nil || m.registryOperationsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.registryOperationsTotal.Add(ctx, 1, attrs)
	m.registryOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordCacheHit counts a cluster client cache hit.
func (m *Metrics) RecordCacheHit(ctx context.Context) {
	if m == nil || m.cacheHits == nil {
		return
	}
	m.cacheHits.Add(ctx, 1)
}

// RecordCacheMiss counts a cluster client cache miss.
func (m *Metrics) RecordCacheMiss(ctx context.Context) {
	if m == nil || m.cacheMisses == nil {
		return
	}
	m.cacheMisses.Add(ctx, 1)
}

// RecordCacheEviction counts a cache eviction by reason (expired, lru, manual).
func (m *Metrics) RecordCacheEviction(ctx context.Context, reason string) {
	if m == nil || m.cacheEvictions == nil {
		return
	}
	m.cacheEvictions.Add(ctx, 1, metric.WithAttributes(attribute.String(attrReason, reason)))
}

// SetCacheSize records the current number of cached clients.
func (m *Metrics) SetCacheSize(ctx context.Context, size int) {
	if m == nil || m.cacheEntries == nil {
		return
	}
	m.cacheEntries.Record(ctx, int64(size))
}
