package instrumentation

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T, detailed bool) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(provider.Meter("test"), detailed)
	if err != nil {
		t.Fatalf("expected no error creating metrics, got %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumFor(t *testing.T, data metricdata.Aggregation, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected Sum[int64], got %T", data)
	}
	want := attribute.NewSet(attrs...)
	var total int64
	for _, dp := range sum.DataPoints {
		if len(attrs) == 0 || dp.Attributes.Equals(&want) {
			total += dp.Value
		}
	}
	return total
}

func TestNewMetrics(t *testing.T) {
	m, _ := newTestMetrics(t, false)

	if m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		t.Error("expected HTTP metrics to be initialized")
	}
	if m.toolCallsTotal == nil || m.toolCallDuration == nil {
		t.Error("expected tool call metrics to be initialized")
	}
	if m.activeSessions == nil || m.sessionTerminations == nil || m.sessionEvents == nil {
		t.Error("expected session metrics to be initialized")
	}
	if m.registryOperationsTotal == nil || m.registryOperationDuration == nil {
		t.Error("expected registry metrics to be initialized")
	}
	if m.cacheHits == nil || m.cacheMisses == nil || m.cacheEvictions == nil || m.cacheEntries == nil {
		t.Error("expected cache metrics to be initialized")
	}
	if m.detailedLabels {
		t.Error("expected detailedLabels to be false")
	}
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	// None of these may panic.
	m.RecordHTTPRequest(ctx, "GET", "/", 200, time.Millisecond)
	m.RecordToolCall(ctx, "list_pods", StatusSuccess, time.Millisecond)
	m.RecordK8sOperation(ctx, OperationList, "pods", "default", StatusSuccess, time.Millisecond)
	m.SessionStarted(ctx, SessionKindPodWatch)
	m.SessionFinished(ctx, SessionKindPodWatch, OutcomeEnded)
	m.RecordSessionEvent(ctx, SessionKindLogTail)
	m.EventClientConnected(ctx)
	m.EventClientDisconnected(ctx)
	m.RecordRegistryOperation(ctx, "add", StatusSuccess, time.Millisecond)
	m.RecordCacheHit(ctx)
	m.RecordCacheMiss(ctx)
	m.RecordCacheEviction(ctx, "lru")
	m.SetCacheSize(ctx, 3)
}

func TestMetrics_Sessions(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	ctx := context.Background()

	m.SessionStarted(ctx, SessionKindPodWatch)
	m.SessionStarted(ctx, SessionKindPodWatch)
	m.SessionStarted(ctx, SessionKindLogTail)
	m.SessionFinished(ctx, SessionKindPodWatch, OutcomeCancelled)
	m.RecordSessionEvent(ctx, SessionKindLogTail)
	m.RecordSessionEvent(ctx, SessionKindLogTail)

	data := collect(t, reader)

	active := data["kubedeck_active_sessions"]
	if got := sumFor(t, active, attribute.String(attrKind, SessionKindPodWatch)); got != 1 {
		t.Errorf("expected 1 active pod watch, got %d", got)
	}
	if got := sumFor(t, active, attribute.String(attrKind, SessionKindLogTail)); got != 1 {
		t.Errorf("expected 1 active log tail, got %d", got)
	}

	terminations := data["kubedeck_session_terminations_total"]
	if got := sumFor(t, terminations,
		attribute.String(attrKind, SessionKindPodWatch),
		attribute.String(attrOutcome, OutcomeCancelled),
	); got != 1 {
		t.Errorf("expected 1 cancelled pod watch, got %d", got)
	}

	if got := sumFor(t, data["kubedeck_session_events_total"]); got != 2 {
		t.Errorf("expected 2 session events, got %d", got)
	}
}

func TestMetrics_RecordK8sOperationLabels(t *testing.T) {
	tests := []struct {
		name     string
		detailed bool
		attrs    []attribute.KeyValue
	}{
		{
			name:     "low cardinality",
			detailed: false,
			attrs: []attribute.KeyValue{
				attribute.String(attrOperation, OperationList),
				attribute.String(attrStatus, StatusSuccess),
			},
		},
		{
			name:     "detailed",
			detailed: true,
			attrs: []attribute.KeyValue{
				attribute.String(attrOperation, OperationList),
				attribute.String(attrStatus, StatusSuccess),
				attribute.String(attrResourceType, "pods"),
				attribute.String(attrNamespace, "kube-system"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, reader := newTestMetrics(t, tt.detailed)
			m.RecordK8sOperation(context.Background(), OperationList, "pods", "kube-system", StatusSuccess, time.Second)

			data := collect(t, reader)
			if got := sumFor(t, data["kubedeck_kubernetes_operations_total"], tt.attrs...); got != 1 {
				t.Errorf("expected 1 operation with attrs %v, got %d", tt.attrs, got)
			}
		})
	}
}

func TestMetrics_RegistryAndTools(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	ctx := context.Background()

	m.RecordRegistryOperation(ctx, "add", StatusSuccess, time.Millisecond)
	m.RecordRegistryOperation(ctx, "add", StatusError, time.Millisecond)
	m.RecordToolCall(ctx, "list_clusters", StatusSuccess, time.Millisecond)
	m.RecordHTTPRequest(ctx, "GET", "/events", 101, time.Millisecond)

	data := collect(t, reader)

	if got := sumFor(t, data["kubedeck_registry_operations_total"],
		attribute.String(attrOperation, "add"),
		attribute.String(attrStatus, StatusError),
	); got != 1 {
		t.Errorf("expected 1 failed add, got %d", got)
	}
	if got := sumFor(t, data["kubedeck_tool_calls_total"], attribute.String(attrTool, "list_clusters"), attribute.String(attrStatus, StatusSuccess)); got != 1 {
		t.Errorf("expected 1 list_clusters call, got %d", got)
	}
	if got := sumFor(t, data["http_requests_total"],
		attribute.String(attrMethod, "GET"),
		attribute.String(attrPath, "/events"),
		attribute.String(attrStatus, "101"),
	); got != 1 {
		t.Errorf("expected 1 http request, got %d", got)
	}
}

func TestMetrics_Cache(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	ctx := context.Background()

	m.RecordCacheHit(ctx)
	m.RecordCacheHit(ctx)
	m.RecordCacheMiss(ctx)
	m.RecordCacheEviction(ctx, "lru")
	m.SetCacheSize(ctx, 5)
	m.SetCacheSize(ctx, 4)

	data := collect(t, reader)

	if got := sumFor(t, data["kubedeck_client_cache_hits_total"]); got != 2 {
		t.Errorf("expected 2 hits, got %d", got)
	}
	if got := sumFor(t, data["kubedeck_client_cache_misses_total"]); got != 1 {
		t.Errorf("expected 1 miss, got %d", got)
	}
	if got := sumFor(t, data["kubedeck_client_cache_evictions_total"], attribute.String(attrReason, "lru")); got != 1 {
		t.Errorf("expected 1 lru eviction, got %d", got)
	}

	gauge, ok := data["kubedeck_client_cache_entries"].(metricdata.Gauge[int64])
	if !ok {
		t.Fatalf("expected Gauge[int64], got %T", data["kubedeck_client_cache_entries"])
	}
	if len(gauge.DataPoints) != 1 || gauge.DataPoints[0].Value != 4 {
		t.Errorf("expected cache size 4, got %+v", gauge.DataPoints)
	}
}

func TestMetrics_Concurrent(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordSessionEvent(ctx, SessionKindPodWatch)
		}()
	}
	wg.Wait()

	if got := sumFor(t, collect(t, reader)["kubedeck_session_events_total"]); got != 50 {
		t.Errorf("expected 50 events, got %d", got)
	}
}
