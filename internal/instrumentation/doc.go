// Package instrumentation provides OpenTelemetry metrics and tracing for
// kubedeck.
//
// # Metrics
//
// Server:
//   - http_requests_total, http_request_duration_seconds
//   - kubedeck_tool_calls_total, kubedeck_tool_call_duration_seconds
//
// Sessions:
//   - kubedeck_active_sessions: running pod watches and log tails by kind
//   - kubedeck_session_terminations_total: finished sessions by kind and outcome
//   - kubedeck_session_events_total: events emitted by sessions
//   - kubedeck_event_stream_clients: connected websocket clients
//
// Registry and clients:
//   - kubedeck_registry_operations_total, kubedeck_registry_operation_duration_seconds
//   - kubedeck_kubernetes_operations_total, kubedeck_kubernetes_operation_duration_seconds
//   - kubedeck_client_cache_{hits,misses,evictions}_total, kubedeck_client_cache_entries
//
// Namespace and resource labels on Kubernetes operation metrics are only
// recorded when DetailedLabels is set.
//
// # Configuration
//
// Instrumentation is configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: false)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: kubedeck)
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordToolCall(ctx, "list_pods", instrumentation.StatusSuccess, time.Since(start))
package instrumentation
