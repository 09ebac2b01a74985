package instrumentation

import (
	"os"
	"strconv"
	"time"
)

// Config holds the configuration for OpenTelemetry instrumentation.
type Config struct {
	// ServiceName is the name of the service (default: kubedeck)
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Enabled determines if instrumentation is active (default: false for zero overhead)
	// Set to true via INSTRUMENTATION_ENABLED=true to enable metrics and tracing
	Enabled bool

	// MetricsExporter specifies the metrics exporter type
	// Options: "prometheus", "otlp", "stdout" (default: "prometheus")
	MetricsExporter string

	// TracingExporter specifies the tracing exporter type
	// Options: "otlp", "stdout", "none" (default: "none")
	TracingExporter string

	// OTLPEndpoint is the OTLP collector endpoint
	// Example: "http://localhost:4318"
	OTLPEndpoint string

	// OTLPInsecure controls whether to use insecure HTTP for OTLP export.
	// Only meant for local collectors.
	OTLPInsecure bool

	// TraceSamplingRate is the sampling rate for traces (0.0 to 1.0, default: 0.1)
	TraceSamplingRate float64

	// DetailedLabels adds namespace and resource labels to Kubernetes
	// operation metrics.
	DetailedLabels bool

	// MetricExportInterval is the push interval for the otlp and stdout
	// metrics exporters (default: 10s)
	MetricExportInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults based on environment variables.
func DefaultConfig() Config {
	return Config{
		ServiceName:          getEnvOrDefault("OTEL_SERVICE_NAME", "kubedeck"),
		ServiceVersion:       "unknown",
		Enabled:              getEnvBoolOrDefault("INSTRUMENTATION_ENABLED", false),
		MetricsExporter:      getEnvOrDefault("METRICS_EXPORTER", ExporterPrometheus),
		TracingExporter:      getEnvOrDefault("TRACING_EXPORTER", ExporterNone),
		OTLPEndpoint:         getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure:         getEnvBoolOrDefault("OTEL_EXPORTER_OTLP_INSECURE", false),
		TraceSamplingRate:    getEnvFloatOrDefault("OTEL_TRACES_SAMPLER_ARG", 0.1),
		DetailedLabels:       getEnvBoolOrDefault("METRICS_DETAILED_LABELS", false),
		MetricExportInterval: DefaultMetricInterval,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

// Exporter names.
const (
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"
)

// Constants for metric label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	// Session kinds
	SessionKindPodWatch = "pod_watch"
	SessionKindLogTail  = "log_tail"

	// Session outcomes
	OutcomeEnded     = "ended"
	OutcomeCancelled = "cancelled"
	OutcomeErrored   = "errored"

	// Kubernetes operation types
	OperationGet    = "get"
	OperationList   = "list"
	OperationDelete = "delete"
	OperationLogs   = "logs"
	OperationWatch  = "watch"

	DefaultMetricInterval = 10 * time.Second
)
