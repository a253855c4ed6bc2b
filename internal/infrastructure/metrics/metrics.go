package metrics

import (
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "jan"
	subsystem = "envchat"
)

// envchat-api metrics
var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"method", "endpoint", "status"},
	)

	// Completion calls
	CompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "completions_total",
			Help:      "Total completion calls by mode and outcome",
		},
		[]string{"stream", "grounded", "outcome"},
	)

	CompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "completion_duration_seconds",
			Help:      "Provider completion duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"stream"},
	)

	StreamFragments = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stream_fragments",
			Help:      "Number of records written per streamed response",
			Buckets:   []float64{1, 10, 50, 100, 250, 500, 1000},
		},
	)

	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_streams",
			Help:      "Currently active streaming responses",
		},
	)

	ProviderErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "provider_errors_total",
			Help:      "Total provider call failures",
		},
		[]string{"status"},
	)

	// History
	HistoryOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "history_operations_total",
			Help:      "Total chat history operations",
		},
		[]string{"operation", "outcome"},
	)

	HistoryHealth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "history_health",
			Help:      "Chat history store health (1=healthy, 0=unhealthy)",
		},
	)

	// Environment cache
	EnvironmentCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "environment_cache_total",
			Help:      "Environment cache lookups by result",
		},
		[]string{"result"},
	)

	// Auth requests
	AuthRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "auth_requests_total",
			Help:      "Total authentication attempts",
		},
		[]string{"auth_type", "status"},
	)
)

// RecordRequest records one HTTP request.
func RecordRequest(method, endpoint string, status int, seconds float64) {
	endpoint = NormalizeEndpoint(endpoint)
	code := strconv.Itoa(status)
	RequestsTotal.WithLabelValues(method, endpoint, code).Inc()
	RequestDuration.WithLabelValues(method, endpoint, code).Observe(seconds)
}

// RecordCompletion records one provider call.
func RecordCompletion(stream, grounded bool, err error, seconds float64) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	CompletionsTotal.WithLabelValues(strconv.FormatBool(stream), strconv.FormatBool(grounded), outcome).Inc()
	CompletionDuration.WithLabelValues(strconv.FormatBool(stream)).Observe(seconds)
}

// RecordProviderError counts a provider failure by upstream status, "none" when
// the call never got a response.
func RecordProviderError(status int) {
	label := "none"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	ProviderErrorsTotal.WithLabelValues(label).Inc()
}

// RecordHistoryOperation counts a history operation.
func RecordHistoryOperation(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	HistoryOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// SetHistoryHealth publishes the latest history probe result.
func SetHistoryHealth(ok bool) {
	if ok {
		HistoryHealth.Set(1)
		return
	}
	HistoryHealth.Set(0)
}

// RecordCacheLookup counts an environment cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		EnvironmentCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	EnvironmentCacheTotal.WithLabelValues("miss").Inc()
}

// RecordAuth counts an authentication attempt.
func RecordAuth(authType string, ok bool) {
	status := "success"
	if !ok {
		status = "failure"
	}
	AuthRequestsTotal.WithLabelValues(authType, status).Inc()
}

// NormalizeEndpoint keeps label cardinality bounded. Gin route templates pass
// through unchanged; unmatched paths collapse to "unmatched".
func NormalizeEndpoint(path string) string {
	if path == "" {
		return "unmatched"
	}
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}
	return path
}
