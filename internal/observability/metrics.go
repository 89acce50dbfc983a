// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Provider metrics
	ProviderRequests *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec

	// Discovery metrics
	DiscoveryCycles    *prometheus.CounterVec
	DiscoveryDuration  prometheus.Histogram
	CandidatesFound    *prometheus.CounterVec
	TokensUpdated      *prometheus.CounterVec
	ScoresComputed     *prometheus.CounterVec
	LastSuccessfulScan prometheus.Gauge

	// Alert metrics
	AlertsCreated prometheus.Counter
	AlertsSent    *prometheus.CounterVec

	// Cache metrics
	CacheLookups *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
	DBRetries       *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "phoenix_scanner"
	}

	return &Metrics{
		ProviderRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Total number of market data provider requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		ProviderLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Market data provider request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),

		DiscoveryCycles: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "cycles_total",
			Help:      "Total number of discovery cycles by status",
		}, []string{"status"}),
		DiscoveryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "cycle_duration_seconds",
			Help:      "Discovery cycle duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		CandidatesFound: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "candidates_found_total",
			Help:      "Total number of phoenix candidates found by chain",
		}, []string{"chain"}),
		TokensUpdated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "tokens_updated_total",
			Help:      "Total number of token update attempts by status",
		}, []string{"status"}),
		ScoresComputed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "brs",
			Name:      "scores_computed_total",
			Help:      "Total number of BRS scores computed by variant",
		}, []string{"variant"}),
		LastSuccessfulScan: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_cycle_timestamp",
			Help:      "Unix timestamp of last successful discovery cycle",
		}),

		AlertsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "created_total",
			Help:      "Total number of alerts created",
		}),
		AlertsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "sent_total",
			Help:      "Total number of alert deliveries by status",
		}, []string{"status"}),

		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total number of snapshot cache lookups by result",
		}, []string{"result"}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
		DBRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "write_retries_total",
			Help:      "Total number of retried transactions after write conflicts",
		}, []string{"operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordProviderRequest records one provider call.
func RecordProviderRequest(endpoint, outcome string, seconds float64) {
	DefaultMetrics.ProviderRequests.WithLabelValues(endpoint, outcome).Inc()
	DefaultMetrics.ProviderLatency.WithLabelValues(endpoint).Observe(seconds)
}

// RecordCandidatesFound adds to the candidates counter.
func RecordCandidatesFound(chain string, n int) {
	DefaultMetrics.CandidatesFound.WithLabelValues(chain).Add(float64(n))
}

// RecordDiscoveryCycle records a finished discovery cycle.
func RecordDiscoveryCycle(status string, durationSeconds float64) {
	DefaultMetrics.DiscoveryCycles.WithLabelValues(status).Inc()
	DefaultMetrics.DiscoveryDuration.Observe(durationSeconds)
	if status == "success" {
		DefaultMetrics.LastSuccessfulScan.Set(float64(time.Now().Unix()))
	}
}

// RecordTokenUpdate records a token update attempt.
func RecordTokenUpdate(status string) {
	DefaultMetrics.TokensUpdated.WithLabelValues(status).Inc()
}

// RecordScore records a computed score.
func RecordScore(variant string) {
	DefaultMetrics.ScoresComputed.WithLabelValues(variant).Inc()
}

// RecordAlertCreated increments the alerts created counter.
func RecordAlertCreated() {
	DefaultMetrics.AlertsCreated.Inc()
}

// RecordAlertSent records an alert delivery attempt.
func RecordAlertSent(status string) {
	DefaultMetrics.AlertsSent.WithLabelValues(status).Inc()
}

// RecordCacheLookup records a snapshot cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	DefaultMetrics.CacheLookups.WithLabelValues(result).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordDBRetry counts a retried write transaction.
func RecordDBRetry(operation string) {
	DefaultMetrics.DBRetries.WithLabelValues(operation).Inc()
}
