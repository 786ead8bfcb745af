package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quake_alert"

// Metrics holds the Prometheus counters, histograms, and gauges for the alert pipeline.
type Metrics struct {
	// Feed metrics.
	FeedRequests      *prometheus.CounterVec // labels: outcome={success,error}
	FeedAttempts      prometheus.Counter
	FeedDuration      prometheus.Histogram
	CandidatesDropped prometheus.Counter

	// Store metrics.
	EventsDuplicate prometheus.Counter
	EventsPersisted prometheus.Counter
	PersistErrors   prometheus.Counter
	SeenCache       *prometheus.CounterVec // labels: result={hit,miss}
	EventsPublished *prometheus.CounterVec // labels: outcome={success,error}

	// Dispatch metrics.
	Notifications *prometheus.CounterVec // labels: outcome={delivered,invalid_token,transient_failure,auth_failure}
	TokensCleared prometheus.Counter

	// Run metrics.
	Runs                 *prometheus.CounterVec   // labels: kind={ingest,renotify}, outcome={success,failed}
	RunDuration          *prometheus.HistogramVec // labels: kind={ingest,renotify}
	LastSuccessfulIngest prometheus.Gauge
	SchedulerRunning     prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FeedRequests,
		m.FeedAttempts,
		m.FeedDuration,
		m.CandidatesDropped,
		m.EventsDuplicate,
		m.EventsPersisted,
		m.PersistErrors,
		m.SeenCache,
		m.EventsPublished,
		m.Notifications,
		m.TokensCleared,
		m.Runs,
		m.RunDuration,
		m.LastSuccessfulIngest,
		m.SchedulerRunning,
	)
	return m
}

// NewLocalMetrics creates Metrics that are never exported, for one-shot
// commands that exit before anything could scrape them.
func NewLocalMetrics() *Metrics {
	return newMetrics()
}

// NewMetricsForTesting creates Metrics without registering them to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FeedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_requests_total",
			Help:      "Feed fetches by final outcome after retries.",
		}, []string{"outcome"}),
		FeedAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_attempts_total",
			Help:      "Individual HTTP attempts against the feed, including retries.",
		}),
		FeedDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_fetch_duration_seconds",
			Help:      "Duration of a complete feed fetch including retries.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		CandidatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_dropped_total",
			Help:      "Feed features dropped for missing required fields.",
		}),
		EventsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_duplicate_total",
			Help:      "Feed events skipped because they were already stored.",
		}),
		EventsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_persisted_total",
			Help:      "New events written to the store.",
		}),
		PersistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_errors_total",
			Help:      "Failed batch writes.",
		}),
		SeenCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "seen_cache_total",
			Help:      "Seen-ID cache lookups by result.",
		}, []string{"result"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events published to the event stream by outcome.",
		}, []string{"outcome"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification dispatches by outcome.",
		}, []string{"outcome"}),
		TokensCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_cleared_total",
			Help:      "Delivery tokens cleared after an invalid-token response.",
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by kind and outcome.",
		}, []string{"kind", "outcome"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete pipeline run.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),
		LastSuccessfulIngest: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_successful_ingest_timestamp_seconds",
			Help:      "Unix time of the last ingest run that persisted successfully.",
		}),
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_running",
			Help:      "1 when the ingest scheduler is active, 0 when shut down.",
		}),
	}
}
