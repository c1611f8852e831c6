// Package metrics provides Prometheus metrics for the handover engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	SummariesGenerated  prometheus.Counter
	SummariesFailed     prometheus.Counter
	CacheHits           prometheus.Counter
	CacheMisses         prometheus.Counter
	StaleServed         prometheus.Counter
	ExchangeFilesParsed prometheus.Counter
	ParseFailures       prometheus.Counter
	FetchFailures       *prometheus.CounterVec
	LLMDuration         prometheus.Histogram
	OutboxPending       prometheus.Gauge
	EventsPublished     prometheus.Counter
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates and registers all metrics
func New() *Metrics {
	m := &Metrics{
		SummariesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "handover_summaries_generated_total",
			Help: "Total clinical summaries generated",
		}),
		SummariesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "handover_summaries_failed_total",
			Help: "Total summary generations that produced an error-shaped summary",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "handover_summary_cache_hits_total",
			Help: "Total summary cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "handover_summary_cache_misses_total",
			Help: "Total summary cache misses",
		}),
		StaleServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "handover_summary_cache_stale_served_total",
			Help: "Total cache hits served past the staleness threshold",
		}),
		ExchangeFilesParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "handover_exchange_files_parsed_total",
			Help: "Total GDT/BDT exchange files parsed",
		}),
		ParseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "handover_exchange_parse_failures_total",
			Help: "Total exchange files that failed to parse",
		}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "handover_aggregation_fetch_failures_total",
			Help: "Category fetches degraded to empty collections",
		}, []string{"category"}),
		LLMDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "handover_llm_request_duration_seconds",
			Help:    "Language-model request duration",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 40},
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "handover_outbox_pending_entries",
			Help: "Pending summary-event outbox entries",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "handover_events_published_total",
			Help: "Total summary events published to Redpanda",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	prometheus.MustRegister(
		m.SummariesGenerated,
		m.SummariesFailed,
		m.CacheHits,
		m.CacheMisses,
		m.StaleServed,
		m.ExchangeFilesParsed,
		m.ParseFailures,
		m.FetchFailures,
		m.LLMDuration,
		m.OutboxPending,
		m.EventsPublished,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
