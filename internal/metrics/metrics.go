// Package metrics exposes Prometheus instrumentation for sync passes and
// summarization. Everything hangs off one registry so tests can construct
// an isolated instance.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	SyncPasses    prometheus.Counter
	SyncDuration  prometheus.Histogram
	EventsFetched prometheus.Counter
	// Annotations counts annotator outcomes by reason, "transcript" for
	// positive hits.
	Annotations  *prometheus.CounterVec
	CacheUpserts prometheus.Counter
	// Summaries counts terminal summarization outcomes by status.
	Summaries           *prometheus.CounterVec
	StaleLocksRecovered prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		SyncPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recap_sync_passes_total",
			Help: "Completed sync passes.",
		}),
		SyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "recap_sync_duration_seconds",
			Help:    "Wall time of one sync pass.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		EventsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recap_events_fetched_total",
			Help: "Calendar events fetched from the platform.",
		}),
		Annotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recap_annotations_total",
			Help: "Annotator outcomes by reason.",
		}, []string{"reason"}),
		CacheUpserts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recap_cache_upserts_total",
			Help: "Cached event rows written.",
		}),
		Summaries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recap_summaries_total",
			Help: "Terminal summarization outcomes by status.",
		}, []string{"status"}),
		StaleLocksRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recap_stale_locks_recovered_total",
			Help: "Queued summarizations reclaimed after going stale.",
		}),
	}
	reg.MustRegister(
		m.SyncPasses, m.SyncDuration, m.EventsFetched, m.Annotations,
		m.CacheUpserts, m.Summaries, m.StaleLocksRecovered,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
