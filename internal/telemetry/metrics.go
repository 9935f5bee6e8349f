package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	GenerationsEnqueued = prometheus.NewCounter(prometheus.CounterOpts{Name: "clipwatch_generations_enqueued_total", Help: "Generations queued for watching"})
	GenerationsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "clipwatch_generations_finished_total", Help: "Generations that reached a terminal status"}, []string{"status"})
	MetadataFetches     = prometheus.NewCounter(prometheus.CounterOpts{Name: "clipwatch_metadata_fetches_total", Help: "Metadata fetches issued by poller sessions"})
	MetadataFailures    = prometheus.NewCounter(prometheus.CounterOpts{Name: "clipwatch_metadata_fetch_failures_total", Help: "Metadata fetches that failed"})
	FetchLatency        = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "clipwatch_metadata_fetch_seconds", Help: "Metadata fetch latency", Buckets: prometheus.DefBuckets})
	SkippedTicks        = prometheus.NewCounter(prometheus.CounterOpts{Name: "clipwatch_poll_ticks_skipped_total", Help: "Ticks skipped because a fetch was still outstanding"})
	ActiveSessions      = prometheus.NewGauge(prometheus.GaugeOpts{Name: "clipwatch_poll_sessions_active", Help: "Poller sessions currently polling"})
	ArchivedClips       = prometheus.NewCounter(prometheus.CounterOpts{Name: "clipwatch_clips_archived_total", Help: "Clip audio files copied to object storage"})
	RateLimitRejects    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "clipwatch_rate_limit_rejects_total", Help: "Requests rejected by rate limiter"}, []string{"limit"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			GenerationsEnqueued,
			GenerationsFinished,
			MetadataFetches,
			MetadataFailures,
			FetchLatency,
			SkippedTicks,
			ActiveSessions,
			ArchivedClips,
			RateLimitRejects,
		)
	})
	return promhttp.Handler()
}
