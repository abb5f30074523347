package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	eventsSavedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "editor_events_saved_total",
			Help: "Editor events accepted by the events endpoint",
		},
		[]string{"type"},
	)

	eventsDuplicateTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "editor_events_duplicate_total",
			Help: "Editor events skipped because their sequence number was already stored",
		},
	)

	eventSaveFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "editor_event_save_failures_total",
			Help: "Event batches that could not be saved",
		},
		[]string{"reason"},
	)

	replayCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replay_cache_requests_total",
			Help: "Replay bundle lookups by cache outcome",
		},
		[]string{"cache_hit"},
	)

	rateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limited_requests_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"action"},
	)

	replayBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "replay_build_duration_seconds",
			Help:    "Time to load and assemble a replay bundle",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)
)

// MetricsMiddleware records request count, latency and in-flight requests.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpRequestsInFlight.Inc()

		// Route pattern keeps session ids out of the label set.
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}

		c.Next()

		httpRequestsInFlight.Dec()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(duration)
	}
}

func RecordEventSaved(eventType string) {
	eventsSavedTotal.WithLabelValues(eventType).Inc()
}

func RecordDuplicateEvents(n int) {
	eventsDuplicateTotal.Add(float64(n))
}

// RecordEventSaveFailure counts a rejected or failed batch. reason is a
// short fixed label such as "not_found" or "db".
func RecordEventSaveFailure(reason string) {
	eventSaveFailuresTotal.WithLabelValues(reason).Inc()
}

func RecordReplayCache(hit bool) {
	replayCacheTotal.WithLabelValues(strconv.FormatBool(hit)).Inc()
}

func RecordRateLimited(action string) {
	rateLimitedTotal.WithLabelValues(action).Inc()
}

func RecordReplayBuild(duration time.Duration) {
	replayBuildDuration.Observe(duration.Seconds())
}
