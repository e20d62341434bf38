package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/insider-one/mailcourier/internal/domain"
)

// Metrics holds Prometheus metrics
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	dispatchesTotal     *prometheus.CounterVec
	dispatchDuration    *prometheus.HistogramVec
	quotaExhausted      *prometheus.CounterVec
	deliveriesQueued    prometheus.Gauge
}

// NewMetrics creates new Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailcourier_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailcourier_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		dispatchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailcourier_dispatches_total",
				Help: "Total number of dispatch attempts by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		dispatchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailcourier_dispatch_duration_seconds",
				Help:    "Dispatch attempt duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"provider"},
		),
		quotaExhausted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailcourier_quota_exhausted_total",
				Help: "Total number of dispatch attempts refused for an exhausted daily quota",
			},
			[]string{"provider"},
		),
		deliveriesQueued: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailcourier_deliveries_queued",
				Help: "Number of dispatch jobs currently in the queue",
			},
		),
	}
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDispatch records one dispatch attempt
func (m *Metrics) RecordDispatch(provider string, outcome domain.OutcomeStatus, duration time.Duration) {
	m.dispatchesTotal.WithLabelValues(provider, string(outcome)).Inc()
	m.dispatchDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordQuotaExhausted records a dispatch refused for an exhausted quota
func (m *Metrics) RecordQuotaExhausted(provider string) {
	m.quotaExhausted.WithLabelValues(provider).Inc()
}

// SetQueueDepth sets the current queue depth gauge
func (m *Metrics) SetQueueDepth(depth float64) {
	m.deliveriesQueued.Set(depth)
}

// MetricsHandler handles metrics endpoints
type MetricsHandler struct {
	metrics *Metrics
	queue   domain.Queue
}

// NewMetricsHandler creates a new MetricsHandler
func NewMetricsHandler(metrics *Metrics, queue domain.Queue) *MetricsHandler {
	return &MetricsHandler{
		metrics: metrics,
		queue:   queue,
	}
}

// Handler returns the Prometheus HTTP handler
func (h *MetricsHandler) Handler() http.Handler {
	return promhttp.Handler()
}

// RealtimeMetrics handles real-time metrics requests
// @Summary Real-time metrics
// @Description Get the current dispatch queue depth
// @Tags metrics
// @Produce json
// @Success 200 {object} map[string]int64
// @Failure 500 {object} Response
// @Router /metrics/realtime [get]
func (h *MetricsHandler) RealtimeMetrics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	depth, err := h.queue.Depth(ctx)
	if err != nil {
		JSONError(w, http.StatusInternalServerError, "METRICS_ERROR", "Failed to get queue depth", nil)
		return
	}

	h.metrics.SetQueueDepth(float64(depth))

	JSON(w, http.StatusOK, map[string]int64{
		"queue_depth": depth,
	})
}
