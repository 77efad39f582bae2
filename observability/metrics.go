package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type marketMetrics struct {
	requests    *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	settlements *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

var (
	marketMetricsOnce sync.Once
	marketRegistry    *marketMetrics
)

// MarketMetrics returns the lazily-initialised metrics registry used to
// record market RPC activity and settlements.
func MarketMetrics() *marketMetrics {
	marketMetricsOnce.Do(func() {
		marketRegistry = &marketMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "editionmarket",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "editionmarket",
				Subsystem: "market",
				Name:      "rejections_total",
				Help:      "Requests rejected by a precondition gate, by reason.",
			}, []string{"method", "reason"}),
			settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "editionmarket",
				Subsystem: "market",
				Name:      "settlements_total",
				Help:      "Completed settlements segmented by sale flow.",
			}, []string{"flow"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "editionmarket",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			marketRegistry.requests,
			marketRegistry.rejections,
			marketRegistry.settlements,
			marketRegistry.latency,
		)
	})
	return marketRegistry
}

// Observe records the outcome of an RPC request.
func (m *marketMetrics) Observe(method, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// Reject records a precondition rejection.
func (m *marketMetrics) Reject(method, reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(method, reason).Inc()
}

// Settle records a completed settlement.
func (m *marketMetrics) Settle(flow string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(flow).Inc()
}
