package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	SyncItems       *prometheus.CounterVec
	CarrierErrors   *prometheus.CounterVec
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics creates and registers Prometheus metrics. Registration happens
// once; later calls return the same instance so tests can construct services
// freely.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			RequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "fulfillment_requests_total",
					Help: "Total number of requests by operation and status",
				},
				[]string{"operation", "status"},
			),
			RequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "fulfillment_request_duration_seconds",
					Help:    "Request duration in seconds by operation",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"operation"},
			),
			SyncItems: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "fulfillment_sync_items_total",
					Help: "Warehouse sync items by direction and outcome",
				},
				[]string{"direction", "outcome"},
			),
			CarrierErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "fulfillment_carrier_errors_total",
					Help: "Total carrier API errors by error code",
				},
				[]string{"code"},
			),
		}
	})
	return metricsInstance
}

// RecordRequest records a request metric.
func (m *Metrics) RecordRequest(operation, status string, duration float64) {
	m.RequestsTotal.WithLabelValues(operation, status).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(duration)
}

// RecordSyncItem records one warehouse processed during a sync.
func (m *Metrics) RecordSyncItem(direction, outcome string) {
	m.SyncItems.WithLabelValues(direction, outcome).Inc()
}

// RecordCarrierError records a carrier API error metric.
func (m *Metrics) RecordCarrierError(code string) {
	m.CarrierErrors.WithLabelValues(code).Inc()
}
