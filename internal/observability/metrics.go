package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpRequestsTotal     *prometheus.CounterVec
	httpLatencySeconds    *prometheus.HistogramVec
	httpErrorsTotal       *prometheus.CounterVec
	deliveriesTotal       *prometheus.CounterVec
	deliveryBatchSeconds  prometheus.Histogram
	archiveBytesHistogram prometheus.Histogram
)

// RegisterMetrics initialises the Prometheus collectors for the API and the
// delivery batch.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classdesk_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "classdesk_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classdesk_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		deliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classdesk_deliveries_total",
			Help: "Assignment delivery outcomes by result.",
		}, []string{"result"})

		deliveryBatchSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "classdesk_delivery_batch_seconds",
			Help:    "Duration of a full delivery batch run.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		})

		archiveBytesHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "classdesk_archive_bytes",
			Help:    "Size distribution of generated submission archives.",
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 8),
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			deliveriesTotal,
			deliveryBatchSeconds,
			archiveBytesHistogram,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// Deliveries exposes the delivery outcome counter. Result labels are
// "delivered", "failed" and "skipped".
func Deliveries() *prometheus.CounterVec {
	RegisterMetrics()
	return deliveriesTotal
}

// DeliveryBatchDuration exposes the batch run duration histogram.
func DeliveryBatchDuration() prometheus.Histogram {
	RegisterMetrics()
	return deliveryBatchSeconds
}

// ArchiveBytes exposes the archive size histogram.
func ArchiveBytes() prometheus.Histogram {
	RegisterMetrics()
	return archiveBytesHistogram
}
