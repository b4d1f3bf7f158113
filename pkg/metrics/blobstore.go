package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/casmirror/casmirror/pkg/blobstore"
)

// blobMetrics is the Prometheus implementation of blobstore.Metrics.
type blobMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTotal        *prometheus.CounterVec
}

// NewBlobStoreMetrics creates a Prometheus-backed blobstore.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called); the
// store treats a nil collector as disabled.
func NewBlobStoreMetrics() blobstore.Metrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &blobMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "casmirror_s3_operations_total",
				Help: "Object store operations by type and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "casmirror_s3_operation_duration_milliseconds",
				Help: "Duration of object store operations in milliseconds",
				Buckets: []float64{
					10,
					50,
					100,
					500,
					1000,  // 1s
					5000,  // 5s
					30000, // 30s - large blobs on slow links
				},
			},
			[]string{"operation"},
		),
		bytesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "casmirror_s3_bytes_total",
				Help: "Bytes transferred to the object store by operation",
			},
			[]string{"operation"},
		),
	}
}

func (m *blobMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(float64(duration.Milliseconds()))
}

func (m *blobMetrics) RecordBytes(operation string, bytes int64) {
	m.bytesTotal.WithLabelValues(operation).Add(float64(bytes))
}
