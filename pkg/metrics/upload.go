package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/casmirror/casmirror/pkg/uploader"
)

// uploadMetrics is the Prometheus implementation of uploader.Metrics.
type uploadMetrics struct {
	uploadsTotal   *prometheus.CounterVec
	bytesTotal     prometheus.Counter
	uploadDuration prometheus.Histogram
}

// NewUploaderMetrics creates a Prometheus-backed uploader.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewUploaderMetrics() uploader.Metrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &uploadMetrics{
		uploadsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "casmirror_uploads_total",
				Help: "Upload attempts by terminal status",
			},
			[]string{"status"},
		),
		bytesTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "casmirror_upload_bytes_total",
				Help: "Bytes successfully uploaded to the object store",
			},
		),
		uploadDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "casmirror_upload_duration_seconds",
				Help: "Duration of single-blob upload attempts in seconds",
				Buckets: []float64{
					0.1, // small blobs
					0.5,
					1,
					5,
					15,
					60,  // 1m
					300, // 5m - near the size gate on slow links
				},
			},
		),
	}
}

func (m *uploadMetrics) ObserveUpload(status string, bytes int64, duration time.Duration) {
	m.uploadsTotal.WithLabelValues(status).Inc()
	if status == "uploaded" {
		m.bytesTotal.Add(float64(bytes))
	}
	m.uploadDuration.Observe(duration.Seconds())
}
