package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/casmirror/casmirror/pkg/watch"
)

// watchMetrics is the Prometheus implementation of watch.Metrics.
type watchMetrics struct {
	eventsTotal *prometheus.CounterVec
	queueDepth  prometheus.Gauge
}

// NewWatcherMetrics creates a Prometheus-backed watch.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewWatcherMetrics() watch.Metrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &watchMetrics{
		eventsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "casmirror_watcher_events_total",
				Help: "Filesystem events queued by the watcher, by kind",
			},
			[]string{"kind"},
		),
		queueDepth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "casmirror_watch_queue_depth",
				Help: "Events currently waiting out the debounce window",
			},
		),
	}
}

func (m *watchMetrics) RecordEvent(kind string) {
	m.eventsTotal.WithLabelValues(kind).Inc()
}

func (m *watchMetrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}
