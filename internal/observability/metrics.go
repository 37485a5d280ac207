package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// collector.
type Metrics struct {
	FramesReceived prometheus.Counter
	FrameBytes     prometheus.Histogram
	RecordsStored  prometheus.Counter
	RecordsDropped prometheus.Counter
	RecordsByType  *prometheus.CounterVec // label: data_type={json,raw}

	// Session metrics.
	Connects        prometheus.Counter
	ConnectFailures prometheus.Counter
	Reconnects      prometheus.Counter
	SessionUp       prometheus.Gauge

	// Kafka mirror metrics.
	RecordsPublished prometheus.Counter
	PublishErrors    prometheus.Counter

	SnapshotDuration prometheus.Histogram
}

// NewMetrics creates and registers all collector metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.FramesReceived,
		m.FrameBytes,
		m.RecordsStored,
		m.RecordsDropped,
		m.RecordsByType,
		m.Connects,
		m.ConnectFailures,
		m.Reconnects,
		m.SessionUp,
		m.RecordsPublished,
		m.PublishErrors,
		m.SnapshotDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blitz_collector",
			Name:      "frames_received_total",
			Help:      "Total frames read from the feed.",
		}),
		FrameBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "blitz_collector",
			Name:      "frame_bytes",
			Help:      "Size of received frames in bytes.",
			Buckets:   []float64{64, 256, 1024, 4096, 16384, 65536},
		}),
		RecordsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blitz_collector",
			Name:      "records_stored_total",
			Help:      "Total records durably appended to the sink.",
		}),
		RecordsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blitz_collector",
			Name:      "records_dropped_total",
			Help:      "Total records dropped because the sink failed.",
		}),
		RecordsByType: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blitz_collector",
			Name:      "records_by_type_total",
			Help:      "Normalized records by data_type tag.",
		}, []string{"data_type"}),
		Connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blitz_collector",
			Name:      "connects_total",
			Help:      "Successful feed connections including reconnects.",
		}),
		ConnectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blitz_collector",
			Name:      "connect_failures_total",
			Help:      "Failed connection or handshake attempts.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blitz_collector",
			Name:      "reconnects_total",
			Help:      "Receive loops ended by a transport error.",
		}),
		SessionUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "blitz_collector",
			Name:      "session_up",
			Help:      "1 while the session is receiving, 0 otherwise.",
		}),
		RecordsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blitz_collector",
			Name:      "records_published_total",
			Help:      "Records mirrored to the Kafka topic.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blitz_collector",
			Name:      "publish_errors_total",
			Help:      "Failed Kafka publishes.",
		}),
		SnapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "blitz_collector",
			Name:      "snapshot_duration_seconds",
			Help:      "Duration of snapshot writes.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
	}
}
