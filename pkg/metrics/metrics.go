// Package metrics exports pipeline counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/haivivi/voxpipe/pkg/pipeline"
)

const namespace = "voxpipe"

// Metrics holds the metrics updated by the command line front end. The
// pipeline counters themselves are read on every scrape by a Collector.
type Metrics struct {
	// Archive
	SegmentsStored prometheus.Counter
	ArchiveErrors  prometheus.Counter

	// Stream
	StreamClients prometheus.Gauge
	InputLevel    prometheus.Gauge

	// HTTP API
	HTTPRequests *prometheus.CounterVec
}

// New registers a Collector for src and the front end metrics on reg.
func New(reg prometheus.Registerer, src func() pipeline.Stats) *Metrics {
	reg.MustRegister(NewCollector(src))
	f := promauto.With(reg)
	return &Metrics{
		SegmentsStored: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_segments_total",
			Help:      "Total number of recordings stored",
		}),
		ArchiveErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_errors_total",
			Help:      "Total number of recordings that could not be stored",
		}),
		StreamClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Current number of audio stream subscribers",
		}),
		InputLevel: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "input_level_dbfs",
			Help:      "Level of the latest recognizer block in dBFS",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP API requests",
		}, []string{"path", "code", "method"}),
	}
}
