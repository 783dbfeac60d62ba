package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/haivivi/voxpipe/pkg/amp"
	"github.com/haivivi/voxpipe/pkg/loopback"
	"github.com/haivivi/voxpipe/pkg/pipeline"
)

type metric struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(*pipeline.Stats) (float64, bool)
}

func counter(name, help string, v func(*pipeline.Stats) uint64) metric {
	return metric{
		desc: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil),
		kind: prometheus.CounterValue,
		value: func(s *pipeline.Stats) (float64, bool) {
			return float64(v(s)), true
		},
	}
}

func gauge(name, help string, v func(*pipeline.Stats) float64) metric {
	return metric{
		desc: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil),
		kind: prometheus.GaugeValue,
		value: func(s *pipeline.Stats) (float64, bool) {
			return v(s), true
		},
	}
}

func ringMetric(m metric, v func(*loopback.RingStats) float64) metric {
	m.value = func(s *pipeline.Stats) (float64, bool) {
		if s.Ring == nil {
			return 0, false
		}
		return v(s.Ring), true
	}
	return m
}

func directMetric(m metric, v func(*loopback.DirectStats) float64) metric {
	m.value = func(s *pipeline.Stats) (float64, bool) {
		if s.Direct == nil {
			return 0, false
		}
		return v(s.Direct), true
	}
	return m
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Collector reads a pipeline snapshot on every scrape.
type Collector struct {
	src     func() pipeline.Stats
	metrics []metric
}

// NewCollector returns a Collector over src.
func NewCollector(src func() pipeline.Stats) *Collector {
	return &Collector{
		src: src,
		metrics: []metric{
			gauge("mics_on", "Whether capture is running", func(s *pipeline.Stats) float64 {
				return boolValue(s.Orchestrator.MicsOn)
			}),
			gauge("muted", "Whether the device is muted", func(s *pipeline.Stats) float64 {
				return boolValue(s.Settings.Muted)
			}),
			gauge("loopback_enabled", "Whether the echo reference is enabled", func(s *pipeline.Stats) float64 {
				return boolValue(s.Orchestrator.Loopback)
			}),
			counter("capture_halves_total", "Capture halves handed to the processor",
				func(s *pipeline.Stats) uint64 { return s.Orchestrator.Halves }),
			counter("capture_timeouts_total", "Capture event waits that timed out",
				func(s *pipeline.Stats) uint64 { return s.Orchestrator.Timeouts }),
			counter("capture_restarts_total", "Paired capture and loopback restarts",
				func(s *pipeline.Stats) uint64 { return s.Orchestrator.Restarts }),
			counter("pdm_errors_total", "Microphone DMA errors",
				func(s *pipeline.Stats) uint64 { return s.Orchestrator.PDMErrors }),
			counter("loopback_faults_total", "Loopback receive faults",
				func(s *pipeline.Stats) uint64 { return s.Orchestrator.LoopbackFaults }),
			counter("frame_errors_total", "Capture halves that could not be decimated",
				func(s *pipeline.Stats) uint64 { return s.Orchestrator.FrameErrors }),
			counter("capture_late_total", "Capture halves dropped for want of a free frame",
				func(s *pipeline.Stats) uint64 { return s.Orchestrator.CaptureLate }),
			counter("notify_overruns_total", "Ready notifications that found the processor busy",
				func(s *pipeline.Stats) uint64 { return s.Orchestrator.NotifyOverruns }),

			counter("blocks_total", "Recognizer blocks produced",
				func(s *pipeline.Stats) uint64 { return s.Processor.Blocks }),
			counter("blocks_dropped_total", "Recognizer blocks dropped on a full queue",
				func(s *pipeline.Stats) uint64 { return s.Processor.Dropped }),
			counter("afe_errors_total", "Acoustic front end failures",
				func(s *pipeline.Stats) uint64 { return s.Processor.AFEErrors }),
			gauge("queue_blocks", "Recognizer blocks waiting in the queue", func(s *pipeline.Stats) float64 {
				return float64(s.Processor.Queued)
			}),
			gauge("queue_high_water", "Most recognizer blocks ever queued", func(s *pipeline.Stats) float64 {
				return float64(s.Processor.HighWater)
			}),

			gauge("volume", "Playback volume", func(s *pipeline.Stats) float64 {
				return float64(s.Amplifier.Volume)
			}),
			gauge("playing", "Whether the amplifier is playing", func(s *pipeline.Stats) float64 {
				return boolValue(s.Amplifier.State != amp.Idle)
			}),
			gauge("amp_free_slots", "Free amplifier write slots", func(s *pipeline.Stats) float64 {
				return float64(s.Amplifier.FreeSlots)
			}),
			counter("amp_transfers_total", "Transfers handed to the amplifier",
				func(s *pipeline.Stats) uint64 { return s.Amplifier.Sent }),
			counter("amp_overruns_total", "Amplifier completions that found the send loop busy",
				func(s *pipeline.Stats) uint64 { return s.Amplifier.Overruns }),

			ringMetric(gauge("ring_state", "Ring loopback state: 0 disabled, 1 waiting for sync, 2 enabled", nil),
				func(r *loopback.RingStats) float64 { return float64(r.State) }),
			ringMetric(gauge("ring_buffered_bytes", "Bytes in the reference delay line", nil),
				func(r *loopback.RingStats) float64 { return float64(r.Buffered) }),
			ringMetric(counter("ring_syncs_total", "Reference alignments", nil),
				func(r *loopback.RingStats) float64 { return float64(r.Syncs) }),
			ringMetric(counter("ring_clamps_total", "Alignment delays clamped to the maximum", nil),
				func(r *loopback.RingStats) float64 { return float64(r.Clamps) }),
			ringMetric(counter("ring_overruns_total", "Reference packets dropped on a full delay line", nil),
				func(r *loopback.RingStats) float64 { return float64(r.Overruns) }),

			directMetric(gauge("direct_running", "Whether the loopback receive DMA runs", nil),
				func(d *loopback.DirectStats) float64 { return boolValue(d.Running) }),
			directMetric(counter("direct_blocks_total", "Reference blocks received", nil),
				func(d *loopback.DirectStats) float64 { return float64(d.Blocks) }),
			directMetric(counter("direct_faults_total", "Receive FIFO faults", nil),
				func(d *loopback.DirectStats) float64 { return float64(d.Faults) }),
		},
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src()
	for _, m := range c.metrics {
		v, ok := m.value(&s)
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, v)
	}
}
