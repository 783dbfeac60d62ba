package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/haivivi/voxpipe/pkg/audio/pcm"
)

// ErrInvalidConfig is wrapped by every configuration error.
var ErrInvalidConfig = errors.New("pipeline: invalid config")

// LoopbackMode selects how the echo reference is obtained.
type LoopbackMode string

const (
	LoopbackNone   LoopbackMode = "none"
	LoopbackRing   LoopbackMode = "ring"
	LoopbackDirect LoopbackMode = "direct"
)

// Config configures a Pipeline.
type Config struct {
	// Channels is the number of microphones, 1 to MaxChannels.
	Channels int `yaml:"channels"`

	// Layout of the PCM frame handed to the front end.
	Layout pcm.Layout `yaml:"layout"`

	// Timeout is the longest the orchestrator waits for a capture event
	// before it restarts capture.
	Timeout time.Duration `yaml:"timeout"`

	// Accumulate is the number of 10 ms blocks per recognizer block.
	Accumulate int `yaml:"accumulate"`

	// QueueDepth is the number of recognizer blocks buffered.
	QueueDepth int `yaml:"queue_depth"`

	// Watermark is the queue length that is reported as a lagging
	// consumer.
	Watermark int `yaml:"watermark"`

	// Loopback selects the echo reference source.
	Loopback LoopbackMode `yaml:"loopback"`

	// ReferenceGain multiplies the echo reference.
	ReferenceGain int `yaml:"reference_gain"`

	// Differential drives the loudspeaker with inverted left/right.
	Differential bool `yaml:"differential"`

	// Slots is the number of amplifier write slots.
	Slots int `yaml:"slots"`
}

// DefaultConfig returns the configuration of the reference board.
func DefaultConfig() Config {
	return Config{
		Channels:      3,
		Layout:        pcm.Grouped,
		Timeout:       time.Second,
		Accumulate:    3,
		QueueDepth:    5,
		Watermark:     3,
		Loopback:      LoopbackRing,
		ReferenceGain: 10,
		Differential:  true,
		Slots:         4,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Channels < 1 || c.Channels > MaxChannels {
		return fmt.Errorf("%w: channels %d not in [1,%d]", ErrInvalidConfig, c.Channels, MaxChannels)
	}
	if c.Layout != pcm.Grouped && c.Layout != pcm.Interleaved {
		return fmt.Errorf("%w: layout %v", ErrInvalidConfig, c.Layout)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout %v", ErrInvalidConfig, c.Timeout)
	}
	if c.Accumulate < 1 {
		return fmt.Errorf("%w: accumulate %d", ErrInvalidConfig, c.Accumulate)
	}
	if c.QueueDepth < 1 {
		return fmt.Errorf("%w: queue depth %d", ErrInvalidConfig, c.QueueDepth)
	}
	if c.Watermark < 1 || c.Watermark > c.QueueDepth {
		return fmt.Errorf("%w: watermark %d not in [1,%d]", ErrInvalidConfig, c.Watermark, c.QueueDepth)
	}
	switch c.Loopback {
	case LoopbackNone, LoopbackRing, LoopbackDirect:
	default:
		return fmt.Errorf("%w: loopback mode %q", ErrInvalidConfig, c.Loopback)
	}
	if c.ReferenceGain < 1 {
		return fmt.Errorf("%w: reference gain %d", ErrInvalidConfig, c.ReferenceGain)
	}
	if c.Slots < 1 {
		return fmt.Errorf("%w: slots %d", ErrInvalidConfig, c.Slots)
	}
	return nil
}
