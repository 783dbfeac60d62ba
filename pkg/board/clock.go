package board

import (
	"time"

	"github.com/haivivi/voxpipe/pkg/loopback"
)

// Clock is a free-running 32-bit timer counting at the rate given by a
// loopback.Timing. It wraps like the hardware counter.
type Clock struct {
	start  time.Time
	timing loopback.Timing
}

// NewClock returns a Clock at zero, ticking with loopback.DefaultTiming.
func NewClock() *Clock {
	return &Clock{start: time.Now(), timing: loopback.DefaultTiming}
}

// Ticks implements loopback.Clock.
func (c *Clock) Ticks() uint32 {
	return c.timing.Ticks(time.Since(c.start))
}
