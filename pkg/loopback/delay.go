package loopback

import (
	"math"
	"time"
)

// Clock is a free running hardware timer.
type Clock interface {
	Ticks() uint32
}

// Timing describes the timer and the fixed latencies of the audio path.
type Timing struct {
	// TickNum/TickDen converts timer ticks to microseconds.
	TickNum, TickDen uint64

	// ConstDelay is the fixed latency between playback and capture.
	ConstDelay time.Duration

	// MaxVarDelay bounds the measured part of the delay.
	MaxVarDelay time.Duration
}

// DefaultTiming is a 24 MHz timer with a prescaler of 200.
var DefaultTiming = Timing{
	TickNum:     200,
	TickDen:     24,
	ConstDelay:  11250 * time.Microsecond,
	MaxVarDelay: 11000 * time.Microsecond,
}

// TickDuration returns the duration of n timer ticks.
func (t Timing) TickDuration(n uint32) time.Duration {
	return time.Duration(uint64(n)*t.TickNum/t.TickDen) * time.Microsecond
}

// Ticks returns the number of timer ticks in d.
func (t Timing) Ticks(d time.Duration) uint32 {
	return uint32(uint64(d.Microseconds()) * t.TickDen / t.TickNum)
}

// MaxDelayBytes returns the largest delay, in bytes of a stream with
// bytesPerMs, aligned down to whole stereo frames.
func (t Timing) MaxDelayBytes(bytesPerMs int) int {
	n := int((t.ConstDelay + t.MaxVarDelay).Microseconds()) * bytesPerMs / 1000
	return n - n%4
}

// Elapsed returns the ticks from mark to now, tolerating one timer wrap.
func Elapsed(mark, now uint32) uint32 {
	if now >= mark {
		return now - mark
	}
	return (math.MaxUint32 - mark) + now
}

// DelayBytes returns how many bytes of silence align a playback that starts
// at tick now with the capture event at tick mark. The result is a multiple
// of 4 and at most t.MaxDelayBytes; clamped reports whether it was capped.
func (t Timing) DelayBytes(mark, now uint32, bytesPerMs int) (n int, clamped bool) {
	us := uint64(Elapsed(mark, now))*t.TickNum/t.TickDen + uint64(t.ConstDelay.Microseconds())
	n = int(us * uint64(bytesPerMs) / 1000)
	n -= n % 4
	if limit := t.MaxDelayBytes(bytesPerMs); n > limit {
		return limit, true
	}
	return n, false
}
