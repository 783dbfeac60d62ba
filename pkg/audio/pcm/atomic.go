package pcm

import (
	"math"
	"sync/atomic"
)

// AtomicFloat32 is a float32 that can be shared between the control path
// and a real-time audio goroutine without locking.
type AtomicFloat32 struct {
	bits atomic.Uint32
}

// NewAtomicFloat32 returns an AtomicFloat32 holding val.
func NewAtomicFloat32(val float32) *AtomicFloat32 {
	v := new(AtomicFloat32)
	v.Store(val)
	return v
}

// Load returns the current value.
func (af *AtomicFloat32) Load() float32 {
	return math.Float32frombits(af.bits.Load())
}

// Store sets the value.
func (af *AtomicFloat32) Store(val float32) {
	af.bits.Store(math.Float32bits(val))
}

// Swap sets the value and returns the previous one.
func (af *AtomicFloat32) Swap(val float32) float32 {
	return math.Float32frombits(af.bits.Swap(math.Float32bits(val)))
}
