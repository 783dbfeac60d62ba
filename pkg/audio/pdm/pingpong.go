package pdm

import (
	"fmt"
	"sync/atomic"
)

// Half names one of the two halves of a PingPong buffer.
type Half int

const (
	Ping Half = 0
	Pong Half = 1
)

// Other returns the opposite half.
func (h Half) Other() Half {
	return 1 - h
}

func (h Half) String() string {
	switch h {
	case Ping:
		return "ping"
	case Pong:
		return "pong"
	}
	return fmt.Sprintf("Half(%d)", int(h))
}

// PingPong is a double buffer shared by one producer (the DMA) and one
// consumer. At any time one half is owned by the writer and the other by the
// reader. Ownership only changes in Complete, so neither side needs a lock.
type PingPong[T any] struct {
	halves [2][]T
	writer atomic.Int32
}

// NewPingPong allocates a PingPong with halves of n elements. The writer
// starts on Ping.
func NewPingPong[T any](n int) *PingPong[T] {
	backing := make([]T, 2*n)
	return &PingPong[T]{
		halves: [2][]T{backing[:n:n], backing[n:]},
	}
}

// Writer returns the half currently owned by the writer.
func (p *PingPong[T]) Writer() Half {
	return Half(p.writer.Load())
}

// Writable returns the writer-owned half.
func (p *PingPong[T]) Writable() []T {
	return p.halves[p.writer.Load()]
}

// Complete hands the filled writer half to the reader and returns it. The
// writer moves on to the other half.
func (p *PingPong[T]) Complete() Half {
	for {
		w := p.writer.Load()
		if p.writer.CompareAndSwap(w, 1-w) {
			return Half(w)
		}
	}
}

// Reader returns half h if it is owned by the reader.
func (p *PingPong[T]) Reader(h Half) ([]T, bool) {
	if h != Ping && h != Pong || Half(p.writer.Load()) == h {
		return nil, false
	}
	return p.halves[h], true
}

// Len returns the size of one half.
func (p *PingPong[T]) Len() int {
	return len(p.halves[0])
}

// Reset gives Ping back to the writer and clears both halves. It must only
// be called while the producer is stopped.
func (p *PingPong[T]) Reset() {
	clear(p.halves[0])
	clear(p.halves[1])
	p.writer.Store(int32(Ping))
}
