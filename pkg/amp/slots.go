package amp

import "sync/atomic"

// SlotPool counts free write slots.
type SlotPool struct {
	free atomic.Int32
	max  int32
}

func newSlotPool(n int) *SlotPool {
	p := &SlotPool{max: int32(n)}
	p.free.Store(int32(n))
	return p
}

// Free returns the number of free slots.
func (p *SlotPool) Free() int {
	return int(p.free.Load())
}

// Cap returns the number of slots.
func (p *SlotPool) Cap() int {
	return int(p.max)
}

func (p *SlotPool) acquire() bool {
	for {
		n := p.free.Load()
		if n == 0 {
			return false
		}
		if p.free.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

func (p *SlotPool) release() {
	if p.free.Add(1) > p.max {
		p.free.Store(p.max)
	}
}

func (p *SlotPool) restore() {
	p.free.Store(p.max)
}
