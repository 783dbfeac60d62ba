package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/haivivi/voxpipe/pkg/audio/pdm"
)

// MaxChannels is the largest supported microphone count.
const MaxChannels = 4

// EventBits is a set of pending events.
type EventBits uint32

const (
	// EventReference: the loopback DMA delivered a reference block.
	EventReference EventBits = 1 << (2*MaxChannels + iota)
	// EventPDMError: a microphone DMA reported an error.
	EventPDMError
	// EventLoopbackError: the loopback DMA faulted.
	EventLoopbackError
)

// HalfEvent returns the event raised when channel ch completes half h.
func HalfEvent(h pdm.Half, ch int) EventBits {
	return 1 << (int(h)*MaxChannels + ch)
}

// EventGroup collects event bits from interrupt context and wakes a single
// waiter. Set never blocks.
type EventGroup struct {
	bits atomic.Uint32
	wake chan struct{}
}

// NewEventGroup returns an empty EventGroup.
func NewEventGroup() *EventGroup {
	return &EventGroup{wake: make(chan struct{}, 1)}
}

// Set raises bits and wakes the waiter.
func (g *EventGroup) Set(bits EventBits) {
	g.bits.Or(uint32(bits))
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

// Clear drops every pending bit.
func (g *EventGroup) Clear() {
	g.bits.Store(0)
	select {
	case <-g.wake:
	default:
	}
}

// Pending returns the pending bits without consuming them.
func (g *EventGroup) Pending() EventBits {
	return EventBits(g.bits.Load())
}

// Wait returns and clears the pending bits, waiting up to timeout for at
// least one. It returns 0 on timeout.
func (g *EventGroup) Wait(ctx context.Context, timeout time.Duration) (EventBits, error) {
	if bits := g.bits.Swap(0); bits != 0 {
		return EventBits(bits), nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
			return EventBits(g.bits.Swap(0)), nil
		case <-g.wake:
			if bits := g.bits.Swap(0); bits != 0 {
				return EventBits(bits), nil
			}
		}
	}
}

// ReadyMask tracks which channels of one capture half have been decimated.
type ReadyMask struct {
	ready    [MaxChannels]bool
	channels int
}

// NewReadyMask returns an empty mask for the given channel count.
func NewReadyMask(channels int) ReadyMask {
	return ReadyMask{channels: channels}
}

// Set marks channel ch ready.
func (m *ReadyMask) Set(ch int) {
	m.ready[ch] = true
}

// Complete reports whether every configured channel is ready.
func (m *ReadyMask) Complete() bool {
	for ch := range m.channels {
		if !m.ready[ch] {
			return false
		}
	}
	return m.channels > 0
}

// Clear marks every channel not ready.
func (m *ReadyMask) Clear() {
	m.ready = [MaxChannels]bool{}
}
