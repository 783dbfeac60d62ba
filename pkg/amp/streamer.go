package amp

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// Streamer plays clips through the write slots of an Amplifier, one
// SlotDuration packet per slot. Only one clip streams at a time.
type Streamer struct {
	amp  *Amplifier
	busy atomic.Bool
}

// NewStreamer returns a Streamer writing to a.
func NewStreamer(a *Amplifier) *Streamer {
	return &Streamer{amp: a}
}

// Playing reports whether a clip is being streamed.
func (s *Streamer) Playing() bool {
	return s.busy.Load()
}

// Play streams clip and returns once the last packet has been handed to the
// amplifier. It returns ErrBusy if another clip is streaming, ErrAborted if
// the amplifier is aborted meanwhile and ctx.Err() if ctx ends first.
func (s *Streamer) Play(ctx context.Context, clip []byte) error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.busy.Store(false)

	aborts := s.amp.aborts.Load()
	packet := len(s.amp.slotTx[0].Data)
	for off := 0; off < len(clip); {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(off+packet, len(clip))
		err := s.amp.writeSlot(clip[off:end], aborts)
		if err == nil {
			off = end
			continue
		}
		if !errors.Is(err, ErrBusy) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.amp.slotFreed:
		case <-time.After(SlotDuration):
		}
	}
	return nil
}
