// Package amp drives the loudspeaker amplifier.
//
// Audio is 48 kHz, 16-bit, stereo. An Amplifier splits a clip into 10 ms
// chunks and hands them to a DMA Port one at a time; the port reports each
// completion through TxComplete and a send goroutine issues the next chunk.
// A clip can be played once (Write, WriteBlocking) or looped (WriteLoop)
// until Abort.
//
// Independently of that state machine, WriteNoWait sends single packets
// through a small pool of write slots. Streamer uses the slots to play long
// clips with bounded latency, and the loopback synchronizer waits for the
// slots to drain before it aligns the echo reference.
package amp

import (
	"errors"
	"time"

	"github.com/haivivi/voxpipe/pkg/audio/pcm"
)

// Format is the amplifier stream format.
const Format = pcm.L16Stereo48K

const (
	// ChunkBytes is the size of one state-machine transfer (10 ms).
	ChunkBytes = 1920

	// Align is the DMA transfer granularity. Clip lengths are rounded down
	// to a multiple of it.
	Align = 32

	// DefaultSlots is the number of write slots.
	DefaultSlots = 4

	// SlotDuration is the audio held by one write slot.
	SlotDuration = 20 * time.Millisecond
)

var (
	// ErrBusy is returned when a write is issued while another is active
	// or no write slot is free.
	ErrBusy = errors.New("amp: busy")

	// ErrAborted is returned by blocking writes interrupted by Abort.
	ErrAborted = errors.New("amp: aborted")

	// ErrTooLarge is returned by WriteNoWait for a packet larger than a slot.
	ErrTooLarge = errors.New("amp: packet larger than write slot")
)
