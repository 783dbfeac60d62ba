// Package loopback supplies the echo canceller with the signal that is
// being played through the loudspeaker, aligned with the microphone capture.
//
// Two mechanisms exist, matching the two amplifier wirings:
//
//   - Ring: every transfer sent to the amplifier is also appended to a
//     delay line. At the start of a playback session the delay line is
//     prefixed with silence whose length is the measured offset between
//     the last capture event and the first playback packet, plus a fixed
//     pipeline constant. The capture side reads 10 ms at a time.
//
//   - Direct: a second DMA receives what the amplifier actually outputs.
//     Each completion publishes the buffer and raises an event; a receive
//     FIFO error raises a fault so that capture and loopback restart
//     together.
//
// Reference converts 10 ms of 48 kHz stereo into the 160-sample 16 kHz
// mono block the echo canceller consumes.
package loopback

import (
	"fmt"
	"time"

	"github.com/haivivi/voxpipe/pkg/audio/pcm"
)

// Format is the format of the loudspeaker signal.
const Format = pcm.L16Stereo48K

// BlockDuration is the amount of reference read per capture half.
const BlockDuration = 10 * time.Millisecond

// State is the state of the ring synchronizer.
type State int

const (
	Disabled State = iota
	NeedSync
	Enabled
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case NeedSync:
		return "need_sync"
	case Enabled:
		return "enabled"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for st := Disabled; st <= Enabled; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("loopback: unknown state %q", b)
}
