package pdm

import (
	"fmt"

	"github.com/haivivi/voxpipe/pkg/audio/pcm"
)

// cicShift scales the CIC gain of Factor^3 = 2^21 down to 16 bits.
const cicShift = 6

// cic is the state of one channel's third order CIC filter. The integrators
// rely on two's complement wraparound.
type cic struct {
	i1, i2, i3 int32
	c1, c2, c3 int32
	phase      int
}

// Decimator converts PDM chunks into PCM frames for a fixed number of
// channels. Filter state is kept per channel across chunks. Each channel
// must be driven by a single goroutine.
type Decimator struct {
	channels int
	layout   pcm.Layout
	state    []cic
}

// NewDecimator returns a Decimator for channels microphones writing frames
// in the given layout.
func NewDecimator(channels int, layout pcm.Layout) *Decimator {
	return &Decimator{
		channels: channels,
		layout:   layout,
		state:    make([]cic, channels),
	}
}

// Channels returns the configured channel count.
func (d *Decimator) Channels() int {
	return d.channels
}

// FrameLen returns the length of a PCM frame holding every channel.
func (d *Decimator) FrameLen() int {
	return d.channels * SamplesPerChunk
}

// Decimate converts one 10 ms chunk of channel ch into its slots of frame.
// When raw or frame have the wrong size it returns ErrFrameSize and frame is
// left untouched.
func (d *Decimator) Decimate(raw []uint32, ch int, frame []int16) error {
	if ch < 0 || ch >= d.channels {
		return fmt.Errorf("pdm: channel %d out of range [0,%d)", ch, d.channels)
	}
	if len(raw) != WordsPerChunk {
		return fmt.Errorf("%w: %d words, want %d", ErrFrameSize, len(raw), WordsPerChunk)
	}
	if len(frame) < d.FrameLen() {
		return fmt.Errorf("%w: frame of %d samples, want %d", ErrFrameSize, len(frame), d.FrameLen())
	}

	s := &d.state[ch]
	idx := d.layout.Index(ch, 0, d.channels, SamplesPerChunk)
	stride := d.layout.Stride(d.channels)
	for _, w := range raw {
		for b := 31; b >= 0; b-- {
			x := int32(-1)
			if w&(1<<b) != 0 {
				x = 1
			}
			s.i1 += x
			s.i2 += s.i1
			s.i3 += s.i2
			s.phase++
			if s.phase < Factor {
				continue
			}
			s.phase = 0

			y1 := s.i3 - s.c1
			s.c1 = s.i3
			y2 := y1 - s.c2
			s.c2 = y1
			y3 := y2 - s.c3
			s.c3 = y2

			frame[idx] = pcm.Clamp16(y3 >> cicShift)
			idx += stride
		}
	}
	return nil
}

// Reset clears the filter state of every channel.
func (d *Decimator) Reset() {
	clear(d.state)
}
