package loopback

import (
	"github.com/haivivi/voxpipe/pkg/audio/pcm"
	"github.com/haivivi/voxpipe/pkg/audio/resampler"
)

// DefaultGain is applied to the reference after resampling.
const DefaultGain = 10

// ReferenceSamples is the length of one converted reference block.
const ReferenceSamples = 160

// Reference converts 10 ms of loudspeaker audio into one 16 kHz mono
// reference block. It is not safe for concurrent use.
type Reference struct {
	gain   int32
	block  *resampler.Block
	stereo []int16
	left   []int16
	active bool
}

// NewReference returns a converter applying gain to its output.
func NewReference(gain int) (*Reference, error) {
	blk, err := resampler.NewBlock(Format.SampleRate(), pcm.L16Mono16K.SampleRate(), ReferenceSamples)
	if err != nil {
		return nil, err
	}
	frames := int(Format.SamplesInDuration(BlockDuration))
	return &Reference{
		gain:   int32(gain),
		block:  blk,
		stereo: make([]int16, 2*frames),
		left:   make([]int16, frames),
	}, nil
}

// Convert writes the reference for src into out[:ReferenceSamples]. src
// holds at most 10 ms of 48 kHz stereo; a shorter src is padded with
// silence. An empty src yields a silent block.
func (r *Reference) Convert(src []byte, out []int16) error {
	out = out[:ReferenceSamples]
	if len(src) == 0 {
		if r.active {
			r.block.Reset()
			r.active = false
		}
		clear(out)
		return nil
	}
	r.active = true

	n := pcm.Int16s(r.stereo, src)
	clear(r.stereo[n:])
	for i := range r.left {
		r.left[i] = r.stereo[2*i]
	}
	if err := r.block.Process(r.left, out); err != nil {
		return err
	}
	if r.gain != 1 {
		for i, s := range out {
			out[i] = pcm.Clamp16(int32(s) * r.gain)
		}
	}
	return nil
}
