package pipeline

import (
	"fmt"

	"github.com/haivivi/voxpipe/pkg/audio/pcm"
)

// AFE is the acoustic front end: beamforming, echo cancellation and noise
// suppression in one opaque step.
type AFE interface {
	// Process turns one 10 ms multi-channel frame and its echo reference
	// into one clean mono block. mic follows the configured layout; ref
	// and out hold 160 samples.
	Process(mic, ref, out []int16) error
}

// MixdownAFE averages the microphone channels and ignores the reference.
// It stands in for a vendor front end.
type MixdownAFE struct {
	Channels int
	Layout   pcm.Layout
}

// Process implements AFE.
func (m MixdownAFE) Process(mic, _, out []int16) error {
	samples := len(out)
	if len(mic) < m.Channels*samples {
		return fmt.Errorf("pipeline: afe frame of %d samples, want %d", len(mic), m.Channels*samples)
	}
	for k := range samples {
		var sum int32
		for ch := range m.Channels {
			sum += int32(mic[m.Layout.Index(ch, k, m.Channels, samples)])
		}
		out[k] = int16(sum / int32(m.Channels))
	}
	return nil
}

// AFEFunc adapts a function to the AFE interface.
type AFEFunc func(mic, ref, out []int16) error

// Process implements AFE.
func (f AFEFunc) Process(mic, ref, out []int16) error {
	return f(mic, ref, out)
}
