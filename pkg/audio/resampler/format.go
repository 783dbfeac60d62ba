package resampler

import "github.com/haivivi/voxpipe/pkg/audio/pcm"

// Format describes a 16-bit signed PCM stream to resample.
type Format struct {
	// SampleRate is the sample rate in Hz (e.g., 16000, 48000).
	SampleRate int

	// Stereo selects 2 channels instead of 1.
	Stereo bool
}

// FormatOf returns the Format of a pcm.Format.
func FormatOf(f pcm.Format) Format {
	return Format{SampleRate: f.SampleRate(), Stereo: f.Channels() == 2}
}

func (f Format) channels() int {
	if f.Stereo {
		return 2
	}
	return 1
}

func (f Format) sampleBytes() int {
	return 2 * f.channels()
}
