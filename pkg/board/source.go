package board

import (
	"github.com/haivivi/voxpipe/pkg/audio/pcm"
	"github.com/haivivi/voxpipe/pkg/audio/tones"
)

// Source produces the 16 kHz mono signal the microphones hear.
type Source interface {
	// Read fills dst completely.
	Read(dst []int16)
}

// Silence is a silent Source.
type Silence struct{}

// Read implements Source.
func (Silence) Read(dst []int16) { clear(dst) }

// Tone is a continuous sine Source.
type Tone struct {
	Freq float64
	// Amp is the amplitude, 0..1.
	Amp float64

	off int
}

// NewTone returns a Tone at freq Hz and half scale.
func NewTone(freq float64) *Tone {
	return &Tone{Freq: freq, Amp: 0.5}
}

// Read implements Source.
func (t *Tone) Read(dst []int16) {
	rate := pcm.L16Mono16K.SampleRate()
	t.off = tones.Sine(dst, t.Freq, rate, t.off, t.Amp) % rate
}

// Loop repeats a fixed clip.
type Loop struct {
	samples []int16
	off     int
}

// NewLoop returns a Source looping samples. An empty clip is silent.
func NewLoop(samples []int16) *Loop {
	return &Loop{samples: samples}
}

// Read implements Source.
func (l *Loop) Read(dst []int16) {
	if len(l.samples) == 0 {
		clear(dst)
		return
	}
	for n := 0; n < len(dst); {
		c := copy(dst[n:], l.samples[l.off:])
		n += c
		l.off = (l.off + c) % len(l.samples)
	}
}
