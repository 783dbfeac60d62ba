package tones

import (
	"math"

	"github.com/haivivi/voxpipe/pkg/audio/pcm"
)

// DefaultFormat is the amplifier format.
const DefaultFormat = pcm.L16Stereo48K

// Sine writes a sine wave of freq at amplitude amp (0..1) into dst,
// starting at sample offset. It returns the next offset.
func Sine(dst []int16, freq float64, sampleRate, offset int, amp float64) int {
	for i := range dst {
		t := float64(offset+i) / float64(sampleRate)
		dst[i] = int16(math.Sin(2*math.Pi*freq*t) * amp * 32767)
	}
	return offset + len(dst)
}

// harmonics of a soft bell: frequency ratio, amplitude, decay multiplier.
var harmonics = [...]struct {
	ratio, amp, decay float64
}{
	{1.0, 1.0, 1.0},
	{2.0, 0.5, 1.6},
	{3.0, 0.25, 2.2},
	{4.2, 0.12, 3.0},
}

// Bell renders one bell-like note of freq into dst.
func Bell(dst []int16, freq float64, sampleRate int, volume float64) {
	clear(dst)
	if freq == Rest || len(dst) == 0 {
		return
	}
	dur := float64(len(dst)) / float64(sampleRate)
	for i := range dst {
		t := float64(i) / float64(sampleRate)
		progress := t / dur

		var s float64
		for _, h := range harmonics {
			s += h.amp * math.Exp(-progress*h.decay*3) * math.Sin(2*math.Pi*freq*h.ratio*t)
		}
		s = s / 1.9 * envelope(t, progress) * volume
		dst[i] = int16(math.Max(-1, math.Min(1, s)) * 32767 * 0.85)
	}
}

// envelope is a percussive attack followed by a release over the last 15%.
func envelope(t, progress float64) float64 {
	const attack = 0.003
	if t < attack {
		return 1 - math.Exp(-5*t/attack)
	}
	if progress < 0.85 {
		return 1
	}
	r := (progress - 0.85) / 0.15
	return 1 - r*r
}

// Render returns the tone in format f as little-endian 16-bit PCM at volume
// (0..1, 0 selects 0.5). Voices are mixed with saturation; stereo output
// carries the same signal on both channels.
func (t Tone) Render(f pcm.Format, volume float64) []byte {
	if volume == 0 {
		volume = 0.5
	}
	rate := f.SampleRate()
	total := rate * t.Duration() / 1000
	mix := make([]int32, total)
	voiceVolume := volume / math.Sqrt(float64(max(1, len(t.Voices))))

	var note []int16
	for _, v := range t.Voices {
		off := 0
		for _, n := range v.Notes(t.Tempo) {
			samples := min(rate*n.Dur/1000, total-off)
			if samples <= 0 {
				break
			}
			if cap(note) < samples {
				note = make([]int16, samples)
			}
			note = note[:samples]
			Bell(note, n.Freq, rate, voiceVolume)
			for i, s := range note {
				mix[off+i] += int32(s)
			}
			off += samples
		}
	}

	channels := f.Channels()
	samples := make([]int16, total*channels)
	for i, s := range mix {
		c := pcm.Clamp16(s)
		for ch := range channels {
			samples[i*channels+ch] = c
		}
	}
	out := make([]byte, 2*len(samples))
	pcm.PutInt16s(out, samples)
	return out
}
