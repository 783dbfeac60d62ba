package pdm

// Modulator is a first order sigma-delta modulator producing the bitstream
// of a single PDM microphone from 16 kHz PCM.
type Modulator struct {
	acc int32
	fb  int32
}

// Modulate encodes samples into dst, Factor bits per sample, most
// significant bit first. dst must hold len(samples)*Factor/32 words.
func (m *Modulator) Modulate(dst []uint32, samples []int16) {
	const wordsPerSample = Factor / 32
	for i, s := range samples {
		for w := range wordsPerSample {
			var word uint32
			for b := 31; b >= 0; b-- {
				m.acc += int32(s) - m.fb
				if m.acc >= 0 {
					word |= 1 << b
					m.fb = 32767
				} else {
					m.fb = -32767
				}
			}
			dst[i*wordsPerSample+w] = word
		}
	}
}

// Reset clears the modulator state.
func (m *Modulator) Reset() {
	m.acc, m.fb = 0, 0
}
