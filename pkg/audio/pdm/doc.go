// Package pdm handles the 1-bit pulse density modulated streams produced by
// digital MEMS microphones.
//
// A microphone clocked at 2.048 MHz delivers 640 32-bit words every 10 ms.
// Decimator turns each such chunk into 160 samples of 16 kHz PCM with a
// third order CIC filter. Modulator does the reverse and is used to feed
// simulated microphones. PingPong is the two-half DMA buffer the capture
// hardware writes into.
package pdm

import "errors"

const (
	// Factor is the decimation ratio from PDM bits to PCM samples.
	Factor = 128

	// SamplesPerChunk is the number of PCM samples per channel in 10 ms.
	SamplesPerChunk = 160

	// WordsPerChunk is the number of 32-bit PDM words per channel in 10 ms.
	WordsPerChunk = SamplesPerChunk * Factor / 32

	// BitRate is the PDM clock in bits per second.
	BitRate = 16000 * Factor
)

// ErrFrameSize is returned when a raw chunk or a PCM frame has the wrong size.
var ErrFrameSize = errors.New("pdm: unexpected frame size")
