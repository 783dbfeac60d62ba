// Package audio groups the audio processing packages of voxpipe:
//
//   - pcm: sample formats and 16-bit sample helpers
//   - pdm: PDM capture buffers, the CIC decimator and a sigma-delta modulator
//   - resampler: streaming and fixed-block sample rate conversion
//   - tones: the built-in prompt tones
package audio
