// Package pcm provides types and utilities for 16-bit linear PCM audio.
//
// The package defines the formats used by the device (16 kHz mono from the
// microphones, 48 kHz stereo to the amplifier), the two layouts a multi
// channel frame can take, and little-endian conversion between samples and
// bytes.
//
// Key types:
//   - Format: sample rate, channels and bit depth of a stream
//   - Layout: how the channels of a frame are arranged in memory
//   - AtomicFloat32: lock-free gain shared between control and audio paths
//
// Example usage:
//
//	// Bytes needed for 10ms of amplifier output
//	n := pcm.L16Stereo48K.BytesInDuration(10 * time.Millisecond) // 1920
//
//	// Where sample k of channel 1 lives in a grouped 2-channel frame
//	idx := pcm.Grouped.Index(1, k, 2, 160)
package pcm
