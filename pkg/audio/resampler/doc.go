// Package resampler converts 16-bit PCM between sample rates and channel
// counts using github.com/tphakala/go-audio-resampling (pure Go).
//
// Two shapes are provided:
//   - Stream wraps an io.Reader, for whole clips such as the boot tone.
//   - Block converts fixed-size blocks and always produces exactly the
//     requested number of output samples per call, for the real-time
//     echo-reference path.
//
// Example usage:
//
//	src := resampler.Format{SampleRate: 22050, Stereo: false}
//	dst := resampler.Format{SampleRate: 48000, Stereo: true}
//	r, err := resampler.New(wavReader, src, dst)
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	clip, err := io.ReadAll(r)
package resampler
