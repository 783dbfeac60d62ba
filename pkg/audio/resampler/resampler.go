package resampler

import (
	"fmt"
	"io"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/haivivi/voxpipe/pkg/audio/pcm"
)

// Resampler reads resampled audio. It must be closed to release the filter.
type Resampler interface {
	io.ReadCloser
	CloseWithError(error) error
}

// Stream resamples the 16-bit audio read from src from srcFmt to dstFmt.
type Stream struct {
	srcFmt Format
	src    io.Reader
	dstFmt Format

	readBuf []byte
	input   []float64

	mu       sync.Mutex
	closeErr error
	rs       resampling.Resampler
	leftover []byte
}

// New creates a Resampler converting src from srcFmt to dstFmt. Rate and
// channel count (mono/stereo) may both differ.
func New(src io.Reader, srcFmt, dstFmt Format) (Resampler, error) {
	var rs resampling.Resampler
	if srcFmt.SampleRate != dstFmt.SampleRate {
		var err error
		rs, err = newFilter(srcFmt.SampleRate, dstFmt.SampleRate, dstFmt.channels())
		if err != nil {
			return nil, err
		}
	}
	return &Stream{
		srcFmt: srcFmt,
		src:    newSampleReader(src, srcFmt.sampleBytes()),
		dstFmt: dstFmt,
		rs:     rs,
	}, nil
}

func newFilter(in, out, channels int) (resampling.Resampler, error) {
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(in),
		OutputRate: float64(out),
		Channels:   channels,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("resampler: create %d->%d: %w", in, out, err)
	}
	return rs, nil
}

// Read copies resampled audio into p. Not safe for concurrent use.
func (r *Stream) Read(p []byte) (int, error) {
	frame := r.dstFmt.sampleBytes()
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) < frame {
		return 0, io.ErrShortBuffer
	}
	p = p[:len(p)/frame*frame]

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.leftover) > 0 {
		n := copy(p, r.leftover)
		r.leftover = r.leftover[n:]
		return n, nil
	}
	if r.closeErr != nil {
		return 0, r.closeErr
	}
	if r.rs == nil {
		n, err := r.readConverted(len(p))
		copy(p, r.readBuf[:n])
		return n, err
	}
	return r.readResampled(p)
}

func (r *Stream) readResampled(p []byte) (int, error) {
	want := int(float64(len(p))*float64(r.srcFmt.SampleRate)/float64(r.dstFmt.SampleRate)) + 4*r.dstFmt.sampleBytes()
	want = want / r.dstFmt.sampleBytes() * r.dstFmt.sampleBytes()

	n, readErr := r.readConverted(want)
	if n == 0 {
		if readErr == nil {
			readErr = io.EOF
		}
		return 0, readErr
	}

	count := n / 2
	if cap(r.input) < count {
		r.input = make([]float64, count)
	}
	r.input = r.input[:count]
	for i := range count {
		r.input[i] = float64(int16(r.readBuf[2*i])|int16(r.readBuf[2*i+1])<<8) / 32768.0
	}

	out, err := r.rs.Process(r.input)
	if err != nil {
		return 0, fmt.Errorf("resampler: process: %w", err)
	}
	if len(out) == 0 {
		return 0, readErr
	}

	frames := len(out) / r.dstFmt.channels() * r.dstFmt.channels()
	buf := make([]byte, 2*frames)
	for i, s := range out[:frames] {
		v := toInt16(s)
		buf[2*i] = byte(v)
		buf[2*i+1] = byte(v >> 8)
	}
	written := copy(p, buf)
	if written < len(buf) {
		r.leftover = append(r.leftover, buf[written:]...)
	}
	return written, readErr
}

// readConverted reads from src into readBuf and converts the channel count
// to that of dstFmt. It returns the number of converted bytes.
func (r *Stream) readConverted(dstLen int) (int, error) {
	switch {
	case r.srcFmt.Stereo == r.dstFmt.Stereo:
		r.grow(dstLen)
		return r.src.Read(r.readBuf[:dstLen])
	case r.srcFmt.Stereo:
		r.grow(dstLen * 2)
		n, err := r.src.Read(r.readBuf[:dstLen*2])
		if n == 0 {
			return 0, err
		}
		return stereoToMono(r.readBuf[:n]), err
	default:
		r.grow(dstLen)
		n, err := r.src.Read(r.readBuf[:dstLen/2])
		if n == 0 {
			return 0, err
		}
		return monoToStereo(r.readBuf[:n*2]), err
	}
}

func (r *Stream) grow(n int) {
	if cap(r.readBuf) < n {
		r.readBuf = make([]byte, n)
	}
	r.readBuf = r.readBuf[:cap(r.readBuf)]
}

// Close releases the filter. Later reads return io.ErrClosedPipe.
func (r *Stream) Close() error {
	return r.CloseWithError(fmt.Errorf("resampler: %w", io.ErrClosedPipe))
}

// CloseWithError releases the filter. Later reads return err.
func (r *Stream) CloseWithError(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeErr == nil {
		r.closeErr = err
	}
	r.rs = nil
	return nil
}

func toInt16(s float64) int16 {
	if s >= 1.0 {
		return 32767
	}
	if s < -1.0 {
		return -32768
	}
	return pcm.Clamp16(int32(s * 32767.0))
}

// stereoToMono averages L and R in place and returns the mono byte count.
func stereoToMono(b []byte) int {
	frames := len(b) / 4
	for i := range frames {
		l := int16(b[4*i]) | int16(b[4*i+1])<<8
		r := int16(b[4*i+2]) | int16(b[4*i+3])<<8
		m := int16((int32(l) + int32(r)) / 2)
		b[2*i] = byte(m)
		b[2*i+1] = byte(m >> 8)
	}
	return frames * 2
}

// monoToStereo duplicates each sample in place. b holds the mono data in
// its first half.
func monoToStereo(b []byte) int {
	samples := len(b) / 4
	for i := samples - 1; i >= 0; i-- {
		s0, s1 := b[2*i], b[2*i+1]
		b[4*i], b[4*i+1] = s0, s1
		b[4*i+2], b[4*i+3] = s0, s1
	}
	return len(b)
}
