package board

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/haivivi/voxpipe/pkg/audio/pcm"
	"github.com/haivivi/voxpipe/pkg/audio/resampler"
)

// ErrUnsupportedWAV is returned for WAV files that are not 16-bit mono or
// stereo PCM.
var ErrUnsupportedWAV = errors.New("board: unsupported wav file")

// WAVSink records 16-bit PCM written to it into a WAV file.
type WAVSink struct {
	mu      sync.Mutex
	file    *os.File
	enc     *wav.Encoder
	buf     audio.IntBuffer
	samples []int16
	bytes   int64
}

// CreateWAV creates a WAV file at path for audio in format f.
func CreateWAV(path string, f pcm.Format) (*WAVSink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("board: create wav: %w", err)
	}
	return &WAVSink{
		file: file,
		enc:  wav.NewEncoder(file, f.SampleRate(), 16, f.Channels(), 1),
		buf: audio.IntBuffer{
			Format:         &audio.Format{NumChannels: f.Channels(), SampleRate: f.SampleRate()},
			SourceBitDepth: 16,
		},
	}, nil
}

// Write implements io.Writer. A trailing odd byte is ignored.
func (w *WAVSink) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := len(p) / 2
	if cap(w.samples) < n {
		w.samples = make([]int16, n)
		w.buf.Data = make([]int, n)
	}
	w.samples = w.samples[:n]
	w.buf.Data = w.buf.Data[:n]
	pcm.Int16s(w.samples, p)
	for i, s := range w.samples {
		w.buf.Data[i] = int(s)
	}
	if err := w.enc.Write(&w.buf); err != nil {
		return 0, fmt.Errorf("board: write wav: %w", err)
	}
	w.bytes += int64(len(p))
	return len(p), nil
}

// Bytes returns the number of PCM bytes written.
func (w *WAVSink) Bytes() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bytes
}

// Close finalizes the WAV header and closes the file.
func (w *WAVSink) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.enc.Close()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// LoadWAV reads a WAV file and converts it to format f.
func LoadWAV(path string, f pcm.Format) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("board: open wav: %w", err)
	}
	defer file.Close()
	return DecodeWAV(file, f)
}

// DecodeWAV decodes 16-bit PCM WAV data from r and converts it to format f.
func DecodeWAV(r io.ReadSeeker, f pcm.Format) ([]byte, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a wav file", ErrUnsupportedWAV)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("board: decode wav: %w", err)
	}
	if dec.BitDepth != 16 || dec.WavAudioFormat != 1 {
		return nil, fmt.Errorf("%w: format %d, %d bits", ErrUnsupportedWAV, dec.WavAudioFormat, dec.BitDepth)
	}
	channels := int(dec.NumChans)
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupportedWAV, channels)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	raw := make([]byte, 2*len(samples))
	pcm.PutInt16s(raw, samples)

	src := resampler.Format{SampleRate: int(dec.SampleRate), Stereo: channels == 2}
	dst := resampler.FormatOf(f)
	if src == dst {
		return raw, nil
	}
	rs, err := resampler.New(bytes.NewReader(raw), src, dst)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	out, err := io.ReadAll(rs)
	if err != nil {
		return nil, fmt.Errorf("board: resample wav: %w", err)
	}
	return out, nil
}
