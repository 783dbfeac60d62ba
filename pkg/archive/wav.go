package archive

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/haivivi/voxpipe/pkg/audio/pcm"
)

// EncodeWAV returns a 16-bit PCM WAV file holding samples in format f.
func EncodeWAV(f pcm.Format, samples []int16) ([]byte, error) {
	var buf seekBuffer
	enc := wav.NewEncoder(&buf, f.SampleRate(), 16, f.Channels(), 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	err := enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: f.Channels(), SampleRate: f.SampleRate()},
		Data:           data,
		SourceBitDepth: 16,
	})
	if err != nil {
		return nil, fmt.Errorf("archive: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("archive: encode wav: %w", err)
	}
	return buf.data, nil
}

// seekBuffer is an in-memory io.WriteSeeker for the WAV encoder, which
// rewrites the header on Close.
type seekBuffer struct {
	data []byte
	pos  int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if end := b.pos + len(p); end > len(b.data) {
		b.data = append(b.data, make([]byte, end-len(b.data))...)
	}
	n := copy(b.data[b.pos:], p)
	b.pos += n
	return n, nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(b.pos)
	case io.SeekEnd:
		base = int64(len(b.data))
	default:
		return 0, errors.New("archive: invalid whence")
	}
	pos := base + offset
	if pos < 0 {
		return 0, errors.New("archive: negative position")
	}
	b.pos = int(pos)
	return pos, nil
}
