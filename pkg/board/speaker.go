//go:build !headless

package board

import (
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/haivivi/voxpipe/pkg/audio/pcm"
	"github.com/haivivi/voxpipe/pkg/buffer"
)

// Speaker plays audio written to it on the default output device. Writes
// that do not fit into its buffer are dropped; gaps are played as silence.
type Speaker struct {
	ctx    *oto.Context
	player *oto.Player
	ring   *buffer.RingBuffer[byte]
}

// NewSpeaker opens the default output device for format f.
func NewSpeaker(f pcm.Format) (*Speaker, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   f.SampleRate(),
		ChannelCount: f.Channels(),
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   40 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("board: open speaker: %w", err)
	}
	<-ready

	s := &Speaker{
		ctx:  ctx,
		ring: buffer.RingN[byte](int(f.BytesInDuration(500 * time.Millisecond))),
	}
	s.player = ctx.NewPlayer(s)
	s.player.Play()
	return s, nil
}

// Write implements io.Writer.
func (s *Speaker) Write(p []byte) (int, error) {
	s.ring.Write(p)
	return len(p), nil
}

// Read feeds the player, padding with silence.
func (s *Speaker) Read(p []byte) (int, error) {
	n, _ := s.ring.Read(p)
	clear(p[n:])
	return len(p), nil
}

// Close stops playback.
func (s *Speaker) Close() error {
	return s.player.Close()
}
