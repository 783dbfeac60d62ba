//go:build headless

package board

import (
	"errors"

	"github.com/haivivi/voxpipe/pkg/audio/pcm"
)

// ErrNoSpeaker is returned by NewSpeaker in headless builds.
var ErrNoSpeaker = errors.New("board: built without speaker support")

// Speaker is unavailable in headless builds.
type Speaker struct{}

// NewSpeaker always fails in headless builds.
func NewSpeaker(pcm.Format) (*Speaker, error) {
	return nil, ErrNoSpeaker
}

func (*Speaker) Write(p []byte) (int, error) { return len(p), nil }
func (*Speaker) Read(p []byte) (int, error)  { return len(p), nil }
func (*Speaker) Close() error                { return nil }
