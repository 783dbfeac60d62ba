package board

import (
	"context"
	"io"
	"log/slog"

	"github.com/haivivi/voxpipe/pkg/pipeline"
)

// Options configures a Board.
type Options struct {
	// Source is what the microphones hear. Defaults to Silence.
	Source Source

	// Sink receives the amplifier output. Nil discards it.
	Sink io.Writer

	Logger *slog.Logger
}

// Board is a complete simulated device.
type Board struct {
	Clock *Clock
	Mics  *MicArray
	Amp   *AmpPort
}

// New returns a Board. Run must be started for the amplifier to play.
func New(opts Options) *Board {
	clock := NewClock()
	return &Board{
		Clock: clock,
		Mics:  NewMicArray(clock, opts.Source, opts.Logger),
		Amp:   NewAmpPort(opts.Sink, opts.Logger),
	}
}

// Hardware returns the ports for pipeline.New.
func (b *Board) Hardware() pipeline.Hardware {
	return pipeline.Hardware{
		Mics:       b.Mics,
		Amp:        b.Amp,
		Clock:      b.Clock,
		LoopbackRx: b.Amp.Rx(),
	}
}

// Run runs the amplifier DMA until ctx is done. Capture runs whenever the
// pipeline starts it.
func (b *Board) Run(ctx context.Context) error {
	defer b.Mics.Stop()
	return b.Amp.Run(ctx)
}
