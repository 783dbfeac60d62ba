package resampler

import (
	"fmt"
)

// maxPendingBlocks bounds the latency Block may accumulate when fed faster
// than the nominal ratio.
const maxPendingBlocks = 4

// Block resamples mono 16-bit blocks and emits exactly outLen samples per
// call. Until the filter has produced a quarter block of headroom the output
// is silence, so per-call jitter in the filter output never leaves a gap.
// Surplus output is carried into the next call. Block is not safe for
// concurrent use.
type Block struct {
	rs      filter
	outLen  int
	input   []float64
	pending []float64
	primed  bool
}

type filter interface {
	Process([]float64) ([]float64, error)
}

// NewBlock creates a mono block resampler from inRate to outRate producing
// outLen samples per Process call.
func NewBlock(inRate, outRate, outLen int) (*Block, error) {
	if outLen <= 0 {
		return nil, fmt.Errorf("resampler: block length %d", outLen)
	}
	rs, err := newFilter(inRate, outRate, 1)
	if err != nil {
		return nil, err
	}
	return &Block{
		rs:      rs,
		outLen:  outLen,
		pending: make([]float64, 0, 4*outLen),
	}, nil
}

// Process resamples in and writes exactly outLen samples into out.
func (b *Block) Process(in []int16, out []int16) error {
	if len(out) < b.outLen {
		return fmt.Errorf("resampler: output block %d, want %d", len(out), b.outLen)
	}
	if cap(b.input) < len(in) {
		b.input = make([]float64, len(in))
	}
	b.input = b.input[:len(in)]
	for i, s := range in {
		b.input[i] = float64(s) / 32768.0
	}

	res, err := b.rs.Process(b.input)
	if err != nil {
		return fmt.Errorf("resampler: process: %w", err)
	}
	b.pending = append(b.pending, res...)
	if extra := len(b.pending) - maxPendingBlocks*b.outLen; extra > 0 {
		b.pending = append(b.pending[:0], b.pending[extra:]...)
	}

	if !b.primed {
		if len(b.pending) < b.outLen+b.outLen/4 {
			clear(out[:b.outLen])
			return nil
		}
		b.primed = true
	}

	n := min(len(b.pending), b.outLen)
	if n < b.outLen {
		b.primed = false
	}
	for i := range n {
		out[i] = toInt16(b.pending[i])
	}
	clear(out[n:b.outLen])
	b.pending = append(b.pending[:0], b.pending[n:]...)
	return nil
}

// Reset drops carried output and restarts priming.
func (b *Block) Reset() {
	b.pending = b.pending[:0]
	b.primed = false
}

// Pending returns the number of resampled samples carried to the next call.
func (b *Block) Pending() int {
	return len(b.pending)
}
