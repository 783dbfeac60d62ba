package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/haivivi/voxpipe/pkg/audio/pdm"
	"github.com/haivivi/voxpipe/pkg/buffer"
)

// Processor runs the front end on every completed capture half and
// delivers accumulated clean audio to the recognizer queue.
type Processor struct {
	cfg   Config
	log   Logger
	afe   AFE
	orch  *Orchestrator
	queue *buffer.Queue[int16]

	out   []int16
	accum []int16
	index int
	epoch uint64

	lagging bool

	blocks    atomic.Uint64
	afeErrors atomic.Uint64
	dropped   atomic.Uint64
}

func newProcessor(cfg Config, log Logger, afe AFE, orch *Orchestrator) *Processor {
	return &Processor{
		cfg:   cfg,
		log:   log,
		afe:   afe,
		orch:  orch,
		queue: buffer.NewQueue[int16](cfg.QueueDepth, cfg.Accumulate*pdm.SamplesPerChunk),
		out:   make([]int16, pdm.SamplesPerChunk),
		accum: make([]int16, cfg.Accumulate*pdm.SamplesPerChunk),
	}
}

// Run processes completed halves until ctx is done.
func (p *Processor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-p.orch.ready:
			p.process(f)
			p.orch.free <- f
		}
	}
}

func (p *Processor) process(f *Frame) {
	if f.Epoch != p.epoch {
		// Capture restarted; drop the partial block.
		p.epoch = f.Epoch
		p.index = 0
	}
	if err := p.afe.Process(f.Mic, f.Ref, p.out); err != nil {
		p.afeErrors.Add(1)
		p.log.ErrorPrintf("afe %v #%d: %v", f.Half, f.Seq, err)
		return
	}

	copy(p.accum[p.index*pdm.SamplesPerChunk:], p.out)
	p.index++
	if p.index < p.cfg.Accumulate {
		return
	}
	p.index = 0

	if !p.queue.TryPush(p.accum) {
		if p.dropped.Add(1) == 1 {
			p.log.WarnPrintf("recognizer queue full, dropping blocks")
		}
		return
	}
	p.blocks.Add(1)

	n := p.queue.Len()
	switch {
	case n >= p.cfg.Watermark && !p.lagging:
		p.lagging = true
		p.log.WarnPrintf("recognizer lagging: %d of %d blocks queued", n, p.queue.Cap())
	case n < p.cfg.Watermark && p.lagging:
		p.lagging = false
		p.log.InfoPrintf("recognizer caught up")
	}
}

// Read blocks until a recognizer block is available and copies it into dst,
// which must hold BlockLen samples. Each block is delivered once.
func (p *Processor) Read(ctx context.Context, dst []int16) error {
	return p.queue.Pop(ctx, dst)
}

// BlockLen returns the number of samples in a recognizer block.
func (p *Processor) BlockLen() int {
	return p.queue.BlockLen()
}

// ProcessorStats is a snapshot of Processor counters.
type ProcessorStats struct {
	Blocks    uint64 `json:"blocks"`
	Dropped   uint64 `json:"dropped"`
	AFEErrors uint64 `json:"afe_errors"`
	Queued    int    `json:"queued"`
	HighWater int    `json:"high_water"`
}

// Stats returns a snapshot of the counters.
func (p *Processor) Stats() ProcessorStats {
	return ProcessorStats{
		Blocks:    p.blocks.Load(),
		Dropped:   p.dropped.Load(),
		AFEErrors: p.afeErrors.Load(),
		Queued:    p.queue.Len(),
		HighWater: p.queue.HighWater(),
	}
}
