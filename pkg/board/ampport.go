package board

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haivivi/voxpipe/pkg/amp"
	"github.com/haivivi/voxpipe/pkg/buffer"
	"github.com/haivivi/voxpipe/pkg/loopback"
)

// ErrQueueFull is returned by Send when the transmit queue is full.
var ErrQueueFull = errors.New("board: transmit queue full")

// queueDepth bounds the transfers accepted ahead of the one playing.
const queueDepth = 8

type queued struct {
	tx  *amp.Transfer
	gen uint64
}

// AmpPort simulates the amplifier transmit DMA and the receive DMA that
// mirrors its output. Transfers play back to back, each taking the time its
// audio lasts, and are written to the sink as they start.
type AmpPort struct {
	sink io.Writer
	log  *slog.Logger

	h     amp.Handler
	queue chan queued

	// mu orders completions against Terminate.
	mu  sync.Mutex
	gen uint64

	rxh    loopback.RxHandler
	rxMu   sync.Mutex
	rxBuf  []byte
	rxOn   atomic.Bool
	mirror *buffer.RingBuffer[byte]

	played   atomic.Uint64
	rxBlocks atomic.Uint64
	sinkErrs atomic.Uint64
}

// NewAmpPort returns an AmpPort writing to sink, which may be nil.
func NewAmpPort(sink io.Writer, log *slog.Logger) *AmpPort {
	if log == nil {
		log = slog.Default()
	}
	return &AmpPort{
		sink:   sink,
		log:    log,
		queue:  make(chan queued, queueDepth),
		mirror: buffer.RingN[byte](4 * int(loopback.Format.BytesInDuration(amp.SlotDuration))),
	}
}

// Bind implements amp.Port.
func (p *AmpPort) Bind(h amp.Handler) {
	p.h = h
}

// Send implements amp.Port.
func (p *AmpPort) Send(tx *amp.Transfer) error {
	p.mu.Lock()
	gen := p.gen
	p.mu.Unlock()
	select {
	case p.queue <- queued{tx: tx, gen: gen}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Terminate implements amp.Port.
func (p *AmpPort) Terminate() {
	p.mu.Lock()
	p.gen++
	p.mu.Unlock()
	for {
		select {
		case <-p.queue:
		default:
			return
		}
	}
}

func (p *AmpPort) bindRx(h loopback.RxHandler) {
	p.rxh = h
}

// startReceive starts mirroring the transmitted audio into buf.
func (p *AmpPort) startReceive(buf []byte) error {
	if len(buf) == 0 {
		return errors.New("board: empty receive buffer")
	}
	p.rxMu.Lock()
	p.rxBuf = buf
	p.rxMu.Unlock()
	p.mirror.Reset()
	p.rxOn.Store(true)
	return nil
}

func (p *AmpPort) terminateReceive() {
	p.rxOn.Store(false)
}

// Rx returns the receive DMA mirroring this port.
func (p *AmpPort) Rx() loopback.RxPort {
	return rxPort{p}
}

type rxPort struct{ p *AmpPort }

func (r rxPort) Bind(h loopback.RxHandler)     { r.p.bindRx(h) }
func (r rxPort) StartReceive(buf []byte) error { return r.p.startReceive(buf) }
func (r rxPort) TerminateReceive()             { r.p.terminateReceive() }

// Run plays queued transfers and runs the receive DMA until ctx is done.
func (p *AmpPort) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.receive(ctx)
	}()
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case q := <-p.queue:
			if err := p.play(ctx, q); err != nil {
				return err
			}
		}
	}
}

func (p *AmpPort) play(ctx context.Context, q queued) error {
	p.mu.Lock()
	stale := q.gen != p.gen
	p.mu.Unlock()
	if stale {
		return nil
	}

	data := q.tx.Data
	if p.sink != nil {
		if _, err := p.sink.Write(data); err != nil && p.sinkErrs.Add(1) == 1 {
			p.log.Warn("board: sink write failed", "err", err)
		}
	}
	if p.rxOn.Load() {
		if _, err := p.mirror.Write(data); err != nil && p.rxh != nil {
			p.rxh.RxFIFOError()
		}
	}

	timer := time.NewTimer(amp.Format.Duration(int64(len(data))))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if q.gen != p.gen {
		return nil
	}
	p.played.Add(1)
	p.h.TxComplete(q.tx)
	return nil
}

// receive fills the receive buffer every 10 ms from the mirrored output,
// padding with silence while nothing plays.
func (p *AmpPort) receive(ctx context.Context) {
	ticker := time.NewTicker(loopback.BlockDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !p.rxOn.Load() || p.rxh == nil {
			continue
		}
		p.rxMu.Lock()
		n, _ := p.mirror.Read(p.rxBuf)
		clear(p.rxBuf[n:])
		p.rxMu.Unlock()
		p.rxBlocks.Add(1)
		p.rxh.RxComplete()
	}
}

// Played returns the number of completed transfers.
func (p *AmpPort) Played() uint64 {
	return p.played.Load()
}
