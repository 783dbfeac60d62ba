package board

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haivivi/voxpipe/pkg/audio/pdm"
	"github.com/haivivi/voxpipe/pkg/loopback"
	"github.com/haivivi/voxpipe/pkg/pipeline"
)

// ChunkInterval is the time one PDM chunk covers.
const ChunkInterval = 10 * time.Millisecond

// MicArray simulates the PDM microphone DMA. While started it modulates the
// source into the writer half of every channel each ChunkInterval and
// reports the completed halves.
type MicArray struct {
	clock    loopback.Clock
	src      Source
	interval time.Duration
	log      *slog.Logger

	bufs []*pdm.PingPong[uint32]
	h    pipeline.CaptureHandler
	mods []pdm.Modulator
	pcm  []int16

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	fault      atomic.Int32
	stallUntil atomic.Int64
	chunks     atomic.Uint64
	starts     atomic.Uint64
}

// NewMicArray returns a stopped MicArray hearing src.
func NewMicArray(clock loopback.Clock, src Source, log *slog.Logger) *MicArray {
	if src == nil {
		src = Silence{}
	}
	if log == nil {
		log = slog.Default()
	}
	m := &MicArray{
		clock:    clock,
		src:      src,
		interval: ChunkInterval,
		log:      log,
		pcm:      make([]int16, pdm.SamplesPerChunk),
	}
	m.fault.Store(-1)
	return m
}

// Configure implements pipeline.MicArray.
func (m *MicArray) Configure(bufs []*pdm.PingPong[uint32], h pipeline.CaptureHandler) error {
	if len(bufs) == 0 || h == nil {
		return errors.New("board: mic array needs buffers and a handler")
	}
	for _, b := range bufs {
		if b.Len() != pdm.WordsPerChunk {
			return pdm.ErrFrameSize
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bufs, m.h = bufs, h
	m.mods = make([]pdm.Modulator, len(bufs))
	return nil
}

// Start implements pipeline.MicArray.
func (m *MicArray) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.h == nil {
		return errors.New("board: mic array not configured")
	}
	if m.cancel != nil {
		return nil
	}
	for i := range m.mods {
		m.mods[i].Reset()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.starts.Add(1)
	go m.loop(ctx, m.done)
	return nil
}

// Stop implements pipeline.MicArray. No handler method runs after it
// returns.
func (m *MicArray) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel == nil {
		return nil
	}
	m.cancel()
	<-m.done
	m.cancel, m.done = nil, nil
	return nil
}

// InjectError makes the next chunk of channel ch report a DMA error.
func (m *MicArray) InjectError(ch int) {
	m.fault.Store(int32(ch))
}

// Stall stops delivering chunks for d, as a hung DMA would.
func (m *MicArray) Stall(d time.Duration) {
	m.stallUntil.Store(time.Now().Add(d).UnixNano())
}

// Chunks returns the number of chunks delivered per channel.
func (m *MicArray) Chunks() uint64 {
	return m.chunks.Load()
}

// Starts returns how often capture was started.
func (m *MicArray) Starts() uint64 {
	return m.starts.Load()
}

func (m *MicArray) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.UnixNano() < m.stallUntil.Load() {
				continue
			}
			m.chunk()
		}
	}
}

// chunk delivers one chunk on every channel.
func (m *MicArray) chunk() {
	m.src.Read(m.pcm)
	fault := int(m.fault.Swap(-1))
	for ch, pp := range m.bufs {
		if ch == fault {
			m.log.Debug("board: injected pdm error", "channel", ch)
			m.h.PDMError(ch)
			continue
		}
		m.mods[ch].Modulate(pp.Writable(), m.pcm)
		h := pp.Complete()
		m.h.PDMReady(ch, h, m.clock.Ticks())
	}
	m.chunks.Add(1)
}
