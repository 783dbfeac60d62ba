package loopback

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// RxHandler receives loopback DMA events. Both methods are called from the
// interrupt side and never block.
type RxHandler interface {
	RxComplete()
	RxFIFOError()
}

// RxPort is the receive DMA that mirrors the amplifier output.
type RxPort interface {
	// Bind registers the event handler. It is called once.
	Bind(h RxHandler)

	// StartReceive receives continuously into buf, reporting RxComplete
	// each time buf has been filled.
	StartReceive(buf []byte) error

	// TerminateReceive stops reception.
	TerminateReceive()
}

// Events is notified about reference availability and loopback faults.
type Events interface {
	ReferenceReady()
	ReferenceFault()
}

// Direct captures the amplifier output with a dedicated receive DMA.
type Direct struct {
	port   RxPort
	events Events
	log    *slog.Logger
	sleep  func(time.Duration)

	dma []byte

	mu     sync.Mutex
	shared []byte

	running       atomic.Bool
	stopScheduled atomic.Bool
	skipFirst     atomic.Bool
	faults        atomic.Uint64
	blocks        atomic.Uint64
}

// NewDirect returns a stopped Direct bound to port.
func NewDirect(port RxPort, events Events, log *slog.Logger) *Direct {
	if log == nil {
		log = slog.Default()
	}
	n := int(Format.BytesInDuration(BlockDuration))
	d := &Direct{
		port:   port,
		events: events,
		log:    log,
		sleep:  time.Sleep,
		dma:    make([]byte, n),
		shared: make([]byte, n),
	}
	port.Bind(d)
	return d
}

// Running reports whether the receive DMA is active.
func (d *Direct) Running() bool {
	return d.running.Load()
}

// Enable starts the receive DMA if it is not running. The first completion
// after a start holds stale data and is dropped.
func (d *Direct) Enable() error {
	if d.running.Load() {
		return nil
	}
	d.skipFirst.Store(true)
	d.running.Store(true)
	if err := d.port.StartReceive(d.dma); err != nil {
		d.running.Store(false)
		return fmt.Errorf("loopback: start receive: %w", err)
	}
	return nil
}

// Disable schedules a stop and waits for the receive DMA to report its
// FIFO error. If it does not within 200 ms the DMA is terminated.
func (d *Direct) Disable() {
	d.stopScheduled.Store(true)
	defer d.stopScheduled.Store(false)

	for range 20 {
		if !d.running.Load() {
			return
		}
		d.sleep(10 * time.Millisecond)
	}
	if d.running.Load() {
		d.port.TerminateReceive()
		d.sleep(30 * time.Millisecond)
		d.running.Store(false)
	}
}

// RxComplete implements RxHandler.
func (d *Direct) RxComplete() {
	if d.skipFirst.Swap(false) {
		return
	}
	d.mu.Lock()
	copy(d.shared, d.dma)
	d.mu.Unlock()
	d.blocks.Add(1)
	d.events.ReferenceReady()
}

// RxFIFOError implements RxHandler. Unless a stop was scheduled, the
// receive DMA is terminated and a fault is raised.
func (d *Direct) RxFIFOError() {
	d.running.Store(false)
	if d.stopScheduled.Load() {
		return
	}
	d.port.TerminateReceive()
	d.faults.Add(1)
	d.events.ReferenceFault()
}

// Read copies the latest received block into dst and returns its length.
func (d *Direct) Read(dst []byte) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return copy(dst, d.shared)
}

// DirectStats is a snapshot of Direct counters.
type DirectStats struct {
	Running bool   `json:"running"`
	Blocks  uint64 `json:"blocks"`
	Faults  uint64 `json:"faults"`
}

// Stats returns a snapshot of the counters.
func (d *Direct) Stats() DirectStats {
	return DirectStats{
		Running: d.running.Load(),
		Blocks:  d.blocks.Load(),
		Faults:  d.faults.Load(),
	}
}
