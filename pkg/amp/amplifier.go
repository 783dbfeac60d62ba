package amp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/haivivi/voxpipe/pkg/audio/pcm"
)

// Config configures an Amplifier.
type Config struct {
	// Slots is the number of write slots. Defaults to DefaultSlots.
	Slots int

	// Volume is the initial volume, 0 to 100.
	Volume int

	// Differential drives the right channel with the inverted left channel
	// instead of the right input.
	Differential bool

	// Tap, if set, sees every transfer before it reaches the port.
	Tap Tap

	Logger *slog.Logger
}

// Amplifier plays 48 kHz stereo audio through a Port.
type Amplifier struct {
	port   Port
	log    *slog.Logger
	diff   bool
	volume atomic.Int32

	tapMu sync.RWMutex
	tap   Tap

	// chunkDone and abortReq wake the send goroutine.
	chunkDone chan struct{}
	abortReq  chan struct{}
	abort     atomic.Bool
	inflight  atomic.Int32

	// sendMu serializes transmissions with the DMA teardown of an abort.
	// It is taken before mu.
	sendMu sync.Mutex
	chunk  Transfer

	mu    sync.Mutex
	state State
	clip  []byte
	off   int
	idle  chan struct{}

	// gen counts playbacks; abortGen is the playback an Abort was aimed at.
	gen      uint64
	abortGen uint64

	// aborted is the idle channel of the last playback ended by Abort.
	aborted chan struct{}
	aborts  atomic.Uint64

	slots     *SlotPool
	slotTx    []Transfer
	slotBusy  []atomic.Bool
	slotFreed chan struct{}

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// New creates an Amplifier on port and binds itself as the port's handler.
// Run must be started for state machine writes to make progress.
func New(port Port, cfg Config) *Amplifier {
	if cfg.Slots <= 0 {
		cfg.Slots = DefaultSlots
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	slotBytes := int(Format.BytesInDuration(SlotDuration))
	a := &Amplifier{
		port:      port,
		log:       cfg.Logger,
		diff:      cfg.Differential,
		tap:       cfg.Tap,
		chunkDone: make(chan struct{}, 1),
		abortReq:  make(chan struct{}, 1),
		idle:      make(chan struct{}),
		chunk:     Transfer{Data: make([]byte, ChunkBytes), slot: -1},
		slots:     newSlotPool(cfg.Slots),
		slotTx:    make([]Transfer, cfg.Slots),
		slotBusy:  make([]atomic.Bool, cfg.Slots),
		slotFreed: make(chan struct{}, 1),
	}
	close(a.idle)
	backing := make([]byte, cfg.Slots*slotBytes)
	for i := range a.slotTx {
		a.slotTx[i] = Transfer{Data: backing[i*slotBytes : (i+1)*slotBytes], slot: i}
	}
	a.SetVolume(cfg.Volume)
	port.Bind(a)
	return a
}

// SetTap replaces the transfer tap. A nil tap removes it.
func (a *Amplifier) SetTap(t Tap) {
	a.tapMu.Lock()
	defer a.tapMu.Unlock()
	a.tap = t
}

// SetVolume sets the output volume, clamped to 0..100.
func (a *Amplifier) SetVolume(v int) {
	a.volume.Store(int32(max(0, min(100, v))))
}

// Volume returns the output volume.
func (a *Amplifier) Volume() int {
	return int(a.volume.Load())
}

// State returns the playback state.
func (a *Amplifier) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Slots returns the write slot pool.
func (a *Amplifier) Slots() *SlotPool {
	return a.slots
}

// Drained reports whether no transfer is waiting for completion.
func (a *Amplifier) Drained() bool {
	return a.inflight.Load() == 0
}

// Write starts playing data once and returns immediately. It fails with
// ErrBusy unless the amplifier is idle.
func (a *Amplifier) Write(data []byte) error {
	_, err := a.start(data, Playing)
	return err
}

// WriteLoop plays data repeatedly until Abort.
func (a *Amplifier) WriteLoop(data []byte) error {
	_, err := a.start(data, Looping)
	return err
}

// WriteBlocking plays data once and returns when the last chunk has been
// transmitted. Cancelling ctx aborts the playback. It returns ErrAborted if
// Abort ends the playback first.
func (a *Amplifier) WriteBlocking(ctx context.Context, data []byte) error {
	idle, err := a.start(data, Playing)
	if err != nil || idle == nil {
		return err
	}
	select {
	case <-idle:
	case <-ctx.Done():
		a.Abort()
		return ctx.Err()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.aborted == idle {
		return ErrAborted
	}
	return nil
}

// start begins a playback and returns the channel closed when it ends. An
// empty clip yields a nil channel.
func (a *Amplifier) start(data []byte, st State) (chan struct{}, error) {
	n := len(data) - len(data)%Align
	if n == 0 {
		return nil, nil
	}

	a.mu.Lock()
	if a.state != Idle {
		a.mu.Unlock()
		return nil, ErrBusy
	}
	a.clip = data[:n]
	a.off = 0
	a.state = st
	a.idle = make(chan struct{})
	a.gen++
	gen, idle := a.gen, a.idle
	a.mu.Unlock()

	if err := a.sendChunk(gen); err != nil {
		a.stop(gen)
		return nil, err
	}
	return idle, nil
}

// sendChunk transmits the chunk at a.off of playback gen. It does nothing
// once that playback has ended. mu is not held during the transmission.
func (a *Amplifier) sendChunk(gen uint64) error {
	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	a.mu.Lock()
	if a.gen != gen || (a.state != Playing && a.state != Looping) {
		a.mu.Unlock()
		return nil
	}
	off := a.off
	end := min(off+ChunkBytes, len(a.clip))
	a.chunk.Data = a.chunk.Data[:cap(a.chunk.Data)]
	n := copy(a.chunk.Data, a.clip[off:end])
	a.chunk.Data = a.chunk.Data[:n]
	a.mu.Unlock()

	a.scale(a.chunk.Data)
	if err := a.transmit(&a.chunk); err != nil {
		return fmt.Errorf("amp: send chunk at %d: %w", off, err)
	}
	return nil
}

// stop ends playback gen if it is still current.
func (a *Amplifier) stop(gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gen == gen {
		a.toIdleLocked()
	}
}

func (a *Amplifier) toIdleLocked() {
	a.state = Idle
	a.clip = nil
	a.off = 0
	select {
	case <-a.idle:
	default:
		close(a.idle)
	}
}

// WriteNoWait sends one packet through a free write slot. It does not touch
// the playback state and fails with ErrBusy when every slot is in use.
func (a *Amplifier) WriteNoWait(data []byte) error {
	return a.writeSlot(data, a.aborts.Load())
}

// writeSlot sends data through a write slot unless an abort has completed
// since the abort count was aborts.
func (a *Amplifier) writeSlot(data []byte, aborts uint64) error {
	if len(data) > len(a.slotTx[0].Data) {
		return ErrTooLarge
	}
	n := len(data) - len(data)%Align
	if n == 0 {
		return nil
	}
	a.sendMu.Lock()
	defer a.sendMu.Unlock()
	if a.aborts.Load() != aborts {
		return ErrAborted
	}
	if !a.slots.acquire() {
		return ErrBusy
	}
	i := 0
	for ; i < len(a.slotBusy); i++ {
		if a.slotBusy[i].CompareAndSwap(false, true) {
			break
		}
	}
	if i == len(a.slotBusy) {
		a.slots.release()
		return ErrBusy
	}

	tx := &a.slotTx[i]
	tx.Data = tx.Data[:cap(tx.Data)]
	copy(tx.Data, data[:n])
	tx.Data = tx.Data[:n]
	a.scale(tx.Data)
	if err := a.transmit(tx); err != nil {
		a.slotBusy[i].Store(false)
		a.slots.release()
		return fmt.Errorf("amp: send slot %d: %w", i, err)
	}
	return nil
}

func (a *Amplifier) transmit(tx *Transfer) error {
	send := func() error {
		a.inflight.Add(1)
		if err := a.port.Send(tx); err != nil {
			a.inflight.Add(-1)
			return err
		}
		a.sent.Add(1)
		return nil
	}
	a.tapMu.RLock()
	tap := a.tap
	a.tapMu.RUnlock()
	if tap == nil {
		return send()
	}
	return tap.Transmit(tx.Data, send)
}

// scale applies the volume, and the differential output if enabled, to a
// buffer of interleaved stereo samples.
func (a *Amplifier) scale(b []byte) {
	vol := a.volume.Load()
	if vol == 100 && !a.diff {
		return
	}
	for i := 0; i+4 <= len(b); i += 4 {
		l := int32(int16(uint16(b[i]) | uint16(b[i+1])<<8))
		r := int32(int16(uint16(b[i+2]) | uint16(b[i+3])<<8))
		ls := pcm.Clamp16(l * vol / 100)
		var rs int16
		if a.diff {
			rs = pcm.Clamp16(-int32(ls))
		} else {
			rs = pcm.Clamp16(r * vol / 100)
		}
		b[i], b[i+1] = byte(ls), byte(uint16(ls)>>8)
		b[i+2], b[i+3] = byte(rs), byte(uint16(rs)>>8)
	}
}

// TxComplete implements Handler.
func (a *Amplifier) TxComplete(tx *Transfer) {
	a.inflight.Add(-1)
	if tx.slot >= 0 {
		a.slotBusy[tx.slot].Store(false)
		a.slots.release()
		a.notifySlot()
		return
	}
	select {
	case a.chunkDone <- struct{}{}:
	default:
		a.dropped.Add(1)
	}
}

func (a *Amplifier) notifySlot() {
	select {
	case a.slotFreed <- struct{}{}:
	default:
	}
}

// Abort stops the active playback and any write slot transfers. It returns
// at once; the send goroutine terminates the DMA, frees every write slot and
// returns to Idle. Abort has no effect when nothing is playing, and a write
// issued after the teardown plays normally.
func (a *Amplifier) Abort() {
	a.mu.Lock()
	switch {
	case a.state == Playing || a.state == Looping:
		a.state = Aborting
	case a.state == Idle && a.Drained():
		a.mu.Unlock()
		return
	}
	a.abortGen = a.gen
	a.mu.Unlock()
	a.abort.Store(true)
	select {
	case a.abortReq <- struct{}{}:
	default:
	}
}

// WaitIdle blocks until the amplifier is idle or ctx is done.
func (a *Amplifier) WaitIdle(ctx context.Context) error {
	a.mu.Lock()
	idle := a.idle
	a.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the send goroutine. It issues the next chunk after every
// completion and carries out aborts, until ctx is done.
func (a *Amplifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			a.port.Terminate()
			a.mu.Lock()
			a.toIdleLocked()
			a.mu.Unlock()
			return ctx.Err()
		case <-a.abortReq:
			a.handleAbort()
		case <-a.chunkDone:
			if a.abort.Load() {
				a.handleAbort()
				continue
			}
			a.advance()
		}
	}
}

func (a *Amplifier) handleAbort() {
	if !a.abort.Swap(false) {
		return
	}
	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	a.mu.Lock()
	stale := a.abortGen != a.gen
	a.mu.Unlock()
	if stale {
		// A newer playback started after the request.
		return
	}

	a.port.Terminate()
	a.inflight.Store(0)
	for i := range a.slotBusy {
		a.slotBusy[i].Store(false)
	}
	a.slots.restore()
	a.notifySlot()
	select {
	case <-a.chunkDone:
	default:
	}

	a.mu.Lock()
	if a.state != Idle {
		a.aborted = a.idle
	}
	a.toIdleLocked()
	a.mu.Unlock()
	a.aborts.Add(1)
	a.log.Debug("amp: playback aborted")
}

func (a *Amplifier) advance() {
	a.mu.Lock()
	if a.state != Playing && a.state != Looping {
		a.mu.Unlock()
		return
	}
	a.off += ChunkBytes
	if a.off >= len(a.clip) {
		if a.state == Playing {
			a.toIdleLocked()
			a.mu.Unlock()
			return
		}
		a.off = 0
	}
	gen := a.gen
	a.mu.Unlock()

	if err := a.sendChunk(gen); err != nil {
		a.log.Error(err.Error())
		a.stop(gen)
	}
}

// Stats is a snapshot of amplifier counters.
type Stats struct {
	State     State  `json:"state"`
	Volume    int    `json:"volume"`
	FreeSlots int    `json:"free_slots"`
	Sent      uint64 `json:"sent"`
	Overruns  uint64 `json:"overruns"`
}

// Stats returns a snapshot of the amplifier counters.
func (a *Amplifier) Stats() Stats {
	return Stats{
		State:     a.State(),
		Volume:    a.Volume(),
		FreeSlots: a.slots.Free(),
		Sent:      a.sent.Load(),
		Overruns:  a.dropped.Load(),
	}
}
