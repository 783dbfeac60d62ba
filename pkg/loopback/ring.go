package loopback

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haivivi/voxpipe/pkg/buffer"
)

// RingConfig configures a Ring.
type RingConfig struct {
	Clock  Clock
	Timing Timing

	// Drained reports whether every packet already handed to the amplifier
	// has been played.
	Drained func() bool

	// Slots and SlotDuration size the delay line: it holds every write
	// slot plus the largest delay.
	Slots        int
	SlotDuration time.Duration

	// StartDelay is waited once before resynchronizing, giving the capture
	// side time to restart.
	StartDelay time.Duration

	// SyncPolls bounds the wait for Drained, polled every SyncInterval.
	SyncPolls    int
	SyncInterval time.Duration

	Logger *slog.Logger
}

func (c *RingConfig) setDefaults() {
	if c.Timing.TickDen == 0 {
		c.Timing = DefaultTiming
	}
	if c.Drained == nil {
		c.Drained = func() bool { return true }
	}
	if c.Slots <= 0 {
		c.Slots = 4
	}
	if c.SlotDuration <= 0 {
		c.SlotDuration = 20 * time.Millisecond
	}
	if c.StartDelay <= 0 {
		c.StartDelay = 15 * time.Millisecond
	}
	if c.SyncPolls <= 0 {
		c.SyncPolls = 100
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Ring keeps a time-aligned copy of the loudspeaker signal.
//
// The playback side calls Transmit for every packet; the capture side calls
// ReadReference once per capture half. stateMu is always taken before
// dataMu. Neither is held while Transmit waits for the amplifier to drain,
// so Enable and Disable never wait on a resync.
type Ring struct {
	cfg        RingConfig
	bytesPerMs int
	sleep      func(time.Duration)

	stateMu sync.Mutex
	state   State
	// session changes on every Enable and Disable.
	session uint64

	// view mirrors state for the capture side, which must not wait on
	// stateMu while a resync is in progress.
	view atomic.Int32

	dataMu sync.Mutex
	ring   *buffer.RingBuffer[byte]

	mark     atomic.Uint32
	marked   atomic.Bool
	syncs    atomic.Uint64
	clamps   atomic.Uint64
	overruns atomic.Uint64
}

// NewRing returns a disabled Ring.
func NewRing(cfg RingConfig) (*Ring, error) {
	cfg.setDefaults()
	if cfg.Clock == nil {
		return nil, errors.New("loopback: ring needs a clock")
	}
	bpm := Format.BytesPerMs()
	size := cfg.Slots*int(Format.BytesInDuration(cfg.SlotDuration)) + cfg.Timing.MaxDelayBytes(bpm)
	return &Ring{
		cfg:        cfg,
		bytesPerMs: bpm,
		sleep:      time.Sleep,
		ring:       buffer.RingN[byte](size),
	}, nil
}

// State returns the synchronizer state.
func (r *Ring) State() State {
	return State(r.view.Load())
}

func (r *Ring) setStateLocked(s State) {
	r.state = s
	r.session++
	r.view.Store(int32(s))
}

// Enable starts a new alignment session. The next transmitted packet
// resynchronizes before reference data is buffered again.
func (r *Ring) Enable() {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	r.dataMu.Lock()
	r.ring.Reset()
	r.dataMu.Unlock()
	r.setStateLocked(NeedSync)
}

// Disable stops buffering and discards buffered reference data.
func (r *Ring) Disable() {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	r.dataMu.Lock()
	r.ring.Reset()
	r.dataMu.Unlock()
	r.setStateLocked(Disabled)
}

// Transmit sends p through send and, while enabled, appends it to the
// delay line. The first packet of a session is preceded by the silence that
// aligns it with the capture clock.
func (r *Ring) Transmit(p []byte, send func() error) error {
	if !r.marked.Load() {
		return send()
	}

	r.resync()

	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	if r.state != Enabled {
		return send()
	}

	r.dataMu.Lock()
	defer r.dataMu.Unlock()
	if err := send(); err != nil {
		return err
	}

	occupied := r.ring.Len()
	if occupied == 0 {
		n, clamped := r.cfg.Timing.DelayBytes(r.mark.Load(), r.cfg.Clock.Ticks(), r.bytesPerMs)
		if clamped {
			r.clamps.Add(1)
			r.cfg.Logger.Warn("loopback: delay clamped", "bytes", n)
		}
		if err := r.ring.WriteZero(n); err != nil {
			return fmt.Errorf("loopback: pad %d bytes: %w", n, err)
		}
	}
	if _, err := r.ring.Write(p); err != nil {
		r.overruns.Add(1)
		r.cfg.Logger.Warn("loopback: reference dropped",
			"len", len(p), "free", r.ring.Cap()-occupied, "err", err)
	}
	return nil
}

// resync moves a NeedSync ring to Enabled once the amplifier has drained.
// An Enable or Disable during the wait supersedes it.
func (r *Ring) resync() {
	r.stateMu.Lock()
	if r.state != NeedSync {
		r.stateMu.Unlock()
		return
	}
	session := r.session
	r.stateMu.Unlock()

	r.sleep(r.cfg.StartDelay)
	drained := false
	for range r.cfg.SyncPolls {
		if r.cfg.Drained() {
			drained = true
			break
		}
		r.sleep(r.cfg.SyncInterval)
	}
	if !drained {
		return
	}

	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	if r.state == NeedSync && r.session == session {
		r.setStateLocked(Enabled)
		r.syncs.Add(1)
	}
}

// Mark records the timer value of the latest capture event.
func (r *Ring) Mark(ticks uint32) {
	r.mark.Store(ticks)
	r.marked.Store(true)
}

// ReadReference records the capture timestamp and moves up to 10 ms of
// reference into dst. It returns 0 unless the ring is enabled.
func (r *Ring) ReadReference(ticks uint32, dst []byte) int {
	r.Mark(ticks)
	if r.State() != Enabled {
		return 0
	}
	if limit := int(Format.BytesInDuration(BlockDuration)); len(dst) > limit {
		dst = dst[:limit]
	}
	r.dataMu.Lock()
	defer r.dataMu.Unlock()
	n, _ := r.ring.Read(dst)
	return n
}

// Buffered returns the number of bytes in the delay line.
func (r *Ring) Buffered() int {
	return r.ring.Len()
}

// RingStats is a snapshot of Ring counters.
type RingStats struct {
	State    State  `json:"state"`
	Buffered int    `json:"buffered"`
	Syncs    uint64 `json:"syncs"`
	Clamps   uint64 `json:"clamps"`
	Overruns uint64 `json:"overruns"`
}

// Stats returns a snapshot of the counters.
func (r *Ring) Stats() RingStats {
	return RingStats{
		State:    r.State(),
		Buffered: r.Buffered(),
		Syncs:    r.syncs.Load(),
		Clamps:   r.clamps.Load(),
		Overruns: r.overruns.Load(),
	}
}
