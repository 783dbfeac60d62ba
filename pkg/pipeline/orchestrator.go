package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/haivivi/voxpipe/pkg/audio/pdm"
	"github.com/haivivi/voxpipe/pkg/loopback"
)

var halves = [2]pdm.Half{pdm.Ping, pdm.Pong}

// Frame is one completed capture half with its echo reference.
type Frame struct {
	Half pdm.Half
	Seq  uint64
	Mic  []int16
	Ref  []int16

	// Epoch changes whenever capture is started again, so frames of
	// different epochs are not contiguous.
	Epoch uint64
}

// Orchestrator turns capture interrupts into PCM frames and hands every
// completed half to the Processor. It owns the capture restart policy:
// when events stop arriving while the microphones are on, or a DMA reports
// an error, capture and loopback are restarted together.
type Orchestrator struct {
	cfg    Config
	log    Logger
	events *EventGroup
	mics   MicArray

	pdm    []*pdm.PingPong[uint32]
	dec    *pdm.Decimator
	frames [2][]int16
	refs   [2][]int16
	masks  [2]ReadyMask
	ticks  [2]atomic.Uint32

	ring     *loopback.Ring
	direct   *loopback.Direct
	conv     *loopback.Reference
	refBytes []byte
	refIndex pdm.Half

	// Completed halves are copied into one of two Frames that circulate
	// between free and ready.
	free  chan *Frame
	ready chan *Frame
	seq   uint64
	epoch uint64

	mu       sync.Mutex
	micsOn   bool
	feedback bool

	timeouts       atomic.Uint64
	restarts       atomic.Uint64
	pdmErrors      atomic.Uint64
	loopbackFaults atomic.Uint64
	frameErrors    atomic.Uint64
	captureLate    atomic.Uint64
	notifyOverruns atomic.Uint64
	halvesDone     atomic.Uint64
}

func newOrchestrator(cfg Config, log Logger, mics MicArray, conv *loopback.Reference) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:       cfg,
		log:       log,
		events:    NewEventGroup(),
		mics:      mics,
		pdm:       make([]*pdm.PingPong[uint32], cfg.Channels),
		dec:       pdm.NewDecimator(cfg.Channels, cfg.Layout),
		conv:      conv,
		refBytes:  make([]byte, loopback.Format.BytesInDuration(loopback.BlockDuration)),
		free:      make(chan *Frame, 2),
		ready:     make(chan *Frame, 2),
	}
	frameLen := o.dec.FrameLen()
	for _, h := range halves {
		o.frames[h] = make([]int16, frameLen)
		o.refs[h] = make([]int16, loopback.ReferenceSamples)
		o.masks[h] = NewReadyMask(cfg.Channels)
	}
	for range cap(o.free) {
		o.free <- &Frame{
			Mic: make([]int16, frameLen),
			Ref: make([]int16, loopback.ReferenceSamples),
		}
	}
	for ch := range o.pdm {
		o.pdm[ch] = pdm.NewPingPong[uint32](pdm.WordsPerChunk)
	}
	if err := mics.Configure(o.pdm, o); err != nil {
		return nil, fmt.Errorf("pipeline: configure mics: %w", err)
	}
	return o, nil
}

// PDMReady implements CaptureHandler.
func (o *Orchestrator) PDMReady(ch int, h pdm.Half, ticks uint32) {
	if ch == 0 {
		o.ticks[h].Store(ticks)
	}
	o.events.Set(HalfEvent(h, ch))
}

// PDMError implements CaptureHandler.
func (o *Orchestrator) PDMError(ch int) {
	o.events.Set(EventPDMError)
}

// ReferenceReady implements loopback.Events.
func (o *Orchestrator) ReferenceReady() {
	o.events.Set(EventReference)
}

// ReferenceFault implements loopback.Events.
func (o *Orchestrator) ReferenceFault() {
	o.events.Set(EventLoopbackError)
}

// MicsOn starts capture and the loopback. It does nothing if capture is
// already on.
func (o *Orchestrator) MicsOn() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.micsOn {
		return nil
	}
	return o.micsOnLocked()
}

// MicsOff stops capture and the loopback. It does nothing if capture is
// already off.
func (o *Orchestrator) MicsOff() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.micsOn {
		return nil
	}
	return o.micsOffLocked()
}

// MicsActive reports whether capture is on.
func (o *Orchestrator) MicsActive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.micsOn
}

func (o *Orchestrator) micsOnLocked() error {
	o.events.Clear()
	for _, h := range halves {
		o.masks[h].Clear()
	}
	o.refIndex = pdm.Ping
	for _, pp := range o.pdm {
		pp.Reset()
	}
	o.dec.Reset()
	o.epoch++

	if err := o.mics.Start(); err != nil {
		return fmt.Errorf("pipeline: start mics: %w", err)
	}
	o.micsOn = true
	if !o.feedback {
		return nil
	}

	switch {
	case o.ring != nil:
		o.ring.Enable()
	case o.direct != nil:
		if err := o.direct.Enable(); err != nil {
			o.log.WarnPrintf("loopback enable: %v", err)
		}
	}
	return nil
}

func (o *Orchestrator) micsOffLocked() error {
	err := o.mics.Stop()
	o.micsOn = false
	o.disableLoopbackLocked()
	if err != nil {
		return fmt.Errorf("pipeline: stop mics: %w", err)
	}
	return nil
}

func (o *Orchestrator) disableLoopbackLocked() {
	switch {
	case o.ring != nil:
		o.ring.Disable()
	case o.direct != nil:
		o.direct.Disable()
	}
}

// SetLoopback turns the echo reference on or off. While capture is off the
// choice is applied at the next MicsOn.
func (o *Orchestrator) SetLoopback(on bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.feedback == on {
		return nil
	}
	o.feedback = on
	if !o.micsOn {
		return nil
	}
	if !on {
		o.disableLoopbackLocked()
		return nil
	}
	switch {
	case o.ring != nil:
		o.ring.Enable()
	case o.direct != nil:
		return o.direct.Enable()
	}
	return nil
}

// Loopback reports whether the echo reference is wanted.
func (o *Orchestrator) Loopback() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.feedback
}

func (o *Orchestrator) restartLocked() {
	o.restarts.Add(1)
	if o.micsOn {
		if err := o.micsOffLocked(); err != nil {
			o.log.ErrorPrintf("restart: %v", err)
		}
	}
	if err := o.micsOnLocked(); err != nil {
		o.log.ErrorPrintf("restart: %v", err)
	}
}

// Run handles events until ctx is done, then stops capture.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		if err := o.step(ctx); err != nil {
			if offErr := o.MicsOff(); offErr != nil {
				o.log.WarnPrintf("%v", offErr)
			}
			return err
		}
	}
}

// step waits for one batch of events and handles it.
func (o *Orchestrator) step(ctx context.Context) error {
	bits, err := o.events.Wait(ctx, o.cfg.Timeout)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if bits == 0 {
		if o.micsOn {
			o.timeouts.Add(1)
			o.log.WarnPrintf("no capture event for %v, restarting capture", o.cfg.Timeout)
			o.restartLocked()
		}
		return nil
	}
	if !o.micsOn {
		return nil
	}
	if bits&(EventPDMError|EventLoopbackError) != 0 {
		if bits&EventPDMError != 0 {
			o.pdmErrors.Add(1)
			o.log.WarnPrintf("microphone dma error, restarting capture")
		}
		if bits&EventLoopbackError != 0 {
			o.loopbackFaults.Add(1)
			o.log.WarnPrintf("loopback dma fault, restarting capture")
		}
		o.restartLocked()
		return nil
	}

	if bits&EventReference != 0 && o.direct != nil {
		n := o.direct.Read(o.refBytes)
		o.convertReference(o.refBytes[:n], o.refs[o.refIndex])
		o.refIndex = o.refIndex.Other()
	}

	for ch := range o.cfg.Channels {
		for _, h := range halves {
			if bits&HalfEvent(h, ch) == 0 {
				continue
			}
			raw, ok := o.pdm[ch].Reader(h)
			if !ok {
				o.captureLate.Add(1)
				continue
			}
			if err := o.dec.Decimate(raw, ch, o.frames[h]); err != nil {
				o.frameErrors.Add(1)
				o.log.ErrorPrintf("decimate channel %d %v: %v", ch, h, err)
				continue
			}
			o.masks[h].Set(ch)
		}
	}

	for _, h := range halves {
		if o.masks[h].Complete() {
			o.completeLocked(h)
		}
	}
	return nil
}

func (o *Orchestrator) completeLocked(h pdm.Half) {
	switch {
	case o.ring != nil:
		n := o.ring.ReadReference(o.ticks[h].Load(), o.refBytes)
		o.convertReference(o.refBytes[:n], o.refs[h])
	case o.direct != nil && !o.feedback:
		clear(o.refs[h])
	}
	o.masks[h].Clear()

	var f *Frame
	select {
	case f = <-o.free:
	default:
		o.notifyOverruns.Add(1)
		return
	}
	o.seq++
	f.Half = h
	f.Seq = o.seq
	f.Epoch = o.epoch
	copy(f.Mic, o.frames[h])
	copy(f.Ref, o.refs[h])
	o.ready <- f
	o.halvesDone.Add(1)
}

func (o *Orchestrator) convertReference(src []byte, dst []int16) {
	if o.conv == nil {
		return
	}
	if err := o.conv.Convert(src, dst); err != nil {
		clear(dst)
		o.log.ErrorPrintf("reference: %v", err)
	}
}

// OrchestratorStats is a snapshot of Orchestrator counters.
type OrchestratorStats struct {
	MicsOn         bool   `json:"mics_on"`
	Loopback       bool   `json:"loopback"`
	Halves         uint64 `json:"halves"`
	Timeouts       uint64 `json:"timeouts"`
	Restarts       uint64 `json:"restarts"`
	PDMErrors      uint64 `json:"pdm_errors"`
	LoopbackFaults uint64 `json:"loopback_faults"`
	FrameErrors    uint64 `json:"frame_errors"`
	CaptureLate    uint64 `json:"capture_late"`
	NotifyOverruns uint64 `json:"notify_overruns"`
}

// Stats returns a snapshot of the counters.
func (o *Orchestrator) Stats() OrchestratorStats {
	o.mu.Lock()
	on, fb := o.micsOn, o.feedback
	o.mu.Unlock()
	return OrchestratorStats{
		MicsOn:         on,
		Loopback:       fb,
		Halves:         o.halvesDone.Load(),
		Timeouts:       o.timeouts.Load(),
		Restarts:       o.restarts.Load(),
		PDMErrors:      o.pdmErrors.Load(),
		LoopbackFaults: o.loopbackFaults.Load(),
		FrameErrors:    o.frameErrors.Load(),
		CaptureLate:    o.captureLate.Load(),
		NotifyOverruns: o.notifyOverruns.Load(),
	}
}
