package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/haivivi/voxpipe/pkg/amp"
	"github.com/haivivi/voxpipe/pkg/loopback"
	"github.com/haivivi/voxpipe/pkg/settings"
)

// ErrRunning is returned by Run when the pipeline is already running.
var ErrRunning = errors.New("pipeline: already running")

// Hardware groups the ports a Pipeline drives.
type Hardware struct {
	Mics MicArray
	Amp  amp.Port

	// Clock timestamps capture events. Required for LoopbackRing.
	Clock loopback.Clock

	// LoopbackRx mirrors the amplifier output. Required for LoopbackDirect.
	LoopbackRx loopback.RxPort
}

// Option configures Pipeline creation.
type Option func(*options)

type options struct {
	log   *slog.Logger
	afe   AFE
	store settings.Store
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithAFE sets the acoustic front end. Defaults to a MixdownAFE.
func WithAFE(afe AFE) Option {
	return func(o *options) { o.afe = afe }
}

// WithSettings sets the settings store. Defaults to an in-memory store.
// The caller owns the store.
func WithSettings(st settings.Store) Option {
	return func(o *options) { o.store = st }
}

// Pipeline is the complete audio path of the device.
type Pipeline struct {
	cfg   Config
	log   Logger
	store settings.Store

	amp      *amp.Amplifier
	streamer *amp.Streamer
	ring     *loopback.Ring
	direct   *loopback.Direct
	orch     *Orchestrator
	proc     *Processor

	mu           sync.Mutex
	running      bool
	settings     settings.Settings
	defaultAudio []byte
}

// New validates cfg and wires the pipeline to hw. Configuration errors wrap
// ErrInvalidConfig.
func New(cfg Config, hw Hardware, opts ...Option) (*Pipeline, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if o.afe == nil {
		o.afe = MixdownAFE{Channels: cfg.Channels, Layout: cfg.Layout}
	}
	if o.store == nil {
		o.store = settings.NewMemory()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if hw.Mics == nil || hw.Amp == nil {
		return nil, fmt.Errorf("%w: microphones and amplifier are required", ErrInvalidConfig)
	}
	switch {
	case cfg.Loopback == LoopbackRing && hw.Clock == nil:
		return nil, fmt.Errorf("%w: ring loopback needs a clock", ErrInvalidConfig)
	case cfg.Loopback == LoopbackDirect && hw.LoopbackRx == nil:
		return nil, fmt.Errorf("%w: direct loopback needs a receive port", ErrInvalidConfig)
	}

	log := SlogLogger(o.log)
	p := &Pipeline{
		cfg:      cfg,
		log:      log,
		store:    o.store,
		settings: settings.Default(),
	}
	p.amp = amp.New(hw.Amp, amp.Config{
		Slots:        cfg.Slots,
		Volume:       p.settings.Volume,
		Differential: cfg.Differential,
		Logger:       o.log,
	})
	p.streamer = amp.NewStreamer(p.amp)

	conv, err := loopback.NewReference(cfg.ReferenceGain)
	if err != nil {
		return nil, fmt.Errorf("pipeline: reference converter: %w", err)
	}
	p.orch, err = newOrchestrator(cfg, log, hw.Mics, conv)
	if err != nil {
		return nil, err
	}

	switch cfg.Loopback {
	case LoopbackRing:
		p.ring, err = loopback.NewRing(loopback.RingConfig{
			Clock:        hw.Clock,
			Drained:      p.amp.Drained,
			Slots:        cfg.Slots,
			SlotDuration: amp.SlotDuration,
			Logger:       o.log,
		})
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		p.amp.SetTap(p.ring)
		p.orch.ring = p.ring
	case LoopbackDirect:
		p.direct = loopback.NewDirect(hw.LoopbackRx, p.orch, o.log)
		p.orch.direct = p.direct
	}

	p.proc = newProcessor(cfg, log, o.afe, p.orch)
	return p, nil
}

// Run applies the persisted settings, starts capture unless muted and runs
// every pipeline goroutine until ctx is done. It returns ctx.Err().
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrRunning
	}
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	s, err := settings.LoadOrDefault(ctx, p.store)
	if err != nil {
		p.log.WarnPrintf("load settings: %v, using defaults", err)
		s = settings.Default()
	}
	p.apply(s)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				p.log.ErrorPrintf("%s: %v", name, err)
			}
		}()
	}
	run("amplifier", p.amp.Run)
	run("orchestrator", p.orch.Run)
	run("processor", p.proc.Run)

	if !s.Muted {
		if err := p.orch.MicsOn(); err != nil {
			p.log.ErrorPrintf("%v", err)
		}
	}
	p.log.InfoPrintf("running: %d mics, loopback %s, volume %d, muted %v",
		p.cfg.Channels, p.cfg.Loopback, s.Volume, s.Muted)

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

func (p *Pipeline) apply(s settings.Settings) {
	p.mu.Lock()
	p.settings = s
	p.mu.Unlock()
	p.amp.SetVolume(s.Volume)
	if p.cfg.Loopback != LoopbackNone {
		if err := p.orch.SetLoopback(s.Loopback); err != nil {
			p.log.WarnPrintf("%v", err)
		}
	}
}

// update changes the settings under the lock and persists them.
func (p *Pipeline) update(ctx context.Context, fn func(*settings.Settings)) error {
	p.mu.Lock()
	fn(&p.settings)
	s := p.settings
	p.mu.Unlock()
	if err := p.store.Save(ctx, s); err != nil {
		return fmt.Errorf("pipeline: save settings: %w", err)
	}
	return nil
}

// Settings returns the current settings.
func (p *Pipeline) Settings() settings.Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}

// Mute stops capture.
func (p *Pipeline) Mute(ctx context.Context) error {
	if err := p.orch.MicsOff(); err != nil {
		return err
	}
	return p.update(ctx, func(s *settings.Settings) { s.Muted = true })
}

// Unmute starts capture.
func (p *Pipeline) Unmute(ctx context.Context) error {
	if err := p.orch.MicsOn(); err != nil {
		return err
	}
	return p.update(ctx, func(s *settings.Settings) { s.Muted = false })
}

// SetVolume sets the playback volume, clamped to 0..100.
func (p *Pipeline) SetVolume(ctx context.Context, v int) error {
	p.amp.SetVolume(v)
	v = p.amp.Volume()
	return p.update(ctx, func(s *settings.Settings) { s.Volume = v })
}

// EnableLoopback turns the echo reference on.
func (p *Pipeline) EnableLoopback(ctx context.Context) error {
	return p.setLoopback(ctx, true)
}

// DisableLoopback turns the echo reference off. The front end then sees a
// silent reference.
func (p *Pipeline) DisableLoopback(ctx context.Context) error {
	return p.setLoopback(ctx, false)
}

func (p *Pipeline) setLoopback(ctx context.Context, on bool) error {
	if p.cfg.Loopback == LoopbackNone && on {
		return fmt.Errorf("pipeline: loopback mode is %s", LoopbackNone)
	}
	if err := p.orch.SetLoopback(on); err != nil {
		return err
	}
	return p.update(ctx, func(s *settings.Settings) { s.Loopback = on })
}

// SetDefaultAudio sets the clip played by PlayDefault. data is 48 kHz
// stereo and is not copied.
func (p *Pipeline) SetDefaultAudio(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defaultAudio = data
}

// PlayDefault starts playing the default clip and returns immediately.
func (p *Pipeline) PlayDefault() error {
	p.mu.Lock()
	data := p.defaultAudio
	p.mu.Unlock()
	if len(data) == 0 {
		return errors.New("pipeline: no default audio")
	}
	return p.amp.Write(data)
}

// Play plays data once through the amplifier state machine and waits for it
// to finish.
func (p *Pipeline) Play(ctx context.Context, data []byte) error {
	return p.amp.WriteBlocking(ctx, data)
}

// PlayClip streams data through the write slots. It returns amp.ErrBusy if
// another clip is streaming.
func (p *Pipeline) PlayClip(ctx context.Context, data []byte) error {
	return p.streamer.Play(ctx, data)
}

// StopPlayback aborts the active playback.
func (p *Pipeline) StopPlayback() {
	p.amp.Abort()
}

// ReadBlock blocks until a recognizer block is available and copies it into
// dst, which must hold BlockLen samples.
func (p *Pipeline) ReadBlock(ctx context.Context, dst []int16) error {
	return p.proc.Read(ctx, dst)
}

// BlockLen returns the number of samples in a recognizer block.
func (p *Pipeline) BlockLen() int {
	return p.proc.BlockLen()
}

// Orchestrator returns the capture orchestrator.
func (p *Pipeline) Orchestrator() *Orchestrator { return p.orch }

// Amplifier returns the playback amplifier.
func (p *Pipeline) Amplifier() *amp.Amplifier { return p.amp }

// Stats is a snapshot of every pipeline counter.
type Stats struct {
	Settings     settings.Settings     `json:"settings"`
	Orchestrator OrchestratorStats     `json:"orchestrator"`
	Processor    ProcessorStats        `json:"processor"`
	Amplifier    amp.Stats             `json:"amplifier"`
	Ring         *loopback.RingStats   `json:"ring,omitempty"`
	Direct       *loopback.DirectStats `json:"direct,omitempty"`
}

// Stats returns a snapshot of every pipeline counter.
func (p *Pipeline) Stats() Stats {
	st := Stats{
		Settings:     p.Settings(),
		Orchestrator: p.orch.Stats(),
		Processor:    p.proc.Stats(),
		Amplifier:    p.amp.Stats(),
	}
	if p.ring != nil {
		rs := p.ring.Stats()
		st.Ring = &rs
	}
	if p.direct != nil {
		ds := p.direct.Stats()
		st.Direct = &ds
	}
	return st
}
