package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haivivi/voxpipe/pkg/amp"
	"github.com/haivivi/voxpipe/pkg/loopback"
	"github.com/haivivi/voxpipe/pkg/settings"
)

type fakePort struct {
	h    amp.Handler
	sent atomic.Int32
}

func (p *fakePort) Bind(h amp.Handler) { p.h = h }

func (p *fakePort) Send(tx *amp.Transfer) error {
	p.sent.Add(1)
	go p.h.TxComplete(tx)
	return nil
}

func (p *fakePort) Terminate() {}

type fakeClock struct{ ticks atomic.Uint32 }

func (c *fakeClock) Ticks() uint32 { return c.ticks.Add(8) }

type fakeRx struct{ h loopback.RxHandler }

func (r *fakeRx) Bind(h loopback.RxHandler)     { r.h = h }
func (r *fakeRx) StartReceive(buf []byte) error { return nil }
func (r *fakeRx) TerminateReceive()             {}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(time.Millisecond)
	}
}

type testPipeline struct {
	*Pipeline
	mics *fakeMics
	port *fakePort
	done chan error
	stop context.CancelFunc
}

func startPipeline(t *testing.T, cfg Config, opts ...Option) *testPipeline {
	t.Helper()
	mics := &fakeMics{}
	port := &fakePort{}
	p, err := New(cfg, Hardware{Mics: mics, Amp: port, Clock: &fakeClock{}, LoopbackRx: &fakeRx{}}, opts...)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	tp := &testPipeline{Pipeline: p, mics: mics, port: port, done: make(chan error, 1), stop: cancel}
	go func() { tp.done <- p.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-tp.done
	})
	return tp
}

func TestNewInvalidConfig(t *testing.T) {
	mics, port := &fakeMics{}, &fakePort{}
	tests := []struct {
		name   string
		mutate func(*Config)
		hw     Hardware
	}{
		{"channels", func(c *Config) { c.Channels = 5 }, Hardware{Mics: mics, Amp: port, Clock: &fakeClock{}}},
		{"watermark", func(c *Config) { c.Watermark = 9 }, Hardware{Mics: mics, Amp: port, Clock: &fakeClock{}}},
		{"loopback mode", func(c *Config) { c.Loopback = "mirror" }, Hardware{Mics: mics, Amp: port, Clock: &fakeClock{}}},
		{"no clock", func(c *Config) {}, Hardware{Mics: mics, Amp: port}},
		{"no rx", func(c *Config) { c.Loopback = LoopbackDirect }, Hardware{Mics: mics, Amp: port}},
		{"no mics", func(c *Config) {}, Hardware{Amp: port, Clock: &fakeClock{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if _, err := New(cfg, tt.hw); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("got=%v", err)
			}
		})
	}
}

func TestPipelineDeliversBlocks(t *testing.T) {
	for _, mode := range []LoopbackMode{LoopbackNone, LoopbackRing, LoopbackDirect} {
		t.Run(string(mode), func(t *testing.T) {
			cfg := testConfig(2)
			cfg.Loopback = mode
			cfg.Timeout = time.Second
			tp := startPipeline(t, cfg)
			waitFor(t, tp.Orchestrator().MicsActive)

			block := make([]int16, tp.BlockLen())
			for i := range 3 {
				tp.mics.tick(0)
				tp.mics.tick(1)
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				err := tp.ReadBlock(ctx, block)
				cancel()
				if err != nil {
					t.Fatalf("block %d: %v", i, err)
				}
			}
			st := tp.Stats()
			if st.Processor.Blocks != 3 || st.Orchestrator.Halves != 3 {
				t.Errorf("stats got=%+v", st)
			}
			if (st.Ring != nil) != (mode == LoopbackRing) || (st.Direct != nil) != (mode == LoopbackDirect) {
				t.Errorf("loopback stats got ring=%v direct=%v", st.Ring, st.Direct)
			}
		})
	}
}

func TestPipelineMutePersists(t *testing.T) {
	ctx := context.Background()
	store := settings.NewMemory()
	tp := startPipeline(t, testConfig(2), WithSettings(store))
	waitFor(t, tp.Orchestrator().MicsActive)

	if err := tp.Mute(ctx); err != nil {
		t.Fatal(err)
	}
	if tp.Orchestrator().MicsActive() {
		t.Error("mics active after Mute")
	}
	if err := tp.SetVolume(ctx, 140); err != nil {
		t.Fatal(err)
	}
	saved, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !saved.Muted || saved.Volume != 100 {
		t.Errorf("saved got=%+v", saved)
	}

	if err := tp.Unmute(ctx); err != nil {
		t.Fatal(err)
	}
	if !tp.Orchestrator().MicsActive() {
		t.Error("mics inactive after Unmute")
	}
}

func TestPipelineStartsMuted(t *testing.T) {
	ctx := context.Background()
	store := settings.NewMemory()
	want := settings.Settings{Volume: 20, Muted: true, Loopback: true}
	store.Save(ctx, want)

	tp := startPipeline(t, testConfig(2), WithSettings(store))
	waitFor(t, func() bool { return tp.Settings() == want })
	time.Sleep(30 * time.Millisecond)
	if tp.mics.starts.Load() != 0 {
		t.Error("mics started while muted")
	}
	if got := tp.Amplifier().Volume(); got != 20 {
		t.Errorf("volume got=%d", got)
	}
}

func TestPipelineLoopbackControl(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(2)
	cfg.Loopback = LoopbackRing
	tp := startPipeline(t, cfg)
	waitFor(t, tp.Orchestrator().MicsActive)

	if !tp.Orchestrator().Loopback() {
		t.Fatal("loopback off by default")
	}
	if err := tp.DisableLoopback(ctx); err != nil {
		t.Fatal(err)
	}
	if tp.Orchestrator().Loopback() || tp.Settings().Loopback {
		t.Error("loopback still on")
	}
	if err := tp.EnableLoopback(ctx); err != nil {
		t.Fatal(err)
	}
	if !tp.Orchestrator().Loopback() {
		t.Error("loopback still off")
	}
}

func TestPipelinePlayback(t *testing.T) {
	ctx := context.Background()
	tp := startPipeline(t, testConfig(2))

	if err := tp.PlayDefault(); err == nil {
		t.Error("PlayDefault without audio succeeded")
	}
	clip := make([]byte, 3*amp.ChunkBytes)
	tp.SetDefaultAudio(clip)
	if err := tp.PlayDefault(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return tp.Amplifier().State() == amp.Idle })
	if got := tp.port.sent.Load(); got != 3 {
		t.Errorf("sent got=%d", got)
	}

	if err := tp.Play(ctx, clip); err != nil {
		t.Fatal(err)
	}
	if err := tp.PlayClip(ctx, make([]byte, 3840)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return tp.port.sent.Load() == 7 })
}

func TestPipelineRunTwice(t *testing.T) {
	tp := startPipeline(t, testConfig(2))
	waitFor(t, tp.Orchestrator().MicsActive)
	if err := tp.Run(context.Background()); !errors.Is(err, ErrRunning) {
		t.Errorf("second Run got=%v", err)
	}
}
