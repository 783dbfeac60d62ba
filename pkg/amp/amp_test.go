package amp

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/voxpipe/pkg/audio/pcm"
)

// fakePort records transfers. With auto set it completes each transfer
// right away; otherwise complete must be called.
type fakePort struct {
	auto bool

	mu         sync.Mutex
	h          Handler
	pending    []*Transfer
	sent       [][]byte
	terminated int
}

func (p *fakePort) Bind(h Handler) { p.h = h }

func (p *fakePort) Send(tx *Transfer) error {
	p.mu.Lock()
	p.sent = append(p.sent, bytes.Clone(tx.Data))
	if !p.auto {
		p.pending = append(p.pending, tx)
	}
	p.mu.Unlock()
	if p.auto {
		go p.h.TxComplete(tx)
	}
	return nil
}

func (p *fakePort) Terminate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = nil
	p.terminated++
}

func (p *fakePort) complete() {
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.mu.Unlock()
		return
	}
	tx := p.pending[0]
	p.pending = p.pending[1:]
	p.mu.Unlock()
	p.h.TxComplete(tx)
}

func (p *fakePort) sentCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

func (p *fakePort) sentAt(i int) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent[i]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(time.Millisecond)
	}
}

func startAmp(t *testing.T, port *fakePort, cfg Config) *Amplifier {
	t.Helper()
	if cfg.Volume == 0 {
		cfg.Volume = 100
	}
	a := New(port, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return a
}

func ramp(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}

func TestWritePlaysAllChunks(t *testing.T) {
	port := &fakePort{}
	a := startAmp(t, port, Config{})

	clip := ramp(3*ChunkBytes + 40)
	if err := a.Write(clip); err != nil {
		t.Fatal(err)
	}
	if a.State() != Playing {
		t.Fatalf("state=%v", a.State())
	}
	for i := 1; i < 4; i++ {
		port.complete()
		waitFor(t, func() bool { return port.sentCount() == i+1 })
	}
	port.complete()
	if err := a.WaitIdle(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []int{ChunkBytes, ChunkBytes, ChunkBytes, 32}
	var got []byte
	for i, n := range want {
		if len(port.sentAt(i)) != n {
			t.Errorf("transfer %d len=%d want %d", i, len(port.sentAt(i)), n)
		}
		got = append(got, port.sentAt(i)...)
	}
	if !bytes.Equal(got, clip[:3*ChunkBytes+32]) {
		t.Error("transmitted bytes differ from clip")
	}
}

func TestWriteBusy(t *testing.T) {
	port := &fakePort{}
	a := startAmp(t, port, Config{})

	if err := a.Write(ramp(2 * ChunkBytes)); err != nil {
		t.Fatal(err)
	}
	if err := a.Write(ramp(ChunkBytes)); !errors.Is(err, ErrBusy) {
		t.Fatalf("err=%v", err)
	}
	if err := a.WriteLoop(ramp(ChunkBytes)); !errors.Is(err, ErrBusy) {
		t.Fatalf("loop err=%v", err)
	}
	if port.sentCount() != 1 {
		t.Fatalf("sent=%d", port.sentCount())
	}

	port.complete()
	waitFor(t, func() bool { return port.sentCount() == 2 })
	port.complete()
	if err := a.WaitIdle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(port.sentAt(1), ramp(2 * ChunkBytes)[ChunkBytes:]) {
		t.Error("busy write disturbed the active playback")
	}
}

func TestWriteLoopReplaysIdenticalBytes(t *testing.T) {
	port := &fakePort{}
	a := startAmp(t, port, Config{Volume: 40, Differential: true})

	clip := ramp(2 * ChunkBytes)
	if err := a.WriteLoop(clip); err != nil {
		t.Fatal(err)
	}
	for i := 1; i < 6; i++ {
		port.complete()
		waitFor(t, func() bool { return port.sentCount() == i+1 })
	}
	if a.State() != Looping {
		t.Fatalf("state=%v", a.State())
	}
	for i := 2; i < 6; i++ {
		if !bytes.Equal(port.sentAt(i), port.sentAt(i%2)) {
			t.Errorf("transfer %d differs from transfer %d", i, i%2)
		}
	}
	if bytes.Equal(port.sentAt(0), clip[:ChunkBytes]) {
		t.Error("volume not applied")
	}
	if !bytes.Equal(clip, ramp(2*ChunkBytes)) {
		t.Error("caller buffer modified")
	}
}

func TestAbort(t *testing.T) {
	port := &fakePort{}
	a := startAmp(t, port, Config{})

	if err := a.WriteLoop(ramp(4 * ChunkBytes)); err != nil {
		t.Fatal(err)
	}
	a.WriteNoWait(ramp(64))
	a.Abort()
	if err := a.WaitIdle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if a.State() != Idle {
		t.Fatalf("state=%v", a.State())
	}
	if port.terminated == 0 {
		t.Error("dma not terminated")
	}
	if a.Slots().Free() != a.Slots().Cap() {
		t.Errorf("slots=%d", a.Slots().Free())
	}
	if !a.Drained() {
		t.Error("not drained after abort")
	}

	n := port.sentCount()
	time.Sleep(5 * time.Millisecond)
	if port.sentCount() != n {
		t.Error("playback resumed after abort")
	}
	if err := a.Write(ramp(ChunkBytes)); err != nil {
		t.Errorf("write after abort: %v", err)
	}
}

func TestWriteBlocking(t *testing.T) {
	port := &fakePort{auto: true}
	a := startAmp(t, port, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.WriteBlocking(ctx, ramp(5*ChunkBytes)); err != nil {
		t.Fatal(err)
	}
	if port.sentCount() != 5 || a.State() != Idle {
		t.Errorf("sent=%d state=%v", port.sentCount(), a.State())
	}
}

func TestWriteBlockingCancel(t *testing.T) {
	port := &fakePort{}
	a := startAmp(t, port, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := a.WriteBlocking(ctx, ramp(5*ChunkBytes)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v", err)
	}
	waitFor(t, func() bool { return a.State() == Idle })
}

func TestWriteBlockingAborted(t *testing.T) {
	port := &fakePort{}
	a := startAmp(t, port, Config{})

	errc := make(chan error, 1)
	go func() {
		errc <- a.WriteBlocking(context.Background(), ramp(5*ChunkBytes))
	}()
	waitFor(t, func() bool { return a.State() == Playing })
	a.Abort()
	select {
	case err := <-errc:
		if !errors.Is(err, ErrAborted) {
			t.Errorf("got=%v want ErrAborted", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WriteBlocking did not return")
	}
}

func TestAbortWhileIdle(t *testing.T) {
	port := &fakePort{auto: true}
	a := startAmp(t, port, Config{})

	for i := range 20 {
		a.Abort()
		time.Sleep(2 * time.Millisecond)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := a.WriteBlocking(ctx, ramp(2*ChunkBytes))
		cancel()
		if err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		if got := port.sentCount(); got != 2*(i+1) {
			t.Fatalf("write %d: sent=%d", i, got)
		}
	}
	port.mu.Lock()
	defer port.mu.Unlock()
	if port.terminated != 0 {
		t.Errorf("terminated=%d", port.terminated)
	}
}

// gateTap holds every transmission until released, like a loopback resync
// waiting for the slots to drain.
type gateTap struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gateTap) Transmit(p []byte, send func() error) error {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return send()
}

func TestAbortDuringSlowTransmit(t *testing.T) {
	port := &fakePort{}
	tap := &gateTap{entered: make(chan struct{}, 1), release: make(chan struct{})}
	a := startAmp(t, port, Config{Tap: tap})

	written := make(chan error, 1)
	go func() { written <- a.Write(ramp(4 * ChunkBytes)) }()
	<-tap.entered

	returned := make(chan struct{})
	go func() {
		a.Abort()
		a.State()
		a.Stats()
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(50 * time.Millisecond):
		t.Fatal("Abort blocked behind the transmission")
	}

	close(tap.release)
	if err := <-written; err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.WaitIdle(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		port.mu.Lock()
		defer port.mu.Unlock()
		return port.terminated > 0
	})
	if !a.Drained() || a.State() != Idle {
		t.Errorf("drained=%v state=%v", a.Drained(), a.State())
	}
	if err := a.Write(ramp(ChunkBytes)); err != nil {
		t.Errorf("write after abort: %v", err)
	}
}

func TestStreamerAborted(t *testing.T) {
	port := &fakePort{}
	a := startAmp(t, port, Config{})
	s := NewStreamer(a)

	clip := ramp(int(Format.BytesInDuration(200 * time.Millisecond)))
	done := make(chan error, 1)
	go func() { done <- s.Play(context.Background(), clip) }()
	waitFor(t, func() bool { return a.Slots().Free() == 0 })
	a.Abort()
	select {
	case err := <-done:
		if !errors.Is(err, ErrAborted) {
			t.Errorf("got=%v want ErrAborted", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Play did not return")
	}
	if a.Slots().Free() != a.Slots().Cap() {
		t.Errorf("free=%d", a.Slots().Free())
	}
}

func TestScale(t *testing.T) {
	frame := func(l, r int16) []byte {
		b := make([]byte, 4)
		pcm.PutInt16s(b, []int16{l, r})
		return b
	}
	tests := []struct {
		name   string
		volume int
		diff   bool
		in     []byte
		l, r   int16
	}{
		{"unity", 100, false, frame(1000, -2000), 1000, -2000},
		{"half", 50, false, frame(1000, -2000), 500, -1000},
		{"mute", 0, false, frame(1000, -2000), 0, 0},
		{"differential", 100, true, frame(1000, 555), 1000, -1000},
		{"differential min", 100, true, frame(-32768, 0), -32768, 32767},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(&fakePort{}, Config{Volume: tt.volume, Differential: tt.diff})
			a.scale(tt.in)
			got := make([]int16, 2)
			pcm.Int16s(got, tt.in)
			if got[0] != tt.l || got[1] != tt.r {
				t.Errorf("got=%v want [%d %d]", got, tt.l, tt.r)
			}
		})
	}
}

func TestWriteNoWaitSlots(t *testing.T) {
	port := &fakePort{}
	a := startAmp(t, port, Config{})

	packet := ramp(int(Format.BytesInDuration(SlotDuration)))
	for i := range DefaultSlots {
		if err := a.WriteNoWait(packet); err != nil {
			t.Fatalf("slot %d: %v", i, err)
		}
	}
	if err := a.WriteNoWait(packet); !errors.Is(err, ErrBusy) {
		t.Fatalf("err=%v", err)
	}
	if a.Slots().Free() != 0 || a.Drained() {
		t.Fatalf("free=%d drained=%v", a.Slots().Free(), a.Drained())
	}
	port.complete()
	if a.Slots().Free() != 1 {
		t.Fatalf("free=%d", a.Slots().Free())
	}
	if err := a.WriteNoWait(packet); err != nil {
		t.Fatal(err)
	}
	if a.State() != Idle {
		t.Errorf("state=%v", a.State())
	}
	if err := a.WriteNoWait(append(packet, 0)); !errors.Is(err, ErrTooLarge) {
		t.Errorf("err=%v", err)
	}
}

type recordingTap struct {
	mu  sync.Mutex
	got []byte
}

func (r *recordingTap) Transmit(p []byte, send func() error) error {
	r.mu.Lock()
	r.got = append(r.got, p...)
	r.mu.Unlock()
	return send()
}

func TestStreamer(t *testing.T) {
	port := &fakePort{auto: true}
	tap := &recordingTap{}
	a := startAmp(t, port, Config{Tap: tap})
	s := NewStreamer(a)

	clip := ramp(int(Format.BytesInDuration(130 * time.Millisecond)))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Play(ctx, clip); err != nil {
		t.Fatal(err)
	}
	waitFor(t, a.Drained)

	if port.sentCount() != 4 {
		t.Errorf("packets=%d", port.sentCount())
	}
	tap.mu.Lock()
	defer tap.mu.Unlock()
	if !bytes.Equal(tap.got, clip) {
		t.Errorf("tap saw %d bytes, want %d", len(tap.got), len(clip))
	}
}

func TestStreamerBusy(t *testing.T) {
	port := &fakePort{}
	a := startAmp(t, port, Config{})
	s := NewStreamer(a)

	clip := ramp(int(Format.BytesInDuration(200 * time.Millisecond)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Play(ctx, clip) }()
	waitFor(t, s.Playing)
	if err := s.Play(context.Background(), clip); !errors.Is(err, ErrBusy) {
		t.Errorf("err=%v", err)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("err=%v", err)
	}
}
