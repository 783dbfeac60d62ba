package loopback

import (
	"bytes"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	ticks atomic.Uint32
}

func (c *fakeClock) Ticks() uint32 { return c.ticks.Load() }

func newTestRing(t *testing.T, drained func() bool) (*Ring, *fakeClock, *int) {
	t.Helper()
	clock := &fakeClock{}
	r, err := NewRing(RingConfig{Clock: clock, Drained: drained})
	if err != nil {
		t.Fatal(err)
	}
	sleeps := new(int)
	r.sleep = func(time.Duration) { *sleeps++ }
	return r, clock, sleeps
}

func sendCounter(n *int) func() error {
	return func() error {
		*n++
		return nil
	}
}

func packet(n int, v byte) []byte {
	return bytes.Repeat([]byte{v}, n)
}

func TestRingDisabled(t *testing.T) {
	r, _, _ := newTestRing(t, nil)
	r.Mark(0)
	sent := 0
	if err := r.Transmit(packet(3840, 1), sendCounter(&sent)); err != nil {
		t.Fatal(err)
	}
	if sent != 1 || r.Buffered() != 0 {
		t.Errorf("sent=%d buffered=%d", sent, r.Buffered())
	}
	if n := r.ReadReference(0, make([]byte, 1920)); n != 0 {
		t.Errorf("read=%d", n)
	}
}

func TestRingUnmarkedSendsOnly(t *testing.T) {
	r, _, sleeps := newTestRing(t, nil)
	r.Enable()
	sent := 0
	r.Transmit(packet(64, 1), sendCounter(&sent))
	if sent != 1 || r.State() != NeedSync || *sleeps != 0 {
		t.Errorf("sent=%d state=%v sleeps=%d", sent, r.State(), *sleeps)
	}
}

func TestRingSync(t *testing.T) {
	r, clock, sleeps := newTestRing(t, nil)
	r.Enable()
	if r.State() != NeedSync {
		t.Fatalf("state=%v", r.State())
	}

	if n := r.ReadReference(1000, make([]byte, 1920)); n != 0 {
		t.Fatalf("read while need sync=%d", n)
	}
	clock.ticks.Store(1000 + DefaultTiming.Ticks(time.Millisecond))

	sent := 0
	if err := r.Transmit(packet(3840, 0x55), sendCounter(&sent)); err != nil {
		t.Fatal(err)
	}
	if sent != 1 || r.State() != Enabled {
		t.Fatalf("sent=%d state=%v", sent, r.State())
	}
	if *sleeps != 1 {
		t.Errorf("sleeps=%d", *sleeps)
	}
	// 1ms since the capture mark plus 11.25ms at 192 bytes/ms.
	const pad = 2352
	if r.Buffered() != pad+3840 {
		t.Fatalf("buffered=%d", r.Buffered())
	}

	r.Transmit(packet(3840, 0x66), sendCounter(&sent))
	if r.Buffered() != pad+2*3840 {
		t.Fatalf("second packet padded again: buffered=%d", r.Buffered())
	}

	var got []byte
	buf := make([]byte, 4096)
	for {
		n := r.ReadReference(2000, buf)
		if n == 0 {
			break
		}
		if n > 1920 {
			t.Fatalf("read %d bytes, more than 10ms", n)
		}
		got = append(got, buf[:n]...)
	}
	want := append(append(make([]byte, pad), packet(3840, 0x55)...), packet(3840, 0x66)...)
	if !bytes.Equal(got, want) {
		t.Errorf("reference stream mismatch: got %d bytes", len(got))
	}
}

func TestRingNotDrained(t *testing.T) {
	r, _, sleeps := newTestRing(t, func() bool { return false })
	r.Mark(0)
	r.Enable()
	sent := 0
	r.Transmit(packet(3840, 1), sendCounter(&sent))
	if sent != 1 {
		t.Errorf("sent=%d", sent)
	}
	if r.State() != NeedSync || r.Buffered() != 0 {
		t.Errorf("state=%v buffered=%d", r.State(), r.Buffered())
	}
	if *sleeps != 101 {
		t.Errorf("sleeps=%d", *sleeps)
	}
	if n := r.ReadReference(0, make([]byte, 1920)); n != 0 {
		t.Errorf("read=%d", n)
	}
}

func TestRingDisableEnable(t *testing.T) {
	r, _, _ := newTestRing(t, nil)
	r.Mark(0)
	r.Enable()
	sent := 0
	r.Transmit(packet(3840, 1), sendCounter(&sent))
	if r.State() != Enabled || r.Buffered() == 0 {
		t.Fatalf("state=%v buffered=%d", r.State(), r.Buffered())
	}

	r.Disable()
	if r.State() != Disabled || r.Buffered() != 0 {
		t.Fatalf("state=%v buffered=%d", r.State(), r.Buffered())
	}
	r.Enable()
	if r.State() != NeedSync {
		t.Fatalf("state=%v", r.State())
	}
	if n := r.ReadReference(0, make([]byte, 1920)); n != 0 {
		t.Errorf("stale reference delivered: %d", n)
	}
}

func TestRingOverflow(t *testing.T) {
	r, _, _ := newTestRing(t, nil)
	r.Mark(0)
	r.Enable()
	sent := 0
	for range 8 {
		if err := r.Transmit(packet(3840, 1), sendCounter(&sent)); err != nil {
			t.Fatal(err)
		}
	}
	if sent != 8 {
		t.Errorf("sent=%d", sent)
	}
	st := r.Stats()
	if st.Overruns == 0 {
		t.Error("no overrun counted")
	}
	if st.Buffered > r.ring.Cap() {
		t.Errorf("buffered=%d", st.Buffered)
	}
}

func TestRingSendError(t *testing.T) {
	r, _, _ := newTestRing(t, nil)
	r.Mark(0)
	r.Enable()
	boom := errors.New("boom")
	if err := r.Transmit(packet(64, 1), func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if r.Buffered() != 0 {
		t.Errorf("buffered=%d", r.Buffered())
	}
}

func TestRingDisableDuringResync(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once atomic.Bool
	r, _, _ := newTestRing(t, func() bool {
		if once.CompareAndSwap(false, true) {
			close(entered)
		}
		<-release
		return true
	})
	r.Mark(0)
	r.Enable()

	var sent atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- r.Transmit(packet(3840, 1), func() error {
			sent.Add(1)
			return nil
		})
	}()
	<-entered

	disabled := make(chan struct{})
	go func() {
		r.Disable()
		close(disabled)
	}()
	select {
	case <-disabled:
	case <-time.After(50 * time.Millisecond):
		t.Fatal("Disable waited for the resync")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	st := r.Stats()
	if sent.Load() != 1 || st.State != Disabled || st.Buffered != 0 || st.Syncs != 0 {
		t.Errorf("sent=%d stats=%+v", sent.Load(), st)
	}
}
