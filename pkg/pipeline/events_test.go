package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haivivi/voxpipe/pkg/audio/pdm"
)

func TestHalfEventDistinct(t *testing.T) {
	seen := EventReference | EventPDMError | EventLoopbackError
	for _, h := range halves {
		for ch := range MaxChannels {
			bit := HalfEvent(h, ch)
			if seen&bit != 0 {
				t.Fatalf("HalfEvent(%v, %d)=%#x overlaps %#x", h, ch, bit, seen)
			}
			seen |= bit
		}
	}
}

func TestEventGroupWait(t *testing.T) {
	ctx := context.Background()
	g := NewEventGroup()

	g.Set(HalfEvent(pdm.Ping, 0))
	g.Set(HalfEvent(pdm.Ping, 1))
	if got := g.Pending(); got != HalfEvent(pdm.Ping, 0)|HalfEvent(pdm.Ping, 1) {
		t.Errorf("Pending got=%#x", got)
	}
	bits, err := g.Wait(ctx, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if bits != HalfEvent(pdm.Ping, 0)|HalfEvent(pdm.Ping, 1) {
		t.Errorf("Wait got=%#x", bits)
	}
	if g.Pending() != 0 {
		t.Errorf("bits not consumed: %#x", g.Pending())
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		g.Set(EventPDMError)
	}()
	bits, err = g.Wait(ctx, time.Second)
	if err != nil || bits != EventPDMError {
		t.Errorf("Wait got=%#x err=%v", bits, err)
	}
}

func TestEventGroupTimeout(t *testing.T) {
	g := NewEventGroup()
	start := time.Now()
	bits, err := g.Wait(context.Background(), 20*time.Millisecond)
	if err != nil || bits != 0 {
		t.Fatalf("got=%#x err=%v", bits, err)
	}
	if d := time.Since(start); d < 20*time.Millisecond {
		t.Errorf("returned after %v", d)
	}
}

func TestEventGroupClearAndCancel(t *testing.T) {
	g := NewEventGroup()
	g.Set(EventReference)
	g.Clear()
	if g.Pending() != 0 {
		t.Fatalf("Pending after Clear got=%#x", g.Pending())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Wait(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("err got=%v", err)
	}
}

func TestReadyMask(t *testing.T) {
	for _, channels := range []int{2, 3} {
		m := NewReadyMask(channels)
		for ch := range channels {
			if m.Complete() {
				t.Fatalf("C=%d complete with %d channels set", channels, ch)
			}
			m.Set(ch)
		}
		if !m.Complete() {
			t.Fatalf("C=%d not complete", channels)
		}
		m.Clear()
		if m.Complete() {
			t.Fatalf("C=%d complete after Clear", channels)
		}
	}
	var zero ReadyMask
	if zero.Complete() {
		t.Error("zero mask complete")
	}
}
