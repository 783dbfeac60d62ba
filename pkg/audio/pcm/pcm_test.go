package pcm

import (
	"testing"
	"time"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		f          Format
		rate, chs  int
		bytes10ms  int64
		bytesPerMs int
	}{
		{L16Mono16K, 16000, 1, 320, 32},
		{L16Mono48K, 48000, 1, 960, 96},
		{L16Stereo48K, 48000, 2, 1920, 192},
	}
	for _, tt := range tests {
		t.Run(tt.f.String(), func(t *testing.T) {
			if got := tt.f.SampleRate(); got != tt.rate {
				t.Errorf("rate=%d", got)
			}
			if got := tt.f.Channels(); got != tt.chs {
				t.Errorf("channels=%d", got)
			}
			if got := tt.f.BytesInDuration(10 * time.Millisecond); got != tt.bytes10ms {
				t.Errorf("bytes(10ms)=%d", got)
			}
			if got := tt.f.BytesPerMs(); got != tt.bytesPerMs {
				t.Errorf("bytes/ms=%d", got)
			}
			if got := tt.f.Duration(tt.bytes10ms); got != 10*time.Millisecond {
				t.Errorf("duration=%v", got)
			}
		})
	}
}

func TestLayout(t *testing.T) {
	tests := []struct {
		l    Layout
		ch   int
		k    int
		want int
	}{
		{Grouped, 0, 0, 0},
		{Grouped, 0, 159, 159},
		{Grouped, 1, 0, 160},
		{Grouped, 2, 5, 325},
		{Interleaved, 0, 0, 0},
		{Interleaved, 1, 0, 1},
		{Interleaved, 2, 5, 17},
	}
	for _, tt := range tests {
		if got := tt.l.Index(tt.ch, tt.k, 3, 160); got != tt.want {
			t.Errorf("%v.Index(%d,%d)=%d want %d", tt.l, tt.ch, tt.k, got, tt.want)
		}
	}

	frame := []int16{1, 10, 2, 20, 3, 30}
	dst := make([]int16, 3)
	Interleaved.Channel(dst, frame, 1, 2)
	if dst[0] != 10 || dst[1] != 20 || dst[2] != 30 {
		t.Errorf("interleaved channel=%v", dst)
	}
	Grouped.Channel(dst, frame, 1, 2)
	if dst[0] != 20 || dst[1] != 3 || dst[2] != 30 {
		t.Errorf("grouped channel=%v", dst)
	}

	var l Layout
	if err := l.UnmarshalText([]byte("interleaved")); err != nil || l != Interleaved {
		t.Errorf("unmarshal=%v err=%v", l, err)
	}
	if err := l.UnmarshalText([]byte("zigzag")); err == nil {
		t.Error("expected error")
	}
}

func TestInt16s(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768}
	b := make([]byte, 10)
	if n := PutInt16s(b, samples); n != 10 {
		t.Fatalf("n=%d", n)
	}
	if b[4] != 0xff || b[5] != 0xff {
		t.Errorf("bytes=%v", b)
	}
	got := make([]int16, 5)
	Int16s(got, b)
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("got=%v", got)
		}
	}
}

func TestClamp16(t *testing.T) {
	for _, tt := range []struct {
		in   int32
		want int16
	}{{0, 0}, {40000, 32767}, {-40000, -32768}, {-5, -5}} {
		if got := Clamp16(tt.in); got != tt.want {
			t.Errorf("Clamp16(%d)=%d", tt.in, got)
		}
	}
}

func TestAtomicFloat32(t *testing.T) {
	v := NewAtomicFloat32(0.5)
	if v.Load() != 0.5 {
		t.Errorf("load=%v", v.Load())
	}
	v.Store(0.25)
	if v.Load() != 0.25 {
		t.Errorf("load=%v", v.Load())
	}
}
