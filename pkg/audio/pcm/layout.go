package pcm

import "fmt"

// Layout describes how a multi-channel frame is arranged.
type Layout int

const (
	// Grouped stores each channel contiguously: L L L ... R R R ...
	Grouped Layout = iota
	// Interleaved alternates channels sample by sample: L R L R ...
	Interleaved
)

// Index returns the position of sample k of channel ch in a frame of the
// given channel count and per-channel sample count.
func (l Layout) Index(ch, k, channels, samples int) int {
	if l == Interleaved {
		return k*channels + ch
	}
	return ch*samples + k
}

// Stride returns the distance between consecutive samples of one channel.
func (l Layout) Stride(channels int) int {
	if l == Interleaved {
		return channels
	}
	return 1
}

// Channel copies the samples of channel ch out of frame into dst.
func (l Layout) Channel(dst, frame []int16, ch, channels int) {
	samples := len(frame) / channels
	for k := range min(len(dst), samples) {
		dst[k] = frame[l.Index(ch, k, channels, samples)]
	}
}

func (l Layout) String() string {
	switch l {
	case Grouped:
		return "grouped"
	case Interleaved:
		return "interleaved"
	}
	return fmt.Sprintf("Layout(%d)", int(l))
}

// MarshalText implements encoding.TextMarshaler.
func (l Layout) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Layout) UnmarshalText(b []byte) error {
	switch string(b) {
	case "grouped", "":
		*l = Grouped
	case "interleaved":
		*l = Interleaved
	default:
		return fmt.Errorf("pcm: unknown layout %q", b)
	}
	return nil
}
