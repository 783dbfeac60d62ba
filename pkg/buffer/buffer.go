package buffer

import "errors"

var (
	// ErrFull is returned when a write does not fit into the remaining space.
	ErrFull = errors.New("buffer: full")

	// ErrClosed is returned by operations on a closed buffer.
	ErrClosed = errors.New("buffer: closed")
)
