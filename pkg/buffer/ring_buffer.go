package buffer

import (
	"fmt"
	"sync"
)

// RingBuffer is a thread-safe, fixed-capacity circular buffer.
//
// A Write either stores all of p or nothing: when p does not fit into the
// free space the write is rejected with ErrFull and the buffered data is left
// untouched. Read never blocks; it returns what is available, which may be
// zero elements.
type RingBuffer[T any] struct {
	mu         sync.Mutex
	buf        []T
	head, tail int64
	closed     bool
}

// RingN creates a new RingBuffer holding at most size elements.
func RingN[T any](size int) *RingBuffer[T] {
	if size <= 0 {
		panic("buffer: ring size must be positive")
	}
	return &RingBuffer[T]{
		buf: make([]T, size),
	}
}

// Write appends all of p to the buffer. It returns ErrFull, leaving the
// buffer unchanged, if len(p) exceeds the free space.
func (rb *RingBuffer[T]) Write(p []T) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.closed {
		return 0, fmt.Errorf("buffer: write to closed ring: %w", ErrClosed)
	}
	if len(p) > len(rb.buf)-int(rb.tail-rb.head) {
		return 0, ErrFull
	}
	rb.writeLocked(p)
	return len(p), nil
}

// WriteZero appends n zero elements. Like Write it is all or nothing.
func (rb *RingBuffer[T]) WriteZero(n int) error {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.closed {
		return fmt.Errorf("buffer: write to closed ring: %w", ErrClosed)
	}
	if n > len(rb.buf)-int(rb.tail-rb.head) {
		return ErrFull
	}
	var zero T
	size := int64(len(rb.buf))
	for range n {
		rb.buf[rb.tail%size] = zero
		rb.tail++
	}
	return nil
}

func (rb *RingBuffer[T]) writeLocked(p []T) {
	tail := int(rb.tail % int64(len(rb.buf)))
	n := copy(rb.buf[tail:], p)
	copy(rb.buf, p[n:])
	rb.tail += int64(len(p))
}

// Read moves up to len(p) buffered elements into p and returns how many
// were read. It does not block.
func (rb *RingBuffer[T]) Read(p []T) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.closed {
		return 0, fmt.Errorf("buffer: read from closed ring: %w", ErrClosed)
	}

	avail := int(rb.tail - rb.head)
	if avail > len(p) {
		avail = len(p)
	}
	if avail == 0 {
		return 0, nil
	}
	head := int(rb.head % int64(len(rb.buf)))
	n := copy(p[:avail], rb.buf[head:])
	copy(p[n:avail], rb.buf)
	rb.head += int64(avail)
	return avail, nil
}

// Discard drops the next n elements. If fewer are buffered, the buffer is emptied.
func (rb *RingBuffer[T]) Discard(n int) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if n > int(rb.tail-rb.head) {
		rb.head = rb.tail
		return
	}
	rb.head += int64(n)
}

// Reset empties the buffer.
func (rb *RingBuffer[T]) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.head = 0
	rb.tail = 0
}

// Len returns the number of buffered elements.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return int(rb.tail - rb.head)
}

// Cap returns the capacity of the buffer.
func (rb *RingBuffer[T]) Cap() int {
	return len(rb.buf)
}

// Close makes every further Write and Read fail with ErrClosed.
func (rb *RingBuffer[T]) Close() error {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.closed = true
	return nil
}
