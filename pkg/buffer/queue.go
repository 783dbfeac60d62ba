package buffer

import (
	"context"
	"fmt"
	"sync"
)

// Queue is a bounded FIFO of fixed-length blocks.
//
// All slots are allocated by NewQueue; TryPush copies into a free slot and
// Pop copies out of the oldest one. TryPush never blocks: when the queue is
// full the pushed block is dropped and counted.
type Queue[T any] struct {
	notify chan struct{}

	mu         sync.Mutex
	slots      [][]T
	head, tail int64
	dropped    uint64
	highWater  int
	closed     bool
}

// NewQueue creates a queue of depth slots, each holding blockLen elements.
func NewQueue[T any](depth, blockLen int) *Queue[T] {
	if depth <= 0 || blockLen <= 0 {
		panic("buffer: queue depth and block length must be positive")
	}
	backing := make([]T, depth*blockLen)
	slots := make([][]T, depth)
	for i := range slots {
		slots[i] = backing[i*blockLen : (i+1)*blockLen : (i+1)*blockLen]
	}
	return &Queue[T]{
		notify: make(chan struct{}, 1),
		slots:  slots,
	}
}

// TryPush copies block into the queue. It reports false when the block was
// dropped because the queue is full or closed. A block of the wrong length
// panics.
func (q *Queue[T]) TryPush(block []T) bool {
	q.mu.Lock()
	if len(block) != len(q.slots[0]) {
		q.mu.Unlock()
		panic(fmt.Sprintf("buffer: push block of %d, want %d", len(block), len(q.slots[0])))
	}
	if q.closed || int(q.tail-q.head) == len(q.slots) {
		q.dropped++
		q.mu.Unlock()
		return false
	}
	copy(q.slots[q.tail%int64(len(q.slots))], block)
	q.tail++
	if n := int(q.tail - q.head); n > q.highWater {
		q.highWater = n
	}
	q.wakeLocked()
	q.mu.Unlock()
	return true
}

// Pop copies the oldest block into dst, blocking until one is available.
// dst must hold at least one block. It returns ctx.Err() if the context ends
// first and ErrClosed once the queue is closed and drained.
func (q *Queue[T]) Pop(ctx context.Context, dst []T) error {
	for {
		q.mu.Lock()
		if q.tail != q.head {
			copy(dst, q.slots[q.head%int64(len(q.slots))])
			q.head++
			if q.tail != q.head {
				q.wakeLocked()
			}
			q.mu.Unlock()
			return nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return ErrClosed
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.notify:
		}
	}
}

// wakeLocked signals a waiting Pop. q.mu must be held.
func (q *Queue[T]) wakeLocked() {
	if q.closed {
		return
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Len returns the number of queued blocks.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int(q.tail - q.head)
}

// Cap returns the queue depth.
func (q *Queue[T]) Cap() int {
	return len(q.slots)
}

// BlockLen returns the length of one block.
func (q *Queue[T]) BlockLen() int {
	return len(q.slots[0])
}

// Dropped returns how many pushed blocks were discarded.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// HighWater returns the largest queue length observed.
func (q *Queue[T]) HighWater() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.highWater
}

// Close wakes blocked consumers. Queued blocks can still be popped.
func (q *Queue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.notify)
	return nil
}
