// Package buffer provides the bounded, thread-safe buffers used by the audio
// pipeline.
//
//   - RingBuffer: a fixed-capacity circular buffer that rejects a write that
//     does not fit instead of blocking or overwriting. The loopback path uses
//     it as the delay line between playback and capture.
//
//   - Queue: a fixed number of preallocated, fixed-length slots. Producers
//     never block: when every slot is taken the newest block is dropped and
//     counted. Consumers block in Pop until a block arrives, the context is
//     done or the queue is closed.
//
// Neither buffer allocates after construction.
//
// Example usage:
//
//	q := buffer.NewQueue[int16](5, 480)
//	q.TryPush(block) // false when full, block dropped
//
//	dst := make([]int16, 480)
//	if err := q.Pop(ctx, dst); err != nil {
//		return err
//	}
package buffer
