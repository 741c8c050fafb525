// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package queue provides the two lock-free queue shapes the rest of this
// module dispatches work and recycles buffers through: Bounded, a
// fixed-capacity MPMC ring buffer that also serves as the thread pool's
// per-worker inbox, and Unbounded, an unbounded MPSC linked queue.
package queue

import (
	"math"
	"sync/atomic"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/spin"
)

// Bounded is a fixed-capacity, lock-free multi-producer multi-consumer
// queue. It is the same Vyukov bounded MPMC algorithm as
// (*iobuf.BoundedPool), generalized to hold a value of any type directly in
// each ring slot instead of an indirect index into a side array.
//
// Reference: "A Scalable, Portable, and Memory-Efficient Lock-Free FIFO
// Queue", Ruslan Nikolaev, 2019 — the same paper cited by the teacher.
type Bounded[T any] struct {
	entries []boundedSlot[T]
	mask    uint64
	head    atomic.Uint64
	tail    atomic.Uint64

	nonblocking bool
}

type boundedSlot[T any] struct {
	seq atomic.Uint64
	val T
}

// NewBounded returns a Bounded queue rounded up to the next power-of-two
// capacity of at least 1.
func NewBounded[T any](capacity int) *Bounded[T] {
	if capacity < 1 || capacity > math.MaxInt32 {
		panic("queue: capacity must be between 1 and MaxInt32")
	}
	capacity--
	capacity |= capacity >> 1
	capacity |= capacity >> 2
	capacity |= capacity >> 4
	capacity |= capacity >> 8
	capacity |= capacity >> 16
	capacity++

	q := &Bounded[T]{
		entries: make([]boundedSlot[T], capacity),
		mask:    uint64(capacity - 1),
	}
	for i := range q.entries {
		q.entries[i].seq.Store(uint64(i))
	}
	return q
}

// SetNonblock switches Push/Pop between blocking (the default) and
// immediately returning iox.ErrWouldBlock.
func (q *Bounded[T]) SetNonblock(nonblocking bool) {
	q.nonblocking = nonblocking
}

// Cap returns the queue's fixed capacity.
func (q *Bounded[T]) Cap() int {
	return len(q.entries)
}

// Push enqueues v, blocking with adaptive backoff while the queue is full
// unless nonblocking mode is set, in which case it returns
// iox.ErrWouldBlock immediately.
func (q *Bounded[T]) Push(v T) error {
	var aw iox.Backoff
	for {
		if q.tryPush(v) {
			return nil
		}
		if q.nonblocking {
			return iox.ErrWouldBlock
		}
		aw.Wait()
	}
}

// Pop dequeues a value, blocking with adaptive backoff while the queue is
// empty unless nonblocking mode is set, in which case it returns
// iox.ErrWouldBlock immediately.
func (q *Bounded[T]) Pop() (T, error) {
	var aw iox.Backoff
	for {
		if v, ok := q.tryPop(); ok {
			return v, nil
		}
		if q.nonblocking {
			var zero T
			return zero, iox.ErrWouldBlock
		}
		aw.Wait()
	}
}

// TryPush attempts to enqueue v without blocking, reporting whether it
// succeeded. It never mutates the queue's nonblocking setting and is safe to
// call regardless of it, unlike toggling SetNonblock around Push.
func (q *Bounded[T]) TryPush(v T) bool {
	return q.tryPush(v)
}

// TryPop attempts to dequeue a value without blocking, reporting whether one
// was available.
func (q *Bounded[T]) TryPop() (T, bool) {
	return q.tryPop()
}

func (q *Bounded[T]) tryPush(v T) bool {
	sw := spin.Wait{}
	for {
		pos := q.tail.Load()
		slot := &q.entries[pos&q.mask]
		seq := slot.seq.Load()
		switch diff := int64(seq) - int64(pos); {
		case diff == 0:
			if q.tail.CompareAndSwap(pos, pos+1) {
				slot.val = v
				slot.seq.Store(pos + 1)
				return true
			}
		case diff < 0:
			return false
		}
		sw.Once()
	}
}

func (q *Bounded[T]) tryPop() (T, bool) {
	sw := spin.Wait{}
	for {
		pos := q.head.Load()
		slot := &q.entries[pos&q.mask]
		seq := slot.seq.Load()
		switch diff := int64(seq) - int64(pos+1); {
		case diff == 0:
			if q.head.CompareAndSwap(pos, pos+1) {
				v := slot.val
				var zero T
				slot.val = zero
				slot.seq.Store(pos + q.mask + 1)
				return v, true
			}
		case diff < 0:
			var zero T
			return zero, false
		}
		sw.Once()
	}
}
