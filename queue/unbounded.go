// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package queue

import (
	"sync/atomic"

	"code.hybscloud.com/substrate/internal/backoff"
)

// Unbounded is a Vyukov-style multi-producer/single-consumer node-based
// queue with no fixed capacity: any goroutine may Push, but only the single
// goroutine that owns the queue may call Pop or TryPop.
//
// Reference: http://www.1024cores.net/home/lock-free-algorithms/queues/non-intrusive-mpsc-node-based-queue
type Unbounded[T any] struct {
	head atomic.Pointer[unboundedNode[T]] // producer side: swapped on every push
	tail *unboundedNode[T]                // consumer side: touched only by the owner
}

type unboundedNode[T any] struct {
	next atomic.Pointer[unboundedNode[T]]
	val  T
}

// NewUnbounded returns an empty Unbounded queue.
func NewUnbounded[T any]() *Unbounded[T] {
	dummy := &unboundedNode[T]{}
	q := &Unbounded[T]{tail: dummy}
	q.head.Store(dummy)
	return q
}

// Push enqueues value. Safe to call from any number of goroutines
// concurrently.
func (q *Unbounded[T]) Push(value T) {
	n := &unboundedNode[T]{val: value}
	prev := q.head.Swap(n)
	prev.next.Store(n)
}

// Pop blocks until a value is available and returns it. Only the queue's
// single owning goroutine may call Pop.
func (q *Unbounded[T]) Pop() T {
	n := q.tail
	w := backoff.MPSCPop()
	var next *unboundedNode[T]
	for {
		next = n.next.Load()
		if next != nil {
			break
		}
		w.Wait()
	}
	q.tail = next
	return next.val
}

// TryPop is the non-blocking counterpart to Pop: it reports whether a value
// was available. Only the queue's single owning goroutine may call TryPop.
func (q *Unbounded[T]) TryPop() (T, bool) {
	n := q.tail
	next := n.next.Load()
	if next == nil {
		var zero T
		return zero, false
	}
	q.tail = next
	return next.val, true
}

// Empty reports whether the queue currently has no value ready to Pop. As
// with the teacher's equivalent checks, this is advisory under concurrent
// pushes: a push may complete immediately after Empty observes true.
func (q *Unbounded[T]) Empty() bool {
	return q.tail.next.Load() == nil
}
