// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sema provides a blocking counting semaphore and a
// cache-line-sharded counter (spec component F). The thread pool builds its
// idle barrier on Semaphore.
package sema

import (
	"sync/atomic"

	"code.hybscloud.com/substrate/internal/sysalloc"
)

// Semaphore is a classic counting semaphore. Post increments the count and
// wakes one waiter if any is blocked in Wait; Wait blocks until the count is
// positive, then atomically decrements it.
//
// Implemented on a buffered channel rather than sem_t/futex: channels give
// the same "post never lost between check and block" guarantee the C++
// source obtains from POSIX semaphores, without cgo.
type Semaphore struct {
	ch chan struct{}
}

// New returns a Semaphore initialised to the given count.
func New(initial int) *Semaphore {
	// An unbounded amount of posts must never block, so size the channel
	// generously; posts beyond capacity would only happen if the caller's
	// own protocol is already broken (more acks than workers, etc).
	const headroom = 1 << 20
	s := &Semaphore{ch: make(chan struct{}, headroom)}
	for range initial {
		s.ch <- struct{}{}
	}
	return s
}

// Post increments the semaphore's count, waking one blocked waiter if any.
func (s *Semaphore) Post() {
	s.ch <- struct{}{}
}

// Wait blocks until the count is positive, then decrements it.
func (s *Semaphore) Wait() {
	<-s.ch
}

// TryWait attempts a non-blocking Wait, reporting whether it succeeded.
func (s *Semaphore) TryWait() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Value returns the current count. As with sem_getvalue, this is advisory:
// it may be stale the instant it is read under concurrent use.
func (s *Semaphore) Value() int {
	return len(s.ch)
}

// ShardedCounter is a DistributedCounter generalisation: an approximately
// accurate counter split across cache-line-sized shards to avoid false
// sharing and CAS contention when many goroutines increment/decrement
// concurrently. No other package in this module uses it.
type ShardedCounter struct {
	shards []shardedCounterShard
	mask   uint64
}

type shardedCounterShard struct {
	v   atomic.Int64
	_   [0]byte
	pad [sysalloc.CacheLineSize - 8]byte
}

// NewShardedCounter returns a ShardedCounter with ways shards, rounded up to
// a power of two.
func NewShardedCounter(ways int) *ShardedCounter {
	if ways < 1 {
		ways = 1
	}
	n := 1
	for n < ways {
		n <<= 1
	}
	return &ShardedCounter{shards: make([]shardedCounterShard, n), mask: uint64(n - 1)}
}

// Incr adds increment to the shard selected by way (typically a worker or
// goroutine index), reducing contention versus a single atomic counter.
func (c *ShardedCounter) Incr(way int, increment int64) {
	c.shards[uint64(way)&c.mask].v.Add(increment)
}

// Decr subtracts decrement from the shard selected by way.
func (c *ShardedCounter) Decr(way int, decrement int64) {
	c.shards[uint64(way)&c.mask].v.Add(-decrement)
}

// Get sums all shards. Like the teacher's DistributedCounter, this is an
// approximation under concurrent writers: individual shard reads are not
// synchronised with each other.
func (c *ShardedCounter) Get() int64 {
	var sum int64
	for i := range c.shards {
		sum += c.shards[i].v.Load()
	}
	return sum
}

// Clear zeroes all shards.
func (c *ShardedCounter) Clear() {
	for i := range c.shards {
		c.shards[i].v.Store(0)
	}
}
