// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package backoff implements the short-duration spin/yield/sleep escalation
// used at every suspension point in the slab allocator, the queues, and the
// thread pool: a handful of tight CAS retries, then cooperative yielding,
// then an OS-level sleep once contention looks sustained rather than
// momentary.
package backoff

import (
	"sync/atomic"

	"code.hybscloud.com/spin"
)

// Collisions counts lock acquisitions that required backing off, mirroring
// the diagnostic collision counter kept by the teacher's critical section.
var Collisions atomic.Uint64

// CriticalSection is a short-duration mutual-exclusion lock for slab-group
// bookkeeping: a single atomic flag with a spin/yield backoff on contention,
// never an OS futex wait. It is meant to be held for only a few
// instructions (e.g. popping a free slab off a group's list) and must never
// be held across a blocking call.
type CriticalSection struct {
	locked atomic.Bool
}

// Lock acquires the critical section, spinning and yielding on contention.
func (c *CriticalSection) Lock() {
	if c.locked.CompareAndSwap(false, true) {
		return
	}
	Collisions.Add(1)
	var sw spin.Wait
	for !c.locked.CompareAndSwap(false, true) {
		sw.Once()
	}
}

// Unlock releases the critical section.
func (c *CriticalSection) Unlock() {
	c.locked.Store(false)
}

// Locked reports whether the critical section is currently held.
func (c *CriticalSection) Locked() bool {
	return c.locked.Load()
}

// Scoped acquires cs and returns a function that releases it, for use as
// `defer backoff.Scoped(&cs)()`.
func Scoped(cs *CriticalSection) func() {
	cs.Lock()
	return cs.Unlock
}

// SpinYieldSleep implements the specific escalation spec'd for MPSC pop and
// thread-pool dispatch retries: yield to the scheduler for a few
// iterations, then fall back to a short OS sleep once the caller has been
// waiting long enough that contention looks sustained.
// yieldAfter and sleepAfter count prior calls to Wait since the last Reset.
type SpinYieldSleep struct {
	attempts   int
	yieldAfter int
	sleepAfter int
	sleepFor   int64 // nanoseconds
}

// New returns a SpinYieldSleep that yields (runtime.Gosched) on every
// attempt below sleepAfter, then sleeps for sleepFor between subsequent
// attempts. Attempts below yieldAfter and those from yieldAfter up to
// sleepAfter both yield; neither range busy-spins.
func New(yieldAfter, sleepAfter int, sleepFor int64) SpinYieldSleep {
	return SpinYieldSleep{yieldAfter: yieldAfter, sleepAfter: sleepAfter, sleepFor: sleepFor}
}

// Wait performs one escalation step and records the attempt.
func (s *SpinYieldSleep) Wait() {
	s.attempts++
	wait(s.attempts, s.yieldAfter, s.sleepAfter, s.sleepFor)
}

// Reset clears the attempt counter after a successful operation.
func (s *SpinYieldSleep) Reset() {
	s.attempts = 0
}
