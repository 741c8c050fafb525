// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package backoff

import (
	"runtime"
	"time"
)

// wait performs the attempt'th escalation step of a yield/sleep sequence:
// cooperatively yield below yieldAfter and again below sleepAfter (both
// ranges call runtime.Gosched; neither busy-spins), and sleep for sleepFor
// beyond that.
func wait(attempt, yieldAfter, sleepAfter int, sleepFor int64) {
	switch {
	case attempt < yieldAfter:
		runtime.Gosched()
	case attempt < sleepAfter:
		runtime.Gosched()
	default:
		time.Sleep(time.Duration(sleepFor))
	}
}

// MPSCPop is the escalation used by the unbounded MPSC queue's blocking
// Pop: yield a few times, then sleep ~500µs, matching queue_mpsc.h's pop().
func MPSCPop() SpinYieldSleep {
	return New(10, 10, int64(500*time.Microsecond))
}

// DispatchFull is the escalation used when every worker's queue is full:
// yield up to 10 times, then sleep 1ms.
func DispatchFull() SpinYieldSleep {
	return New(10, 10, int64(time.Millisecond))
}

// SlabGroupContention is the escalation for slab-group bookkeeping: yield,
// then sleep at least 250µs once five consecutive CAS failures have been
// observed.
func SlabGroupContention() SpinYieldSleep {
	return New(5, 5, int64(250*time.Microsecond))
}
