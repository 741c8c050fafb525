// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package threadpool implements a fixed-size worker pool with round-robin
// dispatch, batch dispatch, a parallelize-map helper for splitting one job
// across every worker, an errgroup-backed fallible variant for one-shot
// construction-time fan-out, and an ack-barrier wait for all queued work to
// drain.
//
// Each worker owns one bounded MPMC queue (queue.Bounded) that any goroutine
// may push work into; only the worker itself pops from it. The teacher's
// C++ ancestor gives each worker a work-stealing deque, but disables the
// steal side outright ("temporarily disabled stealing"), so the only
// behavior actually exercised — many producers pushing in, one owner
// popping — is exactly what queue.Bounded already provides; see DESIGN.md.
package threadpool

import (
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"code.hybscloud.com/substrate/internal/backoff"
	"code.hybscloud.com/substrate/internal/sema"
	"code.hybscloud.com/substrate/queue"
)

// queueCapacity is the fixed depth of each worker's inbox. It is rounded up
// to a power of two by queue.NewBounded.
const queueCapacity = 1024

type taskKind uint8

const (
	taskRun taskKind = iota
	taskAck
	taskExit
)

type task struct {
	kind taskKind
	fn   func()
}

// Pool is a fixed-size pool of worker goroutines, each draining its own
// bounded inbox queue.
type Pool struct {
	queues     []*queue.Bounded[task]
	nextWorker atomic.Uint64
	ack        *sema.Semaphore
	wg         sync.WaitGroup
}

// New starts a Pool with n workers. If n is 0 or negative, it uses
// runtime.GOMAXPROCS(0), with a floor of 2 — the same floor the teacher's
// defaultPool() applies to hardware_concurrency().
func New(n int) *Pool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	if n < 2 {
		n = 2
	}
	p := &Pool{
		queues: make([]*queue.Bounded[task], n),
		ack:    sema.New(0),
	}
	for i := range p.queues {
		p.queues[i] = queue.NewBounded[task](queueCapacity)
	}
	p.wg.Add(n)
	for i := range p.queues {
		go p.work(p.queues[i])
	}
	return p
}

// NumWorkers returns the number of worker goroutines in the pool.
func (p *Pool) NumWorkers() int {
	return len(p.queues)
}

func (p *Pool) work(q *queue.Bounded[task]) {
	defer p.wg.Done()
	for {
		t, err := q.Pop()
		if err != nil {
			// q is never put in nonblocking mode, so Pop only returns
			// an error if the queue itself is misused; treat it as a
			// spurious wakeup and keep draining.
			continue
		}
		switch t.kind {
		case taskRun:
			t.fn()
		case taskAck:
			p.ack.Post()
		case taskExit:
			return
		}
	}
}

// Dispatch enqueues fn to run on some worker, chosen by scanning workers
// round-robin starting after whichever worker was picked last. If every
// worker's inbox is momentarily full, Dispatch backs off and rescans rather
// than blocking on any one worker's queue.
func (p *Pool) Dispatch(fn func()) {
	if len(p.queues) == 0 {
		fn()
		return
	}
	t := task{kind: taskRun, fn: fn}
	w := backoff.DispatchFull()
	for {
		start := p.nextWorker.Load()
		for i := 0; i < len(p.queues); i++ {
			idx := (int(start) + i) % len(p.queues)
			if p.queues[idx].TryPush(t) {
				p.nextWorker.Store(uint64(idx + 1))
				return
			}
		}
		w.Wait()
	}
}

// DispatchBatch enqueues every fn in fns, in order, using the same
// round-robin policy as Dispatch for each one.
func (p *Pool) DispatchBatch(fns []func()) {
	for _, fn := range fns {
		p.Dispatch(fn)
	}
}

// Parallelize splits the range [0, n) into roughly NumWorkers()*32 chunks —
// the same chunk-count heuristic as the teacher's enumerateParallel — and
// dispatches one job per chunk that calls fn(lo, hi) for its [lo, hi) slice,
// blocking until every chunk has completed.
func (p *Pool) Parallelize(n int, fn func(lo, hi int)) {
	if n <= 0 {
		return
	}
	jobs := p.NumWorkers() * 32
	if jobs > n {
		jobs = n
	}
	chunk := (n + jobs - 1) / jobs

	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		wg.Add(1)
		lo, hi := lo, hi
		p.Dispatch(func() {
			defer wg.Done()
			fn(lo, hi)
		})
	}
	wg.Wait()
}

// ParallelizeErr is Parallelize for fallible construction-time work: fn may
// return an error, and ParallelizeErr waits for every chunk to finish and
// then returns the first error any chunk reported, the same first-error-wins
// semantics as errgroup.Group (a failure does not stop the other chunks). Unlike Parallelize's steady-state dispatch over each
// worker's queue.Bounded inbox, this is for one-shot fan-out during index
// construction — building a corpus's forward and reverse suffix arrays at
// once, say — where the chunk count still follows the pool's worker-count
// heuristic but the chunks themselves run on errgroup's own goroutines
// rather than being queued onto workers that may be busy with steady-state
// dispatch.
func (p *Pool) ParallelizeErr(n int, fn func(lo, hi int) error) error {
	if n <= 0 {
		return nil
	}
	jobs := p.NumWorkers() * 32
	if jobs > n {
		jobs = n
	}
	chunk := (n + jobs - 1) / jobs

	var g errgroup.Group
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		lo, hi := lo, hi
		g.Go(func() error { return fn(lo, hi) })
	}
	return g.Wait()
}

// WaitUntilIdle blocks until every task dispatched before this call has been
// popped by its worker: it pushes one ack sentinel to every worker's queue,
// then waits for every worker to reach and process its sentinel. Since each
// worker drains its queue in FIFO order, by the time all acks have been
// observed, every task queued before WaitUntilIdle was called has run.
func (p *Pool) WaitUntilIdle() {
	for _, q := range p.queues {
		_ = q.Push(task{kind: taskAck})
	}
	for range p.queues {
		p.ack.Wait()
	}
}

// Close stops every worker goroutine, waiting for in-flight tasks queued
// before the call to finish first.
func (p *Pool) Close() {
	p.WaitUntilIdle()
	for _, q := range p.queues {
		_ = q.Push(task{kind: taskExit})
	}
	p.wg.Wait()
}
