// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package threadpool_test

import (
	"errors"
	"sync/atomic"
	"testing"

	"code.hybscloud.com/substrate/threadpool"
)

func TestDispatchRunsAllTasks(t *testing.T) {
	pool := threadpool.New(4)
	defer pool.Close()

	const n = 2000
	var count atomic.Int64
	for i := 0; i < n; i++ {
		pool.Dispatch(func() { count.Add(1) })
	}
	pool.WaitUntilIdle()
	if got := count.Load(); got != n {
		t.Fatalf("count = %d, want %d", got, n)
	}
}

func TestDispatchBatch(t *testing.T) {
	pool := threadpool.New(3)
	defer pool.Close()

	var count atomic.Int64
	fns := make([]func(), 500)
	for i := range fns {
		fns[i] = func() { count.Add(1) }
	}
	pool.DispatchBatch(fns)
	pool.WaitUntilIdle()
	if got := count.Load(); got != int64(len(fns)) {
		t.Fatalf("count = %d, want %d", got, len(fns))
	}
}

func TestParallelizeCoversWholeRange(t *testing.T) {
	pool := threadpool.New(4)
	defer pool.Close()

	const n = 10007 // deliberately not a multiple of worker*32
	seen := make([]atomic.Int32, n)
	pool.Parallelize(n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			seen[i].Add(1)
		}
	})
	for i := range seen {
		if v := seen[i].Load(); v != 1 {
			t.Fatalf("index %d visited %d times, want 1", i, v)
		}
	}
}

func TestParallelizeErrCoversWholeRangeOnSuccess(t *testing.T) {
	pool := threadpool.New(4)
	defer pool.Close()

	const n = 5003
	seen := make([]atomic.Int32, n)
	err := pool.ParallelizeErr(n, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			seen[i].Add(1)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ParallelizeErr: %v", err)
	}
	for i := range seen {
		if v := seen[i].Load(); v != 1 {
			t.Fatalf("index %d visited %d times, want 1", i, v)
		}
	}
}

func TestParallelizeErrReturnsFirstError(t *testing.T) {
	pool := threadpool.New(4)
	defer pool.Close()

	wantErr := errors.New("boom")
	err := pool.ParallelizeErr(100, func(lo, hi int) error {
		if lo == 0 {
			return wantErr
		}
		return nil
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("ParallelizeErr err = %v, want %v", err, wantErr)
	}
}

func TestWaitUntilIdleIsRepeatable(t *testing.T) {
	pool := threadpool.New(2)
	defer pool.Close()

	for round := 0; round < 5; round++ {
		var count atomic.Int64
		for i := 0; i < 100; i++ {
			pool.Dispatch(func() { count.Add(1) })
		}
		pool.WaitUntilIdle()
		if got := count.Load(); got != 100 {
			t.Fatalf("round %d: count = %d, want 100", round, got)
		}
	}
}

func TestNewAppliesMinimumWorkerFloor(t *testing.T) {
	pool := threadpool.New(0)
	defer pool.Close()
	if pool.NumWorkers() < 2 {
		t.Fatalf("NumWorkers() = %d, want at least 2", pool.NumWorkers())
	}
}
