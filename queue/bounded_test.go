// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package queue_test

import (
	"sync"
	"testing"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/substrate/queue"
)

func TestBoundedPushPopOrder(t *testing.T) {
	q := queue.NewBounded[int](8)
	for i := 0; i < 8; i++ {
		if err := q.Push(i); err != nil {
			t.Fatalf("Push(%d): %v", i, err)
		}
	}
	for i := 0; i < 8; i++ {
		v, err := q.Pop()
		if err != nil {
			t.Fatalf("Pop() at %d: %v", i, err)
		}
		if v != i {
			t.Fatalf("Pop() = %d, want %d", v, i)
		}
	}
}

func TestBoundedNonblockingFull(t *testing.T) {
	q := queue.NewBounded[int](4)
	q.SetNonblock(true)
	for i := 0; i < 4; i++ {
		if err := q.Push(i); err != nil {
			t.Fatalf("Push(%d): %v", i, err)
		}
	}
	if err := q.Push(99); err != iox.ErrWouldBlock {
		t.Fatalf("Push on full queue: got %v, want ErrWouldBlock", err)
	}
}

func TestBoundedNonblockingEmpty(t *testing.T) {
	q := queue.NewBounded[int](4)
	q.SetNonblock(true)
	if _, err := q.Pop(); err != iox.ErrWouldBlock {
		t.Fatalf("Pop on empty queue: got %v, want ErrWouldBlock", err)
	}
}

func TestBoundedRoundsCapacityToPowerOfTwo(t *testing.T) {
	q := queue.NewBounded[int](5)
	if q.Cap() != 8 {
		t.Fatalf("Cap() = %d, want 8", q.Cap())
	}
}

func TestBoundedConcurrentProducersConsumers(t *testing.T) {
	const n = 10000
	q := queue.NewBounded[int](64)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			_ = q.Push(i)
		}
	}()

	seen := make([]bool, n)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			v, err := q.Pop()
			if err != nil {
				t.Errorf("Pop(): %v", err)
				return
			}
			if v < 0 || v >= n || seen[v] {
				t.Errorf("Pop() returned out-of-range or duplicate value %d", v)
				return
			}
			seen[v] = true
		}
	}()
	wg.Wait()
}
