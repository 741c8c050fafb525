// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package queue_test

import (
	"sync"
	"testing"

	"code.hybscloud.com/substrate/queue"
)

func TestUnboundedPushPopOrderSingleProducer(t *testing.T) {
	q := queue.NewUnbounded[string]()
	if !q.Empty() {
		t.Fatal("new queue should be empty")
	}
	q.Push("a")
	q.Push("b")
	q.Push("c")
	for _, want := range []string{"a", "b", "c"} {
		if got := q.Pop(); got != want {
			t.Fatalf("Pop() = %q, want %q", got, want)
		}
	}
	if !q.Empty() {
		t.Fatal("queue should be empty after draining")
	}
}

func TestUnboundedTryPop(t *testing.T) {
	q := queue.NewUnbounded[int]()
	if _, ok := q.TryPop(); ok {
		t.Fatal("TryPop on empty queue should report false")
	}
	q.Push(7)
	v, ok := q.TryPop()
	if !ok || v != 7 {
		t.Fatalf("TryPop() = (%d, %v), want (7, true)", v, ok)
	}
}

func TestUnboundedManyProducersOneConsumer(t *testing.T) {
	const producers = 16
	const perProducer = 5000
	q := queue.NewUnbounded[int]()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(i)
			}
		}()
	}

	done := make(chan struct{})
	count := 0
	go func() {
		for count < producers*perProducer {
			q.Pop()
			count++
		}
		close(done)
	}()

	wg.Wait()
	<-done
	if count != producers*perProducer {
		t.Fatalf("consumed %d values, want %d", count, producers*perProducer)
	}
}
