// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bufbuild_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"
	"testing"

	"code.hybscloud.com/substrate/bufbuild"
)

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func TestAppendAndRemoveLast(t *testing.T) {
	b := bufbuild.New[int](0)
	b.Append(1)
	b.Append(2)
	b.Append(3)
	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", b.Len())
	}
	b.RemoveLast()
	if got := b.CurrentBuffer(); len(got) != 2 || got[1] != 2 {
		t.Fatalf("CurrentBuffer() = %v, want [1 2]", got)
	}
}

func TestReverse(t *testing.T) {
	b := bufbuild.New[int](0)
	for _, v := range []int{1, 2, 3, 4, 5} {
		b.Append(v)
	}
	b.Reverse()
	want := []int{5, 4, 3, 2, 1}
	got := b.CurrentBuffer()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Reverse() = %v, want %v", got, want)
		}
	}
}

func TestFinalizeLeavesBuilderUsable(t *testing.T) {
	b := bufbuild.New[int](0)
	b.Append(10)
	b.Append(20)
	snapshot := b.Finalize()
	b.Append(30)
	if len(snapshot) != 2 {
		t.Fatalf("Finalize() snapshot len = %d, want 2", len(snapshot))
	}
	if b.Len() != 3 {
		t.Fatalf("Len() after Finalize+Append = %d, want 3", b.Len())
	}
}

func TestMoveResetsBuilder(t *testing.T) {
	b := bufbuild.New[int](0)
	b.Append(1)
	b.Append(2)
	out := b.Move()
	if len(out) != 2 {
		t.Fatalf("Move() = %v, want len 2", out)
	}
	if b.Len() != 0 {
		t.Fatalf("Len() after Move = %d, want 0", b.Len())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	b := bufbuild.New[uint32](0)
	for i := uint32(0); i < 50; i++ {
		b.Append(i * 3)
	}
	var buf bytes.Buffer
	if err := bufbuild.Save(b, &buf, writeUint32); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := bufbuild.Load[uint32](&buf, readUint32)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Len() != b.Len() {
		t.Fatalf("Len() = %d, want %d", loaded.Len(), b.Len())
	}
	got := loaded.CurrentBuffer()
	want := b.CurrentBuffer()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("element %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestLoadRejectsBadSignature(t *testing.T) {
	buf := bytes.NewBufferString("not a bufbuild stream at all............")
	if _, err := bufbuild.Load[uint32](buf, readUint32); err != bufbuild.ErrBadSignature {
		t.Fatalf("Load err = %v, want ErrBadSignature", err)
	}
}

func TestLoadFromMmap(t *testing.T) {
	region := []int{7, 8, 9}
	b := bufbuild.New[int](0)
	b.LoadFromMmap(region)
	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", b.Len())
	}
	b.Append(10)
	if got := b.CurrentBuffer(); len(got) != 4 || got[3] != 10 {
		t.Fatalf("CurrentBuffer() = %v, want [7 8 9 10]", got)
	}
}

func TestParallelReserveAndSetElement(t *testing.T) {
	p := bufbuild.NewParallel[int](0)
	const workers = 16
	const perWorker = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			first := p.ReserveElements(perWorker)
			for i := 0; i < perWorker; i++ {
				p.SetElement(first+i, id)
			}
		}(w)
	}
	wg.Wait()

	if p.Len() != workers*perWorker {
		t.Fatalf("Len() = %d, want %d", p.Len(), workers*perWorker)
	}

	counts := make(map[int]int)
	for _, v := range p.Finalize() {
		counts[v]++
	}
	for id := 0; id < workers; id++ {
		if counts[id] != perWorker {
			t.Fatalf("worker %d wrote %d elements, want %d", id, counts[id], perWorker)
		}
	}
}
