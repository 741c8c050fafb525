// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bidindex_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"
	"testing"

	"code.hybscloud.com/substrate/bidindex"
)

func writeString(w io.Writer, s string) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func TestAddKeyIsIdempotent(t *testing.T) {
	idx := bidindex.New[string](0)
	a := idx.AddKey("hello")
	b := idx.AddKey("hello")
	if a != b {
		t.Fatalf("AddKey not idempotent: %d != %d", a, b)
	}
	c := idx.AddKey("world")
	if c == a {
		t.Fatalf("distinct keys got the same index")
	}
	if idx.IndexSize() != 2 {
		t.Fatalf("IndexSize() = %d, want 2", idx.IndexSize())
	}
}

func TestGetKeyAndGetIndexRoundTrip(t *testing.T) {
	idx := bidindex.New[string](0)
	i := idx.AddKey("alpha")
	key, ok := idx.GetKey(i)
	if !ok || key != "alpha" {
		t.Fatalf("GetKey(%d) = (%q, %v), want (\"alpha\", true)", i, key, ok)
	}
	if got := idx.GetIndex("alpha"); got != i {
		t.Fatalf("GetIndex(alpha) = %d, want %d", got, i)
	}
	if got := idx.GetIndex("missing"); got != bidindex.NoIndex {
		t.Fatalf("GetIndex(missing) = %d, want NoIndex", got)
	}
}

func TestFinalizeDetectsConsistentState(t *testing.T) {
	idx := bidindex.New[string](0)
	idx.AddKey("a")
	idx.AddKey("b")
	if !idx.Finalize() {
		t.Fatal("Finalize() = false for a consistently built index")
	}
	if !idx.ReadOnly() {
		t.Fatal("ReadOnly() = false after Finalize")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	idx := bidindex.New[string](0)
	for _, w := range []string{"the", "quick", "brown", "fox"} {
		idx.AddKey(w)
	}
	var buf bytes.Buffer
	if err := idx.Save(&buf, writeString); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := bidindex.Load[string](&buf, readString)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.IndexSize() != idx.IndexSize() {
		t.Fatalf("IndexSize() = %d, want %d", loaded.IndexSize(), idx.IndexSize())
	}
	for i := 0; i < idx.IndexSize(); i++ {
		want, _ := idx.GetKey(i)
		got, ok := loaded.GetKey(i)
		if !ok || got != want {
			t.Fatalf("GetKey(%d) = (%q, %v), want (%q, true)", i, got, ok, want)
		}
	}
}

func TestLoadMappedSetsCommonBuffer(t *testing.T) {
	idx := bidindex.New[string](0)
	idx.LoadMapped([]string{"shared1", "shared2"})
	if idx.CommonBufferSize() != 2 {
		t.Fatalf("CommonBufferSize() = %d, want 2", idx.CommonBufferSize())
	}
	own := idx.AddKey("owned")
	if own != 2 {
		t.Fatalf("AddKey after LoadMapped = %d, want 2", own)
	}
	if idx.CommonBufferSize() != 2 {
		t.Fatal("CommonBufferSize changed after adding a process-owned key")
	}
}

func TestConcurrentAddKey(t *testing.T) {
	idx := bidindex.New[int](0)
	const workers = 16
	const perWorker = 500

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				idx.AddKey(i) // heavy overlap across workers by design
			}
		}()
	}
	wg.Wait()
	if idx.IndexSize() != perWorker {
		t.Fatalf("IndexSize() = %d, want %d", idx.IndexSize(), perWorker)
	}
}
