// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sufarray_test

import (
	"bytes"
	"sync"
	"testing"

	"code.hybscloud.com/substrate/sufarray"
	"code.hybscloud.com/substrate/threadpool"
)

// seekBuffer adapts a bytes.Buffer into an io.WriteSeeker for Save, which
// needs to patch its header after writing the body.
type seekBuffer struct {
	buf []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	end := s.pos + len(p)
	if end > len(s.buf) {
		grown := make([]byte, end)
		copy(grown, s.buf)
		s.buf = grown
	}
	copy(s.buf[s.pos:end], p)
	s.pos = end
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		s.pos = int(offset)
	case 1:
		s.pos += int(offset)
	case 2:
		s.pos = len(s.buf) + int(offset)
	}
	return int64(s.pos), nil
}

// encodeRunes maps a small closed vocabulary ("banana$" style tests) to
// dense symbol ids 0..vocabSize-1, with id 0 reserved as the unique
// sentinel (smallest symbol, appears exactly once, at the end).
func encodeRunes(s string) (ids []uint32, vocabSize uint32) {
	seen := map[rune]uint32{'$': 0}
	next := uint32(1)
	for _, r := range s {
		if _, ok := seen[r]; !ok {
			seen[r] = next
			next++
		}
	}
	ids = make([]uint32, 0, len(s)+1)
	for _, r := range s {
		ids = append(ids, seen[r])
	}
	ids = append(ids, 0) // sentinel
	return ids, next
}

func suffixString(ids []uint32, pos int) []uint32 {
	return ids[pos:]
}

func TestConstructionOrdersSuffixesLexicographically(t *testing.T) {
	ids, vocab := encodeRunes("banana")
	sa, err := sufarray.New(ids, vocab, 0, vocab, vocab+1, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if sa.IndexSize() != len(ids) {
		t.Fatalf("IndexSize() = %d, want %d", sa.IndexSize(), len(ids))
	}
	for i := 1; i < sa.IndexSize(); i++ {
		a := suffixString(ids, sa.IndexAt(i-1))
		b := suffixString(ids, sa.IndexAt(i))
		n := min(len(a), len(b))
		cmp := 0
		for k := 0; k < n; k++ {
			if a[k] != b[k] {
				if a[k] < b[k] {
					cmp = -1
				} else {
					cmp = 1
				}
				break
			}
		}
		if cmp > 0 {
			t.Fatalf("SA[%d]=%v > SA[%d]=%v, suffix array not sorted", i-1, a, i, b)
		}
	}
}

func TestLookupFindsAllOccurrences(t *testing.T) {
	ids, vocab := encodeRunes("banana")
	sa, err := sufarray.New(ids, vocab, 0, vocab, vocab+1, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// "ana" ("a","n","a") occurs at positions 1 and 3 in "banana"
	seen := map[rune]uint32{'$': 0, 'b': 1, 'a': 2, 'n': 3}
	key := []uint32{seen['a'], seen['n'], seen['a']}
	first, last, ok := sa.Lookup(key)
	if !ok {
		t.Fatal("Lookup(ana) = not found")
	}
	if got := last - first + 1; got != 2 {
		t.Fatalf("Lookup(ana) matched %d entries, want 2", got)
	}
}

func TestLookupMissingKey(t *testing.T) {
	ids, vocab := encodeRunes("banana")
	sa, err := sufarray.New(ids, vocab, 0, vocab, vocab+1, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, _, ok := sa.Lookup([]uint32{vocab - 1, vocab - 1, vocab - 1}); ok {
		t.Fatal("Lookup found a key that cannot occur")
	}
}

func TestEnumerateReportsEveryDistinctKey(t *testing.T) {
	ids, vocab := encodeRunes("banana")
	sa, err := sufarray.New(ids, vocab, 0, vocab, vocab+1, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	counts := make(map[string]int)
	sa.Enumerate(0, sa.IndexSize(), 1, 2, func(key []uint32, keylen, freq, firstIndex int) {
		k := make([]uint32, keylen)
		copy(k, key[:keylen])
		counts[keyToStr(k)] += freq
	}, nil)
	if len(counts) == 0 {
		t.Fatal("Enumerate reported no keys")
	}
	// keyToStr spells id v as 'a'+v: $=a, b=b, a=c, n=d.
	want := map[string]int{"b": 1, "c": 3, "d": 2, "bc": 1, "cd": 2, "dc": 2, "ca": 1}
	for k, freq := range want {
		if counts[k] != freq {
			t.Fatalf("key %q: freq %d, want %d", k, counts[k], freq)
		}
	}
}

func keyToStr(key []uint32) string {
	var b bytes.Buffer
	for _, v := range key {
		b.WriteByte(byte('a' + v))
	}
	return b.String()
}

func TestEnumerateParallelMatchesSequential(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog the quick fox runs"
	ids, vocab := encodeRunes(text)
	sa, err := sufarray.New(ids, vocab, 0, vocab, vocab+1, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	seqFreq := make(map[uint32]int)
	sa.Enumerate(0, sa.IndexSize(), 1, 1, func(key []uint32, keylen, freq, firstIndex int) {
		seqFreq[key[0]] += freq
	}, nil)
	// EnumerateParallel skips the sentinel's (id 0) entries, so leave it
	// out of the sequential tally as well.
	delete(seqFreq, 0)

	pool := threadpool.New(4)
	defer pool.Close()

	var mu sync.Mutex
	parFreq := make(map[uint32]int)
	sa.EnumerateParallel(pool, 1, 1, func(key []uint32, keylen, freq, firstIndex int) {
		mu.Lock()
		parFreq[key[0]] += freq
		mu.Unlock()
	}, nil)

	if len(seqFreq) != len(parFreq) {
		t.Fatalf("parallel enumeration saw %d distinct ids, sequential saw %d", len(parFreq), len(seqFreq))
	}
	for id, freq := range seqFreq {
		if parFreq[id] != freq {
			t.Fatalf("id %d: parallel freq %d, sequential freq %d", id, parFreq[id], freq)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ids, vocab := encodeRunes("mississippi")
	sa, err := sufarray.New(ids, vocab, 0, vocab, vocab+1, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var buf seekBuffer
	if err := sa.Save(&buf, true); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := sufarray.Load(bytes.NewReader(buf.buf))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.ReadOnly() {
		t.Fatal("ReadOnly() = false after Load")
	}
	if loaded.IndexSize() != sa.IndexSize() {
		t.Fatalf("IndexSize() = %d, want %d", loaded.IndexSize(), sa.IndexSize())
	}
	for i := 0; i < sa.IndexSize(); i++ {
		if loaded.IndexAt(i) != sa.IndexAt(i) {
			t.Fatalf("IndexAt(%d) = %d, want %d", i, loaded.IndexAt(i), sa.IndexAt(i))
		}
	}
	for i := 0; i < len(ids); i++ {
		if loaded.IDAt(i) != sa.IDAt(i) {
			t.Fatalf("IDAt(%d) = %d, want %d", i, loaded.IDAt(i), sa.IDAt(i))
		}
	}
}

func TestLoadMmapRoundTrip(t *testing.T) {
	ids, vocab := encodeRunes("mississippi")
	sa, err := sufarray.New(ids, vocab, 0, vocab, vocab+1, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var buf seekBuffer
	if err := sa.Save(&buf, true); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := sufarray.LoadMmap(buf.buf)
	if err != nil {
		t.Fatalf("LoadMmap: %v", err)
	}
	if loaded.IndexSize() != sa.IndexSize() {
		t.Fatalf("IndexSize() = %d, want %d", loaded.IndexSize(), sa.IndexSize())
	}
	for i := 0; i < sa.IndexSize(); i++ {
		if loaded.IndexAt(i) != sa.IndexAt(i) {
			t.Fatalf("IndexAt(%d) = %d, want %d", i, loaded.IndexAt(i), sa.IndexAt(i))
		}
	}
}

func TestLoadRejectsBadSignature(t *testing.T) {
	buf := bytes.NewBufferString("not a sufarray stream at all...........")
	if _, err := sufarray.Load(buf); err != sufarray.ErrBadSignature {
		t.Fatalf("Load err = %v, want ErrBadSignature", err)
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
