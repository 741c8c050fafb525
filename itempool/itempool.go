// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package itempool implements allocate-only, append-only pools of
// fixed-shape items (component H): Pool, a chunked pool safe for concurrent
// Alloc from many goroutines with addresses stable across growth, and Flat,
// a single-threaded variant that packs items into one contiguous slice and
// may relocate them on growth.
//
// Both pools can optionally be pointed at an externally-owned buffer (e.g. a
// memory-mapped file's contents) instead of process heap memory, in which
// case further allocations beyond the external buffer's length copy into
// newly heap-allocated storage.
package itempool

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// ChunkSize is the number of items held per chunk of a Pool. Items never
// move between chunks, so a *T returned by Pool.Item remains valid for the
// life of the pool even as it grows.
const ChunkSize = 64

type chunk[T any] struct {
	items []T
}

// Pool is a chunked, append-only pool of T values. Alloc is safe to call
// from any number of goroutines concurrently; Item/At access by index is
// likewise concurrency-safe against any number of Allocs.
type Pool[T any] struct {
	table    atomic.Pointer[[]*chunkSlot[T]] // copy-on-write outer index
	size     atomic.Int64
	capacity atomic.Int64
	extData  int64 // items backed by an external buffer we don't own
	mu       sync.Mutex
}

type chunkSlot[T any] struct {
	c atomic.Pointer[chunk[T]]
}

// New returns an empty Pool, optionally reserving room for initCap items.
func New[T any](initCap int) *Pool[T] {
	p := &Pool[T]{}
	empty := make([]*chunkSlot[T], 0)
	p.table.Store(&empty)
	if initCap > 0 {
		p.Reserve(initCap)
	}
	return p
}

// Alloc reserves the next index in the pool and returns it. The slot's
// chunk is created (if not already present) before Alloc returns, so Item
// on the returned index is always valid immediately.
func (p *Pool[T]) Alloc() int {
	idx := p.size.Add(1) - 1
	if idx >= p.capacity.Load() {
		p.mu.Lock()
		for idx >= p.capacity.Load() {
			cap := p.capacity.Load()
			var newCap int64
			switch {
			case cap < 32:
				newCap = 32
			case cap < 65536:
				newCap = 2 * cap
			default:
				newCap = cap * 3 / 2
			}
			p.resizeLocked(newCap)
		}
		p.mu.Unlock()
	}
	p.ensureChunk(idx / ChunkSize)
	return int(idx)
}

// Release frees the most recently allocated index if it is still the most
// recent allocation; otherwise it is a no-op and the slot is wasted, exactly
// as in the teacher's ItemPool::release.
func (p *Pool[T]) Release(index int) {
	want := int64(index) + 1
	for {
		cur := p.size.Load()
		if cur != want {
			return
		}
		if p.size.CompareAndSwap(cur, int64(index)) {
			return
		}
	}
}

// Size returns the number of items currently allocated.
func (p *Pool[T]) Size() int { return int(p.size.Load()) }

// Capacity returns the number of items the pool can hold before its next
// growth.
func (p *Pool[T]) Capacity() int { return int(p.capacity.Load()) }

// Reserve ensures the pool has room for at least newCap items without
// reallocating chunk storage during subsequent Allocs up to that point.
func (p *Pool[T]) Reserve(newCap int) {
	if int64(newCap) <= p.capacity.Load() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if int64(newCap) > p.capacity.Load() {
		p.resizeLocked(int64(newCap))
	}
}

// AllocBatch reserves incr contiguous indices at once, returning the index
// of the first one.
func (p *Pool[T]) AllocBatch(incr int) int {
	p.mu.Lock()
	start := p.size.Load()
	newSize := start + int64(incr)
	if newSize > p.capacity.Load() {
		p.resizeLocked(newSize)
	}
	p.size.Store(newSize)
	p.mu.Unlock()
	for ci := start / ChunkSize; ci < (newSize+ChunkSize-1)/ChunkSize; ci++ {
		p.ensureChunk(ci)
	}
	return int(start)
}

// Clear discards all allocated items without releasing chunk storage.
func (p *Pool[T]) Clear() { p.size.Store(0) }

func (p *Pool[T]) resizeLocked(newCap int64) {
	newCount := (newCap + ChunkSize - 1) / ChunkSize
	old := *p.table.Load()
	next := make([]*chunkSlot[T], newCount)
	copy(next, old)
	for i := len(old); i < len(next); i++ {
		next[i] = &chunkSlot[T]{}
	}
	p.table.Store(&next)
	p.capacity.Store(newCount * ChunkSize)
}

func (p *Pool[T]) ensureChunk(ci int64) {
	table := *p.table.Load()
	slot := table[ci]
	if slot.c.Load() != nil {
		return
	}
	slot.c.CompareAndSwap(nil, &chunk[T]{items: make([]T, ChunkSize)})
}

// Item returns a pointer to the index'th item, or nil if index is not
// currently allocated.
func (p *Pool[T]) Item(index int) *T {
	if int64(index) >= p.size.Load() || index < 0 {
		return nil
	}
	table := *p.table.Load()
	slot := table[int64(index)/ChunkSize]
	c := slot.c.Load()
	if c == nil {
		return nil
	}
	return &c.items[int64(index)%ChunkSize]
}

// At is a panicking shorthand for Item, matching the teacher's
// operator[] bounds-checked access.
func (p *Pool[T]) At(index int) *T {
	item := p.Item(index)
	if item == nil {
		panic("itempool: index out of range")
	}
	return item
}

// ExternalBuffer points the pool at a caller-owned, already-populated
// buffer instead of allocating chunks of its own. Further Allocs beyond
// len(base) copy subsequent items into heap-allocated chunks, leaving the
// external buffer's contents untouched. Used to view the vocabulary or
// suffix-array bodies of a memory-mapped corpus file without copying them.
func (p *Pool[T]) ExternalBuffer(base []T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := int64(len(base))
	count := (n + ChunkSize - 1) / ChunkSize
	table := make([]*chunkSlot[T], count)
	for i := int64(0); i < count; i++ {
		lo := i * ChunkSize
		hi := lo + ChunkSize
		if hi > n {
			hi = n
		}
		buf := base[lo:hi:hi]
		if hi-lo < ChunkSize {
			// pad the final partial chunk with heap storage so
			// Item never returns a slice shorter than ChunkSize
			padded := make([]T, ChunkSize)
			copy(padded, buf)
			buf = padded
		}
		slot := &chunkSlot[T]{}
		slot.c.Store(&chunk[T]{items: buf})
		table[i] = slot
	}
	p.table.Store(&table)
	p.extData = n
	p.size.Store(n)
	p.capacity.Store(count * ChunkSize)
}

// Save writes every allocated item to w as fixed-width little-endian
// records via writeItem.
func Save[T any](p *Pool[T], w io.Writer, writeItem func(io.Writer, T) error) error {
	n := p.Size()
	for i := 0; i < n; i++ {
		if err := writeItem(w, *p.At(i)); err != nil {
			return err
		}
	}
	return nil
}

// Load reads n items from r via readItem, appending them to the pool, and
// returns the index of the first item read.
func Load[T any](p *Pool[T], r io.Reader, n int, readItem func(io.Reader) (T, error)) (int, error) {
	if n == 0 {
		return p.Size(), nil
	}
	start := p.AllocBatch(n)
	for i := 0; i < n; i++ {
		v, err := readItem(r)
		if err != nil {
			p.size.Store(int64(start))
			return start, err
		}
		*p.At(start + i) = v
	}
	return start, nil
}

// ErrShortRead is returned by the binary-record helpers in this package
// when fewer bytes were available than a fixed-width record requires.
var ErrShortRead = errors.New("itempool: short read")

// ReadUint32 is a readItem helper for Pool[uint32]/Flat[uint32], matching
// the little-endian record layout the rest of this module's persistence
// uses (see bufbuild and bidindex).
func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, ErrShortRead
		}
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// WriteUint32 is the save-side counterpart to ReadUint32.
func WriteUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}
