// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package bufbuild implements an append-only buffer builder (component J):
// a dynamic array with amortised O(1) append, in-place reverse, and
// finalize/move handoff, plus a Parallel variant that adds a lock over the
// resize-sensitive operations so multiple goroutines can reserve disjoint
// ranges and fill them concurrently.
package bufbuild

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"unsafe"
)

// Signature is the magic FramepaC-ng's BufferBuilder writes at the start of
// its serialized form, padded to 14 bytes.
var Signature = [14]byte{0x7F, 'B', 'u', 'f', 'B', 'u', 'i', 'l', 'd'}

const fileFormat = 1

// ErrBadSignature is returned by Load when the stream does not begin with
// the expected signature.
var ErrBadSignature = errors.New("bufbuild: bad signature")

// ErrElementSize is returned by Load when the stream's recorded element
// size does not match sizeof(T), a sign the file was built for a different
// element type.
var ErrElementSize = errors.New("bufbuild: element size mismatch")

// Builder is an append-only dynamic array of T. The zero Builder is ready
// to use. Builder is not safe for concurrent use; see Parallel.
type Builder[T any] struct {
	buf []T
}

// New returns an empty Builder with room for minCap elements preallocated.
func New[T any](minCap int) *Builder[T] {
	b := &Builder[T]{}
	if minCap > 0 {
		b.buf = make([]T, 0, minCap)
	}
	return b
}

// Preallocate grows the builder's capacity to at least newCap, preserving
// existing elements.
func (b *Builder[T]) Preallocate(newCap int) bool {
	if newCap <= cap(b.buf) {
		return true
	}
	grown := make([]T, len(b.buf), newCap)
	copy(grown, b.buf)
	b.buf = grown
	return true
}

// Reserve is Preallocate, skipped when the builder already has enough room.
func (b *Builder[T]) Reserve(newCap int) bool {
	if newCap > cap(b.buf) {
		return b.Preallocate(newCap)
	}
	return true
}

// Clear empties the builder without releasing its backing storage.
func (b *Builder[T]) Clear() { b.buf = b.buf[:0] }

// Append adds value to the end of the builder.
func (b *Builder[T]) Append(value T) { b.buf = append(b.buf, value) }

// AppendBuilder appends every element currently held by other.
func (b *Builder[T]) AppendBuilder(other *Builder[T]) { b.buf = append(b.buf, other.buf...) }

// AppendN appends count copies of value.
func (b *Builder[T]) AppendN(value T, count int) {
	for i := 0; i < count; i++ {
		b.buf = append(b.buf, value)
	}
}

// RemoveLast drops the most recently appended element, if any.
func (b *Builder[T]) RemoveLast() {
	if len(b.buf) > 0 {
		b.buf = b.buf[:len(b.buf)-1]
	}
}

// Reverse reverses the builder's elements in place.
func (b *Builder[T]) Reverse() {
	for i, j := 0, len(b.buf)-1; i < j; i, j = i+1, j-1 {
		b.buf[i], b.buf[j] = b.buf[j], b.buf[i]
	}
}

// Len returns the number of elements currently held.
func (b *Builder[T]) Len() int { return len(b.buf) }

// Cap returns the builder's current capacity.
func (b *Builder[T]) Cap() int { return cap(b.buf) }

// CurrentBuffer returns the builder's live backing slice; further appends
// may reallocate it.
func (b *Builder[T]) CurrentBuffer() []T { return b.buf }

// Finalize returns a trimmed copy of the builder's contents; the builder
// itself is left usable afterward.
func (b *Builder[T]) Finalize() []T {
	out := make([]T, len(b.buf))
	copy(out, b.buf)
	return out
}

// Move hands the builder's backing slice to the caller and resets the
// builder to empty.
func (b *Builder[T]) Move() []T {
	out := b.buf
	b.buf = nil
	return out
}

// LoadFromMmap points the builder directly at region without copying,
// replacing any existing contents. Appending past region's capacity
// reallocates as usual.
func (b *Builder[T]) LoadFromMmap(region []T) {
	b.buf = region
}

func elementSize[T any]() byte {
	var zero T
	return byte(unsafe.Sizeof(zero))
}

// Save serializes the builder: signature, element size, element count,
// then every element via writeItem.
func Save[T any](b *Builder[T], w io.Writer, writeItem func(io.Writer, T) error) error {
	if _, err := w.Write(Signature[:]); err != nil {
		return err
	}
	var header [9]byte
	header[0] = elementSize[T]()
	binary.LittleEndian.PutUint64(header[1:9], uint64(len(b.buf)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	for _, v := range b.buf {
		if err := writeItem(w, v); err != nil {
			return err
		}
	}
	return nil
}

// Load returns a new builder holding the elements read from r, previously
// written by Save.
func Load[T any](r io.Reader, readItem func(io.Reader) (T, error)) (*Builder[T], error) {
	var sig [14]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return nil, err
	}
	if sig != Signature {
		return nil, ErrBadSignature
	}
	var header [9]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	if header[0] != elementSize[T]() {
		return nil, ErrElementSize
	}
	count := binary.LittleEndian.Uint64(header[1:9])
	b := New[T](int(count))
	for i := uint64(0); i < count; i++ {
		v, err := readItem(r)
		if err != nil {
			return nil, err
		}
		b.Append(v)
	}
	return b, nil
}

// Parallel is the concurrent counterpart to Builder: reserveElements/
// setElement let many goroutines build disjoint ranges of the same buffer
// at once, guarded by a lock over the resize-sensitive operations, while
// setting an already-reserved element needs no further synchronization
// beyond that lock's read side.
type Parallel[T any] struct {
	mu sync.RWMutex
	b  Builder[T]
}

// NewParallel returns an empty Parallel builder with room for minCap
// elements preallocated.
func NewParallel[T any](minCap int) *Parallel[T] {
	return &Parallel[T]{b: *New[T](minCap)}
}

func (p *Parallel[T]) Preallocate(newCap int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.b.Preallocate(newCap)
}

func (p *Parallel[T]) Reserve(newCap int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.b.Reserve(newCap)
}

func (p *Parallel[T]) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.b.Clear()
}

func (p *Parallel[T]) Append(value T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.b.Append(value)
}

func (p *Parallel[T]) RemoveLast() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.b.RemoveLast()
}

func (p *Parallel[T]) Reverse() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.b.Reverse()
}

func (p *Parallel[T]) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.b.Len()
}

func (p *Parallel[T]) Cap() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.b.Cap()
}

func (p *Parallel[T]) Finalize() []T {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.b.Finalize()
}

func (p *Parallel[T]) Move() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.b.Move()
}

// CurrentBuffer returns the live backing slice, unguarded — mirroring the
// teacher's ParallelBufferBuilder, which inherits BufferBuilder's
// currentBuffer() as-is rather than taking its lock for it. Callers that
// need a stable snapshot while other goroutines may still be appending
// should use Finalize instead.
func (p *Parallel[T]) CurrentBuffer() []T { return p.b.CurrentBuffer() }

// SaveParallel serializes p the same way Save does for a plain Builder,
// taking the read lock for the duration of the write.
func SaveParallel[T any](p *Parallel[T], w io.Writer, writeItem func(io.Writer, T) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Save(&p.b, w, writeItem)
}

// LoadParallel reads a Parallel builder's contents previously written by
// SaveParallel or Save.
func LoadParallel[T any](r io.Reader, readItem func(io.Reader) (T, error)) (*Parallel[T], error) {
	b, err := Load[T](r, readItem)
	if err != nil {
		return nil, err
	}
	return &Parallel[T]{b: *b}, nil
}

// ReserveElements reserves count contiguous indices for the caller to fill
// with SetElement and returns the first reserved index. Safe to call from
// many goroutines concurrently; each call's range is disjoint from every
// other's.
func (p *Parallel[T]) ReserveElements(count int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	first := len(p.b.buf)
	newLen := first + count
	p.b.Preallocate(newLen)
	p.b.buf = p.b.buf[:newLen]
	return first
}

// SetElement writes value at index, which must have been returned by a
// prior ReserveElements call. Concurrent SetElement calls at distinct
// indices need no further synchronization.
func (p *Parallel[T]) SetElement(index int, value T) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	p.b.buf[index] = value
}
