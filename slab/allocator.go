// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package slab

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// registry maps a slab's Size-aligned buffer base address back to the Slab
// that owns it, so that Release can work from a bare *T with no allocator or
// cache context, the way the teacher's static Allocator::free(blk) does by
// masking the pointer down to its containing Slab. Go cannot mask a pointer
// into a Go struct address the way the C++ source masks into a placement-new
// Slab, so the base-address lookup stands in for that trick.
var registry sync.Map // uintptr -> *Slab

func registerSlab(s *Slab) {
	registry.Store(baseAddr(s), s)
}

func baseAddr(s *Slab) uintptr {
	base := uintptr(unsafe.Pointer(unsafe.SliceData(s.buffer)))
	return base &^ (uintptr(Size) - 1)
}

// Allocator is a slab-backed allocator for fixed-size values of type T. A
// single Allocator may be shared by any number of LocalCaches; caches
// coordinate through the allocator's shared pool of slabs and its orphan
// stack, but each cache's own fast path (bump-allocate from its current
// slab) needs no synchronization at all.
type Allocator[T any] struct {
	pool        *pool
	orphans     atomic.Pointer[Slab] // Treiber stack of slabs left behind by closed caches
	nextCacheID atomic.Uint64
}

// New returns an Allocator for values of type T.
func New[T any]() *Allocator[T] {
	var zero T
	size := unsafe.Sizeof(zero)
	if size < 2 {
		size = 2 // a cell must be large enough to hold a freelist offset
	}
	align := unsafe.Alignof(zero)
	if align < 1 {
		align = 1
	}
	return &Allocator[T]{pool: newPool(uint16(size), uint16(align))}
}

// ObjectSize returns the size in bytes of one T cell, which may be larger
// than unsafe.Sizeof(T) to leave room for the freelist link.
func (a *Allocator[T]) ObjectSize() int {
	return int(a.pool.objSize)
}

// Release frees a value allocated by any cache of this allocator, from any
// goroutine. It always takes the CAS-guarded foreign-free path, since it has
// no cache context to compare ownership against; prefer (*LocalCache).Release
// when freeing from the same cache that allocated, which takes the
// uncontended fast path whenever ownership matches.
func (a *Allocator[T]) Release(ptr *T) {
	if ptr == nil {
		return
	}
	base := uintptr(unsafe.Pointer(ptr)) &^ (uintptr(Size) - 1)
	v, ok := registry.Load(base)
	if !ok {
		return
	}
	s := v.(*Slab)
	buf := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), s.objSize)
	s.releaseObject(buf, 0) // id 0 never matches a real cache id: always foreign path
}

func (a *Allocator[T]) popOrphan() *Slab {
	for {
		head := a.orphans.Load()
		if head == nil {
			return nil
		}
		if a.orphans.CompareAndSwap(head, head.orphanNext) {
			head.orphanNext = nil
			return head
		}
	}
}

func (a *Allocator[T]) pushOrphan(s *Slab) {
	for {
		head := a.orphans.Load()
		s.orphanNext = head
		if a.orphans.CompareAndSwap(head, s) {
			return
		}
	}
}

// NewCache returns a new LocalCache bound to this allocator. A LocalCache is
// meant to live as long as the goroutine using it (typically one per thread
// pool worker, acquired once at worker startup): it plays the role the
// teacher's thread_local TLS slot plays in the C++ source, made explicit
// because Go has no equivalent of thread-local storage a library can hook
// into for arbitrary goroutines.
func (a *Allocator[T]) NewCache() *LocalCache[T] {
	return &LocalCache[T]{alloc: a, id: a.nextCacheID.Add(1)}
}

// LocalCache is a single goroutine's view of an Allocator: a currently
// active slab it bump-allocates from, plus the set of slabs it owns so they
// can be handed back (drained ones to the shared pool, partially-used ones
// to the orphan stack) when the cache is closed.
type LocalCache[T any] struct {
	alloc   *Allocator[T]
	id      uint64
	current *Slab
	spare   *Slab // one other owned slab known to have room, to skip acquireSlab when current drains
	owned   []*Slab
}

// Allocate returns a pointer to a newly allocated, zero-valued T.
func (c *LocalCache[T]) Allocate() *T {
	for {
		if c.current != nil {
			if c.current.objectsAvailable() {
				buf := c.current.allocObject()
				zeroBytes(buf)
				return (*T)(unsafe.Pointer(unsafe.SliceData(buf)))
			}
			if c.current.reclaimForeignFrees() > 0 {
				continue
			}
			c.current = nil
		}
		if c.spare != nil {
			c.current, c.spare = c.spare, nil
			continue
		}
		c.acquireSlab()
	}
}

func (c *LocalCache[T]) acquireSlab() {
	s := c.alloc.popOrphan()
	if s == nil {
		s = c.alloc.pool.allocateSlab()
	}
	s.setOwner(c.id)
	registerSlab(s)
	c.owned = append(c.owned, s)
	c.current = s
}

// Release frees a value previously allocated by this or any other cache of
// the same allocator. When ptr was allocated by this cache and is still
// owned by it, the free goes straight onto the owner-only freelist with no
// synchronization; otherwise it takes the CAS-guarded foreign-free path.
func (c *LocalCache[T]) Release(ptr *T) {
	if ptr == nil {
		return
	}
	base := uintptr(unsafe.Pointer(ptr)) &^ (uintptr(Size) - 1)
	v, ok := registry.Load(base)
	if !ok {
		return
	}
	s := v.(*Slab)
	buf := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), s.objSize)
	s.releaseObject(buf, c.id)
	if s == c.current || s == c.spare {
		return
	}
	// a slab this cache does not currently track as having room just
	// gained one: if it was fully drained elsewhere, leave it for its
	// real owner's next pass; otherwise nothing further to do here since
	// releaseObject already updated the right list.
}

// Close returns every slab this cache owns to the shared pool: fully
// drained slabs go straight back to the group freelist for reuse by any
// cache of the same Allocator, while slabs still holding live objects are
// pushed onto the orphan stack so the next cache that needs a slab adopts
// them in place instead of stranding their objects until the whole process
// the original objects belong to also exits.
func (c *LocalCache[T]) Close() {
	for _, s := range c.owned {
		s.reclaimForeignFrees()
		if s.objectsInUse() == 0 {
			c.alloc.pool.releaseSlab(s)
		} else {
			c.alloc.pushOrphan(s)
		}
	}
	c.owned = nil
	c.current = nil
	c.spare = nil
}

// zeroBytes clears a byte slice; equivalent to the teacher's ASAN-aware
// allocObject, minus the sanitizer hooks this module has no use for.
func zeroBytes(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
