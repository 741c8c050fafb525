// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package slab implements the fixed-size object allocator that backs every
// other component in this module: a slab is a large, page-aligned block of
// memory that is carved into equal-sized cells for a single object type, with
// a per-slab freelist that the owning cache pops from and pushes to without
// synchronization, plus a separate CAS-guarded "foreign free" list for
// objects released by a cache that did not allocate them.
//
// Slabs are untyped raw memory; type safety is added one layer up by
// Allocator[T]. Each Allocator draws its slabs from its own pool of groups,
// so a fully drained slab is recycled only within that Allocator; its memory
// is not made available to allocators of other types, nor to other
// Allocator values of the same type.
package slab

import (
	"sync/atomic"

	"code.hybscloud.com/substrate/internal/backoff"
	"code.hybscloud.com/substrate/internal/sysalloc"
)

// Size is the nominal size in bytes of one slab's data region. It is not the
// literal size of a Go allocation (Go slice headers are not part of it), but
// it fixes how many objects of a given size fit in a slab and is what
// Size-related accounting (e.g. groupSize*Size total capacity) is measured
// against.
const Size = 1 << 16 // 64KiB

// GroupSize is the number of slabs held by one SlabGroup.
const GroupSize = 256

// noFree marks the end of a freelist: no byte offset can legitimately equal
// it because offsets are clamped below this value when a slab is built.
const noFree = ^uint16(0)

// Slab is one fixed-size block of same-sized object cells. The zero Slab is
// not usable; slabs are always constructed by a SlabGroup.
type Slab struct {
	// immutable for the slab's lifetime once initialized
	objSize  uint16
	objAlign uint16
	objCount uint16
	slabID   uint16 // index within the owning group
	buffer   []byte // objCount*objSize bytes, aligned to objAlign

	// group bookkeeping: which group this slab belongs to and its link
	// in that group's own (non-atomic, CAS-guarded-by-index) freelist
	owningGroup *group
	nextFreeID  uint16

	// orphanNext links this slab into an Allocator's Treiber stack of
	// slabs left behind by a closed LocalCache that still held live
	// objects when it closed.
	orphanNext *Slab

	// mutated only by the owning cache; never touched by another goroutine
	ownerID  atomic.Uint64 // opaque id of the LocalCache that owns (or, for an orphan, last owned) this slab, 0 while free in its group
	freelist uint16
	used     uint16

	// mutated by any goroutine releasing an object allocated by a
	// different cache; CAS-guarded, cache-line separated from the
	// owner-only fields above to avoid false sharing.
	_      [0]byte
	_      [sysalloc.CacheLineSize]byte
	footer footer
}

// footer packs the foreign-free list in the same way as the teacher's
// bounded pool packs turn+value: one atomic word holding both a count and
// the byte offset of the head of the chain, so link and grabList operate as
// a single CAS regardless of how many other goroutines are also freeing into
// the slab concurrently.
type footer struct {
	ptrCount atomic.Uint32 // (count<<16) | offset
}

func (f *footer) link(buf []byte, offset uint16) {
	for {
		old := f.ptrCount.Load()
		writeU16(buf, offset, uint16(old))
		next := ((old & 0xFFFF0000) + 0x10000) | uint32(offset)
		if f.ptrCount.CompareAndSwap(old, next) {
			return
		}
	}
}

// grabList atomically takes the whole foreign-free chain, returning the
// offset of its head and how many objects are on it.
func (f *footer) grabList() (head uint16, count uint16) {
	old := f.ptrCount.Swap(0)
	return uint16(old), uint16(old >> 16)
}

func (f *footer) freeCount() uint16 {
	return uint16(f.ptrCount.Load() >> 16)
}

func readU16(buf []byte, offset uint16) uint16 {
	return uint16(buf[offset]) | uint16(buf[offset+1])<<8
}

func writeU16(buf []byte, offset uint16, v uint16) {
	buf[offset] = byte(v)
	buf[offset+1] = byte(v >> 8)
}

// newSlab carves a fresh slab for objects of the given size and alignment.
// objSize must be at least 2 (room for a freelist link) and objAlign must be
// a power of two.
func newSlab(id uint16, objSize, objAlign uint16) *Slab {
	if objSize < 2 {
		objSize = 2
	}
	count := Size / int(objSize)
	if count > int(noFree) {
		count = int(noFree)
	}
	s := &Slab{
		objSize:  objSize,
		objAlign: objAlign,
		slabID:   id,
	}
	// The buffer must itself be aligned to Size, not just objAlign: the
	// allocator registry recovers a slab from a bare object pointer by
	// masking it down to a Size-aligned base address (see
	// slab/allocator.go's baseAddr), which only works if every slab's
	// buffer actually starts on a Size boundary.
	bufAlign := uintptr(Size)
	if uintptr(objAlign) > bufAlign {
		bufAlign = uintptr(objAlign)
	}
	s.buffer = sysalloc.SlabBuffer(count*int(objSize), bufAlign)
	s.objCount = uint16(count)
	s.initFreelist()
	return s
}

// initFreelist links every cell in the slab into the owner-only freelist in
// address order, mirroring Slab::initFreelist.
func (s *Slab) initFreelist() {
	s.freelist = 0
	s.used = 0
	n := s.objCount
	for i := uint16(0); i < n; i++ {
		off := i * s.objSize
		if i == n-1 {
			writeU16(s.buffer, off, noFree)
		} else {
			writeU16(s.buffer, off, off+s.objSize)
		}
	}
}

// allocObject pops the head of the owner-only freelist. The caller must have
// already verified the freelist is non-empty.
func (s *Slab) allocObject() []byte {
	off := s.freelist
	s.used++
	s.freelist = readU16(s.buffer, off)
	return s.buffer[off : off+s.objSize]
}

// objectsAvailable reports whether allocObject can be called without first
// reclaiming foreign frees.
func (s *Slab) objectsAvailable() bool {
	return s.freelist != noFree
}

// objectsInUse returns the number of cells currently allocated, accounting
// for frees that have arrived on the foreign list but not yet been folded
// into the owner-only count.
func (s *Slab) objectsInUse() uint16 {
	freed := s.footer.freeCount()
	if s.used <= freed {
		return 0
	}
	return s.used - freed
}

// offsetOf returns the byte offset of obj within the slab's buffer. obj must
// be a slice previously returned by allocObject on this slab: since slicing
// a slice preserves capacity to the end of the underlying array, the
// difference between the two caps is exactly the offset at which obj starts.
func (s *Slab) offsetOf(obj []byte) uint16 {
	return uint16(cap(s.buffer) - cap(obj))
}

// releaseObject returns obj to the slab it came from. If the releasing cache
// is the slab's current owner, the object goes straight onto the owner-only
// freelist; otherwise it is linked onto the CAS-guarded foreign-free list
// for the owner to reclaim on its next pass.
func (s *Slab) releaseObject(obj []byte, ownerID uint64) {
	off := s.offsetOf(obj)
	if s.ownerID.Load() == ownerID {
		writeU16(s.buffer, off, s.freelist)
		s.freelist = off
		s.used--
		return
	}
	s.footer.link(s.buffer, off)
}

// reclaimForeignFrees folds the foreign-free chain into the owner-only
// freelist and returns how many objects were reclaimed.
func (s *Slab) reclaimForeignFrees() uint16 {
	head, count := s.footer.grabList()
	if count == 0 {
		return 0
	}
	// Each node's stored link is the offset that was the chain's head
	// before it was pushed (see link), not noFree — only the very first
	// push after an empty footer happens to store the stale previous
	// head, which is itself a real offset (often 0), so there is no
	// sentinel to scan for. count is already known from grabList, so
	// walk exactly count-1 hops from head to reach the tail instead.
	tail := head
	for i := uint16(1); i < count; i++ {
		tail = readU16(s.buffer, tail)
	}
	writeU16(s.buffer, tail, s.freelist)
	s.freelist = head
	s.used -= count
	return count
}

// clearOwner marks the slab as unowned, used when a slab is returned to its
// group's freelist. An adopted orphan is re-stamped by setOwner instead.
func (s *Slab) clearOwner() {
	s.ownerID.Store(0)
}

// setOwner assigns the slab to a cache, identified by its opaque id.
func (s *Slab) setOwner(id uint64) {
	s.ownerID.Store(id)
}

// contention tracks how many times reclaiming or popping a slab's freelist
// had to back off, purely diagnostic like the teacher's collision counter.
var contention atomic.Uint64

func backoffOnce(w *backoff.SpinYieldSleep) {
	contention.Add(1)
	w.Wait()
}
