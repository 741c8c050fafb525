// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package slab

import (
	"sync/atomic"

	"code.hybscloud.com/substrate/internal/backoff"
)

// group holds GroupSize slabs of a single object shape (size and alignment).
// Unlike the teacher's SlabGroup, which held untyped raw memory shared by
// every allocator in the process, groups here are per-shape: allocators for
// differently sized objects draw from different group pools. This trades
// the C++ design's single global arena for type-safe Go slices without
// unsafe pointer-to-slab masking, while keeping the same free-slab
// bookkeeping and MPMC handoff between groups.
type group struct {
	slabs    []*Slab
	freeInfo atomic.Uint32 // packed (numfree<<16)|index, index==noGroupFree when list empty
}

const noGroupFree = uint16(0xFFFF)

func newGroup(objSize, objAlign uint16) *group {
	g := &group{slabs: make([]*Slab, GroupSize)}
	next := noGroupFree
	for i := GroupSize - 1; i >= 0; i-- {
		s := newSlab(uint16(i), objSize, objAlign)
		s.owningGroup = g
		g.slabs[i] = s
		s.nextFreeID = next
		next = uint16(i)
	}
	g.freeInfo.Store(pack(next, GroupSize))
	return g
}

func pack(index, numfree uint16) uint32 {
	return uint32(numfree)<<16 | uint32(index)
}

func unpack(v uint32) (index, numfree uint16) {
	return uint16(v), uint16(v >> 16)
}

// popFreeSlab removes one slab from this group's own freelist. It assumes
// the caller already knows the group has at least one free slab; if a racing
// goroutine beats it to the last one, it returns nil.
func (g *group) popFreeSlab() *Slab {
	for {
		old := g.freeInfo.Load()
		index, numfree := unpack(old)
		if index == noGroupFree {
			return nil
		}
		s := g.slabs[index]
		next := pack(s.nextFreeID, numfree-1)
		if g.freeInfo.CompareAndSwap(old, next) {
			return s
		}
	}
}

// pushFreeSlab returns a slab to this group's freelist, reporting whether
// the group was empty of free slabs beforehand (so the caller can re-link
// it into the pool-wide queue of groups-with-free-slabs).
func (g *group) pushFreeSlab(s *Slab) (wasEmpty bool) {
	for {
		old := g.freeInfo.Load()
		index, numfree := unpack(old)
		s.nextFreeID = index
		next := pack(s.slabID, numfree+1)
		if g.freeInfo.CompareAndSwap(old, next) {
			return numfree == 0
		}
	}
}

func (g *group) numFree() uint16 {
	_, numfree := unpack(g.freeInfo.Load())
	return numfree
}

// pool is one Allocator's collection of groups that currently have at
// least one free slab, implemented as the Vyukov-style
// bounded MPMC queue from the teacher's BoundedPool, generalized from
// fixed-size value slots to group pointers.
type pool struct {
	objSize  uint16
	objAlign uint16

	entries []poolEntry
	mask    uint64
	head    atomic.Uint64
	tail    atomic.Uint64
}

type poolEntry struct {
	seq atomic.Uint64
	grp *group
}

// collSize is the capacity of the pool-wide free-group queue; it bounds how
// many distinct groups (GroupSize*Size bytes each) can be outstanding at
// once before append starts returning false, not the number of objects.
const collSize = 1 << 14

func newPool(objSize, objAlign uint16) *pool {
	p := &pool{
		objSize:  objSize,
		objAlign: objAlign,
		entries:  make([]poolEntry, collSize),
		mask:     collSize - 1,
	}
	for i := range p.entries {
		p.entries[i].seq.Store(uint64(i))
	}
	return p
}

func (p *pool) append(g *group) bool {
	var w backoff.SpinYieldSleep
	for {
		pos := p.head.Load()
		e := &p.entries[pos&p.mask]
		seq := e.seq.Load()
		if seq == pos {
			if p.head.CompareAndSwap(pos, pos+1) {
				e.grp = g
				e.seq.Store(pos + 1)
				return true
			}
		} else if seq < pos {
			return false // queue full
		}
		backoffOnce(&w)
	}
}

func (p *pool) pop() *group {
	var w backoff.SpinYieldSleep
	for {
		pos := p.tail.Load()
		e := &p.entries[pos&p.mask]
		seq := e.seq.Load()
		if seq == pos+1 {
			if p.tail.CompareAndSwap(pos, pos+1) {
				g := e.grp
				e.seq.Store(pos + p.mask + 1)
				return g
			}
		} else if seq < pos+1 {
			return nil // queue empty
		}
		backoffOnce(&w)
	}
}

// allocateSlab returns a slab with at least one free cell, creating a new
// group if every known group is fully allocated.
func (p *pool) allocateSlab() *Slab {
	if g := p.pop(); g != nil {
		if g.numFree() == GroupSize {
			// fully-free group: if another group is queued, take that
			// one instead and let this one go back to the GC rather
			// than hoard an empty group
			if g2 := p.pop(); g2 != nil {
				g = g2
			}
		}
		// a racing releaseSlab may have queued g a second time, so
		// another allocation can already have taken its last free
		// slab; popFreeSlab then returns nil and we try again
		s := g.popFreeSlab()
		if s == nil {
			return p.allocateSlab()
		}
		if g.numFree() > 0 {
			p.append(g)
		}
		return s
	}
	g := newGroup(p.objSize, p.objAlign)
	s := g.popFreeSlab()
	p.append(g)
	return s
}

// releaseSlab returns a fully-drained slab to its group's freelist, and
// re-queues the group if it had none free before.
func (p *pool) releaseSlab(s *Slab) {
	s.clearOwner()
	g := s.owningGroup
	if g.pushFreeSlab(s) {
		p.append(g)
	}
}
