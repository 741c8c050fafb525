// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package slab is the foundation every other package in this module builds
// on: a concurrent slab allocator in the style of FramepaC-ng's
// Allocator/Slab/SlabGroup trio, adapted to explicit per-goroutine caches in
// place of C++ thread_local storage.
//
// A Slab is a fixed number of equal-sized cells. A group holds GroupSize
// slabs of one object shape and tracks which of them have spare cells
// through a single atomic (index, count) word, the same packing the
// teacher's BoundedPool uses for its ring buffer slots. A pool is one
// Allocator's lock-free queue of groups that currently have spare slabs
// (pools are not shared between Allocators), built on the same Vyukov
// bounded MPMC algorithm as
// (*iobuf.BoundedPool).
//
// Allocation is two-tier: a LocalCache bump-allocates from its own current
// slab with no synchronization at all, falling back to the shared pool only
// when that slab is exhausted. Freeing an object allocated by a different
// cache takes a CAS-guarded "foreign free" path instead of touching the
// owner's freelist directly, so releasing never requires knowing which
// cache, if any, currently owns the slab.
package slab
