// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sysalloc provides naturally-aligned memory allocation helpers used
// by the slab allocator to obtain power-of-two aligned regions without
// depending on the OS allocator's default alignment.
package sysalloc

import (
	"unsafe"

	"code.hybscloud.com/substrate/internal/cpuinfo"
)

// CacheLineSize is the CPU L1 cache line size for the current architecture.
const CacheLineSize = cpuinfo.CacheLineSize

// Aligned returns a byte slice of exactly size bytes whose starting address
// is a multiple of align. align must be a power of two.
//
// The returned slice shares underlying memory with a larger allocation; do
// not assume len(result) == cap(result).
func Aligned(size int, align uintptr) []byte {
	p := make([]byte, uintptr(size)+align-1)
	base := unsafe.Pointer(unsafe.SliceData(p))
	offset := ((uintptr(base)+align-1)/align)*align - uintptr(base)
	return unsafe.Slice((*byte)(unsafe.Add(base, offset)), size)
}

// CacheLineAligned returns a byte slice of size bytes aligned to the CPU
// cache line size, preventing false sharing in concurrent data structures
// such as the slab footer.
func CacheLineAligned(size int) []byte {
	return Aligned(size, uintptr(CacheLineSize))
}

// AlignedPtr is the analogue of Aligned for a region that will be addressed
// by raw pointer arithmetic (slab groups index slabs by pointer masking, so
// the backing array must never move or be resliced).
func AlignedPtr(size int, align uintptr) (base unsafe.Pointer, full []byte) {
	full = Aligned(size, align)
	return unsafe.Pointer(unsafe.SliceData(full)), full
}

// SlabBuffer returns a size-byte region aligned to align, preferring a raw
// anonymous OS mapping over the make()-backed Aligned path when the request
// is at least a page: slab groups hand these buffers out one per slab and
// never resize them, so a page-granular mmap avoids tying up the Go
// allocator's size classes with long-lived, GC-invisible-content blocks.
// Smaller requests (sub-page slabs, cache-line-sized footers) still go
// through Aligned. Callers needing an alignment coarser than a page (slab
// buffers are aligned to their own Size so a bare pointer can be masked back
// to its owning slab) still get it: the mmap path over-maps and trims to the
// requested alignment rather than only handling alignments a page already
// satisfies.
func SlabBuffer(size int, align uintptr) []byte {
	if size >= PageSize() {
		if buf, ok := alignedMmap(size, align); ok {
			return buf
		}
	}
	return Aligned(size, align)
}

// alignedMmap returns a size-byte, align-aligned anonymous mapping. When
// align already divides the page size, the raw mapping (always page-aligned)
// satisfies it directly; for coarser alignments it over-maps by align-1
// extra bytes and slices down to the first aligned offset, the same
// over-allocate-then-trim trick Aligned uses for make()-backed buffers.
func alignedMmap(size int, align uintptr) ([]byte, bool) {
	if align <= uintptr(PageSize()) {
		return mmapAnon(size)
	}
	full, ok := mmapAnon(size + int(align) - 1)
	if !ok {
		return nil, false
	}
	base := unsafe.Pointer(unsafe.SliceData(full))
	offset := ((uintptr(base)+align-1)/align)*align - uintptr(base)
	return unsafe.Slice((*byte)(unsafe.Add(base, offset)), size), true
}
