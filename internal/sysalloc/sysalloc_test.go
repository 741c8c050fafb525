// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sysalloc_test

import (
	"testing"
	"unsafe"

	"code.hybscloud.com/substrate/internal/sysalloc"
)

func TestAlignedSatisfiesAlignment(t *testing.T) {
	for _, align := range []uintptr{8, 16, 64, 4096} {
		buf := sysalloc.Aligned(100, align)
		if len(buf) != 100 {
			t.Fatalf("align %d: len = %d, want 100", align, len(buf))
		}
		addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
		if addr%align != 0 {
			t.Fatalf("align %d: address %#x not aligned", align, addr)
		}
	}
}

func TestPageSizeIsPlausible(t *testing.T) {
	ps := sysalloc.PageSize()
	if ps < 512 {
		t.Fatalf("PageSize() = %d, implausibly small", ps)
	}
}

func TestSlabBufferSatisfiesSizeAndAlignment(t *testing.T) {
	ps := sysalloc.PageSize()
	sizes := []int{16, 256, ps, ps * 4}
	for _, size := range sizes {
		buf := sysalloc.SlabBuffer(size, 64)
		if len(buf) != size {
			t.Fatalf("size %d: len = %d, want %d", size, len(buf), size)
		}
		addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
		if addr%64 != 0 {
			t.Fatalf("size %d: address %#x not 64-aligned", size, addr)
		}
	}
}
