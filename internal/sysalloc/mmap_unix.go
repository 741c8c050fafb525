// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package sysalloc

import "golang.org/x/sys/unix"

// mmapAnon carves size bytes directly from the OS via an anonymous private
// mapping. The result is always page-aligned; coarser alignments (slab
// buffers ask for their own 64KiB Size) are obtained by alignedMmap, which
// over-maps and trims. The pages never move, which slab groups rely on for
// their pointer-masking index arithmetic.
func mmapAnon(size int) ([]byte, bool) {
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, false
	}
	return buf, true
}
