// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !unix

package sysalloc

// PageSize returns a conservative default page size on platforms where the
// unix mmap/getpagesize path is unavailable.
func PageSize() int { return 4096 }
