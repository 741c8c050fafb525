// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package sysalloc

import "golang.org/x/sys/unix"

// PageSize returns the OS virtual-memory page size, probed once at package
// init via the same syscall path mmap itself uses.
var pageSize = unix.Getpagesize()

func PageSize() int { return pageSize }
