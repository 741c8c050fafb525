// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !unix

package sysalloc

// mmapAnon has no raw-mmap path outside unix; callers fall back to Aligned.
func mmapAnon(size int) ([]byte, bool) { return nil, false }
