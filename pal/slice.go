// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pal

import "unsafe"

// sliceOf views the range [base, base+size) as a byte slice, the same
// unsafe.Pointer arithmetic cznic-memory/memory.go uses to turn a raw
// mmap'd region into a []byte.
func sliceOf(base, size uintptr) []byte {
	if size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(base)), int(size))
}

// dataPtr returns the address of b's backing array, or 0 for an empty
// slice.
func dataPtr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
