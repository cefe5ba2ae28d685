// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocator

import (
	"sync"
	"unsafe"
)

// fakePAL backs Reserve/ReserveAligned with real, GC-kept-alive Go byte
// slices instead of OS mmap calls, so tests exercise the full
// RawStore/freelist signing path over genuinely dereferenceable memory
// without depending on the host OS's mmap behavior. Go's garbage
// collector does not move heap objects, so a slice's address is stable
// for as long as something holds a reference to it — which regions
// does.
type fakePAL struct {
	mu       sync.Mutex
	regions  map[uintptr][]byte
	pageSize uintptr
}

func newFakePAL() *fakePAL {
	return &fakePAL{regions: make(map[uintptr][]byte), pageSize: 4096}
}

func (p *fakePAL) Reserve(size uintptr) (uintptr, error) {
	buf := make([]byte, size)
	base := uintptr(unsafe.Pointer(&buf[0]))
	p.mu.Lock()
	p.regions[base] = buf
	p.mu.Unlock()
	return base, nil
}

func (p *fakePAL) ReserveAligned(size uintptr) (uintptr, error) {
	buf := make([]byte, size*2)
	raw := uintptr(unsafe.Pointer(&buf[0]))
	aligned := (raw + size - 1) &^ (size - 1)
	p.mu.Lock()
	p.regions[aligned] = buf
	p.mu.Unlock()
	return aligned, nil
}

func (p *fakePAL) NotifyUsing(base, size uintptr) error    { return nil }
func (p *fakePAL) NotifyNotUsing(base, size uintptr) error { return nil }

func (p *fakePAL) Release(base, size uintptr) error {
	p.mu.Lock()
	delete(p.regions, base)
	p.mu.Unlock()
	return nil
}

func (p *fakePAL) Zero(base, size uintptr) {
	b := unsafe.Slice((*byte)(unsafe.Pointer(base)), size)
	for i := range b {
		b[i] = 0
	}
}

func (p *fakePAL) PageSize() uintptr         { return p.pageSize }
func (p *fakePAL) MinimumAllocSize() uintptr { return p.pageSize }
func (p *fakePAL) Error(msg string)          {}
func (p *fakePAL) Pause()                    {}
