// Copyright 2011 Evan Shaw. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE-MMAP-GO file.
//
// Modifications (c) 2024 The Allocore Authors.

//go:build windows

package pal

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// Windows is the PAL backend for Windows, generalizing cznic-memory's
// mmap_windows.go (CreateFileMapping + MapViewOfFile for whole, already
// committed regions) to the reserve/commit/decommit split VirtualAlloc
// supports natively, which the original file had no need for.
type Windows struct {
	pageSize uintptr
}

// NewWindows constructs a Windows PAL backend.
func NewWindows() *Windows {
	var si windows.SystemInfo
	windows.GetSystemInfo(&si)
	return &Windows{pageSize: uintptr(si.PageSize)}
}

func (w *Windows) PageSize() uintptr         { return w.pageSize }
func (w *Windows) MinimumAllocSize() uintptr { return w.pageSize }

func (w *Windows) Reserve(size uintptr) (uintptr, error) {
	addr, err := windows.VirtualAlloc(0, size, windows.MEM_RESERVE, windows.PAGE_NOACCESS)
	if err != nil {
		return 0, fmt.Errorf("pal: reserve %#x bytes: %w", size, err)
	}
	return addr, nil
}

func (w *Windows) ReserveAligned(size uintptr) (uintptr, error) {
	total := size * 2
	base, err := w.Reserve(total)
	if err != nil {
		return 0, err
	}
	if err := windows.VirtualFree(base, 0, windows.MEM_RELEASE); err != nil {
		return 0, fmt.Errorf("pal: release probe region: %w", err)
	}

	aligned := (base + size - 1) &^ (size - 1)
	addr, err := windows.VirtualAlloc(aligned, size, windows.MEM_RESERVE, windows.PAGE_NOACCESS)
	if err != nil {
		// Another thread raced us for the probed address; caller can
		// retry with a fresh, larger probe.
		return 0, fmt.Errorf("pal: reserve aligned %#x at %#x: %w", size, aligned, err)
	}
	return addr, nil
}

func (w *Windows) NotifyUsing(base, size uintptr) error {
	if _, err := windows.VirtualAlloc(base, size, windows.MEM_COMMIT, windows.PAGE_READWRITE); err != nil {
		return fmt.Errorf("pal: commit %#x..%#x: %w", base, base+size, err)
	}
	return nil
}

// Release returns the region starting at base to the OS. Unlike Unix's
// munmap, VirtualFree(MEM_RELEASE) only accepts the base address of an
// entire reservation and an explicit size of 0 — partial release of a
// VirtualAlloc reservation is not supported by the platform, so size is
// accepted for interface symmetry but ignored.
func (w *Windows) Release(base, size uintptr) error {
	_ = size
	if err := windows.VirtualFree(base, 0, windows.MEM_RELEASE); err != nil {
		return fmt.Errorf("pal: release %#x: %w", base, err)
	}
	return nil
}

func (w *Windows) NotifyNotUsing(base, size uintptr) error {
	if err := windows.VirtualFree(base, size, windows.MEM_DECOMMIT); err != nil {
		return fmt.Errorf("pal: decommit %#x..%#x: %w", base, base+size, err)
	}
	return nil
}

func (w *Windows) Zero(base, size uintptr) {
	b := sliceOf(base, size)
	for i := range b {
		b[i] = 0
	}
}

func (w *Windows) Error(msg string) {
	fmt.Fprintf(os.Stderr, "allocore: fatal: %s\n", msg)
}

func (w *Windows) Pause() {
	windows.SwitchToThread()
}
