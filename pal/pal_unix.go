// Copyright 2011 Evan Shaw. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE-MMAP-GO file.
//
// Modifications (c) 2024 The Allocore Authors.

//go:build darwin || dragonfly || freebsd || linux || openbsd || netbsd || solaris

package pal

import (
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

// Unix is the PAL backend for POSIX-ish platforms. It reserves address
// space with a PROT_NONE anonymous mmap (so the OS commits no physical
// pages up front), then commits/decommits sub-ranges with mprotect and
// madvise, generalizing cznic-memory's mmap_unix.go (which only ever
// mapped and unmapped whole, already-committed regions).
type Unix struct {
	pageSize uintptr
}

// NewUnix constructs a Unix PAL backend.
func NewUnix() *Unix {
	return &Unix{pageSize: uintptr(os.Getpagesize())}
}

func (u *Unix) PageSize() uintptr         { return u.pageSize }
func (u *Unix) MinimumAllocSize() uintptr { return u.pageSize }

func (u *Unix) Reserve(size uintptr) (uintptr, error) {
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_NONE, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return 0, fmt.Errorf("pal: reserve %#x bytes: %w", size, err)
	}
	return uintptr(dataPtr(b)), nil
}

func (u *Unix) ReserveAligned(size uintptr) (uintptr, error) {
	// Over-reserve by one extra alignment unit, then trim the unaligned
	// head and tail. This is the standard portable technique used when
	// the platform has no native aligned-reservation call.
	total := size * 2
	base, err := u.Reserve(total)
	if err != nil {
		return 0, err
	}

	aligned := (base + size - 1) &^ (size - 1)
	if head := aligned - base; head != 0 {
		if err := u.release(base, head); err != nil {
			return 0, err
		}
	}
	if tail := (base + total) - (aligned + size); tail != 0 {
		if err := u.release(aligned+size, tail); err != nil {
			return 0, err
		}
	}
	return aligned, nil
}

func (u *Unix) release(base, size uintptr) error {
	if size == 0 {
		return nil
	}
	b := sliceOf(base, size)
	return unix.Munmap(b)
}

// Release is the exported form of release, used by package ranges to
// return a fully-consolidated block to the OS.
func (u *Unix) Release(base, size uintptr) error {
	if err := u.release(base, size); err != nil {
		return fmt.Errorf("pal: release %#x..%#x: %w", base, base+size, err)
	}
	return nil
}

func (u *Unix) NotifyUsing(base, size uintptr) error {
	b := sliceOf(base, size)
	if err := unix.Mprotect(b, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return fmt.Errorf("pal: commit %#x..%#x: %w", base, base+size, err)
	}
	return nil
}

func (u *Unix) NotifyNotUsing(base, size uintptr) error {
	b := sliceOf(base, size)
	// MADV_DONTNEED discards the pages' contents without unmapping them;
	// PROT_NONE additionally prevents accidental reuse before the next
	// NotifyUsing re-commits.
	if err := unix.Madvise(b, unix.MADV_DONTNEED); err != nil {
		return fmt.Errorf("pal: decommit advise %#x..%#x: %w", base, base+size, err)
	}
	if err := unix.Mprotect(b, unix.PROT_NONE); err != nil {
		return fmt.Errorf("pal: decommit protect %#x..%#x: %w", base, base+size, err)
	}
	return nil
}

func (u *Unix) Zero(base, size uintptr) {
	b := sliceOf(base, size)
	for i := range b {
		b[i] = 0
	}
}

func (u *Unix) Error(msg string) {
	fmt.Fprintf(os.Stderr, "allocore: fatal: %s\n", msg)
}

func (u *Unix) Pause() {
	runtime.Gosched()
}
