// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pal implements the platform abstraction layer: the only part of
// the allocator core that talks to the operating system. Every other
// package in this module reaches the OS exclusively through the PAL
// interface defined here.
package pal

// PAL is the contract every platform backend must satisfy. It is the leaf
// collaborator of the range pipeline (see package ranges): PalRange calls
// Reserve/ReserveAligned, CommitRange calls NotifyUsing/NotifyNotUsing.
type PAL interface {
	// Reserve asks the OS for size bytes of address space, uncommitted.
	// It returns 0 on failure; callers must not treat 0 as a valid base.
	Reserve(size uintptr) (uintptr, error)

	// ReserveAligned is like Reserve but the returned base is guaranteed
	// aligned to size, which must be a power of two. If the platform
	// cannot do this natively, it over-reserves and trims.
	ReserveAligned(size uintptr) (uintptr, error)

	// NotifyUsing tells the OS the range [base, base+size) will be
	// touched soon (commit). It must be idempotent: committing an
	// already-committed range is not an error.
	NotifyUsing(base, size uintptr) error

	// NotifyNotUsing tells the OS the range [base, base+size) will not be
	// touched again soon (decommit). Like NotifyUsing, idempotent.
	NotifyNotUsing(base, size uintptr) error

	// Release returns [base, base+size) to the OS entirely, invalidating
	// the address range. Used only by the bottom of the range pipeline
	// (package ranges, PalRange) when a fully-consolidated block is
	// returned past the backend; the core does not call this on every
	// free (see spec's Non-goals: no synchronous return-to-OS per free).
	Release(base, size uintptr) error

	// Zero fills [base, base+size) with zero bytes.
	Zero(base, size uintptr)

	// PageSize returns the platform's native page size.
	PageSize() uintptr

	// MinimumAllocSize returns the minimum granularity Reserve can hand
	// back; chunk sizes in package buddy must be multiples of this.
	MinimumAllocSize() uintptr

	// Error reports a fatal, unrecoverable condition (heap corruption,
	// pagemap exhaustion) and does not return control to the caller in
	// the sense that the caller must treat it as terminal.
	Error(msg string)

	// Pause yields the CPU briefly; used by LockRange's spin loop.
	Pause()
}

// RoundUpToPage rounds size up to the next multiple of pageSize, which
// must be a power of two.
func RoundUpToPage(size, pageSize uintptr) uintptr {
	return (size + pageSize - 1) &^ (pageSize - 1)
}

// Abort reports msg via the PAL and then panics with msg. It is the
// realization of spec.md §7's "call PAL::error with a diagnostic and
// abort" for HeapCorruption: there is deliberately no recovery path,
// because the invariant that tells a valid pointer from a forged one has
// already been violated by the time this is called.
func Abort(p PAL, msg string) {
	p.Error(msg)
	panic(msg)
}
