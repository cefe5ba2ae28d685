// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package buddy implements the generic buddy allocator of spec.md §4.1:
// a per-size-index forest of ordered sets (two-slot inline cache,
// promoting to an intrusive red-black tree on the third occupant), whose
// tree nodes have no allocation of their own — they live inside the
// pagemap entry of the block they represent (package rbtree over
// package pagemap).
package buddy

import (
	"fmt"

	"github.com/cznic/mathutil"

	"github.com/cznic/allocore/pagemap"
)

// Buddy tracks free, power-of-two-sized, naturally-aligned blocks with
// sizes in [1<<MinSizeBits, 1<<MaxSizeBits). It is not safe for
// concurrent use by itself — callers serialize access (see
// package ranges, LockRange).
type Buddy struct {
	PM          *pagemap.Pagemap
	MinSizeBits uint
	MaxSizeBits uint

	entries         []sizeClassEntry // indexed by log2(size) - MinSizeBits
	emptyAtOrAbove  int              // invariant: entries[i] empty for i >= this
}

// New constructs a Buddy over pm tracking sizes in
// [1<<minSizeBits, 1<<maxSizeBits).
func New(pm *pagemap.Pagemap, minSizeBits, maxSizeBits uint) *Buddy {
	n := int(maxSizeBits - minSizeBits)
	return &Buddy{
		PM:             pm,
		MinSizeBits:    minSizeBits,
		MaxSizeBits:    maxSizeBits,
		entries:        make([]sizeClassEntry, n),
		emptyAtOrAbove: 0,
	}
}

func (b *Buddy) indexOf(size uintptr) int {
	// size is a power of two; mathutil.BitLen(size-1) == log2(size),
	// the same bit-length trick cznic-memory/memory.go uses to convert
	// a rounded-up request size into a size-class shift.
	return mathutil.BitLen(int(size)-1) - int(b.MinSizeBits)
}

func (b *Buddy) sizeOf(index int) uintptr {
	return uintptr(1) << (uint(index) + b.MinSizeBits)
}

func isPow2(n uintptr) bool { return n != 0 && n&(n-1) == 0 }

// canConsolidate inspects the pagemap entry of the higher-addressed
// half of a prospective addr/buddy(addr) merge and reports whether the
// two halves are known to lie in one originally-registered OS region
// (spec.md §4.1, §3 invariants).
func (b *Buddy) canConsolidate(addr uintptr, size uintptr) bool {
	buddyAddr := addr ^ size
	higher := addr
	if buddyAddr > higher {
		higher = buddyAddr
	}
	return !b.PM.GetMetaentryMut(higher).IsBoundary()
}

// AddBlock inserts a free block of size at addr, consolidating with its
// buddy as many times as possible. If consolidation would produce a
// block of size 1<<MaxSizeBits, that block is not inserted; instead its
// base address is returned with overflow=true, for the caller (package
// ranges, LargeBuddyRange) to push further up the pipeline.
func (b *Buddy) AddBlock(addr, size uintptr) (overflowAddr uintptr, overflow bool) {
	if !isPow2(size) {
		panic(fmt.Sprintf("buddy: size %#x is not a power of two", size))
	}
	minSize := uintptr(1) << b.MinSizeBits
	maxSize := uintptr(1) << b.MaxSizeBits
	if size < minSize || size >= maxSize {
		panic(fmt.Sprintf("buddy: size %#x out of range [%#x, %#x)", size, minSize, maxSize))
	}
	if addr%size != 0 {
		panic(fmt.Sprintf("buddy: addr %#x is not aligned to size %#x", addr, size))
	}

	for {
		idx := b.indexOf(size)
		buddyAddr := addr ^ size
		if !b.entries[idx].contains(buddyAddr) || !b.canConsolidate(addr, size) {
			break
		}
		b.entries[idx].remove(buddyAddr)
		addr &^= size // align down to the merged block's base
		size <<= 1
		if size == maxSize {
			return addr, true
		}
	}

	idx := b.indexOf(size)
	b.entries[idx].insert(b.PM, addr)
	if idx >= b.emptyAtOrAbove {
		b.emptyAtOrAbove = idx + 1
	}
	return 0, false
}

// RemoveBlock removes and returns a block of exactly requestSize,
// splitting a larger block if no exact match is free. It returns
// ok=false if no block of requestSize or larger is available.
func (b *Buddy) RemoveBlock(requestSize uintptr) (addr uintptr, ok bool) {
	if !isPow2(requestSize) {
		panic(fmt.Sprintf("buddy: size %#x is not a power of two", requestSize))
	}

	startIdx := b.indexOf(requestSize)
	foundIdx := -1
	for i := startIdx; i < b.emptyAtOrAbove; i++ {
		if !b.entries[i].empty() {
			foundIdx = i
			break
		}
	}
	if foundIdx == -1 {
		return 0, false
	}

	block, popped := b.entries[foundIdx].popAny()
	if !popped {
		return 0, false // defensive; emptyAtOrAbove bookkeeping guarantees this won't happen
	}
	b.shrinkEmptyAtOrAbove(foundIdx)

	curSize := b.sizeOf(foundIdx)
	for curSize > requestSize {
		curSize >>= 1
		upperHalf := block + curSize
		idx := b.indexOf(curSize)
		// The upper half is known to have no buddy present (it was just
		// carved out of a larger free block), so no consolidation
		// attempt is made — spec.md §4.1.
		b.entries[idx].insert(b.PM, upperHalf)
		if idx >= b.emptyAtOrAbove {
			b.emptyAtOrAbove = idx + 1
		}
	}
	return block, true
}

func (b *Buddy) shrinkEmptyAtOrAbove(poppedIdx int) {
	if poppedIdx != b.emptyAtOrAbove-1 {
		return
	}
	for b.emptyAtOrAbove > 0 && b.entries[b.emptyAtOrAbove-1].empty() {
		b.emptyAtOrAbove--
	}
}

// ContainsBytes sums the sizes of every block currently held, for the
// requested_total == provided_total + contains_bytes invariant of
// spec.md §3 and §8 property 2.
func (b *Buddy) ContainsBytes() uintptr {
	var total uintptr
	for i := 0; i < b.emptyAtOrAbove; i++ {
		e := &b.entries[i]
		size := b.sizeOf(i)
		if e.treeActive {
			total += size * uintptr(e.treeCount)
		} else {
			total += size * uintptr(e.nslots)
		}
	}
	return total
}

// Empty reports whether no blocks of any size are held.
func (b *Buddy) Empty() bool { return b.emptyAtOrAbove == 0 }

// LargestSize returns the size of the largest non-empty size class, or
// 0 if the buddy is empty.
func (b *Buddy) LargestSize() uintptr {
	for i := b.emptyAtOrAbove - 1; i >= 0; i-- {
		if !b.entries[i].empty() {
			return b.sizeOf(i)
		}
	}
	return 0
}
