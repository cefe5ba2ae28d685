// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sizeclass provides the small, concrete sizeclass table that
// spec.md treats as an external collaborator: it specifies only that
// such a table maps byte sizes to rounded class indices, not its exact
// shape. This is a minimal, geometric-spacing realization (modeled on
// snmalloc's SIZECLASS_REP, original_source/src/mem/sizeclasstable.h
// lineage — see original_source/_INDEX.md) sufficient to drive
// package slab and package localcache end to end in tests. It is
// deliberately not NUMA-aware and carries no per-platform tuning.
package sizeclass

import "github.com/cznic/mathutil"

// NumSmallSizeclasses is the number of small-object size classes this
// table realizes.
const NumSmallSizeclasses = 32

// minAlloc is the smallest object size handed out by any sizeclass.
const minAlloc = 16

// sizes is filled by init with a geometric progression: each group of 4
// consecutive classes doubles the previous group's size, the same
// coarse "geometric spacing" snmalloc's real table uses, simplified to
// a single progression rather than snmalloc's multi-table scheme.
var sizes [NumSmallSizeclasses]uintptr

func init() {
	size := uintptr(minAlloc)
	for i := 0; i < NumSmallSizeclasses; i++ {
		sizes[i] = size
		if (i+1)%4 == 0 {
			size *= 2
		}
	}
}

// Size returns the object size sizeclass class rounds up to.
func Size(class int) uintptr { return sizes[class] }

// Of returns the smallest sizeclass whose Size is >= requested, and
// whether requested fits within this table at all (requests larger than
// the largest small sizeclass are a slab/large-object concern outside
// this table's scope).
func Of(requested uintptr) (class int, ok bool) {
	if requested == 0 {
		requested = 1
	}
	if requested > sizes[NumSmallSizeclasses-1] {
		return 0, false
	}
	// Binary search would work equally well; NumSmallSizeclasses is
	// small enough that a plain linear scan reads more plainly here.
	for i, s := range sizes {
		if s >= requested {
			return i, true
		}
	}
	return 0, false
}

// log2RoundUp is a mathutil.BitLen-based size-to-log2 rounding helper,
// the same computation cznic-memory/memory.go performs when picking a
// free list for a request. Nothing in this module calls it: Of uses a
// linear scan, and package buddy calls mathutil.BitLen directly.
func log2RoundUp(size uintptr) uint {
	if size <= 1 {
		return 0
	}
	return uint(mathutil.BitLen(int(size) - 1))
}
