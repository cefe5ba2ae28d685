// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ranges

import "sync/atomic"

// StatsRange accumulates atomic counters describing traffic through a
// range layer, readable by diagnostics without taking any lock
// (spec.md §4.9, expanded). It forwards every call unchanged.
type StatsRange[P Range] struct {
	Parent P

	requested atomic.Uint64
	provided  atomic.Uint64
	failures  atomic.Uint64
	deallocs  atomic.Uint64
}

func (r *StatsRange[P]) AllocRange(spec SizeSpec) (Block, bool) {
	r.requested.Add(uint64(spec.Required))
	blk, ok := r.Parent.AllocRange(spec)
	if ok {
		r.provided.Add(uint64(blk.Length))
	} else {
		r.failures.Add(1)
	}
	return blk, ok
}

func (r *StatsRange[P]) DeallocRange(base, size uintptr, force bool) bool {
	ok := r.Parent.DeallocRange(base, size, force)
	if ok {
		r.deallocs.Add(uint64(size))
	}
	return ok
}

func (r *StatsRange[P]) Flush() { r.Parent.Flush() }

func (r *StatsRange[P]) Aligned() bool         { return r.Parent.Aligned() }
func (r *StatsRange[P]) ConcurrencySafe() bool { return r.Parent.ConcurrencySafe() }

// Requested returns the cumulative bytes requested via AllocRange.
func (r *StatsRange[P]) Requested() uint64 { return r.requested.Load() }

// Provided returns the cumulative bytes actually handed back.
func (r *StatsRange[P]) Provided() uint64 { return r.provided.Load() }

// Failures returns the count of AllocRange calls that returned ok=false.
func (r *StatsRange[P]) Failures() uint64 { return r.failures.Load() }

// Deallocs returns the cumulative bytes accepted by DeallocRange.
func (r *StatsRange[P]) Deallocs() uint64 { return r.deallocs.Load() }
