// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ranges

import "sync"

// StaticRange adapts a process-wide singleton instance of a
// concurrency-safe range P so many LocalCache/slab instances can share
// one backend pipeline without each owning a copy (spec.md §9's "global
// mutable state... the pagemap, the global pool... are process-wide
// singletons", realized here for the range pipeline itself). Init must
// be called exactly once, before any AllocRange/DeallocRange call; later
// Init calls are no-ops, matching "never reinitialize".
type StaticRange[P Range] struct {
	once sync.Once
	ptr  P
}

// Init installs p as the shared instance. p.ConcurrencySafe() must be
// true; StaticRange panics otherwise, since an unsynchronized range
// shared across callers would silently corrupt its own state.
func (r *StaticRange[P]) Init(p P) {
	r.once.Do(func() {
		if !p.ConcurrencySafe() {
			panic("ranges: StaticRange requires a concurrency-safe parent")
		}
		r.ptr = p
	})
}

func (r *StaticRange[P]) AllocRange(spec SizeSpec) (Block, bool) { return r.ptr.AllocRange(spec) }
func (r *StaticRange[P]) DeallocRange(base, size uintptr, force bool) bool {
	return r.ptr.DeallocRange(base, size, force)
}
func (r *StaticRange[P]) Flush()                  { r.ptr.Flush() }
func (r *StaticRange[P]) Aligned() bool           { return r.ptr.Aligned() }
func (r *StaticRange[P]) ConcurrencySafe() bool   { return true }

// IndirectRange holds a shared parent range injected at construction
// rather than via a package-level global, so the same range stack shape
// can be exercised multiple times in one process — e.g. once per
// property-test case, each with its own fresh pipeline, alongside the
// single production instance that uses StaticRange (spec.md §4.8).
type IndirectRange[P Range] struct {
	Shared *P
}

// NewIndirectRange constructs an IndirectRange sharing the range
// pointed to by shared. shared must already satisfy ConcurrencySafe.
func NewIndirectRange[P Range](shared *P) IndirectRange[P] {
	if !(*shared).ConcurrencySafe() {
		panic("ranges: IndirectRange requires a concurrency-safe parent")
	}
	return IndirectRange[P]{Shared: shared}
}

func (r IndirectRange[P]) AllocRange(spec SizeSpec) (Block, bool) { return (*r.Shared).AllocRange(spec) }
func (r IndirectRange[P]) DeallocRange(base, size uintptr, force bool) bool {
	return (*r.Shared).DeallocRange(base, size, force)
}
func (r IndirectRange[P]) Flush()                { (*r.Shared).Flush() }
func (r IndirectRange[P]) Aligned() bool         { return (*r.Shared).Aligned() }
func (r IndirectRange[P]) ConcurrencySafe() bool { return true }
