// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ranges

import "sync"

// idealizedParent is the "idealized aligned parent" spec.md §8 property 2
// describes: an effectively unlimited, always-aligned bump allocator with
// no real OS behind it, used to drive LargeBuddyRange in isolation.
type idealizedParent struct {
	mu   sync.Mutex
	next uintptr
}

func newIdealizedParent(start uintptr) *idealizedParent {
	return &idealizedParent{next: start}
}

func (p *idealizedParent) AllocRange(spec SizeSpec) (Block, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	size := spec.Desired
	if size == 0 {
		size = spec.Required
	}
	base := (p.next + size - 1) &^ (size - 1)
	p.next = base + size
	return Block{Base: base, Length: size}, true
}

func (p *idealizedParent) DeallocRange(base, size uintptr, force bool) bool { return true }
func (p *idealizedParent) Flush()                                          {}
func (p *idealizedParent) Aligned() bool                                   { return true }
func (p *idealizedParent) ConcurrencySafe() bool                           { return true }

// refusingParent refuses every non-forced dealloc until Allow is set,
// used to drive LockRange's try-lock path (spec.md §8 S6); its
// ConcurrencySafe reports false, which the StaticRange test relies on.
type refusingParent struct {
	Allow bool
	calls int
}

func (p *refusingParent) AllocRange(spec SizeSpec) (Block, bool) {
	return Block{Base: spec.Required, Length: spec.Required}, true
}
func (p *refusingParent) DeallocRange(base, size uintptr, force bool) bool {
	p.calls++
	if force {
		return true
	}
	return p.Allow
}
func (p *refusingParent) Flush()                {}
func (p *refusingParent) Aligned() bool         { return true }
func (p *refusingParent) ConcurrencySafe() bool { return false }
