// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pool

import (
	"runtime"
	"sync/atomic"
)

// PoolState[T,E] is the process-wide singleton state for one pooled
// type, parameterized by the accessor set E (satisfied by embedding
// Node[T]). It never returns objects to the OS: released instances go
// back on the stack for reuse, and "all instances ever allocated" stays
// on the list forever, for diagnostics (spec.md §4.5, §9 "Non-cachable
// iterator patterns").
type PoolState[T any, E poolable[T]] struct {
	stack    stack[T, E]
	listLock atomic.Bool
	list     *T
}

// New constructs an empty PoolState.
func New[T any, E poolable[T]]() *PoolState[T, E] {
	return &PoolState[T, E]{}
}

// Acquire pops a released instance off the stack if one is available;
// otherwise it calls newT to allocate a fresh one, links it into the
// "all instances" list under the list's spin lock, and marks it in use
// either way. newT must never return nil — a failing backend allocation
// is the caller's fatal condition to report (spec.md §7, OutOfAddressSpace),
// not something Acquire retries.
func (p *PoolState[T, E]) Acquire(newT func() *T) *T {
	if v := p.stack.pop(); v != nil {
		E(v).SetInUse()
		return v
	}

	v := newT()
	if v == nil {
		panic("pool: backend returned a nil instance")
	}

	p.lockList()
	E(v).SetListNext(p.list)
	p.list = v
	p.unlockList()

	E(v).SetInUse()
	return v
}

// Release returns p to the pool for reuse. The instance's destructor
// (its Go finalizer/cleanup, if any) is deliberately NOT run: on the
// next Acquire it is handed back exactly as released, uninitialized by
// this layer (spec.md §4.5).
func (p *PoolState[T, E]) Release(v *T) {
	E(v).ResetInUse()
	p.stack.push(v)
}

// Extract drains the stack and returns it as a linked list (via Next),
// or continues iterating a list previously returned by Extract when v
// is non-nil. Do not Release objects obtained this way; use Restore.
func (p *PoolState[T, E]) Extract(v *T) *T {
	if v == nil {
		return p.stack.popAll()
	}
	return E(v).Next()
}

// Restore pushes a contiguous first->...->last chain (as returned by
// Extract) back onto the stack.
func (p *PoolState[T, E]) Restore(first, last *T) {
	p.stack.pushList(first, last)
}

// Iterate walks every instance ever acquired from this pool, live or
// released. It is explicitly NOT thread-safe: callable only when no
// concurrent Acquire/Release activity is possible, such as process
// teardown or test diagnostics (spec.md §9).
func (p *PoolState[T, E]) Iterate(v *T) *T {
	if v == nil {
		return p.list
	}
	return E(v).ListNext()
}

func (p *PoolState[T, E]) lockList() {
	for !p.listLock.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

func (p *PoolState[T, E]) unlockList() {
	p.listLock.Store(false)
}
