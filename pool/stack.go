// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pool

import "sync/atomic"

// stack is a Treiber-style MPMC lock-free stack threaded through each
// element's Next pointer (spec.md §4.5, §5: "the Pool's free stack is
// lock-free (CAS-based) and safe for concurrent acquire/release").
type stack[T any, E poolable[T]] struct {
	head atomic.Pointer[T]
}

func (s *stack[T, E]) push(p *T) {
	for {
		old := s.head.Load()
		E(p).SetNext(old)
		if s.head.CompareAndSwap(old, p) {
			return
		}
	}
}

// pushList pushes the contiguous chain first->...->last as one unit.
func (s *stack[T, E]) pushList(first, last *T) {
	if first == nil {
		return
	}
	for {
		old := s.head.Load()
		E(last).SetNext(old)
		if s.head.CompareAndSwap(old, first) {
			return
		}
	}
}

func (s *stack[T, E]) pop() *T {
	for {
		old := s.head.Load()
		if old == nil {
			return nil
		}
		next := E(old).Next()
		if s.head.CompareAndSwap(old, next) {
			return old
		}
	}
}

// popAll atomically empties the stack and returns its former head,
// chained through Next.
func (s *stack[T, E]) popAll() *T {
	return s.head.Swap(nil)
}
