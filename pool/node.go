// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pool implements the generic object pool of spec.md §4.5: a
// Treiber-style MPMC stack for concurrency-safe acquire/release, plus a
// separate, spin-lock-guarded "all instances ever allocated" list used
// only for non-concurrent diagnostic iteration. Grounded on
// original_source/src/mem/pool.h's PoolState/Pool split.
package pool

import "sync/atomic"

// Node is the intrusive linking state a pooled type must embed to be
// usable with PoolState[T, E]. It supplies the stack's next pointer, the
// separate "all instances" list pointer, and the in-use marker —
// exactly the three fields PoolState<T> requires of T in the source.
type Node[T any] struct {
	next     *T
	listNext *T
	inUse    atomic.Bool
}

func (n *Node[T]) Next() *T         { return n.next }
func (n *Node[T]) SetNext(v *T)     { n.next = v }
func (n *Node[T]) ListNext() *T     { return n.listNext }
func (n *Node[T]) SetListNext(v *T) { n.listNext = v }
func (n *Node[T]) SetInUse()        { n.inUse.Store(true) }
func (n *Node[T]) ResetInUse()      { n.inUse.Store(false) }
func (n *Node[T]) InUse() bool      { return n.inUse.Load() }

// poolable is the method set PoolState[T, E] requires of *T, satisfied by
// embedding Node[T].
type poolable[T any] interface {
	*T
	Next() *T
	SetNext(*T)
	ListNext() *T
	SetListNext(*T)
	SetInUse()
	ResetInUse()
}
