// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rbtree implements an intrusive, left-leaning red-black tree
// (Sedgewick's 2-3 tree simulation) whose nodes have no separate
// allocation: every node IS a chunk address, and its left/right/color
// fields live inside that chunk's pagemap.Entry. This is the realization
// of spec.md §4.1's "Red-black tree with external nodes" using package
// pagemap's Entry.Word1()/Word2() as the only storage.
//
// A node's key is simply its address (uintptr); the null node is the
// address 0, which by construction is never a valid chunk base.
package rbtree

import "github.com/cznic/allocore/pagemap"

// redBit is the reserved low bit of Word1 used as the red/black color
// flag. Chunk addresses are pagemap.ChunkSize-aligned, so this bit is
// always zero in a real left-child address, leaving it free for the
// backend (us) to repurpose — exactly the "reserved low bits" spec.md §3
// and §6 describe.
const redBit = 1

// Handle is a thin accessor over one tree node, addressed by its chunk
// base and backed by a pagemap entry. The tree algorithms below never
// see a raw node allocation — only Handles.
type Handle struct {
	pm   *pagemap.Pagemap
	addr uintptr
}

func (h Handle) entry() *pagemap.Entry { return h.pm.GetMetaentryMut(h.addr) }

// IsNull reports whether h refers to no node.
func (h Handle) IsNull() bool { return h.addr == 0 }

// Addr returns the node's key (its chunk base address).
func (h Handle) Addr() uintptr { return h.addr }

func (h Handle) left() uintptr   { return h.entry().Word1() &^ redBit }
func (h Handle) right() uintptr  { return h.entry().Word2() }
func (h Handle) isRed() bool     { return h.entry().Word1()&redBit != 0 }
func (h Handle) setLeft(v uintptr) {
	e := h.entry()
	red := e.Word1() & redBit
	e.SetWord1((v &^ redBit) | red)
}
func (h Handle) setRight(v uintptr) { h.entry().SetWord2(v) }
func (h Handle) setRed(red bool) {
	e := h.entry()
	word := e.Word1() &^ redBit
	if red {
		word |= redBit
	}
	e.SetWord1(word)
}

// Tree is one red-black tree, keyed by node address. Its zero value
// (with PM set) is an empty tree. Multiple Trees may share the same
// Pagemap over time — a chunk address is only ever a live node in
// exactly one Tree at once, since a free block belongs to exactly one
// BuddyEntry (package buddy) at a time.
type Tree struct {
	PM   *pagemap.Pagemap
	Root uintptr
}

func (t *Tree) handle(addr uintptr) Handle { return Handle{pm: t.PM, addr: addr} }

func (t *Tree) isRed(addr uintptr) bool {
	if addr == 0 {
		return false
	}
	return t.handle(addr).isRed()
}

// Empty reports whether the tree holds no nodes.
func (t *Tree) Empty() bool { return t.Root == 0 }

// Contains reports whether addr is a node currently in the tree. Buddy's
// can_consolidate must only be invoked after confirming the candidate
// buddy is present — see spec.md §4.1.
func (t *Tree) Contains(addr uintptr) bool {
	cur := t.Root
	for cur != 0 {
		switch {
		case addr < cur:
			cur = t.handle(cur).left()
		case addr > cur:
			cur = t.handle(cur).right()
		default:
			return true
		}
	}
	return false
}

// Insert adds addr as a new node. addr must already have a registered
// pagemap entry (get_root_path/find_path in the source's template
// formulation; here the registration precondition is simply that
// GetMetaentryMut(addr) will not panic).
func (t *Tree) Insert(addr uintptr) {
	t.Root = t.insert(t.Root, addr)
	t.handle(t.Root).setRed(false)
}

func (t *Tree) insert(h, addr uintptr) uintptr {
	if h == 0 {
		n := t.handle(addr)
		n.setLeft(0)
		n.setRight(0)
		n.setRed(true)
		return addr
	}

	node := t.handle(h)
	switch {
	case addr < h:
		node.setLeft(t.insert(node.left(), addr))
	case addr > h:
		node.setRight(t.insert(node.right(), addr))
	default:
		return h // already present; callers must not double-insert
	}

	return t.fixUp(h)
}

func (t *Tree) fixUp(h uintptr) uintptr {
	node := t.handle(h)
	if t.isRed(node.right()) && !t.isRed(node.left()) {
		h = t.rotateLeft(h)
		node = t.handle(h)
	}
	if t.isRed(node.left()) && t.isRed(t.handle(node.left()).left()) {
		h = t.rotateRight(h)
		node = t.handle(h)
	}
	if t.isRed(node.left()) && t.isRed(node.right()) {
		t.flipColors(h)
	}
	return h
}

func (t *Tree) rotateLeft(h uintptr) uintptr {
	node := t.handle(h)
	x := node.right()
	xNode := t.handle(x)
	node.setRight(xNode.left())
	xNode.setLeft(h)
	xNode.setRed(node.isRed())
	node.setRed(true)
	return x
}

func (t *Tree) rotateRight(h uintptr) uintptr {
	node := t.handle(h)
	x := node.left()
	xNode := t.handle(x)
	node.setLeft(xNode.right())
	xNode.setRight(h)
	xNode.setRed(node.isRed())
	node.setRed(true)
	return x
}

func (t *Tree) flipColors(h uintptr) {
	node := t.handle(h)
	node.setRed(!node.isRed())
	t.handle(node.left()).setRed(!t.isRed(node.left()))
	t.handle(node.right()).setRed(!t.isRed(node.right()))
}

// Min returns the smallest key in the tree, or 0 if the tree is empty.
func (t *Tree) Min() uintptr {
	if t.Root == 0 {
		return 0
	}
	return t.min(t.Root)
}

func (t *Tree) min(h uintptr) uintptr {
	node := t.handle(h)
	for node.left() != 0 {
		h = node.left()
		node = t.handle(h)
	}
	return h
}

// Max returns the largest key in the tree, or 0 if the tree is empty.
func (t *Tree) Max() uintptr {
	if t.Root == 0 {
		return 0
	}
	return t.max(t.Root)
}

func (t *Tree) max(h uintptr) uintptr {
	node := t.handle(h)
	for node.right() != 0 {
		h = node.right()
		node = t.handle(h)
	}
	return h
}

func (t *Tree) moveRedLeft(h uintptr) uintptr {
	t.flipColors(h)
	node := t.handle(h)
	if t.isRed(t.handle(node.right()).left()) {
		node.setRight(t.rotateRight(node.right()))
		h = t.rotateLeft(h)
		t.flipColors(h)
	}
	return h
}

func (t *Tree) moveRedRight(h uintptr) uintptr {
	t.flipColors(h)
	node := t.handle(h)
	if t.isRed(t.handle(node.left()).left()) {
		h = t.rotateRight(h)
		t.flipColors(h)
	}
	return h
}

func (t *Tree) balance(h uintptr) uintptr {
	node := t.handle(h)
	if t.isRed(node.right()) {
		h = t.rotateLeft(h)
		node = t.handle(h)
	}
	if t.isRed(node.left()) && t.isRed(t.handle(node.left()).left()) {
		h = t.rotateRight(h)
		node = t.handle(h)
	}
	if t.isRed(node.left()) && t.isRed(node.right()) {
		t.flipColors(h)
	}
	return h
}

// RemoveMin deletes and returns the smallest key. It returns 0 if the
// tree was empty.
func (t *Tree) RemoveMin() uintptr {
	if t.Root == 0 {
		return 0
	}
	m := t.Min()
	root := t.handle(t.Root)
	if !t.isRed(root.left()) && !t.isRed(root.right()) {
		root.setRed(true)
	}
	t.Root = t.removeMin(t.Root)
	if t.Root != 0 {
		t.handle(t.Root).setRed(false)
	}
	return m
}

func (t *Tree) removeMin(h uintptr) uintptr {
	node := t.handle(h)
	if node.left() == 0 {
		return 0
	}
	if !t.isRed(node.left()) && !t.isRed(t.handle(node.left()).left()) {
		h = t.moveRedLeft(h)
		node = t.handle(h)
	}
	node.setLeft(t.removeMin(node.left()))
	return t.balance(h)
}

// RemoveMax deletes and returns the largest key. It returns 0 if the
// tree was empty.
func (t *Tree) RemoveMax() uintptr {
	if t.Root == 0 {
		return 0
	}
	m := t.Max()
	root := t.handle(t.Root)
	if !t.isRed(root.left()) && !t.isRed(root.right()) {
		root.setRed(true)
	}
	t.Root = t.removeMax(t.Root)
	if t.Root != 0 {
		t.handle(t.Root).setRed(false)
	}
	return m
}

func (t *Tree) removeMax(h uintptr) uintptr {
	node := t.handle(h)
	if t.isRed(node.left()) {
		h = t.rotateRight(h)
		node = t.handle(h)
	}
	if node.right() == 0 {
		return 0
	}
	if !t.isRed(node.right()) && !t.isRed(t.handle(node.right()).left()) {
		h = t.moveRedRight(h)
		node = t.handle(h)
	}
	node.setRight(t.removeMax(node.right()))
	return t.balance(h)
}

// Remove deletes addr from the tree. It is a no-op if addr is not
// present.
func (t *Tree) Remove(addr uintptr) {
	if !t.Contains(addr) {
		return
	}
	root := t.handle(t.Root)
	if !t.isRed(root.left()) && !t.isRed(root.right()) {
		root.setRed(true)
	}
	t.Root = t.remove(t.Root, addr)
	if t.Root != 0 {
		t.handle(t.Root).setRed(false)
	}
}

func (t *Tree) remove(h, addr uintptr) uintptr {
	node := t.handle(h)
	if addr < h {
		if !t.isRed(node.left()) && !t.isRed(t.handle(node.left()).left()) {
			h = t.moveRedLeft(h)
			node = t.handle(h)
		}
		node.setLeft(t.remove(node.left(), addr))
	} else {
		if t.isRed(node.left()) {
			h = t.rotateRight(h)
			node = t.handle(h)
		}
		if addr == h && node.right() == 0 {
			return 0
		}
		if !t.isRed(node.right()) && !t.isRed(t.handle(node.right()).left()) {
			h = t.moveRedRight(h)
			node = t.handle(h)
		}
		if addr == h {
			successor := t.min(node.right())
			node.setRight(t.removeMin(node.right()))
			succHandle := t.handle(successor)
			succHandle.setLeft(node.left())
			succHandle.setRight(node.right())
			succHandle.setRed(node.isRed())
			h = successor
			node = succHandle
		} else {
			node.setRight(t.remove(node.right(), addr))
		}
	}
	return t.balance(h)
}

// Walk visits every key in ascending order.
func (t *Tree) Walk(visit func(addr uintptr)) {
	t.walk(t.Root, visit)
}

func (t *Tree) walk(h uintptr, visit func(addr uintptr)) {
	if h == 0 {
		return
	}
	node := t.handle(h)
	t.walk(node.left(), visit)
	visit(h)
	t.walk(node.right(), visit)
}
