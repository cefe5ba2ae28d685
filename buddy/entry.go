// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package buddy

import (
	"github.com/cznic/allocore/pagemap"
	"github.com/cznic/allocore/rbtree"
)

// sizeClassEntry is spec.md §4.1's BuddyEntry: a two-slot inline cache
// that avoids touching the red-black tree for small occupancies, and
// promotes to a tree once a third block needs to be held. There is one
// sizeClassEntry per distinct power-of-two block size a Buddy tracks.
type sizeClassEntry struct {
	slots      [2]uintptr
	nslots     int
	tree       rbtree.Tree
	treeActive bool
	treeCount  int
}

func (e *sizeClassEntry) empty() bool {
	if e.treeActive {
		return e.treeCount == 0
	}
	return e.nslots == 0
}

func (e *sizeClassEntry) contains(addr uintptr) bool {
	if e.treeActive {
		return e.tree.Contains(addr)
	}
	for i := 0; i < e.nslots; i++ {
		if e.slots[i] == addr {
			return true
		}
	}
	return false
}

// insert adds addr, promoting slots -> tree on the third insert (count
// 2 -> 3 transition described in spec.md §4.1).
func (e *sizeClassEntry) insert(pm *pagemap.Pagemap, addr uintptr) {
	if e.treeActive {
		e.tree.Insert(addr)
		e.treeCount++
		return
	}
	if e.nslots < 2 {
		e.slots[e.nslots] = addr
		e.nslots++
		return
	}

	e.tree = rbtree.Tree{PM: pm}
	e.tree.Insert(e.slots[0])
	e.tree.Insert(e.slots[1])
	e.tree.Insert(addr)
	e.slots = [2]uintptr{}
	e.nslots = 0
	e.treeActive = true
	e.treeCount = 3
}

// remove deletes a specific addr (used when consolidating with a known
// buddy). It demotes the tree back to slots when occupancy drops to 2,
// draining the two smallest entries (spec.md §4.1: "On remove: ... if
// the tree just went from >= 3 occupancy to 2, drain two smallest
// entries back into slots").
func (e *sizeClassEntry) remove(addr uintptr) bool {
	if e.treeActive {
		if !e.tree.Contains(addr) {
			return false
		}
		e.tree.Remove(addr)
		e.treeCount--
		if e.treeCount <= 2 {
			e.drainToSlots()
		}
		return true
	}
	for i := 0; i < e.nslots; i++ {
		if e.slots[i] == addr {
			e.slots[i] = e.slots[e.nslots-1]
			e.slots[e.nslots-1] = 0
			e.nslots--
			return true
		}
	}
	return false
}

// popAny removes and returns one block from the entry: the smallest
// address when the tree is active, otherwise the last occupied slot.
func (e *sizeClassEntry) popAny() (uintptr, bool) {
	if e.treeActive {
		addr := e.tree.RemoveMin()
		e.treeCount--
		if e.treeCount <= 2 {
			e.drainToSlots()
		}
		return addr, true
	}
	if e.nslots == 0 {
		return 0, false
	}
	addr := e.slots[e.nslots-1]
	e.slots[e.nslots-1] = 0
	e.nslots--
	return addr, true
}

func (e *sizeClassEntry) drainToSlots() {
	a := e.tree.RemoveMin()
	b := e.tree.RemoveMin()
	e.slots = [2]uintptr{}
	e.nslots = 0
	if a != 0 {
		e.slots[e.nslots] = a
		e.nslots++
	}
	if b != 0 {
		e.slots[e.nslots] = b
		e.nslots++
	}
	e.treeActive = false
	e.treeCount = 0
}
