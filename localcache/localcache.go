// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package localcache implements the per-thread hot-path allocation
// cache of spec.md §4.7: one signed free-list per small sizeclass, a
// slow-path fallback to the slab layer on a miss, and a RemoteDeallocCache
// for frees that belong to another thread's allocator.
package localcache

import (
	"fmt"
	"sync/atomic"

	"github.com/cznic/allocore/freelist"
	"github.com/cznic/allocore/sizeclass"
)

// SlabSource is the slow-path continuation spec.md §6 requires of a slab
// allocator: when class's free list is empty, Refill supplies a freshly
// populated iterator, plus the chunk base/length it carved the objects
// from. LocalCache discards base/length: Flush hands individual objects
// to its callback and never returns whole chunks.
// A single *slab.Manager satisfies this by construction (its Refill
// method has this exact signature); LocalCache depends only on this
// narrower interface so it never needs to import package slab.
type SlabSource interface {
	Refill(class int, store freelist.Store) (it freelist.Iter, base, length uintptr, ok bool)
}

// DeallocFunc is the callback Flush hands every locally-owned object to
// as it drains each sizeclass's free list (spec.md §4.7, "handing each
// object to a deallocation callback").
type DeallocFunc func(addr uintptr)

// LocalCache is one OS thread's hot-path allocation state. It is not
// safe for concurrent use from more than one goroutine; Acquire/Release
// exist only to detect reentrant use from within the same logical
// thread (e.g. a signal handler invoked during teardown), per spec.md
// §4.7 and §5.
type LocalCache struct {
	lists [sizeclass.NumSmallSizeclasses]freelist.Iter
	store freelist.Store

	// slabSize bounds the freelist cursor's corruption check (see
	// freelist.Cursor): it must be the chunk granularity objects are
	// carved from, not an individual object's own size — two objects
	// 16 bytes apart inside one 16 KiB chunk must never register as
	// belonging to different slabs.
	slabSize uintptr

	Entropy LocalEntropy
	Remote  *RemoteDeallocCache
	destID  TruncID

	slab SlabSource

	inUse atomic.Int32
}

// New constructs a LocalCache whose slow path is served by slab, whose
// own objects are signed through store, and whose own TruncID (reported
// to peers posting remote frees back to it) is destID. slabSize is the
// chunk granularity slab carves its objects from (see the slabSize
// field doc).
func New(slab SlabSource, store freelist.Store, slabSize uintptr, destID TruncID, entropy LocalEntropy) *LocalCache {
	return &LocalCache{
		store:    store,
		slabSize: slabSize,
		Entropy:  entropy,
		destID:   destID,
		slab:     slab,
	}
}

// TruncID returns this cache's owning allocator's truncated identifier,
// the value peers use as the destination key when posting a remote free
// back to it.
func (c *LocalCache) TruncID() TruncID { return c.destID }

// Acquire marks this cache entered, spinning if it is already marked
// (reentrant use — e.g. a signal handler firing mid-teardown). It
// mirrors the source's in_use counter (spec.md §4.7), simplified to
// Go's atomic.Int32 rather than a relaxed store plus signal fence, since
// Go provides no separate signal-fence primitive.
func (c *LocalCache) Acquire() {
	for !c.inUse.CompareAndSwap(0, 1) {
		// Busy-own: the only legitimate contender is a signal handler on
		// the same OS thread, so this resolves in O(1) time.
	}
}

// Release clears the in-use marker set by Acquire.
func (c *LocalCache) Release() {
	c.inUse.Store(0)
}

// Alloc services an allocation request of the given sizeclass: pop from
// that class's free list if non-empty, otherwise fall through to the
// slab slow path. It returns ok=false only when the slow path itself
// fails (spec.md §7, OutOfAddressSpace propagating upward).
func (c *LocalCache) Alloc(class int) (addr uintptr, ok bool) {
	fl := &c.lists[class]
	if !fl.Empty() {
		return fl.Take(), true
	}

	it, _, _, refilled := c.slab.Refill(class, c.store)
	if !refilled {
		return 0, false
	}
	c.lists[class] = it
	if c.lists[class].Empty() {
		return 0, false
	}
	return c.lists[class].Take(), true
}

// Dealloc returns addr, a sizeclass-class object owned by this cache's
// own allocator, to the matching free list (the hot, same-thread,
// LIFO path spec.md §4.7 calls out for small sizeclasses' cache
// locality). Objects owned by a different allocator must go through
// PostRemote instead (spec.md §5: "the ONLY mechanism by which one
// thread may free an object owned by another").
func (c *LocalCache) Dealloc(class int, addr uintptr) {
	old := c.lists[class]

	b := freelist.NewBuilder(c.store, c.slabSize)
	b.Open(addr)
	if old.Empty() {
		// addr is the only object: terminate its link to null.
		b.Close(&c.lists[class])
		return
	}
	// Link addr -> old's current head and adopt the builder's iterator
	// as the new list, without calling Close/Terminate: that would
	// overwrite the link just signed with a null terminator. The new
	// list's cursor decodes the old head's link with key addr, so that
	// one link is re-signed under addr; the rest of old's chain is
	// untouched.
	head := old.Take()
	freelist.StoreNext(c.store, head, old.Peek(), addr)
	b.Add(head)
	c.lists[class] = b.Iter
}

// PostRemote enqueues addr (a sizeclass-class object not owned by this
// cache's allocator) into the RemoteDeallocCache for dest.
func (c *LocalCache) PostRemote(dest TruncID, addr uintptr) {
	c.Remote.Post(dest, addr)
}

// Flush drains every sizeclass's free list through dealloc (spec.md
// §4.7: "handing each object to a deallocation callback"), then flushes
// any pending remote frees through postRemote. Used at thread teardown.
func (c *LocalCache) Flush(dealloc DeallocFunc, postRemote func(dest TruncID, it freelist.Iter)) {
	for i := range c.lists {
		fl := &c.lists[i]
		for !fl.Empty() {
			dealloc(fl.Take())
		}
	}
	if c.Remote != nil {
		c.Remote.Flush(postRemote)
	}
}

// DebugCounts returns the number of objects currently cached per
// sizeclass, for diagnostics only. It walks a copy of each list — Iter
// is a plain value type and Take only reads the underlying store, never
// writes it — so c's own lists are left exactly as found; it is still
// not safe to call concurrently with Alloc/Dealloc on the same cache.
func (c *LocalCache) DebugCounts() []int {
	counts := make([]int, len(c.lists))
	for i := range c.lists {
		n := 0
		for it := c.lists[i]; !it.Empty(); {
			it.Take()
			n++
		}
		counts[i] = n
	}
	return counts
}

var _ fmt.Stringer = (*LocalCache)(nil)

// String reports a short diagnostic summary of this cache's non-empty
// sizeclasses.
func (c *LocalCache) String() string {
	nonEmpty := 0
	for i := range c.lists {
		if !c.lists[i].Empty() {
			nonEmpty++
		}
	}
	return fmt.Sprintf("localcache(truncID=%d, nonEmptyClasses=%d)", c.destID, nonEmpty)
}
