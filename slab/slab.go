// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package slab provides the minimal, concrete slab allocator spec.md §6
// leaves as an external collaborator: it pulls one chunk from the top of
// the range pipeline, carves it into fixed sizeclass.Size(class)-sized
// objects, and hands the result back as a populated freelist.Iter. This
// is the slow-path continuation a LocalCache miss falls through to
// (spec.md §2, "Control flow"), kept deliberately small — a real slab
// manager's placement/deferred-decommit policy is out of this core's
// budget per spec.md §1.
package slab

import (
	"fmt"

	"github.com/cznic/allocore/freelist"
	"github.com/cznic/allocore/ranges"
	"github.com/cznic/allocore/sizeclass"
)

// TruncID is the truncated identifier a RemoteAllocator is known by to
// its peers, per spec.md §6: a RemoteDeallocCache keys its per-destination
// queues on this value rather than a full allocator pointer/handle, so
// that posting a remote free never needs to dereference the destination.
type TruncID uint64

// RemoteAllocator is the contract package localcache's RemoteDeallocCache
// needs from the allocator instance owning a given slab: enough identity
// to route a deferred free, nothing more (spec.md §6).
type RemoteAllocator interface {
	// TruncID returns this allocator's truncated identifier.
	TruncID() TruncID
}

// Manager pulls whole chunks from Backend and carves each one into
// fixed-size objects of the sizeclass a Refill call names. It is not safe
// for concurrent use; package allocator gives each ThreadCache its own
// Manager (spec.md §5).
type Manager struct {
	Backend ranges.Range
	Owner   RemoteAllocator

	chunkSize uintptr
}

// New constructs a Manager pulling chunkSize-byte chunks from backend.
// chunkSize must be a power of two and at least as large as the largest
// sizeclass this Manager will ever be asked to carve.
func New(backend ranges.Range, owner RemoteAllocator, chunkSize uintptr) *Manager {
	return &Manager{Backend: backend, Owner: owner, chunkSize: chunkSize}
}

// Refill services a LocalCache miss for class: it allocates one chunk
// from the backend range, slices it into sizeclass.Size(class)-sized
// objects, and returns them threaded into a freelist.Iter ready for a
// LocalCache to adopt, along with the chunk's base/length so the caller
// can track ownership for eventual return. store is the freelist.Store
// the objects' own memory will be signed through — production callers
// pass a freelist.RawStore over the real chunk memory.
func (m *Manager) Refill(class int, store freelist.Store) (it freelist.Iter, base, length uintptr, ok bool) {
	objSize := sizeclass.Size(class)
	if objSize == 0 || objSize > m.chunkSize {
		return freelist.Iter{}, 0, 0, false
	}

	blk, allocated := m.Backend.AllocRange(ranges.SizeSpec{Desired: m.chunkSize, Required: m.chunkSize})
	if !allocated {
		return freelist.Iter{}, 0, 0, false
	}

	n := blk.Length / objSize
	if n == 0 {
		m.Backend.DeallocRange(blk.Base, blk.Length, true)
		return freelist.Iter{}, 0, 0, false
	}

	// slabSize for the cursor's corruption check is the whole chunk, not
	// the object size: every object in this list is known to live in
	// this one naturally-aligned chunk, which is the bound a forged or
	// off-chunk pointer must be caught against (differentSlab compares
	// against this span, not the object stride).
	b := freelist.NewBuilder(store, blk.Length)
	b.Open(blk.Base)
	for i := uintptr(1); i < n; i++ {
		b.Add(blk.Base + i*objSize)
	}
	b.Close(&it)

	return it, blk.Base, blk.Length, true
}

// Return gives a whole chunk, previously obtained from Refill and now
// entirely free, back to the backend range. Callers must not call
// Return on a partially-used chunk.
func (m *Manager) Return(base, length uintptr) error {
	if !m.Backend.DeallocRange(base, length, true) {
		return fmt.Errorf("slab: backend refused to release chunk at %#x", base)
	}
	return nil
}

// ChunkSize returns the chunk granularity this Manager pulls from its
// backend.
func (m *Manager) ChunkSize() uintptr { return m.chunkSize }
