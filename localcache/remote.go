// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package localcache

import "github.com/cznic/allocore/freelist"

// TruncID identifies the destination allocator a deferred remote free
// belongs to (spec.md §6: "a trunc_id() on its RemoteAllocator").
type TruncID uint64

// remoteTableSize is the width of the fixed-size table, indexed by
// dest % remoteTableSize; a destination whose slot already holds a
// different destination goes into a plain overflow slice (spec.md §4.12, grounded on
// original_source/src/mem/remotecache.h / redblacktree.h's small
// fixed-capacity front end over an overflow path).
const remoteTableSize = 8

type remoteQueue struct {
	dest     TruncID
	opened   bool
	assigned bool
	b        *freelist.Builder
}

func newRemoteQueue(store freelist.Store, slabSize uintptr) *remoteQueue {
	return &remoteQueue{b: freelist.NewBuilder(store, slabSize)}
}

func (q *remoteQueue) post(addr uintptr) {
	if !q.opened {
		q.b.Open(addr)
		q.opened = true
		return
	}
	q.b.Add(addr)
}

// RemoteDeallocCache batches frees destined for threads other than the
// one that owns this LocalCache, keyed by the destination allocator's
// TruncID, and flushed in batches (spec.md §2, "enqueued in the remote
// cache, flushed in batches to the owning allocator"). Unlike a
// LocalCache's own per-sizeclass free lists, a single destination's
// pending frees can legitimately come from many different, unrelated
// slabs — a thread frees whatever mix of remote objects it happens to
// touch — so slabSize here is deliberately not an object size: it is
// the coarse bound the freelist cursor's corruption check tolerates
// between consecutive queued addresses, wide enough that two genuinely
// unrelated but otherwise valid pointers never trip it.
type RemoteDeallocCache struct {
	store    freelist.Store
	slabSize uintptr
	table    [remoteTableSize]*remoteQueue
	overflow []*remoteQueue
}

// NewRemoteDeallocCache constructs an empty RemoteDeallocCache. store is
// the freelist.Store every posted object's own memory is signed
// through; slabSize bounds the freelist cursor's corruption check (see
// the type doc) and should be set wide — e.g. the whole address space
// this allocator instance manages — not to an object's own sizeclass.
func NewRemoteDeallocCache(store freelist.Store, slabSize uintptr) *RemoteDeallocCache {
	return &RemoteDeallocCache{store: store, slabSize: slabSize}
}

func (r *RemoteDeallocCache) queueFor(dest TruncID) *remoteQueue {
	idx := uintptr(dest) % remoteTableSize
	q := r.table[idx]
	if q == nil {
		q = newRemoteQueue(r.store, r.slabSize)
		q.dest = dest
		q.assigned = true
		r.table[idx] = q
		return q
	}
	if q.assigned && q.dest == dest {
		return q
	}

	for _, oq := range r.overflow {
		if oq.dest == dest {
			return oq
		}
	}
	oq := newRemoteQueue(r.store, r.slabSize)
	oq.dest = dest
	oq.assigned = true
	r.overflow = append(r.overflow, oq)
	return oq
}

// Post enqueues addr as a pending free destined for dest.
func (r *RemoteDeallocCache) Post(dest TruncID, addr uintptr) {
	r.queueFor(dest).post(addr)
}

// Flush closes every non-empty destination queue and hands each one's
// list to post, then clears this cache's pending state. It is called
// from LocalCache.Flush (thread teardown); nothing flushes it on a
// pending-count threshold.
func (r *RemoteDeallocCache) Flush(post func(dest TruncID, it freelist.Iter)) {
	for _, q := range r.table {
		if q == nil || !q.opened {
			continue
		}
		var it freelist.Iter
		q.b.Close(&it)
		q.opened = false
		post(q.dest, it)
	}
	for _, q := range r.overflow {
		if !q.opened {
			continue
		}
		var it freelist.Iter
		q.b.Close(&it)
		q.opened = false
		post(q.dest, it)
	}
}
