// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package allocator composes the whole backend range pipeline (package
// ranges) over one PAL and one Pagemap into a single process-wide
// instance, and hands out per-thread ThreadCache fast paths over it
// (spec.md §9: "the top-level allocator package composes one concrete
// instantiation of the whole stack").
package allocator

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cznic/allocore/freelist"
	"github.com/cznic/allocore/localcache"
	"github.com/cznic/allocore/pagemap"
	"github.com/cznic/allocore/ranges"
	"github.com/cznic/allocore/slab"
	"github.com/cznic/allocore/sizeclass"
)

// The pipeline shape composed here: PalRange, registered with
// the pagemap, feeding a LargeBuddyRange, committed/decommitted by
// CommitRange, serialized by LockRange (LargeBuddyRange itself is not
// concurrency-safe), instrumented by StatsRange and LogRange, and
// outermost shared process-wide via StaticRange. Expressed as type aliases so
// every layer's concrete type stays visible without restating the full
// nested instantiation at every use site.
type (
	rawBackend    = ranges.PagemapRegisterRange[ranges.PalRange]
	largeBackend  = *ranges.LargeBuddyRange[rawBackend]
	commitBackend = ranges.CommitRange[largeBackend]
	lockedBackend = *ranges.LockRange[commitBackend]
	statsBackend  = *ranges.StatsRange[lockedBackend]
	backendStack  = ranges.LogRange[statsBackend]
)

var allocatorIDs atomic.Uint64

// Allocator is one process-wide backend instance: one PAL, one pagemap,
// one LargeBuddyRange, shared by every ThreadCache it hands out via
// NewThreadCache. Construct with New.
type Allocator struct {
	cfg Config
	pm  *pagemap.Pagemap
	id  uint64

	large *ranges.LargeBuddyRange[rawBackend]
	stats statsBackend

	backend ranges.StaticRange[backendStack]

	mu     sync.Mutex
	caches []*localcache.LocalCache
}

// New constructs an Allocator. Each call produces an independent
// instance with its own pagemap and backend pipeline; production code
// typically constructs exactly one per process, but tests construct one
// per case for isolation (spec.md §4.8's IndirectRange rationale applies
// equally at this level).
func New(opts ...Option) *Allocator {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.GlobalKey != 0 {
		freelist.SetGlobalKey(cfg.GlobalKey)
	}

	a := &Allocator{
		cfg: cfg,
		pm:  pagemap.New(cfg.MinChunkBits),
		id:  allocatorIDs.Add(1),
	}

	palRange := ranges.PalRange{PAL: cfg.PAL}
	registered := rawBackend{Parent: palRange, PM: a.pm}
	a.large = ranges.NewLargeBuddyRange[rawBackend](
		registered, a.pm, cfg.MinChunkBits, cfg.MaxSizeBits, cfg.RefillSizeBits, cfg.MinRefillSizeBits)
	committed := commitBackend{Parent: a.large, PAL: cfg.PAL}
	locked := ranges.NewLockRange[commitBackend](committed, cfg.PAL)
	a.stats = &ranges.StatsRange[lockedBackend]{Parent: locked}
	logged := backendStack{Parent: a.stats, Log: cfg.Logger}
	a.backend.Init(logged)

	// freelist.OnCorruption is a process-wide singleton hook (spec.md
	// §9's global mutable state framing); the most recently constructed
	// Allocator's PAL is what HeapCorruption gets reported through. A
	// process running more than one Allocator concurrently is outside
	// this core's scope (see DESIGN.md).
	pal := cfg.PAL
	freelist.OnCorruption = func(msg string) {
		pal.Error(msg)
		panic(newError(ErrHeapCorruption, "%s", msg).Error())
	}

	return a
}

// TruncID returns this Allocator's truncated identifier, the value a
// slab.Manager reports to RemoteDeallocCache consumers posting frees
// back to it (spec.md §6).
func (a *Allocator) TruncID() slab.TruncID { return slab.TruncID(a.id) }

func (a *Allocator) chunkSize() uintptr { return uintptr(1) << a.cfg.MinChunkBits }

// NewThreadCache constructs a per-thread hot-path fast cache sharing
// this Allocator's backend pipeline, with its own slab.Manager, free
// lists, and RemoteDeallocCache (spec.md §4.7, §5: "each OS thread has
// its own LocalCache and its own slab-layer allocator object").
func (a *Allocator) NewThreadCache(entropySeed uintptr) *ThreadCache {
	mgr := slab.New(&a.backend, a, a.chunkSize())
	store := freelist.RawStore{}
	lc := localcache.New(mgr, store, a.chunkSize(), localcache.TruncID(a.id), localcache.NewLocalEntropy(entropySeed))
	lc.Remote = localcache.NewRemoteDeallocCache(store, uintptr(1)<<a.cfg.MaxSizeBits)

	a.mu.Lock()
	a.caches = append(a.caches, lc)
	a.mu.Unlock()

	return &ThreadCache{a: a, lc: lc, mgr: mgr}
}

// Flush empties the free lists of every ThreadCache ever constructed by
// this Allocator, then flushes the backend's own LargeBuddyRange down to
// its parent (spec.md §4.7, thread teardown; §4.2, shutdown drain). The
// cached objects and pending remote frees are discarded, not handed back:
// chunks that slab.Manager carved them from are never returned to the
// backend, so only blocks already free in the LargeBuddyRange reach its
// parent.
func (a *Allocator) Flush() {
	a.mu.Lock()
	caches := append([]*localcache.LocalCache(nil), a.caches...)
	a.mu.Unlock()

	for _, lc := range caches {
		lc.Flush(func(uintptr) {}, func(localcache.TruncID, freelist.Iter) {})
	}
	a.backend.Flush()
}

// Stats exposes the backend pipeline's StatsRange counters for
// diagnostics.
func (a *Allocator) Stats() (requested, provided, failures, deallocs uint64) {
	return a.stats.Requested(), a.stats.Provided(), a.stats.Failures(), a.stats.Deallocs()
}

// checkInvariant is a no-op unless built with the allocore_debug tag
// (see debug_on.go); when active, it verifies
// requestedTotal == providedTotal + containsBytes (spec.md §7, §8
// property 2) and panics with the three values on violation.
func (a *Allocator) checkInvariant() { checkInvariant(a.large) }

// ThreadCache is the per-thread handle NewThreadCache returns: a
// LocalCache fast path plus the slab.Manager that services its misses.
type ThreadCache struct {
	a   *Allocator
	lc  *localcache.LocalCache
	mgr *slab.Manager
}

// Malloc rounds size up to a small sizeclass and returns an object of
// that size, or ok=false if size exceeds this allocator's small-object
// range or the backend is out of address space (spec.md §7,
// OutOfAddressSpace propagating as an allocation failure).
func (t *ThreadCache) Malloc(size uintptr) (addr uintptr, ok bool) {
	class, ok := sizeclass.Of(size)
	if !ok {
		return 0, false
	}
	addr, ok = t.lc.Alloc(class)
	if ok {
		t.a.checkInvariant()
	}
	return addr, ok
}

// Free returns addr, previously returned by Malloc(size) on this same
// ThreadCache, to its free list.
func (t *ThreadCache) Free(size, addr uintptr) error {
	class, ok := sizeclass.Of(size)
	if !ok {
		return fmt.Errorf("allocator: %d is not a valid small-object size", size)
	}
	t.lc.Dealloc(class, addr)
	t.a.checkInvariant()
	return nil
}

// FreeRemote returns addr, an object owned by a different allocator
// (identified by dest), via this cache's RemoteDeallocCache rather than
// its own free lists (spec.md §5: "the ONLY mechanism by which one
// thread may free an object owned by another").
func (t *ThreadCache) FreeRemote(dest slab.TruncID, addr uintptr) {
	t.lc.PostRemote(localcache.TruncID(dest), addr)
}

// Flush drains this cache alone, handing its objects to dealloc and its
// pending remote frees to postRemote.
func (t *ThreadCache) Flush(dealloc func(addr uintptr), postRemote func(dest slab.TruncID, it freelist.Iter)) {
	t.lc.Flush(dealloc, func(dest localcache.TruncID, it freelist.Iter) {
		postRemote(slab.TruncID(dest), it)
	})
}
