// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package freelist implements the pointer-signing free-object chain of
// spec.md §4.6: every free list threads through its objects' own
// storage, with each "next" pointer XOR-encoded against a key so that a
// forged or off-slab pointer is detected by the chain's cursor on the
// very next traversal step, rather than silently dereferenced.
//
// Grounded on original_source/src/mem/freelist.h: the encode/decode
// transform, the FreeObjectCursor prev/curr chaining (the key for each
// object's stored pointer is the PREVIOUS object's address in the
// chain, not a single fixed per-list key), and the FreeListBuilder
// open/add/close lifecycle are all carried over unchanged in meaning.
package freelist

import "math/bits"

// mask is the low half of a machine word, matching the source's
// `bits::one_at_bit(bits::BITS / 2) - 1`.
const mask = (uintptr(1) << (bits.UintSize / 2)) - 1

// globalKey is the process-wide singleton XORed into every local key
// before encoding (spec.md §9, "Global mutable state": global_key is a
// process-wide singleton, initialized before any FreeList is built,
// never reinitialized). SetGlobalKey exists for tests that need a fixed,
// reproducible value (spec.md §8 S3).
var globalKey uintptr = 0x9999999999999999

// SetGlobalKey overrides the process-wide signing key. Production code
// calls this once at process start with a value from a real entropy
// source; tests call it to reproduce spec.md §8 S3 exactly.
func SetGlobalKey(k uintptr) { globalKey = k }

// OnCorruption is invoked when a cursor detects that a decoded pointer
// does not belong to the current slab (spec.md §7: HeapCorruption is
// fatal, never recovered from). It defaults to panicking with the
// diagnostic message; package allocator rebinds it at init time to call
// pal.PAL.Error first, so the failure is reported through the PAL
// before the process aborts.
var OnCorruption = func(msg string) { panic(msg) }

func encode(localKey, next uintptr) uintptr {
	key := localKey ^ globalKey
	next ^= (((next & mask) + 1) * key) &^ mask
	return next
}

// differentSlab reports whether p1 and p2 cannot belong to the same
// slab of the given size: (p1 XOR p2) >= slabSize. Any two addresses in
// one naturally-aligned, size-slabSize slab agree on every bit above
// log2(slabSize), so their XOR is small; a forged or wrongly-keyed
// pointer overwhelmingly fails this check (spec.md §8 property 4).
func differentSlab(p1, p2, slabSize uintptr) bool {
	return (p1 ^ p2) >= slabSize
}

func initialKey(addr uintptr) uintptr { return addr + 1 }

// ReadNext decodes the next-pointer word stored at addr in store, using
// key.
func ReadNext(store Store, addr, key uintptr) uintptr {
	return encode(key, store.ReadWord(addr))
}

// StoreNext encodes next with key and writes it as addr's next-pointer
// word in store.
func StoreNext(store Store, addr, next, key uintptr) {
	store.WriteWord(addr, encode(key, next))
}

// Cursor walks (or builds) one free-object chain within a single slab,
// checking on every step that consecutive addresses are consistent with
// belonging to that slab (spec.md §4.6's FreeObjectCursor). The key used
// to decode/encode the word at curr is always the address the cursor
// held just before curr (get_prev()), which is what makes a pointer
// signed under one chain position fail to decode under another.
type Cursor struct {
	store    Store
	slabSize uintptr
	curr     uintptr
	prev     uintptr
}

// NewCursor constructs a Cursor over store, treating addresses as
// belonging to slabSize-sized slabs.
func NewCursor(store Store, slabSize uintptr) Cursor {
	return Cursor{store: store, slabSize: slabSize}
}

// Curr returns the address the cursor currently references, or 0 at the
// end of the chain.
func (c *Cursor) Curr() uintptr { return c.curr }

func (c *Cursor) getPrev() uintptr { return c.prev }

func (c *Cursor) updateCursor(next uintptr) {
	if next != 0 && differentSlab(c.prev, next, c.slabSize) {
		OnCorruption("freelist: heap corruption - free list corrupted")
		return
	}
	c.prev = c.curr
	c.curr = next
}

// MoveNext advances the cursor to the next object in the chain,
// decoding its stored pointer and checking the result against the
// current slab.
func (c *Cursor) MoveNext() {
	if differentSlab(c.prev, c.curr, c.slabSize) {
		OnCorruption("freelist: heap corruption - free list corrupted")
		return
	}
	next := ReadNext(c.store, c.curr, c.getPrev())
	c.updateCursor(next)
}

// SetNext signs and stores next as curr's next-pointer, without moving.
func (c *Cursor) SetNext(next uintptr) {
	StoreNext(c.store, c.curr, next, c.getPrev())
}

// SetNextAndMove signs next into curr's storage, then advances onto it.
func (c *Cursor) SetNextAndMove(next uintptr) {
	c.SetNext(next)
	c.updateCursor(next)
}

// ResetCursor points the cursor at next with a freshly derived initial
// key, for starting (or ending) a new chain.
func (c *Cursor) ResetCursor(next uintptr) {
	c.prev = initialKey(next)
	c.curr = next
}

// Iter consumes a free list built by a Builder, one object at a time.
type Iter struct {
	front Cursor
}

// NewIter constructs an empty Iter over store/slabSize. Builder.Close is
// the usual way an Iter is populated.
func NewIter(store Store, slabSize uintptr) Iter {
	return Iter{front: NewCursor(store, slabSize)}
}

// Peek returns the next address without consuming it, or 0 if empty.
func (it *Iter) Peek() uintptr { return it.front.Curr() }

// Empty reports whether the list has been fully consumed.
func (it *Iter) Empty() bool { return it.Peek() == 0 }

// Take consumes and returns the next address in the list.
func (it *Iter) Take() uintptr {
	c := it.front.Curr()
	it.front.MoveNext()
	return c
}

// Builder constructs a free list by appending addresses belonging to
// one slab, then hands the result to a consumer as an Iter.
type Builder struct {
	Iter
	end Cursor
}

// NewBuilder constructs an empty Builder over store/slabSize.
func NewBuilder(store Store, slabSize uintptr) *Builder {
	return &Builder{
		Iter: NewIter(store, slabSize),
		end:  NewCursor(store, slabSize),
	}
}

// Open primes the builder with the first object in the list.
func (b *Builder) Open(n uintptr) {
	b.end.ResetCursor(n)
	b.front.ResetCursor(n)
}

// Add signs end -> n and advances the builder onto n.
func (b *Builder) Add(n uintptr) {
	b.end.SetNextAndMove(n)
}

// Terminate signs the list's tail to point to null, if non-empty.
func (b *Builder) Terminate() {
	if !b.Empty() {
		b.end.SetNext(0)
	}
}

// Close terminates the list and atomically moves it into dst for a
// consumer, leaving the builder empty and ready for reuse.
func (b *Builder) Close(dst *Iter) {
	b.Terminate()
	*dst = b.Iter
	b.init()
}

func (b *Builder) init() {
	b.front.ResetCursor(0)
}
