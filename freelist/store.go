// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package freelist

import "unsafe"

// Store abstracts the single machine word each FreeObject's encoded
// next-pointer lives in. Production code (package slab) stores it
// directly in the object's own memory via RawStore; tests drive the
// exact same encode/decode and corruption-detection logic over
// synthetic addresses via MapStore, the same pattern package pagemap
// uses to let the buddy allocator's algorithm run against addresses
// with no real memory behind them.
type Store interface {
	ReadWord(addr uintptr) uintptr
	WriteWord(addr, value uintptr)
}

// RawStore reads and writes the next-pointer word directly at its real
// memory address. This is how a live LocalCache's free lists are
// actually threaded through slab memory.
type RawStore struct{}

func (RawStore) ReadWord(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr))
}

func (RawStore) WriteWord(addr, value uintptr) {
	*(*uintptr)(unsafe.Pointer(addr)) = value
}

// MapStore is a synthetic Store over a plain map, for tests that use
// fabricated, non-dereferenceable addresses (spec.md §8 S3's
// 0x10000-based example addresses).
type MapStore struct {
	words map[uintptr]uintptr
}

// NewMapStore constructs an empty MapStore.
func NewMapStore() *MapStore { return &MapStore{words: make(map[uintptr]uintptr)} }

func (s *MapStore) ReadWord(addr uintptr) uintptr { return s.words[addr] }
func (s *MapStore) WriteWord(addr, value uintptr) { s.words[addr] = value }
