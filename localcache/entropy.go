// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package localcache

// LocalEntropy is the per-thread entropy source spec.md §4.7 attaches to
// every LocalCache. In the FreeObjectCursor realization this module is
// grounded on (original_source/src/mem/freelist.h), each stored pointer
// is already keyed by the previous object's own address rather than a
// separate per-thread value read at Take time, so LocalEntropy carries
// no weight in the decode path itself; it only holds a seed, readable
// through Seed, and nothing in this module mixes it into the free-list
// chain's signing scheme.
type LocalEntropy struct {
	seed uintptr
}

// NewLocalEntropy constructs a LocalEntropy from seed, typically drawn
// from a real entropy source at thread start.
func NewLocalEntropy(seed uintptr) LocalEntropy {
	return LocalEntropy{seed: seed}
}

// Seed returns this entropy source's seed value.
func (e LocalEntropy) Seed() uintptr { return e.seed }
