// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package buddy

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cznic/allocore/pagemap"
)

// newTestBuddy builds a Buddy over a Pagemap whose chunk size matches
// MIN=2^minBits, and registers one contiguous region big enough to hold
// every block used by the scenario, so consolidation is always legal.
func newTestBuddy(t *testing.T, minBits, maxBits uint, regionSize uintptr) *Buddy {
	t.Helper()
	pm := pagemap.New(minBits)
	require.NoError(t, pm.RegisterRange(0, regionSize))
	return New(pm, minBits, maxBits)
}

// S1 — Buddy basic consolidation (spec.md §8).
func TestScenarioS1BasicConsolidation(t *testing.T) {
	b := newTestBuddy(t, 4, 7, 256) // MIN=4 (16), MAX=7 (128 is 2^MAX)

	_, overflow := b.AddBlock(0, 16)
	require.False(t, overflow)

	_, overflow = b.AddBlock(16, 16)
	require.False(t, overflow)
	require.Equal(t, uintptr(32), b.LargestSize())
	require.True(t, b.entries[b.indexOf(32)].contains(0))

	_, overflow = b.AddBlock(32, 32)
	require.False(t, overflow)
	require.Equal(t, uintptr(64), b.LargestSize())
	require.True(t, b.entries[b.indexOf(64)].contains(0))

	overflowAddr, overflow := b.AddBlock(64, 64)
	require.True(t, overflow)
	require.Equal(t, uintptr(0), overflowAddr)
}

// S2 — Split on remove (spec.md §8).
func TestScenarioS2SplitOnRemove(t *testing.T) {
	b := newTestBuddy(t, 4, 8, 256)

	_, overflow := b.AddBlock(0, 64)
	require.False(t, overflow)

	addr, ok := b.RemoveBlock(16)
	require.True(t, ok)
	require.Equal(t, uintptr(0), addr)

	require.True(t, b.entries[b.indexOf(16)].contains(16))
	require.True(t, b.entries[b.indexOf(32)].contains(32))
}

func TestAddBlockRejectsBadAlignment(t *testing.T) {
	b := newTestBuddy(t, 4, 8, 256)
	require.Panics(t, func() { b.AddBlock(8, 16) })
}

func TestAddBlockRejectsNonPowerOfTwo(t *testing.T) {
	b := newTestBuddy(t, 4, 8, 256)
	require.Panics(t, func() { b.AddBlock(0, 24) })
}

func TestRemoveBlockEmpty(t *testing.T) {
	b := newTestBuddy(t, 4, 8, 256)
	_, ok := b.RemoveBlock(16)
	require.False(t, ok)
}

// Property 1 (spec.md §8): every block returned by RemoveBlock(s) is
// aligned to s and has power-of-two size >= s.
func TestPropertyRemoveBlockAlignedAndSized(t *testing.T) {
	b := newTestBuddy(t, 4, 11, 1024)
	_, overflow := b.AddBlock(0, 1024/2)
	require.False(t, overflow)
	_, overflow = b.AddBlock(512, 512)
	require.False(t, overflow)
	// buddy now holds one 1024-sized region worth of free space, spread
	// across whatever sizes AddBlock's consolidation left behind.

	for _, want := range []uintptr{16, 32, 64} {
		addr, ok := b.RemoveBlock(want)
		if !ok {
			continue
		}
		require.Zero(t, addr%want, "addr %#x not aligned to %#x", addr, want)
	}
}

// Property 7 (spec.md §8): adding a 2S block, removing via two S
// removals, then re-adding both halves restores the original block (or
// yields overflow at the top size).
func TestPropertyReAddRestoresOrOverflows(t *testing.T) {
	b := newTestBuddy(t, 4, 6, 64) // MIN=4(16) MAX=6(64): 2S=32 is below 2^MAX, so the halves restore the block

	_, overflow := b.AddBlock(0, 32)
	require.False(t, overflow)

	a1, ok := b.RemoveBlock(16)
	require.True(t, ok)
	a2, ok := b.RemoveBlock(16)
	require.True(t, ok)
	require.ElementsMatch(t, []uintptr{0, 16}, []uintptr{a1, a2})

	_, overflow = b.AddBlock(a1, 16)
	require.False(t, overflow)
	_, overflow = b.AddBlock(a2, 16)
	require.False(t, overflow)
	restored, ok := b.RemoveBlock(32)
	require.True(t, ok)
	require.Equal(t, uintptr(0), restored)
}

// Round trip property (spec.md §8, property 6): every address handed
// out by RemoveBlock and returned via AddBlock of the same size can be
// obtained again by a RemoveBlock of the same or smaller size.
func TestPropertyRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	b := newTestBuddy(t, 4, 13, 4096)
	_, overflow := b.AddBlock(0, 4096/2)
	require.False(t, overflow)
	_, overflow = b.AddBlock(2048, 2048)
	require.False(t, overflow)

	for i := 0; i < 200; i++ {
		size := uintptr(16) << uint(rng.Intn(6))
		addr, ok := b.RemoveBlock(size)
		if !ok {
			continue
		}
		require.Zero(t, addr%size)
		_, overflow := b.AddBlock(addr, size)
		require.False(t, overflow)
	}
}

func TestContainsBytesInvariant(t *testing.T) {
	b := newTestBuddy(t, 4, 11, 1024)
	require.Zero(t, b.ContainsBytes())

	_, overflow := b.AddBlock(0, 512)
	require.False(t, overflow)
	require.Equal(t, uintptr(512), b.ContainsBytes())

	_, overflow = b.AddBlock(512, 512)
	require.False(t, overflow)
	require.Equal(t, uintptr(1024), b.ContainsBytes())

	addr, ok := b.RemoveBlock(256)
	require.True(t, ok)
	require.Equal(t, uintptr(1024-256), b.ContainsBytes())
	_, overflow = b.AddBlock(addr, 256)
	require.False(t, overflow)
	require.Equal(t, uintptr(1024), b.ContainsBytes())
}

// Promotion/demotion through the two-slot inline cache (spec.md §4.1):
// insert three same-index blocks that never consolidate (different
// regions), forcing tree promotion, then remove back down to 2. None of
// them is at address 0, which the tree uses as its null node.
func TestEntryPromotionAndDemotion(t *testing.T) {
	pm := pagemap.New(4)
	require.NoError(t, pm.RegisterRange(768, 16))
	require.NoError(t, pm.RegisterRange(256, 16))
	require.NoError(t, pm.RegisterRange(512, 16))
	b := New(pm, 4, 10)

	_, overflow := b.AddBlock(768, 16)
	require.False(t, overflow)
	_, overflow = b.AddBlock(256, 16)
	require.False(t, overflow)
	idx := b.indexOf(16)
	require.False(t, b.entries[idx].treeActive)

	_, overflow = b.AddBlock(512, 16)
	require.False(t, overflow)
	require.True(t, b.entries[idx].treeActive)
	require.Equal(t, 3, b.entries[idx].treeCount)

	require.True(t, b.entries[idx].remove(256))
	require.False(t, b.entries[idx].treeActive)
	require.Equal(t, 2, b.entries[idx].nslots)
}
