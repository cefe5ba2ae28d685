// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cznic/allocore/freelist"
	"github.com/cznic/allocore/slab"
)

func newTestAllocator(t *testing.T) *Allocator {
	t.Helper()
	return New(
		WithPAL(newFakePAL()),
		WithSizeLimits(12, 24, 16, 12),
		WithGlobalKey(0x1234567890ABCDEF),
	)
}

func TestMallocFreeRoundTrip(t *testing.T) {
	a := newTestAllocator(t)
	tc := a.NewThreadCache(1)

	addr, ok := tc.Malloc(32)
	require.True(t, ok)
	require.NotZero(t, addr)

	require.NoError(t, tc.Free(32, addr))
}

func TestMallocLIFOReuse(t *testing.T) {
	a := newTestAllocator(t)
	tc := a.NewThreadCache(2)

	first, ok := tc.Malloc(16)
	require.True(t, ok)
	second, ok := tc.Malloc(16)
	require.True(t, ok)
	require.NotEqual(t, first, second)

	require.NoError(t, tc.Free(16, first))
	require.NoError(t, tc.Free(16, second))

	reused, ok := tc.Malloc(16)
	require.True(t, ok)
	require.Equal(t, second, reused, "most recently freed object must come back first")
}

func TestMallocRejectsOversizedRequest(t *testing.T) {
	a := newTestAllocator(t)
	tc := a.NewThreadCache(3)

	huge := uintptr(1) << 40
	_, ok := tc.Malloc(huge)
	require.False(t, ok)
}

func TestManyAllocationsAcrossSizeclasses(t *testing.T) {
	a := newTestAllocator(t)
	tc := a.NewThreadCache(4)

	sizes := []uintptr{16, 32, 48, 64, 128, 256}
	var addrs []uintptr
	for _, s := range sizes {
		for i := 0; i < 50; i++ {
			addr, ok := tc.Malloc(s)
			require.True(t, ok)
			addrs = append(addrs, addr)
		}
	}

	seen := make(map[uintptr]bool)
	for _, a := range addrs {
		require.False(t, seen[a], "allocator handed out the same address twice while both were live")
		seen[a] = true
	}
}

func TestFlushReturnsResourcesToBackend(t *testing.T) {
	a := newTestAllocator(t)
	tc := a.NewThreadCache(5)

	for i := 0; i < 20; i++ {
		addr, ok := tc.Malloc(32)
		require.True(t, ok)
		require.NoError(t, tc.Free(32, addr))
	}

	a.Flush()

	requested, provided, _, _ := a.Stats()
	require.Zero(t, provided, "every allocated byte was freed before Flush")
	_ = requested
}

func TestRemoteFreeRoutesThroughPostedQueue(t *testing.T) {
	a1 := newTestAllocator(t)
	a2 := newTestAllocator(t)

	tc1 := a1.NewThreadCache(10)
	tc2 := a2.NewThreadCache(20)

	addr, ok := tc1.Malloc(32)
	require.True(t, ok)

	tc2.FreeRemote(a1.TruncID(), addr)

	var postedTo []slab.TruncID
	var postedCount int
	tc2.Flush(func(uintptr) {}, func(dest slab.TruncID, it freelist.Iter) {
		postedTo = append(postedTo, dest)
		for !it.Empty() {
			it.Take()
			postedCount++
		}
	})

	require.Equal(t, []slab.TruncID{a1.TruncID()}, postedTo)
	require.Equal(t, 1, postedCount)
}

func TestErrorKindMessages(t *testing.T) {
	err := newError(ErrOutOfAddressSpace, "reserve %d bytes", 4096)
	require.Equal(t, "allocore: out of address space: reserve 4096 bytes", err.Error())

	sentinel := &Error{Kind: ErrOutOfAddressSpace}
	require.True(t, errors.Is(err, sentinel))

	other := &Error{Kind: ErrHeapCorruption}
	require.False(t, errors.Is(err, other))
}
