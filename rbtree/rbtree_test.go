// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rbtree

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cznic/allocore/pagemap"
)

// newTestTree registers n chunk-aligned addresses starting at chunk
// index 1 (0 is reserved as the tree's null sentinel) and returns the
// tree plus the address list in registration order.
func newTestTree(t *testing.T, n int) (*Tree, []uintptr) {
	t.Helper()
	pm := pagemap.New(4) // 16-byte chunks, matching the buddy package's synthetic tests
	cs := pm.ChunkSize()
	addrs := make([]uintptr, n)
	for i := 0; i < n; i++ {
		addr := uintptr(i+1) * cs
		require.NoError(t, pm.RegisterRange(addr, cs))
		addrs[i] = addr
	}
	return &Tree{PM: pm}, addrs
}

func TestEmptyTree(t *testing.T) {
	tr, _ := newTestTree(t, 0)
	require.True(t, tr.Empty())
	require.False(t, tr.Contains(16))
	require.Zero(t, tr.Min())
	require.Zero(t, tr.Max())
	require.Zero(t, tr.RemoveMin())
	require.Zero(t, tr.RemoveMax())
}

func TestInsertContains(t *testing.T) {
	tr, addrs := newTestTree(t, 20)
	rng := rand.New(rand.NewSource(2))
	shuffled := append([]uintptr(nil), addrs...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	for _, a := range shuffled {
		tr.Insert(a)
	}
	require.False(t, tr.Empty())
	for _, a := range addrs {
		require.True(t, tr.Contains(a))
	}
}

func TestMinMax(t *testing.T) {
	tr, addrs := newTestTree(t, 10)
	for _, a := range addrs {
		tr.Insert(a)
	}
	require.Equal(t, addrs[0], tr.Min())
	require.Equal(t, addrs[len(addrs)-1], tr.Max())
}

func TestWalkIsSorted(t *testing.T) {
	tr, addrs := newTestTree(t, 30)
	rng := rand.New(rand.NewSource(3))
	shuffled := append([]uintptr(nil), addrs...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	for _, a := range shuffled {
		tr.Insert(a)
	}

	var walked []uintptr
	tr.Walk(func(addr uintptr) { walked = append(walked, addr) })
	require.True(t, sort.SliceIsSorted(walked, func(i, j int) bool { return walked[i] < walked[j] }))
	require.ElementsMatch(t, addrs, walked)
}

func TestRemoveMinDrainsInOrder(t *testing.T) {
	tr, addrs := newTestTree(t, 15)
	for _, a := range addrs {
		tr.Insert(a)
	}
	for _, want := range addrs {
		got := tr.RemoveMin()
		require.Equal(t, want, got)
	}
	require.True(t, tr.Empty())
}

func TestRemoveMaxDrainsInOrder(t *testing.T) {
	tr, addrs := newTestTree(t, 15)
	for _, a := range addrs {
		tr.Insert(a)
	}
	for i := len(addrs) - 1; i >= 0; i-- {
		got := tr.RemoveMax()
		require.Equal(t, addrs[i], got)
	}
	require.True(t, tr.Empty())
}

func TestRemoveArbitrary(t *testing.T) {
	tr, addrs := newTestTree(t, 25)
	for _, a := range addrs {
		tr.Insert(a)
	}

	rng := rand.New(rand.NewSource(4))
	removed := make(map[uintptr]bool)
	order := append([]uintptr(nil), addrs...)
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	for i, a := range order {
		tr.Remove(a)
		removed[a] = true
		for _, check := range addrs {
			want := !removed[check]
			require.Equal(t, want, tr.Contains(check), "after removing %d entries", i+1)
		}
	}
	require.True(t, tr.Empty())
}

func TestRemoveNonexistentIsNoop(t *testing.T) {
	tr, addrs := newTestTree(t, 5)
	for _, a := range addrs[:3] {
		tr.Insert(a)
	}
	tr.Remove(addrs[4]) // never inserted
	require.True(t, tr.Contains(addrs[0]))
	require.True(t, tr.Contains(addrs[1]))
	require.True(t, tr.Contains(addrs[2]))
}

// No node may have two consecutive red links on a left-leaning path
// (the core LLRB shape invariant); checked after a large randomized
// insert/remove sequence.
func TestNoRedRedViolation(t *testing.T) {
	tr, addrs := newTestTree(t, 50)
	rng := rand.New(rand.NewSource(5))
	shuffled := append([]uintptr(nil), addrs...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	for _, a := range shuffled {
		tr.Insert(a)
	}
	for i := 0; i < 20; i++ {
		tr.Remove(shuffled[i])
	}

	var check func(h uintptr)
	check = func(h uintptr) {
		if h == 0 {
			return
		}
		node := tr.handle(h)
		if tr.isRed(h) && tr.isRed(node.right()) {
			t.Fatalf("right-leaning red link at %#x", h)
		}
		if tr.isRed(node.left()) && tr.isRed(tr.handle(node.left()).left()) {
			t.Fatalf("two consecutive left red links at %#x", h)
		}
		check(node.left())
		check(node.right())
	}
	check(tr.Root)
	require.False(t, tr.isRed(tr.Root))
}
