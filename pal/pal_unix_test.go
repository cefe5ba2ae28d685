// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build darwin || dragonfly || freebsd || linux || openbsd || netbsd || solaris

package pal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnixReserveCommitDecommit(t *testing.T) {
	u := NewUnix()
	size := 4 * u.PageSize()

	base, err := u.Reserve(size)
	require.NoError(t, err)
	require.NotZero(t, base)

	require.NoError(t, u.NotifyUsing(base, size))
	b := sliceOf(base, size)
	b[0] = 0xAB
	b[size-1] = 0xCD
	require.Equal(t, byte(0xAB), b[0])

	require.NoError(t, u.NotifyNotUsing(base, size))
	require.NoError(t, u.release(base, size))
}

func TestUnixReserveAligned(t *testing.T) {
	u := NewUnix()
	size := 16 * u.PageSize()

	base, err := u.ReserveAligned(size)
	require.NoError(t, err)
	require.Zero(t, base%size)

	require.NoError(t, u.NotifyUsing(base, size))
	require.NoError(t, u.NotifyNotUsing(base, size))
	require.NoError(t, u.release(base, size))
}

func TestUnixZero(t *testing.T) {
	u := NewUnix()
	size := u.PageSize()
	base, err := u.Reserve(size)
	require.NoError(t, err)
	require.NoError(t, u.NotifyUsing(base, size))

	b := sliceOf(base, size)
	for i := range b {
		b[i] = 0xFF
	}
	u.Zero(base, size)
	for _, v := range b {
		require.Zero(t, v)
	}
	require.NoError(t, u.release(base, size))
}
