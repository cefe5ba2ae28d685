// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sizeclass

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSizeMonotonic(t *testing.T) {
	for i := 1; i < NumSmallSizeclasses; i++ {
		require.GreaterOrEqual(t, Size(i), Size(i-1))
	}
}

func TestOfRoundsUp(t *testing.T) {
	class, ok := Of(1)
	require.True(t, ok)
	require.GreaterOrEqual(t, Size(class), uintptr(1))

	class, ok = Of(17)
	require.True(t, ok)
	require.GreaterOrEqual(t, Size(class), uintptr(17))
}

func TestOfRejectsOversized(t *testing.T) {
	_, ok := Of(Size(NumSmallSizeclasses-1) + 1)
	require.False(t, ok)
}
