// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build windows

package pal

// New constructs the PAL backend for the current platform.
func New() PAL { return NewWindows() }
