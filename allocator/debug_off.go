// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !allocore_debug

package allocator

// checkInvariant is a no-op in release builds; see debug_on.go.
func checkInvariant(large largeBackend) { _ = large }
