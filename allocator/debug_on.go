// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build allocore_debug

package allocator

import "fmt"

// checkInvariant verifies spec.md §7/§8 property 2:
// requestedTotal == providedTotal + containsBytes. Builds with the
// allocore_debug tag pay this cost on every Malloc/Free; release builds
// compile it out entirely (see debug_off.go).
func checkInvariant(large largeBackend) {
	requested := large.RequestedTotal()
	provided := large.ProvidedTotal()
	contains := large.ContainsBytes()
	if requested != provided+contains {
		panic(fmt.Sprintf(
			"allocore: invariant violated: requested_total=%d provided_total=%d contains_bytes=%d",
			requested, provided, contains))
	}
}
