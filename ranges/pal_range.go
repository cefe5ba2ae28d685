// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ranges

import "github.com/cznic/allocore/pal"

// PalRange is the bottom of the pipeline: it asks the PAL directly for
// address space. It always returns naturally aligned blocks (it uses
// ReserveAligned) and is safe for concurrent use, since every PAL
// backend's Reserve/Release calls are independently safe OS calls.
type PalRange struct {
	PAL pal.PAL
}

func (r PalRange) AllocRange(spec SizeSpec) (Block, bool) {
	size := nextPow2(spec.Required)
	if size < spec.Required {
		return Block{}, false
	}
	base, err := r.PAL.ReserveAligned(size)
	if err != nil || base == 0 {
		return Block{}, false
	}
	return Block{Base: base, Length: size}, true
}

func (r PalRange) DeallocRange(base, size uintptr, force bool) bool {
	// Releasing address space back to the OS always succeeds or panics
	// via the PAL's fatal path; there is no contention to refuse on, so
	// force is irrelevant at this layer.
	if err := r.PAL.Release(base, size); err != nil {
		pal.Abort(r.PAL, err.Error())
	}
	return true
}

func (r PalRange) Flush() {}

func (r PalRange) Aligned() bool         { return true }
func (r PalRange) ConcurrencySafe() bool { return true }
