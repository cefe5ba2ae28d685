// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ranges

import "github.com/cznic/allocore/pal"

// CommitRange commits pages on alloc and decommits them on dealloc,
// sitting directly above whichever layer actually owns address space
// (spec.md §4.3). Sizes must be page-size multiples; this is the
// caller's responsibility (the buddy/chunk granularity above this layer
// is always >= the PAL's page size).
type CommitRange[P Range] struct {
	Parent P
	PAL    pal.PAL
}

func (r CommitRange[P]) AllocRange(spec SizeSpec) (Block, bool) {
	blk, ok := r.Parent.AllocRange(spec)
	if !ok {
		return Block{}, false
	}
	if err := r.PAL.NotifyUsing(blk.Base, blk.Length); err != nil {
		r.Parent.DeallocRange(blk.Base, blk.Length, true)
		return Block{}, false
	}
	return blk, true
}

func (r CommitRange[P]) DeallocRange(base, size uintptr, force bool) bool {
	if err := r.PAL.NotifyNotUsing(base, size); err != nil {
		// Decommit failed; nothing was handed to the parent, so there is
		// nothing to re-commit, but the dealloc itself did not happen.
		return false
	}
	if !r.Parent.DeallocRange(base, size, force) {
		// Parent refused: recommit so the range remains valid and
		// propagate the refusal (spec.md §4.3).
		if err := r.PAL.NotifyUsing(base, size); err != nil {
			pal.Abort(r.PAL, err.Error())
		}
		return false
	}
	return true
}

func (r CommitRange[P]) Flush() { r.Parent.Flush() }

func (r CommitRange[P]) Aligned() bool         { return r.Parent.Aligned() }
func (r CommitRange[P]) ConcurrencySafe() bool { return r.Parent.ConcurrencySafe() }
