// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ranges

import "github.com/cznic/allocore/pagemap"

// PagemapRegisterRange wraps a parent range and registers every block it
// hands back with the pagemap, so later layers (LargeBuddyRange's Buddy,
// via package rbtree) can touch the block's metadata entry immediately.
type PagemapRegisterRange[P Range] struct {
	Parent P
	PM     *pagemap.Pagemap
}

func (r PagemapRegisterRange[P]) AllocRange(spec SizeSpec) (Block, bool) {
	blk, ok := r.Parent.AllocRange(spec)
	if !ok {
		return Block{}, false
	}
	if err := r.PM.RegisterRange(blk.Base, blk.Length); err != nil {
		// The parent already committed address space we can no longer
		// track; give it back and fail the request upward.
		r.Parent.DeallocRange(blk.Base, blk.Length, true)
		return Block{}, false
	}
	return blk, true
}

func (r PagemapRegisterRange[P]) DeallocRange(base, size uintptr, force bool) bool {
	return r.Parent.DeallocRange(base, size, force)
}

func (r PagemapRegisterRange[P]) Flush() { r.Parent.Flush() }

func (r PagemapRegisterRange[P]) Aligned() bool         { return r.Parent.Aligned() }
func (r PagemapRegisterRange[P]) ConcurrencySafe() bool { return r.Parent.ConcurrencySafe() }
