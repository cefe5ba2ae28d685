// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ranges

import "github.com/rs/zerolog"

// LogRange wraps a parent range with structured, leveled logging of
// every alloc_range/dealloc_range call, sized and keyed by address
// (spec.md §4.9, expanded). It is typically the outermost layer in a
// debug-build pipeline, and a no-op cost in release builds when Log is
// set to zerolog.Nop().
type LogRange[P Range] struct {
	Parent P
	Log    zerolog.Logger
}

func (r LogRange[P]) AllocRange(spec SizeSpec) (Block, bool) {
	blk, ok := r.Parent.AllocRange(spec)
	ev := r.Log.Debug().
		Uint64("desired", uint64(spec.Desired)).
		Uint64("required", uint64(spec.Required)).
		Bool("ok", ok)
	if ok {
		ev = ev.Uint64("base", uint64(blk.Base)).Uint64("length", uint64(blk.Length))
	}
	ev.Msg("alloc_range")
	return blk, ok
}

func (r LogRange[P]) DeallocRange(base, size uintptr, force bool) bool {
	ok := r.Parent.DeallocRange(base, size, force)
	r.Log.Debug().
		Uint64("base", uint64(base)).
		Uint64("size", uint64(size)).
		Bool("force", force).
		Bool("accepted", ok).
		Msg("dealloc_range")
	return ok
}

func (r LogRange[P]) Flush() {
	r.Log.Debug().Msg("flush")
	r.Parent.Flush()
}

func (r LogRange[P]) Aligned() bool         { return r.Parent.Aligned() }
func (r LogRange[P]) ConcurrencySafe() bool { return r.Parent.ConcurrencySafe() }
