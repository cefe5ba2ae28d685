// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocator

import "fmt"

// Kind classifies the error conditions spec.md §7 names.
type Kind int

const (
	// ErrOutOfAddressSpace means the PAL returned null; it propagates as
	// an ordinary allocation failure to the public API.
	ErrOutOfAddressSpace Kind = iota + 1

	// ErrPagemapRegistration means a newly obtained range could not be
	// registered with the pagemap.
	ErrPagemapRegistration

	// ErrHeapCorruption means a free-list integrity check failed: a
	// decoded next-pointer crossed a slab boundary. This kind is never
	// returned to a caller — see the Error type's doc.
	ErrHeapCorruption
)

func (k Kind) String() string {
	switch k {
	case ErrOutOfAddressSpace:
		return "out of address space"
	case ErrPagemapRegistration:
		return "pagemap registration failure"
	case ErrHeapCorruption:
		return "heap corruption"
	default:
		return fmt.Sprintf("unknown error kind %d", int(k))
	}
}

// Error is allocore's typed-kind error (spec.md §7). ErrHeapCorruption is
// constructed only on the path from freelist.OnCorruption into
// pal.PAL.Error, immediately before a panic that is never recovered from
// — callers never receive an *Error of that kind through a normal return.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("allocore: %s", e.Kind)
	}
	return fmt.Sprintf("allocore: %s: %s", e.Kind, e.Msg)
}

// Is supports errors.Is(err, allocator.ErrX) style checks against a
// sentinel constructed with just a Kind set.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}
