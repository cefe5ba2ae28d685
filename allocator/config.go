// Copyright 2024 The Allocore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocator

import (
	"github.com/rs/zerolog"

	"github.com/cznic/allocore/pagemap"
	"github.com/cznic/allocore/pal"
)

// Config configures a New Allocator. Nothing in the retrieved corpus
// reaches for a config-file or environment-variable library for a
// package of this size and shape (spec.md's ambient stack notes),
// so functional options over a plain struct, in the style of
// cznic-memory's constructor functions, are used instead.
type Config struct {
	PAL pal.PAL

	// MinChunkBits is MIN_CHUNK's log2: both the pagemap's indexing
	// granularity and the chunk size the slab layer carves objects
	// from.
	MinChunkBits uint

	// MaxSizeBits is the buddy allocator's upper size bound's log2;
	// requests at or above this size bypass the buddy entirely.
	MaxSizeBits uint

	// RefillSizeBits/MinRefillSizeBits bound LargeBuddyRange's
	// geometric refill-tier growth (spec.md §4.2).
	RefillSizeBits    uint
	MinRefillSizeBits uint

	// GlobalKey overrides freelist's process-wide signing key if
	// non-zero. Zero leaves the package default in place.
	GlobalKey uintptr

	Logger zerolog.Logger
}

// Option configures a Config field.
type Option func(*Config)

// WithPAL overrides the platform abstraction layer, primarily for
// tests that need a fake PAL rather than the real OS backend.
func WithPAL(p pal.PAL) Option { return func(c *Config) { c.PAL = p } }

// WithLogger sets the zerolog.Logger the backend pipeline's LogRange
// layer writes to. The default is zerolog.Nop(), a zero-cost no-op.
func WithLogger(l zerolog.Logger) Option { return func(c *Config) { c.Logger = l } }

// WithSizeLimits overrides the buddy allocator's chunk/refill size
// bounds.
func WithSizeLimits(minChunkBits, maxSizeBits, refillSizeBits, minRefillSizeBits uint) Option {
	return func(c *Config) {
		c.MinChunkBits = minChunkBits
		c.MaxSizeBits = maxSizeBits
		c.RefillSizeBits = refillSizeBits
		c.MinRefillSizeBits = minRefillSizeBits
	}
}

// WithGlobalKey overrides the free-list signing key used process-wide.
// Production code should call this once at startup with a value from a
// real entropy source; the default is a fixed constant suitable only
// for tests and development.
func WithGlobalKey(key uintptr) Option {
	return func(c *Config) { c.GlobalKey = key }
}

func defaultConfig() Config {
	return Config{
		PAL:               pal.New(),
		MinChunkBits:      pagemap.DefaultChunkBits,
		MaxSizeBits:       34,
		RefillSizeBits:    24,
		MinRefillSizeBits: pagemap.DefaultChunkBits,
		Logger:            zerolog.Nop(),
	}
}
