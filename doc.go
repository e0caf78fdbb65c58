// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mimalloc implements a three-level, thread-caching small object
// allocator: a per-thread heap on top of thread-owned segments on top of
// a shared, bitmap-tracked arena layer.
//
// Heap, segment and page mirror the shape of the Go runtime's own
// mcache/mheap/mspan split: a heap holds, per size class, a queue of
// pages with free capacity plus a direct lookup table for the smallest
// classes; a segment is a size-aligned run of pages owned by one thread
// at a time; a page carries three free lists (free, localFree,
// threadFree) so that the owning thread's fast path never touches an
// atomic instruction. See page.go for the sharding rationale.
//
// Arenas replace the teacher's single contiguous arena_start..arena_end
// range with a table of independently-sized, bitmap-tracked reservations,
// generalizing h_spans into a segment registry keyed by aligned base
// address (see segment.go).
package mimalloc
