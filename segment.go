// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Segment layout and the segment registry (§3.2, §4.3). A segment is an
// arena-block-aligned chunk carrying a header (the segment struct itself,
// kept in Go-managed memory rather than inline in the mapped region) plus
// an array of pages.
//
// Pointer recovery generalizes the teacher's h_spans: mheap.grow installs
// one flat array indexed by page number within a single contiguous
// arena_start..arena_used range (mheap.go's h_spans[i] = s). Since our
// arenas are plural and independently sized, we keep a map keyed by the
// arena-block-aligned address instead, with one entry per arena block the
// segment spans -- still an O(1) lookup, just over a table instead of a
// flat array.

package mimalloc

import (
	"sync"
	"sync/atomic"

	uatomic "go.uber.org/atomic"
)

type segmentKind uint8

const (
	segSmall segmentKind = iota
	segMedium
	segLarge
	segHuge
)

func (k segmentKind) String() string {
	switch k {
	case segSmall:
		return "small"
	case segMedium:
		return "medium"
	case segLarge:
		return "large"
	default:
		return "huge"
	}
}

// segment is the owner of a run of pages. ownerID is 0 when abandoned
// (§3.2); a live segment's ownerID is its owning heap's id.
type segment struct {
	base      uintptr
	bytes     uintptr
	kind      segmentKind
	pageShift uint
	pageCount int
	pages     []page

	// usedPages is read far more often (every generic-routine pass checks
	// it) than it's written, the case SPEC_FULL's domain stack calls out
	// for the go.uber.org/atomic wrapper rather than raw sync/atomic.
	usedPages uatomic.Int32
	ownerID   uint64 // atomic, 0 = abandoned; CAS-heavy, stays on sync/atomic

	arenaBase   uintptr // 0 if OS-owned (bypassed arena tracking)
	arenaBlocks int
	osOwned     bool
}

func pageShiftFor(pageBytes uintptr) uint {
	shift := uint(0)
	for (uintptr(1) << shift) < pageBytes {
		shift++
	}
	return shift
}

// newSegment reserves and lays out a fresh segment of the given kind,
// claiming its backing memory from table (the arena layer) or, if every
// arena declines, directly from the OS.
func newSegment(table *arenaTable, ownerID uint64, kind segmentKind, requestBytes uintptr) (*segment, error) {
	var segBytes uintptr
	var pageCount int
	var pageShift uint

	switch kind {
	case segSmall:
		segBytes, pageCount, pageShift = segmentBytes, smallPagesPerSegment, pageShiftFor(smallPageBytes)
	case segMedium:
		segBytes, pageCount, pageShift = segmentBytes, mediumPagesPerSegment, pageShiftFor(mediumPageBytes)
	case segLarge:
		segBytes = roundUp(requestBytes, smallPageBytes)
		if segBytes > segmentBytes {
			segBytes = segmentBytes
		}
		pageCount = 1
		pageShift = pageShiftFor(segBytes)
	default: // segHuge
		segBytes = roundUp(requestBytes, arenaBlockBytes)
		pageCount = 1
		pageShift = pageShiftFor(segBytes)
	}

	blocks := int((segBytes + arenaBlockBytes - 1) / arenaBlockBytes)
	if blocks < 1 {
		blocks = 1
	}

	ptr, memid, err := table.allocateSegment(blocks, table.allowLarge)
	if err != nil {
		return nil, err
	}

	s := &segment{
		base:      ptr,
		bytes:     segBytes,
		kind:      kind,
		pageShift: pageShift,
		pageCount: pageCount,
		pages:     make([]page, pageCount),
		ownerID:   ownerID,
		osOwned:   memid.OSOwned,
	}
	if !memid.OSOwned {
		s.arenaBase = ptr
		s.arenaBlocks = blocks
	}
	slotBytes := segBytes / uintptr(pageCount)
	for i := range s.pages {
		s.pages[i].segment = s
		s.pages[i].slotBytes = slotBytes
		s.pages[i].areaStart = s.base + uintptr(i)*slotBytes
	}
	if table.metrics != nil {
		table.metrics.SegmentsCreated.Inc()
	}
	return s, nil
}

// pageIndex returns the index into s.pages that owns ptr.
func (s *segment) pageIndex(ptr uintptr) int {
	if s.pageCount == 1 {
		return 0
	}
	return int((ptr - s.base) >> s.pageShift)
}

// segmentRegistry is the process-wide pointer-to-segment map, generalizing
// h_spans (see file doc comment above).
type segmentRegistry struct {
	mu sync.RWMutex
	m  map[uintptr]*segment
}

func newSegmentRegistry() *segmentRegistry {
	return &segmentRegistry{m: make(map[uintptr]*segment)}
}

func blockKeyOf(ptr uintptr) uintptr { return ptr &^ (arenaBlockBytes - 1) }

func (r *segmentRegistry) register(s *segment) {
	blocks := int((s.bytes + arenaBlockBytes - 1) / arenaBlockBytes)
	if blocks < 1 {
		blocks = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < blocks; i++ {
		r.m[s.base+uintptr(i)*arenaBlockBytes] = s
	}
}

func (r *segmentRegistry) unregister(s *segment) {
	blocks := int((s.bytes + arenaBlockBytes - 1) / arenaBlockBytes)
	if blocks < 1 {
		blocks = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < blocks; i++ {
		delete(r.m, s.base+uintptr(i)*arenaBlockBytes)
	}
}

// lookup recovers the segment owning ptr in O(1), or nil if no registered
// segment covers ptr's arena block (§7's "invalid pointer" edge case).
func (r *segmentRegistry) lookup(ptr uintptr) *segment {
	r.mu.RLock()
	s := r.m[blockKeyOf(ptr)]
	r.mu.RUnlock()
	return s
}

func (s *segment) incUsed()         { s.usedPages.Inc() }
func (s *segment) decUsed() int32   { return s.usedPages.Dec() }
func (s *segment) usedCount() int32 { return s.usedPages.Load() }

func (s *segment) owner() uint64 { return atomic.LoadUint64(&s.ownerID) }

// tryClaimOwnership performs the CAS §4.7 describes for adopting an
// abandoned segment: owner 0 -> newOwner.
func (s *segment) tryClaimOwnership(newOwner uint64) bool {
	return atomic.CompareAndSwapUint64(&s.ownerID, 0, newOwner)
}

// markAbandoned clears ownership so the segment becomes reclaimable.
func (s *segment) markAbandoned() {
	atomic.StoreUint64(&s.ownerID, 0)
}
