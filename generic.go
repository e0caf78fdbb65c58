// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The generic (slow-path) routine (§4.2) and the free dispatch it shares
// with the public API: deferred-free callback, thread-delayed-free
// drain, page reclamation/collection, fresh-page/segment acquisition,
// and direct-table refresh. Grounded on the teacher's mcache_refill /
// mcentral.cacheSpan shape (central free lists handing the per-P cache a
// fresh span when its local free list runs dry), generalized to our
// three-list-per-page design.

package mimalloc

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/the-die/mimalloc/platform"
)

// genericAlloc is entered whenever the fast path finds an empty (or
// sentinel) page. It amortizes housekeeping across many allocations.
func (h *Heap) genericAlloc(n uintptr) (uintptr, error) {
	if fn := h.deferredFree; fn != nil {
		// Unset while it runs, so an allocation made from inside the
		// callback does not invoke it again.
		h.deferredFree = nil
		fn() // step 1
		h.deferredFree = fn
	}
	h.drainDelayedFree()      // step 2
	h.eng.table.tryPurgeAll() // opportunistic decommit of expired ranges, §4.6

	if n > mediumClassLimit {
		return h.allocLargeOrHuge(n)
	}

	sc := sizeClassFor(n)
	blockSize := classBlockSize(sc)
	q := &h.queues[sc]

	// step 3: page reclamation -- fold thread_free/local_free back into
	// free for every page already queued for this class.
	for p := q.first; p != nil; {
		next := p.next
		p.collect()
		if p.used == 0 {
			q.remove(p)
			h.clearPagesDirect(p)
			p.assigned = false
			if seg := p.segment; seg.decUsed() == 0 {
				h.releaseSegment(seg)
			}
		} else if !p.isFull() {
			ptr, ok := p.fastAlloc()
			if ok {
				h.updatePagesDirect(sc, p)
				return ptr, nil
			}
		}
		p = next
	}

	// step 4: fresh page, possibly from a reclaimed abandoned segment,
	// possibly from a brand new segment.
	p, err := h.acquirePage(sc, blockSize)
	if err != nil {
		return 0, err
	}
	ptr, ok := p.fastAlloc()
	if !ok {
		return 0, errors.Wrap(ErrOutOfMemory, "freshly acquired page reports full")
	}

	// step 5: direct table refresh.
	h.updatePagesDirect(sc, p)
	return ptr, nil
}

// drainDelayedFree walks this heap's thread-delayed-free list and routes
// each block through the normal free dispatch (§4.2 step 2, §4.4).
func (h *Heap) drainDelayedFree() {
	node := h.delayedFree
	h.delayedFree = nil
	for node != nil {
		next := node.next
		_ = h.freeBlock(node.addr())
		node = next
	}
}

// acquirePage finds a page to serve size class sc: first by trying to
// reclaim an abandoned segment and reintegrate its pages, then by
// carving a fresh page out of the heap's current segment (creating one
// if needed).
func (h *Heap) acquirePage(sc uint8, blockSize uintptr) (*page, error) {
	if seg, ok := reclaimOne(h.eng.table, h.eng.registry, h.id, h.rng); ok {
		h.owned[seg] = struct{}{}
		h.reintegrateSegment(seg)
		if p := h.queues[sc].first; p != nil && !p.isFull() {
			return p, nil
		}
	}

	kind := segSmall
	cur := &h.curSmallSeg
	if classifySize(blockSize) == categoryMedium {
		kind = segMedium
		cur = &h.curMediumSeg
	}

	if *cur != nil {
		if p, ok := findFreeSlot(*cur); ok {
			p.initPage(sc, blockSize)
			h.queues[sc].pushFront(p)
			(*cur).incUsed()
			return p, nil
		}
	}

	seg, err := newSegment(h.eng.table, h.id, kind, 0)
	if err != nil {
		return nil, err
	}
	h.eng.registry.register(seg)
	h.owned[seg] = struct{}{}
	*cur = seg

	p, ok := findFreeSlot(seg)
	if !ok {
		return nil, errors.New("mimalloc: freshly created segment has no free page slot")
	}
	p.initPage(sc, blockSize)
	h.queues[sc].pushFront(p)
	seg.incUsed()
	return p, nil
}

// findFreeSlot returns the first not-yet-assigned (or fully retired)
// page slot in seg.
func findFreeSlot(seg *segment) (*page, bool) {
	for i := range seg.pages {
		if !seg.pages[i].assigned {
			return &seg.pages[i], true
		}
	}
	return nil, false
}

// reintegrateSegment folds every still-assigned page of a freshly
// reclaimed segment that still holds live blocks (full or not) back into
// this heap's queues, retiring the ones left empty (§4.7: adopted
// segments re-enter the size-class queues of their new owner).
func (h *Heap) reintegrateSegment(seg *segment) {
	if seg.osOwned {
		// A reclaimed large/huge OS-owned segment has exactly one
		// assigned page and no queue membership; nothing to reintegrate.
		return
	}
	for i := range seg.pages {
		p := &seg.pages[i]
		if !p.assigned {
			continue
		}
		p.collect()
		if p.used == 0 {
			p.assigned = false
			continue
		}
		h.queues[p.sizeClass].pushFront(p)
	}
}

// allocLargeOrHuge serves requests above mediumClassLimit: a dedicated
// segment sized to fit exactly one block (§3.1's large/huge categories).
func (h *Heap) allocLargeOrHuge(n uintptr) (uintptr, error) {
	kind := segLarge
	if classifySize(n) == categoryHuge {
		kind = segHuge
	}
	seg, err := newSegment(h.eng.table, h.id, kind, n)
	if err != nil {
		return 0, err
	}
	h.eng.registry.register(seg)
	h.owned[seg] = struct{}{}

	p := &seg.pages[0]
	p.initPage(0, p.slotBytes)
	seg.incUsed()

	ptr, ok := p.fastAlloc()
	if !ok {
		return 0, errors.Wrap(ErrOutOfMemory, "large/huge segment carve failed")
	}
	return ptr, nil
}

// freeBlock is the shared dispatch for every public Free call: recover
// the owning segment/page in O(1), then route to the owner or foreign
// free contract (§4.1).
func (h *Heap) freeBlock(ptr uintptr) error {
	seg := h.eng.registry.lookup(ptr)
	if seg == nil {
		return ErrInvalidPointer
	}
	idx := seg.pageIndex(ptr)
	if idx < 0 || idx >= len(seg.pages) {
		return ErrInvalidPointer
	}
	p := &seg.pages[idx]
	if !p.assigned {
		return ErrInvalidPointer
	}

	if p.capacity == 1 && p.sizeClass == 0 {
		// Large/huge: a page holds exactly one live block, so freeing it
		// always retires the whole segment, regardless of which thread
		// calls Free.
		if !atomic.CompareAndSwapInt32(&p.freedOnce, 0, 1) {
			return errors.Wrap(ErrDoubleFree, "large/huge block")
		}
		return h.releaseSegment(seg)
	}

	if seg.owner() == h.id {
		if p.ownerFree(ptr) {
			h.retirePage(seg, p)
		}
		return nil
	}
	p.foreignFree(ptr)
	return nil
}

// retirePage folds a just-emptied page's lists back in immediately
// (rather than waiting for the next generic pass -- we're already on the
// owning goroutine's stack, so there's no reason to defer the little
// bit of remaining work) and releases the segment if it was the last
// live page.
func (h *Heap) retirePage(seg *segment, p *page) {
	p.collect()
	if p.used != 0 {
		return // a thread_free arrived between the emptiness check and now
	}
	h.queues[p.sizeClass].remove(p)
	h.clearPagesDirect(p)
	p.assigned = false
	if seg.decUsed() == 0 {
		_ = h.releaseSegment(seg)
	}
}

// releaseSegment returns a fully-empty segment to its arena (scheduling
// delayed decommit) or, for an OS-owned segment, frees it directly.
func (h *Heap) releaseSegment(seg *segment) error {
	delete(h.owned, seg)
	h.eng.registry.unregister(seg)
	if h.curSmallSeg == seg {
		h.curSmallSeg = nil
	}
	if h.curMediumSeg == seg {
		h.curMediumSeg = nil
	}
	if seg.osOwned {
		return h.eng.table.mem.Free(seg.base, seg.bytes, platform.MemID{OSOwned: true})
	}
	if !h.eng.table.releaseSegment(seg.base, seg.arenaBlocks) {
		return errors.Wrap(ErrInvalidPointer, "segment not found in any arena")
	}
	return nil
}

// Close implements thread-exit teardown (§5): the delayed-free list is
// drained first (which can retire pages and release segments that become
// empty), then every segment this heap still owns is marked abandoned,
// not freed, so another heap can adopt it later via reclaimOne. The Heap
// value itself may still be reused afterwards (§5: "the heap structure
// itself may be reused").
func (h *Heap) Close() {
	h.drainDelayedFree()
	for seg := range h.owned {
		abandonSegment(h.eng.table, seg)
		delete(h.owned, seg)
	}
	h.curSmallSeg = nil
	h.curMediumSeg = nil
}
