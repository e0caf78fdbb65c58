// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Abandonment and reclamation (§4.6's abandoned-segment half, §4.7). When
// a heap's owning thread exits, its still-live segments aren't freed --
// they're marked abandoned and left for any other thread's generic
// routine to adopt. Grounded on the teacher's mheap.reclaim (scans spans
// looking for reclaimable work during the generic routine) generalized
// from a single sweep-generation predicate to a random-cursor scan over
// per-arena bitmaps, per §4.7.

package mimalloc

import "math/rand"

// abandonSegment marks s abandoned: owner cleared, and for arena-backed
// segments the segment-start bit set in the owning arena's `abandoned`
// bitmap so other threads can find it. OS-owned segments are tracked only
// by the ownerID CAS (§4.6's "participate via a CAS on owner-thread-id
// alone").
func abandonSegment(table *arenaTable, s *segment) {
	s.markAbandoned()
	if table.metrics != nil {
		table.metrics.SegmentsAbandoned.Inc()
	}
	if s.osOwned {
		table.nonArenaAbandoned.Inc()
		table.mu.Lock()
		table.osOwnedAbandoned = append(table.osOwnedAbandoned, s)
		table.mu.Unlock()
		return
	}
	a := table.arenaContaining(s.arenaBase)
	if a == nil {
		return
	}
	at := a.indexOf(s.arenaBase)
	if at < 0 {
		return
	}
	a.abandoned.setBitsAcross(1, at)
}

// reclaimOne scans arenas for one abandoned segment and adopts it for
// forHeapID, starting from a random arena to spread contention across
// concurrently reclaiming threads (§4.7 step 1). Returns nil, false if
// nothing is currently reclaimable.
func reclaimOne(table *arenaTable, registry *segmentRegistry, forHeapID uint64, rng *rand.Rand) (*segment, bool) {
	table.mu.Lock()
	arenas := make([]*arena, len(table.arenas))
	copy(arenas, table.arenas)
	table.mu.Unlock()

	if len(arenas) > 0 {
		start := rng.Intn(len(arenas))
		for i := 0; i < len(arenas); i++ {
			a := arenas[(start+i)%len(arenas)]
			if seg, ok := reclaimFromArena(a, registry, forHeapID); ok {
				return seg, true
			}
		}
	}
	return reclaimNonArena(table, forHeapID)
}

// reclaimNonArena adopts an abandoned OS-owned segment purely via the
// ownerID CAS (§4.6's "participate via a CAS on owner-thread-id alone");
// there is no arena bitmap to scan for these, so the table keeps a short
// side list of candidates instead.
func reclaimNonArena(table *arenaTable, forHeapID uint64) (*segment, bool) {
	table.mu.Lock()
	defer table.mu.Unlock()
	for i, s := range table.osOwnedAbandoned {
		if s.tryClaimOwnership(forHeapID) {
			table.nonArenaAbandoned.Dec()
			table.osOwnedAbandoned = append(table.osOwnedAbandoned[:i], table.osOwnedAbandoned[i+1:]...)
			return s, true
		}
	}
	return nil, false
}

func reclaimFromArena(a *arena, registry *segmentRegistry, forHeapID uint64) (*segment, bool) {
	total := a.abandoned.len()
	for i := 0; i < total; i++ {
		if !a.abandoned.tryClearBit(i) {
			continue
		}
		ptr := a.addrOf(i)
		seg := registry.lookup(ptr)
		if seg == nil || seg.base != ptr || !seg.tryClaimOwnership(forHeapID) {
			continue
		}
		return seg, true
	}
	return nil, false
}
