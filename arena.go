// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The arena layer (§3.2, §4.5, §4.6): large OS reservations, carved into
// segment-sized blocks tracked by atomic bitmaps, handed out to the
// segment layer and reclaimed on a delay. Grounded on the teacher's
// mheap.grow (sysAlloc-then-carve) and lookup (address-to-metadata), but
// generalized from one contiguous arena_start..arena_used range to a
// table of independently sized reservations (see segment.go).

package mimalloc

import (
	"sync/atomic"

	"github.com/pkg/errors"
	uatomic "go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/the-die/mimalloc/platform"
	"github.com/the-die/mimalloc/stats"
)

// arenaBlockBytes is the bitmap-tracked granularity within an arena. We
// pick it equal to segmentBytes: the segment layer never asks for a
// fractional block, and the reverse "which arena/block is this segment
// in" lookup stays a single divide (see segment.go's registry, which
// additionally keys on exact base address so this choice is purely a
// bitmap-sizing one, not a lookup-correctness one).
const arenaBlockBytes = segmentBytes

const (
	defaultArenaReserveBytes = 1 << 30 // 1 GiB, per §3.3/§6.3 default
	arenaReserveDoubleEvery  = 8       // reserve size doubles every N arenas created
	maxArenaCount            = 112     // §3.3's "≈112 arenas" cap
)

// arena is one OS reservation split into arenaBlockBytes-sized blocks.
// inuse/dirty track every arena; committed/purge are nil for pinned
// (large/huge page) arenas, which cannot be partially decommitted (§3.2).
type arena struct {
	mem        platform.Memory
	base       uintptr
	blockCount int
	numaNode   int
	pinned     bool

	inuse     *bitmap
	dirty     *bitmap
	committed *bitmap // nil if pinned
	purge     *bitmap // nil if pinned
	abandoned *bitmap

	// searchIdx is read on every claim and written once per successful
	// claim -- plain load/store traffic, the wrapper case SPEC_FULL's
	// domain stack calls for (unlike purgeExpireMs below, which is
	// CAS-retried and stays on raw sync/atomic).
	searchIdx     uatomic.Int32
	purgeExpireMs int64 // atomic, 0 means nothing scheduled; CAS-heavy, stays on sync/atomic
}

func newArena(mem platform.Memory, reserveBytes uintptr, allowLarge bool, numaNode int) (*arena, error) {
	blockCount := int(reserveBytes / arenaBlockBytes)
	if blockCount < 1 {
		blockCount = 1
	}
	total := uintptr(blockCount) * arenaBlockBytes

	base, memid, err := mem.AllocAligned(total, arenaBlockBytes, false, allowLarge)
	if err != nil {
		return nil, errors.Wrap(err, "arena: reserve failed")
	}

	a := &arena{
		mem:        mem,
		base:       base,
		blockCount: blockCount,
		numaNode:   numaNode,
		pinned:     memid.Pinned,
		inuse:      newBitmap(blockCount),
		dirty:      newBitmap(blockCount),
		abandoned:  newBitmap(blockCount),
	}
	if !memid.Pinned {
		a.committed = newBitmap(blockCount)
		a.purge = newBitmap(blockCount)
	}
	return a, nil
}

func (a *arena) addrOf(blockIdx int) uintptr {
	return a.base + uintptr(blockIdx)*arenaBlockBytes
}

// claim attempts to reserve `blocks` contiguous blocks for a new segment.
// On success it cancels any scheduled purge over the range, marks the
// range dirty, and commits it if the arena tracks commit state and the
// range isn't committed yet.
func (a *arena) claim(blocks int, allowLarge bool) (ptr uintptr, memid platform.MemID, ok bool) {
	if a.pinned && !allowLarge {
		return 0, platform.MemID{}, false
	}

	hint := int(a.searchIdx.Load())
	at, found := a.inuse.tryFindAndClaimAcross(blocks, hint)
	if !found {
		return 0, platform.MemID{}, false
	}
	a.searchIdx.Store(int32(at + blocks))

	if a.purge != nil {
		a.purge.clearBitsAcross(blocks, at) // cancel any scheduled decommit (§4.5 step 3)
	}

	a.dirty.setBitsAcross(blocks, at)

	ptr = a.addrOf(at)
	committed := true
	if a.committed != nil {
		if !a.committed.isClaimedAcross(blocks, at) {
			if _, err := a.mem.Commit(ptr, uintptr(blocks)*arenaBlockBytes); err != nil {
				// §7 "commit failure mid-arena-claim": the claim still
				// succeeds, just uncommitted; caller must Commit before
				// touching it.
				committed = false
			} else {
				a.committed.setBitsAcross(blocks, at)
			}
		}
	}

	return ptr, platform.MemID{
		InitiallyCommitted: committed,
		Pinned:             a.pinned,
		NumaNode:           a.numaNode,
	}, true
}

// release hands the range back, scheduling a delayed purge rather than
// decommitting synchronously (§4.6).
func (a *arena) release(at, blocks int, clock platform.Clock, purgeDelayMs int64) {
	a.inuse.unclaimAcross(blocks, at)
	if a.purge == nil {
		return // pinned: no decommit possible, memory stays committed
	}
	a.purge.setBitsAcross(blocks, at)

	now := clock.NowMsecs()
	for {
		old := atomic.LoadInt64(&a.purgeExpireMs)
		next := now + purgeDelayMs
		if old != 0 {
			next = old + purgeDelayMs/10 // extend, don't reset (§4.6 step 2)
		}
		if atomic.CompareAndSwapInt64(&a.purgeExpireMs, old, next) {
			return
		}
	}
}

// indexOf returns the block index containing ptr, or -1 if ptr falls
// outside this arena's reservation.
func (a *arena) indexOf(ptr uintptr) int {
	if ptr < a.base {
		return -1
	}
	off := ptr - a.base
	idx := int(off / arenaBlockBytes)
	if idx >= a.blockCount {
		return -1
	}
	return idx
}

func (a *arena) blockBytes(blocks int) uintptr { return uintptr(blocks) * arenaBlockBytes }

// zapFields is a small debug helper used by the table's logging calls.
func (a *arena) zapFields() []zap.Field {
	return []zap.Field{
		zap.Uintptr("arena_base", a.base),
		zap.Int("blocks", a.blockCount),
		zap.Int("numa_node", a.numaNode),
		zap.Bool("pinned", a.pinned),
	}
}

// arenaTable is the shared, process-wide arena registry: §4.5's
// "mi_arenas[]" generalized to a growable slice guarded by a spin lock,
// since structural changes (creating a new arena) are rare compared to
// the per-arena bitmap claims that dominate the hot path.
type arenaTable struct {
	mu     spinLock
	mem    platform.Memory
	clock  platform.Clock
	numa   platform.NUMA
	log    *zap.Logger
	arenas []*arena

	reserveBytes uintptr
	purgeDelayMs int64
	allowLarge   bool
	disallowOS   bool
	purging      int32 // atomic single-purger guard (§4.6)

	nonArenaAbandoned uatomic.Int64 // §8's abandoned_count for OS-owned segments
	osOwnedAbandoned  []*segment    // guarded by mu

	metrics *stats.Collector
}

// SetMetrics attaches a stats.Collector to every arena created
// afterward. Existing-arena counters are unaffected; call this before
// the first allocation for complete coverage.
func (t *arenaTable) SetMetrics(c *stats.Collector) { t.metrics = c }

// arenaContaining returns the arena owning ptr, or nil for an OS-owned
// (non-arena) address.
func (t *arenaTable) arenaContaining(ptr uintptr) *arena {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, a := range t.arenas {
		if idx := a.indexOf(ptr); idx >= 0 {
			return a
		}
	}
	return nil
}

// abandonedCount implements §8's invariant sum: popcount over every
// arena's abandoned bitmap plus the non-arena counter.
func (t *arenaTable) abandonedCount() int64 {
	t.mu.Lock()
	arenas := make([]*arena, len(t.arenas))
	copy(arenas, t.arenas)
	t.mu.Unlock()

	total := t.nonArenaAbandoned.Load()
	for _, a := range arenas {
		total += int64(a.abandoned.popcount())
	}
	return total
}

func newArenaTable(mem platform.Memory, clock platform.Clock, numa platform.NUMA, log *zap.Logger, reserveBytes uintptr, purgeDelayMs int64, allowLarge, disallowOS bool) *arenaTable {
	if log == nil {
		log = zap.NewNop()
	}
	if reserveBytes == 0 {
		reserveBytes = defaultArenaReserveBytes
	}
	return &arenaTable{
		mem:          mem,
		clock:        clock,
		numa:         numa,
		log:          log,
		reserveBytes: reserveBytes,
		purgeDelayMs: purgeDelayMs,
		allowLarge:   allowLarge,
		disallowOS:   disallowOS,
	}
}

// nextReserveBytes implements "doubling every 8 creations up to a cap"
// (§3.3): the reserve size scales with how many arenas already exist,
// while the arena *count* itself is capped at maxArenaCount.
func (t *arenaTable) nextReserveBytes() uintptr {
	doublings := len(t.arenas) / arenaReserveDoubleEvery
	if doublings > 4 { // cap growth at 16x the base reserve
		doublings = 4
	}
	return t.reserveBytes << uint(doublings)
}

// allocateSegment finds or creates room for `blocks` contiguous
// arena blocks, preferring the caller's NUMA-local arenas first (§4.5
// step 2), falling back to any arena, then to reserving a new one, and
// finally to an OS-direct allocation outside arena tracking entirely.
func (t *arenaTable) allocateSegment(blocks int, allowLarge bool) (uintptr, platform.MemID, error) {
	preferredNode := -1
	if t.numa != nil {
		preferredNode = t.numa.Node()
	}

	t.mu.Lock()
	if ptr, memid, ok := t.claimFromExisting(blocks, allowLarge, preferredNode, true); ok {
		t.mu.Unlock()
		return ptr, memid, nil
	}
	if ptr, memid, ok := t.claimFromExisting(blocks, allowLarge, preferredNode, false); ok {
		t.mu.Unlock()
		return ptr, memid, nil
	}

	if len(t.arenas) < maxArenaCount {
		reserve := t.nextReserveBytes()
		needed := uintptr(blocks) * arenaBlockBytes
		if needed > reserve {
			reserve = needed
		}
		a, err := newArena(t.mem, reserve, allowLarge, preferredNode)
		if err == nil {
			t.arenas = append(t.arenas, a)
			t.log.Debug("arena: created", a.zapFields()...)
			if t.metrics != nil {
				t.metrics.ArenasCreated.Inc()
				t.metrics.ArenaCount.Set(float64(len(t.arenas)))
			}
			if ptr, memid, ok := a.claim(blocks, allowLarge); ok {
				t.mu.Unlock()
				return ptr, memid, nil
			}
		} else {
			t.log.Warn("arena: reserve failed", zap.Error(err))
		}
	}
	t.mu.Unlock()

	// Ultimate fallback: bypass arena tracking entirely (§4.5 step 5).
	if t.disallowOS {
		return 0, platform.MemID{}, ErrOutOfMemory
	}
	size := uintptr(blocks) * arenaBlockBytes
	ptr, memid, err := t.mem.AllocAligned(size, arenaBlockBytes, true, allowLarge)
	if err != nil {
		return 0, platform.MemID{}, errors.Wrap(ErrOutOfMemory, err.Error())
	}
	memid.OSOwned = true
	return ptr, memid, nil
}

// claimFromExisting scans already-reserved arenas. Must be called with
// t.mu held.
func (t *arenaTable) claimFromExisting(blocks int, allowLarge bool, preferredNode int, numaOnly bool) (uintptr, platform.MemID, bool) {
	for _, a := range t.arenas {
		if numaOnly && preferredNode >= 0 && a.numaNode != preferredNode {
			continue
		}
		if ptr, memid, ok := a.claim(blocks, allowLarge); ok {
			return ptr, memid, true
		}
	}
	return 0, platform.MemID{}, false
}

// releaseSegment returns `blocks` starting at ptr to whichever arena owns
// them, or is a no-op for OS-owned (non-arena) memory -- the caller frees
// that directly via platform.Memory.Free.
func (t *arenaTable) releaseSegment(ptr uintptr, blocks int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, a := range t.arenas {
		if idx := a.indexOf(ptr); idx >= 0 {
			a.release(idx, blocks, t.clock, t.purgeDelayMs)
			return true
		}
	}
	return false
}
