// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The delayed-decommit collector (§4.6): arenas whose purge_expire has
// passed get their scheduled ranges actually decommitted. Invoked
// opportunistically from the heap's generic slow path (§4.2), the same
// place the teacher's mheap threads scavenging off of allocation
// pressure rather than a dedicated background goroutine.

package mimalloc

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/the-die/mimalloc/stats"
)

// tryPurgeAll walks every arena whose purge deadline has passed and
// decommits the ranges still marked in its purge bitmap. A CAS guard
// (t.purging) ensures only one goroutine runs the walk at a time;
// everyone else simply skips it, since a purge pass that's already in
// flight will cover the same ground.
func (t *arenaTable) tryPurgeAll() {
	if !atomic.CompareAndSwapInt32(&t.purging, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&t.purging, 0)

	now := t.clock.NowMsecs()

	t.mu.Lock()
	arenas := make([]*arena, len(t.arenas))
	copy(arenas, t.arenas)
	t.mu.Unlock()

	for _, a := range arenas {
		a.tryPurge(now, t.log, t.metrics)
	}
}

// tryPurge decommits this arena's scheduled ranges if its deadline has
// passed, clearing purge/committed/dirty over every purged run.
func (a *arena) tryPurge(now int64, log *zap.Logger, metrics *stats.Collector) {
	if a.purge == nil {
		return
	}
	expire := atomic.LoadInt64(&a.purgeExpireMs)
	if expire == 0 || now < expire {
		return
	}
	if !atomic.CompareAndSwapInt64(&a.purgeExpireMs, expire, 0) {
		return // someone else is already handling this arena's expiry
	}

	runs := a.purgeBitRuns()
	retry := false
	for _, r := range runs {
		// Try-claim inuse over the run before touching memory (§4.6 step
		// 3): a concurrent claim may have already reclaimed part or all
		// of this run, clearing the matching purge bits itself, so a
		// failure here just means skip -- whatever's still marked will
		// surface on the next pass.
		if !a.inuse.claimAcross(r.n, r.at) {
			retry = true
			continue
		}

		ptr := a.addrOf(r.at)
		size := a.blockBytes(r.n)
		if _, err := a.mem.Purge(ptr, size); err != nil {
			log.Warn("arena: purge failed", zap.Error(err), zap.Uintptr("ptr", ptr))
			a.inuse.unclaimAcross(r.n, r.at)
			retry = true
			continue
		}
		a.purge.clearBitsAcross(r.n, r.at)
		a.dirty.clearBitsAcross(r.n, r.at)
		if a.committed != nil {
			a.committed.clearBitsAcross(r.n, r.at)
		}
		a.inuse.unclaimAcross(r.n, r.at)
		if metrics != nil {
			metrics.PurgeRuns.Inc()
			metrics.PurgeBytes.Add(float64(size))
		}
	}
	if retry {
		// Reschedule the runs left marked so the next pass retries them,
		// unless a release has already set a new deadline.
		atomic.CompareAndSwapInt64(&a.purgeExpireMs, 0, now)
	}
}

type bitRun struct{ at, n int }

// purgeBitRuns coalesces the set bits of the purge bitmap into maximal
// contiguous runs, so a multi-block free only costs one madvise call.
func (a *arena) purgeBitRuns() []bitRun {
	var runs []bitRun
	total := a.purge.len()
	at := -1
	for i := 0; i < total; i++ {
		set := a.purge.testBit(i)
		switch {
		case set && at < 0:
			at = i
		case !set && at >= 0:
			runs = append(runs, bitRun{at: at, n: i - at})
			at = -1
		}
	}
	if at >= 0 {
		runs = append(runs, bitRun{at: at, n: total - at})
	}
	return runs
}
