// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mimalloc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/the-die/mimalloc/platform"
)

func newTestEngine(t *testing.T, purgeDelayMs int64) *engine {
	t.Helper()
	return newEngineWith(
		platform.Default(), platform.DefaultClock(), platform.NewSysfsNUMA(""),
		nil, 64<<20, purgeDelayMs, false, false,
	)
}

func TestHeapFreeThenMallocSucceedsAtSameSize(t *testing.T) {
	h := newHeap(newTestEngine(t, defaultPurgeDelayMs))
	a, err := h.Malloc(24)
	require.NoError(t, err)
	require.NoError(t, h.Free(a))

	b, err := h.Malloc(24)
	require.NoError(t, err)
	require.NotZero(t, b)
	require.NoError(t, h.Free(b))
}

// TestHeapPartialFreeAndRefillStaysWithinOnePage frees every block but one
// in a freshly carved page (so the page never empties and its segment
// never releases), then refills it: every address returned must be a
// distinct block inside that same page's area, since nothing forced a new
// segment to be created.
func TestHeapPartialFreeAndRefillStaysWithinOnePage(t *testing.T) {
	h := newHeap(newTestEngine(t, defaultPurgeDelayMs))
	sc := sizeClassFor(24)
	capacity := int(classPageBytes(sc) / classBlockSize(sc))
	require.Greater(t, capacity, 1)

	first := make([]uintptr, capacity)
	for i := range first {
		p, err := h.Malloc(24)
		require.NoError(t, err)
		first[i] = p
	}
	areaLow, areaHigh := first[0], first[0]
	for _, p := range first {
		if p < areaLow {
			areaLow = p
		}
		if p > areaHigh {
			areaHigh = p
		}
	}

	for _, p := range first[1:] {
		require.NoError(t, h.Free(p))
	}

	seen := map[uintptr]bool{first[0]: true}
	for i := 0; i < capacity-1; i++ {
		p, err := h.Malloc(24)
		require.NoError(t, err)
		require.GreaterOrEqual(t, p, areaLow)
		require.LessOrEqual(t, p, areaHigh)
		require.False(t, seen[p], "address handed out twice while the page was still live")
		seen[p] = true
	}
}

func TestHeapChurnSingleThread(t *testing.T) {
	h := newHeap(newTestEngine(t, defaultPurgeDelayMs))
	const wave1 = 2000
	ptrs := make([]uintptr, wave1)
	for i := range ptrs {
		p, err := h.Malloc(24)
		require.NoError(t, err)
		ptrs[i] = p
	}
	for i := len(ptrs) - 1; i >= 0; i-- {
		require.NoError(t, h.Free(ptrs[i]))
	}

	const wave2 = 100
	for i := 0; i < wave2; i++ {
		p, err := h.Malloc(24)
		require.NoError(t, err)
		require.NoError(t, h.Free(p))
	}
}

func TestHeapAbandonAndReclaim(t *testing.T) {
	eng := newTestEngine(t, defaultPurgeDelayMs)
	a := newHeap(eng)

	const count = 500
	for i := 0; i < count; i++ {
		_, err := a.Malloc(48)
		require.NoError(t, err)
	}
	require.Zero(t, a.AbandonedCount())
	a.Close()
	require.NotZero(t, a.AbandonedCount(), "closing a heap with live objects should abandon its segments")

	b := newHeap(eng)
	for i := 0; i < count; i++ {
		p, err := b.Malloc(48)
		require.NoError(t, err)
		require.NoError(t, b.Free(p))
	}
	// The reclaim clears the segment's abandoned bit the moment it's
	// adopted (§4.7 step 2), independent of whether its blocks are later
	// freed; the live objects a never freed are now owned by b.
	require.Zero(t, b.AbandonedCount())
}

func TestHeapProducerConsumerCrossesOwnerBoundary(t *testing.T) {
	eng := newTestEngine(t, defaultPurgeDelayMs)
	producer := newHeap(eng)
	consumer := newHeap(eng)

	const count = 2000
	ch := make(chan uintptr, count)
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer close(ch)
		for i := 0; i < count; i++ {
			p, err := producer.Malloc(128)
			if err != nil {
				errs <- err
				return
			}
			ch <- p
		}
	}()

	go func() {
		defer wg.Done()
		for p := range ch {
			if err := consumer.Free(p); err != nil {
				errs <- err
				return
			}
		}
	}()

	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	producer.Close()
	consumer.Close()
}

func TestUpdatePagesDirectOnlyTouchesSmallClasses(t *testing.T) {
	h := newHeap(newTestEngine(t, defaultPurgeDelayMs))
	p := &page{sizeClass: 1}
	h.updatePagesDirect(1, p) // class 1 backs a small size, has direct-table entries

	found := false
	for _, cur := range h.pagesDirect {
		if cur == p {
			found = true
		}
	}
	require.True(t, found)

	h.clearPagesDirect(p)
	for _, cur := range h.pagesDirect {
		require.NotEqual(t, p, cur)
	}

	msc := sizeClassFor(smallClassLimit + 1)
	q := &page{sizeClass: msc}
	h.updatePagesDirect(msc, q) // a medium class has no direct-table entries
	for _, cur := range h.pagesDirect {
		require.NotEqual(t, q, cur)
	}
}
