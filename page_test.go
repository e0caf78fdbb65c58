// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mimalloc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// newTestPage carves a page out of a plain Go byte slice. Go's garbage
// collector does not relocate heap allocations, so taking the address of
// backing[0] and handing out sub-addresses as "pointers" is safe for as
// long as backing stays reachable -- which the caller's defer runtime.KeepAlive
// equivalent (holding the slice for the test's duration) guarantees.
func newTestPage(t *testing.T, blockSize uintptr, capacity int) (*page, []byte) {
	t.Helper()
	backing := make([]byte, blockSize*uintptr(capacity))
	p := &page{
		slotBytes: uintptr(len(backing)),
		areaStart: uintptr(unsafe.Pointer(&backing[0])),
	}
	p.initPage(1, blockSize)
	require.Equal(t, int32(capacity), p.capacity)
	return p, backing
}

func TestPageFastAllocDrainsFreeListInOrder(t *testing.T) {
	p, backing := newTestPage(t, 16, 4)
	defer keepAlive(backing)

	seen := map[uintptr]bool{}
	for i := 0; i < 4; i++ {
		ptr, ok := p.fastAlloc()
		require.True(t, ok)
		require.Equal(t, p.areaStart+uintptr(i)*16, ptr, "blocks must come out in address order")
		require.False(t, seen[ptr], "address handed out twice")
		seen[ptr] = true
	}
	_, ok := p.fastAlloc()
	require.False(t, ok, "page should report full once capacity is exhausted")
	require.True(t, p.isFull())
}

func TestPageInvariantFreeListsPlusUsedEqualsCapacity(t *testing.T) {
	p, backing := newTestPage(t, 16, 8)
	defer keepAlive(backing)

	var ptrs []uintptr
	for i := 0; i < 8; i++ {
		ptr, ok := p.fastAlloc()
		require.True(t, ok)
		ptrs = append(ptrs, ptr)
	}
	require.True(t, countFreeList(p.free) == 0)

	// owner frees half, a foreign thread frees the other half.
	for i, ptr := range ptrs {
		if i%2 == 0 {
			p.ownerFree(ptr)
		} else {
			p.foreignFree(ptr)
		}
	}

	// Before collect(), a foreign free has landed on thread_free but
	// hasn't yet been subtracted from used -- the invariant only holds in
	// the quiescent state collect() produces (§8.1).
	p.collect()
	require.Zero(t, p.used)
	require.True(t, p.isEmpty())
	free := countFreeList(p.free)
	localFree := countFreeList(p.localFree)
	threadFree := countFreeList((*freeNode)(p.threadFree))
	require.Equal(t, 8, free+localFree+threadFree+int(p.used))
	require.Equal(t, 8, countFreeList(p.free))
}

func TestPageOwnerFreeReportsEmptyOnlyWhenLastBlockReturned(t *testing.T) {
	p, backing := newTestPage(t, 16, 2)
	defer keepAlive(backing)

	a, _ := p.fastAlloc()
	b, _ := p.fastAlloc()

	require.False(t, p.ownerFree(a))
	require.True(t, p.ownerFree(b))
}

func TestPageForeignFreeNeverMutatesUsedDirectly(t *testing.T) {
	p, backing := newTestPage(t, 16, 4)
	defer keepAlive(backing)

	ptr, _ := p.fastAlloc()
	before := p.used
	p.foreignFree(ptr)
	require.Equal(t, before, p.used, "foreignFree must defer the used decrement to collect()")
	require.True(t, p.isEmpty(), "isEmpty must account for threadFreed even before collect")
}

func countFreeList(n *freeNode) int {
	c := 0
	for ; n != nil; n = n.next {
		c++
	}
	return c
}

func keepAlive(b []byte) { _ = b[len(b)-1] }
