// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Page-local sharded free lists (§4.1) -- the heart of the allocator.
// Every page carries three disjoint singly-linked lists of its own
// blocks: free (owner-only fast path), local_free (owner-only deferred
// decrement) and thread_free (cross-thread inbox, atomic). A free block
// is a freeNode living in its own memory, the same trick as the
// teacher's gclinkptr in mheap.go/mcentral.go: no separate bookkeeping
// allocation, the block's own first word is its list link while it's on
// a free list and becomes opaque user data the moment it's handed out.

package mimalloc

import (
	"sync/atomic"
	"unsafe"

	uatomic "go.uber.org/atomic"
)

// freeNode is the link node overlaid on a free block's own memory.
type freeNode struct {
	next *freeNode
}

func freeNodeAt(ptr uintptr) *freeNode {
	return (*freeNode)(unsafe.Pointer(ptr))
}

func (n *freeNode) addr() uintptr {
	return uintptr(unsafe.Pointer(n))
}

// page is one contiguous size-class-homogeneous run of blocks within a
// segment (§3.2).
type page struct {
	segment *segment

	sizeClass uint8
	blockSize uintptr
	areaStart uintptr
	slotBytes uintptr
	capacity  int32

	used int32 // owner-only

	free      *freeNode // owner-only fast-path pool
	localFree *freeNode // owner-only deferred-decrement list

	threadFree unsafe.Pointer // atomic *freeNode, cross-thread inbox
	// threadFreed is read by isEmpty() on every ownerFree and by
	// collect() on every generic pass, far more often than it's added
	// to -- the wrapper case SPEC_FULL's domain stack calls for.
	threadFreed uatomic.Int32

	next, prev *page // queue links (heap's per-size-class queue)
	inFull     bool
	assigned   bool  // false until initPage carves it for a size class
	freedOnce  int32 // atomic; single-block (large/huge) double-free guard
}

// initPage carves the page's backing area into capacity blocks of
// blockSize and builds the initial free list, in address order so the
// first allocations come from the low end of the area (cache-friendlier,
// matches the teacher's mspan.init layout).
func (p *page) initPage(sc uint8, blockSize uintptr) {
	p.sizeClass = sc
	p.blockSize = blockSize
	p.capacity = int32(p.slotBytes / blockSize)
	p.used = 0
	p.localFree = nil
	atomic.StorePointer(&p.threadFree, nil)
	p.threadFreed.Store(0)

	var head *freeNode
	for i := p.capacity - 1; i >= 0; i-- {
		node := freeNodeAt(p.areaStart + uintptr(i)*blockSize)
		node.next = head
		head = node
	}
	p.free = head
	p.assigned = true
}

// fastAlloc implements the three-instruction pop described in §4.1's
// fast-path contract. ok is false when free is empty and the caller must
// fall through to the generic routine.
func (p *page) fastAlloc() (uintptr, bool) {
	b := p.free
	if b == nil {
		return 0, false
	}
	p.free = b.next
	p.used++
	return b.addr(), true
}

// ownerFree is the fast-path free contract for the page's owning thread:
// push onto local_free, decrement used. The bool result reports whether
// the page just became empty and should be scheduled for collection.
func (p *page) ownerFree(ptr uintptr) bool {
	b := freeNodeAt(ptr)
	b.next = p.localFree
	p.localFree = b
	p.used--
	return p.isEmpty()
}

// foreignFree is the cross-thread free contract: CAS-push onto
// thread_free, then atomically bump thread_freed. Never touches used
// directly -- only the owning thread's collect() reconciles it.
func (p *page) foreignFree(ptr uintptr) {
	b := freeNodeAt(ptr)
	for {
		old := atomic.LoadPointer(&p.threadFree)
		b.next = (*freeNode)(old)
		if atomic.CompareAndSwapPointer(&p.threadFree, old, unsafe.Pointer(b)) {
			break
		}
	}
	p.threadFreed.Inc()
}

// isEmpty implements §3.2's "used - thread_freed == 0" test, deliberately
// without a barrier beyond the plain atomic load of thread_freed: a
// stale read only delays reclaiming an empty page until the next generic
// pass, which §4.1 guarantees runs in bounded time.
func (p *page) isEmpty() bool {
	return p.used-p.threadFreed.Load() == 0
}

// isFull reports whether the fast path will find nothing on free.
func (p *page) isFull() bool {
	return p.free == nil
}

// collect folds local_free and thread_free back into free, the heart of
// §4.2 step 3's page reclamation: capture local_free wholesale, swap
// thread_free out atomically, append it, then subtract the captured
// cross-thread count from used in one shot.
func (p *page) collect() {
	if p.localFree != nil {
		p.free = concatFreeLists(p.localFree, p.free)
		p.localFree = nil
	}

	captured := (*freeNode)(atomic.SwapPointer(&p.threadFree, nil))
	n := p.threadFreed.Swap(0)
	if captured != nil {
		p.free = concatFreeLists(captured, p.free)
	}
	p.used -= n
}

// concatFreeLists splices `head` (fresh list) in front of `tail`
// (existing list), returning the new head.
func concatFreeLists(head, tail *freeNode) *freeNode {
	if head == nil {
		return tail
	}
	if tail == nil {
		return head
	}
	last := head
	for last.next != nil {
		last = last.next
	}
	last.next = tail
	return head
}
