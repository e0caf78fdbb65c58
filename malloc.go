// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The public allocation surface (§6.2): Calloc, Realloc, Free,
// AlignedAlloc, PosixMemalign, MallocUsableSize and Reallocarray, all
// layered on top of Malloc/freeBlock in heap.go/generic.go. The
// underlying engine is the spec's sole subject; this file is the thin,
// mostly out-of-scope C-surface wrapper the spec treats as an external
// contract, included here because a drop-in allocator needs one to be
// runnable end to end.

package mimalloc

import "unsafe"

var ptrSize = unsafe.Sizeof(uintptr(0))

// Calloc allocates count*size bytes, zeroed, failing on multiplication
// overflow rather than silently under-allocating.
func (h *Heap) Calloc(count, size uintptr) (uintptr, error) {
	if count != 0 && size != 0 && count > (^uintptr(0))/size {
		return 0, ErrInvalidArgument
	}
	n := count * size
	ptr, err := h.Malloc(n)
	if err != nil {
		return 0, err
	}
	zeroMemory(ptr, roundupSize(n))
	return ptr, nil
}

// Free releases ptr. Free(0) is a no-op, matching free(NULL)'s contract.
func (h *Heap) Free(ptr uintptr) error {
	if ptr == 0 {
		return nil
	}
	n := h.MallocUsableSize(ptr)
	if err := h.freeBlock(ptr); err != nil {
		return err
	}
	if h.metrics != nil {
		h.metrics.RecordFree(n)
	}
	return nil
}

// MallocUsableSize returns the actual block size backing ptr (which may
// exceed the size originally requested, since allocations are rounded up
// to their size class), or 0 if ptr does not fall inside an assigned page
// of a registered segment. It does not check whether the block itself is
// still allocated: a freed block on a live page reports its block size.
func (h *Heap) MallocUsableSize(ptr uintptr) uintptr {
	if ptr == 0 {
		return 0
	}
	seg := h.eng.registry.lookup(ptr)
	if seg == nil {
		return 0
	}
	idx := seg.pageIndex(ptr)
	if idx < 0 || idx >= len(seg.pages) {
		return 0
	}
	p := &seg.pages[idx]
	if !p.assigned {
		return 0
	}
	return p.blockSize
}

// Realloc resizes the allocation at ptr to n bytes, preserving content up
// to min(old, new) size. ptr==0 behaves as Malloc(n); n==0 frees ptr and
// returns a fresh minimum-size allocation.
func (h *Heap) Realloc(ptr, n uintptr) (uintptr, error) {
	if ptr == 0 {
		return h.Malloc(n)
	}
	if n == 0 {
		// realloc(p, 0) still returns a minimum-size allocation, not NULL
		// (§6.2); the old block is freed regardless.
		if err := h.Free(ptr); err != nil {
			return 0, err
		}
		return h.Malloc(1)
	}

	oldSize := h.MallocUsableSize(ptr)
	if oldSize == 0 {
		return 0, ErrInvalidPointer
	}
	if n <= oldSize && n <= mediumClassLimit && oldSize <= mediumClassLimit &&
		sizeClassFor(n) == sizeClassFor(oldSize) {
		return ptr, nil // fits the same size class already: reuse in place
	}

	newPtr, err := h.Malloc(n)
	if err != nil {
		return 0, err
	}
	copyMemory(newPtr, ptr, minUintptr(n, oldSize))

	if n < oldSize {
		// §4.4: batch the shrink-discarded block through the
		// thread-delayed-free list rather than freeing it inline.
		h.queueDelayedFree(ptr)
	} else if err := h.Free(ptr); err != nil {
		return newPtr, err
	}
	return newPtr, nil
}

// Reallocarray is Realloc(ptr, count*size) with overflow checking, the
// same contract Calloc applies to Malloc.
func (h *Heap) Reallocarray(ptr, count, size uintptr) (uintptr, error) {
	if count != 0 && size != 0 && count > (^uintptr(0))/size {
		return 0, ErrInvalidArgument
	}
	return h.Realloc(ptr, count*size)
}

// AlignedAlloc returns n bytes aligned to align, which must be a power of
// two. Alignments up to 16 bytes are satisfied by the ordinary size-class
// path (every class at that granularity is already that well aligned);
// anything stricter is served by a dedicated large/huge segment, whose
// single page always starts at a segment base -- itself aligned to
// arenaBlockBytes, far more than any alignment this allocator accepts.
// This trades memory for simplicity on an out-of-scope surface (§1 lists
// aligned_alloc among the external, non-core contracts).
func (h *Heap) AlignedAlloc(align, n uintptr) (uintptr, error) {
	if align == 0 || align&(align-1) != 0 {
		return 0, ErrInvalidArgument
	}
	if n%align != 0 {
		return 0, ErrInvalidArgument
	}
	if n == 0 {
		n = 1
	}
	if align <= 16 {
		return h.Malloc(n)
	}
	if align > arenaBlockBytes {
		return 0, ErrInvalidArgument
	}
	return h.allocLargeOrHuge(n)
}

// PosixMemalign validates POSIX's extra constraint (align a multiple of
// sizeof(void*)) before delegating to AlignedAlloc.
func (h *Heap) PosixMemalign(align, n uintptr) (uintptr, error) {
	if align%ptrSize != 0 || align&(align-1) != 0 {
		return 0, ErrInvalidArgument
	}
	return h.AlignedAlloc(align, n)
}

func zeroMemory(ptr, n uintptr) {
	if n == 0 {
		return
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), int(n))
	for i := range b {
		b[i] = 0
	}
}

func copyMemory(dst, src, n uintptr) {
	if n == 0 {
		return
	}
	d := unsafe.Slice((*byte)(unsafe.Pointer(dst)), int(n))
	s := unsafe.Slice((*byte)(unsafe.Pointer(src)), int(n))
	copy(d, s)
}

func minUintptr(a, b uintptr) uintptr {
	if a < b {
		return a
	}
	return b
}
