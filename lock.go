// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mimalloc

import (
	"runtime"
	"sync/atomic"
)

const (
	mutexUnlocked = 0
	mutexLocked   = 1

	activeSpinCount = 30
)

// spinLock is a small, low-contention-optimized mutex used for arena and
// abandoned-list bookkeeping that is held only briefly, mirroring the
// teacher's lock_futex.go speculative-grab-then-spin-then-yield shape
// (minus the OS futex park, which sync primitives in user-space Go have
// no portable hook for -- runtime.Gosched stands in for passive_spin).
type spinLock struct {
	state int32
}

func (l *spinLock) Lock() {
	if atomic.CompareAndSwapInt32(&l.state, mutexUnlocked, mutexLocked) {
		return
	}
	for i := 0; ; i++ {
		if atomic.CompareAndSwapInt32(&l.state, mutexUnlocked, mutexLocked) {
			return
		}
		if i < activeSpinCount {
			continue
		}
		runtime.Gosched()
	}
}

func (l *spinLock) Unlock() {
	if !atomic.CompareAndSwapInt32(&l.state, mutexLocked, mutexUnlocked) {
		panic("mimalloc: unlock of unlocked lock")
	}
}
