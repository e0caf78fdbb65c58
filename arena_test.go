// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mimalloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/the-die/mimalloc/platform"
)

func TestArenaClaimAndReleaseRoundTrips(t *testing.T) {
	a, err := newArena(platform.Default(), 4*arenaBlockBytes, false, 0)
	require.NoError(t, err)
	defer platform.Default().Free(a.base, a.blockBytes(4), platform.MemID{})

	ptr, memid, ok := a.claim(2, false)
	require.True(t, ok)
	require.True(t, memid.InitiallyCommitted)
	require.Equal(t, 0, a.indexOf(ptr))

	a.release(a.indexOf(ptr), 2, platform.DefaultClock(), 1000)

	// The search hint sits past the first claim, so the next claim takes
	// blocks 2-3 and the one after wraps back to the released range.
	_, _, ok = a.claim(2, false)
	require.True(t, ok)
	ptr2, _, ok := a.claim(2, false)
	require.True(t, ok)
	require.Equal(t, ptr, ptr2, "a released range must be claimable again")
}

func TestArenaClaimRejectsOverlap(t *testing.T) {
	a, err := newArena(platform.Default(), 2*arenaBlockBytes, false, 0)
	require.NoError(t, err)
	defer platform.Default().Free(a.base, a.blockBytes(2), platform.MemID{})

	_, _, ok := a.claim(2, false)
	require.True(t, ok)

	_, _, ok = a.claim(1, false)
	require.False(t, ok, "arena is fully claimed, nothing left to hand out")
}

func TestArenaIndexOfRejectsForeignAddresses(t *testing.T) {
	a, err := newArena(platform.Default(), arenaBlockBytes, false, 0)
	require.NoError(t, err)
	defer platform.Default().Free(a.base, a.blockBytes(1), platform.MemID{})

	require.Equal(t, -1, a.indexOf(a.base-1))
	require.Equal(t, -1, a.indexOf(a.base+a.blockBytes(1)))
	require.Equal(t, 0, a.indexOf(a.base))
}

func TestArenaTableAllocateSegmentReusesArenaBeforeCreatingAnother(t *testing.T) {
	table := newArenaTable(platform.Default(), platform.DefaultClock(), nil, nil, 4*arenaBlockBytes, 1000, false, false)

	ptr1, _, err := table.allocateSegment(1, false)
	require.NoError(t, err)
	require.Len(t, table.arenas, 1)

	ptr2, _, err := table.allocateSegment(1, false)
	require.NoError(t, err)
	require.Len(t, table.arenas, 1, "second claim must reuse the first arena's remaining capacity")
	require.NotEqual(t, ptr1, ptr2)
}

func TestArenaTableReleaseSegmentAllowsReclaim(t *testing.T) {
	table := newArenaTable(platform.Default(), platform.DefaultClock(), nil, nil, 2*arenaBlockBytes, 1000, false, false)

	ptr, _, err := table.allocateSegment(2, false)
	require.NoError(t, err)

	require.True(t, table.releaseSegment(ptr, 2))
	ptr2, _, err := table.allocateSegment(2, false)
	require.NoError(t, err)
	require.Equal(t, ptr, ptr2, "the released range must be handed out again")
	require.Len(t, table.arenas, 1)
	require.False(t, table.releaseSegment(ptr+uintptr(1<<40), 2), "an address outside every arena must report false")
}

func TestArenaTableAbandonedCountSumsArenaBitmapsAndOSOwned(t *testing.T) {
	table := newArenaTable(platform.Default(), platform.DefaultClock(), nil, nil, arenaBlockBytes, 1000, false, false)
	require.Zero(t, table.abandonedCount())

	_, _, err := table.allocateSegment(1, false)
	require.NoError(t, err)
	table.arenas[0].abandoned.setBitsAcross(1, 0)
	require.EqualValues(t, 1, table.abandonedCount())

	table.nonArenaAbandoned.Inc()
	require.EqualValues(t, 2, table.abandonedCount())
}
