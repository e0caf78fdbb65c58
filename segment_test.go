// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mimalloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/the-die/mimalloc/platform"
)

func newTestArenaTable(t *testing.T) *arenaTable {
	t.Helper()
	return newArenaTable(platform.Default(), platform.DefaultClock(), nil, nil, 8*arenaBlockBytes, 1000, false, false)
}

func TestNewSegmentLaysOutPagesWithinBounds(t *testing.T) {
	table := newTestArenaTable(t)
	seg, err := newSegment(table, 1, segSmall, 0)
	require.NoError(t, err)

	require.Equal(t, smallPagesPerSegment, len(seg.pages))
	for i, p := range seg.pages {
		require.Equal(t, seg, p.segment)
		require.GreaterOrEqual(t, p.areaStart, seg.base)
		require.Less(t, p.areaStart, seg.base+seg.bytes, "page %d area must sit inside the segment", i)
	}
}

func TestSegmentPageIndexMatchesAreaStart(t *testing.T) {
	table := newTestArenaTable(t)
	seg, err := newSegment(table, 1, segSmall, 0)
	require.NoError(t, err)

	for i, p := range seg.pages {
		require.Equal(t, i, seg.pageIndex(p.areaStart))
	}
}

func TestSegmentRegistryLookupAndUnregister(t *testing.T) {
	table := newTestArenaTable(t)
	reg := newSegmentRegistry()

	seg, err := newSegment(table, 1, segSmall, 0)
	require.NoError(t, err)
	reg.register(seg)

	require.Equal(t, seg, reg.lookup(seg.base))
	require.Equal(t, seg, reg.lookup(seg.base+seg.bytes-1))

	reg.unregister(seg)
	require.Nil(t, reg.lookup(seg.base))
}

func TestSegmentRegistryLookupMissReturnsNil(t *testing.T) {
	reg := newSegmentRegistry()
	require.Nil(t, reg.lookup(0xdeadbeef))
}

func TestSegmentOwnershipCASOnlySucceedsWhenAbandoned(t *testing.T) {
	table := newTestArenaTable(t)
	seg, err := newSegment(table, 7, segSmall, 0)
	require.NoError(t, err)

	require.False(t, seg.tryClaimOwnership(9), "a live segment's ownership can't be stolen")

	seg.markAbandoned()
	require.True(t, seg.tryClaimOwnership(9))
	require.Equal(t, uint64(9), seg.owner())
	require.False(t, seg.tryClaimOwnership(11), "already re-claimed, second CAS must fail")
}

func TestSegmentUsedCountTracksIncAndDec(t *testing.T) {
	table := newTestArenaTable(t)
	seg, err := newSegment(table, 1, segSmall, 0)
	require.NoError(t, err)

	seg.incUsed()
	seg.incUsed()
	require.EqualValues(t, 2, seg.usedCount())
	seg.decUsed()
	require.EqualValues(t, 1, seg.usedCount())
}
