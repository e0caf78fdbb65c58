// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mimalloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSizeClassForNeverUnderAllocates(t *testing.T) {
	for n := uintptr(1); n <= mediumClassLimit; n++ {
		sc := sizeClassFor(n)
		require.NotZero(t, sc, "size %d got the reserved class", n)
		require.GreaterOrEqual(t, classBlockSize(sc), n, "size %d rounds down", n)
	}
}

func TestSizeClassForWastesAtMostOneEighth(t *testing.T) {
	// Below smallAlign8Limit the 8- and 16-byte steps are coarser than an
	// eighth of the request (9 rounds to 16); the bound holds from there.
	for n := uintptr(smallAlign8Limit); n <= mediumClassLimit; n++ {
		block := classBlockSize(sizeClassFor(n))
		waste := float64(block-n) / float64(n)
		require.LessOrEqualf(t, waste, 0.125, "size %d rounds to %d, wasting %.3f", n, block, waste)
	}
}

func TestSizeClassForAboveMediumLimit(t *testing.T) {
	require.Zero(t, sizeClassFor(mediumClassLimit+1))
	require.Zero(t, sizeClassFor(1<<40))
}

func TestSizeClassForZeroIsClampedToOne(t *testing.T) {
	require.Equal(t, sizeClassFor(1), sizeClassFor(0))
}

func TestClassifySizeBoundaries(t *testing.T) {
	require.Equal(t, categorySmall, classifySize(smallClassLimit))
	require.Equal(t, categoryMedium, classifySize(smallClassLimit+1))
	require.Equal(t, categoryMedium, classifySize(mediumClassLimit))
	require.Equal(t, categoryLarge, classifySize(mediumClassLimit+1))
	require.Equal(t, categoryHuge, classifySize(segmentBytes/2+1))
}

func TestRoundupSizeMatchesClassBlockSize(t *testing.T) {
	for _, n := range []uintptr{1, 7, 8, 9, 1023, 1024, 1025, 65536, mediumClassLimit} {
		require.Equal(t, classBlockSize(sizeClassFor(n)), roundupSize(n))
	}
}

func TestRoundupSizeAboveMediumRoundsToPage(t *testing.T) {
	got := roundupSize(mediumClassLimit + 1)
	require.Zero(t, got%smallPageBytes)
	require.GreaterOrEqual(t, got, mediumClassLimit+1)
}
