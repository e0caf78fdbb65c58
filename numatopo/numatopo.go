// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package numatopo reports the NUMA topology a platform.NUMA implementation
// sees, in the shape cmd/triheap-bench's numa subcommand prints and the
// numa-affinity scenario (§8.4.5) asserts against: which node the calling
// goroutine's carrier thread currently sits on, and how many nodes the
// machine advertises in total.
package numatopo

import "github.com/the-die/mimalloc/platform"

// Summary is a point-in-time snapshot of the topology platform.NUMA
// reports. CurrentNode is only ever a hint (goroutines migrate between OS
// threads between any two reads), never a correctness guarantee.
type Summary struct {
	CurrentNode int
	NodeCount   int
}

// Report samples numa once, returning the summary a caller would log or
// print.
func Report(numa platform.NUMA) Summary {
	return Summary{
		CurrentNode: numa.Node(),
		NodeCount:   numa.NodeCount(),
	}
}
