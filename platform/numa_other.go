// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package platform

// SysfsNUMA degrades to a single reported node on platforms with no
// /sys/devices/system/node tree (darwin, the BSDs, and the pure-Go
// fallback target).
type SysfsNUMA struct{}

var _ NUMA = SysfsNUMA{}

func NewSysfsNUMA(_ string) SysfsNUMA { return SysfsNUMA{} }

func (SysfsNUMA) Node() int      { return 0 }
func (SysfsNUMA) NodeCount() int { return 1 }
