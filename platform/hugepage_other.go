// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build darwin || freebsd || dragonfly || netbsd || openbsd

package platform

// hugePageFlag is 0 on platforms where golang.org/x/sys/unix does not
// expose a portable MAP_HUGETLB-equivalent; AllocAligned degrades to
// regular pages and reports Pinned: false.
func hugePageFlag() int { return 0 }
