// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package platform

import "golang.org/x/sys/unix"

func hugePageFlag() int { return unix.MAP_HUGETLB }
