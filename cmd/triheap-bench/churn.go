// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/the-die/mimalloc"
	"github.com/the-die/mimalloc/stats"
)

// newChurnCmd implements §8.4 scenario 1: allocate a million small
// objects, free them in reverse order, then allocate and free a smaller
// second wave. Committed bytes are not measured; the run checks only that
// every allocation and first-wave free succeeds.
func newChurnCmd(state *appState) *cobra.Command {
	var count, second int
	cmd := &cobra.Command{
		Use:   "churn",
		Short: "Single-thread allocate/free churn at a fixed small size",
		RunE: func(cmd *cobra.Command, args []string) error {
			h := mimalloc.NewHeapWithConfig(state.cfg, state.log)
			metrics := stats.New(0)
			h.SetMetrics(metrics)

			ptrs := make([]uintptr, count)
			for i := range ptrs {
				p, err := h.Malloc(24)
				if err != nil {
					return fmt.Errorf("wave 1 alloc %d: %w", i, err)
				}
				ptrs[i] = p
			}
			for i := len(ptrs) - 1; i >= 0; i-- {
				if err := h.Free(ptrs[i]); err != nil {
					return fmt.Errorf("wave 1 free %d: %w", i, err)
				}
			}

			second2 := make([]uintptr, second)
			for i := range second2 {
				p, err := h.Malloc(24)
				if err != nil {
					return fmt.Errorf("wave 2 alloc %d: %w", i, err)
				}
				second2[i] = p
			}
			for _, p := range second2 {
				_ = h.Free(p)
			}

			state.log.Info("churn complete",
				zap.Int("wave1", count),
				zap.Int("wave2", second),
			)
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 1_000_000, "objects to allocate in the first wave")
	cmd.Flags().IntVar(&second, "second-wave", 1_000, "objects to allocate in the second wave")
	return cmd
}
