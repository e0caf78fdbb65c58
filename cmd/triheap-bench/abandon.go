// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/the-die/mimalloc"
)

// newAbandonCmd implements §8.4 scenario 3: a heap allocates live objects
// and exits (Close, never Free) without releasing them; a second heap
// then allocates the same size class and must adopt the first heap's
// abandoned segments rather than reserving fresh memory.
func newAbandonCmd(state *appState) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "abandon",
		Short: "Abandon a heap's live segments and reclaim them from another heap",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := mimalloc.NewHeap()
			for i := 0; i < count; i++ {
				if _, err := a.Malloc(48); err != nil {
					return fmt.Errorf("heap A alloc %d: %w", i, err)
				}
			}
			before := a.AbandonedCount()
			a.Close() // exits without freeing -- segments become abandoned
			afterClose := a.AbandonedCount()

			b := mimalloc.NewHeap()
			ptrs := make([]uintptr, count)
			for i := range ptrs {
				p, err := b.Malloc(48)
				if err != nil {
					return fmt.Errorf("heap B alloc %d: %w", i, err)
				}
				ptrs[i] = p
			}
			for _, p := range ptrs {
				_ = b.Free(p)
			}
			b.Close()

			state.log.Info("abandon complete",
				zap.Int64("abandoned_before_close", before),
				zap.Int64("abandoned_after_close", afterClose),
				zap.Int64("abandoned_after_reclaim", b.AbandonedCount()),
			)
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 10_000, "live objects heap A allocates before exiting")
	return cmd
}
