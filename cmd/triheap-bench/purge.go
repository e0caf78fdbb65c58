// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/the-die/mimalloc"
)

// newPurgeCmd implements §8.4 scenario 4: with a short purge delay,
// allocate and free a large block, then keep the generic routine
// opportunistically running (by driving unrelated small allocation
// traffic) past the expiry so the decommit actually happens.
func newPurgeCmd(state *appState) *cobra.Command {
	var blockBytes uint64
	var delayMs int
	var waitMs int
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Free a large block and observe delayed decommit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := state.cfg
			cfg.PurgeDelay = time.Duration(delayMs) * time.Millisecond
			h := mimalloc.NewHeapWithConfig(cfg, state.log)

			ptr, err := h.Malloc(uintptr(blockBytes))
			if err != nil {
				return fmt.Errorf("alloc %d bytes: %w", blockBytes, err)
			}
			if err := h.Free(ptr); err != nil {
				return fmt.Errorf("free: %w", err)
			}

			deadline := time.Now().Add(time.Duration(waitMs) * time.Millisecond)
			for time.Now().Before(deadline) {
				// small unrelated traffic drives the generic routine, the
				// only place tryPurgeAll is invoked (§4.6).
				p, err := h.Malloc(16)
				if err == nil {
					_ = h.Free(p)
				}
				time.Sleep(5 * time.Millisecond)
			}

			state.log.Info("purge window elapsed",
				zap.Duration("delay", cfg.PurgeDelay),
				zap.Int("waited_ms", waitMs),
			)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&blockBytes, "block-bytes", 256<<20, "size of the block to allocate then free")
	cmd.Flags().IntVar(&delayMs, "delay-ms", 100, "purge delay in milliseconds")
	cmd.Flags().IntVar(&waitMs, "wait-ms", 500, "how long to busy-wait with unrelated allocation traffic")
	return cmd
}
