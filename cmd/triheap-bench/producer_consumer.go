// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/the-die/mimalloc"
)

// newProducerConsumerCmd implements §8.4 scenario 2: one goroutine
// allocates and hands pointers to another over a channel, which frees
// them. Both sides use their own NewHeap() -- sharing the process-wide
// engine but not page-queue state -- so the free crosses the owner
// boundary and exercises the thread_free path (§4.1) rather than the
// owner-only fast path.
func newProducerConsumerCmd(state *appState) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "producer-consumer",
		Short: "Cross-goroutine allocate/free via a channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			producer := mimalloc.NewHeap()
			consumer := mimalloc.NewHeap()

			ptrs := make(chan uintptr, 1024)
			errs := make(chan error, 2)
			var wg sync.WaitGroup
			wg.Add(2)

			go func() {
				defer wg.Done()
				defer close(ptrs)
				for i := 0; i < count; i++ {
					p, err := producer.Malloc(128)
					if err != nil {
						errs <- fmt.Errorf("producer alloc %d: %w", i, err)
						return
					}
					ptrs <- p
				}
			}()

			go func() {
				defer wg.Done()
				for p := range ptrs {
					if err := consumer.Free(p); err != nil {
						errs <- fmt.Errorf("consumer free: %w", err)
						return
					}
				}
			}()

			wg.Wait()
			close(errs)
			for err := range errs {
				if err != nil {
					return err
				}
			}

			producer.Close()
			consumer.Close()
			state.log.Info("producer-consumer complete", zap.Int("count", count))
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 100_000, "objects to hand from producer to consumer")
	return cmd
}
