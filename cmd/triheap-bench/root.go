// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/the-die/mimalloc/config"
)

// appState carries the handful of things every subcommand needs: a
// logger and the configuration surface resolved from flags/environment.
type appState struct {
	log *zap.Logger
	cfg config.Config
}

func newRootCmd() *cobra.Command {
	var verbose bool
	state := &appState{}

	root := &cobra.Command{
		Use:           "triheap-bench",
		Short:         "Drive the triheap allocator's end-to-end scenarios",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if verbose {
				state.log, err = zap.NewDevelopment()
			} else {
				state.log, err = zap.NewProduction()
			}
			if err != nil {
				return err
			}
			state.cfg, err = config.Load(cmd.Flags())
			return err
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable development (human-readable) logging")
	config.BindFlags(root.PersistentFlags())

	root.AddCommand(
		newChurnCmd(state),
		newProducerConsumerCmd(state),
		newAbandonCmd(state),
		newPurgeCmd(state),
		newNumaCmd(state),
		newReallocCmd(state),
		newServeMetricsCmd(state),
	)
	return root
}
