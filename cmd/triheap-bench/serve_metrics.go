// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/the-die/mimalloc"
	"github.com/the-die/mimalloc/stats"
)

// newServeMetricsCmd exposes the engine's prometheus registry over HTTP,
// using the stdlib net/http server every metrics-exporting repo in the
// corpus reaches for (§2a).
func newServeMetricsCmd(state *appState) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Serve the allocator's prometheus registry over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := prometheus.NewRegistry()
			metrics := stats.New(os.Getpid())
			if err := metrics.Register(reg); err != nil {
				return err
			}

			h := mimalloc.NewHeapWithConfig(state.cfg, state.log)
			h.SetMetrics(metrics)

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			srv := &http.Server{Addr: addr, Handler: mux}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			go func() {
				ticker := time.NewTicker(time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						_ = metrics.RefreshProcessRSS()
					}
				}
			}()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			state.log.Info("serving metrics", zap.String("addr", addr))
			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			case err := <-errCh:
				if err == http.ErrServerClosed {
					return nil
				}
				return err
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9469", "address to serve /metrics on")
	return cmd
}
