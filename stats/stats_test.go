// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stats

import (
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestRecordMallocIncrementsCountAndBytes(t *testing.T) {
	c := New(0)
	c.RecordMalloc(128)
	c.RecordMalloc(32)

	require.Equal(t, float64(2), counterValue(t, c.MallocsTotal))
	require.Equal(t, float64(160), counterValue(t, c.BytesAllocated))
}

func TestRecordFreeIncrementsCountAndBytes(t *testing.T) {
	c := New(0)
	c.RecordFree(64)

	require.Equal(t, float64(1), counterValue(t, c.FreesTotal))
	require.Equal(t, float64(64), counterValue(t, c.BytesFreed))
}

func TestRegisterAddsEveryCollectorExactlyOnce(t *testing.T) {
	c := New(0)
	reg := prometheus.NewRegistry()
	require.NoError(t, c.Register(reg))
	require.Error(t, c.Register(reg), "registering the same collectors twice must conflict")
}

func TestRefreshProcessRSSIsNoOpWithoutAPID(t *testing.T) {
	c := New(0)
	require.NoError(t, c.RefreshProcessRSS())
	require.Zero(t, gaugeValue(t, c.ProcessRSSBytes))
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestRefreshProcessRSSPopulatesGaugeForCurrentProcess(t *testing.T) {
	c := New(os.Getpid())
	require.NoError(t, c.RefreshProcessRSS())
	require.Greater(t, gaugeValue(t, c.ProcessRSSBytes), float64(0))
}
