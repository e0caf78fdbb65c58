// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestLoadWithNilFlagSetReturnsDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadHonorsExplicitFlagOverDefault(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Set("purge-delay", "5s"))
	require.NoError(t, fs.Set("disallow-os-alloc", "true"))
	require.NoError(t, fs.Set("arena-reserve-bytes", "4096"))

	cfg, err := Load(fs)
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, cfg.PurgeDelay)
	require.True(t, cfg.DisallowOSAlloc)
	require.Equal(t, uint64(4096), cfg.ArenaReserveBytes)
	// Untouched flags still resolve to their defaults.
	require.Equal(t, Default().ArenaPurgeMult, cfg.ArenaPurgeMult)
}

func TestLoadEnvOverridesDefaultButNotFlag(t *testing.T) {
	t.Setenv("TRIHEAP_ARENA_PURGE_MULT", "2.5")
	t.Setenv("TRIHEAP_ARENA_RESERVE_BYTES", "8192")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Set("arena-reserve-bytes", "4096"))

	cfg, err := Load(fs)
	require.NoError(t, err)
	require.Equal(t, 2.5, cfg.ArenaPurgeMult)
	require.Equal(t, uint64(4096), cfg.ArenaReserveBytes, "an explicitly set flag wins over the environment")
}

func TestBindFlagsRegistersEveryConfigField(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)

	for _, name := range []string{
		"purge-delay", "arena-purge-mult", "arena-reserve-bytes",
		"arena-eager-commit", "allow-large-os-pages",
		"disallow-arena-alloc", "disallow-os-alloc",
	} {
		require.NotNil(t, fs.Lookup(name), "flag %q must be registered", name)
	}
}
