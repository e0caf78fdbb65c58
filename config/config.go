// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config binds the allocator's configuration surface (§6.3) to
// flags and environment variables, the same viper-over-pflag pattern used
// for CLI-driven services throughout the retrieved corpus: declare
// defaults, bind a flag set, let viper resolve precedence (flag > env >
// default). No config file is read.
package config

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix: TRIHEAP_PURGE_DELAY_MS,
// TRIHEAP_ARENA_RESERVE_BYTES, and so on.
const EnvPrefix = "TRIHEAP"

// EagerCommit mirrors §6.3's arena_eager_commit tri-state.
type EagerCommit int

const (
	EagerCommitOnDemand EagerCommit = iota
	EagerCommitAlways
	EagerCommitOnDemandIfOvercommit
)

// Config is the resolved configuration surface consumed by the engine.
type Config struct {
	// PurgeDelay is negative for "never purge", zero for "purge
	// immediately", positive for a delay (§6.3's purge_delay).
	PurgeDelay time.Duration `mapstructure:"purge_delay_ms"`
	// ArenaPurgeMult multiplies into PurgeDelay for arena-level decisions.
	ArenaPurgeMult float64 `mapstructure:"arena_purge_mult"`
	// ArenaReserveBytes is the default reserve size for lazily created
	// arenas.
	ArenaReserveBytes uint64 `mapstructure:"arena_reserve_bytes"`
	// ArenaEagerCommit is resolved like the other fields but the engine
	// does not read it: arenas always reserve uncommitted and commit a
	// range when it is claimed.
	ArenaEagerCommit EagerCommit `mapstructure:"arena_eager_commit"`
	// AllowLargeOSPages enables huge-page backed arenas.
	AllowLargeOSPages bool `mapstructure:"allow_large_os_pages"`
	// DisallowArenaAlloc is resolved like the other fields but the engine
	// does not read it: allocation always tries arenas before the OS-direct
	// fallback.
	DisallowArenaAlloc bool `mapstructure:"disallow_arena_alloc"`
	// DisallowOSAlloc forces arena allocation; requests that can't be
	// served by an arena fail rather than falling back to the OS.
	DisallowOSAlloc bool `mapstructure:"disallow_os_alloc"`
}

// Default returns the configuration the engine uses absent any flags,
// environment variables or config file.
func Default() Config {
	return Config{
		PurgeDelay:        10 * time.Second,
		ArenaPurgeMult:    1.0,
		ArenaReserveBytes: 1 << 30,
		ArenaEagerCommit:  EagerCommitOnDemand,
	}
}

// BindFlags registers the configuration surface on fs, for a cobra
// command's flag set, with the same names Load expects back from viper.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.Duration("purge-delay", d.PurgeDelay, "delay before a freed range is decommitted (negative disables purging)")
	fs.Float64("arena-purge-mult", d.ArenaPurgeMult, "multiplier applied to purge-delay for arena-level decommit")
	fs.Uint64("arena-reserve-bytes", d.ArenaReserveBytes, "default reserve size for lazily created arenas")
	fs.Int("arena-eager-commit", int(d.ArenaEagerCommit), "0=on-demand, 1=always, 2=on-demand if overcommit (accepted but not applied by the engine)")
	fs.Bool("allow-large-os-pages", d.AllowLargeOSPages, "enable huge-page backed arenas")
	fs.Bool("disallow-arena-alloc", d.DisallowArenaAlloc, "force OS-direct allocation, bypassing arenas (accepted but not applied by the engine)")
	fs.Bool("disallow-os-alloc", d.DisallowOSAlloc, "force arena allocation; fail instead of falling back to the OS")
}

// Load resolves the configuration from fs (if non-nil), the TRIHEAP_*
// environment variables, and built-in defaults, in that precedence
// order.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("purge_delay_ms", d.PurgeDelay)
	v.SetDefault("arena_purge_mult", d.ArenaPurgeMult)
	v.SetDefault("arena_reserve_bytes", d.ArenaReserveBytes)
	v.SetDefault("arena_eager_commit", int(d.ArenaEagerCommit))
	v.SetDefault("allow_large_os_pages", d.AllowLargeOSPages)
	v.SetDefault("disallow_arena_alloc", d.DisallowArenaAlloc)
	v.SetDefault("disallow_os_alloc", d.DisallowOSAlloc)

	if fs != nil {
		bindings := map[string]string{
			"purge-delay":          "purge_delay_ms",
			"arena-purge-mult":     "arena_purge_mult",
			"arena-reserve-bytes":  "arena_reserve_bytes",
			"arena-eager-commit":   "arena_eager_commit",
			"allow-large-os-pages": "allow_large_os_pages",
			"disallow-arena-alloc": "disallow_arena_alloc",
			"disallow-os-alloc":    "disallow_os_alloc",
		}
		for flagName, key := range bindings {
			if f := fs.Lookup(flagName); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, err
				}
			}
		}
	}

	cfg := Config{
		PurgeDelay:         v.GetDuration("purge_delay_ms"),
		ArenaPurgeMult:     v.GetFloat64("arena_purge_mult"),
		ArenaReserveBytes:  v.GetUint64("arena_reserve_bytes"),
		ArenaEagerCommit:   EagerCommit(v.GetInt("arena_eager_commit")),
		AllowLargeOSPages:  v.GetBool("allow_large_os_pages"),
		DisallowArenaAlloc: v.GetBool("disallow_arena_alloc"),
		DisallowOSAlloc:    v.GetBool("disallow_os_alloc"),
	}
	return cfg, nil
}
