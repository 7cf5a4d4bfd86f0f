// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewConfigFromEnvDefaults(t *testing.T) {
	cfg, err := NewConfigFromEnv()
	require.NoError(t, err)
	require.Greater(t, cfg.Threads, 0)
	require.Equal(t, 1, cfg.PromoteAge)
	require.False(t, cfg.LazySweep)
	require.Equal(t, uint64(defaultInterval64), cfg.DefaultInterval)
}

func TestNewConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("NEPTUNE_THREADS", "4")
	t.Setenv("NEPTUNE_LAZY_SWEEP", "true")
	t.Setenv("NEPTUNE_INTERVAL", "1024")

	cfg, err := NewConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Threads)
	require.True(t, cfg.LazySweep)
	require.Equal(t, uint64(1024), cfg.DefaultInterval)
}

func TestConfigStringContainsFields(t *testing.T) {
	cfg := Config{Threads: 3, PromoteAge: 1, LazySweep: true}
	s := cfg.String()
	require.Contains(t, s, "Threads=3")
	require.Contains(t, s, "LazySweep=true")
}
