// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command neptunebench is a toy host runtime for the neptune collector: a
// minimal tagged-value interpreter that exercises roots, write barriers
// and finalizers end to end, so the scenarios in spec.md §8 are runnable
// rather than only unit-tested in isolation.
package main

import (
	"fmt"
	"os"

	"github.com/neptune-gc/neptune/cmd/neptunebench/host"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			// Heap-corruption panics are never recovered inside the
			// collector itself (spec.md §7); this is the one place that
			// may catch one, purely to print a clean diagnostic.
			fmt.Fprintf(os.Stderr, "neptunebench: fatal: %v\n", r)
			os.Exit(2)
		}
	}()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:   "neptunebench",
		Short: "toy host runtime for the neptune garbage collector",
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"zap log level (debug, info, warn, error)")

	root.AddCommand(newRunCmd(&logLevel))
	root.AddCommand(newBenchCmd(&logLevel))
	root.AddCommand(newServeMetricsCmd(&logLevel))
	return root
}

func buildLogger(level string) *zap.Logger {
	var lvl zap.AtomicLevel
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func newRunCmd(logLevel *string) *cobra.Command {
	var scenario string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run one named end-to-end scenario and report pass/fail",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := buildLogger(*logLevel)
			defer log.Sync()
			return host.RunScenario(scenario, log)
		},
	}
	cmd.Flags().StringVar(&scenario, "scenario", "linked-list",
		"scenario to run: linked-list, cross-thread, weak-refs, finalizers")
	return cmd
}

func newBenchCmd(logLevel *string) *cobra.Command {
	var objects int
	var cycles int
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "allocate churn and drive repeated collections, reporting timings",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := buildLogger(*logLevel)
			defer log.Sync()
			return host.RunBenchmark(objects, cycles, log)
		},
	}
	cmd.Flags().IntVar(&objects, "objects", 100_000, "live objects to maintain")
	cmd.Flags().IntVar(&cycles, "cycles", 10, "collection cycles to force")
	return cmd
}

func newServeMetricsCmd(logLevel *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "run the linked-list scenario continuously, serving prometheus metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := buildLogger(*logLevel)
			defer log.Sync()
			return host.ServeMetrics(addr, log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9400", "address to serve /metrics on")
	return cmd
}
