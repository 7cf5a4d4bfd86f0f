// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunScenarioLinkedList(t *testing.T) {
	require.NoError(t, RunScenario("linked-list", zap.NewNop()))
}

func TestRunScenarioCrossThread(t *testing.T) {
	require.NoError(t, RunScenario("cross-thread", zap.NewNop()))
}

func TestRunScenarioWeakRefs(t *testing.T) {
	require.NoError(t, RunScenario("weak-refs", zap.NewNop()))
}

func TestRunScenarioFinalizers(t *testing.T) {
	require.NoError(t, RunScenario("finalizers", zap.NewNop()))
}

func TestRunScenarioUnknownNameErrors(t *testing.T) {
	err := RunScenario("not-a-real-scenario", zap.NewNop())
	require.Error(t, err)
}

func TestRunBenchmarkCompletesRequestedCycles(t *testing.T) {
	require.NoError(t, RunBenchmark(2000, 6, zap.NewNop()))
}
