// SPDX-License-Identifier: MIT

//go:build unix

package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnAndStop(t *testing.T) {
	proc, err := Spawn(context.Background(), "sleep 30", zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, proc)
	assert.Greater(t, proc.Pid(), 0)

	start := time.Now()
	err = proc.Stop(2 * time.Second)
	assert.NoError(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestSpawnEmptyCommand(t *testing.T) {
	_, err := Spawn(context.Background(), "   ", zerolog.Nop())
	require.Error(t, err)
}

func TestSpawnMissingBinary(t *testing.T) {
	_, err := Spawn(context.Background(), "/nonexistent/serve-bin --port 1", zerolog.Nop())
	require.Error(t, err)
}

func TestStopNilProcess(t *testing.T) {
	var proc *Process
	assert.NoError(t, proc.Stop(time.Second))
}

func TestSpawnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Spawn(ctx, "sleep 30", zerolog.Nop())
	require.Error(t, err)
}
