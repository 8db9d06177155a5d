package testutil

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/pocketbench/internal/benchmock"
)

func TestBenchEnvServesTasks(t *testing.T) {
	env := NewBenchEnv(t, benchmock.Config{Tasks: []string{"mmlu"}})

	tasks, err := env.Client.FetchTasks(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"mmlu"}, tasks)
}

func TestBenchEnvClose(t *testing.T) {
	env := NewBenchEnv(t, benchmock.Config{})
	env.Close()

	_, err := env.Client.FetchTasks(context.Background())
	require.Error(t, err)
}

func TestBenchEnvWaitForLog(t *testing.T) {
	env := NewBenchEnv(t, benchmock.Config{})
	env.Mock.AddLog("BATCH_20240101_000000.log", "hello")

	require.True(t, env.WaitForLog("BATCH_20240101_000000.log", "hello", time.Second))
	require.False(t, env.WaitForLog("BATCH_20240101_000000.log", "bye", 50*time.Millisecond))
	require.True(t, env.WaitForRunning(false, time.Second))
}

func TestWaitFor(t *testing.T) {
	var calls atomic.Int32
	require.True(t, WaitFor(time.Second, func() bool { return calls.Add(1) >= 3 }))
	require.False(t, WaitFor(30*time.Millisecond, func() bool { return false }))
}
