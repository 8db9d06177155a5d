package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRunRequestSnapshotsQueueAndTasks(t *testing.T) {
	queue := []QueueItem{
		{RepoID: "org/a", Filename: "a.Q4_K_M.gguf"},
		{RepoID: "org/b", Filename: "b.Q8_0.gguf"},
	}
	tasks := []string{"gsm8k", "mmlu"}
	req := NewRunRequest(queue, tasks, Settings{Device: "cuda", BatchSize: "4", Verbosity: "INFO"})

	require.Len(t, req.Jobs, 2)
	require.Equal(t, "org/a", req.Jobs[0].RepoID)
	require.Equal(t, "org/b", req.Jobs[1].RepoID)
	require.Equal(t, 4, req.Batch)
	require.Equal(t, "cuda", req.Device)
	for _, job := range req.Jobs {
		require.Equal(t, NoLimit, job.Limit)
		require.ElementsMatch(t, tasks, job.Tasks)
	}

	// Mutating inputs must not leak into the request.
	queue[0].RepoID = "changed"
	tasks[0] = "changed"
	require.Equal(t, "org/a", req.Jobs[0].RepoID)
	require.NotContains(t, req.Jobs[0].Tasks, "changed")

	req.Jobs[0].Tasks[0] = "x"
	require.NotEqual(t, "x", req.Jobs[1].Tasks[0])
}

func TestSettingsMergeAndValidate(t *testing.T) {
	s := DefaultSettings().Merge(Settings{BatchSize: "8"})
	require.Equal(t, "auto", s.Device)
	require.Equal(t, "8", s.BatchSize)
	require.Equal(t, 8, s.BatchSizeInt())
	require.NoError(t, s.Validate())

	bad := Settings{Device: "tpu", BatchSize: "3", Verbosity: "DEBUG"}
	err := bad.Validate()
	require.Error(t, err)
	var list *ValidationErrors
	require.True(t, errors.As(err, &list))
	require.Len(t, list.Errors, 3)

	require.Equal(t, 1, Settings{BatchSize: "nope"}.BatchSizeInt())
}

func TestPreconditionErrorUnwraps(t *testing.T) {
	err := error(&PreconditionError{Cause: ErrEmptyQueue})
	require.True(t, errors.Is(err, ErrEmptyQueue))
	require.False(t, errors.Is(err, ErrNoTasks))
	require.Equal(t, "cart is empty", err.Error())
}

func TestStreamEventRecognized(t *testing.T) {
	require.False(t, StreamEvent{}.Recognized())
	require.True(t, StreamEvent{HasLog: true}.Recognized())
	require.True(t, StreamEvent{StartInfo: &StartInfo{LogFile: "BATCH_1.log"}}.Recognized())
	require.False(t, StreamEvent{StartInfo: &StartInfo{}}.Recognized())
	require.True(t, StreamEvent{Done: true}.Recognized())
}

func TestQueueItemShortRepo(t *testing.T) {
	require.Equal(t, "model-GGUF", QueueItem{RepoID: "org/model-GGUF"}.ShortRepo())
	require.Equal(t, "plain", QueueItem{RepoID: "plain"}.ShortRepo())
}
