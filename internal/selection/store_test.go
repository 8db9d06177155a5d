package selection

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/pocketbench/internal/models"
)

func TestToggleTask(t *testing.T) {
	s := New()
	require.True(t, s.ToggleTask("mmlu"))
	require.True(t, s.ToggleTask("gsm8k"))
	require.True(t, s.HasTask("mmlu"))
	require.Equal(t, []string{"gsm8k", "mmlu"}, s.Tasks())

	require.False(t, s.ToggleTask("mmlu"))
	require.False(t, s.HasTask("mmlu"))
	require.Equal(t, 1, s.TaskCount())

	s.ClearTasks()
	require.Empty(t, s.Tasks())
}

func TestToggleQueueItemDoubleToggleRestoresQueue(t *testing.T) {
	s := New()
	s.ToggleQueueItem("org/a", "a.gguf", "Q4_K_M", "4.1 GB")
	s.ToggleQueueItem("org/b", "b.gguf", "Q8_0", "7.0 GB")
	before := s.Queue()

	removed := s.ToggleQueueItem("org/c", "c.gguf", "", "")
	require.False(t, removed)
	require.True(t, s.IsQueued("org/c", "c.gguf"))

	removed = s.ToggleQueueItem("org/c", "c.gguf", "", "")
	require.True(t, removed)
	require.Equal(t, before, s.Queue())

	// Removing the head keeps the order of the rest.
	require.True(t, s.ToggleQueueItem("org/a", "a.gguf", "", ""))
	require.Equal(t, []models.QueueItem{before[1]}, s.Queue())
}

func TestToggleQueueItemIdentityIsRepoAndFilename(t *testing.T) {
	s := New()
	require.False(t, s.ToggleQueueItem("org/a", "model.gguf", "", ""))
	require.False(t, s.ToggleQueueItem("org/b", "model.gguf", "", ""))
	require.Equal(t, 2, s.QueueLen())
	require.True(t, s.ToggleQueueItem("org/a", "model.gguf", "other-tags", "other-size"))
	require.False(t, s.IsQueued("org/a", "model.gguf"))
	require.True(t, s.IsQueued("org/b", "model.gguf"))
}

func TestQueueNeverHoldsDuplicates(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := New()
	for i := 0; i < 2000; i++ {
		repo := fmt.Sprintf("org/r%d", rng.Intn(4))
		file := fmt.Sprintf("f%d.gguf", rng.Intn(4))
		s.ToggleQueueItem(repo, file, "", "")

		seen := make(map[models.QueueKey]bool)
		for _, item := range s.Queue() {
			require.False(t, seen[item.Key()], "duplicate %s after %d toggles", item.Key(), i)
			seen[item.Key()] = true
		}
	}
}

func TestRemoveQueueItemOutOfRangeIsNoop(t *testing.T) {
	s := New()
	s.ToggleQueueItem("org/a", "a.gguf", "", "")
	rev := s.Revision()

	s.RemoveQueueItem(-1)
	s.RemoveQueueItem(1)
	require.Equal(t, 1, s.QueueLen())
	require.Equal(t, rev, s.Revision())

	s.RemoveQueueItem(0)
	require.Equal(t, 0, s.QueueLen())
	require.Greater(t, s.Revision(), rev)
}

func TestClearQueueAndRevision(t *testing.T) {
	s := New()
	start := s.Revision()
	s.ToggleQueueItem("org/a", "a.gguf", "", "")
	s.ToggleTask("mmlu")
	s.ClearQueue()
	require.Equal(t, 0, s.QueueLen())
	require.Equal(t, start+3, s.Revision())
}

func TestSnapshotCopies(t *testing.T) {
	s := New()
	s.ToggleQueueItem("org/a", "a.gguf", "", "")
	s.ToggleTask("mmlu")

	queue, tasks := s.Snapshot()
	queue[0].RepoID = "mutated"
	tasks[0] = "mutated"

	require.Equal(t, "org/a", s.Queue()[0].RepoID)
	require.Equal(t, []string{"mmlu"}, s.Tasks())
}

func TestFilterTasks(t *testing.T) {
	available := []string{"truthfulqa_mc2", "mmlu", "arc_challenge", "gsm8k", "MMLU_pro"}
	require.Equal(t, []string{"mmlu", "MMLU_pro"}, FilterTasks(available, " Mmlu "))
	require.Equal(t, []string{"mmlu", "gsm8k", "MMLU_pro", "arc_challenge", "truthfulqa_mc2"}, FilterTasks(available, ""))
	require.Empty(t, FilterTasks(available, "nope"))

	many := make([]string, 150)
	for i := range many {
		many[i] = fmt.Sprintf("task_%03d", i)
	}
	require.Len(t, FilterTasks(many, "task"), MaxTaskListing)
}

func TestPreview(t *testing.T) {
	shown, more := Preview([]string{"a", "b"})
	require.Equal(t, []string{"a", "b"}, shown)
	require.Zero(t, more)

	shown, more = Preview([]string{"a", "b", "c", "d", "e", "f", "g"})
	require.Len(t, shown, 5)
	require.Equal(t, 2, more)
}
