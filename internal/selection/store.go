// Package selection holds the operator's task selection and artifact queue.
package selection

import (
	"sort"
	"strings"
	"sync"

	"github.com/tOgg1/pocketbench/internal/models"
)

const (
	// MaxTaskListing caps the filtered task view.
	MaxTaskListing = 100

	// PreviewTasks is how many selected tasks a compact preview shows.
	PreviewTasks = 5
)

// Store is the in-memory selection state: a set of task ids and an ordered,
// duplicate-free queue of artifacts. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	tasks    map[string]struct{}
	queue    []models.QueueItem
	revision uint64
}

// New returns an empty store.
func New() *Store {
	return &Store{tasks: make(map[string]struct{})}
}

// Revision increases on every mutation. Views derived from the store are stale
// once the revision changes.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// ToggleTask adds id if absent and removes it if present. It reports whether
// the task is selected afterwards.
func (s *Store) ToggleTask(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revision++
	if _, ok := s.tasks[id]; ok {
		delete(s.tasks, id)
		return false
	}
	s.tasks[id] = struct{}{}
	return true
}

// HasTask reports whether id is selected.
func (s *Store) HasTask(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tasks[id]
	return ok
}

// ClearTasks empties the task selection.
func (s *Store) ClearTasks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revision++
	s.tasks = make(map[string]struct{})
}

// Tasks returns the selected task ids sorted by name.
func (s *Store) Tasks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// TaskCount returns the number of selected tasks.
func (s *Store) TaskCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// ToggleQueueItem removes the item with the same (repo_id, filename) if one is
// queued, otherwise appends a new item. removed reports which happened.
func (s *Store) ToggleQueueItem(repoID, filename, tags, size string) (removed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revision++

	key := models.QueueKey{RepoID: repoID, Filename: filename}
	if idx := s.indexLocked(key); idx >= 0 {
		s.queue = append(s.queue[:idx], s.queue[idx+1:]...)
		return true
	}
	s.queue = append(s.queue, models.QueueItem{
		RepoID:   repoID,
		Filename: filename,
		Tags:     tags,
		Size:     size,
	})
	return false
}

// RemoveQueueItem removes the item at index. Out of range indexes are ignored.
func (s *Store) RemoveQueueItem(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.queue) {
		return
	}
	s.revision++
	s.queue = append(s.queue[:index], s.queue[index+1:]...)
}

// ClearQueue empties the queue.
func (s *Store) ClearQueue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revision++
	s.queue = nil
}

// IsQueued reports whether an artifact is in the queue.
func (s *Store) IsQueued(repoID, filename string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexLocked(models.QueueKey{RepoID: repoID, Filename: filename}) >= 0
}

// Queue returns a copy of the queue in insertion order.
func (s *Store) Queue() []models.QueueItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.QueueItem(nil), s.queue...)
}

// QueueLen returns the number of queued items.
func (s *Store) QueueLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queue)
}

// Snapshot returns the queue and selected tasks under a single lock so a run
// request never mixes two different states.
func (s *Store) Snapshot() ([]models.QueueItem, []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	queue := append([]models.QueueItem(nil), s.queue...)
	tasks := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		tasks = append(tasks, id)
	}
	sort.Strings(tasks)
	return queue, tasks
}

func (s *Store) indexLocked(key models.QueueKey) int {
	for i, item := range s.queue {
		if item.Key() == key {
			return i
		}
	}
	return -1
}

// FilterTasks returns the catalogue entries containing filter
// (case-insensitive), shortest names first, capped at MaxTaskListing.
func FilterTasks(available []string, filter string) []string {
	query := strings.ToLower(strings.TrimSpace(filter))
	out := make([]string, 0, len(available))
	for _, task := range available {
		if strings.Contains(strings.ToLower(task), query) {
			out = append(out, task)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) < len(out[j])
		}
		return out[i] < out[j]
	})
	if len(out) > MaxTaskListing {
		out = out[:MaxTaskListing]
	}
	return out
}

// Preview returns up to PreviewTasks selected tasks and the number left out.
func Preview(tasks []string) ([]string, int) {
	if len(tasks) <= PreviewTasks {
		return tasks, 0
	}
	return tasks[:PreviewTasks], len(tasks) - PreviewTasks
}
