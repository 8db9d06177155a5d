// Package run owns the benchmark run lifecycle: the Idle/Running state, the
// controller that starts and stops runs, and the navigation guard.
package run

import (
	"sync"
	"time"

	"github.com/tOgg1/pocketbench/internal/models"
)

// Snapshot is a consistent copy of State.
type Snapshot struct {
	State      models.RunState
	ActiveLog  string
	RunID      string
	Generation uint64
	StartedAt  time.Time
}

// State is the single run state instance. The controller mutates it; views
// and gates only read it.
type State struct {
	mu         sync.RWMutex
	state      models.RunState
	activeLog  string
	runID      string
	generation uint64
	startedAt  time.Time
}

// NewState returns an Idle state.
func NewState() *State {
	return &State{state: models.RunStateIdle}
}

// Current returns Idle or Running.
func (s *State) Current() models.RunState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Running reports whether a run is in progress.
func (s *State) Running() bool {
	return s.Current() == models.RunStateRunning
}

// ActiveLogIdentifier is the log file announced by the latest run. It is
// cleared when a run starts and survives the run's completion.
func (s *State) ActiveLogIdentifier() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeLog
}

// Snapshot returns all fields at once.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		State:      s.state,
		ActiveLog:  s.activeLog,
		RunID:      s.runID,
		Generation: s.generation,
		StartedAt:  s.startedAt,
	}
}

// begin moves Idle to Running for a new generation.
func (s *State) begin(runID string, now time.Time) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == models.RunStateRunning {
		return 0, models.ErrRunInProgress
	}
	s.generation++
	s.state = models.RunStateRunning
	s.activeLog = ""
	s.runID = runID
	s.startedAt = now
	return s.generation, nil
}

// setLog records the log file of generation gen. Events of an older run are
// ignored.
func (s *State) setLog(gen uint64, logFile string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return false
	}
	s.activeLog = logFile
	return true
}

// finish moves generation gen back to Idle. It reports false when gen is no
// longer running, so only the first of stop/done/end-of-stream wins.
func (s *State) finish(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || s.state != models.RunStateRunning {
		return false
	}
	s.state = models.RunStateIdle
	return true
}

// isCurrent reports whether gen is the latest generation.
func (s *State) isCurrent(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return gen == s.generation
}
