package run

import "github.com/tOgg1/pocketbench/internal/models"

// Page identifies a console view.
type Page string

const (
	PageRun      Page = "run"
	PageTasks    Page = "tasks"
	PageQueue    Page = "queue"
	PageHistory  Page = "history"
	PageSettings Page = "settings"
	PageModels   Page = "models"
	PageSearch   Page = "search"
)

// Guard rejects navigation away from the run view while a run is in progress.
type Guard struct {
	state *State
}

// NewGuard creates a guard over state.
func NewGuard(state *State) *Guard {
	return &Guard{state: state}
}

// Allow returns ErrNavigationBlocked when target is not reachable now.
func (g *Guard) Allow(target Page) error {
	if target == PageRun || !g.state.Running() {
		return nil
	}
	return models.ErrNavigationBlocked
}
