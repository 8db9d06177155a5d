// Package console is the interactive terminal front end: task and queue
// selection, run control, the live terminal and log history.
package console

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tOgg1/pocketbench/internal/events"
	"github.com/tOgg1/pocketbench/internal/logsync"
	"github.com/tOgg1/pocketbench/internal/models"
	"github.com/tOgg1/pocketbench/internal/run"
	"github.com/tOgg1/pocketbench/internal/selection"
	"github.com/tOgg1/pocketbench/internal/settings"
)

const (
	defaultRefresh = 250 * time.Millisecond
	noticeTTL      = 4 * time.Second
	eventBuffer    = 256
)

// Notification texts.
const (
	msgNavigationBlocked = "Stop benchmark first!"
	msgEmptyQueue        = "Cart is empty!"
	msgNoTasks           = "Select a benchmark"
	msgAddedToCart       = "Added to Cart"
	msgRemovedFromCart   = "Removed from Cart"
	msgSettingsSaved     = "Settings Saved"
	msgModelDeleted      = "Deleted"
	msgQueryTooShort     = "Type at least 2 characters"
)

// minQueryLen is the shortest query sent to the hub search.
const minQueryLen = 2

// Catalog supplies the task catalogue, hub search and the server's artifact
// cache.
type Catalog interface {
	Tasks(ctx context.Context) []string
	Search(ctx context.Context, q string) ([]models.SearchResult, error)
	Files(ctx context.Context, repo string) ([]models.RepoFile, error)
	LocalModels(ctx context.Context) ([]models.LocalModel, error)
	DeleteModel(ctx context.Context, req models.DeleteModelRequest) (models.StatusResponse, error)
}

// Deps wires the console to the rest of the program.
type Deps struct {
	Store      *selection.Store
	Controller *run.Controller
	Sync       *logsync.Service
	Catalog    Catalog
	Settings   *settings.Manager
	Publisher  *events.InMemoryPublisher
	Theme      Theme
	Refresh    time.Duration
}

type notice struct {
	text     string
	severity models.Severity
	at       time.Time
}

// Model is the bubbletea model of the console.
type Model struct {
	ctx       context.Context
	store     *selection.Store
	ctrl      *run.Controller
	guard     *run.Guard
	sync      *logsync.Service
	catalog   Catalog
	settings  *settings.Manager
	publisher *events.InMemoryPublisher
	subID     string
	eventsCh  <-chan models.Event
	styles    styles
	refresh   time.Duration
	now       func() time.Time

	width  int
	height int
	page   run.Page

	tasks      []string
	taskFilter string
	filtering  bool
	taskCursor int

	queueCursor  int
	confirmClear bool

	localModels  []models.LocalModel
	modelCursor  int
	confirmModel *models.LocalModel

	search searchState

	history       []models.LogHistoryEntry
	historyCursor int
	confirmDelete string

	settingsCursor int

	notice notice
}

// New builds the console model. ctx bounds every remote call and run the
// console starts.
func New(ctx context.Context, deps Deps) (*Model, error) {
	if deps.Store == nil || deps.Controller == nil || deps.Sync == nil || deps.Catalog == nil {
		return nil, errors.New("console: store, controller, sync and catalog are required")
	}
	if deps.Settings == nil {
		deps.Settings = settings.New("", models.DefaultSettings())
	}
	if deps.Theme.Name == "" {
		deps.Theme = DefaultTheme
	}
	if deps.Refresh <= 0 {
		deps.Refresh = defaultRefresh
	}

	m := &Model{
		ctx:       ctx,
		store:     deps.Store,
		ctrl:      deps.Controller,
		guard:     run.NewGuard(deps.Controller.State()),
		sync:      deps.Sync,
		catalog:   deps.Catalog,
		settings:  deps.Settings,
		publisher: deps.Publisher,
		styles:    newStyles(deps.Theme),
		refresh:   deps.Refresh,
		now:       time.Now,
		page:      run.PageTasks,
	}
	if m.publisher != nil {
		id, ch, err := m.publisher.SubscribeChannel(events.Filter{EventTypes: []models.EventType{
			models.EventTypeNotification,
			models.EventTypeRunStarted,
			models.EventTypeRunFinished,
			models.EventTypeLogIdentified,
		}}, eventBuffer)
		if err != nil {
			return nil, err
		}
		m.subID = id
		m.eventsCh = ch
	}
	return m, nil
}

// Run starts the console on the terminal and blocks until it exits.
func Run(ctx context.Context, deps Deps) error {
	m, err := New(ctx, deps)
	if err != nil {
		return err
	}
	defer m.Close()

	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = program.Run()
	return err
}

// Close releases the event subscription and flushes settings.
func (m *Model) Close() {
	if m.publisher != nil && m.subID != "" {
		_ = m.publisher.Unsubscribe(m.subID)
		m.subID = ""
	}
	if m.settings != nil {
		_ = m.settings.Close()
	}
}

// Page returns the active page.
func (m *Model) Page() run.Page {
	return m.page
}

// Notice returns the text of the current notification.
func (m *Model) Notice() string {
	return m.notice.text
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.loadTasksCmd(), m.loadModelsCmd(), m.tickCmd(), m.waitEventCmd())
}

func (m *Model) setNotice(severity models.Severity, text string) {
	m.notice = notice{text: text, severity: severity, at: m.now()}
}

// navigate switches pages through the run guard.
func (m *Model) navigate(target run.Page) tea.Cmd {
	if err := m.guard.Allow(target); err != nil {
		m.setNotice(models.SeverityError, msgNavigationBlocked)
		return nil
	}
	if m.page == target {
		return nil
	}
	m.page = target
	m.confirmClear = false
	m.confirmDelete = ""
	m.confirmModel = nil
	switch target {
	case run.PageHistory:
		return m.loadHistoryCmd()
	case run.PageModels:
		return m.loadModelsCmd()
	case run.PageRun:
		return m.openTerminalCmd()
	}
	return nil
}
