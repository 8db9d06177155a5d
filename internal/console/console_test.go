package console

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/pocketbench/internal/benchmock"
	"github.com/tOgg1/pocketbench/internal/events"
	"github.com/tOgg1/pocketbench/internal/logsync"
	"github.com/tOgg1/pocketbench/internal/models"
	"github.com/tOgg1/pocketbench/internal/run"
	"github.com/tOgg1/pocketbench/internal/selection"
	"github.com/tOgg1/pocketbench/internal/settings"
	"github.com/tOgg1/pocketbench/internal/testutil"
)

type fixture struct {
	model *Model
	mock  *benchmock.Server
	store *selection.Store
	ctrl  *run.Controller
	sync  *logsync.Service
}

func newFixture(t *testing.T, cfg benchmock.Config) *fixture {
	t.Helper()
	env := testutil.NewBenchEnv(t, cfg)
	client := env.Client

	pub := events.NewInMemoryPublisher()
	state := run.NewState()
	sync := logsync.NewService(client, state, logsync.WithPublisher(pub))
	ctrl := run.NewController(client, sync.Live(), run.WithPublisher(pub), run.WithState(state))
	store := selection.New()

	m, err := New(context.Background(), Deps{
		Store:      store,
		Controller: ctrl,
		Sync:       sync,
		Catalog:    client,
		Settings:   settings.New("", models.DefaultSettings()),
		Publisher:  pub,
	})
	require.NoError(t, err)
	t.Cleanup(m.Close)

	m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	return &fixture{model: m, mock: env.Mock, store: store, ctrl: ctrl, sync: sync}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace}
	case "backspace":
		return tea.KeyMsg{Type: tea.KeyBackspace}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends a key and runs the command it returns once, feeding the result
// back into the model.
func (f *fixture) press(t *testing.T, s string) {
	t.Helper()
	_, cmd := f.model.Update(key(s))
	f.exec(cmd)
}

func (f *fixture) exec(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	if msg := cmd(); msg != nil {
		f.model.Update(msg)
	}
}

// drain applies every event already queued for the console.
func (f *fixture) drain() {
	for {
		select {
		case ev := <-f.model.eventsCh:
			f.model.Update(eventMsg(ev))
		default:
			return
		}
	}
}

func (f *fixture) waitRun(t *testing.T) models.RunOutcome {
	t.Helper()
	current := f.ctrl.Current()
	require.NotNil(t, current)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	outcome, err := current.Wait(ctx)
	require.NoError(t, err)
	return outcome
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(context.Background(), Deps{})
	require.Error(t, err)
}

func TestStartPreconditionNotices(t *testing.T) {
	f := newFixture(t, benchmock.Config{})

	f.press(t, "3")
	f.press(t, "s")
	require.Equal(t, msgEmptyQueue, f.model.Notice())

	f.store.ToggleQueueItem("org/a", "a.gguf", "Q4", "1 GB")
	f.press(t, "s")
	require.Equal(t, msgNoTasks, f.model.Notice())
	require.Equal(t, models.RunStateIdle, f.ctrl.State().Current())
	require.Empty(t, f.mock.Requests())
}

func TestTaskFilterAndToggle(t *testing.T) {
	f := newFixture(t, benchmock.Config{Tasks: []string{"mmlu", "gsm8k", "arc_easy"}})
	f.exec(f.model.loadTasksCmd())

	require.Equal(t, run.PageTasks, f.model.Page())
	f.press(t, "/")
	for _, r := range "gsm" {
		f.press(t, string(r))
	}
	f.press(t, "enter")
	require.Equal(t, []string{"gsm8k"}, f.model.visibleTasks())

	f.press(t, " ")
	require.True(t, f.store.HasTask("gsm8k"))
	require.Contains(t, f.model.View(), "[x] gsm8k")

	f.press(t, "esc")
	require.Len(t, f.model.visibleTasks(), 3)
	f.press(t, "c")
	require.Zero(t, f.store.TaskCount())
}

func TestRunFromCartStreamsIntoTerminal(t *testing.T) {
	f := newFixture(t, benchmock.Config{})
	f.store.ToggleQueueItem("org/a-GGUF", "a.gguf", "Q4", "1 GB")
	f.store.ToggleTask("mmlu")

	f.press(t, "3")
	f.press(t, "s")
	require.Equal(t, run.PageRun, f.model.Page())
	require.Equal(t, models.RunOutcomeDone, f.waitRun(t))

	live := f.sync.Live().Text()
	require.Contains(t, live, "BATCH STARTED")
	require.Contains(t, live, "BATCH COMPLETE")
	require.NotEmpty(t, f.ctrl.State().ActiveLogIdentifier())
	require.Contains(t, f.model.View(), logsync.LiveTitle)
}

func TestNavigationBlockedWhileRunning(t *testing.T) {
	f := newFixture(t, benchmock.Config{HoldOpen: true})
	f.store.ToggleQueueItem("org/a", "a.gguf", "", "")
	f.store.ToggleTask("mmlu")

	f.press(t, "3")
	f.press(t, "s")
	require.True(t, f.ctrl.State().Running())

	f.press(t, "2")
	require.Equal(t, run.PageRun, f.model.Page())
	require.Equal(t, msgNavigationBlocked, f.model.Notice())

	f.press(t, "x")
	require.False(t, f.ctrl.State().Running())
	require.Equal(t, models.RunOutcomeStopped, f.waitRun(t))

	f.press(t, "2")
	require.Equal(t, run.PageTasks, f.model.Page())
}

func TestResyncWithoutActiveLogNotifies(t *testing.T) {
	f := newFixture(t, benchmock.Config{})
	f.model.page = run.PageRun

	f.press(t, "r")
	f.drain()
	require.Equal(t, "No active log file", f.model.Notice())
}

func TestHistoryReopenAndDelete(t *testing.T) {
	f := newFixture(t, benchmock.Config{})
	f.mock.AddLog("BATCH_20240102_030405.log", "older output\n")
	f.mock.AddLog("BATCH_20240305_101010.log", "newer output\n")

	f.press(t, "4")
	require.Len(t, f.model.history, 2)
	require.Equal(t, "BATCH_20240305_101010.log", f.model.history[0].Filename)

	f.press(t, "j")
	f.press(t, "enter")
	require.Equal(t, run.PageRun, f.model.Page())
	view := f.sync.View()
	require.True(t, view.ReadOnly())
	require.Equal(t, "BATCH_20240102_030405.log", view.Filename)
	require.Equal(t, "older output\n", f.sync.Historical().Text())
	require.Contains(t, f.model.View(), logsync.HistoricalPrefix+"BATCH_20240102_030405.log")

	f.press(t, "4")
	f.press(t, "j")
	f.press(t, "d")
	require.Equal(t, "BATCH_20240102_030405.log", f.model.confirmDelete)
	require.Contains(t, f.model.View(), "Delete this log?")

	f.press(t, "n")
	_, ok := f.mock.Log("BATCH_20240102_030405.log")
	require.True(t, ok)

	f.press(t, "d")
	f.press(t, "y")
	f.drain()
	_, ok = f.mock.Log("BATCH_20240102_030405.log")
	require.False(t, ok)
	require.Len(t, f.model.history, 1)
	require.Equal(t, "Deleted", f.model.Notice())
	require.False(t, f.sync.View().ReadOnly())
}

func TestQueueRemoveAndClearConfirm(t *testing.T) {
	f := newFixture(t, benchmock.Config{})
	f.store.ToggleQueueItem("org/a", "a.gguf", "", "")
	f.store.ToggleQueueItem("org/b", "b.gguf", "", "")
	f.store.ToggleQueueItem("org/c", "c.gguf", "", "")

	f.press(t, "3")
	f.press(t, "j")
	f.press(t, "d")
	queue := f.store.Queue()
	require.Len(t, queue, 2)
	require.Equal(t, "c.gguf", queue[1].Filename)

	f.press(t, "C")
	require.Contains(t, f.model.View(), "Clear all items from cart?")
	f.press(t, "n")
	require.Equal(t, 2, f.store.QueueLen())

	f.press(t, "C")
	f.press(t, "y")
	require.Zero(t, f.store.QueueLen())
}

func TestModelsPageTogglesCart(t *testing.T) {
	f := newFixture(t, benchmock.Config{})

	f.press(t, "6")
	require.Len(t, f.model.localModels, 2)

	f.press(t, "enter")
	require.Equal(t, msgAddedToCart, f.model.Notice())
	require.Equal(t, 1, f.store.QueueLen())

	f.press(t, "enter")
	require.Equal(t, msgRemovedFromCart, f.model.Notice())
	require.Zero(t, f.store.QueueLen())

	f.press(t, "j")
	f.press(t, "enter")
	require.Zero(t, f.store.QueueLen())
}

func TestSearchOpensRepoAndFillsCart(t *testing.T) {
	f := newFixture(t, benchmock.Config{})

	f.press(t, "7")
	require.Equal(t, run.PageSearch, f.model.Page())

	f.press(t, "/")
	f.press(t, "q")
	f.press(t, "enter")
	require.Equal(t, msgQueryTooShort, f.model.Notice())
	require.Empty(t, f.model.search.results)

	f.press(t, "/")
	for _, r := range "wen" {
		f.press(t, string(r))
	}
	f.press(t, "enter")
	require.Len(t, f.model.search.results, 1)
	require.Equal(t, "Qwen/Qwen2-0.5B-Instruct-GGUF", f.model.search.results[0].ID)

	f.press(t, "enter")
	require.Equal(t, "Qwen/Qwen2-0.5B-Instruct-GGUF", f.model.search.repo)
	require.Len(t, f.model.search.files, 2)
	require.Contains(t, f.model.View(), "[ ] model.Q4_K_M.gguf")

	f.press(t, "enter")
	require.Equal(t, msgAddedToCart, f.model.Notice())
	require.True(t, f.store.IsQueued("Qwen/Qwen2-0.5B-Instruct-GGUF", "model.Q4_K_M.gguf"))
	require.Contains(t, f.model.View(), "[x] model.Q4_K_M.gguf")

	queue := f.store.Queue()
	require.Len(t, queue, 1)
	require.Equal(t, "Q4_K_M", queue[0].Tags)
	require.Equal(t, "4.1 GB", queue[0].Size)

	f.press(t, "enter")
	require.Equal(t, msgRemovedFromCart, f.model.Notice())
	require.Zero(t, f.store.QueueLen())

	f.press(t, "esc")
	require.Empty(t, f.model.search.repo)
	require.Len(t, f.model.search.results, 1)
}

func TestSearchQueryTypingDoesNotNavigate(t *testing.T) {
	f := newFixture(t, benchmock.Config{})

	f.press(t, "7")
	f.press(t, "/")
	f.press(t, "1")
	f.press(t, "q")
	require.Equal(t, run.PageSearch, f.model.Page())
	require.Equal(t, "1q", f.model.search.query)
}

func TestModelsPageDeletesWithConfirm(t *testing.T) {
	f := newFixture(t, benchmock.Config{})

	f.press(t, "6")
	require.Len(t, f.model.localModels, 2)

	f.press(t, "d")
	require.Contains(t, f.model.View(), "Delete model qwen2-0_5b-instruct-q4_k_m.gguf? (y/n)")
	f.press(t, "n")
	require.Nil(t, f.model.confirmModel)

	f.press(t, "j")
	f.press(t, "d")
	require.Contains(t, f.model.View(), "Permanently delete this corrupted file?")
	f.press(t, "y")
	require.Equal(t, msgModelDeleted, f.model.Notice())

	f.exec(f.model.loadModelsCmd())
	require.Len(t, f.model.localModels, 1)
	require.Equal(t, models.LocalModelValid, f.model.localModels[0].Type)
}

func TestDeleteRequestAddressing(t *testing.T) {
	broken := models.LocalModel{Type: models.LocalModelIncomplete, RepoID: "org/a", Filename: "a.gguf", Path: "/cache/a.incomplete"}
	require.Equal(t, models.DeleteModelRequest{Path: "/cache/a.incomplete"}, deleteRequest(broken))
	require.True(t, deletable(broken))

	valid := models.LocalModel{Type: models.LocalModelValid, RepoID: "org/a", Filename: "a.gguf", Revision: "main"}
	require.Equal(t, models.DeleteModelRequest{RepoID: "org/a", Revision: "main", Filename: "a.gguf"}, deleteRequest(valid))
	require.True(t, deletable(valid))

	valid.Revision = ""
	require.False(t, deletable(valid))
}

func TestSettingsCycle(t *testing.T) {
	f := newFixture(t, benchmock.Config{})

	f.press(t, "5")
	f.press(t, "l")
	require.Equal(t, models.DeviceOptions[1], f.model.settings.Get().Device)
	require.Equal(t, msgSettingsSaved, f.model.Notice())

	f.press(t, "j")
	f.press(t, "h")
	last := models.BatchSizeOptions[len(models.BatchSizeOptions)-1]
	require.Equal(t, last, f.model.settings.Get().BatchSize)

	f.press(t, "D")
	require.Equal(t, models.DefaultSettings(), f.model.settings.Get())
}

func TestWindowSizeSetsViewport(t *testing.T) {
	f := newFixture(t, benchmock.Config{})
	f.model.Update(tea.WindowSizeMsg{Width: 80, Height: 17})

	rows := f.model.terminalRows()
	require.Equal(t, 10, rows)
	require.Equal(t, rows*logsync.LineHeight, f.sync.Live().Snapshot().ViewportHeight)
	require.Equal(t, rows*logsync.LineHeight, f.sync.Historical().Snapshot().ViewportHeight)
}

func TestRunPageScrolling(t *testing.T) {
	f := newFixture(t, benchmock.Config{})
	f.model.page = run.PageRun
	f.sync.Live().Replace(strings.Repeat("line\n", 200))
	f.sync.Live().ScrollToBottom()

	f.press(t, "g")
	require.Zero(t, f.sync.Live().Snapshot().ScrollTop)
	f.press(t, "j")
	require.Equal(t, logsync.LineHeight, f.sync.Live().Snapshot().ScrollTop)
	f.press(t, "G")
	require.True(t, f.sync.Live().Snapshot().AtBottom())
}

func TestWindow(t *testing.T) {
	start, end := window(0, 3, 10)
	require.Equal(t, 0, start)
	require.Equal(t, 3, end)

	start, end = window(50, 100, 10)
	require.Equal(t, 45, start)
	require.Equal(t, 55, end)

	start, end = window(99, 100, 10)
	require.Equal(t, 90, start)
	require.Equal(t, 100, end)
}

func TestThemeByName(t *testing.T) {
	theme, err := ThemeByName("")
	require.NoError(t, err)
	require.Equal(t, DefaultTheme, theme)

	theme, err = ThemeByName("high-contrast")
	require.NoError(t, err)
	require.Equal(t, HighContrastTheme, theme)

	_, err = ThemeByName("neon")
	require.Error(t, err)
}
