package console

import (
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tOgg1/pocketbench/internal/logsync"
	"github.com/tOgg1/pocketbench/internal/models"
	"github.com/tOgg1/pocketbench/internal/run"
	"github.com/tOgg1/pocketbench/internal/selection"
)

type tickMsg time.Time

type eventMsg models.Event

type tasksLoadedMsg []string

type modelsLoadedMsg struct {
	models []models.LocalModel
	err    error
}

type historyLoadedMsg struct {
	entries []models.LogHistoryEntry
	err     error
}

type runStartedMsg struct {
	err error
}

// opDoneMsg reports the end of a background operation. Successful operations
// publish their own notifications, so only failures are surfaced here.
type opDoneMsg struct {
	op  string
	err error
}

var pageKeys = map[string]run.Page{
	"1": run.PageRun,
	"2": run.PageTasks,
	"3": run.PageQueue,
	"4": run.PageHistory,
	"5": run.PageSettings,
	"6": run.PageModels,
	"7": run.PageSearch,
}

var pageOrder = []run.Page{run.PageRun, run.PageTasks, run.PageQueue, run.PageHistory, run.PageSettings, run.PageModels, run.PageSearch}

func (m *Model) tickCmd() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) waitEventCmd() tea.Cmd {
	if m.eventsCh == nil {
		return nil
	}
	ch := m.eventsCh
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func (m *Model) loadTasksCmd() tea.Cmd {
	catalog, ctx := m.catalog, m.ctx
	return func() tea.Msg {
		return tasksLoadedMsg(catalog.Tasks(ctx))
	}
}

func (m *Model) loadModelsCmd() tea.Cmd {
	catalog, ctx := m.catalog, m.ctx
	return func() tea.Msg {
		list, err := catalog.LocalModels(ctx)
		return modelsLoadedMsg{models: list, err: err}
	}
}

func (m *Model) loadHistoryCmd() tea.Cmd {
	sync, ctx := m.sync, m.ctx
	return func() tea.Msg {
		entries, err := sync.List(ctx)
		return historyLoadedMsg{entries: entries, err: err}
	}
}

func (m *Model) openTerminalCmd() tea.Cmd {
	sync, ctx := m.sync, m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: "sync", err: sync.OpenTerminal(ctx)}
	}
}

func (m *Model) resyncCmd() tea.Cmd {
	sync, ctx := m.sync, m.ctx
	return func() tea.Msg {
		err := sync.Resync(ctx)
		if errors.Is(err, models.ErrNoActiveLog) {
			// Already announced by the sync service.
			err = nil
		}
		return opDoneMsg{op: "resync", err: err}
	}
}

func (m *Model) reopenCmd(filename string) tea.Cmd {
	sync, ctx := m.sync, m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: "open", err: sync.Reopen(ctx, filename)}
	}
}

func (m *Model) deleteLogCmd(filename string) tea.Cmd {
	sync, ctx := m.sync, m.ctx
	return func() tea.Msg {
		if err := sync.Delete(ctx, filename); err != nil {
			return opDoneMsg{op: "delete", err: err}
		}
		entries, err := sync.List(ctx)
		return historyLoadedMsg{entries: entries, err: err}
	}
}

func (m *Model) stopCmd() tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		_, err := ctrl.Stop(ctx)
		if errors.Is(err, models.ErrNotRunning) {
			err = nil
		}
		// Transport failures are announced by the controller.
		if models.IsTransport(err) {
			err = nil
		}
		return opDoneMsg{op: "stop", err: err}
	}
}

// startRun checks the selection, then starts the run in the background.
func (m *Model) startRun() tea.Cmd {
	queue, tasks := m.store.Snapshot()
	if len(queue) == 0 {
		m.setNotice(models.SeverityError, msgEmptyQueue)
		return nil
	}
	if len(tasks) == 0 {
		m.setNotice(models.SeverityError, msgNoTasks)
		return nil
	}
	if m.ctrl.State().Running() {
		m.setNotice(models.SeverityError, msgNavigationBlocked)
		return nil
	}

	m.page = run.PageRun
	m.sync.ShowLive()
	ctrl, ctx, current := m.ctrl, m.ctx, m.settings.Get()
	return func() tea.Msg {
		_, err := ctrl.Start(ctx, queue, tasks, current)
		return runStartedMsg{err: err}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeBuffers()
		return m, nil
	case tickMsg:
		if m.notice.text != "" && m.now().Sub(m.notice.at) > noticeTTL {
			m.notice = notice{}
		}
		return m, m.tickCmd()
	case eventMsg:
		m.handleEvent(models.Event(msg))
		return m, m.waitEventCmd()
	case tasksLoadedMsg:
		m.tasks = append([]string(nil), msg...)
		m.clampCursors()
		return m, nil
	case modelsLoadedMsg:
		if msg.err != nil {
			m.setNotice(models.SeverityError, "Failed to load models: "+msg.err.Error())
			return m, nil
		}
		m.localModels = msg.models
		m.clampCursors()
		return m, nil
	case historyLoadedMsg:
		if msg.err != nil {
			m.setNotice(models.SeverityError, "Failed to load history: "+msg.err.Error())
			return m, nil
		}
		m.history = msg.entries
		m.clampCursors()
		return m, nil
	case searchResultsMsg:
		m.handleSearchResults(msg)
		return m, nil
	case filesLoadedMsg:
		m.handleFilesLoaded(msg)
		return m, nil
	case modelDeletedMsg:
		return m, m.handleModelDeleted(msg)
	case runStartedMsg:
		m.handleStartResult(msg.err)
		return m, nil
	case opDoneMsg:
		if msg.err != nil && msg.op != "resync" && msg.op != "delete" {
			m.setNotice(models.SeverityError, msg.err.Error())
		}
		return m, nil
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleStartResult(err error) {
	var precondition *models.PreconditionError
	switch {
	case err == nil:
	case errors.As(err, &precondition) && errors.Is(err, models.ErrEmptyQueue):
		m.setNotice(models.SeverityError, msgEmptyQueue)
	case errors.As(err, &precondition):
		m.setNotice(models.SeverityError, msgNoTasks)
	case errors.Is(err, models.ErrRunInProgress):
		m.setNotice(models.SeverityError, msgNavigationBlocked)
	case models.IsTransport(err):
		// The controller already announced the failure.
	default:
		m.setNotice(models.SeverityError, err.Error())
	}
}

func (m *Model) handleEvent(ev models.Event) {
	switch ev.Type {
	case models.EventTypeNotification:
		m.setNotice(ev.Severity, ev.Text)
	case models.EventTypeRunStarted:
		m.page = run.PageRun
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()
	if key == "ctrl+c" {
		return tea.Quit
	}
	if m.filtering {
		m.handleFilterKey(msg)
		return nil
	}
	if m.search.editing {
		return m.handleQueryKey(msg)
	}
	if m.confirmClear || m.confirmDelete != "" || m.confirmModel != nil {
		return m.handleConfirmKey(key)
	}

	if target, ok := pageKeys[key]; ok {
		return m.navigate(target)
	}
	switch key {
	case "q":
		return tea.Quit
	case "tab":
		return m.navigate(m.nextPage(1))
	case "shift+tab":
		return m.navigate(m.nextPage(-1))
	}

	switch m.page {
	case run.PageRun:
		return m.handleRunKey(key)
	case run.PageTasks:
		return m.handleTasksKey(key)
	case run.PageQueue:
		return m.handleQueueKey(key)
	case run.PageHistory:
		return m.handleHistoryKey(key)
	case run.PageSettings:
		m.handleSettingsKey(key)
	case run.PageModels:
		return m.handleModelsKey(key)
	case run.PageSearch:
		return m.handleSearchKey(key)
	}
	return nil
}

func (m *Model) nextPage(step int) run.Page {
	idx := 0
	for i, p := range pageOrder {
		if p == m.page {
			idx = i
			break
		}
	}
	idx = (idx + step + len(pageOrder)) % len(pageOrder)
	return pageOrder[idx]
}

func (m *Model) handleConfirmKey(key string) tea.Cmd {
	confirmed := key == "y" || key == "Y"
	if m.confirmClear {
		m.confirmClear = false
		if confirmed {
			m.store.ClearQueue()
			m.queueCursor = 0
		}
		return nil
	}
	if item := m.confirmModel; item != nil {
		m.confirmModel = nil
		if confirmed {
			return m.deleteModelCmd(*item)
		}
		return nil
	}
	filename := m.confirmDelete
	m.confirmDelete = ""
	if confirmed {
		return m.deleteLogCmd(filename)
	}
	return nil
}

func (m *Model) handleRunKey(key string) tea.Cmd {
	buf := m.sync.Current()
	step := logsync.LineHeight
	page := buf.Snapshot().ViewportHeight
	switch key {
	case "s":
		return m.startRun()
	case "x":
		if !m.ctrl.State().Running() {
			return nil
		}
		return m.stopCmd()
	case "r":
		return m.resyncCmd()
	case "o":
		return m.openTerminalCmd()
	case "esc":
		m.sync.ShowLive()
	case "up", "k":
		buf.ScrollBy(-step)
	case "down", "j":
		buf.ScrollBy(step)
	case "pgup", "ctrl+u":
		buf.ScrollBy(-page)
	case "pgdown", "ctrl+d":
		buf.ScrollBy(page)
	case "g", "home":
		buf.ScrollTo(0)
	case "G", "end":
		buf.ScrollToBottom()
	}
	return nil
}

func (m *Model) visibleTasks() []string {
	return selection.FilterTasks(m.tasks, m.taskFilter)
}

func (m *Model) handleFilterKey(msg tea.KeyMsg) {
	switch msg.Type {
	case tea.KeyEnter:
		m.filtering = false
	case tea.KeyEsc:
		m.filtering = false
		m.taskFilter = ""
	case tea.KeyBackspace:
		if r := []rune(m.taskFilter); len(r) > 0 {
			m.taskFilter = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		m.taskFilter += " "
	case tea.KeyRunes:
		m.taskFilter += string(msg.Runes)
	}
	m.taskCursor = 0
}

func (m *Model) handleTasksKey(key string) tea.Cmd {
	visible := m.visibleTasks()
	switch key {
	case "/":
		m.filtering = true
	case "up", "k":
		m.taskCursor = moveCursor(m.taskCursor, -1, len(visible))
	case "down", "j":
		m.taskCursor = moveCursor(m.taskCursor, 1, len(visible))
	case " ", "enter":
		if m.taskCursor < len(visible) {
			m.store.ToggleTask(visible[m.taskCursor])
		}
	case "c":
		m.store.ClearTasks()
	case "esc":
		m.taskFilter = ""
		m.taskCursor = 0
	case "R":
		return m.loadTasksCmd()
	}
	return nil
}

func (m *Model) handleQueueKey(key string) tea.Cmd {
	n := m.store.QueueLen()
	switch key {
	case "up", "k":
		m.queueCursor = moveCursor(m.queueCursor, -1, n)
	case "down", "j":
		m.queueCursor = moveCursor(m.queueCursor, 1, n)
	case "d", "delete":
		if m.queueCursor < n {
			m.store.RemoveQueueItem(m.queueCursor)
			m.clampCursors()
		}
	case "C":
		if n > 0 {
			m.confirmClear = true
		}
	case "s":
		return m.startRun()
	}
	return nil
}

func (m *Model) handleHistoryKey(key string) tea.Cmd {
	n := len(m.history)
	switch key {
	case "up", "k":
		m.historyCursor = moveCursor(m.historyCursor, -1, n)
	case "down", "j":
		m.historyCursor = moveCursor(m.historyCursor, 1, n)
	case "enter":
		if m.historyCursor < n {
			m.page = run.PageRun
			return m.reopenCmd(m.history[m.historyCursor].Filename)
		}
	case "d", "delete":
		if m.historyCursor < n {
			m.confirmDelete = m.history[m.historyCursor].Filename
		}
	case "R":
		return m.loadHistoryCmd()
	}
	return nil
}

type settingField struct {
	label   string
	options []string
	get     func(models.Settings) string
	set     func(*models.Settings, string)
}

var settingFields = []settingField{
	{
		label:   "Device",
		options: models.DeviceOptions,
		get:     func(s models.Settings) string { return s.Device },
		set:     func(s *models.Settings, v string) { s.Device = v },
	},
	{
		label:   "Batch size",
		options: models.BatchSizeOptions,
		get:     func(s models.Settings) string { return s.BatchSize },
		set:     func(s *models.Settings, v string) { s.BatchSize = v },
	},
	{
		label:   "Verbosity",
		options: models.VerbosityOptions,
		get:     func(s models.Settings) string { return s.Verbosity },
		set:     func(s *models.Settings, v string) { s.Verbosity = v },
	},
}

func (m *Model) handleSettingsKey(key string) {
	switch key {
	case "up", "k":
		m.settingsCursor = moveCursor(m.settingsCursor, -1, len(settingFields))
	case "down", "j":
		m.settingsCursor = moveCursor(m.settingsCursor, 1, len(settingFields))
	case "left", "h":
		m.cycleSetting(-1)
	case "right", "l", " ", "enter":
		m.cycleSetting(1)
	case "D":
		m.settings.Reset()
		m.setNotice(models.SeveritySuccess, msgSettingsSaved)
	}
}

func (m *Model) cycleSetting(step int) {
	field := settingFields[m.settingsCursor]
	current := m.settings.Get()
	idx := 0
	for i, opt := range field.options {
		if opt == field.get(current) {
			idx = i
			break
		}
	}
	idx = (idx + step + len(field.options)) % len(field.options)
	field.set(&current, field.options[idx])
	if _, err := m.settings.Set(current); err != nil {
		m.setNotice(models.SeverityError, err.Error())
		return
	}
	m.setNotice(models.SeveritySuccess, msgSettingsSaved)
}

func (m *Model) handleModelsKey(key string) tea.Cmd {
	n := len(m.localModels)
	switch key {
	case "up", "k":
		m.modelCursor = moveCursor(m.modelCursor, -1, n)
	case "down", "j":
		m.modelCursor = moveCursor(m.modelCursor, 1, n)
	case " ", "enter":
		if m.modelCursor >= n {
			return nil
		}
		item := m.localModels[m.modelCursor]
		if !item.Queueable() {
			m.setNotice(models.SeverityError, "Model is not usable")
			return nil
		}
		m.toggleCart(item.RepoID, item.Filename, item.Tags, item.SizeStr)
	case "d", "delete":
		if m.modelCursor < n && deletable(m.localModels[m.modelCursor]) {
			item := m.localModels[m.modelCursor]
			m.confirmModel = &item
		}
	case "R":
		return m.loadModelsCmd()
	}
	return nil
}

func (m *Model) resizeBuffers() {
	rows := m.terminalRows()
	m.sync.Live().SetViewport(rows * logsync.LineHeight)
	m.sync.Historical().SetViewport(rows * logsync.LineHeight)
}

// terminalRows is the number of log lines the run page can show.
func (m *Model) terminalRows() int {
	// header, tab bar, footer, notice, frame border and title
	rows := m.height - 7
	if rows < 1 {
		return 1
	}
	return rows
}

func (m *Model) clampCursors() {
	m.taskCursor = clampCursor(m.taskCursor, len(m.visibleTasks()))
	m.queueCursor = clampCursor(m.queueCursor, m.store.QueueLen())
	m.historyCursor = clampCursor(m.historyCursor, len(m.history))
	m.modelCursor = clampCursor(m.modelCursor, len(m.localModels))
	m.search.resultCursor = clampCursor(m.search.resultCursor, len(m.search.results))
	m.search.fileCursor = clampCursor(m.search.fileCursor, len(m.search.files))
}

func moveCursor(cursor, delta, n int) int {
	return clampCursor(cursor+delta, n)
}

func clampCursor(cursor, n int) int {
	if n <= 0 || cursor < 0 {
		return 0
	}
	if cursor >= n {
		return n - 1
	}
	return cursor
}
