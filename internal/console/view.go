package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"github.com/tOgg1/pocketbench/internal/logsync"
	"github.com/tOgg1/pocketbench/internal/models"
	"github.com/tOgg1/pocketbench/internal/run"
	"github.com/tOgg1/pocketbench/internal/selection"
)

var pageLabels = map[run.Page]string{
	run.PageRun:      "Run",
	run.PageTasks:    "Tasks",
	run.PageQueue:    "Cart",
	run.PageHistory:  "History",
	run.PageSettings: "Settings",
	run.PageModels:   "Models",
	run.PageSearch:   "Search",
}

var pageHelp = map[run.Page]string{
	run.PageRun:      "s start  x stop  r resync  o open terminal  esc live  j/k scroll  G bottom",
	run.PageTasks:    "/ filter  space toggle  c clear  R reload",
	run.PageQueue:    "s start  d remove  C clear all",
	run.PageHistory:  "enter open  d delete  R refresh",
	run.PageSettings: "j/k select  h/l change  D defaults",
	run.PageModels:   "enter add/remove  d delete  R reload",
	run.PageSearch:   "/ search  enter open/add  esc back  R reload",
}

func (m *Model) View() string {
	width := m.width
	if width <= 0 {
		width = 100
	}

	var body string
	switch m.page {
	case run.PageRun:
		body = m.renderRun(width)
	case run.PageTasks:
		body = m.renderTasks(width)
	case run.PageQueue:
		body = m.renderQueue(width)
	case run.PageHistory:
		body = m.renderHistory(width)
	case run.PageSettings:
		body = m.renderSettings()
	case run.PageModels:
		body = m.renderModels(width)
	case run.PageSearch:
		body = m.renderSearch(width)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(width),
		m.renderTabs(),
		body,
		m.renderNotice(width),
		m.styles.muted.Render(truncate(pageHelp[m.page]+"  1-7 pages  q quit", width)),
	)
}

func (m *Model) renderHeader(width int) string {
	snap := m.ctrl.State().Snapshot()
	status := m.styles.muted.Render("idle")
	if snap.State == models.RunStateRunning {
		status = m.styles.running.Render("running since " + humanize.Time(snap.StartedAt))
	}
	queued := m.store.QueueLen()
	right := fmt.Sprintf("%d %s  %d %s  %s",
		queued, plural(queued, "model", "models"),
		m.store.TaskCount(), plural(m.store.TaskCount(), "task", "tasks"),
		status)
	title := m.styles.title.Render("pocketbench")
	gap := width - lipgloss.Width(title) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return title + strings.Repeat(" ", gap) + right
}

func (m *Model) renderTabs() string {
	tabs := make([]string, 0, len(pageOrder))
	for i, p := range pageOrder {
		label := fmt.Sprintf("%d %s", i+1, pageLabels[p])
		if p == m.page {
			tabs = append(tabs, m.styles.tabOn.Render(label))
			continue
		}
		tabs = append(tabs, m.styles.tabOff.Render(label))
	}
	return strings.Join(tabs, "  ")
}

func (m *Model) renderNotice(width int) string {
	if m.confirmClear {
		return m.styles.notice[models.SeverityError].Render("Clear all items from cart? (y/n)")
	}
	if item := m.confirmModel; item != nil {
		question := "Delete model " + item.Filename + "? (y/n)"
		if !item.Queueable() {
			question = "Permanently delete this corrupted file? (y/n) " + item.Filename
		}
		return m.styles.notice[models.SeverityError].Render(truncate(question, width))
	}
	if m.confirmDelete != "" {
		return m.styles.notice[models.SeverityError].Render(truncate("Delete this log? (y/n) "+m.confirmDelete, width))
	}
	if m.notice.text == "" {
		return ""
	}
	style, ok := m.styles.notice[m.notice.severity]
	if !ok {
		style = m.styles.notice[models.SeverityInfo]
	}
	return style.Render(truncate(m.notice.text, width))
}

func (m *Model) renderRun(width int) string {
	view := m.sync.View()
	snap := m.sync.Current().Snapshot()
	rows := m.terminalRows()

	title := view.Title()
	if view.ReadOnly() {
		title += "  (read-only)"
	}
	if !snap.AtBottom() {
		title += "  [scrolled]"
	}

	lines := snap.Lines()
	first := snap.ScrollTop / logsync.LineHeight
	if first > len(lines) {
		first = len(lines)
	}
	last := first + rows
	if last > len(lines) {
		last = len(lines)
	}
	inner := width - 4
	visible := make([]string, 0, rows)
	for _, line := range lines[first:last] {
		visible = append(visible, truncate(line, inner))
	}
	for len(visible) < rows {
		visible = append(visible, "")
	}

	content := m.styles.accent.Render(truncate(title, inner)) + "\n" + strings.Join(visible, "\n")
	return m.styles.frame.Width(width - 2).Render(content)
}

func (m *Model) renderTasks(width int) string {
	var b strings.Builder
	filter := m.taskFilter
	if m.filtering {
		filter += "_"
	}
	fmt.Fprintf(&b, "Filter: %s\n", filter)

	visible := m.visibleTasks()
	if len(visible) == 0 {
		b.WriteString(m.styles.muted.Render("No tasks match."))
		return b.String()
	}
	start, end := window(m.taskCursor, len(visible), m.listRows())
	for i := start; i < end; i++ {
		task := visible[i]
		mark := "[ ]"
		if m.store.HasTask(task) {
			mark = "[x]"
		}
		line := truncate(mark+" "+task, width-2)
		if i == m.taskCursor {
			line = m.styles.selected.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) renderQueue(width int) string {
	var b strings.Builder
	queue, tasks := m.store.Snapshot()

	preview, more := selection.Preview(tasks)
	summary := "Tasks: none"
	if len(preview) > 0 {
		summary = "Tasks: " + strings.Join(preview, ", ")
		if more > 0 {
			summary += fmt.Sprintf(" +%d", more)
		}
	}
	b.WriteString(m.styles.muted.Render(truncate(summary, width)) + "\n")

	if len(queue) == 0 {
		b.WriteString(m.styles.muted.Render("Cart is empty."))
		return b.String()
	}
	start, end := window(m.queueCursor, len(queue), m.listRows())
	for i := start; i < end; i++ {
		item := queue[i]
		line := fmt.Sprintf("%-28s %-40s %-8s %s",
			truncate(item.ShortRepo(), 28), truncate(item.Filename, 40), item.Tags, item.Size)
		line = truncate(line, width-2)
		if i == m.queueCursor {
			line = m.styles.selected.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) renderHistory(width int) string {
	if len(m.history) == 0 {
		return m.styles.muted.Render("No logs found.")
	}
	var b strings.Builder
	start, end := window(m.historyCursor, len(m.history), m.listRows())
	for i := start; i < end; i++ {
		entry := m.history[i]
		line := fmt.Sprintf("%-16s %-10s %s", entry.Date, entry.Size, entry.Name)
		line = truncate(line, width-2)
		if i == m.historyCursor {
			line = m.styles.selected.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) renderSettings() string {
	current := m.settings.Get()
	var b strings.Builder
	for i, field := range settingFields {
		line := fmt.Sprintf("%-12s < %s >", field.label, field.get(current))
		if i == m.settingsCursor {
			line = m.styles.selected.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}
	if path := m.settings.Path(); path != "" {
		b.WriteString(m.styles.muted.Render("saved to " + path))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) renderModels(width int) string {
	if len(m.localModels) == 0 {
		return m.styles.muted.Render("No local models found.")
	}
	var b strings.Builder
	start, end := window(m.modelCursor, len(m.localModels), m.listRows())
	for i := start; i < end; i++ {
		item := m.localModels[i]
		mark := "   "
		if m.store.IsQueued(item.RepoID, item.Filename) {
			mark = "[+]"
		}
		name := item.RepoID + "/" + item.Filename
		if item.RepoID == "" {
			name = item.Path
		}
		line := truncate(fmt.Sprintf("%s %-10s %-8s %s", mark, string(item.Type), item.SizeStr, name), width-2)
		switch {
		case i == m.modelCursor:
			line = m.styles.selected.Render("> " + line)
		case !item.Queueable():
			line = m.styles.muted.Render("  " + line)
		default:
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// listRows is the number of list entries a non-terminal page can show.
func (m *Model) listRows() int {
	rows := m.height - 6
	if rows < 3 {
		return 3
	}
	return rows
}

// window returns the [start, end) slice of n entries that keeps cursor visible.
func window(cursor, n, rows int) (int, int) {
	if n <= rows {
		return 0, n
	}
	start := cursor - rows/2
	if start < 0 {
		start = 0
	}
	if start+rows > n {
		start = n - rows
	}
	return start, start + rows
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "…")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
