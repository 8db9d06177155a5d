package console

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/tOgg1/pocketbench/internal/models"
)

// searchState is the hub browser: a result list, and the artifact files of
// one repository once it is opened.
type searchState struct {
	query   string
	editing bool
	loading bool

	results      []models.SearchResult
	resultCursor int
	searched     bool

	repo       string
	files      []models.RepoFile
	fileCursor int
}

type searchResultsMsg struct {
	query   string
	results []models.SearchResult
	err     error
}

type filesLoadedMsg struct {
	repo  string
	files []models.RepoFile
	err   error
}

type modelDeletedMsg struct {
	resp models.StatusResponse
	err  error
}

func (m *Model) searchCmd(query string) tea.Cmd {
	catalog, ctx := m.catalog, m.ctx
	return func() tea.Msg {
		results, err := catalog.Search(ctx, query)
		return searchResultsMsg{query: query, results: results, err: err}
	}
}

func (m *Model) filesCmd(repo string) tea.Cmd {
	catalog, ctx := m.catalog, m.ctx
	return func() tea.Msg {
		files, err := catalog.Files(ctx, repo)
		return filesLoadedMsg{repo: repo, files: files, err: err}
	}
}

func (m *Model) deleteModelCmd(item models.LocalModel) tea.Cmd {
	catalog, ctx := m.catalog, m.ctx
	req := deleteRequest(item)
	return func() tea.Msg {
		resp, err := catalog.DeleteModel(ctx, req)
		return modelDeletedMsg{resp: resp, err: err}
	}
}

// deleteRequest addresses broken cache entries by path and complete ones by
// repo, revision and filename.
func deleteRequest(item models.LocalModel) models.DeleteModelRequest {
	if !item.Queueable() && item.Path != "" {
		return models.DeleteModelRequest{Path: item.Path}
	}
	return models.DeleteModelRequest{RepoID: item.RepoID, Revision: item.Revision, Filename: item.Filename}
}

// deletable matches what the server can remove: a revisioned model or a
// broken entry with a path.
func deletable(item models.LocalModel) bool {
	if item.Queueable() {
		return item.Revision != ""
	}
	return item.Path != ""
}

func (m *Model) submitSearch() tea.Cmd {
	query := strings.TrimSpace(m.search.query)
	if len([]rune(query)) < minQueryLen {
		m.setNotice(models.SeverityError, msgQueryTooShort)
		return nil
	}
	m.search.repo = ""
	m.search.files = nil
	m.search.loading = true
	return m.searchCmd(query)
}

func (m *Model) openRepo(repo string) tea.Cmd {
	m.search.repo = repo
	m.search.files = nil
	m.search.fileCursor = 0
	m.search.loading = true
	return m.filesCmd(repo)
}

func (m *Model) handleSearchResults(msg searchResultsMsg) {
	if msg.query != strings.TrimSpace(m.search.query) || m.search.repo != "" {
		return
	}
	m.search.loading = false
	if msg.err != nil {
		m.setNotice(models.SeverityError, "Search failed: "+msg.err.Error())
		return
	}
	m.search.results = msg.results
	m.search.resultCursor = 0
	m.search.searched = true
}

func (m *Model) handleFilesLoaded(msg filesLoadedMsg) {
	if msg.repo != m.search.repo {
		return
	}
	m.search.loading = false
	if msg.err != nil {
		m.setNotice(models.SeverityError, "Failed to load files: "+msg.err.Error())
		return
	}
	m.search.files = msg.files
	m.search.fileCursor = clampCursor(m.search.fileCursor, len(msg.files))
}

func (m *Model) handleModelDeleted(msg modelDeletedMsg) tea.Cmd {
	switch {
	case msg.err != nil:
		m.setNotice(models.SeverityError, "Delete failed: "+msg.err.Error())
		return nil
	case !msg.resp.OK():
		m.setNotice(models.SeverityError, msg.resp.Msg)
		return nil
	}
	m.setNotice(models.SeveritySuccess, msgModelDeleted)
	return m.loadModelsCmd()
}

func (m *Model) handleQueryKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEnter:
		m.search.editing = false
		return m.submitSearch()
	case tea.KeyEsc:
		m.search.editing = false
	case tea.KeyBackspace:
		if r := []rune(m.search.query); len(r) > 0 {
			m.search.query = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		m.search.query += " "
	case tea.KeyRunes:
		m.search.query += string(msg.Runes)
	}
	return nil
}

func (m *Model) handleSearchKey(key string) tea.Cmd {
	if m.search.repo != "" {
		return m.handleFilesKey(key)
	}
	n := len(m.search.results)
	switch key {
	case "/":
		m.search.editing = true
	case "up", "k":
		m.search.resultCursor = moveCursor(m.search.resultCursor, -1, n)
	case "down", "j":
		m.search.resultCursor = moveCursor(m.search.resultCursor, 1, n)
	case "enter", "l":
		if m.search.resultCursor < n {
			return m.openRepo(m.search.results[m.search.resultCursor].ID)
		}
	case "R":
		return m.submitSearch()
	}
	return nil
}

func (m *Model) handleFilesKey(key string) tea.Cmd {
	n := len(m.search.files)
	switch key {
	case "esc", "backspace", "h":
		m.search.repo = ""
		m.search.files = nil
		m.search.loading = false
	case "up", "k":
		m.search.fileCursor = moveCursor(m.search.fileCursor, -1, n)
	case "down", "j":
		m.search.fileCursor = moveCursor(m.search.fileCursor, 1, n)
	case " ", "enter":
		if m.search.fileCursor < n {
			file := m.search.files[m.search.fileCursor]
			m.toggleCart(m.search.repo, file.Name, file.Tags, file.SizeStr)
		}
	case "R":
		return m.openRepo(m.search.repo)
	}
	return nil
}

// toggleCart adds or removes one artifact and announces which it was.
func (m *Model) toggleCart(repoID, filename, tags, size string) {
	if m.store.ToggleQueueItem(repoID, filename, tags, size) {
		m.setNotice(models.SeverityInfo, msgRemovedFromCart)
		return
	}
	m.setNotice(models.SeveritySuccess, msgAddedToCart)
}

func (m *Model) renderSearch(width int) string {
	var b strings.Builder
	query := m.search.query
	if m.search.editing {
		query += "_"
	}
	fmt.Fprintf(&b, "Search: %s\n", query)

	if m.search.repo != "" {
		b.WriteString(m.styles.accent.Render(truncate(m.search.repo, width)) + "\n")
		b.WriteString(m.renderFiles(width))
		return strings.TrimRight(b.String(), "\n")
	}

	switch {
	case m.search.loading:
		b.WriteString(m.styles.muted.Render("Searching..."))
	case !m.search.searched:
		b.WriteString(m.styles.muted.Render("Press / to search the model hub."))
	case len(m.search.results) == 0:
		b.WriteString(m.styles.muted.Render("No models found"))
	default:
		results := m.search.results
		start, end := window(m.search.resultCursor, len(results), m.listRows()-1)
		for i := start; i < end; i++ {
			res := results[i]
			line := fmt.Sprintf("%-48s %10s dl  %6s likes", truncate(res.ID, 48),
				humanize.Comma(int64(res.Downloads)), humanize.Comma(int64(res.Likes)))
			b.WriteString(m.cursorLine(truncate(line, width-2), i == m.search.resultCursor) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) renderFiles(width int) string {
	switch {
	case m.search.loading:
		return m.styles.muted.Render("Loading...")
	case len(m.search.files) == 0:
		return m.styles.muted.Render("No GGUF files found")
	}
	var b strings.Builder
	files := m.search.files
	start, end := window(m.search.fileCursor, len(files), m.listRows()-2)
	for i := start; i < end; i++ {
		file := files[i]
		mark := "[ ]"
		if m.store.IsQueued(m.search.repo, file.Name) {
			mark = "[x]"
		}
		line := fmt.Sprintf("%s %-48s %-8s %s", mark, truncate(file.Name, 48), file.Tags, file.SizeStr)
		b.WriteString(m.cursorLine(truncate(line, width-2), i == m.search.fileCursor) + "\n")
	}
	return b.String()
}

func (m *Model) cursorLine(line string, selected bool) string {
	if selected {
		return m.styles.selected.Render("> " + line)
	}
	return "  " + line
}
