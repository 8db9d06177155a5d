// Package benchmock is an in-process stand-in for the benchmark server. It
// speaks the same wire protocol, keeps logs in memory and can fragment the
// run stream to exercise client reassembly.
package benchmock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tOgg1/pocketbench/internal/logging"
	"github.com/tOgg1/pocketbench/internal/models"
)

// DefaultTasks is the catalogue served by /api/tasks.
var DefaultTasks = []string{
	"mmlu", "gsm8k", "hellaswag", "arc_challenge",
	"winogrande", "truthfulqa_mc2", "piqa", "lambada_openai",
}

const logTimeLayout = "20060102_150405"

// Config tunes the mock.
type Config struct {
	// Tasks overrides DefaultTasks.
	Tasks []string

	// FailTasks makes /api/tasks answer 500.
	FailTasks bool

	// StepDelay is slept between frames.
	StepDelay time.Duration

	// FragmentSize splits every frame into writes of at most this many bytes,
	// flushing after each. Zero writes whole frames.
	FragmentSize int

	// HoldOpen keeps a run streaming after its scripted output until it is
	// stopped or the client goes away.
	HoldOpen bool

	// OmitDone ends the stream without a done frame.
	OmitDone bool

	// Now overrides the clock used for log names and dates.
	Now func() time.Time
}

type logFile struct {
	content strings.Builder
	modTime time.Time
}

type activeRun struct {
	logFile string
	stop    chan struct{}
	stopped bool
}

// Server implements every endpoint of the benchmark server.
type Server struct {
	cfg    Config
	router chi.Router
	logger zerolog.Logger

	mu        sync.Mutex
	logs      map[string]*logFile
	active    *activeRun
	requests  []models.RunRequest
	stopCalls int
	seq       int
	models    []models.LocalModel
}

// New creates a mock server.
func New(cfg Config) *Server {
	if len(cfg.Tasks) == 0 {
		cfg.Tasks = append([]string(nil), DefaultTasks...)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Server{
		cfg:    cfg,
		logger: logging.Component("benchmock"),
		logs:   make(map[string]*logFile),
		models: defaultLocalModels(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/run", s.handleRun)
		r.Post("/stop", s.handleStop)
		r.Get("/tasks", s.handleTasks)
		r.Get("/logs_list", s.handleLogsList)
		r.Get("/logs_content", s.handleLogsContent)
		r.Post("/logs_delete", s.handleLogsDelete)
		r.Get("/search", s.handleSearch)
		r.Get("/files", s.handleFiles)
		r.Get("/local_models", s.handleLocalModels)
		r.Post("/delete_model", s.handleDeleteModel)
		r.Get("/system_info", s.handleSystemInfo)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		s.logger.Info().Str("addr", addr).Msg("mock server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}

// AddLog stores a log file as if a previous run had written it.
func (s *Server) AddLog(name, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lf := &logFile{modTime: s.cfg.Now()}
	lf.content.WriteString(content)
	s.logs[name] = lf
}

// Log returns a stored log.
func (s *Server) Log(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lf, ok := s.logs[name]
	if !ok {
		return "", false
	}
	return lf.content.String(), true
}

// Requests returns the run requests received so far.
func (s *Server) Requests() []models.RunRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.RunRequest(nil), s.requests...)
}

// StopCalls returns how many stop requests were received.
func (s *Server) StopCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCalls
}

// Running reports whether a run is streaming.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleTasks(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.FailTasks {
		http.Error(w, "task catalogue unavailable", http.StatusInternalServerError)
		return
	}
	tasks := append([]string(nil), s.cfg.Tasks...)
	sort.Strings(tasks)
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.stopCalls++
	run := s.active
	if run != nil && !run.stopped {
		run.stopped = true
		close(run.stop)
	} else {
		run = nil
	}
	s.mu.Unlock()

	if run == nil {
		writeJSON(w, http.StatusOK, models.StatusResponse{Status: "error", Msg: "No running process found"})
		return
	}
	writeJSON(w, http.StatusOK, models.StatusResponse{Status: "success", Msg: "Process stopped"})
}

func (s *Server) handleLogsList(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	entries := make([]models.LogHistoryEntry, 0, len(s.logs))
	for name, lf := range s.logs {
		entries = append(entries, models.LogHistoryEntry{
			Filename: name,
			Name:     displayName(name),
			Date:     displayDate(name, lf.modTime),
			Size:     fmt.Sprintf("%.1f KB", float64(lf.content.Len())/1024),
		})
	}
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Filename > entries[j].Filename
	})
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleLogsContent(w http.ResponseWriter, r *http.Request) {
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		http.Error(w, "No filename", http.StatusBadRequest)
		return
	}
	content, ok := s.Log(filename)
	if !ok {
		http.Error(w, "Log not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(content))
}

func (s *Server) handleLogsDelete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusOK, models.StatusResponse{Status: "error", Msg: err.Error()})
		return
	}

	s.mu.Lock()
	_, ok := s.logs[body.Filename]
	if ok {
		delete(s.logs, body.Filename)
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusOK, models.StatusResponse{Status: "error", Msg: "File not found"})
		return
	}
	writeJSON(w, http.StatusOK, models.StatusResponse{Status: "success", Msg: "Log deleted"})
}

// displayName mirrors the server naming: "<prefix>__<name>.log" lists as
// <name>, anything else by its filename.
func displayName(filename string) string {
	parts := strings.Split(filename, "__")
	if len(parts) < 2 {
		return filename
	}
	return strings.ReplaceAll(parts[len(parts)-1], ".log", "")
}

func displayDate(filename string, modTime time.Time) string {
	if _, after, ok := strings.Cut(filename, "BATCH_"); ok {
		stamp, _, _ := strings.Cut(after, ".")
		if ts, err := time.Parse(logTimeLayout, stamp); err == nil {
			return ts.Format("2006-01-02 15:04")
		}
	}
	return modTime.Format("2006-01-02 15:04")
}
