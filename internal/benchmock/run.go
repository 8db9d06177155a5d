package benchmock

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tOgg1/pocketbench/internal/models"
)

const (
	rule          = "========================================"
	batchComplete = "BATCH COMPLETE"
)

type framePayload struct {
	Log       string            `json:"log"`
	Results   []any             `json:"results"`
	Path      *string           `json:"path"`
	StartInfo *models.StartInfo `json:"start_info"`
	Done      bool              `json:"done"`
}

type runWriter struct {
	w        http.ResponseWriter
	flusher  http.Flusher
	fragment int
	delay    time.Duration
	append   func(string)
}

func (rw *runWriter) frame(text string, startInfo *models.StartInfo) error {
	rw.append(text)
	payload := framePayload{
		Log:       text,
		StartInfo: startInfo,
		Done:      strings.Contains(text, batchComplete),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	block := []byte(fmt.Sprintf("data: %s\n\n", data))

	if rw.fragment <= 0 {
		if _, err := rw.w.Write(block); err != nil {
			return err
		}
		rw.flusher.Flush()
	} else {
		for start := 0; start < len(block); start += rw.fragment {
			end := start + rw.fragment
			if end > len(block) {
				end = len(block)
			}
			if _, err := rw.w.Write(block[start:end]); err != nil {
				return err
			}
			rw.flusher.Flush()
		}
	}
	if rw.delay > 0 {
		time.Sleep(rw.delay)
	}
	return nil
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req models.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid run request: "+err.Error(), http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	if s.active != nil {
		s.mu.Unlock()
		http.Error(w, "a batch is already running", http.StatusConflict)
		return
	}
	name := s.newLogNameLocked()
	run := &activeRun{logFile: name, stop: make(chan struct{})}
	s.active = run
	s.requests = append(s.requests, req)
	s.logs[name] = &logFile{modTime: s.cfg.Now()}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.active = nil
		s.mu.Unlock()
	}()

	logger := s.logger.With().Str("log_file", name).Int("jobs", len(req.Jobs)).Logger()
	logger.Info().Msg("run started")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	rw := &runWriter{
		w:        w,
		flusher:  flusher,
		fragment: s.cfg.FragmentSize,
		delay:    s.cfg.StepDelay,
		append:   func(text string) { s.appendLog(name, text) },
	}

	if err := s.stream(r, rw, run, req); err != nil {
		logger.Debug().Err(err).Msg("run stream aborted")
		return
	}
	logger.Info().Msg("run finished")
}

func (s *Server) stream(r *http.Request, rw *runWriter, run *activeRun, req models.RunRequest) error {
	total := len(req.Jobs)
	start := fmt.Sprintf("--- BATCH STARTED: %d Models Scheduled ---\nDevice: %s | Batch Size: %d\n\n", total, req.Device, req.Batch)
	if err := rw.frame(start, &models.StartInfo{LogFile: run.logFile}); err != nil {
		return err
	}

	stopped := false
jobs:
	for i, job := range req.Jobs {
		header := fmt.Sprintf("\n%s\nJOB %d/%d: %s\n%s\n", rule, i+1, total, job.Filename, rule)
		if err := rw.frame(header, nil); err != nil {
			return err
		}
		for _, task := range job.Tasks {
			select {
			case <-run.stop:
				stopped = true
				break jobs
			case <-r.Context().Done():
				return r.Context().Err()
			default:
			}
			line := fmt.Sprintf("Running %s on %s...\n[SUCCESS] Results saved: results/%s_%s.json\n", task, job.Filename, shortName(job.Filename), task)
			if err := rw.frame(line, nil); err != nil {
				return err
			}
		}
	}

	if !stopped && s.cfg.HoldOpen {
		select {
		case <-run.stop:
			stopped = true
		case <-r.Context().Done():
			return r.Context().Err()
		}
	}
	if stopped {
		if err := rw.frame("\n[STOPPED] User Cancelled.\n", nil); err != nil {
			return err
		}
	}
	if s.cfg.OmitDone {
		return nil
	}
	return rw.frame(fmt.Sprintf("\n%s\n%s\n%s\n", rule, batchComplete, rule), nil)
}

func (s *Server) appendLog(name, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lf, ok := s.logs[name]
	if !ok {
		// Deleted while running; the run keeps writing to a fresh file.
		lf = &logFile{}
		s.logs[name] = lf
	}
	lf.content.WriteString(text)
	lf.modTime = s.cfg.Now()
}

func (s *Server) newLogNameLocked() string {
	base := "BATCH_" + s.cfg.Now().Format(logTimeLayout)
	name := base + ".log"
	for {
		if _, exists := s.logs[name]; !exists {
			return name
		}
		s.seq++
		name = fmt.Sprintf("%s_%d.log", base, s.seq)
	}
}

func shortName(filename string) string {
	name := strings.TrimSuffix(filename, ".gguf")
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}
