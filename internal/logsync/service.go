package logsync

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tOgg1/pocketbench/internal/events"
	"github.com/tOgg1/pocketbench/internal/logging"
	"github.com/tOgg1/pocketbench/internal/models"
)

// Buffer texts shown by the console.
const (
	LiveTitle          = "Terminal Output"
	HistoricalPrefix   = "LOG: "
	SyncingMarker      = "\n[SYSTEM] Syncing with server logs...\n"
	SyncFailedMarker   = "\n[ERROR] Sync failed.\n"
	OpenSyncingText    = "Syncing latest logs...\n"
	OpenSyncFailedText = "\n[Error] Could not sync logs."
	WaitingText        = "Waiting for logs...\n(No active benchmark running)"
	FetchingText       = "Fetching content..."
	ReadErrorText      = "Error reading log."
)

// Client is the subset of the remote API the service needs.
type Client interface {
	ListLogs(ctx context.Context) ([]models.LogHistoryEntry, error)
	LogContent(ctx context.Context, filename string) (string, error)
	DeleteLog(ctx context.Context, filename string) error
}

// RunView exposes the run state the service keys off.
type RunView interface {
	ActiveLogIdentifier() string
	Running() bool
}

// StaticRun is a RunView for a finished run known only by its log file.
type StaticRun string

func (s StaticRun) ActiveLogIdentifier() string { return string(s) }
func (s StaticRun) Running() bool               { return false }

// Mode selects which buffer the terminal shows.
type Mode int

const (
	ModeLive Mode = iota
	ModeHistorical
)

func (m Mode) String() string {
	if m == ModeHistorical {
		return "historical"
	}
	return "live"
}

// View describes what the terminal currently shows.
type View struct {
	Mode     Mode
	Filename string
}

// Title is the terminal header for the view.
func (v View) Title() string {
	if v.Mode == ModeHistorical {
		return HistoricalPrefix + v.Filename
	}
	return LiveTitle
}

// ReadOnly reports whether the view is a historical log.
func (v View) ReadOnly() bool {
	return v.Mode == ModeHistorical
}

// Service owns the live and historical buffers and the viewer mode.
type Service struct {
	client    Client
	run       RunView
	publisher events.Publisher
	logger    zerolog.Logger

	live       *Buffer
	historical *Buffer

	mu   sync.RWMutex
	view View
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher publishes buffer and notification events.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithLiveBuffer shares an existing live buffer, typically the one the run
// controller streams into.
func WithLiveBuffer(b *Buffer) Option {
	return func(s *Service) {
		if b != nil {
			s.live = b
		}
	}
}

// NewService creates a Service.
func NewService(client Client, run RunView, opts ...Option) *Service {
	s := &Service{
		client:     client,
		run:        run,
		logger:     logging.Component("logsync"),
		live:       NewBuffer(),
		historical: NewBuffer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Live returns the live buffer.
func (s *Service) Live() *Buffer { return s.live }

// Historical returns the historical buffer.
func (s *Service) Historical() *Buffer { return s.historical }

// View returns the current viewer state.
func (s *Service) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// Current returns the buffer for the current view.
func (s *Service) Current() *Buffer {
	if s.View().Mode == ModeHistorical {
		return s.historical
	}
	return s.live
}

// ShowLive switches back to the live buffer without fetching.
func (s *Service) ShowLive() {
	s.mu.Lock()
	s.view = View{Mode: ModeLive}
	s.mu.Unlock()
}

// List returns the remote history in remote order.
func (s *Service) List(ctx context.Context) ([]models.LogHistoryEntry, error) {
	entries, err := s.client.ListLogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	return entries, nil
}

// Fetch returns the content of one log.
func (s *Service) Fetch(ctx context.Context, filename string) (string, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return "", &models.NotFoundError{Message: "filename is required"}
	}
	return s.client.LogContent(ctx, filename)
}

// Delete removes a log from the remote store. When the deleted log is the one
// being viewed, the terminal returns to the live buffer.
func (s *Service) Delete(ctx context.Context, filename string) error {
	if err := s.client.DeleteLog(ctx, filename); err != nil {
		s.notify(ctx, models.SeverityError, err.Error())
		return err
	}

	s.mu.Lock()
	if s.view.Mode == ModeHistorical && s.view.Filename == filename {
		s.view = View{Mode: ModeLive}
		s.historical.Replace("")
	}
	s.mu.Unlock()

	s.logger.Info().Str("filename", filename).Msg("log deleted")
	s.notify(ctx, models.SeveritySuccess, "Deleted")
	return nil
}

// Resync replaces the live buffer with the persisted content of the active
// run's log.
func (s *Service) Resync(ctx context.Context) error {
	filename := s.run.ActiveLogIdentifier()
	if filename == "" {
		s.notify(ctx, models.SeverityError, "No active log file")
		return models.ErrNoActiveLog
	}

	s.live.Append(SyncingMarker)
	s.publish(ctx, models.EventTypeLogAppended, filename, SyncingMarker)

	text, err := s.Fetch(ctx, filename)
	if err != nil {
		s.live.Append(SyncFailedMarker)
		s.publish(ctx, models.EventTypeLogAppended, filename, SyncFailedMarker)
		s.logger.Warn().Err(err).Str("filename", filename).Msg("resync failed")
		return fmt.Errorf("resync %s: %w", filename, err)
	}
	if text != "" {
		s.live.Replace(text)
		s.publish(ctx, models.EventTypeLogReplaced, filename, "")
		s.notify(ctx, models.SeveritySuccess, "Terminal Synced")
	}
	return nil
}

// Reopen shows a persisted log read-only. The live buffer and the active log
// identifier are untouched.
func (s *Service) Reopen(ctx context.Context, filename string) error {
	s.mu.Lock()
	s.view = View{Mode: ModeHistorical, Filename: filename}
	s.mu.Unlock()

	s.historical.Replace(FetchingText)
	text, err := s.Fetch(ctx, filename)

	s.mu.RLock()
	stale := s.view.Mode != ModeHistorical || s.view.Filename != filename
	s.mu.RUnlock()
	if stale {
		return nil
	}

	if err != nil {
		s.historical.Replace(ReadErrorText)
		s.publish(ctx, models.EventTypeLogReplaced, filename, "")
		return fmt.Errorf("reopen %s: %w", filename, err)
	}
	s.historical.Replace(text)
	s.publish(ctx, models.EventTypeLogReplaced, filename, "")
	return nil
}

// OpenTerminal switches to the live view and refreshes it. With an active log
// the buffer is reloaded from the server; with none and no run in progress a
// placeholder is shown. A run that has not announced its log yet keeps its
// streamed output.
func (s *Service) OpenTerminal(ctx context.Context) error {
	s.ShowLive()

	filename := s.run.ActiveLogIdentifier()
	if filename == "" {
		if !s.run.Running() {
			s.live.Replace(WaitingText)
			s.publish(ctx, models.EventTypeLogReplaced, "", "")
		}
		return nil
	}

	s.live.Replace(OpenSyncingText)
	text, err := s.Fetch(ctx, filename)
	if err != nil {
		s.live.Append(OpenSyncFailedText)
		s.publish(ctx, models.EventTypeLogReplaced, filename, "")
		return fmt.Errorf("sync %s: %w", filename, err)
	}
	if text != "" {
		s.live.Replace(text)
	}
	s.publish(ctx, models.EventTypeLogReplaced, filename, "")
	return nil
}

func (s *Service) publish(ctx context.Context, typ models.EventType, filename, text string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, &models.Event{Type: typ, LogFile: filename, Text: text})
}

func (s *Service) notify(ctx context.Context, severity models.Severity, text string) {
	if s.publisher == nil {
		return
	}
	events.Notify(ctx, s.publisher, severity, text)
}
