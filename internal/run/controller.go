package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tOgg1/pocketbench/internal/events"
	"github.com/tOgg1/pocketbench/internal/journal"
	"github.com/tOgg1/pocketbench/internal/logging"
	"github.com/tOgg1/pocketbench/internal/logsync"
	"github.com/tOgg1/pocketbench/internal/models"
	"github.com/tOgg1/pocketbench/internal/stream"
)

// Client is the remote surface the controller drives.
type Client interface {
	Run(ctx context.Context, req models.RunRequest) (io.ReadCloser, error)
	Stop(ctx context.Context) (models.StopResponse, error)
}

// Recorder journals runs. journal.RunRepository implements it.
type Recorder interface {
	Create(ctx context.Context, rec *journal.RunRecord) error
	SetLogFile(ctx context.Context, id, logFile string) error
	Finish(ctx context.Context, id string, outcome models.RunOutcome, runErr error) error
}

// Run is a handle on one started run.
type Run struct {
	ID        string
	Request   models.RunRequest
	StartedAt time.Time

	generation    uint64
	done          chan struct{}
	stopRequested atomic.Bool

	mu      sync.Mutex
	logFile string
	outcome models.RunOutcome
	err     error
}

// Done is closed once the stream has been fully consumed.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// LogFile returns the log file announced by this run.
func (r *Run) LogFile() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logFile
}

// Outcome returns how the run ended. It is empty until Done is closed.
func (r *Run) Outcome() (models.RunOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome, r.err
}

// Wait blocks until the run's stream ends or ctx is done.
func (r *Run) Wait(ctx context.Context) (models.RunOutcome, error) {
	select {
	case <-r.done:
		return r.Outcome()
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Option configures a Controller.
type Option func(*Controller)

// WithPublisher publishes lifecycle, log and notification events.
func WithPublisher(p events.Publisher) Option {
	return func(c *Controller) { c.publisher = p }
}

// WithRecorder journals every run.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithIdleTimeout ends a run whose stream is silent for d.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Controller) { c.idleTimeout = d }
}

// WithCancelOnStop aborts the transfer on Stop instead of draining trailing
// output.
func WithCancelOnStop(enabled bool) Option {
	return func(c *Controller) { c.cancelOnStop = enabled }
}

// WithServerURL is recorded in the journal.
func WithServerURL(url string) Option {
	return func(c *Controller) { c.serverURL = url }
}

// WithState shares an existing state.
func WithState(s *State) Option {
	return func(c *Controller) {
		if s != nil {
			c.state = s
		}
	}
}

// Controller starts and stops runs and feeds their streams into the live
// buffer.
type Controller struct {
	client       Client
	buffer       *logsync.Buffer
	state        *State
	publisher    events.Publisher
	recorder     Recorder
	idleTimeout  time.Duration
	cancelOnStop bool
	serverURL    string
	logger       zerolog.Logger
	now          func() time.Time

	mu      sync.Mutex
	current *Run
	cancel  context.CancelFunc
}

// NewController creates a controller streaming into buffer.
func NewController(client Client, buffer *logsync.Buffer, opts ...Option) *Controller {
	c := &Controller{
		client: client,
		buffer: buffer,
		state:  NewState(),
		logger: logging.Component("run"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the run state shared with views and gates.
func (c *Controller) State() *State {
	return c.state
}

// Current returns the latest run, or nil.
func (c *Controller) Current() *Run {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// StartBanner is the text the live buffer is reset to when a run starts.
func StartBanner(n int) string {
	return fmt.Sprintf("Initializing Queue (%d models)...\n", n)
}

// Start validates the selection, moves to Running and opens the run stream.
// The stream is consumed in the background; the returned handle reports when
// it ends. Start fails with a PreconditionError for an empty queue or task
// set and with ErrRunInProgress while another run is Running.
func (c *Controller) Start(ctx context.Context, queue []models.QueueItem, tasks []string, settings models.Settings) (*Run, error) {
	if len(queue) == 0 {
		return nil, &models.PreconditionError{Cause: models.ErrEmptyQueue}
	}
	if len(tasks) == 0 {
		return nil, &models.PreconditionError{Cause: models.ErrNoTasks}
	}

	runID := uuid.New().String()
	startedAt := c.now().UTC()
	gen, err := c.state.begin(runID, startedAt)
	if err != nil {
		return nil, err
	}

	run := &Run{
		ID:         runID,
		Request:    models.NewRunRequest(queue, tasks, settings),
		StartedAt:  startedAt,
		generation: gen,
		done:       make(chan struct{}),
	}
	logger := logging.WithRun(c.logger, runID, "")

	c.buffer.Replace(StartBanner(len(queue)))
	c.publish(ctx, &models.Event{Type: models.EventTypeRunStarted, RunID: runID, Text: StartBanner(len(queue))})
	if c.recorder != nil {
		rec := &journal.RunRecord{ID: runID, ServerURL: c.serverURL, Request: run.Request, StartedAt: startedAt}
		if err := c.recorder.Create(ctx, rec); err != nil {
			logger.Warn().Err(err).Msg("journal create failed")
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.current = run
	c.cancel = cancel
	c.mu.Unlock()

	body, err := c.client.Run(runCtx, run.Request)
	if err != nil {
		cancel()
		if c.state.finish(gen) {
			c.publish(ctx, &models.Event{Type: models.EventTypeRunFinished, RunID: runID, Outcome: models.RunOutcomeFailed})
		}
		c.complete(ctx, run, models.RunOutcomeFailed, err, logger)
		c.notify(ctx, models.SeverityError, "Run failed: "+err.Error())
		return nil, err
	}

	logger.Info().Int("jobs", len(run.Request.Jobs)).Strs("tasks", run.Request.Jobs[0].Tasks).Msg("run started")
	go c.consume(runCtx, cancel, run, body, logger)
	return run, nil
}

// Stop asks the remote to stop and returns to Idle at once. Output that is
// still in flight keeps being appended until the stream ends, unless
// cancel-on-stop is enabled.
func (c *Controller) Stop(ctx context.Context) (models.StopResponse, error) {
	c.mu.Lock()
	run := c.current
	cancel := c.cancel
	c.mu.Unlock()

	if run == nil || !c.state.finish(run.generation) {
		return models.StopResponse{}, models.ErrNotRunning
	}
	run.stopRequested.Store(true)
	c.publish(ctx, &models.Event{Type: models.EventTypeRunFinished, RunID: run.ID, Outcome: models.RunOutcomeStopped})
	c.logger.Info().Str("run_id", run.ID).Msg("stop requested")

	if c.cancelOnStop && cancel != nil {
		cancel()
	}

	resp, err := c.client.Stop(ctx)
	if err != nil {
		c.notify(ctx, models.SeverityError, "Stop failed: "+err.Error())
		return models.StopResponse{}, err
	}
	severity := models.SeveritySuccess
	if !resp.OK() {
		severity = models.SeverityError
	}
	c.notify(ctx, severity, resp.Msg)
	return resp, nil
}

func (c *Controller) consume(ctx context.Context, cancel context.CancelFunc, run *Run, body io.ReadCloser, logger zerolog.Logger) {
	defer cancel()
	defer body.Close()

	opts := []stream.Option{stream.WithLogger(logger)}
	if c.idleTimeout > 0 {
		opts = append(opts, stream.WithIdleTimeout(c.idleTimeout, cancel))
	}
	consumer := stream.NewConsumer(body, opts...)
	eventCtx := context.WithoutCancel(ctx)
	sawDone, err := consumer.Drain(ctx, func(ev models.StreamEvent) {
		c.apply(eventCtx, run, ev, logger)
	})

	stopped := run.stopRequested.Load()
	if stopped && ctx.Err() != nil {
		// The transfer was aborted on our own stop.
		err = nil
	}
	outcome := classify(sawDone, err, stopped)

	if c.state.finish(run.generation) {
		c.publish(context.Background(), &models.Event{Type: models.EventTypeRunFinished, RunID: run.ID, LogFile: run.LogFile(), Outcome: outcome})
		if outcome == models.RunOutcomeDisconnected {
			c.notify(context.Background(), models.SeverityInfo, "Run stream ended")
		}
	}
	stats := consumer.Stats()
	logger.Info().
		Str("outcome", string(outcome)).
		Int("frames", stats.Frames).
		Int("discarded", stats.Discarded).
		Int64("bytes", stats.Bytes).
		Msg("run stream closed")
	c.complete(context.Background(), run, outcome, err, logger)
}

// apply handles one event. Fields are inspected independently. Events of a
// run superseded by a newer one are dropped so they cannot touch its buffer.
func (c *Controller) apply(ctx context.Context, run *Run, ev models.StreamEvent, logger zerolog.Logger) {
	if file := ev.LogFile(); file != "" {
		run.mu.Lock()
		run.logFile = file
		run.mu.Unlock()
		if c.state.setLog(run.generation, file) {
			c.publish(ctx, &models.Event{Type: models.EventTypeLogIdentified, RunID: run.ID, LogFile: file})
		}
		if c.recorder != nil {
			if err := c.recorder.SetLogFile(ctx, run.ID, file); err != nil {
				logger.Warn().Err(err).Msg("journal log file update failed")
			}
		}
		logger.Debug().Str("log_file", file).Msg("log identified")
	}
	if ev.HasLog {
		if !c.state.isCurrent(run.generation) {
			return
		}
		c.buffer.Append(ev.Log)
		c.publish(ctx, &models.Event{Type: models.EventTypeLogAppended, RunID: run.ID, Text: ev.Log})
	}
}

// complete records the outcome and then releases waiters, so a journal entry
// is final by the time Done is closed.
func (c *Controller) complete(ctx context.Context, run *Run, outcome models.RunOutcome, err error, logger zerolog.Logger) {
	if c.recorder != nil {
		if jerr := c.recorder.Finish(ctx, run.ID, outcome, err); jerr != nil {
			logger.Warn().Err(jerr).Msg("journal finish failed")
		}
	}

	run.mu.Lock()
	run.outcome = outcome
	run.err = err
	run.mu.Unlock()
	close(run.done)
}

func classify(sawDone bool, err error, stopped bool) models.RunOutcome {
	switch {
	case stopped:
		return models.RunOutcomeStopped
	case sawDone:
		return models.RunOutcomeDone
	case err == nil, errors.Is(err, stream.ErrIdleTimeout):
		return models.RunOutcomeDisconnected
	default:
		return models.RunOutcomeFailed
	}
}

func (c *Controller) publish(ctx context.Context, event *models.Event) {
	if c.publisher == nil {
		return
	}
	c.publisher.Publish(ctx, event)
}

func (c *Controller) notify(ctx context.Context, severity models.Severity, text string) {
	if c.publisher == nil || text == "" {
		return
	}
	events.Notify(ctx, c.publisher, severity, text)
}
