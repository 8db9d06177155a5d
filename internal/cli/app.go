package cli

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/tOgg1/pocketbench/internal/benchapi"
	"github.com/tOgg1/pocketbench/internal/config"
	"github.com/tOgg1/pocketbench/internal/events"
	"github.com/tOgg1/pocketbench/internal/journal"
	"github.com/tOgg1/pocketbench/internal/logging"
	"github.com/tOgg1/pocketbench/internal/logsync"
	"github.com/tOgg1/pocketbench/internal/run"
	"github.com/tOgg1/pocketbench/internal/settings"
)

// app is the set of services one command works with.
type app struct {
	cfg       *config.Config
	client    *benchapi.Client
	publisher *events.InMemoryPublisher
	settings  *settings.Manager
	db        *journal.DB
	runs      *journal.RunRepository
	logger    zerolog.Logger
}

type appOptions struct {
	journal  bool
	settings bool
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	a := &app{
		cfg:       cfg,
		publisher: events.NewInMemoryPublisher(),
		logger:    logging.Component("cli"),
	}

	client, err := benchapi.New(cfg.Server.URL, benchapi.WithTimeout(cfg.Server.RequestTimeout))
	if err != nil {
		return nil, &ExitError{Code: ExitCodeUsage, Err: err}
	}
	a.client = client

	if opts.journal || opts.settings {
		if err := cfg.EnsureDirectories(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to create directories")
		}
	}

	if opts.settings {
		a.settings = settings.New(cfg.SettingsPath(), cfg.Run.Settings())
		if err := a.settings.Load(); err != nil {
			a.logger.Warn().Err(err).Str("path", cfg.SettingsPath()).Msg("failed to load saved settings")
		}
	}

	if opts.journal && cfg.Journal.Enabled {
		db, err := journal.Open(journal.Config{Path: cfg.JournalPath(), BusyTimeoutMs: cfg.Journal.BusyTimeoutMs})
		if err != nil {
			// Runs proceed without a journal.
			a.logger.Warn().Err(err).Str("path", cfg.JournalPath()).Msg("run journal unavailable")
		} else if _, err := db.MigrateUp(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("run journal migration failed")
			_ = db.Close()
		} else {
			a.db = db
			a.runs = journal.NewRunRepository(db)
		}
	}
	return a, nil
}

// controller builds a run controller writing into buffer.
func (a *app) controller(buffer *logsync.Buffer, state *run.State) *run.Controller {
	opts := []run.Option{
		run.WithPublisher(a.publisher),
		run.WithServerURL(a.client.BaseURL()),
		run.WithIdleTimeout(a.cfg.Server.StreamIdleTimeout),
		run.WithCancelOnStop(a.cfg.Server.CancelOnStop),
		run.WithState(state),
	}
	if a.runs != nil {
		opts = append(opts, run.WithRecorder(a.runs))
	}
	return run.NewController(a.client, buffer, opts...)
}

func (a *app) Close() error {
	var errs []error
	if a.settings != nil {
		errs = append(errs, a.settings.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	a.publisher.Close()
	return errors.Join(errs...)
}
