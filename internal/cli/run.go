package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tOgg1/pocketbench/internal/events"
	"github.com/tOgg1/pocketbench/internal/logsync"
	"github.com/tOgg1/pocketbench/internal/models"
	"github.com/tOgg1/pocketbench/internal/run"
	"github.com/tOgg1/pocketbench/internal/selection"
)

type runOptions struct {
	models    []string
	tasks     []string
	device    string
	batch     string
	verbosity string
	save      bool
}

// runSummary is printed with --json once the run ends.
type runSummary struct {
	RunID   string            `json:"run_id"`
	LogFile string            `json:"log_file,omitempty"`
	Outcome models.RunOutcome `json:"outcome"`
	Error   string            `json:"error,omitempty"`
	Jobs    []models.Job      `json:"jobs"`
}

func newRunCmd(g *globals) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a benchmark run and follow its output",
		Long: "Start a run of every --model against every --task and print the server output\n" +
			"as it streams. Interrupting the command asks the server to stop the run.",
		Example: "  pocketbench run --model Qwen/Qwen2-0.5B-Instruct-GGUF:qwen2-0_5b-instruct-q4_k_m.gguf --task mmlu --task gsm8k",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBenchmark(cmd, g, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringArrayVarP(&opts.models, "model", "m", nil, "artifact to queue as REPO_ID:FILENAME[:TAGS] (repeatable)")
	flags.StringSliceVarP(&opts.tasks, "task", "t", nil, "benchmark task (repeatable or comma separated)")
	flags.StringVar(&opts.device, "device", "", "device override ("+strings.Join(models.DeviceOptions, ", ")+")")
	flags.StringVar(&opts.batch, "batch", "", "batch size override ("+strings.Join(models.BatchSizeOptions, ", ")+")")
	flags.StringVar(&opts.verbosity, "verbosity", "", "verbosity override ("+strings.Join(models.VerbosityOptions, ", ")+")")
	flags.BoolVar(&opts.save, "save", false, "save the overrides as the new default settings")
	return cmd
}

// parseModelRef splits REPO_ID:FILENAME[:TAGS].
func parseModelRef(ref string) (models.QueueItem, error) {
	parts := strings.SplitN(strings.TrimSpace(ref), ":", 3)
	if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return models.QueueItem{}, fmt.Errorf("invalid model %q, expected REPO_ID:FILENAME", ref)
	}
	item := models.QueueItem{RepoID: strings.TrimSpace(parts[0]), Filename: strings.TrimSpace(parts[1])}
	if len(parts) == 3 {
		item.Tags = strings.TrimSpace(parts[2])
	}
	return item, nil
}

func runBenchmark(cmd *cobra.Command, g *globals, opts *runOptions) error {
	store := selection.New()
	for _, ref := range opts.models {
		item, err := parseModelRef(ref)
		if err != nil {
			return usageError(cmd, err.Error())
		}
		if !store.IsQueued(item.RepoID, item.Filename) {
			store.ToggleQueueItem(item.RepoID, item.Filename, item.Tags, item.Size)
		}
	}
	for _, task := range opts.tasks {
		if task = strings.TrimSpace(task); task != "" && !store.HasTask(task) {
			store.ToggleTask(task)
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, g.cfg, appOptions{journal: true, settings: true})
	if err != nil {
		return err
	}
	defer a.Close()

	current, err := applyOverrides(a, opts)
	if err != nil {
		return usageError(cmd, err.Error())
	}

	out := cmd.OutOrStdout()
	if !g.jsonOutput {
		if err := followOutput(a.publisher, out); err != nil {
			return err
		}
	}

	state := run.NewState()
	ctrl := a.controller(logsync.NewBuffer(), state)
	queue, tasks := store.Snapshot()

	started, err := ctrl.Start(ctx, queue, tasks, current)
	if err != nil {
		return exitForError(err)
	}

	sigCtx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		select {
		case <-started.Done():
			return nil
		case <-groupCtx.Done():
			return groupCtx.Err()
		}
	})
	group.Go(func() error {
		select {
		case <-started.Done():
			return nil
		case <-sigCtx.Done():
		}
		if ctx.Err() != nil {
			return nil
		}
		resp, err := ctrl.Stop(context.WithoutCancel(ctx))
		if err != nil && !errors.Is(err, models.ErrNotRunning) {
			return err
		}
		if resp.Msg != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), resp.Msg)
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return exitForError(err)
	}

	outcome, runErr := started.Outcome()
	if g.jsonOutput {
		summary := runSummary{
			RunID:   started.ID,
			LogFile: started.LogFile(),
			Outcome: outcome,
			Jobs:    started.Request.Jobs,
		}
		if runErr != nil {
			summary.Error = runErr.Error()
		}
		if err := writeJSON(out, summary); err != nil {
			return err
		}
	}
	return exitForOutcome(outcome, runErr)
}

// applyOverrides merges flag overrides into the saved settings.
func applyOverrides(a *app, opts *runOptions) (models.Settings, error) {
	current := a.settings.Get()
	override := models.Settings{Device: opts.device, BatchSize: opts.batch, Verbosity: opts.verbosity}
	merged := current.Merge(override)
	if err := merged.Validate(); err != nil {
		return models.Settings{}, err
	}
	if opts.save {
		if _, err := a.settings.Set(merged); err != nil {
			return models.Settings{}, err
		}
	}
	return merged, nil
}

// followOutput copies streamed run output to out as it arrives.
func followOutput(p *events.InMemoryPublisher, out io.Writer) error {
	var mu sync.Mutex
	_, err := p.Subscribe(events.Filter{EventTypes: []models.EventType{
		models.EventTypeRunStarted,
		models.EventTypeLogAppended,
	}}, func(e *models.Event) {
		mu.Lock()
		defer mu.Unlock()
		_, _ = io.WriteString(out, e.Text)
	})
	return err
}

func exitForOutcome(outcome models.RunOutcome, err error) error {
	switch outcome {
	case models.RunOutcomeDone:
		return nil
	case models.RunOutcomeStopped:
		return &ExitError{Code: ExitCodeStopped, Err: errors.New("run stopped"), Printed: true}
	case models.RunOutcomeDisconnected:
		return Exitf(ExitCodeFailure, "run stream ended before the batch completed")
	}
	if err == nil {
		err = errors.New("run failed")
	}
	return exitForError(err)
}

func newStopCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the run in progress on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), g.cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.client.Stop(cmd.Context())
			if err != nil {
				return exitForError(err)
			}
			if g.jsonOutput {
				if err := writeJSON(cmd.OutOrStdout(), resp); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), resp.Msg)
			}
			if !resp.OK() {
				return &ExitError{Code: ExitCodeFailure, Err: errors.New(resp.Msg), Printed: true}
			}
			return nil
		},
	}
}
