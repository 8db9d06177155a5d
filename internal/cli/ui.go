package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tOgg1/pocketbench/internal/console"
	"github.com/tOgg1/pocketbench/internal/logging"
	"github.com/tOgg1/pocketbench/internal/logsync"
	"github.com/tOgg1/pocketbench/internal/run"
	"github.com/tOgg1/pocketbench/internal/selection"
)

func newConsoleCmd(g *globals) *cobra.Command {
	var theme string
	cmd := &cobra.Command{
		Use:     "console",
		Aliases: []string{"ui"},
		Short:   "Launch the interactive console",
		Long:    "Launch the terminal console: pick tasks and models, start and stop runs, follow output and browse logs.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(cmd.Context(), g, theme)
		},
	}
	cmd.Flags().StringVar(&theme, "theme", "", "color theme (default, high-contrast)")
	return cmd
}

func runConsole(ctx context.Context, g *globals, themeName string) error {
	if g.nonInteractive || !hasTTY() {
		return Exitf(ExitCodeUsage, "the console requires an interactive terminal; use the run and logs commands instead")
	}
	if themeName == "" {
		themeName = g.cfg.TUI.Theme
	}
	theme, err := console.ThemeByName(themeName)
	if err != nil {
		return &ExitError{Code: ExitCodeUsage, Err: err}
	}

	// The console owns the terminal; logs go to a file or nowhere.
	if path := g.cfg.Logging.File; path != "" {
		file, err := logging.OpenFile(path)
		if err != nil {
			return Exitf(ExitCodeFailure, "open log file: %v", err)
		}
		defer file.Close()
		logging.Init(logging.Config{
			Level:        g.cfg.Logging.Level,
			Format:       "json",
			Output:       file,
			EnableCaller: g.cfg.Logging.EnableCaller,
		})
	} else {
		logging.Disable()
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, g.cfg, appOptions{journal: true, settings: true})
	if err != nil {
		return err
	}
	defer a.Close()

	state := run.NewState()
	sync := logsync.NewService(a.client, state, logsync.WithPublisher(a.publisher))
	ctrl := a.controller(sync.Live(), state)

	err = console.Run(ctx, console.Deps{
		Store:      selection.New(),
		Controller: ctrl,
		Sync:       sync,
		Catalog:    a.client,
		Settings:   a.settings,
		Publisher:  a.publisher,
		Theme:      theme,
		Refresh:    g.cfg.TUI.RefreshInterval,
	})

	// Leaving the console does not leave a run behind.
	if state.Running() {
		if _, stopErr := ctrl.Stop(context.WithoutCancel(ctx)); stopErr != nil {
			a.logger.Warn().Err(stopErr).Msg("stop on exit failed")
		}
	}
	return err
}

func hasTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
