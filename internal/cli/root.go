// Package cli implements the pocketbench command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/pocketbench/internal/config"
	"github.com/tOgg1/pocketbench/internal/logging"
)

// BuildInfo identifies the binary.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// globals holds persistent flag values and the configuration they produce.
type globals struct {
	configFile     string
	serverURL      string
	logLevel       string
	logFormat      string
	jsonOutput     bool
	nonInteractive bool

	cfg    *config.Config
	loader *config.Loader
}

// Execute runs the root command with os.Args.
func Execute(build BuildInfo) error {
	return newRootCmd(build).Execute()
}

func newRootCmd(build BuildInfo) *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:   "pocketbench",
		Short: "Drive benchmark runs on a remote evaluation server",
		Long: "pocketbench queues model artifacts and benchmark tasks, starts runs on a\n" +
			"remote evaluation server, follows their output live and manages run logs.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", build.Version, build.Commit, build.Date),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.init(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&g.configFile, "config", "", "config file (default is $HOME/.config/pocketbench/config.yaml)")
	flags.StringVar(&g.serverURL, "server", "", "benchmark server base URL")
	flags.StringVar(&g.logLevel, "log-level", "", "override logging level (debug, info, warn, error)")
	flags.StringVar(&g.logFormat, "log-format", "", "override logging format (json, console)")
	flags.BoolVar(&g.jsonOutput, "json", false, "emit JSON output")
	flags.BoolVar(&g.nonInteractive, "non-interactive", false, "never start the interactive console")

	cmd.AddCommand(
		newConsoleCmd(g),
		newRunCmd(g),
		newStopCmd(g),
		newLogsCmd(g),
		newTasksCmd(g),
		newRunsCmd(g),
		newConfigCmd(g),
		newSettingsCmd(g),
		newModelsCmd(g),
		newSearchCmd(g),
		newFilesCmd(g),
		newSysinfoCmd(g),
		newMockServerCmd(g),
	)
	return cmd
}

// init loads configuration with flag overrides and sets up logging.
func (g *globals) init(cmd *cobra.Command) error {
	loader := config.NewLoader()
	if g.configFile != "" {
		loader.SetConfigFile(g.configFile)
	}
	if v := strings.TrimSpace(g.serverURL); v != "" {
		loader.Set("server.url", v)
	}
	if g.logLevel != "" {
		loader.Set("logging.level", g.logLevel)
	}
	if g.logFormat != "" {
		loader.Set("logging.format", g.logFormat)
	}

	cfg, err := loader.Load()
	if err != nil {
		return &ExitError{Code: ExitCodeUsage, Err: err}
	}
	g.cfg = cfg
	g.loader = loader

	logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cmd.ErrOrStderr(),
		EnableCaller: cfg.Logging.EnableCaller,
	})
	if used := loader.ConfigFileUsed(); used != "" {
		logger := logging.Component("cli")
		logger.Debug().Str("config_file", used).Str("command", cmd.Name()).Msg("loaded config file")
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Exitf(ExitCodeFailure, "encode output: %v", err)
	}
	_, err = fmt.Fprintln(out, string(payload))
	return err
}
