package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tOgg1/pocketbench/internal/logging"
	"github.com/tOgg1/pocketbench/internal/models"
)

func newConfigCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if g.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), g.cfg)
			}
			cfg := *g.cfg
			cfg.Server.URL = logging.RedactURL(cfg.Server.URL)
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return Exitf(ExitCodeFailure, "encode config: %v", err)
			}
			return enc.Close()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			used := g.loader.ConfigFileUsed()
			if used == "" {
				used = "(none, using defaults)"
			}
			fmt.Fprintln(cmd.OutOrStdout(), used)
			return nil
		},
	})
	return cmd
}

func newSettingsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the saved run settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the saved run settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), g.cfg, appOptions{settings: true})
			if err != nil {
				return err
			}
			defer a.Close()
			if g.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), a.settings.Get())
			}
			return a.settings.WriteYAML(cmd.OutOrStdout())
		},
	}

	var update models.Settings
	set := &cobra.Command{
		Use:   "set",
		Short: "Change saved run settings",
		Example: "  pocketbench settings set --device cuda --batch 4\n" +
			"  pocketbench settings set --verbosity WARNING",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if update == (models.Settings{}) {
				return usageError(cmd, "nothing to change")
			}
			a, err := newApp(cmd.Context(), g.cfg, appOptions{settings: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.settings.Set(update); err != nil {
				return usageError(cmd, err.Error())
			}
			if err := a.settings.SaveNow(); err != nil {
				return Exitf(ExitCodeFailure, "%v", err)
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "Settings Saved")
			return a.settings.WriteYAML(cmd.OutOrStdout())
		},
	}
	set.Flags().StringVar(&update.Device, "device", "", "device")
	set.Flags().StringVar(&update.BatchSize, "batch", "", "batch size")
	set.Flags().StringVar(&update.Verbosity, "verbosity", "", "verbosity")

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Restore the default run settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), g.cfg, appOptions{settings: true})
			if err != nil {
				return err
			}
			defer a.Close()
			a.settings.Reset()
			if err := a.settings.SaveNow(); err != nil {
				return Exitf(ExitCodeFailure, "%v", err)
			}
			return a.settings.WriteYAML(cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(show, set, reset)
	return cmd
}
