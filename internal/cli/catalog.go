package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tOgg1/pocketbench/internal/models"
	"github.com/tOgg1/pocketbench/internal/selection"
)

func newTasksCmd(g *globals) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List the benchmark tasks the server offers",
		Long: "List the benchmark tasks the server offers. When the server cannot be reached\n" +
			"the built-in fallback catalogue is listed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), g.cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			tasks := a.client.Tasks(cmd.Context())
			if filter != "" {
				tasks = selection.FilterTasks(tasks, filter)
			}
			if g.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), tasks)
			}
			for _, task := range tasks {
				fmt.Fprintln(cmd.OutOrStdout(), task)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "only list tasks containing this text")
	return cmd
}

func newModelsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List model artifacts cached on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), g.cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.client.LocalModels(cmd.Context())
			if err != nil {
				return exitForError(err)
			}
			if g.jsonOutput {
				if list == nil {
					list = []models.LocalModel{}
				}
				return writeJSON(cmd.OutOrStdout(), list)
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No local models found.")
				return nil
			}
			rows := make([][]string, 0, len(list))
			for _, m := range list {
				ref := m.RepoID + ":" + m.Filename
				if m.RepoID == "" {
					ref = m.Path
				}
				rows = append(rows, []string{string(m.Type), formatYesNo(m.Queueable()), m.SizeStr, m.Tags, ref})
			}
			return writeTable(cmd.OutOrStdout(), []string{"TYPE", "USABLE", "SIZE", "TAGS", "MODEL"}, rows)
		},
	}
	cmd.AddCommand(newModelsDeleteCmd(g))
	return cmd
}

func newModelsDeleteCmd(g *globals) *cobra.Command {
	var req models.DeleteModelRequest
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a cached model artifact from the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Path == "" && (req.RepoID == "" || req.Filename == "") {
				return usageError(cmd, "pass --path, or --repo and --file")
			}
			if !yes {
				if g.nonInteractive {
					return usageError(cmd, "refusing to delete without --yes in non-interactive mode")
				}
				ok, err := confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), "Delete this model?")
				if err != nil || !ok {
					return err
				}
			}

			a, err := newApp(cmd.Context(), g.cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.client.DeleteModel(cmd.Context(), req)
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
	flags := cmd.Flags()
	flags.StringVar(&req.RepoID, "repo", "", "repository id")
	flags.StringVar(&req.Filename, "file", "", "artifact filename")
	flags.StringVar(&req.Revision, "revision", "", "snapshot revision")
	flags.StringVar(&req.Path, "path", "", "path of a broken cache entry")
	flags.BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newSearchCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search the model hub for quantized repositories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), g.cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.client.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return exitForError(err)
			}
			if g.jsonOutput {
				if results == nil {
					results = []models.SearchResult{}
				}
				return writeJSON(cmd.OutOrStdout(), results)
			}
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{
					r.ID,
					humanize.Comma(int64(r.Downloads)),
					strconv.Itoa(r.Likes),
					r.Updated,
				})
			}
			return writeTable(cmd.OutOrStdout(), []string{"REPO", "DOWNLOADS", "LIKES", "UPDATED"}, rows)
		},
	}
}

func newFilesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "files <repo-id>",
		Short: "List the artifact files of a hub repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), g.cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			files, err := a.client.Files(cmd.Context(), args[0])
			if err != nil {
				return exitForError(err)
			}
			if g.jsonOutput {
				if files == nil {
					files = []models.RepoFile{}
				}
				return writeJSON(cmd.OutOrStdout(), files)
			}
			rows := make([][]string, 0, len(files))
			for _, f := range files {
				size := f.SizeStr
				if size == "" && f.SizeBytes > 0 {
					size = humanize.Bytes(uint64(f.SizeBytes))
				}
				rows = append(rows, []string{f.Name, f.Tags, size})
			}
			return writeTable(cmd.OutOrStdout(), []string{"FILE", "TAGS", "SIZE"}, rows)
		},
	}
}

func newSysinfoCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "sysinfo",
		Short: "Show the hardware of the benchmark server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), g.cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			info, err := a.client.SystemInfo(cmd.Context())
			if err != nil {
				return exitForError(err)
			}
			if g.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), info)
			}
			rows := [][]string{
				{"Accelerator", info.Display},
				{"Memory", fmt.Sprintf("%.1f GB", info.RAMTotal)},
			}
			if info.CPUCores > 0 {
				rows = append(rows, []string{"CPU cores", strconv.Itoa(info.CPUCores)})
			}
			if info.OS != "" {
				rows = append(rows, []string{"OS", info.OS})
			}
			return writeTable(cmd.OutOrStdout(), nil, rows)
		},
	}
}
