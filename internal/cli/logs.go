package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/pocketbench/internal/journal"
	"github.com/tOgg1/pocketbench/internal/logsync"
	"github.com/tOgg1/pocketbench/internal/models"
)

func newLogsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Browse and manage run logs stored on the server",
	}
	cmd.AddCommand(
		newLogsListCmd(g),
		newLogsShowCmd(g),
		newLogsDeleteCmd(g),
		newLogsResyncCmd(g),
	)
	return cmd
}

func newLogsListCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List run logs, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), g.cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := logsync.NewService(a.client, logsync.StaticRun("")).List(cmd.Context())
			if err != nil {
				return exitForError(err)
			}
			if g.jsonOutput {
				if entries == nil {
					entries = []models.LogHistoryEntry{}
				}
				return writeJSON(cmd.OutOrStdout(), entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No logs found.")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{e.Name, e.Date, e.Size, e.Filename})
			}
			return writeTable(cmd.OutOrStdout(), []string{"NAME", "DATE", "SIZE", "FILENAME"}, rows)
		},
	}
}

func newLogsShowCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show <filename>",
		Short: "Print the content of a run log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), g.cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			text, err := logsync.NewService(a.client, logsync.StaticRun("")).Fetch(cmd.Context(), args[0])
			if err != nil {
				var notFound *models.NotFoundError
				if errors.As(err, &notFound) {
					return Exitf(ExitCodeFailure, "%s: %s", logsync.ReadErrorText, notFound.Error())
				}
				return exitForError(err)
			}
			if g.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"filename": args[0], "content": text})
			}
			_, err = io.WriteString(cmd.OutOrStdout(), text)
			return err
		},
	}
}

func newLogsDeleteCmd(g *globals) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "delete <filename>",
		Aliases: []string{"rm"},
		Short:   "Delete a run log from the server",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filename := strings.TrimSpace(args[0])
			if !yes {
				if g.nonInteractive {
					return usageError(cmd, "refusing to delete without --yes in non-interactive mode")
				}
				ok, err := confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), "Delete this log?")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.ErrOrStderr(), "Aborted.")
					return nil
				}
			}

			a, err := newApp(cmd.Context(), g.cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := logsync.NewService(a.client, logsync.StaticRun("")).Delete(cmd.Context(), filename); err != nil {
				var deleteErr *models.DeleteError
				if errors.As(err, &deleteErr) {
					return Exitf(ExitCodeFailure, "delete %s: %v", filename, deleteErr)
				}
				return exitForError(err)
			}
			if g.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), models.StatusResponse{Status: "success", Msg: "Log deleted"})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Deleted", filename)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newLogsResyncCmd(g *globals) *cobra.Command {
	var last bool
	cmd := &cobra.Command{
		Use:   "resync [filename]",
		Short: "Reload the full persisted output of a run",
		Long: "Fetch the persisted log of a run and print it. With --last the log of the most\n" +
			"recent run recorded in the local journal is used.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if last == (len(args) == 1) {
				return usageError(cmd, "pass either a filename or --last")
			}

			a, err := newApp(cmd.Context(), g.cfg, appOptions{journal: last})
			if err != nil {
				return err
			}
			defer a.Close()

			filename := ""
			if len(args) == 1 {
				filename = strings.TrimSpace(args[0])
			} else {
				if a.runs == nil {
					return Exitf(ExitCodeFailure, "run journal is disabled")
				}
				rec, err := a.runs.Latest(cmd.Context())
				if errors.Is(err, journal.ErrRunNotFound) {
					return Exitf(ExitCodeFailure, "No active log file")
				}
				if err != nil {
					return Exitf(ExitCodeFailure, "read run journal: %v", err)
				}
				filename = rec.LogFile
			}

			svc := logsync.NewService(a.client, logsync.StaticRun(filename))
			if err := svc.Resync(cmd.Context()); err != nil {
				if errors.Is(err, models.ErrNoActiveLog) {
					return Exitf(ExitCodeFailure, "No active log file")
				}
				return exitForError(err)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), svc.Live().Text())
			return err
		},
	}
	cmd.Flags().BoolVar(&last, "last", false, "use the log of the most recent recorded run")
	return cmd
}

// confirm asks a yes/no question on out and reads the answer from in.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
