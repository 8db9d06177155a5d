package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tOgg1/pocketbench/internal/journal"
)

func newRunsCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs recorded in the local journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), g.cfg, appOptions{journal: true})
			if err != nil {
				return err
			}
			defer a.Close()
			if a.runs == nil {
				return Exitf(ExitCodeFailure, "run journal is disabled")
			}

			records, err := a.runs.List(cmd.Context(), limit)
			if err != nil {
				return Exitf(ExitCodeFailure, "list runs: %v", err)
			}
			if g.jsonOutput {
				out := make([]runView, 0, len(records))
				for _, rec := range records {
					out = append(out, newRunView(rec))
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}

			now := time.Now()
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				outcome := string(rec.Outcome)
				if outcome == "" {
					outcome = "running"
				}
				rows = append(rows, []string{
					shortID(rec.ID),
					humanize.Time(rec.StartedAt),
					rec.Duration(now).Round(time.Second).String(),
					outcome,
					fmt.Sprintf("%d", len(rec.Request.Jobs)),
					strings.Join(rec.Tasks(), ","),
					rec.LogFile,
				})
			}
			return writeTable(cmd.OutOrStdout(), []string{"ID", "STARTED", "DURATION", "OUTCOME", "MODELS", "TASKS", "LOG"}, rows)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list")
	return cmd
}

type runView struct {
	ID         string     `json:"id"`
	LogFile    string     `json:"log_file,omitempty"`
	ServerURL  string     `json:"server_url"`
	Outcome    string     `json:"outcome,omitempty"`
	Error      string     `json:"error,omitempty"`
	Models     []string   `json:"models"`
	Tasks      []string   `json:"tasks"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func newRunView(rec *journal.RunRecord) runView {
	view := runView{
		ID:         rec.ID,
		LogFile:    rec.LogFile,
		ServerURL:  rec.ServerURL,
		Outcome:    string(rec.Outcome),
		Error:      rec.Error,
		Models:     make([]string, 0, len(rec.Request.Jobs)),
		Tasks:      rec.Tasks(),
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
	}
	for _, job := range rec.Request.Jobs {
		view.Models = append(view.Models, job.RepoID+":"+job.Filename)
	}
	if view.Tasks == nil {
		view.Tasks = []string{}
	}
	return view
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
