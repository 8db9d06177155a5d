package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tOgg1/pocketbench/internal/benchmock"
)

func newMockServerCmd(g *globals) *cobra.Command {
	var (
		addr     string
		delay    time.Duration
		fragment int
		hold     bool
	)
	cmd := &cobra.Command{
		Use:    "mock-server",
		Short:  "Serve a scripted benchmark server for local testing",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := benchmock.New(benchmock.Config{
				StepDelay:    delay,
				FragmentSize: fragment,
				HoldOpen:     hold,
			})
			if err := srv.ListenAndServe(ctx, addr); err != nil {
				return Exitf(ExitCodeFailure, "%v", err)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&addr, "addr", "127.0.0.1:5000", "listen address")
	flags.DurationVar(&delay, "step-delay", 300*time.Millisecond, "delay between streamed frames")
	flags.IntVar(&fragment, "fragment", 0, "split frames into writes of at most this many bytes")
	flags.BoolVar(&hold, "hold", false, "keep runs open until stopped")
	return cmd
}
