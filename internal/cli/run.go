package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/quake-alert-service/internal/app"
	"github.com/couchcryptid/quake-alert-service/internal/pipeline"
)

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Fetch the feed once, store new events, and alert nearby subscribers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPass(cmd, rootOpts, func(ctx context.Context, a *app.App) (pipeline.Report, error) {
				return a.Pipeline.Ingest(ctx)
			})
		},
	}
}

// NewRenotifyCommand creates the renotify command.
func NewRenotifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "renotify",
		Short: "Re-send alerts for stored significant events",
		Long: `Re-send alerts for stored significant events without fetching the feed.

Subscribers near an event that was already alerted on will be alerted again.
Set RENOTIFY_LOOKBACK to limit how far back events are considered.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPass(cmd, rootOpts, func(ctx context.Context, a *app.App) (pipeline.Report, error) {
				return a.Pipeline.Renotify(ctx)
			})
		},
	}
}

func runPass(cmd *cobra.Command, opts *RootOptions, pass func(context.Context, *app.App) (pipeline.Report, error)) error {
	return withApp(cmd.Context(), opts, func(a *app.App) error {
		report, err := pass(cmd.Context(), a)
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), opts.Format, report, report.Summary())
	})
}
