package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/quake-alert-service/internal/app"
	"github.com/couchcryptid/quake-alert-service/internal/pipeline"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	ID        string
	Magnitude float64
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Store a demo event and broadcast it to the alert topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			event := pipeline.SeedEvent(time.Now())
			if opts.ID != "" {
				event.ID = opts.ID
			}
			if cmd.Flags().Changed("magnitude") {
				event.Magnitude = opts.Magnitude
			}
			return withApp(cmd.Context(), opts.RootOptions, func(a *app.App) error {
				if err := a.Pipeline.Seed(cmd.Context(), event); err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), opts.Format, event, fmt.Sprintf("event %s seeded", event.ID))
			})
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "event id (default us7000pz55)")
	cmd.Flags().Float64Var(&opts.Magnitude, "magnitude", 6.0, "event magnitude")

	return cmd
}
