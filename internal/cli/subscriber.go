package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/quake-alert-service/internal/app"
	"github.com/couchcryptid/quake-alert-service/internal/domain"
)

// SubscriberOptions holds flags for the subscriber add command.
type SubscriberOptions struct {
	*RootOptions
	Token         string
	Lat           float64
	Lon           float64
	AlertsEnabled bool
}

// NewSubscriberCommand creates the subscriber command group.
func NewSubscriberCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscriber",
		Short: "Manage alert subscribers",
	}
	cmd.AddCommand(newSubscriberAddCommand(rootOpts))
	cmd.AddCommand(newSubscriberListCommand(rootOpts))
	return cmd
}

func newSubscriberAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubscriberOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Register or update a subscriber",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(opts.Token) == "" {
				return errors.New("--token is required")
			}
			if opts.Lat < -90 || opts.Lat > 90 || opts.Lon < -180 || opts.Lon > 180 {
				return fmt.Errorf("coordinates out of range: %v, %v", opts.Lat, opts.Lon)
			}
			sub := domain.Subscriber{
				ID:            args[0],
				Location:      &domain.Coordinate{Lat: opts.Lat, Lon: opts.Lon},
				DeliveryToken: opts.Token,
				AlertsEnabled: opts.AlertsEnabled,
			}
			return withApp(cmd.Context(), opts.RootOptions, func(a *app.App) error {
				if err := a.Store.UpsertSubscriber(cmd.Context(), sub); err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), opts.Format, sub, fmt.Sprintf("subscriber %s saved", sub.ID))
			})
		},
	}

	cmd.Flags().StringVar(&opts.Token, "token", "", "push delivery token")
	cmd.Flags().Float64Var(&opts.Lat, "lat", 0, "latitude in degrees")
	cmd.Flags().Float64Var(&opts.Lon, "lon", 0, "longitude in degrees")
	cmd.Flags().BoolVar(&opts.AlertsEnabled, "alerts-enabled", true, "alerts preference flag")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")

	return cmd
}

func newSubscriberListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered subscribers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), rootOpts, func(a *app.App) error {
				subs, err := a.Store.ListSubscribers(cmd.Context())
				if err != nil {
					return err
				}
				if rootOpts.Format == "json" {
					return writeOutput(cmd.OutOrStdout(), "json", subs, "")
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tLOCATION\tTOKEN\tALERTS")
				for _, s := range subs {
					loc := "-"
					if s.Location != nil {
						loc = fmt.Sprintf("%.4f,%.4f", s.Location.Lat, s.Location.Lon)
					}
					token := "-"
					if s.DeliveryToken != "" {
						token = "set"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", s.ID, loc, token, s.AlertsEnabled)
				}
				return tw.Flush()
			})
		},
	}
}
