// Package cli implements quakectl, the operator CLI for the alert service.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/quake-alert-service/internal/app"
	"github.com/couchcryptid/quake-alert-service/internal/config"
	"github.com/couchcryptid/quake-alert-service/internal/observability"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "json" | "text"
	DBPath string

	cfg *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for quakectl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "quakectl",
		Short:         "Operate the earthquake alert service",
		Long:          "Run ingest and re-notify passes, seed demo events, and manage subscribers.\nSettings come from the same environment variables as the alerter.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if opts.DBPath != "" {
				cfg.DBPath = opts.DBPath
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "database path (overrides DB_PATH)")

	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewRenotifyCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewSubscriberCommand(opts))

	return cmd
}

// withApp builds the service graph, runs fn, and closes it.
func withApp(ctx context.Context, opts *RootOptions, fn func(*app.App) error) (err error) {
	logger := observability.NewCLILogger(opts.cfg.LogLevel, opts.cfg.LogFormat)
	a, err := app.New(ctx, opts.cfg, logger, observability.NewLocalMetrics())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}

// writeOutput prints v as indented JSON or text as-is, per the format flag.
func writeOutput(w io.Writer, format string, v any, text string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
