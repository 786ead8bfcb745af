// Package app builds the service graph shared by the alerter daemon and the
// quakectl admin CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/quake-alert-service/internal/adapter/cache"
	"github.com/couchcryptid/quake-alert-service/internal/adapter/kafka"
	"github.com/couchcryptid/quake-alert-service/internal/adapter/push"
	"github.com/couchcryptid/quake-alert-service/internal/adapter/sqlite"
	"github.com/couchcryptid/quake-alert-service/internal/adapter/usgs"
	"github.com/couchcryptid/quake-alert-service/internal/config"
	"github.com/couchcryptid/quake-alert-service/internal/notify"
	"github.com/couchcryptid/quake-alert-service/internal/observability"
	"github.com/couchcryptid/quake-alert-service/internal/pipeline"
)

// App owns the long-lived resources of one process.
type App struct {
	Store    *sqlite.Store
	Pipeline *pipeline.Pipeline

	writer *kafka.Writer
	logger *slog.Logger
}

// New opens the store and wires the pipeline from cfg.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*App, error) {
	var sender notify.Sender
	if cfg.PushEnabled {
		creds, err := pushCredentials(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		sender = push.NewClient(cfg.PushBaseURL, creds, cfg.PushTimeout, logger)
		logger.Info("push delivery enabled", "project_id", creds.ProjectID, "timeout", cfg.PushTimeout)
	} else {
		sender = push.NewLogSender(logger)
		logger.Info("push delivery disabled, messages will be logged")
	}

	store, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	feed := usgs.NewClient(cfg.FeedURL, usgs.Options{
		Timeout:      cfg.FeedTimeout,
		MaxAttempts:  cfg.FeedMaxAttempts,
		RetryBackoff: cfg.FeedRetryBackoff,
	}, metrics, logger)

	a := &App{Store: store, logger: logger}

	opts := pipeline.Options{
		Concurrency:      cfg.DispatchConcurrency,
		RenotifyLookback: cfg.RenotifyLookback,
		BroadcastTopic:   cfg.BroadcastTopic,
		Broadcaster:      sender,
	}
	if cfg.KafkaEnabled {
		a.writer = kafka.NewWriter(cfg.KafkaBrokers, cfg.KafkaEventsTopic, logger)
		opts.Publisher = a.writer
		logger.Info("event stream enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaEventsTopic)
	}

	a.Pipeline = pipeline.New(
		feed,
		cache.NewSeenEventStore(store, cfg.SeenCacheSize, metrics),
		store,
		notify.NewDispatcher(sender, store, logger, metrics),
		logger,
		metrics,
		opts,
	)
	return a, nil
}

// pushCredentials prefers a service account key, which refreshes itself, over
// a static access token.
func pushCredentials(ctx context.Context, cfg *config.Config, logger *slog.Logger) (push.Credentials, error) {
	if cfg.PushCredentialsFile != "" {
		creds, err := push.LoadCredentials(ctx, cfg.PushCredentialsFile, cfg.PushProjectID)
		if err != nil {
			return push.Credentials{}, fmt.Errorf("load push credentials: %w", err)
		}
		return creds, nil
	}
	logger.Warn("push using a static access token; sends will fail once it expires")
	return push.StaticCredentials(cfg.PushProjectID, cfg.PushAccessToken), nil
}

// CheckReadiness reports ready once the store answers and an ingest has
// completed.
func (a *App) CheckReadiness(ctx context.Context) error {
	if err := a.Store.CheckReadiness(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return a.Pipeline.CheckReadiness(ctx)
}

// Close releases the event stream writer and the store.
func (a *App) Close() error {
	var errs []error
	if a.writer != nil {
		if err := a.writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka writer: %w", err))
		}
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}
