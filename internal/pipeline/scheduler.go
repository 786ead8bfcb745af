package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/quake-alert-service/internal/observability"
)

// Ingester runs one ingest pass.
type Ingester interface {
	Ingest(ctx context.Context) (Report, error)
}

// Scheduler runs an ingest at start and then once per interval until the
// context is cancelled. A failed run is logged and the loop continues.
type Scheduler struct {
	ingester Ingester
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewScheduler creates a Scheduler. A nil clock uses the real clock.
func NewScheduler(ingester Ingester, interval time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		ingester: ingester,
		interval: interval,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)
	s.metrics.SchedulerRunning.Set(1)
	defer s.metrics.SchedulerRunning.Set(0)

	s.runOnce(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	_, err := s.ingester.Ingest(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrIngestInProgress):
		s.logger.Warn("previous ingest still running, skipping tick")
	case ctx.Err() != nil:
	default:
		s.logger.Error("scheduled ingest failed", "error", err)
	}
}
