package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/quake-alert-service/internal/domain"
)

var (
	// ErrNotSignificant rejects a seed event below domain.SignificantMagnitude.
	ErrNotSignificant = errors.New("seed event is below the significant magnitude")

	// ErrAlreadyStored rejects a seed event whose id is already stored. Stored
	// events are immutable, so the write would not take effect.
	ErrAlreadyStored = errors.New("event already stored")
)

// SeedEvent returns the fixed demo event stored by Seed, stamped at now.
func SeedEvent(now time.Time) domain.Event {
	now = now.UTC().Truncate(time.Millisecond)
	return domain.Event{
		ID:          "us7000pz55",
		Place:       "65km N of Lucknow, India",
		Magnitude:   6.0,
		OccurredAt:  now,
		Coordinates: domain.Coordinate{Lat: 26.8467, Lon: 80.9462},
		DepthKm:     10,
		UpdatedAt:   now,
	}
}

// Seed stores event directly, bypassing the feed, and broadcasts it to the
// configured topic. An id that is already stored is refused with
// ErrAlreadyStored and nothing is broadcast. A failed broadcast is logged only.
func (p *Pipeline) Seed(ctx context.Context, event domain.Event) error {
	if !event.Significant() {
		return fmt.Errorf("%w: magnitude %s", ErrNotSignificant, domain.FormatMagnitude(event.Magnitude))
	}
	if !p.writeMu.TryLock() {
		return ErrIngestInProgress
	}
	defer p.writeMu.Unlock()

	logger := p.logger.With("event_id", event.ID)

	exists, err := p.store.Exists(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("check event %s: %w", event.ID, err)
	}
	if exists {
		logger.Info("seed skipped, event already stored")
		return fmt.Errorf("%w: %s", ErrAlreadyStored, event.ID)
	}

	if err := p.store.UpsertBatch(ctx, []domain.Event{event}); err != nil {
		p.metrics.PersistErrors.Inc()
		logger.Error("seed persist failed", "error", err)
		return err
	}
	p.metrics.EventsPersisted.Inc()
	p.publish(ctx, logger, []domain.Event{event})

	if p.broadcaster == nil || p.broadcastTopic == "" {
		logger.Info("event seeded, broadcast disabled")
		return nil
	}
	if err := p.broadcaster.Send(ctx, domain.NewBroadcastMessage(p.broadcastTopic, event)); err != nil {
		logger.Warn("seed broadcast failed", "topic", p.broadcastTopic, "error", err)
		return nil
	}
	logger.Info("event seeded and broadcast", "topic", p.broadcastTopic)
	return nil
}
