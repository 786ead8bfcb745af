// Package cache provides in-memory decorators for storage adapters.
package cache

import (
	"context"
	"time"

	"github.com/couchcryptid/quake-alert-service/internal/domain"
	"github.com/couchcryptid/quake-alert-service/internal/observability"
)

// EventStore is the subset of the event store the decorator wraps.
type EventStore interface {
	Exists(ctx context.Context, id string) (bool, error)
	UpsertBatch(ctx context.Context, events []domain.Event) error
	ListSignificant(ctx context.Context, minMagnitude float64, since time.Time) ([]domain.Event, error)
}

// SeenEventStore remembers ids known to be stored so repeated feed windows
// skip the database lookup. Stored events are never deleted, so a cached
// positive answer cannot go stale. Negative answers are never cached.
type SeenEventStore struct {
	inner   EventStore
	seen    *lruSet
	metrics *observability.Metrics
}

// NewSeenEventStore creates a seen-id decorator holding up to maxEntries ids.
func NewSeenEventStore(inner EventStore, maxEntries int, metrics *observability.Metrics) *SeenEventStore {
	return &SeenEventStore{
		inner:   inner,
		seen:    newLRUSet(maxEntries),
		metrics: metrics,
	}
}

func (s *SeenEventStore) Exists(ctx context.Context, id string) (bool, error) {
	if s.seen.contains(id) {
		s.metrics.SeenCache.WithLabelValues("hit").Inc()
		return true, nil
	}
	s.metrics.SeenCache.WithLabelValues("miss").Inc()

	ok, err := s.inner.Exists(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		s.seen.add(id)
	}
	return ok, nil
}

func (s *SeenEventStore) UpsertBatch(ctx context.Context, events []domain.Event) error {
	if err := s.inner.UpsertBatch(ctx, events); err != nil {
		return err
	}
	for _, e := range events {
		s.seen.add(e.ID)
	}
	return nil
}

func (s *SeenEventStore) ListSignificant(ctx context.Context, minMagnitude float64, since time.Time) ([]domain.Event, error) {
	return s.inner.ListSignificant(ctx, minMagnitude, since)
}
