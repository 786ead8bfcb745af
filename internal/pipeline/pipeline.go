package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/quake-alert-service/internal/domain"
	"github.com/couchcryptid/quake-alert-service/internal/observability"
)

// ErrIngestInProgress is returned when another ingest or seed holds the
// single-writer lock in this process.
var ErrIngestInProgress = errors.New("ingest already in progress")

// FeedClient fetches candidate events for a query window.
type FeedClient interface {
	Fetch(ctx context.Context, q domain.FeedQuery) ([]domain.Event, error)
}

// EventStore persists events keyed by id.
type EventStore interface {
	Exists(ctx context.Context, id string) (bool, error)
	UpsertBatch(ctx context.Context, events []domain.Event) error
	ListSignificant(ctx context.Context, minMagnitude float64, since time.Time) ([]domain.Event, error)
}

// SubscriberDirectory lists alert recipients.
type SubscriberDirectory interface {
	ListSubscribers(ctx context.Context) ([]domain.Subscriber, error)
}

// Dispatcher delivers one alert and never fails.
type Dispatcher interface {
	Send(ctx context.Context, sub domain.Subscriber, event domain.Event) domain.DeliveryResult
}

// EventPublisher streams newly persisted events downstream.
type EventPublisher interface {
	PublishEvents(ctx context.Context, events []domain.Event) error
}

// Broadcaster sends a topic message.
type Broadcaster interface {
	Send(ctx context.Context, msg domain.Message) error
}

// Options holds the optional collaborators and tuning of a Pipeline.
type Options struct {
	Concurrency      int           // max in-flight dispatches; defaults to 8
	RenotifyLookback time.Duration // 0 re-sends the whole history
	BroadcastTopic   string
	Publisher        EventPublisher // nil disables the event stream
	Broadcaster      Broadcaster    // nil disables seed broadcasts
	Clock            clockwork.Clock
}

// Pipeline runs ingest and re-notify passes.
type Pipeline struct {
	feed        FeedClient
	store       EventStore
	subscribers SubscriberDirectory
	dispatcher  Dispatcher
	publisher   EventPublisher
	broadcaster Broadcaster
	logger      *slog.Logger
	metrics     *observability.Metrics
	clock       clockwork.Clock

	concurrency      int
	renotifyLookback time.Duration
	broadcastTopic   string

	writeMu sync.Mutex
	ready   atomic.Bool
}

// New creates a Pipeline with the given stages and observability.
func New(feed FeedClient, store EventStore, subscribers SubscriberDirectory, dispatcher Dispatcher,
	logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		feed:             feed,
		store:            store,
		subscribers:      subscribers,
		dispatcher:       dispatcher,
		publisher:        opts.Publisher,
		broadcaster:      opts.Broadcaster,
		logger:           logger,
		metrics:          metrics,
		clock:            opts.Clock,
		concurrency:      opts.Concurrency,
		renotifyLookback: opts.RenotifyLookback,
		broadcastTopic:   opts.BroadcastTopic,
	}
}

// CheckReadiness returns nil once an ingest run has completed successfully.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no ingest run has completed yet")
	}
	return nil
}

// Ingest fetches the last 24 hours of events, stores the new ones, and alerts
// subscribers near the significant ones. The run fails only when the fetch,
// the dedup lookup, or the persist fails; dispatch outcomes are reported.
func (p *Pipeline) Ingest(ctx context.Context) (Report, error) {
	if !p.writeMu.TryLock() {
		return Report{}, ErrIngestInProgress
	}
	defer p.writeMu.Unlock()

	report, logger := p.startRun(KindIngest)
	start := p.clock.Now()

	events, err := p.feed.Fetch(ctx, domain.NewFeedQuery(start))
	if err != nil {
		return p.fail(report, logger, start, fmt.Errorf("fetch feed: %w", err))
	}
	report.Fetched = len(events)

	fresh, err := p.filterNew(ctx, logger, events, &report)
	if err != nil {
		return p.fail(report, logger, start, err)
	}

	if len(fresh) > 0 {
		if err := p.store.UpsertBatch(ctx, fresh); err != nil {
			p.metrics.PersistErrors.Inc()
			return p.fail(report, logger, start, err)
		}
		report.Persisted = len(fresh)
		p.metrics.EventsPersisted.Add(float64(len(fresh)))
		p.publish(ctx, logger, fresh)
	}

	significant := selectSignificant(fresh)
	report.Significant = len(significant)

	if len(significant) > 0 {
		subs, err := p.subscribers.ListSubscribers(ctx)
		if err != nil {
			logger.Error("list subscribers failed, skipping dispatch", "error", err)
			report.DispatchErr = fmt.Errorf("list subscribers: %w", err)
		} else {
			p.dispatch(ctx, significant, subs, &report)
		}
	}

	p.ready.Store(true)
	p.metrics.LastSuccessfulIngest.Set(float64(p.clock.Now().Unix()))
	return p.succeed(report, logger, start), nil
}

// Renotify re-runs match and dispatch for stored significant events without
// touching the feed. Subscribers near an event may be alerted again.
func (p *Pipeline) Renotify(ctx context.Context) (Report, error) {
	report, logger := p.startRun(KindRenotify)
	start := p.clock.Now()

	var since time.Time
	if p.renotifyLookback > 0 {
		since = start.Add(-p.renotifyLookback)
	}

	events, err := p.store.ListSignificant(ctx, domain.SignificantMagnitude, since)
	if err != nil {
		return p.fail(report, logger, start, fmt.Errorf("list significant events: %w", err))
	}
	significant := selectSignificant(events)
	report.Significant = len(significant)

	if len(significant) > 0 {
		subs, err := p.subscribers.ListSubscribers(ctx)
		if err != nil {
			return p.fail(report, logger, start, fmt.Errorf("list subscribers: %w", err))
		}
		p.dispatch(ctx, significant, subs, &report)
	}

	return p.succeed(report, logger, start), nil
}

// filterNew drops ids that are already stored or repeated within the batch,
// keeping arrival order.
func (p *Pipeline) filterNew(ctx context.Context, logger *slog.Logger, events []domain.Event, report *Report) ([]domain.Event, error) {
	seen := make(map[string]struct{}, len(events))
	fresh := make([]domain.Event, 0, len(events))

	for _, e := range events {
		if _, dup := seen[e.ID]; dup {
			logger.Debug("duplicate id within batch, skipping", "event_id", e.ID)
			report.Duplicates++
			p.metrics.EventsDuplicate.Inc()
			continue
		}
		seen[e.ID] = struct{}{}

		exists, err := p.store.Exists(ctx, e.ID)
		if err != nil {
			return nil, fmt.Errorf("check event %s: %w", e.ID, err)
		}
		if exists {
			logger.Debug("event already stored, skipping", "event_id", e.ID)
			report.Duplicates++
			p.metrics.EventsDuplicate.Inc()
			continue
		}
		fresh = append(fresh, e)
	}
	return fresh, nil
}

// publish streams fresh events downstream. Failures are logged and counted.
func (p *Pipeline) publish(ctx context.Context, logger *slog.Logger, events []domain.Event) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishEvents(ctx, events); err != nil {
		logger.Warn("publish events failed", "error", err, "count", len(events))
		p.metrics.EventsPublished.WithLabelValues("error").Add(float64(len(events)))
		return
	}
	p.metrics.EventsPublished.WithLabelValues("success").Add(float64(len(events)))
}

// dispatch sends one alert per (event, deliverable subscriber within
// AlertRadiusKm) pair, at most p.concurrency at a time.
func (p *Pipeline) dispatch(ctx context.Context, events []domain.Event, subs []domain.Subscriber, report *Report) {
	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(p.concurrency)

	for _, event := range events {
		for _, sub := range subs {
			if !sub.Deliverable() {
				continue
			}
			if !domain.WithinRadius(event.Coordinates, *sub.Location, domain.AlertRadiusKm) {
				continue
			}
			g.Go(func() error {
				result := p.dispatcher.Send(ctx, sub, event)
				mu.Lock()
				report.record(result)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()
}

func (p *Pipeline) startRun(kind string) (Report, *slog.Logger) {
	report := Report{RunID: uuid.NewString(), Kind: kind}
	return report, p.logger.With("run_id", report.RunID, "kind", kind)
}

func (p *Pipeline) fail(report Report, logger *slog.Logger, start time.Time, err error) (Report, error) {
	report.Duration = p.clock.Since(start)
	p.metrics.Runs.WithLabelValues(report.Kind, "failed").Inc()
	p.metrics.RunDuration.WithLabelValues(report.Kind).Observe(report.Duration.Seconds())
	logger.Error("run failed", "error", err, "fetched", report.Fetched, "duplicates", report.Duplicates)
	return report, err
}

func (p *Pipeline) succeed(report Report, logger *slog.Logger, start time.Time) Report {
	report.Duration = p.clock.Since(start)
	p.metrics.Runs.WithLabelValues(report.Kind, "success").Inc()
	p.metrics.RunDuration.WithLabelValues(report.Kind).Observe(report.Duration.Seconds())
	if report.AuthFailures > 0 {
		logger.Error("push credentials rejected during run", "auth_failures", report.AuthFailures)
	}
	logger.Info("run finished",
		"fetched", report.Fetched,
		"duplicates", report.Duplicates,
		"persisted", report.Persisted,
		"significant", report.Significant,
		"dispatched", report.Dispatched,
		"delivered", report.Delivered,
		"invalid_tokens", report.InvalidTokens,
		"transient_failures", report.TransientFailures,
		"auth_failures", report.AuthFailures,
		"duration", report.Duration,
	)
	return report
}

func selectSignificant(events []domain.Event) []domain.Event {
	var out []domain.Event
	for _, e := range events {
		if e.Significant() {
			out = append(out, e)
		}
	}
	return out
}
