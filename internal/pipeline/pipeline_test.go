package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/quake-alert-service/internal/domain"
	"github.com/couchcryptid/quake-alert-service/internal/observability"
	"github.com/couchcryptid/quake-alert-service/internal/pipeline"
)

// --- fakes ---

type fakeFeed struct {
	events  []domain.Event
	err     error
	queries []domain.FeedQuery
	block   chan struct{} // when set, Fetch waits for it to close
	entered chan struct{}
}

func (f *fakeFeed) Fetch(_ context.Context, q domain.FeedQuery) ([]domain.Event, error) {
	f.queries = append(f.queries, q)
	if f.block != nil {
		close(f.entered)
		<-f.block
	}
	return f.events, f.err
}

type fakeStore struct {
	mu          sync.Mutex
	stored      map[string]domain.Event
	existsCalls int
	existsErr   error
	upserts     [][]domain.Event
	upsertErr   error
	listErr     error
	listSince   []time.Time
}

func newFakeStore(events ...domain.Event) *fakeStore {
	s := &fakeStore{stored: make(map[string]domain.Event)}
	for _, e := range events {
		s.stored[e.ID] = e
	}
	return s
}

func (s *fakeStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.existsCalls++
	if s.existsErr != nil {
		return false, s.existsErr
	}
	_, ok := s.stored[id]
	return ok, nil
}

func (s *fakeStore) UpsertBatch(_ context.Context, events []domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts = append(s.upserts, events)
	if s.upsertErr != nil {
		return s.upsertErr
	}
	for _, e := range events {
		if _, ok := s.stored[e.ID]; !ok {
			s.stored[e.ID] = e
		}
	}
	return nil
}

func (s *fakeStore) ListSignificant(_ context.Context, minMagnitude float64, since time.Time) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listSince = append(s.listSince, since)
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.Event
	for _, e := range s.stored {
		if e.Magnitude >= minMagnitude && !e.OccurredAt.Before(since) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

type fakeDirectory struct {
	subs  []domain.Subscriber
	err   error
	calls int
}

func (d *fakeDirectory) ListSubscribers(_ context.Context) ([]domain.Subscriber, error) {
	d.calls++
	return d.subs, d.err
}

type dispatch struct {
	EventID      string
	SubscriberID string
}

type fakeDispatcher struct {
	mu       sync.Mutex
	sent     []dispatch
	outcomes map[string]domain.DeliveryOutcome // by subscriber id; default Delivered
	errs     map[string]error                  // by subscriber id; replaces the outcome's default error
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (d *fakeDispatcher) Send(_ context.Context, sub domain.Subscriber, event domain.Event) domain.DeliveryResult {
	n := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	for {
		m := d.maxSeen.Load()
		if n <= m || d.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if d.delay > 0 {
		time.Sleep(d.delay)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, dispatch{EventID: event.ID, SubscriberID: sub.ID})

	res := domain.DeliveryResult{EventID: event.ID, SubscriberID: sub.ID, Outcome: d.outcomes[sub.ID]}
	switch res.Outcome {
	case domain.InvalidToken:
		res.TokenCleared = true
		res.Err = domain.ErrTokenInvalid
	case domain.TransientFailure:
		res.Err = errors.New("push API error: status 503")
	}
	if err, ok := d.errs[sub.ID]; ok {
		res.Err = err
	}
	return res
}

func (d *fakeDispatcher) sorted() []dispatch {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := append([]dispatch(nil), d.sent...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventID != out[j].EventID {
			return out[i].EventID < out[j].EventID
		}
		return out[i].SubscriberID < out[j].SubscriberID
	})
	return out
}

type fakePublisher struct {
	batches [][]domain.Event
	err     error
}

func (p *fakePublisher) PublishEvents(_ context.Context, events []domain.Event) error {
	p.batches = append(p.batches, events)
	return p.err
}

type fakeBroadcaster struct {
	msgs []domain.Message
	err  error
}

func (b *fakeBroadcaster) Send(_ context.Context, msg domain.Message) error {
	b.msgs = append(b.msgs, msg)
	return b.err
}

// --- helpers ---

var testNow = time.Date(2024, time.June, 10, 6, 0, 0, 0, time.UTC)

var lucknow = domain.Coordinate{Lat: 26.85, Lon: 80.95}

func quake(id string, mag float64, at domain.Coordinate) domain.Event {
	return domain.Event{
		ID:          id,
		Place:       "near " + id,
		Magnitude:   mag,
		OccurredAt:  testNow.Add(-time.Hour),
		Coordinates: at,
		UpdatedAt:   testNow,
	}
}

func subscriber(id string, at domain.Coordinate) domain.Subscriber {
	loc := at
	return domain.Subscriber{ID: id, Location: &loc, DeliveryToken: "tok-" + id, AlertsEnabled: true}
}

type harness struct {
	feed        *fakeFeed
	store       *fakeStore
	directory   *fakeDirectory
	dispatcher  *fakeDispatcher
	publisher   *fakePublisher
	broadcaster *fakeBroadcaster
	metrics     *observability.Metrics
	clock       *clockwork.FakeClock
	pipeline    *pipeline.Pipeline
}

func newHarness(t *testing.T, opts pipeline.Options) *harness {
	t.Helper()
	h := &harness{
		feed:        &fakeFeed{},
		store:       newFakeStore(),
		directory:   &fakeDirectory{},
		dispatcher:  &fakeDispatcher{},
		publisher:   &fakePublisher{},
		broadcaster: &fakeBroadcaster{},
		metrics:     observability.NewMetricsForTesting(),
		clock:       clockwork.NewFakeClockAt(testNow),
	}
	opts.Clock = h.clock
	opts.Publisher = h.publisher
	opts.Broadcaster = h.broadcaster
	h.pipeline = pipeline.New(h.feed, h.store, h.directory, h.dispatcher,
		slog.New(slog.NewTextHandler(io.Discard, nil)), h.metrics, opts)
	return h
}

// --- Ingest ---

func TestIngest_NearbySubscriberAlerted(t *testing.T) {
	h := newHarness(t, pipeline.Options{})
	h.feed.events = []domain.Event{quake("eq1", 5.2, lucknow)}
	noToken := subscriber("u3", lucknow)
	noToken.DeliveryToken = ""
	noLocation := subscriber("u4", lucknow)
	noLocation.Location = nil
	h.directory.subs = []domain.Subscriber{
		subscriber("u1", domain.Coordinate{Lat: 26.90, Lon: 80.95}), // 5.56 km
		subscriber("u2", domain.Coordinate{Lat: 19.07, Lon: 72.88}), // Mumbai
		noToken,
		noLocation,
	}

	report, err := h.pipeline.Ingest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Fetched)
	assert.Equal(t, 1, report.Persisted)
	assert.Equal(t, 1, report.Significant)
	assert.Equal(t, 1, report.Dispatched)
	assert.Equal(t, 1, report.Delivered)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, pipeline.KindIngest, report.Kind)

	if diff := cmp.Diff([]dispatch{{EventID: "eq1", SubscriberID: "u1"}}, h.dispatcher.sorted()); diff != "" {
		t.Errorf("dispatches mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, h.store.upserts, 1)
	assert.Equal(t, []domain.Event{quake("eq1", 5.2, lucknow)}, h.store.upserts[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Runs.WithLabelValues("ingest", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventsPersisted))
}

func TestIngest_UsesClockForWindow(t *testing.T) {
	h := newHarness(t, pipeline.Options{})

	_, err := h.pipeline.Ingest(context.Background())
	require.NoError(t, err)

	require.Len(t, h.feed.queries, 1)
	assert.Equal(t, testNow, h.feed.queries[0].End)
	assert.Equal(t, testNow.Add(-24*time.Hour), h.feed.queries[0].Start)
	assert.Equal(t, domain.MonitoredRegion, h.feed.queries[0].Region)
}

func TestIngest_Idempotent(t *testing.T) {
	h := newHarness(t, pipeline.Options{})
	h.feed.events = []domain.Event{quake("eq1", 5.2, lucknow)}
	h.directory.subs = []domain.Subscriber{subscriber("u1", lucknow)}

	first, err := h.pipeline.Ingest(context.Background())
	require.NoError(t, err)
	second, err := h.pipeline.Ingest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, first.Persisted)
	assert.Equal(t, 0, second.Persisted)
	assert.Equal(t, 1, second.Duplicates)
	assert.Equal(t, 0, second.Dispatched)
	assert.Len(t, h.store.upserts, 1, "second run must not write")
	assert.Len(t, h.dispatcher.sorted(), 1, "second run must not notify")
}

func TestIngest_DuplicateWithinBatch(t *testing.T) {
	h := newHarness(t, pipeline.Options{})
	h.feed.events = []domain.Event{quake("eq1", 5.2, lucknow), quake("eq2", 4.1, lucknow), quake("eq1", 5.2, lucknow)}

	report, err := h.pipeline.Ingest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Persisted)
	assert.Equal(t, 1, report.Duplicates)
	require.Len(t, h.store.upserts, 1)
	ids := []string{h.store.upserts[0][0].ID, h.store.upserts[0][1].ID}
	assert.Equal(t, []string{"eq1", "eq2"}, ids, "arrival order kept")
}

func TestIngest_NonSignificantPersistedNotDispatched(t *testing.T) {
	h := newHarness(t, pipeline.Options{})
	h.feed.events = []domain.Event{quake("eq1", 3.9, lucknow)}
	h.directory.subs = []domain.Subscriber{subscriber("u1", lucknow)}

	report, err := h.pipeline.Ingest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Persisted)
	assert.Equal(t, 0, report.Significant)
	assert.Zero(t, h.directory.calls)
	assert.Empty(t, h.dispatcher.sorted())
}

func TestIngest_FeedUnavailable(t *testing.T) {
	h := newHarness(t, pipeline.Options{})
	h.feed.err = &domain.FeedUnavailableError{Attempts: 3, Err: errors.New("status 503")}

	_, err := h.pipeline.Ingest(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFeedUnavailable)

	assert.Zero(t, h.store.existsCalls)
	assert.Empty(t, h.store.upserts)
	assert.Empty(t, h.dispatcher.sorted())
	assert.Error(t, h.pipeline.CheckReadiness(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Runs.WithLabelValues("ingest", "failed")))
}

func TestIngest_ExistsFailureAbortsBeforeWrite(t *testing.T) {
	h := newHarness(t, pipeline.Options{})
	h.feed.events = []domain.Event{quake("eq1", 5.2, lucknow)}
	h.store.existsErr = errors.New("database is locked")

	_, err := h.pipeline.Ingest(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "eq1")
	assert.Empty(t, h.store.upserts)
	assert.Empty(t, h.dispatcher.sorted())
}

func TestIngest_PersistFailureAbortsBeforeDispatch(t *testing.T) {
	h := newHarness(t, pipeline.Options{})
	h.feed.events = []domain.Event{quake("eq1", 5.2, lucknow)}
	h.directory.subs = []domain.Subscriber{subscriber("u1", lucknow)}
	h.store.upsertErr = &domain.PersistFailedError{IDs: []string{"eq1"}, Err: errors.New("disk full")}

	_, err := h.pipeline.Ingest(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPersistFailed)
	assert.Empty(t, h.dispatcher.sorted())
	assert.Empty(t, h.publisher.batches)
	assert.Zero(t, h.directory.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PersistErrors))
}

func TestIngest_DispatchIsolation(t *testing.T) {
	h := newHarness(t, pipeline.Options{})
	h.feed.events = []domain.Event{quake("eq1", 5.2, lucknow)}
	h.directory.subs = []domain.Subscriber{
		subscriber("u1", lucknow),
		subscriber("u2", lucknow),
		subscriber("u3", lucknow),
	}
	h.dispatcher.outcomes = map[string]domain.DeliveryOutcome{
		"u2": domain.TransientFailure,
		"u3": domain.InvalidToken,
	}

	report, err := h.pipeline.Ingest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Dispatched)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, report.TransientFailures)
	assert.Equal(t, 1, report.InvalidTokens)
	assert.Equal(t, 1, report.TokensCleared)
	assert.Len(t, h.dispatcher.sorted(), 3)
}

func TestIngest_RejectedCredentialsCountedSeparately(t *testing.T) {
	h := newHarness(t, pipeline.Options{})
	h.feed.events = []domain.Event{quake("eq1", 5.2, lucknow)}
	h.directory.subs = []domain.Subscriber{
		subscriber("u1", lucknow),
		subscriber("u2", lucknow),
	}
	h.dispatcher.outcomes = map[string]domain.DeliveryOutcome{
		"u1": domain.TransientFailure,
		"u2": domain.TransientFailure,
	}
	h.dispatcher.errs = map[string]error{
		"u1": fmt.Errorf("%w: status 401", domain.ErrPushUnauthorized),
	}

	report, err := h.pipeline.Ingest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Dispatched)
	assert.Equal(t, 1, report.AuthFailures)
	assert.Equal(t, 1, report.TransientFailures)
	assert.Contains(t, report.Summary(), "auth_failures=1")
}

func TestIngest_ProximityBoundary(t *testing.T) {
	h := newHarness(t, pipeline.Options{})
	epicentre := domain.Coordinate{Lat: 26.8467, Lon: 80.9462}
	h.feed.events = []domain.Event{quake("eq1", 4.0, epicentre)}
	h.directory.subs = []domain.Subscriber{
		subscriber("inside", domain.Coordinate{Lat: 26.8467 + 0.08990, Lon: 80.9462}),  // 9.996 km
		subscriber("outside", domain.Coordinate{Lat: 26.8467 + 0.09003, Lon: 80.9462}), // 10.011 km
	}

	_, err := h.pipeline.Ingest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []dispatch{{EventID: "eq1", SubscriberID: "inside"}}, h.dispatcher.sorted())
}

func TestIngest_EveryPairDispatchedOnce(t *testing.T) {
	h := newHarness(t, pipeline.Options{})
	h.feed.events = []domain.Event{quake("eq1", 5.0, lucknow), quake("eq2", 4.5, lucknow)}
	h.directory.subs = []domain.Subscriber{subscriber("u1", lucknow), subscriber("u2", lucknow)}

	report, err := h.pipeline.Ingest(context.Background())
	require.NoError(t, err)

	want := []dispatch{
		{EventID: "eq1", SubscriberID: "u1"},
		{EventID: "eq1", SubscriberID: "u2"},
		{EventID: "eq2", SubscriberID: "u1"},
		{EventID: "eq2", SubscriberID: "u2"},
	}
	if diff := cmp.Diff(want, h.dispatcher.sorted()); diff != "" {
		t.Errorf("dispatches mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, h.directory.calls, "subscribers listed once per run")
	assert.Equal(t, 4, report.Delivered)
}

func TestIngest_BoundedConcurrency(t *testing.T) {
	h := newHarness(t, pipeline.Options{Concurrency: 2})
	h.dispatcher.delay = 5 * time.Millisecond
	h.feed.events = []domain.Event{quake("eq1", 5.0, lucknow)}
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		h.directory.subs = append(h.directory.subs, subscriber(id, lucknow))
	}

	report, err := h.pipeline.Ingest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, report.Delivered)
	assert.LessOrEqual(t, h.dispatcher.maxSeen.Load(), int32(2))
}

func TestIngest_SubscriberListFailureDoesNotFailRun(t *testing.T) {
	h := newHarness(t, pipeline.Options{})
	h.feed.events = []domain.Event{quake("eq1", 5.2, lucknow)}
	h.directory.err = errors.New("directory unavailable")

	report, err := h.pipeline.Ingest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Persisted)
	assert.Error(t, report.DispatchErr)
	assert.Contains(t, report.Summary(), "dispatch skipped")
	assert.NoError(t, h.pipeline.CheckReadiness(context.Background()))
}

func TestIngest_PublishesFreshEvents(t *testing.T) {
	h := newHarness(t, pipeline.Options{})
	h.store = newFakeStore(quake("old", 5.0, lucknow))
	h.pipeline = pipeline.New(h.feed, h.store, h.directory, h.dispatcher,
		slog.New(slog.NewTextHandler(io.Discard, nil)), h.metrics,
		pipeline.Options{Clock: h.clock, Publisher: h.publisher})
	h.feed.events = []domain.Event{quake("old", 5.0, lucknow), quake("new", 3.1, lucknow)}

	_, err := h.pipeline.Ingest(context.Background())
	require.NoError(t, err)

	require.Len(t, h.publisher.batches, 1)
	require.Len(t, h.publisher.batches[0], 1)
	assert.Equal(t, "new", h.publisher.batches[0][0].ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventsPublished.WithLabelValues("success")))
}

func TestIngest_PublishFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, pipeline.Options{})
	h.publisher.err = errors.New("broker down")
	h.feed.events = []domain.Event{quake("eq1", 5.2, lucknow)}

	report, err := h.pipeline.Ingest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Persisted)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventsPublished.WithLabelValues("error")))
}

func TestIngest_ConcurrentRunRejected(t *testing.T) {
	h := newHarness(t, pipeline.Options{})
	h.feed.block = make(chan struct{})
	h.feed.entered = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.pipeline.Ingest(context.Background())
		done <- err
	}()
	<-h.feed.entered

	_, err := h.pipeline.Ingest(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrIngestInProgress)

	close(h.feed.block)
	require.NoError(t, <-done)
}

func TestCheckReadiness_AfterSuccessfulIngest(t *testing.T) {
	h := newHarness(t, pipeline.Options{})
	require.Error(t, h.pipeline.CheckReadiness(context.Background()))

	_, err := h.pipeline.Ingest(context.Background())
	require.NoError(t, err)

	require.NoError(t, h.pipeline.CheckReadiness(context.Background()))
	assert.Equal(t, float64(testNow.Unix()), testutil.ToFloat64(h.metrics.LastSuccessfulIngest))
}

// --- Renotify ---

func TestRenotify_ResendsStoredEvents(t *testing.T) {
	h := newHarness(t, pipeline.Options{})
	h.store = newFakeStore(quake("eq1", 5.2, lucknow), quake("small", 3.0, lucknow))
	h.pipeline = pipeline.New(h.feed, h.store, h.directory, h.dispatcher,
		slog.New(slog.NewTextHandler(io.Discard, nil)), h.metrics, pipeline.Options{Clock: h.clock})
	h.directory.subs = []domain.Subscriber{subscriber("u1", lucknow)}

	first, err := h.pipeline.Renotify(context.Background())
	require.NoError(t, err)
	second, err := h.pipeline.Renotify(context.Background())
	require.NoError(t, err)

	assert.Equal(t, pipeline.KindRenotify, first.Kind)
	assert.Equal(t, 1, first.Significant)
	assert.Equal(t, 1, first.Delivered)
	assert.Equal(t, 1, second.Delivered, "re-notify repeats alerts")
	assert.Empty(t, h.feed.queries, "re-notify never fetches")
	assert.Empty(t, h.store.upserts, "re-notify never writes")
	assert.Equal(t, []time.Time{{}, {}}, h.store.listSince)
}

func TestRenotify_Lookback(t *testing.T) {
	h := newHarness(t, pipeline.Options{RenotifyLookback: 48 * time.Hour})

	_, err := h.pipeline.Renotify(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []time.Time{testNow.Add(-48 * time.Hour)}, h.store.listSince)
}

func TestRenotify_Failures(t *testing.T) {
	t.Run("store", func(t *testing.T) {
		h := newHarness(t, pipeline.Options{})
		h.store.listErr = errors.New("no such table")

		_, err := h.pipeline.Renotify(context.Background())
		require.Error(t, err)
		assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Runs.WithLabelValues("renotify", "failed")))
	})

	t.Run("subscribers", func(t *testing.T) {
		h := newHarness(t, pipeline.Options{})
		h.store.stored["eq1"] = quake("eq1", 5.2, lucknow)
		h.directory.err = errors.New("directory unavailable")

		_, err := h.pipeline.Renotify(context.Background())
		require.Error(t, err)
		assert.Empty(t, h.dispatcher.sorted())
	})
}

// --- Seed ---

func TestSeed_StoresAndBroadcasts(t *testing.T) {
	h := newHarness(t, pipeline.Options{BroadcastTopic: "earthquake-alerts"})
	event := pipeline.SeedEvent(h.clock.Now())

	require.NoError(t, h.pipeline.Seed(context.Background(), event))

	assert.Equal(t, "us7000pz55", event.ID)
	assert.Equal(t, "65km N of Lucknow, India", event.Place)
	assert.Equal(t, 6.0, event.Magnitude)
	assert.Equal(t, domain.Coordinate{Lat: 26.8467, Lon: 80.9462}, event.Coordinates)
	assert.Equal(t, testNow, event.OccurredAt)

	require.Len(t, h.store.upserts, 1)
	assert.Equal(t, []domain.Event{event}, h.store.upserts[0])
	require.Len(t, h.broadcaster.msgs, 1)
	assert.Equal(t, domain.NewBroadcastMessage("earthquake-alerts", event), h.broadcaster.msgs[0])
	assert.Len(t, h.publisher.batches, 1)
}

func TestSeed_RejectsNonSignificant(t *testing.T) {
	h := newHarness(t, pipeline.Options{BroadcastTopic: "earthquake-alerts"})
	event := pipeline.SeedEvent(testNow)
	event.Magnitude = 3.5

	err := h.pipeline.Seed(context.Background(), event)
	require.ErrorIs(t, err, pipeline.ErrNotSignificant)
	assert.Empty(t, h.store.upserts)
	assert.Empty(t, h.broadcaster.msgs)
}

func TestSeed_RefusesStoredID(t *testing.T) {
	h := newHarness(t, pipeline.Options{BroadcastTopic: "earthquake-alerts"})
	stored := pipeline.SeedEvent(testNow)
	h.store.stored[stored.ID] = stored

	again := pipeline.SeedEvent(testNow)
	again.Magnitude = 7.5
	err := h.pipeline.Seed(context.Background(), again)

	require.ErrorIs(t, err, pipeline.ErrAlreadyStored)
	assert.Empty(t, h.store.upserts)
	assert.Empty(t, h.broadcaster.msgs)
	assert.Empty(t, h.publisher.batches)
	assert.Equal(t, 6.0, h.store.stored["us7000pz55"].Magnitude)
}

func TestSeed_ExistsFailure(t *testing.T) {
	h := newHarness(t, pipeline.Options{BroadcastTopic: "earthquake-alerts"})
	h.store.existsErr = errors.New("database is locked")

	err := h.pipeline.Seed(context.Background(), pipeline.SeedEvent(testNow))
	require.Error(t, err)
	assert.NotErrorIs(t, err, pipeline.ErrAlreadyStored)
	assert.Empty(t, h.store.upserts)
	assert.Empty(t, h.broadcaster.msgs)
}

func TestSeed_BroadcastFailureIsLoggedOnly(t *testing.T) {
	h := newHarness(t, pipeline.Options{BroadcastTopic: "earthquake-alerts"})
	h.broadcaster.err = errors.New("push API error: status 500")

	require.NoError(t, h.pipeline.Seed(context.Background(), pipeline.SeedEvent(testNow)))
	assert.Len(t, h.store.upserts, 1)
}

func TestSeed_PersistFailure(t *testing.T) {
	h := newHarness(t, pipeline.Options{BroadcastTopic: "earthquake-alerts"})
	h.store.upsertErr = &domain.PersistFailedError{IDs: []string{"us7000pz55"}, Err: errors.New("read-only")}

	err := h.pipeline.Seed(context.Background(), pipeline.SeedEvent(testNow))
	require.ErrorIs(t, err, domain.ErrPersistFailed)
	assert.Empty(t, h.broadcaster.msgs)
}
