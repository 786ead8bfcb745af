package usgs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/couchcryptid/quake-alert-service/internal/domain"
	"github.com/couchcryptid/quake-alert-service/internal/observability"
)

// maxFeedBytes caps a feed response. A full day over the region is well
// under a megabyte.
const maxFeedBytes = 32 << 20

// Options tunes the retry policy and per-attempt timeout.
type Options struct {
	Timeout      time.Duration // per attempt
	MaxAttempts  int           // total attempts, including the first
	RetryBackoff time.Duration // initial delay between attempts; 0 retries immediately
}

// Client implements the feed client against the USGS FDSN event service.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	maxAttempts  int
	retryBackoff time.Duration
	maxBodyBytes int64
	metrics      *observability.Metrics
	logger       *slog.Logger
}

// NewClient creates a USGS feed client.
func NewClient(baseURL string, opts Options, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		baseURL:      baseURL,
		maxAttempts:  opts.MaxAttempts,
		retryBackoff: opts.RetryBackoff,
		maxBodyBytes: maxFeedBytes,
		metrics:      metrics,
		logger:       logger,
	}
}

// Fetch queries the feed and returns the valid events in arrival order.
// Invalid features are logged and dropped. When every attempt fails, the
// returned error is a *domain.FeedUnavailableError.
func (c *Client) Fetch(ctx context.Context, q domain.FeedQuery) ([]domain.Event, error) {
	start := time.Now()
	defer func() { c.metrics.FeedDuration.Observe(time.Since(start).Seconds()) }()

	fullURL := c.baseURL + "?" + queryParams(q).Encode()

	attempts := 0
	var fc domain.FeatureCollection
	operation := func() error {
		attempts++
		c.metrics.FeedAttempts.Inc()
		var err error
		fc, err = c.doRequest(ctx, fullURL)
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("feed attempt failed, retrying",
			"attempt", attempts,
			"max_attempts", c.maxAttempts,
			"wait", wait,
			"error", err,
		)
	}

	if err := backoff.RetryNotify(operation, c.retryPolicy(ctx), notify); err != nil {
		c.metrics.FeedRequests.WithLabelValues("error").Inc()
		c.logger.Error("feed unavailable", "attempts", attempts, "error", err)
		return nil, &domain.FeedUnavailableError{Attempts: attempts, Err: err}
	}
	c.metrics.FeedRequests.WithLabelValues("success").Inc()

	events, invalid := domain.ParseFeatureCollection(fc)
	for _, err := range invalid {
		c.logger.Warn("dropping invalid feed candidate", "error", err)
		c.metrics.CandidatesDropped.Inc()
	}

	c.logger.Info("feed fetched",
		"features", len(fc.Features),
		"valid", len(events),
		"dropped", len(invalid),
		"attempts", attempts,
	)
	return events, nil
}

func (c *Client) retryPolicy(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if c.retryBackoff > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = c.retryBackoff
		exp.MaxInterval = 10 * c.retryBackoff
		exp.MaxElapsedTime = 0
		b = exp
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxAttempts-1)), ctx)
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (domain.FeatureCollection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.FeatureCollection{}, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.FeatureCollection{}, fmt.Errorf("feed request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return domain.FeatureCollection{}, fmt.Errorf("read feed response: %w", err)
	}
	if int64(len(body)) > c.maxBodyBytes {
		return domain.FeatureCollection{}, fmt.Errorf("feed response exceeds %d bytes", c.maxBodyBytes)
	}

	if resp.StatusCode/100 != 2 {
		if len(body) > 256 {
			body = body[:256]
		}
		return domain.FeatureCollection{}, fmt.Errorf("usgs API error: status %d: %s", resp.StatusCode, body)
	}

	return domain.DecodeFeatureCollection(body)
}

// queryParams renders the FDSN query for q.
func queryParams(q domain.FeedQuery) url.Values {
	return url.Values{
		"format":       {"geojson"},
		"starttime":    {q.Start.UTC().Format(time.RFC3339)},
		"endtime":      {q.End.UTC().Format(time.RFC3339)},
		"minlatitude":  {formatDegrees(q.Region.MinLat)},
		"maxlatitude":  {formatDegrees(q.Region.MaxLat)},
		"minlongitude": {formatDegrees(q.Region.MinLon)},
		"maxlongitude": {formatDegrees(q.Region.MaxLon)},
		"minmagnitude": {strconv.FormatFloat(q.MinMagnitude, 'f', -1, 64)},
	}
}

// formatDegrees keeps at least one decimal place, e.g. 6 -> "6.0".
func formatDegrees(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if strings.Contains(s, ".") {
		return s
	}
	return s + ".0"
}
