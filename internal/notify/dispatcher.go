// Package notify turns a matched (subscriber, event) pair into one push
// delivery and classifies the outcome.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/quake-alert-service/internal/domain"
	"github.com/couchcryptid/quake-alert-service/internal/observability"
)

// Sender delivers a push message. Errors wrapping domain.ErrTokenInvalid are
// permanent for the message token; errors wrapping domain.ErrPushUnauthorized
// mean the sender itself is misconfigured; all other errors are transient.
type Sender interface {
	Send(ctx context.Context, msg domain.Message) error
}

// TokenClearer removes a subscriber's delivery token.
type TokenClearer interface {
	ClearToken(ctx context.Context, subscriberID string) error
}

// Dispatcher sends direct alerts and clears tokens the push service rejects.
type Dispatcher struct {
	sender  Sender
	clearer TokenClearer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(sender Sender, clearer TokenClearer, logger *slog.Logger, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{
		sender:  sender,
		clearer: clearer,
		logger:  logger,
		metrics: metrics,
	}
}

// Send delivers one alert for event to sub. It never returns an error; the
// failure, if any, is carried in the result.
func (d *Dispatcher) Send(ctx context.Context, sub domain.Subscriber, event domain.Event) domain.DeliveryResult {
	result := domain.DeliveryResult{EventID: event.ID, SubscriberID: sub.ID}
	logger := d.logger.With("event_id", event.ID, "subscriber_id", sub.ID)

	if sub.DeliveryToken == "" {
		result.Outcome = domain.Skipped
		logger.Debug("subscriber has no delivery token, skipping")
		return result
	}

	err := d.sender.Send(ctx, domain.NewAlertMessage(sub.DeliveryToken, event))
	switch {
	case err == nil:
		result.Outcome = domain.Delivered
		logger.Debug("alert delivered")

	case errors.Is(err, domain.ErrTokenInvalid):
		result.Outcome = domain.InvalidToken
		result.Err = err
		if clearErr := d.clearer.ClearToken(ctx, sub.ID); clearErr != nil {
			logger.Error("failed to clear invalid token", "error", clearErr)
			result.Err = errors.Join(err, fmt.Errorf("clear token: %w", clearErr))
		} else {
			result.TokenCleared = true
			d.metrics.TokensCleared.Inc()
			logger.Warn("delivery token invalid, cleared", "error", err)
		}

	case errors.Is(err, domain.ErrPushUnauthorized):
		result.Outcome = domain.TransientFailure
		result.Err = err
		logger.Error("push credentials rejected, alert not delivered", "error", err)

	default:
		result.Outcome = domain.TransientFailure
		result.Err = err
		logger.Warn("alert delivery failed", "error", err)
	}

	d.record(result)
	return result
}

func (d *Dispatcher) record(r domain.DeliveryResult) {
	d.metrics.Notifications.WithLabelValues(outcomeLabel(r)).Inc()
}

// outcomeLabel reports credential failures apart from other transient failures.
func outcomeLabel(r domain.DeliveryResult) string {
	if r.Outcome == domain.TransientFailure && errors.Is(r.Err, domain.ErrPushUnauthorized) {
		return "auth_failure"
	}
	return r.Outcome.String()
}
