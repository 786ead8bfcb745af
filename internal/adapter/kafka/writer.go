package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/quake-alert-service/internal/domain"
)

// Writer publishes newly persisted events to a Kafka topic.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the events topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishEvents writes events in a single WriteMessages call, keyed by event
// id so updates to one event land on one partition.
func (w *Writer) PublishEvents(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := serializeToMessage(events[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d event(s): %w", len(msgs), err)
	}
	w.logger.Debug("events published", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// eventMessage is the wire shape of a published event.
type eventMessage struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Place      string    `json:"place"`
	Magnitude  float64   `json:"magnitude"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	DepthKm    float64   `json:"depth_km"`
	OccurredAt time.Time `json:"occurred_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// serializeToMessage marshals an Event into a Kafka message.
func serializeToMessage(event domain.Event) (kafkago.Message, error) {
	data, err := json.Marshal(eventMessage{
		ID:         event.ID,
		Type:       domain.EventType,
		Place:      event.Place,
		Magnitude:  event.Magnitude,
		Latitude:   event.Coordinates.Lat,
		Longitude:  event.Coordinates.Lon,
		DepthKm:    event.DepthKm,
		OccurredAt: event.OccurredAt.UTC(),
		UpdatedAt:  event.UpdatedAt.UTC(),
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize event %s: %w", event.ID, err)
	}
	return kafkago.Message{
		Key:   []byte(event.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(domain.EventType)},
			{Key: "occurred_at", Value: []byte(event.OccurredAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
