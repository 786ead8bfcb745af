package domain

import (
	"fmt"
	"strconv"
)

const (
	// AlertTitle is the fixed title of every earthquake notification.
	AlertTitle = "Earthquake Alert!"

	// DefaultSound is used for direct alerts; BroadcastSound for topic broadcasts.
	DefaultSound   = "default"
	BroadcastSound = "warning_sound"
)

// Notification is the user-visible part of a push message.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Sound string `json:"sound,omitempty"`
}

// Message is a push message addressed to exactly one of Token or Topic.
type Message struct {
	Notification Notification `json:"notification"`
	Token        string       `json:"token,omitempty"`
	Topic        string       `json:"topic,omitempty"`
}

// NewAlertMessage builds the direct alert sent to one subscriber.
func NewAlertMessage(token string, e Event) Message {
	return Message{
		Notification: Notification{
			Title: AlertTitle,
			Body:  fmt.Sprintf("An earthquake of magnitude %s occurred at %s.", FormatMagnitude(e.Magnitude), e.Place),
			Sound: DefaultSound,
		},
		Token: token,
	}
}

// NewBroadcastMessage builds the topic alert sent when an event is seeded.
func NewBroadcastMessage(topic string, e Event) Message {
	return Message{
		Notification: Notification{
			Title: AlertTitle,
			Body:  fmt.Sprintf("A magnitude %s earthquake occurred at %s.", FormatMagnitude(e.Magnitude), e.Place),
			Sound: BroadcastSound,
		},
		Topic: topic,
	}
}

// FormatMagnitude renders a magnitude with the shortest exact representation, e.g. 5.2 or 6.
func FormatMagnitude(m float64) string {
	return strconv.FormatFloat(m, 'f', -1, 64)
}

// DeliveryOutcome classifies the result of one dispatch.
type DeliveryOutcome int

const (
	Delivered DeliveryOutcome = iota
	InvalidToken
	TransientFailure
	Skipped // subscriber has no delivery token; nothing was sent
)

func (o DeliveryOutcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case InvalidToken:
		return "invalid_token"
	case TransientFailure:
		return "transient_failure"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// DeliveryResult reports what happened to one (event, subscriber) dispatch.
type DeliveryResult struct {
	EventID      string
	SubscriberID string
	Outcome      DeliveryOutcome
	TokenCleared bool
	Err          error
}
