package domain

import (
	"time"
)

// EventType is the record type stored for every ingested event.
const EventType = "earthquake"

// SignificantMagnitude is the minimum magnitude that triggers alerts.
const SignificantMagnitude = 4.0

// Coordinate is a WGS-84 latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Event is a seismic report as stored and alerted on.
type Event struct {
	ID          string     `json:"id"`
	Place       string     `json:"place"`
	Magnitude   float64    `json:"magnitude"`
	OccurredAt  time.Time  `json:"occurred_at"`
	Coordinates Coordinate `json:"coordinates"`
	DepthKm     float64    `json:"depth_km,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// OccurredAtMillis returns the occurrence time as epoch milliseconds.
func (e Event) OccurredAtMillis() int64 {
	return e.OccurredAt.UnixMilli()
}

// Significant reports whether the event is strong enough to alert on.
func (e Event) Significant() bool {
	return e.Magnitude >= SignificantMagnitude
}

// Subscriber is a registered alert recipient.
type Subscriber struct {
	ID            string      `json:"id"`
	Location      *Coordinate `json:"location,omitempty"`
	DeliveryToken string      `json:"token,omitempty"` // empty means undeliverable
	AlertsEnabled bool        `json:"alerts_enabled"`
}

// Deliverable reports whether the subscriber has both a location and a token.
func (s Subscriber) Deliverable() bool {
	return s.Location != nil && s.DeliveryToken != ""
}
