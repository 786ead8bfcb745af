package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FeedWindow is the lookback covered by each ingest query.
const FeedWindow = 24 * time.Hour

// Region is a latitude/longitude bounding box in degrees.
type Region struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// MonitoredRegion covers the Indian subcontinent.
var MonitoredRegion = Region{MinLat: 6.0, MaxLat: 37.6, MinLon: 68.0, MaxLon: 97.4}

// FeedQuery selects events in [Start, End) inside Region with magnitude >= MinMagnitude.
type FeedQuery struct {
	Start        time.Time
	End          time.Time
	Region       Region
	MinMagnitude float64
}

// NewFeedQuery builds the standard ingest query ending at now.
func NewFeedQuery(now time.Time) FeedQuery {
	end := now.UTC()
	return FeedQuery{
		Start:        end.Add(-FeedWindow),
		End:          end,
		Region:       MonitoredRegion,
		MinMagnitude: SignificantMagnitude,
	}
}

// FeatureCollection is the GeoJSON document returned by the feed.
type FeatureCollection struct {
	Features []Feature `json:"features"`
}

// Feature is one GeoJSON feature. Pointer fields distinguish absent from zero.
type Feature struct {
	ID         string             `json:"id"`
	Properties *FeatureProperties `json:"properties"`
	Geometry   *FeatureGeometry   `json:"geometry"`
}

// FeatureProperties holds the event attributes used by the service.
type FeatureProperties struct {
	Place *string  `json:"place"`
	Mag   *float64 `json:"mag"`
	Time  int64    `json:"time"` // epoch millis
}

// FeatureGeometry holds [longitude, latitude, depth].
type FeatureGeometry struct {
	Coordinates []float64 `json:"coordinates"`
}

// DecodeFeatureCollection unmarshals a feed payload.
func DecodeFeatureCollection(data []byte) (FeatureCollection, error) {
	var fc FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return FeatureCollection{}, fmt.Errorf("decode feature collection: %w", err)
	}
	return fc, nil
}

// ParseFeature validates a feature and converts it to an Event.
// Missing fields yield an error wrapping ErrInvalidCandidate.
func ParseFeature(f Feature) (Event, error) {
	id := strings.TrimSpace(f.ID)
	switch {
	case id == "":
		return Event{}, fmt.Errorf("%w: missing id", ErrInvalidCandidate)
	case f.Properties == nil:
		return Event{}, fmt.Errorf("%w: %s: missing properties", ErrInvalidCandidate, id)
	case f.Properties.Place == nil || strings.TrimSpace(*f.Properties.Place) == "":
		return Event{}, fmt.Errorf("%w: %s: missing place", ErrInvalidCandidate, id)
	case f.Properties.Mag == nil:
		return Event{}, fmt.Errorf("%w: %s: missing magnitude", ErrInvalidCandidate, id)
	case f.Geometry == nil || len(f.Geometry.Coordinates) < 2:
		return Event{}, fmt.Errorf("%w: %s: missing coordinates", ErrInvalidCandidate, id)
	}

	event := Event{
		ID:         id,
		Place:      strings.TrimSpace(*f.Properties.Place),
		Magnitude:  *f.Properties.Mag,
		OccurredAt: time.UnixMilli(f.Properties.Time).UTC(),
		Coordinates: Coordinate{
			Lat: f.Geometry.Coordinates[1],
			Lon: f.Geometry.Coordinates[0],
		},
		UpdatedAt: clock.Now().UTC(),
	}
	if len(f.Geometry.Coordinates) > 2 {
		event.DepthKm = f.Geometry.Coordinates[2]
	}
	return event, nil
}

// ParseFeatureCollection converts every valid feature in arrival order and
// returns the per-feature errors for the rest.
func ParseFeatureCollection(fc FeatureCollection) ([]Event, []error) {
	events := make([]Event, 0, len(fc.Features))
	var invalid []error
	for _, f := range fc.Features {
		event, err := ParseFeature(f)
		if err != nil {
			invalid = append(invalid, err)
			continue
		}
		events = append(events, event)
	}
	return events, invalid
}
