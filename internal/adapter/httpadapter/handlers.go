package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/couchcryptid/quake-alert-service/internal/domain"
	"github.com/couchcryptid/quake-alert-service/internal/pipeline"
)

const maxBodyBytes = 64 << 10

type registerRequest struct {
	UID           string `json:"uid"`
	AlertsEnabled *bool  `json:"alertsEnabled"`
	Token         string `json:"token"`
	Location      *struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	} `json:"location"`
}

// toSubscriber validates the request. The bool reports whether every
// required field is present and in range.
func (r registerRequest) toSubscriber() (domain.Subscriber, bool) {
	if r.UID == "" || r.AlertsEnabled == nil || r.Token == "" || r.Location == nil ||
		r.Location.Latitude == nil || r.Location.Longitude == nil {
		return domain.Subscriber{}, false
	}
	lat, lon := *r.Location.Latitude, *r.Location.Longitude
	if !validCoordinate(lat, lon) {
		return domain.Subscriber{}, false
	}
	return domain.Subscriber{
		ID:            r.UID,
		Location:      &domain.Coordinate{Lat: lat, Lon: lon},
		DeliveryToken: r.Token,
		AlertsEnabled: *r.AlertsEnabled,
	}, true
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sub, ok := req.toSubscriber()
	if !ok {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	if err := s.registrar.UpsertSubscriber(r.Context(), sub); err != nil {
		s.logger.Error("register subscriber failed", "subscriber_id", sub.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.logger.Info("subscriber registered", "subscriber_id", sub.ID, "alerts_enabled", sub.AlertsEnabled)
	writeJSON(w, http.StatusCreated, map[string]string{"status": "subscriber registered"})
}

func (s *Server) handleRenotify(w http.ResponseWriter, r *http.Request) {
	report, err := s.admin.Renotify(r.Context())
	if err != nil {
		s.logger.Error("renotify failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": report.Summary()})
}

type seedRequest struct {
	ID        string   `json:"id"`
	Place     string   `json:"place"`
	Magnitude *float64 `json:"magnitude"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// apply overrides fields of the default seed event with any that were given.
// The bool reports whether the resulting coordinates are in range.
func (r seedRequest) apply(e domain.Event) (domain.Event, bool) {
	if r.ID != "" {
		e.ID = r.ID
	}
	if r.Place != "" {
		e.Place = r.Place
	}
	if r.Magnitude != nil {
		e.Magnitude = *r.Magnitude
	}
	if r.Latitude != nil {
		e.Coordinates.Lat = *r.Latitude
	}
	if r.Longitude != nil {
		e.Coordinates.Lon = *r.Longitude
	}
	return e, validCoordinate(e.Coordinates.Lat, e.Coordinates.Lon)
}

func validCoordinate(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	var req seedRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	event, ok := req.apply(pipeline.SeedEvent(s.now()))
	if !ok {
		writeError(w, http.StatusBadRequest, "coordinates out of range")
		return
	}

	err := s.admin.Seed(r.Context(), event)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "event " + event.ID + " seeded"})
	case errors.Is(err, pipeline.ErrNotSignificant):
		writeError(w, http.StatusBadRequest, "event is not significant")
	case errors.Is(err, pipeline.ErrAlreadyStored):
		writeError(w, http.StatusConflict, "event already stored")
	case errors.Is(err, pipeline.ErrIngestInProgress):
		writeError(w, http.StatusConflict, "ingest in progress")
	default:
		s.logger.Error("seed failed", "event_id", event.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
