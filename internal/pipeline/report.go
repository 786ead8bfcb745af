package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/quake-alert-service/internal/domain"
)

// Run kinds, used as the kind label on run metrics.
const (
	KindIngest   = "ingest"
	KindRenotify = "renotify"
)

// Report summarizes one run.
type Report struct {
	RunID string `json:"run_id"`
	Kind  string `json:"kind"`

	Fetched     int `json:"fetched"`
	Duplicates  int `json:"duplicates"`
	Persisted   int `json:"persisted"`
	Significant int `json:"significant"`

	Dispatched        int `json:"dispatched"`
	Delivered         int `json:"delivered"`
	InvalidTokens     int `json:"invalid_tokens"`
	TransientFailures int `json:"transient_failures"`
	AuthFailures      int `json:"auth_failures"`
	TokensCleared     int `json:"tokens_cleared"`

	// DispatchErr is set when an ingest run skipped dispatch because the
	// subscriber directory could not be read.
	DispatchErr error `json:"-"`

	Duration time.Duration `json:"duration_ns"`
}

func (r *Report) record(res domain.DeliveryResult) {
	if res.Outcome == domain.Skipped {
		return
	}
	r.Dispatched++
	switch res.Outcome {
	case domain.Delivered:
		r.Delivered++
	case domain.InvalidToken:
		r.InvalidTokens++
	case domain.TransientFailure:
		if errors.Is(res.Err, domain.ErrPushUnauthorized) {
			r.AuthFailures++
		} else {
			r.TransientFailures++
		}
	}
	if res.TokenCleared {
		r.TokensCleared++
	}
}

// Summary renders the report as one line.
func (r Report) Summary() string {
	s := fmt.Sprintf("%s complete: fetched=%d duplicates=%d persisted=%d significant=%d dispatched=%d delivered=%d invalid_tokens=%d transient_failures=%d auth_failures=%d",
		r.Kind, r.Fetched, r.Duplicates, r.Persisted, r.Significant,
		r.Dispatched, r.Delivered, r.InvalidTokens, r.TransientFailures, r.AuthFailures)
	if r.DispatchErr != nil {
		s += " (dispatch skipped)"
	}
	return s
}
