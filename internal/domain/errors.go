package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrFeedUnavailable means the feed could not be fetched within the retry budget.
	ErrFeedUnavailable = errors.New("feed unavailable")

	// ErrInvalidCandidate marks a feed feature that lacks a required field.
	ErrInvalidCandidate = errors.New("invalid candidate")

	// ErrPersistFailed means a batch of events could not be written.
	ErrPersistFailed = errors.New("persist failed")

	// ErrTokenInvalid is returned by push senders when a delivery token is permanently unusable.
	ErrTokenInvalid = errors.New("delivery token invalid")

	// ErrPushUnauthorized is returned by push senders when the service rejects
	// the sender's own credentials. Every send fails until they are fixed.
	ErrPushUnauthorized = errors.New("push credentials rejected")
)

// FeedUnavailableError carries the last underlying error after retries are exhausted.
type FeedUnavailableError struct {
	Attempts int
	Err      error
}

func (e *FeedUnavailableError) Error() string {
	return fmt.Sprintf("feed unavailable after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *FeedUnavailableError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrFeedUnavailable.
func (e *FeedUnavailableError) Is(target error) bool { return target == ErrFeedUnavailable }

// PersistFailedError names the batch that failed to write.
type PersistFailedError struct {
	IDs []string
	Err error
}

func (e *PersistFailedError) Error() string {
	return fmt.Sprintf("persist batch of %d event(s) %v: %v", len(e.IDs), e.IDs, e.Err)
}

func (e *PersistFailedError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrPersistFailed.
func (e *PersistFailedError) Is(target error) bool { return target == ErrPersistFailed }
