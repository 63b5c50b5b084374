package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrMalformedHit signals a hit with inconsistent attributes (empty name, non-positive size).
	ErrMalformedHit = errors.New("malformed hit")
	// ErrSessionNotFound signals an unknown search session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionStopped signals an operation on a stopped or removed session.
	ErrSessionStopped = errors.New("session stopped")
	// ErrSessionClosed signals that the session model context is no longer running.
	ErrSessionClosed = errors.New("session closed")
	// ErrInvalidSlot signals a filter slot outside the pipeline depth.
	ErrInvalidSlot = errors.New("invalid filter slot")
	// ErrInvalidFilter signals an invalid filter expression.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrInvalidSort signals an unknown sort key.
	ErrInvalidSort = errors.New("invalid sort")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrIndexInconsistency signals divergence between the sorted sequence and its side index.
	ErrIndexInconsistency = errors.New("index inconsistency")
	// ErrArchiveDisabled signals that no archive store is configured.
	ErrArchiveDisabled = errors.New("archive disabled")
	// ErrEventsTruncated signals that a reader fell behind the retained event log.
	ErrEventsTruncated = errors.New("events truncated")
)

// InconsistencyError reports the first position where the side index and the sequence disagree.
type InconsistencyError struct {
	Identity string
	Position int
	Indexed  int
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("%s: identity %q at position %d indexed as %d",
		ErrIndexInconsistency.Error(), e.Identity, e.Position, e.Indexed)
}

func (e *InconsistencyError) Unwrap() error { return ErrIndexInconsistency }
