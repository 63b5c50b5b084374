package hitdex

import "github.com/kailas-cloud/hitdex/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound        = domain.ErrNotFound
	ErrMalformedHit    = domain.ErrMalformedHit
	ErrSessionNotFound = domain.ErrSessionNotFound
	ErrSessionStopped  = domain.ErrSessionStopped
	ErrSessionClosed   = domain.ErrSessionClosed
	ErrInvalidSlot     = domain.ErrInvalidSlot
	ErrInvalidFilter   = domain.ErrInvalidFilter
	ErrInvalidSort     = domain.ErrInvalidSort
	ErrRateLimited     = domain.ErrRateLimited
	ErrArchiveDisabled = domain.ErrArchiveDisabled
	ErrEventsTruncated = domain.ErrEventsTruncated
)
