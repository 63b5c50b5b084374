package chi

import (
	"time"

	"github.com/kailas-cloud/hitdex/internal/domain/event"
	"github.com/kailas-cloud/hitdex/internal/domain/filter"
	"github.com/kailas-cloud/hitdex/internal/domain/hit"
	"github.com/kailas-cloud/hitdex/internal/domain/result"
)

// ErrorCode is a stable machine-readable error code.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeUnauthorized     ErrorCode = "unauthorized"
	CodeValidationFailed ErrorCode = "validation_failed"
	CodeNotFound         ErrorCode = "not_found"
	CodeSessionNotFound  ErrorCode = "session_not_found"
	CodeSessionStopped   ErrorCode = "session_stopped"
	CodeRateLimited      ErrorCode = "rate_limited"
	CodeResyncRequired   ErrorCode = "resync_required"
	CodeArchiveDisabled  ErrorCode = "archive_disabled"
	CodeMethodNotAllowed ErrorCode = "method_not_allowed"
	CodeUnavailable      ErrorCode = "unavailable"
	CodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// StartSessionRequest is the body of POST /sessions.
type StartSessionRequest struct {
	Query string `json:"query"`
}

// SessionResponse describes a live session.
type SessionResponse struct {
	ID        string    `json:"id"`
	Query     string    `json:"query,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Stopped   bool      `json:"stopped"`
}

// HitPayload is one raw hit as reported by the network layer.
type HitPayload struct {
	Identity     string            `json:"identity,omitempty"`
	Name         string            `json:"name"`
	Extension    string            `json:"extension,omitempty"`
	Size         int64             `json:"size"`
	Host         string            `json:"host"`
	Port         int               `json:"port"`
	Firewalled   bool              `json:"firewalled,omitempty"`
	RelayCapable bool              `json:"relay_capable,omitempty"`
	Quality      int               `json:"quality,omitempty"`
	Speed        int               `json:"speed,omitempty"`
	AddedAt      time.Time         `json:"added_at,omitzero"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// IngestRequest is the body of POST /sessions/{id}/hits.
type IngestRequest struct {
	Hits []HitPayload `json:"hits"`
}

// RowsResponse is a page of visible rows.
type RowsResponse struct {
	Rows   []result.Row `json:"rows"`
	Total  int          `json:"total"`
	Offset int          `json:"offset"`
	Limit  int          `json:"limit"`
}

// PositionResponse resolves a group to its current row.
type PositionResponse struct {
	Position int `json:"position"`
}

// SortRequest is the body of PUT /sessions/{id}/sort.
type SortRequest struct {
	Key       string `json:"key"`
	Ascending bool   `json:"ascending"`
}

// RangePayload bounds a numeric condition.
type RangePayload struct {
	GT  *float64 `json:"gt,omitempty"`
	GTE *float64 `json:"gte,omitempty"`
	LT  *float64 `json:"lt,omitempty"`
	LTE *float64 `json:"lte,omitempty"`
}

// ConditionPayload is a tag match (Match) or a numeric range (Range).
type ConditionPayload struct {
	Key   string        `json:"key"`
	Match string        `json:"match,omitempty"`
	Range *RangePayload `json:"range,omitempty"`
}

// FilterRequest is the body of PUT /sessions/{id}/filters/{slot}.
type FilterRequest struct {
	Must    []ConditionPayload `json:"must,omitempty"`
	Should  []ConditionPayload `json:"should,omitempty"`
	MustNot []ConditionPayload `json:"must_not,omitempty"`
}

// FilterResponse reports the installed filter.
type FilterResponse struct {
	Slot    int    `json:"slot"`
	Filter  string `json:"filter"`
	Changed bool   `json:"changed"`
}

// EventsResponse is a page of notifications after a cursor.
type EventsResponse struct {
	Events []event.Event `json:"events"`
	Last   uint64        `json:"last"`
}

// RemoveResponse reports a removed session.
type RemoveResponse struct {
	ID       string `json:"id"`
	Archived bool   `json:"archived"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks"`
	Sessions int               `json:"sessions"`
}

func (p HitPayload) params() hit.Params {
	return hit.Params{
		Identity:  p.Identity,
		Name:      p.Name,
		Extension: p.Extension,
		Size:      p.Size,
		Endpoint: hit.Endpoint{
			Host:         p.Host,
			Port:         p.Port,
			Firewalled:   p.Firewalled,
			RelayCapable: p.RelayCapable,
		},
		Quality:  p.Quality,
		Speed:    p.Speed,
		AddedAt:  p.AddedAt,
		Metadata: p.Metadata,
	}
}

func (f FilterRequest) expression() (filter.Expression, error) {
	must, err := conditionsFromWire(f.Must)
	if err != nil {
		return filter.Expression{}, err
	}
	should, err := conditionsFromWire(f.Should)
	if err != nil {
		return filter.Expression{}, err
	}
	mustNot, err := conditionsFromWire(f.MustNot)
	if err != nil {
		return filter.Expression{}, err
	}
	return filter.NewExpression(must, should, mustNot) //nolint:wrapcheck // sentinel already attached
}

func conditionsFromWire(cs []ConditionPayload) ([]filter.Condition, error) {
	out := make([]filter.Condition, 0, len(cs))
	for _, c := range cs {
		if c.Range == nil {
			cond, err := filter.NewMatch(c.Key, c.Match)
			if err != nil {
				return nil, err //nolint:wrapcheck // sentinel already attached
			}
			out = append(out, cond)
			continue
		}
		rng, err := filter.NewRangeFilter(c.Range.GT, c.Range.GTE, c.Range.LT, c.Range.LTE)
		if err != nil {
			return nil, err //nolint:wrapcheck // sentinel already attached
		}
		cond, err := filter.NewRange(c.Key, rng)
		if err != nil {
			return nil, err //nolint:wrapcheck // sentinel already attached
		}
		out = append(out, cond)
	}
	return out, nil
}
