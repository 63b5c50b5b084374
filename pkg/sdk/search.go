package hitdex

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/hitdex/internal/domain/event"
	"github.com/kailas-cloud/hitdex/internal/domain/filter"
	"github.com/kailas-cloud/hitdex/internal/domain/hit"
	"github.com/kailas-cloud/hitdex/internal/domain/result"
	"github.com/kailas-cloud/hitdex/internal/store"
	searchuc "github.com/kailas-cloud/hitdex/internal/usecase/search"
	"github.com/kailas-cloud/hitdex/internal/usecase/session"
)

// Row is one visible result row.
type Row = result.Row

// Stats summarizes a session.
type Stats = result.Stats

// Event is one row change notification.
type Event = event.Event

// IngestResult reports what happened to one ingested batch.
type IngestResult = searchuc.IngestResult

// SortKey is a row sort column.
type SortKey = store.Key

// Sort keys.
const (
	SortByArrival   = store.ByArrival
	SortByLocations = store.ByLocations
	SortBySize      = store.BySize
	SortByName      = store.ByName
	SortByQuality   = store.ByQuality
	SortBySpeed     = store.BySpeed
)

// Hit is one raw search result reported by one source.
type Hit struct {
	Identity     string // content hash, "urn:sha1:..." or bare
	Name         string
	Extension    string // derived from Name when empty
	Size         int64
	Host         string
	Port         int
	Firewalled   bool
	RelayCapable bool
	Quality      int
	Speed        int
	AddedAt      time.Time
	Metadata     map[string]string
}

func (h Hit) params() hit.Params {
	return hit.Params{
		Identity:  h.Identity,
		Name:      h.Name,
		Extension: h.Extension,
		Size:      h.Size,
		Endpoint: hit.Endpoint{
			Host:         h.Host,
			Port:         h.Port,
			Firewalled:   h.Firewalled,
			RelayCapable: h.RelayCapable,
		},
		Quality:  h.Quality,
		Speed:    h.Speed,
		AddedAt:  h.AddedAt,
		Metadata: h.Metadata,
	}
}

// Search is a handle on one live session.
type Search struct {
	id       string
	sess     *session.Session
	registry *searchuc.Service
	obs      *observer
}

// ID returns the session id.
func (s *Search) ID() string { return s.id }

// Query returns the query the session was started for.
func (s *Search) Query() string { return s.sess.Query() }

// Ingest queues hits. Malformed hits are dropped and counted; a stopped session
// accepts nothing and reports Stopped.
func (s *Search) Ingest(ctx context.Context, hits ...Hit) (res IngestResult, err error) {
	start := time.Now()
	defer func() { s.obs.observeIngest(start, s.id, res, err) }()

	params := make([]hit.Params, len(hits))
	for i, h := range hits {
		params[i] = h.params()
	}
	res, err = s.registry.Ingest(ctx, s.id, params)
	if err != nil {
		return res, fmt.Errorf("ingest: %w", err)
	}
	return res, nil
}

// Stop halts ingestion permanently. Rows stay queryable.
func (s *Search) Stop() error {
	if err := s.registry.Stop(s.id); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	return nil
}

// Rows returns up to limit rows from offset and the total row count.
func (s *Search) Rows(ctx context.Context, offset, limit int) (rows []Row, total int, err error) {
	start := time.Now()
	defer func() { s.obs.observe("rows", start, err) }()

	rows, total, err = s.sess.Rows(ctx, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("rows: %w", err)
	}
	return rows, total, nil
}

// PositionOf returns the row holding content identity, false when it is hidden or absent.
func (s *Search) PositionOf(ctx context.Context, identity string) (int, bool, error) {
	pos, ok, err := s.sess.PositionOfIdentity(ctx, identity)
	if err != nil {
		return -1, false, fmt.Errorf("position of: %w", err)
	}
	return pos, ok, nil
}

// RemoveAt destroys the row at pos.
func (s *Search) RemoveAt(ctx context.Context, pos int) (Row, error) {
	row, err := s.sess.RemoveAt(ctx, pos)
	if err != nil {
		return Row{}, fmt.Errorf("remove at: %w", err)
	}
	return row, nil
}

// Clear destroys every row, visible and hidden.
func (s *Search) Clear(ctx context.Context) error {
	if err := s.sess.Clear(ctx); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

// SetSort reorders the rows by key.
func (s *Search) SetSort(ctx context.Context, key SortKey, ascending bool) (err error) {
	start := time.Now()
	defer func() { s.obs.observe("set_sort", start, err) }()

	if _, err = store.ParseKey(string(key)); err != nil {
		return fmt.Errorf("set sort: %w", err)
	}
	if err = s.sess.SetSort(ctx, key, ascending); err != nil {
		return fmt.Errorf("set sort: %w", err)
	}
	return nil
}

// SetFilter installs f in slot. An empty filter clears the slot.
func (s *Search) SetFilter(ctx context.Context, slot int, f Filter) (err error) {
	start := time.Now()
	defer func() { s.obs.observe("set_filter", start, err) }()

	expr, err := f.expression()
	if err != nil {
		return fmt.Errorf("set filter: %w", err)
	}
	if _, err = s.sess.SetFilter(ctx, slot, expr); err != nil {
		return fmt.Errorf("set filter: %w", err)
	}
	return nil
}

// ClearFilter empties slot.
func (s *Search) ClearFilter(ctx context.Context, slot int) error {
	return s.SetFilter(ctx, slot, Filter{})
}

// Stats summarizes the session.
func (s *Search) Stats(ctx context.Context) (Stats, error) {
	st, err := s.sess.Stats(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// Events returns the notifications after cursor and the new cursor.
func (s *Search) Events(after uint64) ([]Event, uint64, error) {
	events, last, err := s.sess.Events().Since(after)
	if err != nil {
		return nil, last, fmt.Errorf("events: %w", err)
	}
	return events, last, nil
}

// Condition is one filter term: a tag match or a numeric range.
type Condition struct {
	Key   string
	Value string // tag match; empty for a range
	GT    *float64
	GTE   *float64
	LT    *float64
	LTE   *float64
}

// Match matches a tag key ("extension", "name", "identity", "meta.<key>") against value.
func Match(key, value string) Condition { return Condition{Key: key, Value: value} }

// Between bounds a numeric key ("size", "locations", "quality", "speed") inclusively.
func Between(key string, lo, hi float64) Condition {
	return Condition{Key: key, GTE: &lo, LTE: &hi}
}

// AtLeast bounds a numeric key from below, inclusively.
func AtLeast(key string, lo float64) Condition { return Condition{Key: key, GTE: &lo} }

// Filter is a boolean filter over rows.
type Filter struct {
	Must    []Condition
	Should  []Condition
	MustNot []Condition
}

func (f Filter) expression() (filter.Expression, error) {
	var groups [3][]filter.Condition
	for i, cs := range [3][]Condition{f.Must, f.Should, f.MustNot} {
		for _, c := range cs {
			fc, err := c.condition()
			if err != nil {
				return filter.Expression{}, err
			}
			groups[i] = append(groups[i], fc)
		}
	}
	return filter.NewExpression(groups[0], groups[1], groups[2]) //nolint:wrapcheck // sentinel already attached
}

func (c Condition) condition() (filter.Condition, error) {
	if c.GT == nil && c.GTE == nil && c.LT == nil && c.LTE == nil {
		return filter.NewMatch(c.Key, c.Value) //nolint:wrapcheck // sentinel already attached
	}
	rng, err := filter.NewRangeFilter(c.GT, c.GTE, c.LT, c.LTE)
	if err != nil {
		return filter.Condition{}, err //nolint:wrapcheck // sentinel already attached
	}
	return filter.NewRange(c.Key, rng) //nolint:wrapcheck // sentinel already attached
}
