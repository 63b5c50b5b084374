package session

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/hitdex/internal/domain"
	"github.com/kailas-cloud/hitdex/internal/domain/hit"
	"github.com/kailas-cloud/hitdex/internal/domain/result"
	"github.com/kailas-cloud/hitdex/internal/pipeline"
	"github.com/kailas-cloud/hitdex/internal/store"
)

// RowCount returns the number of visible rows.
func (s *Session) RowCount(ctx context.Context) (int, error) {
	var n int
	if err := s.do(ctx, func() { n = s.pipeline.Store().Len() }); err != nil {
		return 0, err
	}
	return n, nil
}

// GroupAt returns a copy of the row at pos.
func (s *Session) GroupAt(ctx context.Context, pos int) (result.Row, error) {
	var (
		row result.Row
		ok  bool
	)
	err := s.do(ctx, func() {
		if g := s.pipeline.Store().At(pos); g != nil {
			row, ok = result.RowOf(pos, g), true
		}
	})
	if err != nil {
		return result.Row{}, err
	}
	if !ok {
		return result.Row{}, fmt.Errorf("row %d: %w", pos, domain.ErrNotFound)
	}
	return row, nil
}

// Rows returns up to limit visible rows starting at offset, plus the total row count.
// A non-positive limit returns every row from offset.
func (s *Session) Rows(ctx context.Context, offset, limit int) ([]result.Row, int, error) {
	var (
		rows  []result.Row
		total int
	)
	err := s.do(ctx, func() {
		st := s.pipeline.Store()
		total = st.Len()
		end := total
		if limit > 0 && offset+limit < end {
			end = offset + limit
		}
		for i := max(offset, 0); i < end; i++ {
			rows = append(rows, result.RowOf(i, st.At(i)))
		}
	})
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// PositionOfIdentity resolves a strong identity to its current visible position.
func (s *Session) PositionOfIdentity(ctx context.Context, raw string) (int, bool, error) {
	id := hit.ParseIdentity(raw)
	if id.IsZero() {
		return -1, false, nil
	}
	var (
		pos int
		ok  bool
	)
	if err := s.do(ctx, func() { pos, ok = s.pipeline.Store().PositionOfIdentity(id) }); err != nil {
		return -1, false, err
	}
	return pos, ok, nil
}

// PositionOf resolves a group, named by its insertion sequence, to its current visible
// position. Hidden and unknown groups report false.
func (s *Session) PositionOf(ctx context.Context, seq uint64) (int, bool, error) {
	pos, ok := -1, false
	err := s.do(ctx, func() {
		if g, found := s.groups[seq]; found {
			pos, ok = s.pipeline.Store().PositionOf(g)
		}
	})
	if err != nil {
		return -1, false, err
	}
	return pos, ok, nil
}

// TotalSources returns the location count over visible and hidden groups.
func (s *Session) TotalSources(ctx context.Context) (int, error) {
	var n int
	if err := s.do(ctx, func() { n = s.pipeline.TotalSources() }); err != nil {
		return 0, err
	}
	return n, nil
}

// VisibleSources returns the location count over visible groups.
func (s *Session) VisibleSources(ctx context.Context) (int, error) {
	var n int
	if err := s.do(ctx, func() { n = s.pipeline.VisibleSources() }); err != nil {
		return 0, err
	}
	return n, nil
}

// Stats summarizes the session.
func (s *Session) Stats(ctx context.Context) (result.Stats, error) {
	var st result.Stats
	if err := s.do(ctx, func() { st = s.stats() }); err != nil {
		return result.Stats{}, err
	}
	return st, nil
}

// SetSort changes the sort key and direction. An unchanged sort is a no-op.
func (s *Session) SetSort(ctx context.Context, key store.Key, ascending bool) error {
	return s.do(ctx, func() {
		st := s.pipeline.Store()
		if k, asc := st.Sort(); k == key && asc == ascending {
			return
		}
		st.Resort(key, ascending)
		s.check()
	})
}

// SetFilter installs pred into slot; nil clears the slot. The store is rebuilt only when
// the effective predicate set changed. Reports whether it did.
func (s *Session) SetFilter(ctx context.Context, slot int, pred pipeline.Predicate) (bool, error) {
	var (
		changed bool
		err     error
	)
	if derr := s.do(ctx, func() {
		changed, err = s.pipeline.SetFilter(slot, pred)
		if err == nil && changed {
			s.rebuild()
		}
	}); derr != nil {
		return false, derr
	}
	if err != nil {
		return false, fmt.Errorf("set filter: %w", err)
	}
	return changed, nil
}

// Clear destroys every group, visible and hidden.
func (s *Session) Clear(ctx context.Context) error {
	return s.do(ctx, func() {
		s.pipeline.Clear()
		replayer{s}.Reset()
	})
}

// RemoveAt destroys the visible group at pos and returns its last state.
func (s *Session) RemoveAt(ctx context.Context, pos int) (result.Row, error) {
	var (
		row result.Row
		ok  bool
	)
	err := s.do(ctx, func() {
		g := s.pipeline.Store().At(pos)
		if g == nil {
			return
		}
		row, ok = result.RowOf(pos, g), true
		s.pipeline.Remove(g)
		s.grouper.Forget(g)
		delete(s.groups, g.Seq())
		s.check()
	})
	if err != nil {
		return result.Row{}, err
	}
	if !ok {
		return result.Row{}, fmt.Errorf("row %d: %w", pos, domain.ErrNotFound)
	}
	return row, nil
}

// Snapshot copies the visible rows, the hidden groups and the stats.
func (s *Session) Snapshot(ctx context.Context) (result.Snapshot, error) {
	snap := result.Snapshot{SessionID: s.id, Query: s.query, CreatedAt: s.created}
	err := s.do(ctx, func() {
		snap.Stats = s.stats()
		for i, g := range s.pipeline.Store().Groups() {
			snap.Rows = append(snap.Rows, result.RowOf(i, g))
		}
		for _, g := range s.pipeline.HiddenGroups() {
			snap.Hidden = append(snap.Hidden, result.RowOf(-1, g))
		}
	})
	if err != nil {
		return result.Snapshot{}, err
	}
	snap.ArchivedAt = s.now()
	return snap, nil
}

func (s *Session) stats() result.Stats {
	st := s.pipeline.Store()
	key, asc := st.Sort()
	filters := make([]string, s.pipeline.Depth())
	for i := range filters {
		if p := s.pipeline.Filter(i); p != nil {
			filters[i] = p.Name()
		}
	}
	return result.Stats{
		Rows:           st.Len(),
		Hidden:         s.pipeline.HiddenLen(),
		TotalSources:   s.pipeline.TotalSources(),
		VisibleSources: s.pipeline.VisibleSources(),
		Hits:           s.seq,
		Candidates:     s.grouper.Candidates(),
		Sort:           string(key),
		Ascending:      asc,
		Filters:        filters,
		Stopped:        s.stopped.Load(),
		LastEvent:      s.events.Last(),
	}
}
