// Package store implements the indexed sorted collection of result groups.
//
// Store keeps groups ordered by the active sort key and maintains a side index from
// strong identity to position. Every mutation remaps the affected positions before it
// returns and emits exactly one change notification. Store is not goroutine-safe; it is
// owned by a session's model context.
package store

import (
	"cmp"
	"fmt"
	"slices"
	"sort"

	"github.com/kailas-cloud/hitdex/internal/domain"
	"github.com/kailas-cloud/hitdex/internal/domain/event"
	"github.com/kailas-cloud/hitdex/internal/domain/group"
	"github.com/kailas-cloud/hitdex/internal/domain/hit"
)

// Store is the ordered sequence of visible groups.
type Store struct {
	rows      []*group.Group
	index     map[hit.Identity]int
	key       Key
	ascending bool
	listener  event.Listener
}

// New creates an empty store sorted by arrival order. A nil listener discards notifications.
func New(l event.Listener) *Store {
	if l == nil {
		l = event.Discard
	}
	return &Store{
		index:     make(map[hit.Identity]int),
		key:       ByArrival,
		ascending: true,
		listener:  l,
	}
}

// Len returns the number of rows.
func (s *Store) Len() int { return len(s.rows) }

// At returns the group at pos, nil when out of range.
func (s *Store) At(pos int) *group.Group {
	if pos < 0 || pos >= len(s.rows) {
		return nil
	}
	return s.rows[pos]
}

// Groups returns a copy of the rows in order.
func (s *Store) Groups() []*group.Group { return slices.Clone(s.rows) }

// Sort returns the active sort key and direction.
func (s *Store) Sort() (Key, bool) { return s.key, s.ascending }

// Insert places g at its sorted position and returns it.
// Inserting a second group for an indexed identity is an index inconsistency.
func (s *Store) Insert(g *group.Group) (int, error) {
	id := g.Identity()
	if !id.IsZero() {
		if pos, ok := s.index[id]; ok {
			return -1, &domain.InconsistencyError{Identity: id.String(), Position: len(s.rows), Indexed: pos}
		}
	}

	pos := sort.Search(len(s.rows), func(i int) bool { return s.order(g, s.rows[i]) < 0 })
	s.rows = slices.Insert(s.rows, pos, g)
	s.remap(pos, len(s.rows)-1)
	s.listener.Notify(event.Inserted(pos, pos))
	return pos, nil
}

// Remove deletes the row at pos and returns its group, nil when out of range.
func (s *Store) Remove(pos int) *group.Group {
	if pos < 0 || pos >= len(s.rows) {
		return nil
	}
	g := s.rows[pos]
	if id := g.Identity(); !id.IsZero() {
		delete(s.index, id)
	}
	s.rows = slices.Delete(s.rows, pos, pos+1)
	s.remap(pos, len(s.rows)-1)
	s.listener.Notify(event.Removed(pos, pos))
	return g
}

// Reposition re-evaluates the position of g after its sort key changed. oldPos is the
// position g held before the change. The scan walks toward the side the comparator now
// prefers and stops at the first neighbor already in order; an unchanged position emits a
// single rowsUpdated. Returns the new position, or -1 if g is not in the store.
func (s *Store) Reposition(g *group.Group, oldPos int) int {
	if s.At(oldPos) != g {
		p, ok := s.PositionOf(g)
		if !ok {
			return -1
		}
		oldPos = p
	}

	newPos := oldPos
	if oldPos > 0 && s.order(g, s.rows[oldPos-1]) < 0 {
		for newPos > 0 && s.order(g, s.rows[newPos-1]) < 0 {
			newPos--
		}
	} else {
		for newPos < len(s.rows)-1 && s.order(s.rows[newPos+1], g) < 0 {
			newPos++
		}
	}

	switch {
	case newPos == oldPos:
		s.listener.Notify(event.Updated(oldPos, oldPos))
		return oldPos
	case newPos < oldPos:
		copy(s.rows[newPos+1:oldPos+1], s.rows[newPos:oldPos])
		s.rows[newPos] = g
		s.remap(newPos, oldPos)
	default:
		copy(s.rows[oldPos:newPos], s.rows[oldPos+1:newPos+1])
		s.rows[newPos] = g
		s.remap(oldPos, newPos)
	}
	s.listener.Notify(event.Moved(oldPos, newPos))
	return newPos
}

// Refresh signals that the row at pos changed without affecting order.
func (s *Store) Refresh(pos int) {
	if pos < 0 || pos >= len(s.rows) {
		return
	}
	s.listener.Notify(event.Updated(pos, pos))
}

// Resort changes the sort key and direction and rebuilds the side index.
// Used only when the user changes the sort column or direction.
func (s *Store) Resort(key Key, ascending bool) {
	s.key = key
	s.ascending = ascending
	slices.SortStableFunc(s.rows, s.order)
	clear(s.index)
	s.remap(0, len(s.rows)-1)
	if len(s.rows) > 0 {
		s.listener.Notify(event.Updated(0, len(s.rows)-1))
	}
}

// Clear removes every row and returns the removed groups in order.
func (s *Store) Clear() []*group.Group {
	rows := s.rows
	s.rows = nil
	clear(s.index)
	if len(rows) > 0 {
		s.listener.Notify(event.Removed(0, len(rows)-1))
	}
	return rows
}

// PositionOfIdentity returns the position of the group with the given identity.
func (s *Store) PositionOfIdentity(id hit.Identity) (int, bool) {
	if id.IsZero() {
		return -1, false
	}
	pos, ok := s.index[id]
	return pos, ok
}

// PositionOf returns the position of g. Groups with a strong identity use the side
// index; approximate-matched groups fall back to a linear scan.
func (s *Store) PositionOf(g *group.Group) (int, bool) {
	if id := g.Identity(); !id.IsZero() {
		pos, ok := s.index[id]
		if !ok || s.rows[pos] != g {
			return -1, false
		}
		return pos, true
	}
	for i, r := range s.rows {
		if r == g {
			return i, true
		}
	}
	return -1, false
}

// Verify checks that the side index exactly reflects the sequence.
func (s *Store) Verify() error {
	indexed := 0
	for i, g := range s.rows {
		id := g.Identity()
		if id.IsZero() {
			continue
		}
		indexed++
		pos, ok := s.index[id]
		if !ok {
			pos = -1
		}
		if pos != i {
			return &domain.InconsistencyError{Identity: id.String(), Position: i, Indexed: pos}
		}
	}
	if indexed != len(s.index) {
		return fmt.Errorf("%w: %d indexed identities for %d rows", domain.ErrIndexInconsistency, len(s.index), indexed)
	}
	return nil
}

// order is the total order: primary key with direction, then insertion order ascending.
func (s *Store) order(a, b *group.Group) int {
	c := s.key.compare(a, b)
	if !s.ascending {
		c = -c
	}
	if c != 0 {
		return c
	}
	return cmp.Compare(a.Seq(), b.Seq())
}

func (s *Store) remap(from, to int) {
	for i := from; i <= to; i++ {
		if id := s.rows[i].Identity(); !id.IsZero() {
			s.index[id] = i
		}
	}
}
