// Package pipeline partitions groups into the visible store and a hidden set using a
// fixed-depth chain of predicate slots.
//
// Hidden groups keep their full merge history, and any filter change rebuilds both the
// store and the hidden set by replaying every hit in arrival order, so the grouping never
// depends on filter history.
package pipeline

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/kailas-cloud/hitdex/internal/domain"
	"github.com/kailas-cloud/hitdex/internal/domain/group"
	"github.com/kailas-cloud/hitdex/internal/domain/hit"
	"github.com/kailas-cloud/hitdex/internal/store"
)

// DefaultDepth is the number of independent filter dimensions.
const DefaultDepth = 3

// Predicate decides group visibility. Name is the canonical form used for change detection;
// an empty name means "accept everything".
type Predicate interface {
	Name() string
	Accept(g *group.Group) bool
}

// Readmitter replays hits through the grouping path during a rebuild.
type Readmitter interface {
	// Reset drops all grouping state.
	Reset()
	// Readmit groups one hit and admits or updates its group through the pipeline.
	Readmit(h hit.Hit) error
}

// Pipeline owns the visible store and the hidden set.
type Pipeline struct {
	store  *store.Store
	slots  []Predicate
	hidden map[*group.Group]struct{}
}

// New creates a pipeline over st with depth predicate slots.
func New(st *store.Store, depth int) *Pipeline {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Pipeline{
		store:  st,
		slots:  make([]Predicate, depth),
		hidden: make(map[*group.Group]struct{}),
	}
}

// Store returns the visible store.
func (p *Pipeline) Store() *store.Store { return p.store }

// Depth returns the number of predicate slots.
func (p *Pipeline) Depth() int { return len(p.slots) }

// Filter returns the predicate in slot, nil when empty.
func (p *Pipeline) Filter(slot int) Predicate {
	if slot < 0 || slot >= len(p.slots) {
		return nil
	}
	return p.slots[slot]
}

// SetFilter replaces one slot. A nil or unnamed predicate empties the slot.
// Reports whether the effective predicate set changed; callers rebuild only when it did.
func (p *Pipeline) SetFilter(slot int, pred Predicate) (bool, error) {
	if slot < 0 || slot >= len(p.slots) {
		return false, fmt.Errorf("%w: %d (depth %d)", domain.ErrInvalidSlot, slot, len(p.slots))
	}
	if pred != nil && pred.Name() == "" {
		pred = nil
	}
	if predicateName(p.slots[slot]) == predicateName(pred) {
		return false, nil
	}
	p.slots[slot] = pred
	return true, nil
}

// Accepts reports whether every occupied slot accepts g.
func (p *Pipeline) Accepts(g *group.Group) bool {
	for _, pred := range p.slots {
		if pred != nil && !pred.Accept(g) {
			return false
		}
	}
	return true
}

// Admit places a new group into the store or the hidden set. Reports visibility.
func (p *Pipeline) Admit(g *group.Group) (bool, error) {
	if !p.Accepts(g) {
		p.hidden[g] = struct{}{}
		return false, nil
	}
	if _, err := p.store.Insert(g); err != nil {
		return false, fmt.Errorf("admit group: %w", err)
	}
	return true, nil
}

// Update re-evaluates g after a merge. A visible group that now fails a predicate moves to
// the hidden set; a hidden group that now passes joins the store. A visible group that stays
// visible is repositioned when its sort key changed, otherwise refreshed.
func (p *Pipeline) Update(g *group.Group, keyChanged bool) error {
	if _, ok := p.hidden[g]; ok {
		if !p.Accepts(g) {
			return nil
		}
		delete(p.hidden, g)
		if _, err := p.store.Insert(g); err != nil {
			return fmt.Errorf("reveal group: %w", err)
		}
		return nil
	}

	pos, ok := p.store.PositionOf(g)
	if !ok {
		return fmt.Errorf("%w: merged group %q missing from the store", domain.ErrIndexInconsistency, g.Name())
	}
	if !p.Accepts(g) {
		p.store.Remove(pos)
		p.hidden[g] = struct{}{}
		return nil
	}
	if keyChanged {
		p.store.Reposition(g, pos)
		return nil
	}
	p.store.Refresh(pos)
	return nil
}

// Rebuild snapshots every hit of every visible and hidden group, clears both, and
// replays the hits in arrival order through r.
func (p *Pipeline) Rebuild(r Readmitter) error {
	hits := p.snapshot()
	p.Clear()
	r.Reset()
	for _, h := range hits {
		if err := r.Readmit(h); err != nil {
			return fmt.Errorf("readmit hit %d: %w", h.Seq(), err)
		}
	}
	return nil
}

// Remove discards g from whichever partition holds it.
func (p *Pipeline) Remove(g *group.Group) bool {
	if _, ok := p.hidden[g]; ok {
		delete(p.hidden, g)
		return true
	}
	pos, ok := p.store.PositionOf(g)
	if !ok {
		return false
	}
	p.store.Remove(pos)
	return true
}

// Clear discards every group, visible and hidden.
func (p *Pipeline) Clear() {
	p.store.Clear()
	clear(p.hidden)
}

// IsHidden reports whether g is currently in the hidden set.
func (p *Pipeline) IsHidden(g *group.Group) bool {
	_, ok := p.hidden[g]
	return ok
}

// HiddenLen returns the number of hidden groups.
func (p *Pipeline) HiddenLen() int { return len(p.hidden) }

// HiddenGroups returns the hidden groups in insertion order.
func (p *Pipeline) HiddenGroups() []*group.Group {
	out := make([]*group.Group, 0, len(p.hidden))
	for g := range p.hidden {
		out = append(out, g)
	}
	slices.SortFunc(out, bySeq)
	return out
}

// VisibleSources returns the location count summed over the visible store.
func (p *Pipeline) VisibleSources() int {
	n := 0
	for i := 0; i < p.store.Len(); i++ {
		n += p.store.At(i).LocationCount()
	}
	return n
}

// HiddenSources returns the location count summed over the hidden set.
func (p *Pipeline) HiddenSources() int {
	n := 0
	for g := range p.hidden {
		n += g.LocationCount()
	}
	return n
}

// TotalSources is filter-invariant: visible plus hidden sources.
func (p *Pipeline) TotalSources() int { return p.VisibleSources() + p.HiddenSources() }

// snapshot collects every constituent hit in arrival order.
func (p *Pipeline) snapshot() []hit.Hit {
	var hits []hit.Hit
	for _, g := range p.store.Groups() {
		hits = append(hits, g.Hits()...)
	}
	for g := range p.hidden {
		hits = append(hits, g.Hits()...)
	}
	slices.SortFunc(hits, func(a, b hit.Hit) int { return cmp.Compare(a.Seq(), b.Seq()) })
	return hits
}

func bySeq(a, b *group.Group) int { return cmp.Compare(a.Seq(), b.Seq()) }

func predicateName(p Predicate) string {
	if p == nil {
		return ""
	}
	return p.Name()
}
