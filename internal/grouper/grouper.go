// Package grouper decides, for each incoming hit, which group it belongs to.
//
// Hits with a strong identity are grouped through an identity index. Hits without one are
// compared by the approximate matcher against the candidates of their bucket only; a bucket
// holds one seed hit per group created on the approximate path, keyed by extension and size.
package grouper

import (
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/kailas-cloud/hitdex/internal/domain/group"
	"github.com/kailas-cloud/hitdex/internal/domain/hit"
	"github.com/kailas-cloud/hitdex/internal/match"
)

// Path is the grouping path taken for a hit.
type Path string

// Grouping paths.
const (
	PathIdentity    Path = "identity"
	PathApproximate Path = "approximate"
)

// Assignment is the grouping decision for one hit.
type Assignment struct {
	Group   *group.Group
	Created bool
	Path    Path
	Merge   group.MergeResult
	// KeyChanged is true when a sortable attribute (locations, quality, speed) changed.
	KeyChanged bool
}

type candidate struct {
	seed  hit.Hit
	group *group.Group
}

// Grouper holds the identity index and the approximate-match candidates. Not goroutine-safe.
type Grouper struct {
	matcher    *match.Matcher
	byIdentity map[hit.Identity]*group.Group
	buckets    map[uint64][]candidate
	observe    func(match.Outcome)
}

// New creates a Grouper using m for identity-less hits.
func New(m *match.Matcher) *Grouper {
	return &Grouper{
		matcher:    m,
		byIdentity: make(map[hit.Identity]*group.Group),
		buckets:    make(map[uint64][]candidate),
	}
}

// WithOutcomeObserver registers a callback for every approximate comparison.
func (g *Grouper) WithOutcomeObserver(fn func(match.Outcome)) *Grouper {
	g.observe = fn
	return g
}

// Assign groups h, creating a new group when nothing matches. The new group's
// insertion order is the hit's arrival sequence.
func (g *Grouper) Assign(h hit.Hit) Assignment {
	if id := h.Identity(); !id.IsZero() {
		if grp, ok := g.byIdentity[id]; ok {
			return merge(grp, h, PathIdentity)
		}
		grp := group.New(h.Seq(), h)
		g.byIdentity[id] = grp
		return Assignment{Group: grp, Created: true, Path: PathIdentity}
	}

	key := bucketKey(h.Extension(), h.Size())
	for _, c := range g.buckets[key] {
		outcome := g.matcher.Match(&h, &c.seed)
		if g.observe != nil {
			g.observe(outcome)
		}
		if outcome == match.Match {
			return merge(c.group, h, PathApproximate)
		}
	}

	grp := group.New(h.Seq(), h)
	g.buckets[key] = append(g.buckets[key], candidate{seed: h, group: grp})
	return Assignment{Group: grp, Created: true, Path: PathApproximate}
}

// Lookup returns the group registered for an identity.
func (g *Grouper) Lookup(id hit.Identity) (*group.Group, bool) {
	grp, ok := g.byIdentity[id]
	return grp, ok
}

// Forget drops every reference to grp so later hits start a new group.
func (g *Grouper) Forget(grp *group.Group) {
	if id := grp.Identity(); !id.IsZero() {
		if g.byIdentity[id] == grp {
			delete(g.byIdentity, id)
		}
		return
	}
	key := bucketKey(grp.Extension(), grp.Size())
	cands := slices.DeleteFunc(g.buckets[key], func(c candidate) bool { return c.group == grp })
	if len(cands) == 0 {
		delete(g.buckets, key)
		return
	}
	g.buckets[key] = cands
}

// Reset drops all grouping state, including the matcher's normalization cache.
func (g *Grouper) Reset() {
	clear(g.byIdentity)
	clear(g.buckets)
	g.matcher.Reset()
}

// Candidates returns the number of approximate-match candidates.
func (g *Grouper) Candidates() int {
	n := 0
	for _, cs := range g.buckets {
		n += len(cs)
	}
	return n
}

func merge(grp *group.Group, h hit.Hit, path Path) Assignment {
	locations, quality, speed := grp.LocationCount(), grp.Quality(), grp.Speed()
	res := grp.Merge(h)
	return Assignment{
		Group: grp,
		Path:  path,
		Merge: res,
		KeyChanged: grp.LocationCount() != locations ||
			grp.Quality() != quality || grp.Speed() != speed,
	}
}

func bucketKey(ext string, size int64) uint64 {
	return xxhash.Sum64String(strings.ToLower(ext) + "\x00" + strconv.FormatInt(size, 10))
}
