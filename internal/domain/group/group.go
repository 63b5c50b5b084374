package group

import (
	"maps"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kailas-cloud/hitdex/internal/domain/hit"
)

// Group is an aggregated result row: the hits believed to describe one resource.
// Name, extension, and size are the baseline taken from the first hit and never change.
type Group struct {
	seq       uint64
	identity  hit.Identity
	name      string
	ext       string
	size      int64
	hits      []hit.Hit
	sources   SourceSet
	quality   int
	speed     int
	earliest  time.Time
	metadata  map[string]string
	collision bool
}

// MergeResult describes what a merge changed.
type MergeResult struct {
	// SourcesChanged is true when the location count increased.
	SourcesChanged bool
	// Collision is true when the hit shares the identity but not the baseline extension/size.
	Collision bool
}

// New creates a group from its first hit. seq is the insertion order within the session.
func New(seq uint64, first hit.Hit) *Group {
	g := &Group{
		seq:      seq,
		identity: first.Identity(),
		name:     first.Name(),
		ext:      first.Extension(),
		size:     first.Size(),
		quality:  first.Quality(),
		speed:    first.Speed(),
		earliest: first.AddedAt(),
		metadata: maps.Clone(first.Metadata()),
	}
	g.hits = append(g.hits, first)
	g.sources.Add(first.Endpoint())
	return g
}

// Merge folds a hit into the group. Baseline attributes are never overwritten.
func (g *Group) Merge(h hit.Hit) MergeResult {
	var res MergeResult
	if !strings.EqualFold(h.Extension(), g.ext) || h.Size() != g.size {
		g.collision = true
		res.Collision = true
	}

	g.hits = append(g.hits, h)
	res.SourcesChanged = g.sources.Add(h.Endpoint())

	if h.Quality() > g.quality {
		g.quality = h.Quality()
	}
	if h.Speed() > g.speed {
		g.speed = h.Speed()
	}
	if at := h.AddedAt(); !at.IsZero() && (g.earliest.IsZero() || at.Before(g.earliest)) {
		g.earliest = at
	}
	for k, v := range h.Metadata() {
		if _, ok := g.metadata[k]; ok {
			continue
		}
		if g.metadata == nil {
			g.metadata = make(map[string]string)
		}
		g.metadata[k] = v
	}
	return res
}

// Seq returns the insertion order of the group within its session.
func (g *Group) Seq() uint64 { return g.seq }

// Identity returns the strong identity, zero for approximate-matched groups.
func (g *Group) Identity() hit.Identity { return g.identity }

// Name returns the baseline display name.
func (g *Group) Name() string { return g.name }

// Extension returns the baseline extension.
func (g *Group) Extension() string { return g.ext }

// Size returns the baseline byte size.
func (g *Group) Size() int64 { return g.size }

// SizeLabel returns the byte size in human-readable form.
func (g *Group) SizeLabel() string { return humanize.IBytes(uint64(g.size)) }

// Hits returns the merged hits in merge order. Callers must not modify the slice.
func (g *Group) Hits() []hit.Hit { return g.hits }

// Sources returns the source set.
func (g *Group) Sources() *SourceSet { return &g.sources }

// LocationCount returns the number of distinct sources.
func (g *Group) LocationCount() int { return g.sources.Count() }

// LocationsLabel returns the "N locations" indicator, empty for a single source.
func (g *Group) LocationsLabel() string { return g.sources.Label() }

// Quality returns the best quality across merged hits.
func (g *Group) Quality() int { return g.quality }

// Speed returns the best speed across merged hits.
func (g *Group) Speed() int { return g.speed }

// EarliestAdded returns the earliest add time across merged hits.
func (g *Group) EarliestAdded() time.Time { return g.earliest }

// Metadata returns the first-seen value per metadata key.
func (g *Group) Metadata() map[string]string { return g.metadata }

// Collision reports whether a hit with this identity arrived with a different extension or size.
func (g *Group) Collision() bool { return g.collision }

// Firewalled reports whether every source is firewalled.
func (g *Group) Firewalled() bool { return g.sources.Firewalled() }
