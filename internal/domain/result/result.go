// Package result holds read-only snapshots of groups handed out of a session's model context.
package result

import (
	"maps"
	"time"

	"github.com/kailas-cloud/hitdex/internal/domain/group"
)

// Row is a copy of one group's presentation attributes. Position is -1 for hidden groups.
type Row struct {
	Position       int               `json:"position"`
	Seq            uint64            `json:"seq"`
	Identity       string            `json:"identity,omitempty"`
	Name           string            `json:"name"`
	Extension      string            `json:"extension"`
	Size           int64             `json:"size"`
	SizeLabel      string            `json:"size_label"`
	Locations      int               `json:"locations"`
	LocationsLabel string            `json:"locations_label,omitempty"`
	Quality        int               `json:"quality"`
	Speed          int               `json:"speed"`
	Hits           int               `json:"hits"`
	Firewalled     bool              `json:"firewalled"`
	Collision      bool              `json:"collision,omitempty"`
	EarliestAdded  time.Time         `json:"earliest_added,omitzero"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// RowOf copies g at pos.
func RowOf(pos int, g *group.Group) Row {
	return Row{
		Position:       pos,
		Seq:            g.Seq(),
		Identity:       g.Identity().String(),
		Name:           g.Name(),
		Extension:      g.Extension(),
		Size:           g.Size(),
		SizeLabel:      g.SizeLabel(),
		Locations:      g.LocationCount(),
		LocationsLabel: g.LocationsLabel(),
		Quality:        g.Quality(),
		Speed:          g.Speed(),
		Hits:           len(g.Hits()),
		Firewalled:     g.Firewalled(),
		Collision:      g.Collision(),
		EarliestAdded:  g.EarliestAdded(),
		Metadata:       maps.Clone(g.Metadata()),
	}
}

// Stats summarizes a session.
type Stats struct {
	Rows           int      `json:"rows"`
	Hidden         int      `json:"hidden"`
	TotalSources   int      `json:"total_sources"`
	VisibleSources int      `json:"visible_sources"`
	Hits           uint64   `json:"hits"`
	Candidates     int      `json:"candidates"`
	Sort           string   `json:"sort"`
	Ascending      bool     `json:"ascending"`
	Filters        []string `json:"filters"`
	Stopped        bool     `json:"stopped"`
	LastEvent      uint64   `json:"last_event"`
}

// Snapshot is the archived state of a session.
type Snapshot struct {
	SessionID  string    `json:"session_id"`
	Query      string    `json:"query,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ArchivedAt time.Time `json:"archived_at"`
	Stats      Stats     `json:"stats"`
	Rows       []Row     `json:"rows"`
	Hidden     []Row     `json:"hidden,omitempty"`
}
