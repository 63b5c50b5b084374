package group

import (
	"github.com/dustin/go-humanize"

	"github.com/kailas-cloud/hitdex/internal/domain/hit"
)

// SourceSet holds the endpoints known to serve a group's resource.
// Cardinality counts distinct (host, port) pairs; every reported endpoint is kept in arrival order.
type SourceSet struct {
	endpoints []hit.Endpoint
	keys      map[string]struct{}
	open      int // endpoints that are not firewalled
}

// Add records an endpoint. Reports whether the cardinality increased.
func (s *SourceSet) Add(ep hit.Endpoint) bool {
	s.endpoints = append(s.endpoints, ep)
	if s.keys == nil {
		s.keys = make(map[string]struct{}, 1)
	}
	k := ep.Key()
	if _, ok := s.keys[k]; ok {
		return false
	}
	s.keys[k] = struct{}{}
	if !ep.Firewalled {
		s.open++
	}
	return true
}

// Count returns the number of distinct endpoints.
func (s *SourceSet) Count() int { return len(s.keys) }

// Endpoints returns every reported endpoint in arrival order, duplicates included.
func (s *SourceSet) Endpoints() []hit.Endpoint { return s.endpoints }

// Contains reports whether the endpoint is already known.
func (s *SourceSet) Contains(ep hit.Endpoint) bool {
	_, ok := s.keys[ep.Key()]
	return ok
}

// Firewalled reports whether every distinct endpoint is firewalled.
func (s *SourceSet) Firewalled() bool { return s.Count() > 0 && s.open == 0 }

// Label returns the "N locations" indicator, empty for single-source sets.
func (s *SourceSet) Label() string {
	n := s.Count()
	if n <= 1 {
		return ""
	}
	return humanize.Comma(int64(n)) + " locations"
}
