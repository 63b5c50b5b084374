package hit

import (
	"fmt"
	"maps"
	"path"
	"strings"
	"time"

	"github.com/kailas-cloud/hitdex/internal/domain"
)

// Hit is one reported source for one resource (immutable value object).
type Hit struct {
	identity Identity
	name     string
	ext      string
	size     int64
	endpoint Endpoint
	quality  int
	speed    int
	addedAt  time.Time
	metadata map[string]string
	seq      uint64
}

// Params carries the raw attributes of a hit as reported by the network collaborator.
type Params struct {
	Identity  string
	Name      string
	Extension string
	Size      int64
	Endpoint  Endpoint
	Quality   int
	Speed     int
	AddedAt   time.Time
	Metadata  map[string]string
}

// New validates and creates a Hit. An empty extension is derived from the name.
// Validation failures wrap domain.ErrMalformedHit.
func New(p Params) (Hit, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return Hit{}, fmt.Errorf("%w: name is required", domain.ErrMalformedHit)
	}
	if p.Size <= 0 {
		return Hit{}, fmt.Errorf("%w: size must be positive, got %d", domain.ErrMalformedHit, p.Size)
	}
	if p.Endpoint.Host == "" {
		return Hit{}, fmt.Errorf("%w: endpoint host is required", domain.ErrMalformedHit)
	}
	if p.Endpoint.Port < 0 || p.Endpoint.Port > 65535 {
		return Hit{}, fmt.Errorf("%w: endpoint port out of range: %d", domain.ErrMalformedHit, p.Endpoint.Port)
	}

	ext := strings.TrimPrefix(strings.TrimSpace(p.Extension), ".")
	if ext == "" {
		ext = strings.TrimPrefix(path.Ext(name), ".")
	}

	return Hit{
		identity: ParseIdentity(p.Identity),
		name:     name,
		ext:      ext,
		size:     p.Size,
		endpoint: p.Endpoint,
		quality:  p.Quality,
		speed:    p.Speed,
		addedAt:  p.AddedAt,
		metadata: maps.Clone(p.Metadata),
	}, nil
}

// WithSeq returns a copy stamped with its arrival sequence in the owning session.
func (h Hit) WithSeq(seq uint64) Hit {
	h.seq = seq
	return h
}

// Identity returns the strong identity, zero if absent.
func (h *Hit) Identity() Identity { return h.identity }

// Name returns the display name as reported.
func (h *Hit) Name() string { return h.name }

// Extension returns the file extension without the leading dot.
func (h *Hit) Extension() string { return h.ext }

// Size returns the byte size.
func (h *Hit) Size() int64 { return h.size }

// Endpoint returns the reporting source.
func (h *Hit) Endpoint() Endpoint { return h.endpoint }

// Quality returns the reported quality rating.
func (h *Hit) Quality() int { return h.quality }

// Speed returns the reported upload speed.
func (h *Hit) Speed() int { return h.speed }

// AddedAt returns when the source first reported the resource.
func (h *Hit) AddedAt() time.Time { return h.addedAt }

// Metadata returns the pass-through attribute bag.
func (h *Hit) Metadata() map[string]string { return h.metadata }

// Seq returns the arrival sequence (0 until stamped).
func (h *Hit) Seq() uint64 { return h.seq }
