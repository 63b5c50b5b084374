// Package archive stores snapshots of removed sessions as JSON values with a TTL.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/hitdex/internal/db"
	"github.com/kailas-cloud/hitdex/internal/domain"
	"github.com/kailas-cloud/hitdex/internal/domain/result"
)

// DefaultKeyPrefix namespaces archive keys.
const DefaultKeyPrefix = "hitdex:"

// store is the consumer interface for archive operations (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Repository saves and loads session snapshots.
type Repository struct {
	store  store
	prefix string
	ttl    time.Duration
}

// New creates a repository. A non-positive ttl keeps snapshots forever.
func New(s store, prefix string, ttl time.Duration) *Repository {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Repository{store: s, prefix: prefix, ttl: ttl}
}

// Save writes snap under the session's key.
func (r *Repository) Save(ctx context.Context, snap result.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := r.store.SetWithTTL(ctx, r.key(snap.SessionID), data, r.ttl); err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.SessionID, err)
	}
	return nil
}

// Load reads the snapshot of sessionID. Returns domain.ErrNotFound when absent or expired.
func (r *Repository) Load(ctx context.Context, sessionID string) (result.Snapshot, error) {
	data, err := r.store.Get(ctx, r.key(sessionID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return result.Snapshot{}, fmt.Errorf("snapshot %s: %w", sessionID, domain.ErrNotFound)
		}
		return result.Snapshot{}, fmt.Errorf("load snapshot %s: %w", sessionID, err)
	}

	var snap result.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return result.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", sessionID, err)
	}
	return snap, nil
}

func (r *Repository) key(sessionID string) string {
	return r.prefix + "archive:" + sessionID
}
