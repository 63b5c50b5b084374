package search

import (
	"context"

	"github.com/kailas-cloud/hitdex/internal/domain/result"
)

// Archive persists snapshots of removed sessions.
type Archive interface {
	Save(ctx context.Context, snap result.Snapshot) error
	Load(ctx context.Context, sessionID string) (result.Snapshot, error)
}
