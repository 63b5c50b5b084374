package hitdex

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/hitdex/internal/db"
	dbRedis "github.com/kailas-cloud/hitdex/internal/db/redis"
	"github.com/kailas-cloud/hitdex/internal/domain/result"
	archiverepo "github.com/kailas-cloud/hitdex/internal/repository/archive"
	healthuc "github.com/kailas-cloud/hitdex/internal/usecase/health"
	searchuc "github.com/kailas-cloud/hitdex/internal/usecase/search"
	"github.com/kailas-cloud/hitdex/internal/usecase/session"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultArchiveTTL       = 24 * time.Hour
)

// Snapshot is the archived state of a removed session.
type Snapshot = result.Snapshot

// Client is the hitdex SDK entry point.
type Client struct {
	store    db.Store
	registry *searchuc.Service
	health   healthUseCase
	obs      *observer

	stopSweeper context.CancelFunc
	sweeperDone sync.WaitGroup
}

// New creates a Client. When a database is configured the provided context is used
// for the initial readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{archiveTTL: defaultArchiveTTL}
	for _, o := range opts {
		o.apply(cfg)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	var (
		store   db.Store
		archive = cfg.archive
	)
	if cfg.driver != "" {
		store, err = dbRedis.NewStore(dbRedis.Config{Addrs: cfg.addrs, Password: cfg.password})
		if err != nil {
			return nil, fmt.Errorf("hitdex: create %s store: %w", cfg.driver, err)
		}
		if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			store.Close()
			return nil, fmt.Errorf("hitdex: database not ready: %w", err)
		}
		if archive == nil {
			archive = archiverepo.New(store, cfg.keyPrefix, cfg.archiveTTL)
		}
	}

	registry := searchuc.New(searchuc.Config{
		Engine: session.Options{
			FilterDepth:  cfg.filterDepth,
			MaxDistance:  cfg.maxDistance,
			Ratio:        cfg.ratio,
			VerifyIndex:  cfg.verifyIndex,
			EventLogSize: cfg.eventLogSize,
		},
		IdleTimeout: cfg.idleTimeout,
		RatePerSec:  cfg.ratePerSec,
		Burst:       cfg.burst,
	}, archive, zap.NewNop())

	c := &Client{store: store, registry: registry, health: healthuc.New(store, registry), obs: obs}
	if cfg.idleTimeout > 0 && cfg.sweepInterval > 0 {
		sweepCtx, cancel := context.WithCancel(context.Background())
		c.stopSweeper = cancel
		c.sweeperDone.Add(1)
		go func() {
			defer c.sweeperDone.Done()
			_ = registry.RunSweeper(sweepCtx, cfg.sweepInterval)
		}()
	}
	return c, nil
}

// Close removes every session and releases the database connection.
func (c *Client) Close() {
	if c.stopSweeper != nil {
		c.stopSweeper()
		c.sweeperDone.Wait()
	}
	c.registry.Shutdown(context.Background())
	if c.store != nil {
		c.store.Close()
	}
}

// Start opens a new search session for query.
func (c *Client) Start(ctx context.Context, query string) (s *Search, err error) {
	start := time.Now()
	defer func() { c.obs.observe("start", start, err) }()

	sess, err := c.registry.Start(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	return &Search{id: sess.ID(), sess: sess, registry: c.registry, obs: c.obs}, nil
}

// Search returns the live session with id.
func (c *Client) Search(id string) (*Search, error) {
	sess, err := c.registry.Get(id)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", id, err)
	}
	return &Search{id: id, sess: sess, registry: c.registry, obs: c.obs}, nil
}

// Sessions returns the number of live sessions.
func (c *Client) Sessions() int { return c.registry.Len() }

// Remove stops and destroys session id, archiving it when a database is configured.
// Hits for a removed session are ignored.
func (c *Client) Remove(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("remove", start, err) }()

	if err = c.registry.Remove(ctx, id); err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

// Archived loads the snapshot of a removed session.
func (c *Client) Archived(ctx context.Context, id string) (snap Snapshot, err error) {
	start := time.Now()
	defer func() { c.obs.observe("archived", start, err) }()

	snap, err = c.registry.Archived(ctx, id)
	if err != nil {
		return Snapshot{}, fmt.Errorf("archived: %w", err)
	}
	return snap, nil
}
