// Package search is the registry of live search sessions.
//
// It owns the ingestion boundary: hits are validated, rate limited and checked against the
// stopped sentinels before they reach a session's queue.
package search

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/hitdex/internal/domain"
	"github.com/kailas-cloud/hitdex/internal/domain/hit"
	"github.com/kailas-cloud/hitdex/internal/domain/result"
	"github.com/kailas-cloud/hitdex/internal/metrics"
	"github.com/kailas-cloud/hitdex/internal/usecase/session"
)

// DefaultSentinelRetention is how long a removed session's stopped sentinel is kept.
const DefaultSentinelRetention = 24 * time.Hour

// Config configures the registry.
type Config struct {
	Engine session.Options
	// IdleTimeout removes sessions without activity; zero disables the sweeper.
	IdleTimeout       time.Duration
	SentinelRetention time.Duration
	// RatePerSec limits hits per session; zero means unlimited.
	RatePerSec float64
	Burst      int
}

// IngestResult reports what happened to one ingested batch.
type IngestResult struct {
	Accepted    int  `json:"accepted"`
	Malformed   int  `json:"malformed"`
	RateLimited int  `json:"rate_limited"`
	Stopped     bool `json:"stopped"`
}

type entry struct {
	session *session.Session
	limiter *rate.Limiter
}

// Service holds the live sessions and the stopped sentinels of removed ones.
type Service struct {
	cfg     Config
	archive Archive
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string

	mu       sync.RWMutex
	sessions map[string]*entry
	stopped  map[string]time.Time
}

// New creates a registry. archive can be nil.
func New(cfg Config, archive Archive, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SentinelRetention <= 0 {
		cfg.SentinelRetention = DefaultSentinelRetention
	}
	if cfg.Engine.Logger == nil {
		cfg.Engine.Logger = logger
	}
	now := cfg.Engine.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		cfg:      cfg,
		archive:  archive,
		logger:   logger,
		now:      now,
		newID:    uuid.NewString,
		sessions: make(map[string]*entry),
		stopped:  make(map[string]time.Time),
	}
}

// Start creates a session for query.
func (s *Service) Start(_ context.Context, query string) (*session.Session, error) {
	id := s.newID()
	sess := session.New(id, query, s.cfg.Engine)

	e := &entry{session: sess}
	if s.cfg.RatePerSec > 0 {
		burst := s.cfg.Burst
		if burst <= 0 {
			burst = max(int(s.cfg.RatePerSec), 1)
		}
		e.limiter = rate.NewLimiter(rate.Limit(s.cfg.RatePerSec), burst)
	}

	s.mu.Lock()
	s.sessions[id] = e
	s.mu.Unlock()

	metrics.SessionsActive.Inc()
	s.logger.Info("session started", zap.String("session_id", id), zap.String("query", query))
	return sess, nil
}

// Get returns a live session.
func (s *Service) Get(id string) (*session.Session, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, domain.ErrSessionNotFound)
	}
	return e.session, nil
}

// Len returns the number of live sessions.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Ingest validates params and queues the valid hits for session id. Malformed hits are
// dropped and counted. A stopped or removed session makes the call a no-op. When the rate
// limit is exhausted the rest of the batch is dropped and ErrRateLimited is returned along
// with the partial result.
func (s *Service) Ingest(_ context.Context, id string, params []hit.Params) (IngestResult, error) {
	var res IngestResult

	s.mu.RLock()
	e, live := s.sessions[id]
	_, sentinel := s.stopped[id]
	s.mu.RUnlock()

	if sentinel || (live && e.session.Stopped()) {
		metrics.HitsTotal.WithLabelValues(metrics.HitStopped).Add(float64(len(params)))
		res.Stopped = true
		return res, nil
	}
	if !live {
		return res, fmt.Errorf("session %q: %w", id, domain.ErrSessionNotFound)
	}

	hits := make([]hit.Hit, 0, len(params))
	for i, p := range params {
		h, err := hit.New(p)
		if err != nil {
			res.Malformed++
			metrics.HitsTotal.WithLabelValues(metrics.HitMalformed).Inc()
			s.logger.Debug("malformed hit dropped",
				zap.String("session_id", id), zap.Int("index", i), zap.Error(err))
			continue
		}
		hits = append(hits, h)
	}

	var limited error
	if e.limiter != nil {
		for i := range hits {
			if !e.limiter.Allow() {
				res.RateLimited = len(hits) - i
				metrics.HitsTotal.WithLabelValues(metrics.HitRateLimited).Add(float64(res.RateLimited))
				hits = hits[:i]
				limited = fmt.Errorf("session %q: %w", id, domain.ErrRateLimited)
				break
			}
		}
	}

	n, err := e.session.Ingest(hits...)
	res.Accepted = n
	if errors.Is(err, domain.ErrSessionStopped) {
		res.Stopped = true
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("ingest: %w", err)
	}
	return res, limited
}

// Stop sets the stopped sentinel of session id. Stopping a removed session is a no-op.
func (s *Service) Stop(id string) error {
	s.mu.RLock()
	e, live := s.sessions[id]
	_, sentinel := s.stopped[id]
	s.mu.RUnlock()

	switch {
	case live:
		e.session.Stop()
		return nil
	case sentinel:
		return nil
	}
	return fmt.Errorf("session %q: %w", id, domain.ErrSessionNotFound)
}

// Remove stops session id, archives its snapshot when an archive is configured and closes
// it. The stopped sentinel outlives the session so late hits are still rejected.
func (s *Service) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	e, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
		s.stopped[id] = s.now()
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %q: %w", id, domain.ErrSessionNotFound)
	}
	metrics.SessionsActive.Dec()

	sess := e.session
	sess.Stop()

	var archiveErr error
	if s.archive != nil {
		snap, err := sess.Snapshot(ctx)
		if err == nil {
			err = s.archive.Save(ctx, snap)
		}
		if err != nil {
			archiveErr = fmt.Errorf("archive session %q: %w", id, err)
			s.logger.Error("archive session failed", zap.String("session_id", id), zap.Error(err))
		}
	}

	if err := sess.Clear(ctx); err != nil && !errors.Is(err, domain.ErrSessionClosed) {
		s.logger.Warn("clear session failed", zap.String("session_id", id), zap.Error(err))
	}
	sess.Close()
	s.logger.Info("session removed", zap.String("session_id", id))
	return archiveErr
}

// ArchiveEnabled reports whether removed sessions are archived.
func (s *Service) ArchiveEnabled() bool { return s.archive != nil }

// Archived loads the archived snapshot of a removed session.
func (s *Service) Archived(ctx context.Context, id string) (result.Snapshot, error) {
	if s.archive == nil {
		return result.Snapshot{}, domain.ErrArchiveDisabled
	}
	snap, err := s.archive.Load(ctx, id)
	if err != nil {
		return result.Snapshot{}, fmt.Errorf("load archive: %w", err)
	}
	return snap, nil
}

// Sweep removes sessions idle longer than the idle timeout and forgets expired sentinels.
// Returns the number of sessions removed.
func (s *Service) Sweep(ctx context.Context) int {
	now := s.now()

	var idle []string
	s.mu.Lock()
	if s.cfg.IdleTimeout > 0 {
		for id, e := range s.sessions {
			if now.Sub(e.session.LastActive()) > s.cfg.IdleTimeout {
				idle = append(idle, id)
			}
		}
	}
	maps.DeleteFunc(s.stopped, func(_ string, at time.Time) bool {
		return now.Sub(at) > s.cfg.SentinelRetention
	})
	s.mu.Unlock()

	for _, id := range idle {
		if err := s.Remove(ctx, id); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			s.logger.Warn("idle session removal", zap.String("session_id", id), zap.Error(err))
		}
	}
	if len(idle) > 0 {
		s.logger.Info("idle sessions removed", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.Sweep(ctx)
		}
	}
}

// Shutdown removes every live session.
func (s *Service) Shutdown(ctx context.Context) {
	s.mu.RLock()
	ids := slices.Collect(maps.Keys(s.sessions))
	s.mu.RUnlock()

	for _, id := range ids {
		if err := s.Remove(ctx, id); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			s.logger.Warn("shutdown session removal", zap.String("session_id", id), zap.Error(err))
		}
	}
}
