// Package session runs one search session's model context.
//
// Every session owns a grouper, a filter pipeline and an indexed store, all confined to a
// single goroutine. Producers hand hits to that goroutine through an ordered, non-blocking
// queue; queries and mutations are queued on the same path and wait for their result.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/hitdex/internal/domain"
	"github.com/kailas-cloud/hitdex/internal/domain/event"
	"github.com/kailas-cloud/hitdex/internal/domain/group"
	"github.com/kailas-cloud/hitdex/internal/domain/hit"
	"github.com/kailas-cloud/hitdex/internal/grouper"
	"github.com/kailas-cloud/hitdex/internal/logger"
	"github.com/kailas-cloud/hitdex/internal/match"
	"github.com/kailas-cloud/hitdex/internal/metrics"
	"github.com/kailas-cloud/hitdex/internal/pipeline"
	"github.com/kailas-cloud/hitdex/internal/store"
)

// Options configures a session's engine.
type Options struct {
	FilterDepth  int
	MaxDistance  int
	Ratio        float64
	VerifyIndex  bool
	EventLogSize int
	// Listener, when set, observes every notification on the model goroutine.
	Listener event.Listener
	Logger   *zap.Logger
	Now      func() time.Time
}

func (o *Options) applyDefaults() {
	if o.FilterDepth <= 0 {
		o.FilterDepth = pipeline.DefaultDepth
	}
	if o.MaxDistance <= 0 {
		o.MaxDistance = match.DefaultMaxDistance
	}
	if o.Ratio <= 0 {
		o.Ratio = match.DefaultRatio
	}
	if o.EventLogSize <= 0 {
		o.EventLogSize = 1024
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Session is one search. Its exported methods are goroutine-safe.
type Session struct {
	id      string
	query   string
	created time.Time
	logger  *zap.Logger
	now     func() time.Time
	verify  bool
	extra   event.Listener
	events  *event.Log

	stopped    atomic.Bool
	lastActive atomic.Int64

	// Owned by the model goroutine.
	seq       uint64
	grouper   *grouper.Grouper
	pipeline  *pipeline.Pipeline
	groups    map[uint64]*group.Group
	replaying bool

	mu      sync.Mutex
	pending []func()
	closed  bool
	wake    chan struct{}
	quit    chan struct{}
	done    chan struct{}
}

// New creates a session and starts its model goroutine. Close releases it.
func New(id, query string, opts Options) *Session {
	opts.applyDefaults()

	s := &Session{
		id:      id,
		query:   query,
		created: opts.Now(),
		logger:  logger.ForSession(opts.Logger, id),
		now:     opts.Now,
		verify:  opts.VerifyIndex,
		extra:   opts.Listener,
		events:  event.NewLog(opts.EventLogSize),
		groups:  make(map[uint64]*group.Group),
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.grouper = grouper.New(match.New(opts.MaxDistance, opts.Ratio)).
		WithOutcomeObserver(s.observeOutcome)
	s.pipeline = pipeline.New(store.New(event.ListenerFunc(s.notify)), opts.FilterDepth)
	s.touch()

	go s.run()
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Query returns the search text the session was started with.
func (s *Session) Query() string { return s.query }

// CreatedAt returns the creation time.
func (s *Session) CreatedAt() time.Time { return s.created }

// LastActive returns the time of the last ingest or query.
func (s *Session) LastActive() time.Time { return time.Unix(0, s.lastActive.Load()) }

// Stopped reports whether the stopped sentinel is set.
func (s *Session) Stopped() bool { return s.stopped.Load() }

// Events returns the session's notification log.
func (s *Session) Events() *event.Log { return s.events }

// Stop sets the stopped sentinel. Hits arriving afterwards, including hits still queued,
// are dropped. Queries keep working.
func (s *Session) Stop() {
	if s.stopped.CompareAndSwap(false, true) {
		s.logger.Info("session stopped")
	}
}

// Ingest queues hits for the model goroutine without waiting for them to be grouped.
// Returns domain.ErrSessionStopped if the session is stopped.
func (s *Session) Ingest(hits ...hit.Hit) (int, error) {
	if s.stopped.Load() {
		metrics.HitsTotal.WithLabelValues(metrics.HitStopped).Add(float64(len(hits)))
		return 0, domain.ErrSessionStopped
	}
	if len(hits) == 0 {
		return 0, nil
	}
	s.touch()

	batch := make([]hit.Hit, len(hits))
	copy(batch, hits)
	if !s.enqueue(func() { s.ingest(batch) }) {
		return 0, domain.ErrSessionClosed
	}
	return len(batch), nil
}

// Close stops the model goroutine after draining queued work. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.quit)
	<-s.done
}

// Task states. A queued task runs only if it leaves pending before its caller gives up.
const (
	taskPending int32 = iota
	taskRunning
	taskAbandoned
)

// do runs fn on the model goroutine and waits for it. A non-nil error means fn never ran
// and never will: a caller that gives up first abandons the task, and a task that already
// started is waited for.
func (s *Session) do(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck // caller's own context error
	}
	s.touch()

	var state atomic.Int32
	ran := make(chan struct{})
	if !s.enqueue(func() {
		if !state.CompareAndSwap(taskPending, taskRunning) {
			return
		}
		defer close(ran)
		fn()
	}) {
		return domain.ErrSessionClosed
	}

	select {
	case <-ran:
		return nil
	case <-s.done:
		if state.CompareAndSwap(taskPending, taskAbandoned) {
			return domain.ErrSessionClosed
		}
	case <-ctx.Done():
		if state.CompareAndSwap(taskPending, taskAbandoned) {
			return ctx.Err() //nolint:wrapcheck // caller's own context error
		}
	}
	<-ran
	return nil
}

func (s *Session) enqueue(task func()) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.pending = append(s.pending, task)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case <-s.wake:
			s.drain()
		case <-s.quit:
			s.drain()
			return
		}
	}
}

func (s *Session) drain() {
	for {
		s.mu.Lock()
		tasks := s.pending
		s.pending = nil
		s.mu.Unlock()

		if len(tasks) == 0 {
			return
		}
		for _, task := range tasks {
			task()
		}
	}
}

func (s *Session) touch() { s.lastActive.Store(s.now().UnixNano()) }
