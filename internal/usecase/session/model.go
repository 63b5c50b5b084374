package session

import (
	"cmp"
	"slices"

	"go.uber.org/zap"

	"github.com/kailas-cloud/hitdex/internal/domain/event"
	"github.com/kailas-cloud/hitdex/internal/domain/hit"
	"github.com/kailas-cloud/hitdex/internal/match"
	"github.com/kailas-cloud/hitdex/internal/metrics"
)

// Everything in this file runs on the model goroutine.

func (s *Session) ingest(batch []hit.Hit) {
	for _, h := range batch {
		if s.stopped.Load() {
			metrics.HitsTotal.WithLabelValues(metrics.HitStopped).Inc()
			continue
		}
		metrics.HitsTotal.WithLabelValues(metrics.HitAccepted).Inc()

		s.seq++
		if err := s.admit(h.WithSeq(s.seq)); err != nil {
			s.recover(err)
			continue
		}
		s.check()
	}
}

// admit groups one sequenced hit and places its group through the pipeline.
func (s *Session) admit(h hit.Hit) error {
	a := s.grouper.Assign(h)
	if a.Created {
		s.groups[a.Group.Seq()] = a.Group
		if !s.replaying {
			metrics.GroupsCreatedTotal.WithLabelValues(string(a.Path)).Inc()
		}
		_, err := s.pipeline.Admit(a.Group)
		return err //nolint:wrapcheck // pipeline errors carry their own context
	}

	if !s.replaying {
		metrics.MergesTotal.WithLabelValues(string(a.Path)).Inc()
		if a.Merge.Collision {
			metrics.IdentityCollisionsTotal.Inc()
			s.logger.Warn("identity collision",
				zap.String("identity", h.Identity().String()),
				zap.String("baseline_ext", a.Group.Extension()),
				zap.String("hit_ext", h.Extension()),
				zap.Int64("baseline_size", a.Group.Size()),
				zap.Int64("hit_size", h.Size()),
			)
		}
	}
	return s.pipeline.Update(a.Group, a.KeyChanged) //nolint:wrapcheck // see above
}

// rebuild replays the pipeline's own partitions after a filter change.
func (s *Session) rebuild() {
	metrics.FilterRebuildsTotal.Inc()
	s.replaying = true
	err := s.pipeline.Rebuild(replayer{s})
	s.replaying = false
	if err != nil {
		s.recover(err)
		return
	}
	s.check()
}

// recover handles a structural inconsistency: the session is rebuilt from every hit it
// has grouped. A failure during the rebuild stops the session.
func (s *Session) recover(cause error) {
	metrics.IndexInconsistenciesTotal.Inc()
	s.logger.Error("index inconsistency, rebuilding session", zap.Error(cause))

	var hits []hit.Hit
	for _, g := range s.groups {
		hits = append(hits, g.Hits()...)
	}
	slices.SortFunc(hits, func(a, b hit.Hit) int { return cmp.Compare(a.Seq(), b.Seq()) })

	s.pipeline.Clear()
	r := replayer{s}
	r.Reset()

	s.replaying = true
	defer func() { s.replaying = false }()
	for _, h := range hits {
		if err := r.Readmit(h); err != nil {
			s.logger.Error("session rebuild failed, stopping session", zap.Error(err))
			s.stopped.Store(true)
			return
		}
	}
}

// check verifies the side index when index verification is enabled.
func (s *Session) check() {
	if !s.verify {
		return
	}
	if err := s.pipeline.Store().Verify(); err != nil {
		s.recover(err)
	}
}

func (s *Session) notify(e event.Event) {
	if e.Kind == event.RowMoved {
		metrics.RowMovesTotal.Inc()
	}
	s.events.Notify(e)
	if s.extra != nil {
		s.extra.Notify(e)
	}
}

func (s *Session) observeOutcome(o match.Outcome) {
	if !s.replaying {
		metrics.MatchOutcomesTotal.WithLabelValues(o.String()).Inc()
	}
}

// replayer feeds a pipeline rebuild through the session's grouping path.
type replayer struct{ s *Session }

func (r replayer) Reset() {
	r.s.grouper.Reset()
	clear(r.s.groups)
}

func (r replayer) Readmit(h hit.Hit) error { return r.s.admit(h) }
