package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"github.com/kailas-cloud/hitdex/internal/domain"
	"github.com/kailas-cloud/hitdex/internal/domain/event"
	"github.com/kailas-cloud/hitdex/internal/domain/filter"
	"github.com/kailas-cloud/hitdex/internal/domain/group"
	"github.com/kailas-cloud/hitdex/internal/domain/hit"
	"github.com/kailas-cloud/hitdex/internal/domain/result"
	"github.com/kailas-cloud/hitdex/internal/metrics"
	"github.com/kailas-cloud/hitdex/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- Helpers ---

func newSession(t *testing.T, opts Options) *Session {
	t.Helper()
	s := New("s-test", "song", opts)
	t.Cleanup(s.Close)
	return s
}

func mkHit(t *testing.T, id, name, ext string, size int64, host string, port int) hit.Hit {
	t.Helper()
	h, err := hit.New(hit.Params{
		Identity:  id,
		Name:      name,
		Extension: ext,
		Size:      size,
		Endpoint:  hit.Endpoint{Host: host, Port: port},
	})
	if err != nil {
		t.Fatalf("hit.New: %v", err)
	}
	return h
}

func ingest(t *testing.T, s *Session, hits ...hit.Hit) {
	t.Helper()
	if _, err := s.Ingest(hits...); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
}

func rowCount(t *testing.T, s *Session) int {
	t.Helper()
	n, err := s.RowCount(context.Background())
	if err != nil {
		t.Fatalf("RowCount: %v", err)
	}
	return n
}

func extFilter(t *testing.T, ext string) filter.Expression {
	t.Helper()
	c, err := filter.NewMatch(filter.KeyExtension, ext)
	if err != nil {
		t.Fatalf("NewMatch: %v", err)
	}
	e, err := filter.NewExpression([]filter.Condition{c}, nil, nil)
	if err != nil {
		t.Fatalf("NewExpression: %v", err)
	}
	return e
}

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) Notify(e event.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) take() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

// --- Tests ---

func TestSession_EndToEndScenario(t *testing.T) {
	s := newSession(t, Options{})
	ctx := context.Background()

	ingest(t, s,
		mkHit(t, "", "Song", "mp3", 1000, "h1", 1),
		mkHit(t, "", "Song", "mp3", 1000, "h2", 2),
		mkHit(t, "X", "Other", "ogg", 500, "h3", 3),
	)

	if n := rowCount(t, s); n != 2 {
		t.Fatalf("rowCount = %d, want 2", n)
	}
	first, err := s.GroupAt(ctx, 0)
	if err != nil {
		t.Fatalf("GroupAt(0): %v", err)
	}
	if first.Locations != 2 || first.LocationsLabel != "2 locations" {
		t.Errorf("first group: locations=%d label=%q", first.Locations, first.LocationsLabel)
	}
	second, err := s.GroupAt(ctx, 1)
	if err != nil {
		t.Fatalf("GroupAt(1): %v", err)
	}
	if second.Locations != 1 || second.LocationsLabel != "" || second.Identity != "X" {
		t.Errorf("second group: %+v", second)
	}

	if _, err := s.GroupAt(ctx, 2); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if total, _ := s.TotalSources(ctx); total != 3 {
		t.Errorf("totalSources = %d, want 3", total)
	}
}

func TestSession_IdentityGrouping(t *testing.T) {
	s := newSession(t, Options{})

	before := rowCount(t, s)
	ingest(t, s,
		mkHit(t, "urn:sha1:ABC", "one", "bin", 10, "a", 1),
		mkHit(t, "abc", "two", "bin", 10, "b", 1),
	)
	if n := rowCount(t, s); n != before+1 {
		t.Errorf("rowCount = %d, want %d", n, before+1)
	}

	pos, ok, err := s.PositionOfIdentity(context.Background(), "urn:sha1:abc")
	if err != nil || !ok || pos != 0 {
		t.Errorf("PositionOfIdentity = %d, %v, %v", pos, ok, err)
	}
	if _, ok, _ := s.PositionOfIdentity(context.Background(), ""); ok {
		t.Error("empty identity must not resolve")
	}
}

func TestSession_StopIsAbsolute(t *testing.T) {
	s := newSession(t, Options{})
	ingest(t, s, mkHit(t, "A", "a", "x", 1, "h", 1))

	before := rowCount(t, s)
	last := s.Events().Last()

	s.Stop()
	n, err := s.Ingest(mkHit(t, "B", "b", "x", 1, "h", 2))
	if !errors.Is(err, domain.ErrSessionStopped) || n != 0 {
		t.Fatalf("Ingest after stop = %d, %v", n, err)
	}

	if got := rowCount(t, s); got != before {
		t.Errorf("rowCount changed after stop: %d -> %d", before, got)
	}
	if s.Events().Last() != last {
		t.Error("notifications emitted after stop")
	}
	if !s.Stopped() {
		t.Error("Stopped must report true")
	}
}

func TestSession_StopDropsQueuedHits(t *testing.T) {
	s := newSession(t, Options{})

	gate := make(chan struct{})
	if !s.enqueue(func() { <-gate }) {
		t.Fatal("enqueue failed")
	}
	ingest(t, s, mkHit(t, "A", "a", "x", 1, "h", 1))
	s.Stop()
	close(gate)

	if n := rowCount(t, s); n != 0 {
		t.Errorf("queued hit merged after stop: rowCount = %d", n)
	}
	if s.Events().Last() != 0 {
		t.Error("no notification may be emitted")
	}
}

func TestSession_MoveMinimality(t *testing.T) {
	rec := &recorder{}
	s := newSession(t, Options{Listener: rec})
	ctx := context.Background()

	if err := s.SetSort(ctx, store.ByLocations, false); err != nil {
		t.Fatalf("SetSort: %v", err)
	}
	ingest(t, s,
		mkHit(t, "A", "a", "x", 1, "h", 1),
		mkHit(t, "B", "b", "x", 2, "h", 2),
		mkHit(t, "C", "c", "x", 3, "h", 3),
	)
	_ = rowCount(t, s)
	rec.take()

	ingest(t, s, mkHit(t, "B", "b", "x", 2, "h", 4))
	_ = rowCount(t, s)

	got := rec.take()
	want := []event.Event{event.Moved(1, 0)}
	if !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if pos, ok, _ := s.PositionOfIdentity(ctx, "B"); !ok || pos != 0 {
		t.Errorf("B at %d, want 0", pos)
	}
	if pos, _, _ := s.PositionOfIdentity(ctx, "A"); pos != 1 {
		t.Errorf("A at %d, want 1", pos)
	}
}

func TestSession_DuplicateEndpointIsIdempotent(t *testing.T) {
	rec := &recorder{}
	s := newSession(t, Options{Listener: rec})

	ingest(t, s, mkHit(t, "A", "a", "x", 1, "h", 1))
	_ = rowCount(t, s)
	rec.take()

	ingest(t, s, mkHit(t, "A", "a", "x", 1, "h", 1))
	row, err := s.GroupAt(context.Background(), 0)
	if err != nil {
		t.Fatalf("GroupAt: %v", err)
	}
	if row.Locations != 1 || row.Hits != 2 {
		t.Errorf("locations=%d hits=%d", row.Locations, row.Hits)
	}
	if got := rec.take(); !slices.Equal(got, []event.Event{event.Updated(0, 0)}) {
		t.Errorf("events = %v", got)
	}
}

func TestSession_FilterLosslessness(t *testing.T) {
	s := newSession(t, Options{})
	ctx := context.Background()

	ingest(t, s,
		mkHit(t, "", "Song", "mp3", 1000, "h1", 1),
		mkHit(t, "X", "Other", "ogg", 500, "h3", 3),
		mkHit(t, "", "Song", "mp3", 1000, "h2", 2),
		mkHit(t, "Y", "Clip", "avi", 700, "h4", 4),
	)
	before, _, err := s.Rows(ctx, 0, 0)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	total, _ := s.TotalSources(ctx)
	visible, _ := s.VisibleSources(ctx)

	changed, err := s.SetFilter(ctx, 0, extFilter(t, "mp3"))
	if err != nil || !changed {
		t.Fatalf("SetFilter = %v, %v", changed, err)
	}
	if n := rowCount(t, s); n != 1 {
		t.Errorf("filtered rowCount = %d, want 1", n)
	}
	if got, _ := s.TotalSources(ctx); got != total {
		t.Errorf("totalSources = %d, want %d", got, total)
	}
	if got, _ := s.VisibleSources(ctx); got != visible-2 {
		t.Errorf("visibleSources = %d, want %d", got, visible-2)
	}

	changed, err = s.SetFilter(ctx, 0, extFilter(t, "mp3"))
	if err != nil || changed {
		t.Errorf("same filter must not rebuild: %v, %v", changed, err)
	}

	if _, err := s.SetFilter(ctx, 0, nil); err != nil {
		t.Fatalf("clear filter: %v", err)
	}
	after, _, _ := s.Rows(ctx, 0, 0)
	if !slices.Equal(rowKeys(before), rowKeys(after)) {
		t.Errorf("rows differ after clearing the filter:\nbefore %v\nafter  %v", before, after)
	}

	st, _ := s.Stats(ctx)
	if st.Filters[0] != "" || len(st.Filters) != 3 || st.Hidden != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func rowKeys(rows []result.Row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, fmt.Sprintf("%d:%d:%s:%d:%d", r.Position, r.Seq, r.Name, r.Locations, r.Hits))
	}
	return out
}

func TestSession_InvalidSlot(t *testing.T) {
	s := newSession(t, Options{FilterDepth: 2})
	_, err := s.SetFilter(context.Background(), 2, extFilter(t, "mp3"))
	if !errors.Is(err, domain.ErrInvalidSlot) {
		t.Errorf("expected ErrInvalidSlot, got %v", err)
	}
}

func TestSession_RemoveAtAndClear(t *testing.T) {
	rec := &recorder{}
	s := newSession(t, Options{Listener: rec})
	ctx := context.Background()

	ingest(t, s,
		mkHit(t, "", "Song", "mp3", 1000, "h1", 1),
		mkHit(t, "X", "Other", "ogg", 500, "h2", 1),
		mkHit(t, "", "Tune", "mp3", 40, "h3", 1),
	)
	first, _ := s.GroupAt(ctx, 0)
	rec.take()

	removed, err := s.RemoveAt(ctx, 0)
	if err != nil {
		t.Fatalf("RemoveAt: %v", err)
	}
	if removed.Seq != first.Seq {
		t.Errorf("removed seq %d, want %d", removed.Seq, first.Seq)
	}
	if got := rec.take(); !slices.Equal(got, []event.Event{event.Removed(0, 0)}) {
		t.Errorf("events = %v", got)
	}
	if _, ok, _ := s.PositionOf(ctx, first.Seq); ok {
		t.Error("removed group must not resolve")
	}
	if pos, ok, _ := s.PositionOfIdentity(ctx, "X"); !ok || pos != 0 {
		t.Errorf("X at %d after removal, want 0", pos)
	}
	if _, err := s.RemoveAt(ctx, 5); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// A removed approximate group no longer absorbs lookalikes.
	ingest(t, s, mkHit(t, "", "Song", "mp3", 1000, "h4", 1))
	if n := rowCount(t, s); n != 3 {
		t.Errorf("rowCount = %d, want 3", n)
	}

	rec.take()
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n := rowCount(t, s); n != 0 {
		t.Errorf("rowCount after clear = %d", n)
	}
	if got := rec.take(); !slices.Equal(got, []event.Event{event.Removed(0, 2)}) {
		t.Errorf("clear events = %v", got)
	}
}

func TestSession_RowsPaging(t *testing.T) {
	s := newSession(t, Options{})
	for i := range 5 {
		ingest(t, s, mkHit(t, fmt.Sprintf("ID%d", i), "n", "x", int64(i+1), "h", i+1))
	}

	rows, total, err := s.Rows(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if total != 5 || len(rows) != 2 || rows[0].Position != 1 || rows[1].Identity != "ID2" {
		t.Errorf("rows=%v total=%d", rows, total)
	}
	rows, _, _ = s.Rows(context.Background(), 4, 10)
	if len(rows) != 1 {
		t.Errorf("tail page has %d rows", len(rows))
	}
}

func TestSession_SortChangeEmitsUpdate(t *testing.T) {
	rec := &recorder{}
	s := newSession(t, Options{Listener: rec})
	ctx := context.Background()

	ingest(t, s,
		mkHit(t, "A", "a", "x", 5, "h", 1),
		mkHit(t, "B", "b", "x", 9, "h", 2),
	)
	_ = rowCount(t, s)
	rec.take()

	if err := s.SetSort(ctx, store.BySize, false); err != nil {
		t.Fatalf("SetSort: %v", err)
	}
	if err := s.SetSort(ctx, store.BySize, false); err != nil {
		t.Fatalf("SetSort: %v", err)
	}
	if got := rec.take(); !slices.Equal(got, []event.Event{event.Updated(0, 1)}) {
		t.Errorf("events = %v", got)
	}
	row, _ := s.GroupAt(ctx, 0)
	if row.Identity != "B" {
		t.Errorf("largest first expected, got %q", row.Identity)
	}
}

func TestSession_IdentityCollision(t *testing.T) {
	s := newSession(t, Options{})
	before := testutil.ToFloat64(metrics.IdentityCollisionsTotal)

	ingest(t, s,
		mkHit(t, "Z", "Movie", "avi", 100, "h1", 1),
		mkHit(t, "Z", "Movie", "mkv", 999, "h2", 1),
	)
	row, err := s.GroupAt(context.Background(), 0)
	if err != nil {
		t.Fatalf("GroupAt: %v", err)
	}
	if !row.Collision || row.Extension != "avi" || row.Size != 100 || row.Locations != 2 {
		t.Errorf("row = %+v", row)
	}
	if got := testutil.ToFloat64(metrics.IdentityCollisionsTotal); got != before+1 {
		t.Errorf("collisions = %f, want %f", got, before+1)
	}
}

func TestSession_InconsistencyRebuilds(t *testing.T) {
	s := newSession(t, Options{VerifyIndex: true})
	ctx := context.Background()
	before := testutil.ToFloat64(metrics.IndexInconsistenciesTotal)

	ingest(t, s,
		mkHit(t, "X", "Other", "ogg", 500, "h1", 1),
		mkHit(t, "", "Song", "mp3", 1000, "h2", 1),
	)

	stray := mkHit(t, "X", "Other", "ogg", 500, "h9", 1).WithSeq(99)
	if err := s.do(ctx, func() {
		g := group.New(stray.Seq(), stray)
		s.groups[g.Seq()] = g
		if _, err := s.pipeline.Admit(g); err != nil {
			s.recover(err)
		}
	}); err != nil {
		t.Fatalf("do: %v", err)
	}

	if got := testutil.ToFloat64(metrics.IndexInconsistenciesTotal); got != before+1 {
		t.Errorf("inconsistencies = %f, want %f", got, before+1)
	}
	if n := rowCount(t, s); n != 2 {
		t.Fatalf("rowCount = %d, want 2", n)
	}
	pos, ok, _ := s.PositionOfIdentity(ctx, "X")
	if !ok {
		t.Fatal("X must be indexed after the rebuild")
	}
	row, _ := s.GroupAt(ctx, pos)
	if row.Locations != 2 {
		t.Errorf("rebuilt X has %d locations, want 2", row.Locations)
	}
	if s.Stopped() {
		t.Error("a successful rebuild must keep the session running")
	}
}

func TestSession_Snapshot(t *testing.T) {
	s := newSession(t, Options{})
	ctx := context.Background()
	ingest(t, s,
		mkHit(t, "", "Song", "mp3", 1000, "h1", 1),
		mkHit(t, "X", "Other", "ogg", 500, "h2", 1),
	)
	if _, err := s.SetFilter(ctx, 1, extFilter(t, "ogg")); err != nil {
		t.Fatalf("SetFilter: %v", err)
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.SessionID != "s-test" || snap.Query != "song" {
		t.Errorf("snapshot header = %+v", snap)
	}
	if len(snap.Rows) != 1 || len(snap.Hidden) != 1 || snap.Hidden[0].Position != -1 {
		t.Errorf("rows=%v hidden=%v", snap.Rows, snap.Hidden)
	}
	if snap.Stats.Hits != 2 || snap.Stats.TotalSources != 2 {
		t.Errorf("stats = %+v", snap.Stats)
	}
}

func TestSession_Close(t *testing.T) {
	s := New("s-close", "", Options{})
	ingest(t, s, mkHit(t, "A", "a", "x", 1, "h", 1))
	s.Close()
	s.Close()

	if _, err := s.RowCount(context.Background()); !errors.Is(err, domain.ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	if _, err := s.Ingest(mkHit(t, "B", "b", "x", 1, "h", 2)); !errors.Is(err, domain.ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}

func TestSession_ContextCancel(t *testing.T) {
	s := newSession(t, Options{})
	gate := make(chan struct{})
	s.enqueue(func() { <-gate })
	defer close(gate)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.RowCount(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// blockModel parks the model goroutine until the returned release is called.
func blockModel(t *testing.T, s *Session) (release func()) {
	t.Helper()
	gate := make(chan struct{})
	if !s.enqueue(func() { <-gate }) {
		t.Fatal("enqueue failed")
	}
	var once sync.Once
	release = func() { once.Do(func() { close(gate) }) }
	t.Cleanup(release)
	return release
}

func TestSession_CanceledQueryNeverRuns(t *testing.T) {
	s := newSession(t, Options{})
	ingest(t, s, mkHit(t, "A", "a", "x", 1, "h", 1))
	release := blockModel(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	n, err := s.RowCount(ctx)
	if !errors.Is(err, context.DeadlineExceeded) || n != 0 {
		t.Fatalf("RowCount = %d, %v; want 0, DeadlineExceeded", n, err)
	}
	release()

	if n := rowCount(t, s); n != 1 {
		t.Errorf("rowCount = %d, want 1", n)
	}
}

func TestSession_CancelRacingTheModel(t *testing.T) {
	s := newSession(t, Options{})
	ingest(t, s, mkHit(t, "A", "a", "x", 1, "h", 1))

	for i := range 50 {
		release := blockModel(t, s)
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-ctx.Done()
			release()
		}()
		go func() {
			time.Sleep(time.Duration(i%5) * time.Millisecond)
			cancel()
		}()

		// Either the query ran and its result is complete, or it never ran.
		n, err := s.RowCount(ctx)
		switch {
		case err == nil && n != 1:
			t.Fatalf("iteration %d: RowCount = %d with nil error, want 1", i, n)
		case err != nil && (n != 0 || !errors.Is(err, context.Canceled)):
			t.Fatalf("iteration %d: RowCount = %d, %v; want 0, Canceled", i, n, err)
		}
		cancel()
	}
}

func TestSession_CanceledMutationIsNotApplied(t *testing.T) {
	ctx := context.Background()
	mp3 := extFilter(t, "mp3")
	tests := []struct {
		name   string
		mutate func(ctx context.Context, s *Session) error
	}{
		{"remove at", func(ctx context.Context, s *Session) error {
			_, err := s.RemoveAt(ctx, 0)
			return err
		}},
		{"set filter", func(ctx context.Context, s *Session) error {
			_, err := s.SetFilter(ctx, 0, mp3)
			return err
		}},
		{"set sort", func(ctx context.Context, s *Session) error {
			return s.SetSort(ctx, store.BySize, false)
		}},
		{"clear", func(ctx context.Context, s *Session) error {
			return s.Clear(ctx)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession(t, Options{})
			ingest(t, s,
				mkHit(t, "", "Song", "mp3", 10, "h1", 1),
				mkHit(t, "", "Tune", "ogg", 20, "h2", 1),
			)
			before, _, err := s.Rows(ctx, 0, 0)
			if err != nil {
				t.Fatalf("Rows: %v", err)
			}
			last := s.Events().Last()
			release := blockModel(t, s)

			cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
			defer cancel()
			if err := tt.mutate(cctx, s); !errors.Is(err, context.DeadlineExceeded) {
				t.Fatalf("error = %v, want DeadlineExceeded", err)
			}
			go release()

			after, _, err := s.Rows(ctx, 0, 0)
			if err != nil {
				t.Fatalf("Rows: %v", err)
			}
			if !slices.Equal(rowKeys(before), rowKeys(after)) {
				t.Errorf("rows changed by a failed call: %v -> %v", rowKeys(before), rowKeys(after))
			}
			if got := s.Events().Last(); got != last {
				t.Errorf("events advanced from %d to %d", last, got)
			}
		})
	}
}
