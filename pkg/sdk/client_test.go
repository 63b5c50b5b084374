package hitdex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"github.com/kailas-cloud/hitdex/internal/domain/result"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- Mocks ---

type mockArchive struct {
	saved map[string]result.Snapshot
}

func (m *mockArchive) Save(_ context.Context, snap result.Snapshot) error {
	if m.saved == nil {
		m.saved = make(map[string]result.Snapshot)
	}
	m.saved[snap.SessionID] = snap
	return nil
}

func (m *mockArchive) Load(_ context.Context, id string) (result.Snapshot, error) {
	snap, ok := m.saved[id]
	if !ok {
		return result.Snapshot{}, ErrNotFound
	}
	return snap, nil
}

// --- Tests ---

func newClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	c, err := New(context.Background(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func song(host string) Hit {
	return Hit{Name: "Free Software Song.ogg", Size: 5 << 20, Host: host, Port: 6346}
}

func TestSearch_GroupSortFilter(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	s, err := c.Start(ctx, "free software")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	res, err := s.Ingest(ctx,
		song("10.0.0.1"),
		song("10.0.0.2"),
		Hit{Name: "free software song", Extension: "mp3", Size: 3 << 20, Host: "10.0.0.3", Port: 6346},
		Hit{Name: "", Size: 1, Host: "10.0.0.4"},
	)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Accepted != 3 || res.Malformed != 1 {
		t.Errorf("IngestResult = %+v, want 3 accepted and 1 malformed", res)
	}

	if err := s.SetSort(ctx, SortByLocations, false); err != nil {
		t.Fatalf("SetSort: %v", err)
	}
	rows, total, err := s.Rows(ctx, 0, 10)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if total != 2 || rows[0].Locations != 2 || rows[0].Extension != "ogg" {
		t.Fatalf("rows = %+v, want the ogg row with 2 locations first", rows)
	}

	if err := s.SetFilter(ctx, 0, Filter{Must: []Condition{Match("extension", "mp3")}}); err != nil {
		t.Fatalf("SetFilter: %v", err)
	}
	if _, total, _ = s.Rows(ctx, 0, 10); total != 1 {
		t.Errorf("filtered total = %d, want 1", total)
	}
	if err := s.ClearFilter(ctx, 0); err != nil {
		t.Fatalf("ClearFilter: %v", err)
	}
	if _, total, _ = s.Rows(ctx, 0, 10); total != 2 {
		t.Errorf("total after clear = %d, want 2", total)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalSources != 3 || st.Hits != 3 {
		t.Errorf("stats = %+v, want 3 sources over 3 hits", st)
	}

	events, last, err := s.Events(0)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) == 0 || last != events[len(events)-1].Seq {
		t.Errorf("events = %v, last = %d", events, last)
	}
}

func TestSearch_Validation(t *testing.T) {
	ctx := context.Background()
	s, _ := newClient(t).Start(ctx, "")

	if err := s.SetSort(ctx, "color", true); !errors.Is(err, ErrInvalidSort) {
		t.Errorf("SetSort error = %v, want ErrInvalidSort", err)
	}
	if err := s.SetFilter(ctx, 7, Filter{}); !errors.Is(err, ErrInvalidSlot) {
		t.Errorf("SetFilter error = %v, want ErrInvalidSlot", err)
	}
	err := s.SetFilter(ctx, 0, Filter{Must: []Condition{AtLeast("name", 1)}})
	if !errors.Is(err, ErrInvalidFilter) {
		t.Errorf("SetFilter error = %v, want ErrInvalidFilter", err)
	}
	if _, err := s.RemoveAt(ctx, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("RemoveAt error = %v, want ErrNotFound", err)
	}
}

func TestSearch_StopAndRemove(t *testing.T) {
	ctx := context.Background()
	archive := &mockArchive{}
	c := newClient(t, withArchive(archive))

	s, _ := c.Start(ctx, "q")
	if _, err := s.Ingest(ctx, song("10.0.0.1")); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	res, err := s.Ingest(ctx, song("10.0.0.2"))
	if err != nil || !res.Stopped {
		t.Errorf("Ingest after stop = %+v, %v; want stopped no-op", res, err)
	}

	if err := c.Remove(ctx, s.ID()); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if c.Sessions() != 0 {
		t.Errorf("Sessions = %d, want 0", c.Sessions())
	}
	if _, err := c.Search(s.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Search error = %v, want ErrSessionNotFound", err)
	}

	snap, err := c.Archived(ctx, s.ID())
	if err != nil {
		t.Fatalf("Archived: %v", err)
	}
	if len(snap.Rows) != 1 || snap.Rows[0].Locations != 1 {
		t.Errorf("snapshot rows = %+v, want one row with 1 location", snap.Rows)
	}
}

func TestClient_ArchiveDisabled(t *testing.T) {
	c := newClient(t)
	if _, err := c.Archived(context.Background(), "x"); !errors.Is(err, ErrArchiveDisabled) {
		t.Errorf("Archived error = %v, want ErrArchiveDisabled", err)
	}
}

func TestClient_Health(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	_, _ = c.Start(ctx, "q")

	h := c.Health(ctx)
	if h.Status != "ok" || h.Sessions != 1 {
		t.Errorf("Health = %+v, want ok with 1 session", h)
	}
	if _, ok := h.Checks["database"]; ok {
		t.Error("no database check expected without a database")
	}
}

func TestClient_Observability(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	c := newClient(t, WithPrometheus(reg), WithLogger(logger))
	s, _ := c.Start(ctx, "q")
	_ = s.SetSort(ctx, "color", true)

	m, err := newSDKMetrics(reg)
	if err != nil {
		t.Fatalf("newSDKMetrics: %v", err)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("start", "ok")); got != 1 {
		t.Errorf("start ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("set_sort", "invalid")); got != 1 {
		t.Errorf("set_sort invalid = %v, want 1", got)
	}
	if !strings.Contains(buf.String(), "operation rejected") {
		t.Errorf("log = %q, want a rejected operation line", buf.String())
	}
}

func TestClient_IngestObservability(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()

	c := newClient(t, WithPrometheus(reg))
	s, _ := c.Start(ctx, "free software")
	if _, err := s.Ingest(ctx, song("10.0.0.1"), song("10.0.0.2"), Hit{Name: "", Size: 1, Host: "10.0.0.4"}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	_, _ = s.Ingest(ctx, song("10.0.0.3"))

	m, err := newSDKMetrics(reg)
	if err != nil {
		t.Fatalf("newSDKMetrics: %v", err)
	}
	if got := testutil.ToFloat64(m.hits.WithLabelValues("accepted")); got != 2 {
		t.Errorf("accepted hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.hits.WithLabelValues("malformed")); got != 1 {
		t.Errorf("malformed hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("ingest", "ok")); got != 1 {
		t.Errorf("ingest ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("ingest", "stopped")); got != 1 {
		t.Errorf("ingest stopped = %v, want 1", got)
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, statusOK},
		{ErrSessionStopped, statusStopped},
		{fmt.Errorf("ingest: %w", ErrSessionClosed), statusStopped},
		{ErrRateLimited, statusRateLimited},
		{ErrSessionNotFound, statusNotFound},
		{ErrInvalidSort, statusInvalid},
		{ErrArchiveDisabled, statusInvalid},
		{context.DeadlineExceeded, statusCanceled},
		{errors.New("disk full"), statusError},
	}
	for _, tt := range tests {
		if got := statusOf(tt.err); got != tt.want {
			t.Errorf("statusOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
