package filter

import (
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/hitdex/internal/domain"
	"github.com/kailas-cloud/hitdex/internal/domain/group"
	"github.com/kailas-cloud/hitdex/internal/domain/hit"
)

func floatPtr(f float64) *float64 { return &f }

func makeGroup(t *testing.T, name, ext string, size int64, hosts ...string) *group.Group {
	t.Helper()
	var g *group.Group
	for i, host := range hosts {
		h, err := hit.New(hit.Params{
			Name: name, Extension: ext, Size: size, Quality: 2,
			Endpoint: hit.Endpoint{Host: host, Port: 6346},
			Metadata: map[string]string{"genre": "jazz"},
		})
		if err != nil {
			t.Fatalf("hit.New: %v", err)
		}
		if i == 0 {
			g = group.New(0, h)
			continue
		}
		g.Merge(h)
	}
	return g
}

func mustMatch(t *testing.T, key, val string) Condition {
	t.Helper()
	c, err := NewMatch(key, val)
	if err != nil {
		t.Fatalf("NewMatch(%q): %v", key, err)
	}
	return c
}

func mustRange(t *testing.T, key string, gt, gte, lt, lte *float64) Condition {
	t.Helper()
	r, err := NewRangeFilter(gt, gte, lt, lte)
	if err != nil {
		t.Fatalf("NewRangeFilter: %v", err)
	}
	c, err := NewRange(key, r)
	if err != nil {
		t.Fatalf("NewRange(%q): %v", key, err)
	}
	return c
}

// --- Range tests ---

func TestNewRangeFilter_Valid(t *testing.T) {
	tests := []struct {
		name             string
		gt, gte, lt, lte *float64
	}{
		{"gt only", floatPtr(1), nil, nil, nil},
		{"gte only", nil, floatPtr(0), nil, nil},
		{"lt only", nil, nil, floatPtr(10), nil},
		{"lte only", nil, nil, nil, floatPtr(100)},
		{"gt+lt", floatPtr(0), nil, floatPtr(10), nil},
		{"gte+lte", nil, floatPtr(0), nil, floatPtr(10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRangeFilter(tt.gt, tt.gte, tt.lt, tt.lte)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (r.GT() == nil) != (tt.gt == nil) {
				t.Error("GT() mismatch")
			}
			if (r.GTE() == nil) != (tt.gte == nil) {
				t.Error("GTE() mismatch")
			}
			if (r.LT() == nil) != (tt.lt == nil) {
				t.Error("LT() mismatch")
			}
			if (r.LTE() == nil) != (tt.lte == nil) {
				t.Error("LTE() mismatch")
			}
		})
	}
}

func TestNewRangeFilter_Invalid(t *testing.T) {
	tests := []struct {
		name             string
		gt, gte, lt, lte *float64
		want             string
	}{
		{"no boundary", nil, nil, nil, nil, "at least one"},
		{"gt and gte", floatPtr(1), floatPtr(1), nil, nil, "gt and gte"},
		{"lt and lte", nil, nil, floatPtr(1), floatPtr(1), "lt and lte"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRangeFilter(tt.gt, tt.gte, tt.lt, tt.lte)
			if !errors.Is(err, domain.ErrInvalidFilter) {
				t.Fatalf("expected ErrInvalidFilter, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q", err)
			}
		})
	}
}

func TestRangeContains(t *testing.T) {
	r, _ := NewRangeFilter(floatPtr(1), nil, nil, floatPtr(3))
	for v, want := range map[float64]bool{1: false, 1.5: true, 3: true, 3.1: false} {
		if got := r.Contains(v); got != want {
			t.Errorf("Contains(%v) = %v, want %v", v, got, want)
		}
	}
}

// --- Condition tests ---

func TestNewMatch_Keys(t *testing.T) {
	for _, key := range []string{"extension", "name", "identity", "meta.genre"} {
		if _, err := NewMatch(key, "x"); err != nil {
			t.Errorf("NewMatch(%q): %v", key, err)
		}
	}
	for _, key := range []string{"", "size", "meta.", "bogus"} {
		if _, err := NewMatch(key, "x"); !errors.Is(err, domain.ErrInvalidFilter) {
			t.Errorf("NewMatch(%q): expected ErrInvalidFilter, got %v", key, err)
		}
	}
	if _, err := NewMatch("name", ""); err == nil {
		t.Error("expected error for empty match value")
	}
}

func TestNewRange_Keys(t *testing.T) {
	r, _ := NewRangeFilter(floatPtr(0), nil, nil, nil)
	if _, err := NewRange("locations", r); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := NewRange("extension", r); !errors.Is(err, domain.ErrInvalidFilter) {
		t.Errorf("expected ErrInvalidFilter, got %v", err)
	}
}

// --- Expression tests ---

func TestNewExpression_TooMany(t *testing.T) {
	many := make([]Condition, MaxConditionsPerGroup+1)
	if _, err := NewExpression(many, nil, nil); err == nil {
		t.Error("expected error for too many must conditions")
	}
	if _, err := NewExpression(nil, many, nil); err == nil {
		t.Error("expected error for too many should conditions")
	}
	if _, err := NewExpression(nil, nil, many); err == nil {
		t.Error("expected error for too many must_not conditions")
	}
}

func TestAccept(t *testing.T) {
	song := makeGroup(t, "Blue Song", "mp3", 1000, "h1", "h2")
	movie := makeGroup(t, "Movie", "avi", 9000, "h3")

	tests := []struct {
		name      string
		must      []Condition
		should    []Condition
		mustNot   []Condition
		wantSong  bool
		wantMovie bool
	}{
		{"empty", nil, nil, nil, true, true},
		{"extension", []Condition{mustMatch(t, "extension", "MP3")}, nil, nil, true, false},
		{"name substring", []Condition{mustMatch(t, "name", "blue")}, nil, nil, true, false},
		{"locations", []Condition{mustRange(t, "locations", nil, floatPtr(2), nil, nil)}, nil, nil, true, false},
		{"size must_not", nil, nil, []Condition{mustRange(t, "size", floatPtr(5000), nil, nil, nil)}, true, false},
		{"should", nil, []Condition{
			mustMatch(t, "extension", "avi"),
			mustMatch(t, "extension", "ogg"),
		}, nil, false, true},
		{"metadata", []Condition{mustMatch(t, "meta.genre", "jazz")}, nil, nil, true, true},
		{"identity absent", []Condition{mustMatch(t, "identity", "X")}, nil, nil, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewExpression(tt.must, tt.should, tt.mustNot)
			if err != nil {
				t.Fatalf("NewExpression: %v", err)
			}
			if got := e.Accept(song); got != tt.wantSong {
				t.Errorf("song: got %v, want %v", got, tt.wantSong)
			}
			if got := e.Accept(movie); got != tt.wantMovie {
				t.Errorf("movie: got %v, want %v", got, tt.wantMovie)
			}
		})
	}
}

func TestStringIsCanonical(t *testing.T) {
	a, _ := NewExpression([]Condition{mustMatch(t, "extension", "mp3")}, nil,
		[]Condition{mustRange(t, "size", nil, nil, floatPtr(10), nil)})
	b, _ := NewExpression([]Condition{mustMatch(t, "extension", "mp3")}, nil,
		[]Condition{mustRange(t, "size", nil, nil, floatPtr(10), nil)})
	c, _ := NewExpression([]Condition{mustMatch(t, "extension", "ogg")}, nil, nil)

	if a.Name() != b.Name() {
		t.Errorf("equal expressions must share a name: %q vs %q", a.Name(), b.Name())
	}
	if a.Name() == c.Name() {
		t.Errorf("different expressions must differ: %q", a.Name())
	}
	want := `must[extension="mp3"] must_not[size(<10)]`
	if a.String() != want {
		t.Errorf("String() = %q, want %q", a.String(), want)
	}
	if (Expression{}).String() != "" {
		t.Error("empty expression must have empty name")
	}
}
