package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/hitdex/internal/db"
	"github.com/kailas-cloud/hitdex/internal/domain"
	"github.com/kailas-cloud/hitdex/internal/domain/result"
)

// --- Mocks ---

type mockKVStore struct {
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newMockKVStore() *mockKVStore {
	return &mockKVStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *mockKVStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockKVStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

// --- Tests ---

func TestSaveLoad(t *testing.T) {
	kv := newMockKVStore()
	repo := New(kv, "", 6*time.Hour)

	snap := result.Snapshot{
		SessionID: "s1",
		Query:     "song",
		Stats:     result.Stats{Rows: 1, TotalSources: 2},
		Rows:      []result.Row{{Position: 0, Seq: 1, Name: "Song", Extension: "mp3", Size: 1000, Locations: 2}},
	}
	if err := repo.Save(context.Background(), snap); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if kv.ttls["hitdex:archive:s1"] != 6*time.Hour {
		t.Errorf("ttl = %v", kv.ttls["hitdex:archive:s1"])
	}

	got, err := repo.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Query != "song" || len(got.Rows) != 1 || got.Rows[0].Locations != 2 || got.Stats.TotalSources != 2 {
		t.Errorf("loaded = %+v", got)
	}
}

func TestLoad_NotFound(t *testing.T) {
	repo := New(newMockKVStore(), "app:", 0)
	_, err := repo.Load(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("store failure", func(t *testing.T) {
		kv := newMockKVStore()
		kv.getErr = &db.Error{Op: db.OpGet, Err: errors.New("conn reset")}
		_, err := New(kv, "", 0).Load(context.Background(), "s1")
		if err == nil || errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected a storage error, got %v", err)
		}
	})
	t.Run("corrupt value", func(t *testing.T) {
		kv := newMockKVStore()
		kv.data["hitdex:archive:s1"] = []byte("{not json")
		if _, err := New(kv, "", 0).Load(context.Background(), "s1"); err == nil {
			t.Fatal("expected decode error")
		}
	})
}

func TestSave_StoreError(t *testing.T) {
	kv := newMockKVStore()
	kv.setErr = errors.New("OOM")
	if err := New(kv, "x:", time.Minute).Save(context.Background(), result.Snapshot{SessionID: "s1"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestKeyPrefix(t *testing.T) {
	kv := newMockKVStore()
	if err := New(kv, "tenant:", 0).Save(context.Background(), result.Snapshot{SessionID: "abc"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok := kv.data["tenant:archive:abc"]; !ok {
		t.Errorf("keys = %v", kv.data)
	}
}
