package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rmax-ai/meshgraph/pkg/model"
)

func setupTestStore(t *testing.T) (*Store, string, func()) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "meshgraph-store-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "meshgraph.db")
	store, err := NewStore(dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("NewStore failed: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return store, dbPath, cleanup
}

func testModel(ids ...string) *model.Model {
	m := model.NewModel()
	for i, id := range ids {
		n := model.NewNode(id)
		n.AddComponent("svc-" + id)
		m.AddNode(n)
		if i > 0 {
			m.AddEdge(model.Edge{Source: ids[i-1], Target: id, Service: "svc-" + ids[i-1] + "->svc-" + id})
		}
	}
	return m
}

func TestNewStore(t *testing.T) {
	store, dbPath, cleanup := setupTestStore(t)
	defer cleanup()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("database file was not created at %s", dbPath)
	}

	for _, table := range []string{"snapshots", "leases"} {
		var name string
		err := store.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Fatalf("failed to find table %s: %v", table, err)
		}
	}

	var index string
	err := store.db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name='idx_snapshots_ts'").Scan(&index)
	if err != nil {
		t.Errorf("idx_snapshots_ts not found: %v", err)
	}
}

func TestLoadLastModel_Empty(t *testing.T) {
	store, _, cleanup := setupTestStore(t)
	defer cleanup()

	m, err := store.LoadLastModel(context.Background())
	if err != nil {
		t.Fatalf("LoadLastModel failed: %v", err)
	}
	if m != nil {
		t.Errorf("expected nil model on empty store, got %d nodes", m.NodeCount())
	}
}

func TestPersistAndLoadLast(t *testing.T) {
	store, _, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	if _, err := store.PersistModelAt(ctx, testModel("a"), base); err != nil {
		t.Fatalf("PersistModelAt failed: %v", err)
	}

	live := testModel("a", "b")
	live.Nodes["a"].AddSelfEdge("x->y")
	persisted, err := store.PersistModel(ctx, live)
	if err != nil {
		t.Fatalf("PersistModel failed: %v", err)
	}
	if persisted == live {
		t.Errorf("expected persisted model to be a separate value")
	}

	last, err := store.LoadLastModel(ctx)
	if err != nil {
		t.Fatalf("LoadLastModel failed: %v", err)
	}
	if last.NodeCount() != 2 || last.EdgeCount() != 1 {
		t.Errorf("expected latest snapshot with 2 nodes and 1 edge, got %d and %d", last.NodeCount(), last.EdgeCount())
	}
	if !last.Nodes["a"].SelfEdges.Has("x->y") {
		t.Errorf("expected self-edges to survive the round trip")
	}
	if !last.Nodes["b"].Components.Has("svc-b") {
		t.Errorf("expected components to survive the round trip")
	}
}

func TestLoadModels_Range(t *testing.T) {
	store, _, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, ids := range [][]string{{"a"}, {"a", "b"}, {"a", "b", "c"}, {"d"}} {
		if _, err := store.PersistModelAt(ctx, testModel(ids...), base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("PersistModelAt failed: %v", err)
		}
	}

	tests := []struct {
		name  string
		from  time.Time
		to    time.Time
		sizes []int
	}{
		{"includes snapshot in effect at from", base.Add(90 * time.Minute), base.Add(150 * time.Minute), []int{2, 3}},
		{"exact bounds", base.Add(time.Hour), base.Add(2 * time.Hour), []int{1, 2, 3}},
		{"before any snapshot", base.Add(-2 * time.Hour), base.Add(-time.Hour), nil},
		{"after last snapshot", base.Add(10 * time.Hour), base.Add(11 * time.Hour), []int{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			models, err := store.LoadModels(ctx, tt.from, tt.to)
			if err != nil {
				t.Fatalf("LoadModels failed: %v", err)
			}
			if len(models) != len(tt.sizes) {
				t.Fatalf("expected %d models, got %d", len(tt.sizes), len(models))
			}
			for i, m := range models {
				if m.NodeCount() != tt.sizes[i] {
					t.Errorf("model %d: expected %d nodes, got %d", i, tt.sizes[i], m.NodeCount())
				}
			}
		})
	}
}

func TestListAndGetSnapshot(t *testing.T) {
	store, _, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	first, err := store.PersistModelAt(ctx, testModel("a", "b"), base)
	if err != nil {
		t.Fatalf("PersistModelAt failed: %v", err)
	}
	if _, err := store.PersistModelAt(ctx, testModel("c"), base.Add(time.Minute)); err != nil {
		t.Fatalf("PersistModelAt failed: %v", err)
	}

	infos, err := store.ListSnapshots(ctx, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("ListSnapshots failed: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(infos))
	}
	if infos[1].SnapshotID != first.SnapshotID || infos[1].NodeCount != 2 || infos[1].EdgeCount != 1 {
		t.Errorf("unexpected oldest snapshot info: %+v", infos[1])
	}
	if !infos[1].TsSnapshot.Equal(base) {
		t.Errorf("expected timestamp %v, got %v", base, infos[1].TsSnapshot)
	}

	snap, err := store.GetSnapshot(ctx, first.SnapshotID)
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	if snap.Model.NodeCount() != 2 {
		t.Errorf("expected 2 nodes, got %d", snap.Model.NodeCount())
	}

	if _, err := store.GetSnapshot(ctx, "snap_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPruneSnapshots(t *testing.T) {
	store, _, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now()
	for i := 0; i < 5; i++ {
		ts := now.Add(-time.Duration(5-i) * 24 * time.Hour)
		if _, err := store.PersistModelAt(ctx, testModel("a"), ts); err != nil {
			t.Fatalf("PersistModelAt failed: %v", err)
		}
	}
	if _, err := store.PersistModelAt(ctx, testModel("a", "b"), now); err != nil {
		t.Fatalf("PersistModelAt failed: %v", err)
	}

	deleted, err := store.PruneSnapshots(ctx, 60*time.Hour, 2)
	if err != nil {
		t.Fatalf("PruneSnapshots failed: %v", err)
	}
	// Snapshots at -5d, -4d, -3d are old and outside the newest two.
	if deleted != 3 {
		t.Errorf("expected 3 deleted, got %d", deleted)
	}

	infos, _ := store.ListSnapshots(ctx, now.Add(-30*24*time.Hour), now.Add(time.Hour))
	if len(infos) != 3 {
		t.Errorf("expected 3 remaining, got %d", len(infos))
	}

	// keepLatest protects snapshots regardless of age.
	deleted, err = store.PruneSnapshots(ctx, 0, 3)
	if err != nil {
		t.Fatalf("PruneSnapshots failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("expected nothing deleted, got %d", deleted)
	}
}

func TestStorageErrorOnClosedDB(t *testing.T) {
	store, _, cleanup := setupTestStore(t)
	defer cleanup()

	store.db.Close()

	_, err := store.LoadLastModel(context.Background())
	if !IsStorageError(err) {
		t.Errorf("expected *StorageError, got %v", err)
	}
	_, err = store.PersistModel(context.Background(), testModel("a"))
	if !IsStorageError(err) {
		t.Errorf("expected *StorageError, got %v", err)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	m := testModel("a", "b", "c")
	payload, err := EncodeModel(m)
	if err != nil {
		t.Fatalf("EncodeModel failed: %v", err)
	}
	decoded, err := DecodeModel(payload)
	if err != nil {
		t.Fatalf("DecodeModel failed: %v", err)
	}
	if decoded.NodeCount() != 3 || decoded.EdgeCount() != 2 {
		t.Errorf("expected 3 nodes and 2 edges, got %d and %d", decoded.NodeCount(), decoded.EdgeCount())
	}

	if _, err := DecodeModel([]byte("not zstd")); err == nil {
		t.Errorf("expected error decoding garbage")
	}
}
