package blob

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalBlobStore(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewLocalBlobStore(tmpDir)
	ctx := context.Background()

	// 1. Put
	key := "snapshots/2024/05/01/1714557600000_snap_a.json.gz"
	content := "hello world"
	if err := store.Put(ctx, key, strings.NewReader(content)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	expectedPath := filepath.Join(tmpDir, filepath.FromSlash(key))
	if _, err := os.Stat(expectedPath); os.IsNotExist(err) {
		t.Errorf("File was not created at expected path: %s", expectedPath)
	}

	// 2. Get
	reader, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	data, err := io.ReadAll(reader)
	reader.Close()
	if err != nil {
		t.Fatalf("Failed to read from reader: %v", err)
	}
	if string(data) != content {
		t.Errorf("Get content mismatch. Got %s, want %s", string(data), content)
	}

	// Overwrite replaces the object.
	if err := store.Put(ctx, key, strings.NewReader("replaced")); err != nil {
		t.Fatalf("Put overwrite failed: %v", err)
	}

	// 3. List
	key2 := "snapshots/2024/04/30/1714471200000_snap_b.json.gz"
	if err := store.Put(ctx, key2, strings.NewReader("other")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(ctx, "exports/graph.csv", strings.NewReader("x")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	keys, err := store.List(ctx, "snapshots")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(keys) != 2 || keys[0] != key2 || keys[1] != key {
		t.Errorf("List returned %v, want sorted [%s %s]", keys, key2, key)
	}

	all, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("List all failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List all returned %d keys, want 3", len(all))
	}

	missing, err := store.List(ctx, "nothing-here")
	if err != nil || len(missing) != 0 {
		t.Errorf("List of missing prefix = %v, %v; want empty", missing, err)
	}

	// 4. Delete
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
	if _, err := store.Get(ctx, key2); err != nil {
		t.Error("Other file should still exist")
	}
}

func TestLocalBlobStore_RejectsEscapingKeys(t *testing.T) {
	store := NewLocalBlobStore(t.TempDir())
	ctx := context.Background()

	for _, key := range []string{"", ".", "..", "../outside", "a/../../outside", "/etc/passwd"} {
		if err := store.Put(ctx, key, strings.NewReader("x")); err == nil {
			t.Errorf("Put(%q) should fail", key)
		}
	}
}

func TestLocalBlobStore_PutHonoursContext(t *testing.T) {
	store := NewLocalBlobStore(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Put(ctx, "a/b", strings.NewReader("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("Put with canceled context = %v, want context.Canceled", err)
	}
}
