package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/rmax-ai/meshgraph/pkg/blob"
	"github.com/rmax-ai/meshgraph/pkg/store"
)

const archivePrefix = "snapshots"

// Archiver copies persisted snapshots to a blob store so retention can
// delete them from the snapshot store without losing history.
type Archiver struct {
	catalog store.SnapshotCatalog
	blobs   blob.BlobStore
}

// NewArchiver creates a new Archiver.
func NewArchiver(catalog store.SnapshotCatalog, blobs blob.BlobStore) *Archiver {
	return &Archiver{
		catalog: catalog,
		blobs:   blobs,
	}
}

// ArchiveKey returns the blob key of a snapshot:
// snapshots/YYYY/MM/DD/<ts_millis>_<snapshot_id>.json.gz
func ArchiveKey(info store.SnapshotInfo) string {
	ts := info.TsSnapshot.UTC()
	year, month, day := ts.Date()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%d_%s.json.gz",
		archivePrefix, year, month, day, ts.UnixMilli(), info.SnapshotID)
}

// ArchiveBefore archives every snapshot taken before cutoff that is not
// archived yet and returns how many were written. It is idempotent.
func (a *Archiver) ArchiveBefore(ctx context.Context, cutoff time.Time) (int, error) {
	infos, err := a.catalog.ListSnapshots(ctx, time.UnixMilli(0), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list snapshots: %w", err)
	}

	existing, err := a.blobs.List(ctx, archivePrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list archive: %w", err)
	}
	archived := make(map[string]struct{}, len(existing))
	for _, k := range existing {
		archived[k] = struct{}{}
	}

	written := 0
	for _, info := range infos {
		if !info.TsSnapshot.Before(cutoff) {
			continue
		}
		key := ArchiveKey(info)
		if _, ok := archived[key]; ok {
			continue
		}

		snap, err := a.catalog.GetSnapshot(ctx, info.SnapshotID)
		if err != nil {
			return written, fmt.Errorf("failed to load snapshot %s: %w", info.SnapshotID, err)
		}

		var buf bytes.Buffer
		gzWriter := gzip.NewWriter(&buf)
		if err := json.NewEncoder(gzWriter).Encode(snap); err != nil {
			gzWriter.Close()
			return written, fmt.Errorf("failed to encode snapshot %s: %w", info.SnapshotID, err)
		}
		if err := gzWriter.Close(); err != nil {
			return written, fmt.Errorf("failed to close gzip writer: %w", err)
		}

		if err := a.blobs.Put(ctx, key, &buf); err != nil {
			return written, fmt.Errorf("failed to upload snapshot %s: %w", info.SnapshotID, err)
		}
		written++
	}

	if written > 0 {
		SnapshotsArchivedTotal.Add(float64(written))
		slog.Info("Archived snapshots", "count", written, "cutoff", cutoff)
	}
	return written, nil
}

// ReadArchived loads an archived snapshot back from the blob store.
func (a *Archiver) ReadArchived(ctx context.Context, key string) (*store.Snapshot, error) {
	if !strings.HasPrefix(key, archivePrefix+"/") {
		return nil, fmt.Errorf("not a snapshot archive key: %s", key)
	}
	rc, err := a.blobs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	gzReader, err := gzip.NewReader(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", key, err)
	}
	defer gzReader.Close()

	var snap store.Snapshot
	if err := json.NewDecoder(gzReader).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode archive %s: %w", key, err)
	}
	return &snap, nil
}
