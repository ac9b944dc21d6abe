package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rmax-ai/meshgraph/pkg/model"
)

// PersistModel writes m as a new snapshot stamped with the current time.
func (s *Store) PersistModel(ctx context.Context, m *model.Model) (*model.Model, error) {
	snap, err := s.PersistModelAt(ctx, m, time.Now())
	if err != nil {
		return nil, err
	}
	return snap.Model, nil
}

// PersistModelAt writes m as a new snapshot stamped with ts.
func (s *Store) PersistModelAt(ctx context.Context, m *model.Model, ts time.Time) (*Snapshot, error) {
	payload, err := EncodeModel(m)
	if err != nil {
		return nil, wrapErr("persist", err)
	}

	info := NewSnapshotInfo(m, ts)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (snapshot_id, ts_snapshot, node_count, edge_count, schema_version, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`, info.SnapshotID, info.TsSnapshot.UnixMilli(), info.NodeCount, info.EdgeCount, info.SchemaVersion, payload)
	if err != nil {
		return nil, wrapErr("persist", fmt.Errorf("failed to insert snapshot: %w", err))
	}

	return &Snapshot{SnapshotInfo: info, Model: m.Clone()}, nil
}

// LoadLastModel returns the most recent snapshot, or nil when none exists.
func (s *Store) LoadLastModel(ctx context.Context) (*model.Model, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM snapshots
		ORDER BY ts_snapshot DESC, rowid DESC
		LIMIT 1
	`).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr("load_last", fmt.Errorf("failed to query latest snapshot: %w", err))
	}

	m, err := DecodeModel(payload)
	if err != nil {
		return nil, wrapErr("load_last", err)
	}
	return m, nil
}

// LoadModels returns the snapshots within [from, to], oldest first, preceded
// by the latest snapshot taken before from.
func (s *Store) LoadModels(ctx context.Context, from, to time.Time) ([]*model.Model, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM (
			SELECT payload, ts_snapshot, seq FROM (
				SELECT payload, ts_snapshot, rowid AS seq FROM snapshots
				WHERE ts_snapshot < ?
				ORDER BY ts_snapshot DESC, rowid DESC
				LIMIT 1
			)
			UNION ALL
			SELECT payload, ts_snapshot, rowid AS seq FROM snapshots
			WHERE ts_snapshot >= ? AND ts_snapshot <= ?
		)
		ORDER BY ts_snapshot ASC, seq ASC
	`, from.UnixMilli(), from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, wrapErr("load_range", fmt.Errorf("failed to query snapshots: %w", err))
	}
	defer rows.Close()

	var models []*model.Model
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, wrapErr("load_range", fmt.Errorf("failed to scan snapshot: %w", err))
		}
		m, err := DecodeModel(payload)
		if err != nil {
			return nil, wrapErr("load_range", err)
		}
		models = append(models, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("load_range", err)
	}
	return models, nil
}

// ListSnapshots returns metadata for snapshots within [from, to], newest first.
func (s *Store) ListSnapshots(ctx context.Context, from, to time.Time) ([]SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT snapshot_id, ts_snapshot, node_count, edge_count, schema_version
		FROM snapshots
		WHERE ts_snapshot >= ? AND ts_snapshot <= ?
		ORDER BY ts_snapshot DESC, rowid DESC
	`, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, wrapErr("list", fmt.Errorf("failed to query snapshots: %w", err))
	}
	defer rows.Close()

	infos := make([]SnapshotInfo, 0)
	for rows.Next() {
		var info SnapshotInfo
		var ts int64
		if err := rows.Scan(&info.SnapshotID, &ts, &info.NodeCount, &info.EdgeCount, &info.SchemaVersion); err != nil {
			return nil, wrapErr("list", fmt.Errorf("failed to scan snapshot: %w", err))
		}
		info.TsSnapshot = time.UnixMilli(ts).UTC()
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list", err)
	}
	return infos, nil
}

// GetSnapshot returns one snapshot by id, or ErrNotFound.
func (s *Store) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	var snap Snapshot
	var ts int64
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT snapshot_id, ts_snapshot, node_count, edge_count, schema_version, payload
		FROM snapshots WHERE snapshot_id = ?
	`, id).Scan(&snap.SnapshotID, &ts, &snap.NodeCount, &snap.EdgeCount, &snap.SchemaVersion, &payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, wrapErr("get", fmt.Errorf("failed to query snapshot %s: %w", id, err))
	}

	snap.TsSnapshot = time.UnixMilli(ts).UTC()
	snap.Model, err = DecodeModel(payload)
	if err != nil {
		return nil, wrapErr("get", err)
	}
	return &snap, nil
}

// PruneSnapshots deletes snapshots older than maxAge while keeping the
// keepLatest most recent ones.
func (s *Store) PruneSnapshots(ctx context.Context, maxAge time.Duration, keepLatest int) (int64, error) {
	if keepLatest < 0 {
		keepLatest = 0
	}
	cutoff := time.Now().Add(-maxAge).UnixMilli()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE ts_snapshot < ?
		AND snapshot_id NOT IN (
			SELECT snapshot_id FROM snapshots
			ORDER BY ts_snapshot DESC, rowid DESC
			LIMIT ?
		)
	`, cutoff, keepLatest)
	if err != nil {
		return 0, wrapErr("prune", fmt.Errorf("failed to delete snapshots: %w", err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr("prune", fmt.Errorf("failed to check rows affected: %w", err))
	}
	return n, nil
}
