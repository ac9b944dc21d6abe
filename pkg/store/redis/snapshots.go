package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	backend "github.com/redis/go-redis/v9"
	"github.com/rmax-ai/meshgraph/pkg/model"
	"github.com/rmax-ai/meshgraph/pkg/store"
)

const defaultPrefix = "meshgraph:"

// SnapshotStore keeps graph snapshots in Redis. Each snapshot is a hash keyed
// by id; a sorted set scored by unix milliseconds indexes them by time.
type SnapshotStore struct {
	client *backend.Client
	prefix string
}

type Option func(*SnapshotStore)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *SnapshotStore) {
		s.prefix = prefix
	}
}

// NewSnapshotStore creates a store on an existing client.
func NewSnapshotStore(client *backend.Client, opts ...Option) *SnapshotStore {
	s := &SnapshotStore{
		client: client,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SnapshotStore) snapshotKey(id string) string {
	return s.prefix + "snapshot:" + id
}

func (s *SnapshotStore) indexKey() string {
	return s.prefix + "snapshots"
}

// PersistModel writes m as a new snapshot stamped with the current time.
func (s *SnapshotStore) PersistModel(ctx context.Context, m *model.Model) (*model.Model, error) {
	snap, err := s.PersistModelAt(ctx, m, time.Now())
	if err != nil {
		return nil, err
	}
	return snap.Model, nil
}

// PersistModelAt writes m as a new snapshot stamped with ts.
func (s *SnapshotStore) PersistModelAt(ctx context.Context, m *model.Model, ts time.Time) (*store.Snapshot, error) {
	payload, err := store.EncodeModel(m)
	if err != nil {
		return nil, store.WrapError("persist", err)
	}

	info := store.NewSnapshotInfo(m, ts)
	millis := info.TsSnapshot.UnixMilli()

	_, err = s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.HSet(ctx, s.snapshotKey(info.SnapshotID), map[string]interface{}{
			"ts":             millis,
			"node_count":     info.NodeCount,
			"edge_count":     info.EdgeCount,
			"schema_version": info.SchemaVersion,
			"payload":        payload,
		})
		pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: float64(millis), Member: info.SnapshotID})
		return nil
	})
	if err != nil {
		return nil, store.WrapError("persist", fmt.Errorf("failed to write snapshot: %w", err))
	}

	return &store.Snapshot{SnapshotInfo: info, Model: m.Clone()}, nil
}

// LoadLastModel returns the most recent snapshot, or nil when none exists.
func (s *SnapshotStore) LoadLastModel(ctx context.Context) (*model.Model, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, 0).Result()
	if err != nil {
		return nil, store.WrapError("load_last", fmt.Errorf("failed to read index: %w", err))
	}
	if len(ids) == 0 {
		return nil, nil
	}

	models, err := s.loadPayloads(ctx, "load_last", ids)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	return models[0], nil
}

// LoadModels returns the snapshots within [from, to], oldest first, preceded
// by the latest snapshot taken before from.
func (s *SnapshotStore) LoadModels(ctx context.Context, from, to time.Time) ([]*model.Model, error) {
	fromMs := strconv.FormatInt(from.UnixMilli(), 10)
	toMs := strconv.FormatInt(to.UnixMilli(), 10)

	before, err := s.client.ZRevRangeByScore(ctx, s.indexKey(), &backend.ZRangeBy{
		Max:   "(" + fromMs,
		Min:   "-inf",
		Count: 1,
	}).Result()
	if err != nil {
		return nil, store.WrapError("load_range", fmt.Errorf("failed to read index: %w", err))
	}

	within, err := s.client.ZRangeByScore(ctx, s.indexKey(), &backend.ZRangeBy{
		Min: fromMs,
		Max: toMs,
	}).Result()
	if err != nil {
		return nil, store.WrapError("load_range", fmt.Errorf("failed to read index: %w", err))
	}

	return s.loadPayloads(ctx, "load_range", append(before, within...))
}

// ListSnapshots returns metadata for snapshots within [from, to], newest first.
func (s *SnapshotStore) ListSnapshots(ctx context.Context, from, to time.Time) ([]store.SnapshotInfo, error) {
	ids, err := s.client.ZRevRangeByScore(ctx, s.indexKey(), &backend.ZRangeBy{
		Min: strconv.FormatInt(from.UnixMilli(), 10),
		Max: strconv.FormatInt(to.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, store.WrapError("list", fmt.Errorf("failed to read index: %w", err))
	}

	pipe := s.client.Pipeline()
	cmds := make([]*backend.SliceCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HMGet(ctx, s.snapshotKey(id), "ts", "node_count", "edge_count", "schema_version")
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, store.WrapError("list", fmt.Errorf("failed to read snapshots: %w", err))
		}
	}

	infos := make([]store.SnapshotInfo, 0, len(ids))
	for i, id := range ids {
		vals := cmds[i].Val()
		if len(vals) != 4 || vals[0] == nil {
			continue
		}
		infos = append(infos, store.SnapshotInfo{
			SnapshotID:    id,
			TsSnapshot:    time.UnixMilli(parseInt(vals[0])).UTC(),
			NodeCount:     int(parseInt(vals[1])),
			EdgeCount:     int(parseInt(vals[2])),
			SchemaVersion: int(parseInt(vals[3])),
		})
	}
	return infos, nil
}

// GetSnapshot returns one snapshot by id, or store.ErrNotFound.
func (s *SnapshotStore) GetSnapshot(ctx context.Context, id string) (*store.Snapshot, error) {
	fields, err := s.client.HGetAll(ctx, s.snapshotKey(id)).Result()
	if err != nil {
		return nil, store.WrapError("get", fmt.Errorf("failed to read snapshot %s: %w", id, err))
	}
	if len(fields) == 0 {
		return nil, store.ErrNotFound
	}

	m, err := store.DecodeModel([]byte(fields["payload"]))
	if err != nil {
		return nil, store.WrapError("get", err)
	}

	return &store.Snapshot{
		SnapshotInfo: store.SnapshotInfo{
			SnapshotID:    id,
			TsSnapshot:    time.UnixMilli(parseInt(fields["ts"])).UTC(),
			NodeCount:     int(parseInt(fields["node_count"])),
			EdgeCount:     int(parseInt(fields["edge_count"])),
			SchemaVersion: int(parseInt(fields["schema_version"])),
		},
		Model: m,
	}, nil
}

// PruneSnapshots deletes snapshots older than maxAge while keeping the
// keepLatest most recent ones.
func (s *SnapshotStore) PruneSnapshots(ctx context.Context, maxAge time.Duration, keepLatest int) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()

	old, err := s.client.ZRangeByScore(ctx, s.indexKey(), &backend.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, store.WrapError("prune", fmt.Errorf("failed to read index: %w", err))
	}

	keep := model.NewSet()
	if keepLatest > 0 {
		latest, err := s.client.ZRevRange(ctx, s.indexKey(), 0, int64(keepLatest-1)).Result()
		if err != nil {
			return 0, store.WrapError("prune", fmt.Errorf("failed to read index: %w", err))
		}
		keep = model.NewSet(latest...)
	}

	var doomed []string
	for _, id := range old {
		if !keep.Has(id) {
			doomed = append(doomed, id)
		}
	}
	if len(doomed) == 0 {
		return 0, nil
	}

	_, err = s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		for _, id := range doomed {
			pipe.Del(ctx, s.snapshotKey(id))
			pipe.ZRem(ctx, s.indexKey(), id)
		}
		return nil
	})
	if err != nil {
		return 0, store.WrapError("prune", fmt.Errorf("failed to delete snapshots: %w", err))
	}
	return int64(len(doomed)), nil
}

// loadPayloads fetches and decodes the payloads of ids in order. Ids whose
// hash has disappeared (pruned concurrently) are skipped.
func (s *SnapshotStore) loadPayloads(ctx context.Context, op string, ids []string) ([]*model.Model, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*backend.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGet(ctx, s.snapshotKey(id), "payload")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, backend.Nil) {
		return nil, store.WrapError(op, fmt.Errorf("failed to read snapshots: %w", err))
	}

	models := make([]*model.Model, 0, len(ids))
	for i, cmd := range cmds {
		payload, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, backend.Nil) {
				continue
			}
			return nil, store.WrapError(op, fmt.Errorf("failed to read snapshot %s: %w", ids[i], err))
		}
		m, err := store.DecodeModel(payload)
		if err != nil {
			return nil, store.WrapError(op, err)
		}
		models = append(models, m)
	}
	return models, nil
}

func parseInt(v interface{}) int64 {
	str, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(str, 10, 64)
	return n
}
