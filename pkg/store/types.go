package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rmax-ai/meshgraph/pkg/model"
)

// SchemaVersion is the payload format written by this package.
const SchemaVersion = 1

// ErrNotFound is returned when a requested snapshot does not exist.
var ErrNotFound = errors.New("not found")

// StorageError wraps an I/O failure of a storage backend.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err carries a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// WrapError wraps err as a *StorageError for the given operation. It is
// exported for backends living in sub-packages.
func WrapError(op string, err error) error {
	return wrapErr(op, err)
}

// SnapshotInfo describes a persisted snapshot without its payload.
type SnapshotInfo struct {
	SnapshotID    string    `json:"snapshot_id"`
	TsSnapshot    time.Time `json:"ts_snapshot"`
	NodeCount     int       `json:"node_count"`
	EdgeCount     int       `json:"edge_count"`
	SchemaVersion int       `json:"schema_version"`
}

// Snapshot is a persisted point-in-time model.
type Snapshot struct {
	SnapshotInfo
	Model *model.Model `json:"model"`
}

// NewSnapshotInfo stamps a new snapshot of m taken at ts.
func NewSnapshotInfo(m *model.Model, ts time.Time) SnapshotInfo {
	return SnapshotInfo{
		SnapshotID:    newSnapshotID(),
		TsSnapshot:    ts.UTC(),
		NodeCount:     m.NodeCount(),
		EdgeCount:     m.EdgeCount(),
		SchemaVersion: SchemaVersion,
	}
}

// ModelStore persists and loads graph snapshots.
type ModelStore interface {
	// LoadLastModel returns the most recent snapshot, or nil when none exists.
	LoadLastModel(ctx context.Context) (*model.Model, error)

	// PersistModel writes m as a new snapshot keyed by the current time and
	// returns the persisted representation.
	PersistModel(ctx context.Context, m *model.Model) (*model.Model, error)

	// LoadModels returns the snapshots taken within [from, to] plus the
	// latest one taken before from.
	LoadModels(ctx context.Context, from, to time.Time) ([]*model.Model, error)
}

// SnapshotCatalog lists and fetches individual snapshots.
type SnapshotCatalog interface {
	ListSnapshots(ctx context.Context, from, to time.Time) ([]SnapshotInfo, error)
	GetSnapshot(ctx context.Context, id string) (*Snapshot, error)
}

// SnapshotPruner deletes old snapshots.
type SnapshotPruner interface {
	// PruneSnapshots deletes snapshots older than maxAge, always keeping the
	// keepLatest most recent ones. It returns the number deleted.
	PruneSnapshots(ctx context.Context, maxAge time.Duration, keepLatest int) (int64, error)
}

// Lease represents a distributed lock or leadership claim.
type Lease struct {
	Name      string    `json:"name"`
	HolderID  string    `json:"holder_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Version   int64     `json:"version"` // For CAS (Compare-And-Swap) logic
	Epoch     int64     `json:"epoch"`   // Monotonically increasing election term
}

// LeaseStore defines the interface for acquiring and renewing leases.
type LeaseStore interface {
	// Acquire tries to acquire the lease. Returns true if successful.
	// If the lease is already held by holderID, it renews it.
	Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error)

	// Renew updates the expiry of an existing lease held by holderID.
	// Returns error if the lease is lost or stolen.
	Renew(ctx context.Context, name, holderID string, ttl time.Duration) error

	// Release releases the lease if held by holderID.
	Release(ctx context.Context, name, holderID string) error

	// Get returns the current lease state.
	Get(ctx context.Context, name string) (*Lease, error)
}
