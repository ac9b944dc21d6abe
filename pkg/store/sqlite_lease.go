package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Acquire tries to acquire the lease. Returns true if successful.
// If the lease is already held by holderID, it renews it. Taking over an
// expired lease from another holder starts a new epoch.
func (s *Store) Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	expiry := now.Add(ttl)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO leases (name, holder_id, expires_at, version, epoch)
		VALUES (?, ?, ?, 1, 1)
		ON CONFLICT(name) DO NOTHING
	`, name, holderID, expiry)
	if err != nil {
		return false, wrapErr("lease_acquire", fmt.Errorf("failed to insert lease: %w", err))
	}
	if rows, err := res.RowsAffected(); err == nil && rows > 0 {
		return true, nil
	}

	// Already exists: take over if expired or if we own it, in one statement.
	res, err = s.db.ExecContext(ctx, `
		UPDATE leases
		SET epoch = CASE WHEN holder_id = ? THEN epoch ELSE epoch + 1 END,
			holder_id = ?, expires_at = ?, version = version + 1
		WHERE name = ? AND (holder_id = ? OR expires_at < ?)
	`, holderID, holderID, expiry, name, holderID, now)
	if err != nil {
		return false, wrapErr("lease_acquire", fmt.Errorf("failed to update lease: %w", err))
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, wrapErr("lease_acquire", fmt.Errorf("failed to check rows affected: %w", err))
	}

	return rows > 0, nil
}

// Renew updates the expiry of an existing lease held by holderID.
// Returns error if the lease is lost or stolen.
func (s *Store) Renew(ctx context.Context, name, holderID string, ttl time.Duration) error {
	expiry := time.Now().UTC().Add(ttl)

	res, err := s.db.ExecContext(ctx, `
		UPDATE leases
		SET expires_at = ?, version = version + 1
		WHERE name = ? AND holder_id = ?
	`, expiry, name, holderID)
	if err != nil {
		return wrapErr("lease_renew", fmt.Errorf("failed to renew lease: %w", err))
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return wrapErr("lease_renew", fmt.Errorf("failed to check rows affected: %w", err))
	}

	if rows == 0 {
		return fmt.Errorf("lease lost or stolen")
	}

	return nil
}

// Release releases the lease if held by holderID.
func (s *Store) Release(ctx context.Context, name, holderID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM leases WHERE name = ? AND holder_id = ?
	`, name, holderID)
	if err != nil {
		return wrapErr("lease_release", fmt.Errorf("failed to release lease: %w", err))
	}

	return nil
}

// Get returns the current lease state, or nil when nobody holds it.
func (s *Store) Get(ctx context.Context, name string) (*Lease, error) {
	var l Lease
	err := s.db.QueryRowContext(ctx, `
		SELECT name, holder_id, expires_at, version, epoch
		FROM leases WHERE name = ?
	`, name).Scan(&l.Name, &l.HolderID, &l.ExpiresAt, &l.Version, &l.Epoch)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr("lease_get", fmt.Errorf("failed to get lease: %w", err))
	}

	return &l, nil
}
