package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
	"github.com/rmax-ai/meshgraph/pkg/store"
)

var renewScript = backend.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

var releaseScript = backend.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// LeaseStore implements store.LeaseStore with SETNX and holder-checked scripts.
type LeaseStore struct {
	client *backend.Client
	prefix string
}

func NewLeaseStore(client *backend.Client, prefix string) *LeaseStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &LeaseStore{client: client, prefix: prefix}
}

func (s *LeaseStore) makeKey(name string) string {
	return s.prefix + "lease:" + name
}

func (s *LeaseStore) Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	key := s.makeKey(name)

	success, err := s.client.SetNX(ctx, key, holderID, ttl).Result()
	if err != nil {
		return false, store.WrapError("lease_acquire", fmt.Errorf("failed to acquire lease: %w", err))
	}

	if success {
		return true, nil
	}

	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			// Expired between SETNX and GET; next round will take it.
			return false, nil
		}
		return false, store.WrapError("lease_acquire", fmt.Errorf("failed to check existing lease: %w", err))
	}

	if val == holderID {
		return true, s.Renew(ctx, name, holderID, ttl)
	}

	return false, nil
}

func (s *LeaseStore) Renew(ctx context.Context, name, holderID string, ttl time.Duration) error {
	ttlMs := int64(ttl / time.Millisecond)

	res, err := renewScript.Run(ctx, s.client, []string{s.makeKey(name)}, holderID, ttlMs).Int64()
	if err != nil {
		return store.WrapError("lease_renew", fmt.Errorf("failed to execute renew script: %w", err))
	}

	if res == 1 {
		return nil
	}

	return fmt.Errorf("lease lost or stolen")
}

func (s *LeaseStore) Release(ctx context.Context, name, holderID string) error {
	if err := releaseScript.Run(ctx, s.client, []string{s.makeKey(name)}, holderID).Err(); err != nil {
		return store.WrapError("lease_release", fmt.Errorf("failed to execute release script: %w", err))
	}
	return nil
}

func (s *LeaseStore) Get(ctx context.Context, name string) (*store.Lease, error) {
	key := s.makeKey(name)

	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, nil
		}
		return nil, store.WrapError("lease_get", fmt.Errorf("failed to get lease: %w", err))
	}

	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return nil, store.WrapError("lease_get", fmt.Errorf("failed to get lease ttl: %w", err))
	}

	return &store.Lease{
		Name:      name,
		HolderID:  val,
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}
