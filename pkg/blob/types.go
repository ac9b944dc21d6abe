// Package blob stores opaque objects under slash-separated keys. The daemon
// uses it to archive graph snapshots before retention deletes them.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("blob not found")

type BlobStore interface {
	// Put uploads content to the blob store, replacing any existing object.
	Put(ctx context.Context, key string, reader io.Reader) error

	// Get retrieves content from the blob store.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// List returns the sorted keys under prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes a blob.
	Delete(ctx context.Context, key string) error
}
