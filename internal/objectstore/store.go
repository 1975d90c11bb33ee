// Package objectstore defines the boundary to the external document store
// and provides a filesystem-backed implementation.
//
// The store is treated as an opaque object store: keys are relative paths,
// fingerprints are content hashes stable across unmodified re-reads. The
// sync reconciler diffs fingerprint snapshots between runs; any backend that
// satisfies Store (S3, GCS, a local directory) can serve as the corpus.
package objectstore

import (
	"context"
	"errors"
)

// Sentinel errors for object store operations.
var (
	// ErrNotFound is returned when a key does not exist in the store.
	ErrNotFound = errors.New("object not found")

	// ErrUnavailable is returned when the store itself cannot be reached.
	// Callers must distinguish this from an empty listing: an unreachable
	// store aborts a sync run, an empty store does not (by itself).
	ErrUnavailable = errors.New("object store unavailable")
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	// Key is the object's path relative to the corpus root.
	Key string

	// Fingerprint is a content hash stable across unmodified re-reads.
	Fingerprint string
}

// Store is the read-only view of the document store the sync core needs.
type Store interface {
	// List enumerates all objects under prefix. An empty prefix lists the
	// whole store. Returns ErrUnavailable when the store cannot be reached;
	// a reachable but empty store returns an empty slice and nil error.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Get fetches the content of one object. Returns ErrNotFound for
	// missing keys and ErrUnavailable when the store cannot be reached.
	Get(ctx context.Context, key string) ([]byte, error)
}
