package objectstore

import (
	"context"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// FSStore serves a local directory as the document store. Keys are
// slash-separated paths relative to the root; fingerprints are BLAKE3
// content hashes.
type FSStore struct {
	root string
}

// NewFSStore creates a store rooted at dir. The directory must exist.
func NewFSStore(dir string) (*FSStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrUnavailable, dir)
	}
	return &FSStore{root: dir}, nil
}

// List walks the root directory and fingerprints every regular file under
// prefix. Results are sorted by key for deterministic output.
func (s *FSStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if _, err := os.Stat(s.root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var objects []ObjectInfo
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}
		fp, err := fingerprintFile(path)
		if err != nil {
			return err
		}
		objects = append(objects, ObjectInfo{Key: key, Fingerprint: fp})
		return nil
	})
	if err != nil {
		// Partial results are still returned so the caller can report how
		// far enumeration got before failing.
		return objects, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Get reads one object's content.
func (s *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return data, nil
}

// fingerprintFile hashes a file's content with BLAKE3.
func fingerprintFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
