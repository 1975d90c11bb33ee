// Package manifest resolves the effective access tags for a document by
// walking its ancestor directories for the nearest manifest declaration.
//
// A manifest is a JSON object stored alongside documents (metadata.json by
// default) with optional keys department_tag, project_tag,
// hierarchy_level_required, and role_tag_required. The first manifest found
// walking upward wins wholesale: fields it declares override defaults,
// fields it omits stay at defaults, and no further ancestor is consulted.
// A document with no manifest anywhere up to the corpus root gets the
// all-default tag set, i.e. minimal general-only visibility. Malformed
// manifests are treated as absent, so a broken declaration narrows access
// rather than widening it.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/objectstore"
	"github.com/fyrsmithlabs/corpusd/internal/tags"
)

// DefaultFileName is the manifest file looked up at each directory level.
const DefaultFileName = "metadata.json"

// Record is the wire form of a manifest declaration. Pointer fields
// distinguish "absent" from "declared empty": absent fields keep defaults.
type Record struct {
	DepartmentTag          *string `json:"department_tag"`
	ProjectTag             *string `json:"project_tag"`
	HierarchyLevelRequired *int    `json:"hierarchy_level_required"`
	RoleTagRequired        *string `json:"role_tag_required"`
}

// RunCache caches per-directory resolution results for the duration of one
// sync run. Both positive and negative outcomes are cached; a hit at any
// ancestor during traversal short-circuits the walk.
//
// The cache is built single-threaded by the reconciler and must be
// discarded at the start of the next run so stale declarations never carry
// over. It is safe for concurrent reads once the run that built it ends.
type RunCache struct {
	byDir map[string]tags.AccessTagSet
}

// NewRunCache creates an empty cache for one sync run.
func NewRunCache() *RunCache {
	return &RunCache{byDir: make(map[string]tags.AccessTagSet)}
}

// Len reports the number of cached directories.
func (c *RunCache) Len() int { return len(c.byDir) }

// Resolver finds the nearest applicable manifest for a document path.
type Resolver struct {
	store    objectstore.Store
	fileName string
	logger   *zap.Logger
}

// NewResolver creates a resolver reading manifests from store. An empty
// fileName selects DefaultFileName.
func NewResolver(store objectstore.Store, fileName string, logger *zap.Logger) *Resolver {
	if fileName == "" {
		fileName = DefaultFileName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, fileName: fileName, logger: logger}
}

// Resolve returns the effective AccessTagSet for the document at docKey.
//
// The walk starts at the document's containing directory and moves upward
// until a manifest is found, a cached ancestor result is hit, or the corpus
// root is passed. Store errors other than "not found" are returned so the
// caller can decide whether the run should continue; a missing or
// unparsable manifest is not an error.
func (r *Resolver) Resolve(ctx context.Context, docKey string, cache *RunCache) (tags.AccessTagSet, error) {
	startDir := path.Dir(docKey)

	var visited []string
	dir := startDir
	for {
		if cached, ok := cache.byDir[dir]; ok {
			r.remember(cache, visited, cached)
			return cached, nil
		}

		resolved, found, err := r.lookup(ctx, dir)
		if err != nil {
			return tags.Defaults(), err
		}
		if found {
			visited = append(visited, dir)
			r.remember(cache, visited, resolved)
			return resolved, nil
		}

		visited = append(visited, dir)
		parent := path.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	// No manifest anywhere up to the root: all defaults, cached as a
	// negative result for every directory on the walk.
	defaults := tags.Defaults()
	r.remember(cache, visited, defaults)
	r.logger.Debug("no manifest found, using defaults", zap.String("doc", docKey))
	return defaults, nil
}

// lookup fetches and parses the manifest at one directory level.
func (r *Resolver) lookup(ctx context.Context, dir string) (tags.AccessTagSet, bool, error) {
	key := r.fileName
	if dir != "." && dir != "/" {
		key = path.Join(dir, r.fileName)
	}

	data, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return tags.AccessTagSet{}, false, nil
		}
		return tags.AccessTagSet{}, false, fmt.Errorf("fetching manifest %s: %w", key, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		// Fail-restrictive: an unparsable manifest is treated as absent at
		// this level and the walk continues upward.
		r.logger.Warn("malformed manifest treated as not found",
			zap.String("key", key), zap.Error(err))
		return tags.AccessTagSet{}, false, nil
	}

	return overlay(rec), true, nil
}

// overlay applies declared fields onto the default tag set, normalizing
// each tag as it is read.
func overlay(rec Record) tags.AccessTagSet {
	set := tags.Defaults()
	if rec.DepartmentTag != nil {
		if n := tags.Normalize(*rec.DepartmentTag); n != "" {
			set.Department = n
		}
	}
	if rec.ProjectTag != nil {
		if n := tags.Normalize(*rec.ProjectTag); n != "" {
			set.Project = n
		}
	}
	if rec.HierarchyLevelRequired != nil {
		set.HierarchyLevel = *rec.HierarchyLevelRequired
	}
	if rec.RoleTagRequired != nil {
		if n := tags.Normalize(*rec.RoleTagRequired); n != "" {
			set.Role = n
		}
	}
	return set
}

// remember caches the resolution result for every directory visited on the
// walk, so later documents in the same subtree resolve without store reads.
func (r *Resolver) remember(cache *RunCache, dirs []string, result tags.AccessTagSet) {
	for _, d := range dirs {
		cache.byDir[d] = result
	}
}
