package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// registryRecord is the wire form of one profile in a registry file.
type registryRecord struct {
	UserID          string              `json:"user_id"`
	HierarchyLevel  int                 `json:"hierarchy_level"`
	Departments     []string            `json:"departments"`
	Projects        []string            `json:"projects"`
	ContextualRoles map[string][]string `json:"contextual_roles"`
}

// Registry is a file-backed Identities implementation for development and
// tests. Production deployments put a real identity store behind the same
// interface.
type Registry struct {
	profiles map[string]*AccessProfile
}

// LoadRegistry reads a JSON array of profile records from path. Profiles
// are canonicalized on load.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile registry: %w", err)
	}

	var records []registryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing profile registry %s: %w", path, err)
	}

	reg := &Registry{profiles: make(map[string]*AccessProfile, len(records))}
	for _, rec := range records {
		if rec.UserID == "" {
			return nil, fmt.Errorf("profile registry %s: record without user_id", path)
		}
		reg.profiles[rec.UserID] = New(rec.UserID, rec.HierarchyLevel, rec.Departments, rec.Projects, rec.ContextualRoles)
	}
	return reg, nil
}

// NewRegistry builds a registry from already-constructed profiles.
func NewRegistry(profiles ...*AccessProfile) *Registry {
	reg := &Registry{profiles: make(map[string]*AccessProfile, len(profiles))}
	for _, p := range profiles {
		reg.profiles[p.UserID] = p
	}
	return reg
}

// GetProfile implements Identities.
func (r *Registry) GetProfile(ctx context.Context, userID string) (*AccessProfile, error) {
	p, ok := r.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, userID)
	}
	return p, nil
}
