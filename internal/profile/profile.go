// Package profile defines the canonical entitlement record for one
// principal and the identity-store boundary the retrieval core reads it
// through.
//
// Profiles are owned by the identity store; this package only constructs
// the canonical in-memory form. Tag canonicalization and default filling
// happen exactly once, here, so no downstream consumer ever sees a raw or
// partially-defaulted profile.
package profile

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/corpusd/internal/tags"
)

// ErrNotFound is returned by identity stores for unknown principals.
var ErrNotFound = errors.New("profile not found")

// AccessProfile is the canonical representation of a requester's
// entitlements. All tags are canonical; construct via New.
type AccessProfile struct {
	// UserID identifies the principal in the identity store.
	UserID string

	// HierarchyLevel is the numeric clearance. Chunks requiring a higher
	// level are never visible regardless of other grants.
	HierarchyLevel int

	// Departments the principal belongs to.
	Departments []string

	// Projects the principal belongs to.
	Projects []string

	// ContextualRoles maps a context tag (a department or a project) to the
	// roles held within that context. The same role name can mean different
	// things in different contexts, so roles are never global.
	ContextualRoles map[string][]string
}

// New builds a canonical AccessProfile. Every tag is normalized; empty
// tags are dropped; a nil roles map becomes an empty one.
func New(userID string, level int, departments, projects []string, contextualRoles map[string][]string) *AccessProfile {
	roles := make(map[string][]string, len(contextualRoles))
	for ctx, rs := range contextualRoles {
		key := tags.Normalize(ctx)
		if key == "" {
			continue
		}
		roles[key] = append(roles[key], tags.NormalizeAll(rs)...)
	}
	return &AccessProfile{
		UserID:          userID,
		HierarchyLevel:  level,
		Departments:     tags.NormalizeAll(departments),
		Projects:        tags.NormalizeAll(projects),
		ContextualRoles: roles,
	}
}

// RolesFor returns the roles the profile holds for one context tag.
func (p *AccessProfile) RolesFor(contextTag string) []string {
	return p.ContextualRoles[tags.Normalize(contextTag)]
}

// Identities is the read-only view of the identity store the core needs.
type Identities interface {
	// GetProfile returns the profile for userID, or ErrNotFound.
	GetProfile(ctx context.Context, userID string) (*AccessProfile, error)
}
