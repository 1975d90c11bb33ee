package accessfilter

import (
	"sort"
	"strings"

	"github.com/fyrsmithlabs/corpusd/internal/profile"
	"github.com/fyrsmithlabs/corpusd/internal/tags"
)

// Compile maps an access profile into the retrieval predicate.
//
// The result is the conjunction of a hierarchy gate and a grant
// disjunction with two independent branches:
//
//   - department branch: the chunk's department_tag is GENERAL or one the
//     caller belongs to, and its role_tag_required is GENERAL or a role the
//     caller holds for GENERAL or for that department;
//   - project branch: the same shape over project_tag.
//
// The branches are independent so a department-scoped document never
// silently requires project membership, and vice versa. Role requirements
// are checked against the roles held for the matching context, not a
// global pool: LEAD held for one project does not satisfy a LEAD
// requirement on another.
//
// Holding a contextual role counts as membership in that context. A
// caller granted LEAD for PROJECTALPHA can see PROJECTALPHA chunks that
// require LEAD even when PROJECTALPHA is missing from the membership
// lists; both branches consider role-grant contexts, since a context tag
// may name either a department or a project.
//
// A nil profile (unauthenticated or failed lookup) compiles to MatchNone.
// An authenticated profile with no memberships at all still receives the
// GENERAL/GENERAL baseline, so default-tagged chunks stay visible at a
// sufficient hierarchy level.
func Compile(p *profile.AccessProfile) Predicate {
	if p == nil {
		return MatchNone{}
	}

	grants := Or{Terms: []Predicate{
		contextBranch(FieldDepartment, p.Departments, p.ContextualRoles),
		contextBranch(FieldProject, p.Projects, p.ContextualRoles),
	}}

	return And{Terms: []Predicate{
		MaxLevel{Level: p.HierarchyLevel},
		grants,
	}}
}

// contextBranch builds one grant branch: an OR over context groups, where
// each group pairs a set of context tags with the roles valid inside them.
// Contexts sharing the same effective role set are merged into a single
// term to keep the rendered filter compact.
func contextBranch(field Field, memberships []string, contextualRoles map[string][]string) Predicate {
	baseline := roleUnion(nil, contextualRoles[tags.GeneralTag])

	contexts := make(map[string]struct{}, len(memberships)+len(contextualRoles))
	for _, m := range memberships {
		if m != "" && m != tags.GeneralTag {
			contexts[m] = struct{}{}
		}
	}
	for c := range contextualRoles {
		if c != "" && c != tags.GeneralTag {
			contexts[c] = struct{}{}
		}
	}

	type group struct {
		roles    []string
		contexts []string
	}
	groups := make(map[string]*group)
	add := func(ctxTag string, roles []string) {
		key := strings.Join(roles, "\x00")
		g, ok := groups[key]
		if !ok {
			g = &group{roles: roles}
			groups[key] = g
		}
		g.contexts = append(g.contexts, ctxTag)
	}

	add(tags.GeneralTag, baseline)
	for c := range contexts {
		add(c, roleUnion(baseline, contextualRoles[c]))
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	terms := make([]Predicate, 0, len(groups))
	for _, k := range keys {
		g := groups[k]
		sort.Strings(g.contexts)
		terms = append(terms, And{Terms: []Predicate{
			TagIn{Field: field, Values: g.contexts},
			TagIn{Field: FieldRole, Values: g.roles},
		}})
	}
	if len(terms) == 1 {
		return terms[0]
	}
	return Or{Terms: terms}
}

// roleUnion merges a baseline role set with extra roles, always including
// the GENERAL role, deduplicated and sorted.
func roleUnion(baseline, extra []string) []string {
	seen := map[string]struct{}{tags.GeneralTag: {}}
	for _, r := range baseline {
		seen[r] = struct{}{}
	}
	for _, r := range extra {
		if r != "" {
			seen[r] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
