// Package accessfilter compiles an access profile into the predicate the
// vector index evaluates against chunk tags.
//
// The predicate is a small typed AST rather than a string in any index's
// filter syntax. Building it as data keeps tag values out of query text
// (no injection through unsanitized tags), lets the compiler be tested
// without an index, and lets each store adapter render the same predicate
// into its own boolean-expression syntax.
package accessfilter

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/corpusd/internal/tags"
)

// Field identifies which chunk tag a condition applies to.
type Field int

const (
	// FieldDepartment matches the chunk's department_tag.
	FieldDepartment Field = iota
	// FieldProject matches the chunk's project_tag.
	FieldProject
	// FieldRole matches the chunk's role_tag_required.
	FieldRole
)

// MetadataKey returns the chunk metadata key this field matches against.
func (f Field) MetadataKey() string {
	switch f {
	case FieldDepartment:
		return tags.MetaDepartment
	case FieldProject:
		return tags.MetaProject
	case FieldRole:
		return tags.MetaRole
	}
	return ""
}

// Predicate is a boolean expression over one chunk's AccessTagSet. Matches
// gives the reference in-memory evaluation; store adapters render the same
// tree into their native filter syntax.
type Predicate interface {
	Matches(set tags.AccessTagSet) bool
	String() string
}

// And is the conjunction of its terms. An empty And matches everything.
type And struct {
	Terms []Predicate
}

// Matches implements Predicate.
func (a And) Matches(set tags.AccessTagSet) bool {
	for _, t := range a.Terms {
		if !t.Matches(set) {
			return false
		}
	}
	return true
}

func (a And) String() string { return joinTerms("and", a.Terms) }

// Or is the disjunction of its terms. An empty Or matches nothing.
type Or struct {
	Terms []Predicate
}

// Matches implements Predicate.
func (o Or) Matches(set tags.AccessTagSet) bool {
	for _, t := range o.Terms {
		if t.Matches(set) {
			return true
		}
	}
	return false
}

func (o Or) String() string { return joinTerms("or", o.Terms) }

// TagIn matches when the chunk's tag for Field is one of Values.
type TagIn struct {
	Field  Field
	Values []string
}

// Matches implements Predicate.
func (m TagIn) Matches(set tags.AccessTagSet) bool {
	var v string
	switch m.Field {
	case FieldDepartment:
		v = set.Department
	case FieldProject:
		v = set.Project
	case FieldRole:
		v = set.Role
	}
	for _, want := range m.Values {
		if v == want {
			return true
		}
	}
	return false
}

func (m TagIn) String() string {
	return fmt.Sprintf("%s in [%s]", m.Field.MetadataKey(), strings.Join(m.Values, " "))
}

// MaxLevel matches chunks whose hierarchy requirement does not exceed
// Level. This is the hierarchy gate: it is conjoined with every grant.
type MaxLevel struct {
	Level int
}

// Matches implements Predicate.
func (m MaxLevel) Matches(set tags.AccessTagSet) bool {
	return set.HierarchyLevel <= m.Level
}

func (m MaxLevel) String() string {
	return fmt.Sprintf("%s <= %d", tags.MetaHierarchy, m.Level)
}

// MatchNone matches no chunk. Absent or invalid profiles compile to it so
// failures degrade toward less access, never more.
type MatchNone struct{}

// Matches implements Predicate.
func (MatchNone) Matches(tags.AccessTagSet) bool { return false }

func (MatchNone) String() string { return "none" }

// IsNone reports whether p is the match-nothing predicate. Store adapters
// check it before querying and return empty results without touching the
// index.
func IsNone(p Predicate) bool {
	_, ok := p.(MatchNone)
	return ok
}

func joinTerms(op string, terms []Predicate) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = t.String()
	}
	return "(" + op + " " + strings.Join(parts, " ") + ")"
}
