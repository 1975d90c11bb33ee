// Package tags defines the access-control tag model shared by the manifest
// resolver, the filter compiler, and the vector index adapters.
//
// Every tag that enters the system passes through Normalize before it is
// stored or compared. Casing and punctuation variants of the same logical
// tag ("Project-Alpha", "project_alpha") would otherwise bypass access
// filtering.
package tags

import "strings"

// GeneralTag is the default value for every tag field. Chunks carrying it
// require no membership beyond the hierarchy gate.
const GeneralTag = "GENERAL"

// DefaultHierarchyLevel is the hierarchy requirement applied when no
// manifest declares one.
const DefaultHierarchyLevel = 0

// Metadata keys under which access tags are stored on indexed chunks.
const (
	MetaDepartment = "department_tag"
	MetaProject    = "project_tag"
	MetaHierarchy  = "hierarchy_level_required"
	MetaRole       = "role_tag_required"
	MetaSource     = "source"
	MetaChunkIndex = "chunk_index"
)

// AccessTagSet is the set of access-control labels attached to one indexed
// chunk. All string fields are canonical (see Normalize).
type AccessTagSet struct {
	Department     string `json:"department_tag"`
	Project        string `json:"project_tag"`
	HierarchyLevel int    `json:"hierarchy_level_required"`
	Role           string `json:"role_tag_required"`
}

// Defaults returns the all-default tag set: general-only visibility at
// hierarchy level zero.
func Defaults() AccessTagSet {
	return AccessTagSet{
		Department:     GeneralTag,
		Project:        GeneralTag,
		HierarchyLevel: DefaultHierarchyLevel,
		Role:           GeneralTag,
	}
}

// Normalize canonicalizes a tag: every character that is not an ASCII letter
// or digit is stripped, and the remainder is uppercased. Empty or fully
// stripped input yields "". Normalize is idempotent.
func Normalize(tag string) string {
	var b strings.Builder
	b.Grow(len(tag))
	for i := 0; i < len(tag); i++ {
		c := tag[i]
		switch {
		case c >= 'a' && c <= 'z':
			b.WriteByte(c - ('a' - 'A'))
		case (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9'):
			b.WriteByte(c)
		}
	}
	return b.String()
}

// NormalizeAll normalizes a slice of tags, dropping entries that normalize
// to the empty string.
func NormalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		if n := Normalize(t); n != "" {
			out = append(out, n)
		}
	}
	return out
}
