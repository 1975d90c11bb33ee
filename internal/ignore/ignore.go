// Package ignore provides gitignore-style exclusion for corpus scanning.
//
// A .corpusignore file at the corpus root keeps drafts, archives, and
// tooling directories out of the index without moving them out of the
// tree.
package ignore

import (
	"bufio"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultFileName is the ignore file looked up at the corpus root.
const DefaultFileName = ".corpusignore"

// Matcher tests document keys against a set of glob patterns.
type Matcher struct {
	patterns []string
}

// Parse reads gitignore-style content into a Matcher. Comments, blank
// lines, and negation patterns are dropped.
func Parse(content []byte) *Matcher {
	var patterns []string
	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	for scanner.Scan() {
		if p := parseLine(scanner.Text()); p != "" {
			patterns = append(patterns, p)
		}
	}
	return &Matcher{patterns: dedupe(patterns)}
}

// Empty reports whether the matcher has no patterns.
func (m *Matcher) Empty() bool { return m == nil || len(m.patterns) == 0 }

// Match reports whether key is excluded. Keys are slash-separated paths
// relative to the corpus root.
func (m *Matcher) Match(key string) bool {
	if m == nil {
		return false
	}
	for _, p := range m.patterns {
		if ok, err := doublestar.Match(p, key); err == nil && ok {
			return true
		}
	}
	return false
}

// parseLine converts one ignore-file line to a glob pattern, or "" for
// lines that carry no pattern.
func parseLine(line string) string {
	line = strings.TrimRight(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	// Negation is not supported: excluding is fail-restrictive, un-excluding
	// is not.
	if strings.HasPrefix(line, "!") {
		return ""
	}
	return toGlobPattern(line)
}

// toGlobPattern converts a gitignore pattern to a doublestar glob.
func toGlobPattern(pattern string) string {
	// A leading slash anchors the pattern to the corpus root; keys have no
	// leading slash.
	anchored := strings.HasPrefix(pattern, "/")
	pattern = strings.TrimPrefix(pattern, "/")

	// A trailing slash names a directory: match everything inside.
	if strings.HasSuffix(pattern, "/") {
		pattern += "**"
	}

	// An unanchored pattern without a separator matches at any depth.
	if !anchored && !strings.Contains(pattern, "/") {
		pattern = "**/" + pattern
	}

	// A directory-looking name (no extension) also matches its contents.
	if !strings.HasSuffix(pattern, "/**") && !strings.HasSuffix(pattern, "/*") && !strings.Contains(pattern, ".") {
		pattern += "/**"
	}
	return pattern
}

func dedupe(patterns []string) []string {
	seen := make(map[string]bool, len(patterns))
	out := patterns[:0]
	for _, p := range patterns {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
