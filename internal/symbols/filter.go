package symbols

import (
	"fmt"

	"github.com/gobwas/glob"
)

// compiledPattern holds both the pattern string and compiled glob
type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

// Filter drops symbol names matching any exclude pattern.
// Typical patterns hide compiler and libc internals such as "_*".
type Filter struct {
	excludes []compiledPattern
}

// NewFilter compiles exclude patterns. An empty list keeps everything.
func NewFilter(excludes []string) (*Filter, error) {
	f := &Filter{}
	for _, pattern := range excludes {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid symbol pattern %q: %w", pattern, err)
		}
		f.excludes = append(f.excludes, compiledPattern{pattern: pattern, glob: g})
	}
	return f, nil
}

// Excluded reports whether name matches an exclude pattern.
func (f *Filter) Excluded(name string) bool {
	if f == nil {
		return false
	}
	for _, p := range f.excludes {
		if p.glob.Match(name) {
			return true
		}
	}
	return false
}

// Apply returns the names not excluded, preserving order.
func (f *Filter) Apply(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !f.Excluded(n) {
			out = append(out, n)
		}
	}
	return out
}

// Patterns returns the exclude patterns as given.
func (f *Filter) Patterns() []string {
	if f == nil {
		return nil
	}
	patterns := make([]string, 0, len(f.excludes))
	for _, p := range f.excludes {
		patterns = append(patterns, p.pattern)
	}
	return patterns
}
