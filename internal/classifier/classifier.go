// Package classifier decides whether a failed build's diagnostics match a
// known, expected failure mode.
//
// Known failures mean "this function cannot be built in isolation" and are
// dropped quietly. Anything the classifier does not recognize is treated as
// a tooling problem by callers and escalated.
package classifier

import (
	"strings"
	"sync"
)

// Matcher recognizes one known build-failure mode.
type Matcher interface {
	// Name identifies the failure mode (e.g., "not-declared").
	Name() string

	// Match reports whether stderr contains this failure mode.
	Match(stderr string) bool
}

// Keyword matches when its Keyword is a substring of the build output.
type Keyword struct {
	Label       string
	Keyword     string
	Description string
}

func (k Keyword) Name() string { return k.Label }

func (k Keyword) Match(stderr string) bool {
	if k.Keyword == "" {
		return false
	}
	return strings.Contains(stderr, k.Keyword)
}

var (
	// NotDeclared matches functions that are unavailable at compile time,
	// usually an exported symbol missing from the library's shipped headers.
	NotDeclared = Keyword{
		Label:       "not-declared",
		Keyword:     "was not declared in this scope",
		Description: "function is not available at compile time",
	}

	// UndefinedReference matches functions that are unavailable at link time.
	// This happens when a library is split across several files or statically
	// links another library that ships as a separate archive.
	UndefinedReference = Keyword{
		Label:       "undefined-reference",
		Keyword:     "undefined reference to",
		Description: "function is not available at link time",
	}
)

// Classifier holds an ordered list of matchers.
type Classifier struct {
	mu       sync.RWMutex
	matchers []Matcher
}

// New creates a classifier with the given matchers, checked in order.
func New(matchers ...Matcher) *Classifier {
	c := &Classifier{}
	c.matchers = append(c.matchers, matchers...)
	return c
}

// Default returns a classifier for the failure modes seen when linking a
// single exported function against a static archive.
func Default() *Classifier {
	return New(NotDeclared, UndefinedReference)
}

// Register appends a matcher. Call sites that use Known pick it up
// without changes.
func (c *Classifier) Register(m Matcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.matchers = append(c.matchers, m)
}

// Match returns the first matcher that recognizes stderr.
func (c *Classifier) Match(stderr string) (Matcher, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, m := range c.matchers {
		if m.Match(stderr) {
			return m, true
		}
	}
	return nil, false
}

// Known reports whether stderr matches any registered failure mode.
func (c *Classifier) Known(stderr string) bool {
	_, ok := c.Match(stderr)
	return ok
}

// Names lists registered matcher names in check order.
func (c *Classifier) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.matchers))
	for _, m := range c.matchers {
		names = append(names, m.Name())
	}
	return names
}
