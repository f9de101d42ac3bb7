package classifier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Classifier:
// - compile-time "not declared" diagnostics are known
// - link-time "undefined reference" diagnostics are known
// - unrelated output is unknown
// - empty output is unknown
// - Match returns the first matching matcher in order
// - Register extends the classifier without touching callers
// - Keyword with empty keyword never matches

func TestDefault_KnownFailures(t *testing.T) {
	t.Parallel()

	c := Default()

	tests := []struct {
		name   string
		stderr string
		known  bool
	}{
		{
			name:   "not declared",
			stderr: "main.cpp:3:5: error: 'zlib_deflate' was not declared in this scope",
			known:  true,
		},
		{
			name:   "undefined reference",
			stderr: "/usr/bin/ld: main.o: in function `main':\nmain.c:(.text+0x5): undefined reference to `zlib_deflate'\ncollect2: error: ld returned 1 exit status",
			known:  true,
		},
		{
			name:   "unrelated",
			stderr: "internal compiler error: Segmentation fault",
			known:  false,
		},
		{
			name:   "empty",
			stderr: "",
			known:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.known, c.Known(tt.stderr))
		})
	}
}

func TestMatch_ReturnsFirstMatcher(t *testing.T) {
	t.Parallel()

	c := Default()
	stderr := "x was not declared in this scope\nundefined reference to `x'"

	m, ok := c.Match(stderr)
	require.True(t, ok)
	assert.Equal(t, "not-declared", m.Name())
}

type prefixMatcher struct{ prefix string }

func (p prefixMatcher) Name() string             { return "prefix" }
func (p prefixMatcher) Match(stderr string) bool { return strings.HasPrefix(stderr, p.prefix) }

func TestRegister_ExtendsKnownSet(t *testing.T) {
	t.Parallel()

	c := Default()
	stderr := "relocation truncated to fit: R_X86_64_PC32"
	assert.False(t, c.Known(stderr))

	c.Register(prefixMatcher{prefix: "relocation truncated"})
	assert.True(t, c.Known(stderr))
	assert.Equal(t, []string{"not-declared", "undefined-reference", "prefix"}, c.Names())
}

func TestKeyword_EmptyNeverMatches(t *testing.T) {
	t.Parallel()

	assert.False(t, Keyword{Label: "empty"}.Match("anything"))
}
