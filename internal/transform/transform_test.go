package transform

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for transforms:
// - Parse accepts bare names and key=value option lists
// - Parse rejects empty names and options without '='
// - Load configures registered transforms in order
// - Load rejects unknown names, listing available ones
// - Load rejects source transforms
// - Strip passes flags and path to the strip tool
// - Strip rejects unknown options
// - ApplyAll stops at the first failing transform

func TestParse(t *testing.T) {
	t.Parallel()

	s, err := Parse("strip")
	require.NoError(t, err)
	assert.Equal(t, "strip", s.Name)
	assert.Empty(t, s.Options)

	s, err = Parse("strip:flags=--strip-debug -g, level = 2")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"flags": "--strip-debug -g", "level": "2"}, s.Options)

	_, err = Parse(":flags=x")
	assert.ErrorIs(t, err, ErrInvalidSpecification)

	_, err = Parse("strip:flags")
	assert.ErrorIs(t, err, ErrInvalidSpecification)
}

type sourceTransform struct{}

func (sourceTransform) Name() string                               { return "obfuscate" }
func (sourceTransform) Type() Type                                 { return TypeSource }
func (sourceTransform) Configure(map[string]string) error          { return nil }
func (sourceTransform) Apply(ctx context.Context, path string) error { return nil }

func TestLoad(t *testing.T) {
	t.Parallel()

	r := Default(Tools{Strip: "/usr/bin/strip"})
	r.Register("obfuscate", func() Transform { return sourceTransform{} })

	transforms, err := r.Load([]string{"strip:flags=-s"})
	require.NoError(t, err)
	require.Len(t, transforms, 1)
	assert.Equal(t, "strip", transforms[0].Name())
	assert.Equal(t, TypeBinary, transforms[0].Type())

	_, err = r.Load([]string{"upx"})
	assert.ErrorIs(t, err, ErrUnknownTransform)
	assert.Contains(t, err.Error(), "obfuscate, strip")

	_, err = r.Load([]string{"obfuscate"})
	assert.ErrorIs(t, err, ErrSourceTransform)

	_, err = r.Load([]string{"strip:color=red"})
	assert.Error(t, err)

	none, err := r.Load(nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStrip_Apply(t *testing.T) {
	orig := runTool
	t.Cleanup(func() { runTool = orig })

	var got []string
	runTool = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		got = append([]string{name}, args...)
		return nil, nil
	}

	s := NewStrip("")
	require.NoError(t, s.Configure(map[string]string{"flags": "--strip-debug"}))
	require.NoError(t, s.Apply(context.Background(), "/out/sample"))
	assert.Equal(t, []string{"strip", "--strip-debug", "/out/sample"}, got)
}

func TestApplyAll_StopsOnError(t *testing.T) {
	orig := runTool
	t.Cleanup(func() { runTool = orig })

	calls := 0
	runTool = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		calls++
		return []byte("strip: file format not recognized"), errors.New("exit status 1")
	}

	err := ApplyAll(context.Background(), []Transform{NewStrip(""), NewStrip("")}, "/out/sample")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file format not recognized")
	assert.Equal(t, 1, calls)
}

func TestType_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "source", TypeSource.String())
	assert.Equal(t, "binary", TypeBinary.String())
	assert.Equal(t, "unknown", Type(9).String())
}
