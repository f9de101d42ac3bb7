package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/helix-datasets/blind-helix/internal/builder"
	"github.com/helix-datasets/blind-helix/internal/library"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for harness:
// - Test returns the working directory and artifacts of a successful build
// - Test classifies known failures as *BuildFailure and removes the scratch dir
// - Test escalates unrecognized failures as *UnexpectedBuildFailure with raw stderr
// - Test passes non-build errors through unchanged
// - TestAll processes components in order and skips known failures
// - TestAll stops at the first unexpected failure (a/b/c ordering scenario)
// - TestAll reports "i/n" positions and success flags
// - Release honors Keep

// fakeBuilder fails or succeeds per function name.
type fakeBuilder struct {
	stderr map[string]string // function -> stderr for a failing build
	err    map[string]error  // function -> non-build error
	built  []string
}

func (b *fakeBuilder) Build(ctx context.Context, workdir string, components []library.Component, opts builder.Options) ([]string, error) {
	fn := components[0].Function
	b.built = append(b.built, fn)

	if err, ok := b.err[fn]; ok {
		return nil, err
	}
	if msg, ok := b.stderr[fn]; ok {
		fmt.Fprint(opts.Stderr, msg)
		return nil, &builder.BuildFailure{Err: errors.New("exit status 1")}
	}

	artifact := filepath.Join(workdir, opts.Name)
	if err := os.WriteFile(artifact, []byte("ELF"), 0644); err != nil {
		return nil, err
	}
	fmt.Fprintln(opts.Stdout, "ok")
	return []string{artifact}, nil
}

type recordingReporter struct {
	total    int
	statuses []Status
}

func (r *recordingReporter) OnStart(total int)      { r.total = total }
func (r *recordingReporter) OnResult(status Status) { r.statuses = append(r.statuses, status) }

func newHarness(t *testing.T, b builder.Builder) *Harness {
	h := New(b, nil)
	h.ScratchDir = t.TempDir()
	return h
}

func scratchEntries(t *testing.T, h *Harness) []os.DirEntry {
	entries, err := os.ReadDir(h.ScratchDir)
	require.NoError(t, err)
	return entries
}

func TestHarness_Test_Success(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeBuilder{})
	result, err := h.Test(context.Background(), library.Component{Library: "z", Function: "a"})
	require.NoError(t, err)

	require.Len(t, result.Artifacts, 1)
	assert.FileExists(t, result.Artifacts[0])
	assert.Equal(t, "z-a", filepath.Base(result.Artifacts[0]))
	assert.DirExists(t, result.Workdir)

	h.Release(result.Workdir)
	assert.NoDirExists(t, result.Workdir)
}

func TestHarness_Test_KnownFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeBuilder{stderr: map[string]string{
		"b": "main.c:3: error: 'b' was not declared in this scope",
	}})

	_, err := h.Test(context.Background(), library.Component{Library: "z", Function: "b"})
	var known *BuildFailure
	require.ErrorAs(t, err, &known)
	assert.Equal(t, "not-declared", known.Mode)
	assert.Contains(t, known.Stderr, "was not declared")
	assert.Empty(t, scratchEntries(t, h))
}

func TestHarness_Test_UnexpectedFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeBuilder{stderr: map[string]string{
		"c": "collect2: fatal error: ld terminated with signal 9",
	}})

	_, err := h.Test(context.Background(), library.Component{Library: "z", Function: "c"})
	var unexpected *UnexpectedBuildFailure
	require.ErrorAs(t, err, &unexpected)
	assert.Equal(t, "collect2: fatal error: ld terminated with signal 9", unexpected.Stderr)

	var failure *builder.BuildFailure
	assert.ErrorAs(t, err, &failure)
}

func TestHarness_Test_NonBuildError(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("compiler missing")
	h := newHarness(t, &fakeBuilder{err: map[string]error{"a": sentinel}})

	_, err := h.Test(context.Background(), library.Component{Library: "z", Function: "a"})
	assert.ErrorIs(t, err, sentinel)

	var unexpected *UnexpectedBuildFailure
	assert.False(t, errors.As(err, &unexpected))
}

func TestHarness_TestAll_Order(t *testing.T) {
	t.Parallel()

	b := &fakeBuilder{stderr: map[string]string{
		"b": "error: 'b' was not declared in this scope",
		"c": "internal compiler error: Segmentation fault",
	}}
	h := newHarness(t, b)

	components := []library.Component{
		{Library: "z", Function: "a"},
		{Library: "z", Function: "b"},
		{Library: "z", Function: "c"},
	}

	_, err := h.TestAll(context.Background(), components, nil, nil)
	var unexpected *UnexpectedBuildFailure
	require.ErrorAs(t, err, &unexpected)
	assert.Equal(t, "c", unexpected.Component.Function)
	assert.Equal(t, []string{"a", "b", "c"}, b.built)

	// Without the unrecognized failure the run completes with only "a".
	b2 := &fakeBuilder{stderr: map[string]string{
		"b": "error: 'b' was not declared in this scope",
		"c": "undefined reference to `c_helper'",
	}}
	h2 := newHarness(t, b2)
	reporter := &recordingReporter{}

	var seen []string
	working, err := h2.TestAll(context.Background(), components, reporter, func(c library.Component, r Result) error {
		seen = append(seen, c.Function)
		assert.FileExists(t, r.Artifacts[0])
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, working)
	assert.Equal(t, []string{"a"}, seen)
	assert.Empty(t, scratchEntries(t, h2))

	assert.Equal(t, 3, reporter.total)
	require.Len(t, reporter.statuses, 3)
	assert.Equal(t, "1/3", reporter.statuses[0].Position())
	assert.True(t, reporter.statuses[0].Success)
	assert.False(t, reporter.statuses[1].Success)
	assert.Equal(t, "not-declared", reporter.statuses[1].Reason)
	assert.Equal(t, "undefined-reference", reporter.statuses[2].Reason)
}

func TestHarness_TestAll_CallbackError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeBuilder{})
	sentinel := errors.New("extract failed")

	_, err := h.TestAll(context.Background(), []library.Component{
		{Library: "z", Function: "a"},
		{Library: "z", Function: "b"},
	}, nil, func(c library.Component, r Result) error { return sentinel })

	assert.ErrorIs(t, err, sentinel)
	assert.Empty(t, scratchEntries(t, h))
}

func TestHarness_TestAll_Canceled(t *testing.T) {
	t.Parallel()

	b := &fakeBuilder{}
	h := newHarness(t, b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.TestAll(ctx, []library.Component{{Library: "z", Function: "a"}}, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, b.built)
}

func TestHarness_Keep(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeBuilder{stderr: map[string]string{"b": "undefined reference to `x'"}})
	h.Keep = true

	_, err := h.Test(context.Background(), library.Component{Library: "z", Function: "b"})
	require.Error(t, err)
	assert.Len(t, scratchEntries(t, h), 1)
}

func TestLogReporter(t *testing.T) {
	t.Parallel()

	var lines []string
	r := LogReporter{Printf: func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}}
	r.OnStart(2)
	r.OnResult(Status{Index: 1, Total: 2, Component: library.Component{Function: "a"}, Success: true})
	r.OnResult(Status{Index: 2, Total: 2, Component: library.Component{Function: "b"}})

	assert.Equal(t, []string{"a (1/2) ✓", "b (2/2) ✗"}, lines)
}
