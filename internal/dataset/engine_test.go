package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/helix-datasets/blind-helix/internal/builder"
	"github.com/helix-datasets/blind-helix/internal/library"
	"github.com/helix-datasets/blind-helix/internal/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// Test Plan for the dataset engine:
// - Run builds every sample into <out>/<id> and labels it with the union of component tags
// - Run drops samples whose build fails and keeps the rest
// - Run returns infrastructure errors (non-build failures)
// - Run with one worker and with many workers produce the same labels
// - MaxSamples truncates in submission order and removes surplus artifacts
// - Transform failures drop the sample
// - WriteLabels/ReadLabels round-trip sorted tag pairs
// - LoadExports groups components by library and extracts binaries for linking
// - workersFor halves the CPU count, rounding half to even, and never returns zero

// fakeBuilder fails samples containing a function in fail, otherwise writes
// one artifact listing the sample's functions.
type fakeBuilder struct {
	mu     sync.Mutex
	fail   map[string]bool
	err    error
	builds int
}

func (b *fakeBuilder) Build(ctx context.Context, workdir string, components []library.Component, opts builder.Options) ([]string, error) {
	b.mu.Lock()
	b.builds++
	b.mu.Unlock()

	if b.err != nil {
		return nil, b.err
	}
	for _, c := range components {
		if b.fail[c.Function] {
			fmt.Fprintf(opts.Stderr, "undefined reference to `%s'\n", c.Function)
			return nil, &builder.BuildFailure{Err: errors.New("exit status 1")}
		}
	}

	artifact := filepath.Join(workdir, opts.Name)
	var content string
	for _, c := range components {
		content += c.Name() + "\n"
	}
	return []string{artifact}, os.WriteFile(artifact, []byte(content), 0755)
}

type recordingReporter struct {
	mu      sync.Mutex
	total   int
	workers int
	results []Result
}

func (r *recordingReporter) OnBuildStart(samples, workers int) {
	r.total, r.workers = samples, workers
}

func (r *recordingReporter) OnSampleBuilt(result Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func component(lib, fn string, included ...string) library.Component {
	return library.Component{Library: lib, Function: fn, Included: included}
}

func testSamples() []Sample {
	return []Sample{
		{component("z", "deflate", "zcalloc"), component("png", "read")},
		{component("z", "inflate")},
		{component("png", "write"), component("z", "broken")},
		{component("png", "info")},
	}
}

func newEngine(t *testing.T, b builder.Builder, workers int) *Engine {
	return &Engine{Builder: b, Workers: workers, ScratchDir: t.TempDir()}
}

func TestEngine_Run(t *testing.T) {
	t.Parallel()

	out := t.TempDir()
	reporter := &recordingReporter{}
	e := newEngine(t, &fakeBuilder{fail: map[string]bool{"broken": true}}, 2)
	e.Reporter = reporter

	labels, err := e.Run(context.Background(), testSamples(), out)
	require.NoError(t, err)
	require.Len(t, labels, 3)

	assert.Equal(t, 4, reporter.total)
	assert.Equal(t, 2, reporter.workers)
	assert.Len(t, reporter.results, 4)

	var first library.TagSet
	for id, tags := range labels {
		assert.Len(t, id, 32)
		assert.FileExists(t, filepath.Join(out, id))
		if tags.Has(library.TagFunction, "z-deflate") {
			first = tags
		}
		assert.False(t, tags.Has(library.TagFunction, "z-broken"))
	}

	require.NotNil(t, first)
	assert.True(t, first.Has(library.TagFunction, "z-zcalloc"))
	assert.True(t, first.Has(library.TagFunction, "png-read"))
	assert.True(t, first.Has(library.TagLibrary, "png"))
	assert.True(t, first.Has(library.TagType, library.ComponentType))

	entries, err := os.ReadDir(e.ScratchDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEngine_Run_SequentialMatchesParallel(t *testing.T) {
	t.Parallel()

	functionSets := func(labels LabelSet) []string {
		var sets []string
		for _, tags := range labels {
			sets = append(sets, fmt.Sprint(tags.Values(library.TagFunction)))
		}
		return sortedCopy(sets)
	}

	sequential, err := newEngine(t, &fakeBuilder{fail: map[string]bool{"broken": true}}, 1).
		Run(context.Background(), testSamples(), t.TempDir())
	require.NoError(t, err)

	parallel, err := newEngine(t, &fakeBuilder{fail: map[string]bool{"broken": true}}, 4).
		Run(context.Background(), testSamples(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, functionSets(sequential), functionSets(parallel))
}

func TestEngine_Run_MaxSamples(t *testing.T) {
	t.Parallel()

	out := t.TempDir()
	e := newEngine(t, &fakeBuilder{fail: map[string]bool{"broken": true}}, 1)
	e.MaxSamples = 2

	labels, err := e.Run(context.Background(), testSamples(), out)
	require.NoError(t, err)
	require.Len(t, labels, 2)

	var functions []string
	for _, tags := range labels {
		functions = append(functions, tags.Values(library.TagFunction)...)
	}
	assert.Contains(t, functions, "z-deflate")
	assert.Contains(t, functions, "z-inflate")
	assert.NotContains(t, functions, "png-info")

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestEngine_Run_InfrastructureError(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("compiler not found")
	e := newEngine(t, &fakeBuilder{err: sentinel}, 3)

	_, err := e.Run(context.Background(), testSamples(), t.TempDir())
	assert.ErrorIs(t, err, sentinel)
}

type failingTransform struct{}

func (failingTransform) Name() string                                 { return "explode" }
func (failingTransform) Type() transform.Type                         { return transform.TypeBinary }
func (failingTransform) Configure(map[string]string) error            { return nil }
func (failingTransform) Apply(ctx context.Context, path string) error { return errors.New("boom") }

func TestEngine_Run_TransformFailure(t *testing.T) {
	t.Parallel()

	reporter := &recordingReporter{}
	e := newEngine(t, &fakeBuilder{}, 1)
	e.Transforms = []transform.Transform{failingTransform{}}
	e.Reporter = reporter

	labels, err := e.Run(context.Background(), testSamples()[:1], t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, labels)
	require.Len(t, reporter.results, 1)
	assert.ErrorContains(t, reporter.results[0].Err, "boom")
	assert.Equal(t, "[z-deflate, png-read]", reporter.results[0].Label())
}

func TestLabels_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), LabelsFile)
	labels := LabelSet{
		"abc": component("z", "deflate").Tags(),
	}
	require.NoError(t, WriteLabels(path, labels))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"abc": [["function","z-deflate"],["library","z"],["type","library-slice"]]}`, string(data))

	loaded, err := ReadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, labels, loaded)
}

func TestLoadExports(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	raw := filepath.Join(dir, "raw.a")
	require.NoError(t, os.WriteFile(raw, []byte("!<arch>\nbytes"), 0644))

	var exports []string
	for i, fns := range [][]string{{"deflate", "inflate"}, {"read"}, {"crc32"}} {
		name := []string{"z", "png", "z"}[i]
		lib, err := library.FromRaw(name, raw, fns)
		require.NoError(t, err)
		path := filepath.Join(dir, fmt.Sprintf("%s-%d.bhlx", name, i))
		require.NoError(t, lib.SaveFile(path))
		exports = append(exports, path)
	}

	counted, err := LoadExports(exports, "")
	require.NoError(t, err)
	assert.Equal(t, 4, counted.Count())
	assert.Equal(t, []string{"png", "z"}, counted.Libraries())
	assert.Equal(t, "crc32", counted["z"][2].Function)
	assert.Empty(t, counted["z"][0].Path)

	extractDir := t.TempDir()
	linked, err := LoadExports(exports, extractDir)
	require.NoError(t, err)
	for _, c := range linked["z"] {
		assert.FileExists(t, c.Path)
	}

	_, err = LoadExports([]string{filepath.Join(dir, "missing.bhlx")}, "")
	assert.Error(t, err)
}

func TestWorkersFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		cpus int
		want int
	}{
		{cpus: 1, want: 1},
		{cpus: 2, want: 1},
		{cpus: 3, want: 2},
		{cpus: 4, want: 2},
		{cpus: 5, want: 2},
		{cpus: 6, want: 3},
		{cpus: 7, want: 4},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d cpus", tt.cpus), func(t *testing.T) {
			assert.Equal(t, tt.want, workersFor(tt.cpus))
		})
	}
}

func sortedCopy(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}
