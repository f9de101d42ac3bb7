package dataset

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/helix-datasets/blind-helix/internal/library"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for strategies:
// - simple: over-asking fails with SamplingError; exact count returns every component as a singleton
// - simple: no sample count returns every component
// - random: default sizes, components drawn from the collection
// - stratified-random: at most one component per library and no repeated sets (200 libraries, 10 per sample, 50 samples, 100 runs)
// - stratified-random: exhausted retry budget fails with SamplingError
// - stratified-random and stratified-walk: more components than libraries fails
// - stratified-walk: seed sample is stratified and steps change at most round(n*fraction) positions
// - LookupStrategy resolves registered names and rejects unknown ones

func makeCollection(libraries, perLibrary int) Collection {
	c := make(Collection)
	for l := 0; l < libraries; l++ {
		name := fmt.Sprintf("lib%03d", l)
		for f := 0; f < perLibrary; f++ {
			c[name] = append(c[name], library.Component{Library: name, Function: fmt.Sprintf("fn%d", f)})
		}
	}
	return c
}

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func librariesOf(s Sample) map[string]int {
	counts := make(map[string]int)
	for _, c := range s {
		counts[c.Library]++
	}
	return counts
}

func TestSimple(t *testing.T) {
	t.Parallel()

	collection := makeCollection(2, 5) // 10 components

	_, err := Simple(collection, Params{Samples: 20})
	var samplingErr *SamplingError
	require.ErrorAs(t, err, &samplingErr)
	assert.Contains(t, samplingErr.Error(), "maximum 10 possible")

	samples, err := Simple(collection, Params{Samples: 10, Rand: seeded(1)})
	require.NoError(t, err)
	require.Len(t, samples, 10)

	seen := make(map[string]bool)
	for _, s := range samples {
		require.Len(t, s, 1)
		seen[s[0].Name()] = true
	}
	assert.Len(t, seen, 10)

	all, err := Simple(collection, Params{})
	require.NoError(t, err)
	assert.Len(t, all, 10)
	assert.Equal(t, "lib000-fn0", all[0][0].Name())
}

func TestRandom(t *testing.T) {
	t.Parallel()

	collection := makeCollection(3, 2)
	samples, err := Random(collection, Params{Rand: seeded(2)})
	require.NoError(t, err)
	require.Len(t, samples, DefaultSamples)

	for _, s := range samples {
		require.Len(t, s, DefaultComponents)
		for _, c := range s {
			assert.Contains(t, collection, c.Library)
		}
	}

	_, err = Random(Collection{}, Params{})
	var samplingErr *SamplingError
	assert.ErrorAs(t, err, &samplingErr)
}

func TestStratifiedRandom(t *testing.T) {
	t.Parallel()

	collection := makeCollection(200, 5)

	for run := 0; run < 100; run++ {
		samples, err := StratifiedRandom(collection, Params{Samples: 50, Components: 10, Rand: seeded(uint64(run))})
		require.NoError(t, err)
		require.Len(t, samples, 50)

		sets := make(map[string]bool)
		for _, s := range samples {
			require.Len(t, s, 10)
			for lib, n := range librariesOf(s) {
				require.Equal(t, 1, n, "library %s repeated in sample", lib)
			}

			key := fmt.Sprint(sortedNames(s))
			require.False(t, sets[key], "duplicate sample in run %d", run)
			sets[key] = true
		}
	}
}

func TestStratifiedRandom_Exhausted(t *testing.T) {
	t.Parallel()

	// Two libraries with one component each allow exactly one stratified
	// sample of size two.
	collection := makeCollection(2, 1)

	samples, err := StratifiedRandom(collection, Params{Samples: 1, Components: 2})
	require.NoError(t, err)
	require.Len(t, samples, 1)

	_, err = StratifiedRandom(collection, Params{Samples: 2, Components: 2, Retries: 5})
	var samplingErr *SamplingError
	require.ErrorAs(t, err, &samplingErr)
	assert.Contains(t, samplingErr.Error(), "maximum number of tries reached")
}

func TestStratified_TooFewLibraries(t *testing.T) {
	t.Parallel()

	collection := makeCollection(3, 4)
	var samplingErr *SamplingError

	_, err := StratifiedRandom(collection, Params{Components: 4})
	assert.ErrorAs(t, err, &samplingErr)

	_, err = StratifiedWalk(collection, Params{Components: 4})
	assert.ErrorAs(t, err, &samplingErr)
}

func TestStratifiedWalk(t *testing.T) {
	t.Parallel()

	collection := makeCollection(120, 4)
	params := Params{Samples: 200, Components: 100, Rand: seeded(7)}

	samples, err := StratifiedWalk(collection, params)
	require.NoError(t, err)
	require.Len(t, samples, 200)

	require.Len(t, samples[0], 100)
	for _, n := range librariesOf(samples[0]) {
		assert.Equal(t, 1, n)
	}

	limit := MaxWalkChanges(100, DefaultChangeFraction)
	assert.Equal(t, 2, limit)

	changed := false
	for i := 1; i < len(samples); i++ {
		require.Len(t, samples[i], 100)
		diff := 0
		for pos := range samples[i] {
			if samples[i][pos].Name() != samples[i-1][pos].Name() {
				diff++
			}
		}
		assert.LessOrEqual(t, diff, limit)
		if diff > 0 {
			changed = true
		}
	}
	assert.True(t, changed)
}

func TestMaxWalkChanges(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, MaxWalkChanges(50, 0.02))
	assert.Equal(t, 0, MaxWalkChanges(25, 0.02)) // 0.5 rounds to even
	assert.Equal(t, 2, MaxWalkChanges(75, 0.02)) // 1.5 rounds to even
	assert.Equal(t, 0, MaxWalkChanges(10, 0.02))
}

func TestLookupStrategy(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"random", "simple", "stratified-random", "stratified-walk"}, Strategies())

	s, err := LookupStrategy("simple")
	require.NoError(t, err)
	samples, err := s(makeCollection(1, 2), Params{})
	require.NoError(t, err)
	assert.Len(t, samples, 2)

	_, err = LookupStrategy("exhaustive")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func sortedNames(s Sample) []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name()
	}
	sort.Strings(names)
	return names
}
