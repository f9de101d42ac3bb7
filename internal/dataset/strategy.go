package dataset

import (
	"errors"
	"fmt"
	"hash/maphash"
	"math"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/helix-datasets/blind-helix/internal/library"
)

const (
	DefaultSamples        = 100
	DefaultComponents     = 50
	DefaultRetries        = 25
	DefaultChangeFraction = 0.02
)

// ErrUnknownStrategy indicates a strategy name with no registered function.
var ErrUnknownStrategy = errors.New("unknown strategy")

// SamplingError is returned when a strategy cannot produce the requested
// samples.
type SamplingError struct {
	Message string
}

func (e *SamplingError) Error() string {
	return e.Message
}

func samplingErrorf(format string, args ...any) error {
	return &SamplingError{Message: fmt.Sprintf(format, args...)}
}

// Sample is an ordered list of components built into one artifact.
type Sample []library.Component

// Params configure a strategy. Zero values select the defaults.
type Params struct {
	// Samples is the number of samples. For simple, zero means every
	// component.
	Samples int

	// Components is the number of components per sample. Ignored by simple.
	Components int

	// Retries bounds the attempts to draw one unique stratified sample.
	Retries int

	// ChangeFraction bounds how many positions a walk step may replace, as a
	// fraction of Components.
	ChangeFraction float64

	// Rand is the random source. Nil uses a randomly seeded source.
	Rand *rand.Rand
}

func (p Params) withDefaults() Params {
	if p.Samples <= 0 {
		p.Samples = DefaultSamples
	}
	if p.Components <= 0 {
		p.Components = DefaultComponents
	}
	if p.Retries <= 0 {
		p.Retries = DefaultRetries
	}
	if p.ChangeFraction <= 0 {
		p.ChangeFraction = DefaultChangeFraction
	}
	if p.Rand == nil {
		p.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return p
}

// Strategy generates samples from a collection.
type Strategy func(collection Collection, params Params) ([]Sample, error)

var strategies = map[string]Strategy{
	"simple":            Simple,
	"random":            Random,
	"stratified-random": StratifiedRandom,
	"stratified-walk":   StratifiedWalk,
}

// Strategies returns the registered strategy names, sorted.
func Strategies() []string {
	names := make([]string, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupStrategy returns the strategy registered under name.
func LookupStrategy(name string) (Strategy, error) {
	s, ok := strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s (available: %s)", ErrUnknownStrategy, name, strings.Join(Strategies(), ", "))
	}
	return s, nil
}

// Simple makes one single-component sample per component. With
// params.Samples set it draws that many without replacement.
func Simple(collection Collection, params Params) ([]Sample, error) {
	var options []Sample
	for _, name := range collection.Libraries() {
		for _, c := range collection[name] {
			options = append(options, Sample{c})
		}
	}

	if params.Samples <= 0 {
		return options, nil
	}
	if len(options) < params.Samples {
		return nil, samplingErrorf("cannot generate %d samples (maximum %d possible)", params.Samples, len(options))
	}

	rnd := params.withDefaults().Rand
	rnd.Shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })
	return options[:params.Samples], nil
}

// Random draws every component independently: a uniformly chosen library,
// then a uniformly chosen component of it. Samples may repeat components
// and libraries.
func Random(collection Collection, params Params) ([]Sample, error) {
	p := params.withDefaults()

	libraries := nonEmpty(collection)
	if len(libraries) == 0 {
		return nil, samplingErrorf("no components to sample from")
	}

	samples := make([]Sample, 0, p.Samples)
	for range p.Samples {
		sample := make(Sample, 0, p.Components)
		for range p.Components {
			sample = append(sample, pick(p.Rand, collection, libraries))
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

// StratifiedRandom draws samples holding at most one component per library
// and never repeats a sample (as a set) within a run. Each sample gets
// params.Retries attempts to be unique.
func StratifiedRandom(collection Collection, params Params) ([]Sample, error) {
	p := params.withDefaults()

	libraries := nonEmpty(collection)
	if p.Components > len(libraries) {
		return nil, samplingErrorf("cannot draw %d components per sample from %d libraries", p.Components, len(libraries))
	}

	seed := maphash.MakeSeed()
	seen := make(map[uint64]struct{}, p.Samples)

	samples := make([]Sample, 0, p.Samples)
	for range p.Samples {
		var accepted Sample
		for range p.Retries {
			sample := stratified(p.Rand, collection, libraries, p.Components)
			key := sampleKey(seed, sample)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			accepted = sample
			break
		}
		if accepted == nil {
			return nil, samplingErrorf("could not generate %d unique random samples: maximum number of tries reached", p.Samples)
		}
		samples = append(samples, accepted)
	}
	return samples, nil
}

// StratifiedWalk starts from one stratified sample and derives each next
// sample from the previous one by replacing between zero and
// round(Components * ChangeFraction) positions with components drawn from
// uniformly chosen libraries.
func StratifiedWalk(collection Collection, params Params) ([]Sample, error) {
	p := params.withDefaults()

	libraries := nonEmpty(collection)
	if p.Components > len(libraries) {
		return nil, samplingErrorf("cannot draw %d components per sample from %d libraries", p.Components, len(libraries))
	}

	maxChanges := MaxWalkChanges(p.Components, p.ChangeFraction)

	current := stratified(p.Rand, collection, libraries, p.Components)
	samples := make([]Sample, 0, p.Samples)
	samples = append(samples, current)

	for i := 1; i < p.Samples; i++ {
		next := append(Sample(nil), current...)
		for range p.Rand.IntN(maxChanges + 1) {
			next[p.Rand.IntN(len(next))] = pick(p.Rand, collection, libraries)
		}
		samples = append(samples, next)
		current = next
	}
	return samples, nil
}

// MaxWalkChanges is the most positions one walk step may replace. Halves
// round to even.
func MaxWalkChanges(components int, fraction float64) int {
	return int(math.RoundToEven(float64(components) * fraction))
}

// stratified picks n distinct libraries and one component from each.
func stratified(rnd *rand.Rand, collection Collection, libraries []string, n int) Sample {
	perm := rnd.Perm(len(libraries))[:n]
	sample := make(Sample, 0, n)
	for _, i := range perm {
		components := collection[libraries[i]]
		sample = append(sample, components[rnd.IntN(len(components))])
	}
	return sample
}

func pick(rnd *rand.Rand, collection Collection, libraries []string) library.Component {
	components := collection[libraries[rnd.IntN(len(libraries))]]
	return components[rnd.IntN(len(components))]
}

// nonEmpty returns the sorted names of libraries with components.
func nonEmpty(collection Collection) []string {
	var names []string
	for _, name := range collection.Libraries() {
		if len(collection[name]) > 0 {
			names = append(names, name)
		}
	}
	return names
}

// sampleKey hashes a sample as a set. A collision can only reject a
// sample that was actually new.
func sampleKey(seed maphash.Seed, sample Sample) uint64 {
	keys := make([]string, len(sample))
	for i, c := range sample {
		keys[i] = c.Library + "\x00" + c.Function
	}
	sort.Strings(keys)
	return maphash.String(seed, strings.Join(keys, "\x01"))
}
