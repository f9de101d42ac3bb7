// Package transform applies post-build rewrites to dataset artifacts.
//
// Transforms are looked up by name from a registry and configured from a
// textual specification of the form "name" or "name:key=value,key=value".
// Only binary transforms, which operate on a finished artifact, are
// supported; components have no source for a source transform to rewrite.
package transform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Type distinguishes transforms that rewrite source from those that rewrite
// built artifacts.
type Type int

const (
	TypeSource Type = iota
	TypeBinary
)

func (t Type) String() string {
	switch t {
	case TypeSource:
		return "source"
	case TypeBinary:
		return "binary"
	default:
		return "unknown"
	}
}

var (
	// ErrUnknownTransform indicates a name with no registered factory.
	ErrUnknownTransform = errors.New("unknown transform")

	// ErrSourceTransform indicates a source transform was requested.
	ErrSourceTransform = errors.New("source transforms are not supported")

	// ErrInvalidSpecification indicates a malformed transform specification.
	ErrInvalidSpecification = errors.New("invalid transform specification")
)

// Transform rewrites a built artifact in place.
type Transform interface {
	Name() string
	Type() Type

	// Configure applies key/value options from the specification.
	Configure(options map[string]string) error

	// Apply rewrites the artifact at path.
	Apply(ctx context.Context, path string) error
}

// Factory creates an unconfigured transform.
type Factory func() Transform

// Registry maps transform names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name, replacing any previous one.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Names returns registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specification is a parsed "name:key=value,..." string.
type Specification struct {
	Name    string
	Options map[string]string
}

// Parse parses a transform specification.
func Parse(spec string) (Specification, error) {
	name, rest, hasOptions := strings.Cut(strings.TrimSpace(spec), ":")
	if name == "" {
		return Specification{}, fmt.Errorf("%w: %q", ErrInvalidSpecification, spec)
	}

	s := Specification{Name: name, Options: map[string]string{}}
	if !hasOptions || rest == "" {
		return s, nil
	}

	for _, pair := range strings.Split(rest, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return Specification{}, fmt.Errorf("%w: %q: option %q must be key=value", ErrInvalidSpecification, spec, pair)
		}
		s.Options[key] = strings.TrimSpace(value)
	}
	return s, nil
}

// Load parses and configures every specification, in order.
func (r *Registry) Load(specs []string) ([]Transform, error) {
	var transforms []Transform
	for _, raw := range specs {
		spec, err := Parse(raw)
		if err != nil {
			return nil, err
		}

		r.mu.RLock()
		factory, ok := r.factories[spec.Name]
		r.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: %s (available: %s)", ErrUnknownTransform, spec.Name, strings.Join(r.Names(), ", "))
		}

		t := factory()
		if t.Type() == TypeSource {
			return nil, fmt.Errorf("%w: %s", ErrSourceTransform, spec.Name)
		}
		if err := t.Configure(spec.Options); err != nil {
			return nil, fmt.Errorf("failed to configure transform %s: %w", spec.Name, err)
		}
		transforms = append(transforms, t)
	}
	return transforms, nil
}

// ApplyAll runs transforms on path in order.
func ApplyAll(ctx context.Context, transforms []Transform, path string) error {
	for _, t := range transforms {
		if err := t.Apply(ctx, path); err != nil {
			return fmt.Errorf("transform %s failed: %w", t.Name(), err)
		}
	}
	return nil
}

// Default returns a registry holding the built-in transforms.
func Default(tools Tools) *Registry {
	r := NewRegistry()
	r.Register("strip", func() Transform { return NewStrip(tools.Strip) })
	return r
}

// Tools names the external binaries used by built-in transforms.
type Tools struct {
	Strip string
}
