// Package parser slices libraries into per-function components and prunes
// them to the functions that build in isolation.
//
// A Parser locates a library file (explicitly or through a Locator),
// finalizes it into a private copy, extracts the exported functions and
// then tests every function with the build harness. Testing also records,
// per working function, which of the library's own symbols ended up in the
// built artifact.
package parser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/helix-datasets/blind-helix/internal/builder"
	"github.com/helix-datasets/blind-helix/internal/harness"
	"github.com/helix-datasets/blind-helix/internal/library"
	"github.com/helix-datasets/blind-helix/internal/locator"
	"github.com/helix-datasets/blind-helix/internal/symbols"
	"go.uber.org/zap"
)

// LibraryNotFound is returned when no explicit path was given and the
// library could not be located.
type LibraryNotFound struct {
	Name string
	Err  error
}

func (e *LibraryNotFound) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("cannot automatically find library file for %s - it must be specified manually via path", e.Name)
	}
	return fmt.Sprintf("cannot find library file for %s: %v", e.Name, e.Err)
}

func (e *LibraryNotFound) Unwrap() error {
	return e.Err
}

// Guard serializes calls into resources that only tolerate one user at a
// time across every worker.
type Guard interface {
	Do(ctx context.Context, fn func() error) error
}

// Parser builds and tests Libraries for one library name.
type Parser struct {
	// Kind is the registered parser name.
	Kind string

	// Name is the library name.
	Name string

	// Path is an explicit library file. It takes precedence over Locator.
	Path string

	Locator   locator.Locator
	Guard     Guard
	Symbols   symbols.Source
	Finalizer Finalizer
	Filter    *symbols.Filter
	Harness   *harness.Harness

	Version string
	Date    string

	// ScratchDir is the parent of finalized and extracted library copies.
	ScratchDir string

	Logger *zap.Logger

	once     sync.Once
	resolved string
	err      error
}

// Locate returns the library file, resolving it once.
func (p *Parser) Locate(ctx context.Context) (string, error) {
	p.once.Do(func() {
		p.resolved, p.err = p.locate(ctx)
	})
	return p.resolved, p.err
}

func (p *Parser) locate(ctx context.Context) (string, error) {
	if p.Path != "" {
		return p.Path, nil
	}
	if p.Locator == nil {
		return "", &LibraryNotFound{Name: p.Name}
	}

	var path string
	resolve := func() error {
		var err error
		path, err = p.Locator.Resolve(ctx, p.Name)
		return err
	}

	var err error
	if p.Guard != nil {
		err = p.Guard.Do(ctx, resolve)
	} else {
		err = resolve()
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &LibraryNotFound{Name: p.Name, Err: err}
	}

	p.logger().Info("located library", zap.String("path", path))
	return path, nil
}

// Build locates and finalizes the library and returns a Library holding
// every exported function that passes the filter.
func (p *Parser) Build(ctx context.Context) (*library.Library, error) {
	path, err := p.Locate(ctx)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(p.ScratchDir, "blind-helix-finalize-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	finalized := filepath.Join(dir, fmt.Sprintf("lib%s.a", p.Name))
	if err := p.finalizer().Finalize(ctx, p.Name, path, finalized); err != nil {
		return nil, fmt.Errorf("failed to finalize %s: %w", path, err)
	}

	functions, err := p.Symbols.Extract(ctx, finalized, true)
	if err != nil {
		return nil, fmt.Errorf("failed to extract symbols from %s: %w", path, err)
	}
	functions = p.callable(functions)

	p.logger().Info("parsed library", zap.Int("functions", len(functions)))

	var opts []library.Option
	if p.Version != "" {
		opts = append(opts, library.WithVersion(p.Version))
	}
	if p.Date != "" {
		opts = append(opts, library.WithDate(p.Date))
	}
	return library.FromRaw(p.Name, finalized, functions, opts...)
}

// callable drops filtered names and names glue source cannot reference.
// Exclude patterns match the name the symbol had before finalizing.
func (p *Parser) callable(functions []string) []string {
	renamer, _ := p.finalizer().(Renamer)

	kept := make([]string, 0, len(functions))
	for _, fn := range functions {
		original := fn
		if renamer != nil {
			original = renamer.Original(p.Name, fn)
		}
		if p.Filter.Excluded(original) {
			continue
		}
		if !builder.IsIdentifier(fn) {
			p.logger().Debug("skipping non-identifier symbol", zap.String("symbol", fn))
			continue
		}
		kept = append(kept, fn)
	}
	return kept
}

// Test builds every component of lib in Functions order and returns a
// refined Library holding only the functions that built. For each of them,
// Included is the sorted set of the library's own symbols found in the
// built artifacts.
//
// An *harness.UnexpectedBuildFailure stops testing and is returned.
func (p *Parser) Test(ctx context.Context, lib *library.Library, reporter harness.Reporter) (*library.Library, error) {
	if p.Harness == nil {
		return nil, errors.New("parser has no build harness")
	}

	dir, err := os.MkdirTemp(p.ScratchDir, "blind-helix-test-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, lib.FileName())
	if err := lib.Extract(path); err != nil {
		return nil, err
	}

	all, err := p.Symbols.Extract(ctx, path, false)
	if err != nil {
		return nil, fmt.Errorf("failed to extract base symbols: %w", err)
	}
	base := make(map[string]struct{}, len(all))
	for _, name := range all {
		base[name] = struct{}{}
	}

	included := make(map[string][]string)
	record := func(c library.Component, result harness.Result) error {
		found := make(map[string]struct{})
		for _, artifact := range result.Artifacts {
			names, err := p.Symbols.Extract(ctx, artifact, false)
			if err != nil {
				return fmt.Errorf("failed to extract symbols from %s: %w", artifact, err)
			}
			for _, name := range names {
				if _, ok := base[name]; ok {
					found[name] = struct{}{}
				}
			}
		}

		subs := make([]string, 0, len(found))
		for name := range found {
			subs = append(subs, name)
		}
		sort.Strings(subs)
		included[c.Function] = subs
		return nil
	}

	working, err := p.Harness.TestAll(ctx, lib.ComponentsAt(path), reporter, record)
	if err != nil {
		return nil, err
	}

	p.logger().Info("tested library",
		zap.Int("found", len(lib.Functions)),
		zap.Int("working", len(working)))

	return lib.Refine(working, included), nil
}

func (p *Parser) finalizer() Finalizer {
	if p.Finalizer == nil {
		return Copy{}
	}
	return p.Finalizer
}

func (p *Parser) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger.With(zap.String("library", p.Name))
}
