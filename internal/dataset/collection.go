// Package dataset samples verified components into labeled datasets.
//
// A run picks a sampling strategy, generates lists of components, builds
// each list into one artifact with a pool of workers and writes a
// labels.json mapping every built sample's identifier to the union of its
// components' tags.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/helix-datasets/blind-helix/internal/library"
)

// Collection maps library names to their components, in file order.
type Collection map[string][]library.Component

// Libraries returns the library names, sorted.
func (c Collection) Libraries() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the total number of components.
func (c Collection) Count() int {
	n := 0
	for _, components := range c {
		n += len(components)
	}
	return n
}

// Add appends a library's components.
func (c Collection) Add(lib *library.Library, path string) {
	c[lib.Name] = append(c[lib.Name], lib.ComponentsAt(path)...)
}

// LoadExports reads Library exchange files into a Collection.
//
// When extractDir is set each library binary is written there and the
// components link against it. An empty extractDir loads components without
// a library path, which is enough for counting.
func LoadExports(paths []string, extractDir string) (Collection, error) {
	collection := make(Collection)

	for _, path := range paths {
		lib, err := library.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}

		if extractDir == "" {
			collection.Add(lib, "")
			continue
		}

		dir, err := os.MkdirTemp(extractDir, lib.Name+"-")
		if err != nil {
			return nil, fmt.Errorf("failed to create extraction directory: %w", err)
		}
		target := filepath.Join(dir, lib.FileName())
		if err := lib.Extract(target); err != nil {
			return nil, err
		}
		collection.Add(lib, target)
	}

	return collection, nil
}
