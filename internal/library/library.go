// Package library defines the portable Library record and the Components
// sliced from it.
//
// A Library embeds the raw bytes of one compiled library file so it can be
// written to disk, shipped to another process and rebuilt later without the
// original file. Library values are treated as immutable: testing produces a
// new Library rather than editing one in place.
package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultVersion is used when no version is given to FromRaw.
	DefaultVersion = "1.0.0"

	// DateFormat is the layout of Library.Date.
	DateFormat = "2006-01-02"
)

var (
	// ErrDuplicateFunction indicates a function listed more than once.
	ErrDuplicateFunction = errors.New("duplicate function")

	// ErrMissingName indicates a library without a name.
	ErrMissingName = errors.New("library name is required")
)

// Library is one compiled binary plus the function names extracted from it.
//
// The JSON form is the library exchange format. Binary is encoded as base64
// by encoding/json, which keeps the round trip byte-exact.
type Library struct {
	Name      string              `json:"name"`
	Version   string              `json:"version"`
	Date      string              `json:"date"`
	Binary    []byte              `json:"library"`
	Functions []string            `json:"functions"`
	Included  map[string][]string `json:"included"`
}

// Option customizes FromRaw.
type Option func(*Library)

// WithIncluded sets the function -> included subfunctions mapping.
func WithIncluded(included map[string][]string) Option {
	return func(l *Library) {
		l.Included = copyIncluded(included)
	}
}

// WithVersion overrides DefaultVersion. Empty values are ignored.
func WithVersion(version string) Option {
	return func(l *Library) {
		if version != "" {
			l.Version = version
		}
	}
}

// WithDate overrides the default date (today). Empty values are ignored.
func WithDate(date string) Option {
	return func(l *Library) {
		if date != "" {
			l.Date = date
		}
	}
}

// FromRaw builds a Library from a library file on disk. The file content is
// embedded verbatim. Repeated function names (common when an archive has
// several members defining weak symbols) are collapsed, keeping the first
// occurrence.
func FromRaw(name, path string, functions []string, opts ...Option) (*Library, error) {
	if name == "" {
		return nil, ErrMissingName
	}

	binary, err := Read(path)
	if err != nil {
		return nil, err
	}

	l := &Library{
		Name:      name,
		Version:   DefaultVersion,
		Date:      time.Now().Format(DateFormat),
		Binary:    binary,
		Functions: unique(functions),
		Included:  map[string][]string{},
	}
	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// Read loads the content of a library file. "~" is expanded.
func Read(path string) ([]byte, error) {
	abs, err := expand(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read library file: %w", err)
	}
	return data, nil
}

// Validate checks the Library invariants.
func (l *Library) Validate() error {
	if l.Name == "" {
		return ErrMissingName
	}
	seen := make(map[string]struct{}, len(l.Functions))
	for _, fn := range l.Functions {
		if _, ok := seen[fn]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateFunction, fn)
		}
		seen[fn] = struct{}{}
	}
	return nil
}

// Extract writes the embedded binary to path, byte for byte.
func (l *Library) Extract(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, l.Binary, 0644); err != nil {
		return fmt.Errorf("failed to extract library %s: %w", l.Name, err)
	}
	return nil
}

// FileName is the conventional archive name used when extracting.
func (l *Library) FileName() string {
	return fmt.Sprintf("lib%s.a", l.Name)
}

// Components returns one Component per function, in Functions order, with
// no library path set.
func (l *Library) Components() []Component {
	return l.ComponentsAt("")
}

// ComponentsAt is Components with every component linked against path,
// normally the location the binary was extracted to.
func (l *Library) ComponentsAt(path string) []Component {
	components := make([]Component, 0, len(l.Functions))
	for _, fn := range l.Functions {
		included := append([]string{}, l.Included[fn]...)
		components = append(components, Component{
			Library:  l.Name,
			Version:  l.Version,
			Date:     l.Date,
			Path:     path,
			Function: fn,
			Included: included,
		})
	}
	return components
}

// Refine returns a new Library with the same identity and binary but only
// the given functions. Included entries are kept only for those functions.
func (l *Library) Refine(functions []string, included map[string][]string) *Library {
	keep := unique(functions)
	refined := make(map[string][]string, len(keep))
	for _, fn := range keep {
		if subs, ok := included[fn]; ok {
			refined[fn] = append([]string{}, subs...)
		}
	}

	return &Library{
		Name:      l.Name,
		Version:   l.Version,
		Date:      l.Date,
		Binary:    l.Binary,
		Functions: keep,
		Included:  refined,
	}
}

// Serialize encodes the Library in the exchange format.
func (l *Library) Serialize() ([]byte, error) {
	out := *l
	if out.Functions == nil {
		out.Functions = []string{}
	}
	if out.Included == nil {
		out.Included = map[string][]string{}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode library %s: %w", l.Name, err)
	}
	return data, nil
}

// Save writes the exchange format to w.
func (l *Library) Save(w io.Writer) error {
	data, err := l.Serialize()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// SaveFile writes the exchange format to path.
func (l *Library) SaveFile(path string) error {
	data, err := l.Serialize()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write library export: %w", err)
	}
	return nil
}

// Deserialize decodes a Library written by Serialize.
func Deserialize(data []byte) (*Library, error) {
	var l Library
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to decode library: %w", err)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	if l.Functions == nil {
		l.Functions = []string{}
	}
	if l.Included == nil {
		l.Included = map[string][]string{}
	}
	return &l, nil
}

// Load reads a Library from r.
func Load(r io.Reader) (*Library, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read library: %w", err)
	}
	return Deserialize(data)
}

// LoadFile reads a Library export file. "~" is expanded.
func LoadFile(path string) (*Library, error) {
	abs, err := expand(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read export %s: %w", path, err)
	}
	return Deserialize(data)
}

func unique(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func copyIncluded(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = append([]string{}, v...)
	}
	return out
}

func expand(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}
