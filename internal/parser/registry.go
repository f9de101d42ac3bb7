package parser

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/helix-datasets/blind-helix/internal/harness"
	"github.com/helix-datasets/blind-helix/internal/locator"
	"github.com/helix-datasets/blind-helix/internal/symbols"
	"go.uber.org/zap"
)

// ErrUnknownParser indicates a parser name with no registered factory.
var ErrUnknownParser = errors.New("unknown parser")

// Tools names the external binaries parsers invoke.
type Tools struct {
	Objcopy string
	Vcpkg   string
}

// Deps are the collaborators shared by every parser a run creates.
type Deps struct {
	Symbols    symbols.Source
	Filter     *symbols.Filter
	Harness    *harness.Harness
	Guard      Guard
	Tools      Tools
	Version    string
	Date       string
	ScratchDir string
	Logger     *zap.Logger
}

// Factory creates a parser for one library. path may be empty.
type Factory func(name, path string, deps Deps) (*Parser, error)

var factories = map[string]Factory{
	"generic-linux-library": GenericLinux,
	"vcpkg-linux-library":   VcpkgLinux,
}

// Names returns the registered parser names, sorted.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates a parser of the given kind.
func New(kind, name, path string, deps Deps) (*Parser, error) {
	factory, ok := factories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s (available: %s)", ErrUnknownParser, kind, strings.Join(Names(), ", "))
	}
	return factory(name, path, deps)
}

// GenericLinux parses system-installed ELF libraries. The library path must
// be given explicitly.
func GenericLinux(name, path string, deps Deps) (*Parser, error) {
	return &Parser{
		Kind:       "generic-linux-library",
		Name:       name,
		Path:       path,
		Guard:      deps.Guard,
		Symbols:    deps.Symbols,
		Finalizer:  Objcopy{Binary: deps.Tools.Objcopy, Symbols: deps.Symbols},
		Filter:     deps.Filter,
		Harness:    deps.Harness,
		Version:    deps.Version,
		Date:       deps.Date,
		ScratchDir: deps.ScratchDir,
		Logger:     deps.Logger,
	}, nil
}

// VcpkgLinux is GenericLinux with library files located through vcpkg.
func VcpkgLinux(name, path string, deps Deps) (*Parser, error) {
	binary, err := locator.FindVcpkg(deps.Tools.Vcpkg)
	if err != nil {
		return nil, err
	}

	p, err := GenericLinux(name, path, deps)
	if err != nil {
		return nil, err
	}
	p.Kind = "vcpkg-linux-library"

	vcpkg := locator.NewVcpkg(binary, deps.Logger)
	vcpkg.ScratchDir = deps.ScratchDir
	p.Locator = vcpkg
	return p, nil
}
