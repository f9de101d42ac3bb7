package symbols

import (
	"bytes"
	"context"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// archiveMagic is the global header of a Unix ar archive.
const archiveMagic = "!<arch>\n"

// ErrInvalidLibrary indicates a file that is neither ELF nor an ar archive
// of ELF objects.
var ErrInvalidLibrary = errors.New("invalid library file")

// runCommand executes an external tool in dir and returns its combined output.
// Declared as a variable to allow mocking in tests.
var runCommand = func(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// ELFSource reads symbol tables of ELF binaries and of the object members of
// static archives. Archives are unpacked with the ar tool.
type ELFSource struct {
	// Ar is the archive tool used to unpack static libraries.
	Ar string

	// ScratchDir is where archives are unpacked. Empty means os.TempDir().
	ScratchDir string

	Logger *zap.Logger
}

// NewELFSource creates an ELFSource using the given ar binary.
func NewELFSource(ar string, logger *zap.Logger) *ELFSource {
	if ar == "" {
		ar = "ar"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ELFSource{Ar: ar, Logger: logger}
}

// Extract returns the function names defined in path, in symbol-table order.
// C++ (Itanium-mangled) functions are skipped: they tend to be template
// instantiations shared across every user of a header.
func (s *ELFSource) Extract(ctx context.Context, path string, exportedOnly bool) ([]string, error) {
	archive, err := IsArchive(path)
	if err != nil {
		return nil, err
	}

	var functions []string
	add := func(f *elf.File) error {
		names, err := functionSymbols(f, exportedOnly)
		if err != nil {
			return err
		}
		functions = append(functions, names...)
		return nil
	}

	if archive {
		err = s.walkArchive(ctx, path, add)
	} else {
		err = walkExecutable(path, add)
	}
	if err != nil {
		return nil, err
	}

	s.logger().Debug("extracted symbols",
		zap.String("path", path),
		zap.Bool("exported_only", exportedOnly),
		zap.Int("count", len(functions)))

	return functions, nil
}

func (s *ELFSource) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// walkArchive unpacks the archive into a scratch directory and calls fn for
// every ELF object member, in file-name order.
func (s *ELFSource) walkArchive(ctx context.Context, archive string, fn func(*elf.File) error) error {
	abs, err := filepath.Abs(archive)
	if err != nil {
		return err
	}

	working, err := os.MkdirTemp(s.ScratchDir, "blind-helix-ar-*")
	if err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(working)

	if out, err := runCommand(ctx, working, s.Ar, "x", abs); err != nil {
		s.logger().Debug("ar failed", zap.String("output", strings.TrimSpace(string(out))))
		return fmt.Errorf("%w: %s: %v", ErrInvalidLibrary, archive, err)
	}

	entries, err := os.ReadDir(working)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".o" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if err := walkExecutable(filepath.Join(working, name), fn); err != nil {
			return fmt.Errorf("archive member %s: %w", name, err)
		}
	}
	return nil
}

func walkExecutable(path string, fn func(*elf.File) error) error {
	f, err := elf.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidLibrary, path, err)
	}
	defer f.Close()
	return fn(f)
}

// functionSymbols filters an ELF symbol table down to defined functions.
// Shared objects stripped of .symtab fall back to the dynamic table.
func functionSymbols(f *elf.File, exportedOnly bool) ([]string, error) {
	syms, err := f.Symbols()
	if errors.Is(err, elf.ErrNoSymbols) {
		syms, err = f.DynamicSymbols()
		if errors.Is(err, elf.ErrNoSymbols) {
			return nil, nil
		}
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, s := range syms {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC {
			continue
		}
		if s.Section == elf.SHN_UNDEF {
			continue // imported
		}
		if exportedOnly && !exported(s) {
			continue
		}
		if s.Name == "" || isMangled(s.Name) {
			continue
		}
		names = append(names, s.Name)
	}
	return names, nil
}

func exported(s elf.Symbol) bool {
	switch elf.ST_BIND(s.Info) {
	case elf.STB_GLOBAL, elf.STB_WEAK:
	default:
		return false
	}
	switch elf.ST_VISIBILITY(s.Other) {
	case elf.STV_DEFAULT, elf.STV_PROTECTED:
		return true
	}
	return false
}

func isMangled(name string) bool {
	return strings.HasPrefix(name, "_Z")
}

// IsArchive reports whether path starts with the ar global header.
func IsArchive(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	header := make([]byte, len(archiveMagic))
	if _, err := io.ReadFull(f, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, err
	}
	return bytes.Equal(header, []byte(archiveMagic)), nil
}
