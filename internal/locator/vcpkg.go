package locator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// VcpkgEnv names the environment variable pointing at the vcpkg binary.
const VcpkgEnv = "VCPKG_PATH"

// vcpkgGuesses are directories checked when vcpkg is not on PATH.
var vcpkgGuesses = []string{"/opt/vcpkg/"}

// ErrVcpkgNotFound indicates no vcpkg binary could be found.
var ErrVcpkgNotFound = errors.New("vcpkg could not be found - please ensure it is in the system PATH or the " + VcpkgEnv + " environment variable is set")

// runCommand executes a command and returns its combined output.
// Declared as a variable to allow mocking in tests.
var runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// VcpkgError is a package-manager specific resolution failure.
type VcpkgError struct {
	Name    string
	Message string
}

func (e *VcpkgError) Error() string {
	return e.Message
}

// Is makes every VcpkgError match ErrNotFound.
func (e *VcpkgError) Is(target error) bool {
	return target == ErrNotFound
}

// FindVcpkg returns the vcpkg binary: the configured path if set, then
// $VCPKG_PATH, then PATH, then well-known install directories.
func FindVcpkg(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if env := os.Getenv(VcpkgEnv); env != "" {
		return env, nil
	}
	if path, err := exec.LookPath("vcpkg"); err == nil {
		return path, nil
	}
	for _, dir := range vcpkgGuesses {
		candidate := filepath.Join(dir, "vcpkg")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", ErrVcpkgNotFound
}

// Vcpkg resolves libraries installed with the vcpkg package manager.
//
// vcpkg is not safe for concurrent invocation; callers running several
// resolutions at once must serialize them.
type Vcpkg struct {
	Binary string

	// ScratchDir is the parent of the private install root. Empty means the
	// system temp directory.
	ScratchDir string

	Logger *zap.Logger
}

// NewVcpkg creates a vcpkg locator for the given binary.
func NewVcpkg(binary string, logger *zap.Logger) *Vcpkg {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Vcpkg{Binary: binary, Logger: logger}
}

// Resolve installs name into a private root so it is the only package
// there, collects its static libraries and picks the main one. The
// returned path points into vcpkg's own installed tree.
func (v *Vcpkg) Resolve(ctx context.Context, name string) (string, error) {
	if err := v.checkInstalled(ctx, name); err != nil {
		return "", err
	}

	root, err := os.MkdirTemp(v.ScratchDir, "blind-helix-vcpkg-")
	if err != nil {
		return "", fmt.Errorf("failed to create install root: %w", err)
	}
	defer os.RemoveAll(root)

	v.Logger.Debug("installing package", zap.String("package", name), zap.String("root", root))
	if out, err := runCommand(ctx, v.Binary, "install", "--x-install-root", root, name); err != nil {
		v.Logger.Debug("vcpkg install failed", zap.String("output", string(out)))
		return "", &VcpkgError{Name: name, Message: fmt.Sprintf("failed to run install command on %s", name)}
	}

	options, err := v.collect(root)
	if err != nil {
		return "", err
	}
	return selectLibrary(name, options)
}

func (v *Vcpkg) checkInstalled(ctx context.Context, name string) error {
	out, err := runCommand(ctx, v.Binary, "list", name)
	if err != nil {
		return fmt.Errorf("vcpkg list failed: %w", err)
	}
	if bytes.Contains(out, []byte(name)) {
		return nil
	}

	out, err = runCommand(ctx, v.Binary, "search", name)
	if err != nil {
		return fmt.Errorf("vcpkg search failed: %w", err)
	}
	if !bytes.Contains(out, []byte(name)) {
		return &VcpkgError{Name: name, Message: fmt.Sprintf("%s is not a valid VCPKG package", name)}
	}
	return &VcpkgError{Name: name, Message: fmt.Sprintf("%s is not installed under VCPKG - please install it with `vcpkg install %s` first", name, name)}
}

// collect walks the private root for non-debug lib/*.a files and maps them
// onto vcpkg's installed tree.
func (v *Vcpkg) collect(root string) ([]string, error) {
	installed := filepath.Join(filepath.Dir(v.Binary), "installed")

	var options []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".a" {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		dir := filepath.Dir(rel)
		if filepath.Base(dir) != "lib" || strings.Contains(dir, "debug") {
			return nil
		}
		options = append(options, filepath.Join(installed, rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan install root: %w", err)
	}

	slices.Sort(options)
	return options, nil
}

// selectLibrary picks the main library file for name.
//
// Linking every candidate would find more functions, but vcpkg installs
// dependencies alongside the package and their files cannot be told apart.
func selectLibrary(name string, options []string) (string, error) {
	switch len(options) {
	case 0:
		return "", &VcpkgError{Name: name, Message: fmt.Sprintf("no library file found for %s (note: header-only libraries are not supported)", name)}
	case 1:
		return options[0], nil
	}

	prefix, _, _ := strings.Cut(name, "-")
	filters := []func(string) bool{
		func(o string) bool { return strings.Contains(o, name) },
		func(o string) bool { return o == "lib"+name+".a" },
		func(o string) bool { return strings.Contains(o, prefix) },
	}

	for _, f := range filters {
		var matched []string
		for _, o := range options {
			if f(filepath.Base(o)) {
				matched = append(matched, o)
			}
		}
		if len(matched) == 1 {
			return matched[0], nil
		}
	}

	return "", &VcpkgError{Name: name, Message: fmt.Sprintf("multiple library files found for %s - resolution unclear", name)}
}
