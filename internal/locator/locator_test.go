package locator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for locator:
// - Static resolves to its path, and an empty Static is ErrNotFound
// - selectLibrary: none is header-only error, single option wins
// - selectLibrary: name containment, exact lib<name>.a and dash prefix heuristics
// - selectLibrary: ambiguous options fail
// - Vcpkg.Resolve distinguishes "not a valid package" from "not installed"
// - Vcpkg.Resolve maps private-root non-debug libraries onto the installed tree
// - FindVcpkg prefers configured path then VCPKG_PATH

func TestStatic(t *testing.T) {
	t.Parallel()

	path, err := Static("/usr/lib/libz.a").Resolve(context.Background(), "z")
	require.NoError(t, err)
	assert.Equal(t, "/usr/lib/libz.a", path)

	_, err = Static("").Resolve(context.Background(), "z")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSelectLibrary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pkg     string
		options []string
		want    string
		err     string
	}{
		{name: "none", pkg: "fmt", err: "header-only libraries are not supported"},
		{name: "single", pkg: "zlib", options: []string{"/i/lib/libz.a"}, want: "/i/lib/libz.a"},
		{name: "contains name", pkg: "png", options: []string{"/i/lib/libpng16.a", "/i/lib/libz.a"}, want: "/i/lib/libpng16.a"},
		{name: "exact", pkg: "ssl", options: []string{"/i/lib/libssl.a", "/i/lib/libssl_extra.a"}, want: "/i/lib/libssl.a"},
		{name: "dash prefix", pkg: "curl-tools", options: []string{"/i/lib/libcurl.a", "/i/lib/libz.a"}, want: "/i/lib/libcurl.a"},
		{name: "ambiguous", pkg: "x", options: []string{"/i/lib/liba.a", "/i/lib/libb.a"}, err: "multiple library files found for x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := selectLibrary(tt.pkg, tt.options)
			if tt.err != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.err)
				assert.ErrorIs(t, err, ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// fakeVcpkg mocks runCommand with canned list/search output and an install
// that lays out the given relative files under the install root.
func fakeVcpkg(t *testing.T, list, search string, files []string) *[]string {
	t.Helper()

	orig := runCommand
	t.Cleanup(func() { runCommand = orig })

	var calls []string
	runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		calls = append(calls, args[0])
		switch args[0] {
		case "list":
			return []byte(list), nil
		case "search":
			return []byte(search), nil
		case "install":
			root := args[2]
			for _, f := range files {
				path := filepath.Join(root, f)
				if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
					return nil, err
				}
				if err := os.WriteFile(path, []byte("!<arch>\n"), 0644); err != nil {
					return nil, err
				}
			}
			return []byte("Total elapsed time: 1s"), nil
		}
		return nil, nil
	}
	return &calls
}

func TestVcpkg_Resolve(t *testing.T) {
	calls := fakeVcpkg(t, "zlib:x64-linux    1.3.1    A compression library", "", []string{
		"x64-linux/lib/libz.a",
		"x64-linux/debug/lib/libz.a",
		"x64-linux/include/zlib.h",
	})

	v := NewVcpkg("/opt/vcpkg/vcpkg", nil)
	v.ScratchDir = t.TempDir()

	path, err := v.Resolve(context.Background(), "zlib")
	require.NoError(t, err)
	assert.Equal(t, "/opt/vcpkg/installed/x64-linux/lib/libz.a", path)
	assert.Equal(t, []string{"list", "install"}, *calls)

	entries, err := os.ReadDir(v.ScratchDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestVcpkg_Resolve_NotInstalled(t *testing.T) {
	fakeVcpkg(t, "No packages are installed.", "zlib    1.3.1    A compression library", nil)

	_, err := NewVcpkg("/opt/vcpkg/vcpkg", nil).Resolve(context.Background(), "zlib")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, strings.Contains(err.Error(), "is not installed under VCPKG"))
}

func TestVcpkg_Resolve_InvalidPackage(t *testing.T) {
	fakeVcpkg(t, "", "No packages match", nil)

	_, err := NewVcpkg("/opt/vcpkg/vcpkg", nil).Resolve(context.Background(), "nosuchlib")
	require.Error(t, err)
	assert.Equal(t, "nosuchlib is not a valid VCPKG package", err.Error())
}

func TestVcpkg_Resolve_HeaderOnly(t *testing.T) {
	fakeVcpkg(t, "fmt:x64-linux 10.0", "", []string{"x64-linux/include/fmt/core.h"})

	v := NewVcpkg("/opt/vcpkg/vcpkg", nil)
	v.ScratchDir = t.TempDir()

	_, err := v.Resolve(context.Background(), "fmt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header-only")
}

func TestFindVcpkg(t *testing.T) {
	path, err := FindVcpkg("/custom/vcpkg")
	require.NoError(t, err)
	assert.Equal(t, "/custom/vcpkg", path)

	t.Setenv(VcpkgEnv, "/env/vcpkg")
	path, err = FindVcpkg("")
	require.NoError(t, err)
	assert.Equal(t, "/env/vcpkg", path)
}
