package parser

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/helix-datasets/blind-helix/internal/symbols"
)

// runTool executes an external tool and returns its combined output.
// Declared as a variable to allow mocking in tests.
var runTool = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Finalizer writes the library file that parsing and testing operate on.
type Finalizer interface {
	Finalize(ctx context.Context, name, src, dst string) error
}

// Copy finalizes by copying the library unchanged.
type Copy struct{}

func (Copy) Finalize(ctx context.Context, name, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Renamer is implemented by finalizers that rename exported symbols.
// Original maps a renamed symbol back to its name in the source library.
type Renamer interface {
	Original(name, symbol string) string
}

// Objcopy prefixes every exported function with "<name>_" so libraries
// exporting the same symbol can be linked into one sample.
type Objcopy struct {
	Binary  string
	Symbols symbols.Source
}

// Original strips the "<name>_" prefix added by Finalize.
func (Objcopy) Original(name, symbol string) string {
	return strings.TrimPrefix(symbol, name+"_")
}

func (o Objcopy) Finalize(ctx context.Context, name, src, dst string) error {
	exported, err := o.Symbols.Extract(ctx, src, true)
	if err != nil {
		return err
	}

	var mapping strings.Builder
	for _, symbol := range exported {
		fmt.Fprintf(&mapping, "%s %s_%s\n", symbol, name, symbol)
	}

	mapFile := filepath.Join(filepath.Dir(dst), name+".syms")
	if err := os.WriteFile(mapFile, []byte(mapping.String()), 0644); err != nil {
		return fmt.Errorf("failed to write symbol mapping: %w", err)
	}
	defer os.Remove(mapFile)

	binary := o.Binary
	if binary == "" {
		binary = "objcopy"
	}
	if out, err := runTool(ctx, binary, "--redefine-syms="+mapFile, src, dst); err != nil {
		return fmt.Errorf("failed to rewrite the target library: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
