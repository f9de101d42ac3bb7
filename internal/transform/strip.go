package transform

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// runTool executes an external tool and returns its combined output.
// Declared as a variable to allow mocking in tests.
var runTool = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Strip removes symbol information from an artifact with the strip tool.
//
// Options:
//   - flags: space separated flags passed before the file (default none,
//     which strips all symbols)
type Strip struct {
	binary string
	flags  []string
}

// NewStrip creates a Strip transform using the given strip binary.
func NewStrip(binary string) *Strip {
	if binary == "" {
		binary = "strip"
	}
	return &Strip{binary: binary}
}

func (s *Strip) Name() string { return "strip" }
func (s *Strip) Type() Type   { return TypeBinary }

func (s *Strip) Configure(options map[string]string) error {
	for key, value := range options {
		switch key {
		case "flags":
			s.flags = strings.Fields(value)
		default:
			return fmt.Errorf("unknown option %q", key)
		}
	}
	return nil
}

func (s *Strip) Apply(ctx context.Context, path string) error {
	args := append(append([]string{}, s.flags...), path)
	if out, err := runTool(ctx, s.binary, args...); err != nil {
		return fmt.Errorf("%s: %w: %s", s.binary, err, strings.TrimSpace(string(out)))
	}
	return nil
}
