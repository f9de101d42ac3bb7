package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/helix-datasets/blind-helix/internal/library"
	"go.uber.org/zap"
)

// DefaultArtifact is the artifact name used when Options.Name is empty.
const DefaultArtifact = "component"

// CC builds components with a C compiler driver (cc, gcc, clang).
type CC struct {
	// Compiler is the driver binary.
	Compiler string

	// CFlags are passed before the source file, LDFlags after the libraries.
	CFlags  []string
	LDFlags []string

	// Timeout bounds a single compiler invocation. Zero means no deadline.
	Timeout time.Duration

	Logger *zap.Logger
}

// NewCC creates a CC builder for the given compiler driver.
func NewCC(compiler string, logger *zap.Logger) *CC {
	if compiler == "" {
		compiler = "cc"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CC{Compiler: compiler, Logger: logger}
}

// Build writes the glue source into workdir and compiles and links it
// against every component library, producing one executable.
func (b *CC) Build(ctx context.Context, workdir string, components []library.Component, opts Options) ([]string, error) {
	source, err := Glue(components)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(workdir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(workdir, GlueFile), []byte(source), 0644); err != nil {
		return nil, fmt.Errorf("failed to write glue source: %w", err)
	}

	name := opts.Name
	if name == "" {
		name = DefaultArtifact
	}
	artifact := filepath.Join(workdir, name)

	args := append([]string{}, b.CFlags...)
	args = append(args, "-o", artifact, GlueFile)
	args = append(args, Libraries(components)...)
	args = append(args, b.LDFlags...)

	buildCtx := ctx
	if b.Timeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(buildCtx, b.Compiler, args...)
	cmd.Dir = workdir
	cmd.Stdout = writerOrDiscard(opts.Stdout)
	cmd.Stderr = writerOrDiscard(opts.Stderr)

	b.logger().Debug("running compiler",
		zap.String("compiler", b.Compiler),
		zap.Strings("args", args),
		zap.String("workdir", workdir))

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("compiler %s not found: %w", b.Compiler, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if buildCtx.Err() == context.DeadlineExceeded {
			fmt.Fprintf(cmd.Stderr, "build timed out after %s\n", b.Timeout)
			return nil, &BuildFailure{Err: err, TimedOut: true}
		}
		return nil, &BuildFailure{Err: err}
	}

	return []string{artifact}, nil
}

func (b *CC) logger() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
