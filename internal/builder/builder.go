// Package builder turns components into native artifacts.
//
// A build writes minimal glue source that references every component's
// function and links it against the component libraries. The result proves
// the functions can be resolved and gives an artifact whose symbol table
// shows what each function pulled in.
package builder

import (
	"context"
	"fmt"
	"io"

	"github.com/helix-datasets/blind-helix/internal/library"
)

// Options control a single build.
type Options struct {
	// Name is the artifact file name inside the working directory.
	Name string

	// Stdout and Stderr receive the toolchain output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
}

// Builder compiles components into artifacts inside workdir.
type Builder interface {
	// Build returns the artifact paths on success. A toolchain failure is
	// reported as *BuildFailure with diagnostics written to opts.Stderr.
	Build(ctx context.Context, workdir string, components []library.Component, opts Options) ([]string, error)
}

// BuildFailure is returned when the toolchain exits unsuccessfully.
type BuildFailure struct {
	Err      error
	TimedOut bool
}

func (e *BuildFailure) Error() string {
	if e.TimedOut {
		return "build timed out"
	}
	return fmt.Sprintf("build failed: %v", e.Err)
}

func (e *BuildFailure) Unwrap() error {
	return e.Err
}
