// Package harness builds single components in isolation and classifies the
// failures.
//
// Each component gets a fresh scratch directory and its own output buffers,
// so concurrent harnesses never share streams. Failures that match a known
// diagnostic are returned as *BuildFailure and treated by callers as "this
// function cannot be isolated". Anything else is *UnexpectedBuildFailure,
// which must stop the enclosing run.
package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/helix-datasets/blind-helix/internal/builder"
	"github.com/helix-datasets/blind-helix/internal/classifier"
	"github.com/helix-datasets/blind-helix/internal/library"
	"go.uber.org/zap"
)

// BuildFailure is a failed build whose diagnostics matched a known mode.
type BuildFailure struct {
	Component library.Component
	Mode      string
	Stderr    string
}

func (e *BuildFailure) Error() string {
	return fmt.Sprintf("%s: build failed (%s)", e.Component.Name(), e.Mode)
}

// UnexpectedBuildFailure is a failed build that no matcher recognized.
// Stderr carries the raw diagnostics for the operator.
type UnexpectedBuildFailure struct {
	Component library.Component
	Stderr    string
	Err       error
}

func (e *UnexpectedBuildFailure) Error() string {
	return fmt.Sprintf("unexpected build failure for %s", e.Component.Name())
}

func (e *UnexpectedBuildFailure) Unwrap() error {
	return e.Err
}

// Result is a successful component build.
type Result struct {
	// Workdir is the scratch directory holding the artifacts. Callers
	// release it with Harness.Release.
	Workdir   string
	Artifacts []string
}

// Harness tests components against a Builder.
type Harness struct {
	Builder    builder.Builder
	Classifier *classifier.Classifier

	// ScratchDir is the parent of per-component working directories.
	// Empty means the system temp directory.
	ScratchDir string

	// Keep leaves working directories on disk after a test.
	Keep bool

	Logger *zap.Logger
}

// New creates a harness with the default classifier.
func New(b builder.Builder, logger *zap.Logger) *Harness {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harness{
		Builder:    b,
		Classifier: classifier.Default(),
		Logger:     logger,
	}
}

// Test builds one component in a fresh scratch directory.
//
// On success the working directory is kept until Release. On failure it is
// removed (unless Keep) and the error is *BuildFailure for known failure
// modes, *UnexpectedBuildFailure for anything the classifier does not
// recognize, or a plain error when the build could not be attempted.
func (h *Harness) Test(ctx context.Context, c library.Component) (Result, error) {
	workdir, err := os.MkdirTemp(h.ScratchDir, "blind-helix-"+c.Name()+"-")
	if err != nil {
		return Result{}, fmt.Errorf("failed to create scratch directory: %w", err)
	}

	var stdout, stderr bytes.Buffer
	artifacts, err := h.Builder.Build(ctx, workdir, []library.Component{c}, builder.Options{
		Name:   c.Name(),
		Stdout: &stdout,
		Stderr: &stderr,
	})

	log := h.logger().With(zap.String("component", c.Name()))
	if stdout.Len() > 0 {
		log.Debug("build stdout", zap.String("output", stdout.String()))
	}
	if stderr.Len() > 0 {
		log.Debug("build stderr", zap.String("output", stderr.String()))
	}

	if err == nil {
		return Result{Workdir: workdir, Artifacts: artifacts}, nil
	}
	h.Release(workdir)

	var failure *builder.BuildFailure
	if !errors.As(err, &failure) {
		return Result{}, fmt.Errorf("failed to build %s: %w", c.Name(), err)
	}

	if m, ok := h.classifier().Match(stderr.String()); ok {
		return Result{}, &BuildFailure{Component: c, Mode: m.Name(), Stderr: stderr.String()}
	}
	return Result{}, &UnexpectedBuildFailure{Component: c, Stderr: stderr.String(), Err: err}
}

// Release removes a working directory returned by Test, unless Keep.
func (h *Harness) Release(workdir string) {
	if h.Keep || workdir == "" {
		return
	}
	if err := os.RemoveAll(workdir); err != nil {
		h.logger().Warn("failed to remove scratch directory", zap.String("path", workdir), zap.Error(err))
	}
}

// SuccessFunc receives each successful build before its working directory
// is released.
type SuccessFunc func(c library.Component, result Result) error

// TestAll tests components sequentially in the given order and returns the
// names of the functions that built.
//
// Known failures are reported and skipped. An unexpected failure, an error
// from onSuccess or a canceled context stops the run immediately; later
// components are never attempted.
func (h *Harness) TestAll(ctx context.Context, components []library.Component, reporter Reporter, onSuccess SuccessFunc) ([]string, error) {
	if reporter == nil {
		reporter = NoOpReporter{}
	}
	reporter.OnStart(len(components))

	var working []string
	for i, c := range components {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		status := Status{Index: i + 1, Total: len(components), Component: c}

		result, err := h.Test(ctx, c)
		if err != nil {
			var known *BuildFailure
			if !errors.As(err, &known) {
				return nil, err
			}
			status.Reason = known.Mode
			reporter.OnResult(status)
			continue
		}

		if onSuccess != nil {
			if err := onSuccess(c, result); err != nil {
				h.Release(result.Workdir)
				return nil, err
			}
		}
		h.Release(result.Workdir)

		status.Success = true
		reporter.OnResult(status)
		working = append(working, c.Function)
	}

	return working, nil
}

func (h *Harness) classifier() *classifier.Classifier {
	if h.Classifier == nil {
		return classifier.Default()
	}
	return h.Classifier
}

func (h *Harness) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}
