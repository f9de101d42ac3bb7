// Package batch parses many libraries in parallel, resumably.
//
// Every library gets its own directory under the output root holding a
// log file, the exported Library on success and an empty "succeeded" or
// "failed" sentinel. A library whose directory already has a sentinel is
// skipped, so an interrupted run can simply be restarted.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/helix-datasets/blind-helix/internal/catalog"
	"github.com/helix-datasets/blind-helix/internal/harness"
	"github.com/helix-datasets/blind-helix/internal/parser"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	SentinelSucceeded = "succeeded"
	SentinelFailed    = "failed"

	// ExportExtension is the Library exchange file extension.
	ExportExtension = ".bhlx"
)

// newParser creates parsers for jobs.
// Declared as a variable to allow mocking in tests.
var newParser = parser.New

// Job parses and tests one library.
type Job struct {
	// Kind is the registered parser name.
	Kind string

	// Name is the library name.
	Name string

	// Output is the batch output root.
	Output string

	// Deps are shared by every job. Each job replaces the logger with its
	// own file logger.
	Deps parser.Deps

	Catalog Catalog
	Verbose bool
}

// Catalog is the part of catalog.Store a job writes through.
type Catalog interface {
	Get(name string) (*catalog.Entry, error)
	Record(e catalog.Entry) error
}

// Outcome is the result of one job.
type Outcome struct {
	Name     string
	Status   catalog.Status
	Skipped  bool // a sentinel from a previous run was found
	Found    int
	Working  int
	Export   string
	Err      error
	Duration time.Duration
}

// Dir is the job's directory under the output root.
func (j Job) Dir() string {
	return filepath.Join(j.Output, j.Name)
}

// Run executes the job. It never returns an error: failures are recorded
// in the Outcome, the sentinel and the log. A canceled job writes no
// sentinel so the next run retries it.
func (j Job) Run(ctx context.Context) Outcome {
	start := time.Now()
	out := Outcome{Name: j.Name}

	dir := j.Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		out.Status, out.Err = catalog.StatusFailed, fmt.Errorf("failed to create %s: %w", dir, err)
		return out
	}

	if status, ok := previous(dir); ok {
		out.Status, out.Skipped = status, true
		j.recordSkip(&out)
		return out
	}

	logger, closeLog, err := newJobLogger(filepath.Join(dir, j.Name+".log"), j.Verbose)
	if err != nil {
		out.Status, out.Err = catalog.StatusFailed, err
		return out
	}
	defer closeLog()

	err = j.parse(ctx, logger, &out)
	out.Duration = time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			logger.Warn("canceled", zap.Error(err))
			out.Status, out.Err = catalog.StatusFailed, ctx.Err()
			return out
		}

		fields := []zap.Field{zap.Error(err)}
		var unexpected *harness.UnexpectedBuildFailure
		if errors.As(err, &unexpected) {
			fields = append(fields, zap.String("stderr", unexpected.Stderr))
		}
		logger.Error("parsing failed", fields...)

		out.Status, out.Err = catalog.StatusFailed, err
		touch(filepath.Join(dir, SentinelFailed))
	} else {
		out.Status = catalog.StatusSucceeded
		touch(filepath.Join(dir, SentinelSucceeded))
	}

	j.record(out, logger)
	return out
}

func (j Job) parse(ctx context.Context, logger *zap.Logger, out *Outcome) error {
	deps := j.Deps
	deps.Logger = logger
	if deps.Harness != nil {
		h := *deps.Harness
		h.Logger = logger
		deps.Harness = &h
	}

	p, err := newParser(j.Kind, j.Name, "", deps)
	if err != nil {
		return err
	}

	lib, err := p.Build(ctx)
	if err != nil {
		return err
	}
	out.Found = len(lib.Functions)

	sugar := logger.Sugar()
	tested, err := p.Test(ctx, lib, harness.LogReporter{Printf: sugar.Infof})
	if err != nil {
		return err
	}
	out.Working = len(tested.Functions)

	if len(tested.Functions) == 0 {
		return fmt.Errorf("found components in %s but none of them work", j.Name)
	}

	export := filepath.Join(j.Dir(), j.Name+ExportExtension)
	if err := tested.SaveFile(export); err != nil {
		return err
	}
	out.Export = export

	logger.Info("saved library",
		zap.String("path", export),
		zap.Int("found", out.Found),
		zap.Int("working", out.Working))
	return nil
}

func (j Job) record(out Outcome, logger *zap.Logger) {
	if j.Catalog == nil {
		return
	}
	entry := catalog.Entry{
		Name:       j.Name,
		Parser:     j.Kind,
		Status:     out.Status,
		Found:      out.Found,
		Working:    out.Working,
		ExportPath: out.Export,
		Duration:   out.Duration,
	}
	if out.Err != nil {
		entry.Error = out.Err.Error()
	}
	if err := j.Catalog.Record(entry); err != nil {
		logger.Warn("failed to record catalog entry", zap.Error(err))
	}
}

// recordSkip keeps an existing catalog entry and copies its counts into
// out. Libraries the catalog has never seen get a skipped entry.
func (j Job) recordSkip(out *Outcome) {
	if j.Catalog == nil {
		return
	}
	logger := j.Deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	existing, err := j.Catalog.Get(j.Name)
	if err != nil {
		logger.Warn("failed to read catalog entry", zap.String("library", j.Name), zap.Error(err))
		return
	}
	if existing != nil {
		out.Found, out.Working, out.Export = existing.Found, existing.Working, existing.ExportPath
		return
	}

	if err := j.Catalog.Record(catalog.Entry{Name: j.Name, Parser: j.Kind, Status: catalog.StatusSkipped}); err != nil {
		logger.Warn("failed to record catalog entry", zap.String("library", j.Name), zap.Error(err))
	}
}

// previous returns the status recorded by a sentinel, if any.
func previous(dir string) (catalog.Status, bool) {
	if exists(filepath.Join(dir, SentinelSucceeded)) {
		return catalog.StatusSucceeded, true
	}
	if exists(filepath.Join(dir, SentinelFailed)) {
		return catalog.StatusFailed, true
	}
	return "", false
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func touch(path string) error {
	return os.WriteFile(path, nil, 0644)
}

// newJobLogger creates a JSON logger writing only to path.
func newJobLogger(path string, verbose bool) (*zap.Logger, func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(f), level)
	logger := zap.New(core).With(zap.Int("pid", os.Getpid()))

	return logger, func() {
		logger.Sync()
		f.Close()
	}, nil
}
