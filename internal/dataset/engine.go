package dataset

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
	"github.com/helix-datasets/blind-helix/internal/builder"
	"github.com/helix-datasets/blind-helix/internal/library"
	"github.com/helix-datasets/blind-helix/internal/transform"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LabelsFile is the label document written into the output directory.
const LabelsFile = "labels.json"

// LabelSet maps sample identifiers to the union of their components' tags.
type LabelSet map[string]library.TagSet

// WriteLabels writes labels as JSON to path.
func WriteLabels(path string, labels LabelSet) error {
	data, err := json.Marshal(labels)
	if err != nil {
		return fmt.Errorf("failed to encode labels: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write labels: %w", err)
	}
	return nil
}

// ReadLabels reads a label document written by WriteLabels.
func ReadLabels(path string) (LabelSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var labels LabelSet
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("failed to decode labels: %w", err)
	}
	return labels, nil
}

// DefaultWorkers is half the available CPUs, at least one.
func DefaultWorkers() int {
	return workersFor(runtime.NumCPU())
}

// workersFor halves cpus, rounding half to even.
func workersFor(cpus int) int {
	return max(1, int(math.RoundToEven(float64(cpus)/2)))
}

// Engine builds samples into a dataset directory.
type Engine struct {
	Builder    builder.Builder
	Transforms []transform.Transform

	// Workers is the number of concurrent builds. One builds strictly
	// sequentially; zero or less uses DefaultWorkers.
	Workers int

	// ScratchDir is the parent of per-sample working directories.
	ScratchDir string

	// Keep leaves per-sample working directories on disk.
	Keep bool

	// MaxSamples caps the labeled samples, in submission order. Zero means
	// no cap.
	MaxSamples int

	// Verbose logs compiler output at info level instead of debug.
	Verbose bool

	Reporter Reporter
	Logger   *zap.Logger
}

// job is one sample in exchange form.
type job struct {
	index      int
	components [][]byte
}

// Run builds every sample into outDir and returns the label set. Samples
// that fail to build are logged and left out. outDir must exist.
func (e *Engine) Run(ctx context.Context, samples []Sample, outDir string) (LabelSet, error) {
	jobs := make([]job, len(samples))
	for i, sample := range samples {
		jobs[i] = job{index: i}
		for _, c := range sample {
			data, err := c.Marshal()
			if err != nil {
				return nil, err
			}
			jobs[i].components = append(jobs[i].components, data)
		}
	}

	workers := e.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	e.reporter().OnBuildStart(len(jobs), workers)

	results := make([]Result, len(jobs))

	if workers == 1 {
		for _, j := range jobs {
			r, err := e.process(ctx, j, outDir)
			if err != nil {
				return nil, err
			}
			results[j.index] = r
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, j := range jobs {
			g.Go(func() error {
				r, err := e.process(gctx, j, outDir)
				if err != nil {
					return err
				}
				results[j.index] = r
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	var built []Result
	for _, r := range results {
		if r.Built() {
			built = append(built, r)
		}
	}
	if e.MaxSamples > 0 && len(built) > e.MaxSamples {
		for _, r := range built[e.MaxSamples:] {
			os.Remove(filepath.Join(outDir, r.ID))
		}
		built = built[:e.MaxSamples]
	}

	labels := make(LabelSet, len(built))
	for _, r := range built {
		labels[r.ID] = r.Tags
	}
	return labels, nil
}

// process builds one sample. Build and transform failures are reported in
// the Result; only infrastructure errors are returned.
func (e *Engine) process(ctx context.Context, j job, outDir string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	components := make([]library.Component, 0, len(j.components))
	for _, data := range j.components {
		c, err := library.UnmarshalComponent(data)
		if err != nil {
			return Result{}, err
		}
		components = append(components, c)
	}

	id := newID()
	result := Result{ID: id, Components: components}
	log := e.logger().With(zap.String("sample", id))

	workdir := filepath.Join(e.scratchDir(), id)
	if err := os.MkdirAll(workdir, 0755); err != nil {
		return Result{}, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	if !e.Keep {
		defer os.RemoveAll(workdir)
	}

	var stdout, stderr bytes.Buffer
	artifacts, err := e.Builder.Build(ctx, workdir, components, builder.Options{
		Name:   "sample",
		Stdout: &stdout,
		Stderr: &stderr,
	})
	e.logOutput(log, &stdout, &stderr)

	if err != nil {
		var failure *builder.BuildFailure
		if !errors.As(err, &failure) {
			return Result{}, fmt.Errorf("failed to build sample %s: %w", id, err)
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		log.Warn("sample build failed", zap.Error(err))
		result.Err = err
		e.reporter().OnSampleBuilt(result)
		return result, nil
	}
	if len(artifacts) != 1 {
		return Result{}, fmt.Errorf("sample %s produced %d artifacts, expected 1", id, len(artifacts))
	}

	if err := transform.ApplyAll(ctx, e.Transforms, artifacts[0]); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		log.Warn("sample transform failed", zap.Error(err))
		result.Err = err
		e.reporter().OnSampleBuilt(result)
		return result, nil
	}

	if err := copyFile(artifacts[0], filepath.Join(outDir, id)); err != nil {
		return Result{}, fmt.Errorf("failed to copy artifact for %s: %w", id, err)
	}

	tags := library.NewTagSet()
	for _, c := range components {
		tags.Union(c.Tags())
	}
	result.Tags = tags

	log.Debug("sample built", zap.Int("components", len(components)))
	e.reporter().OnSampleBuilt(result)
	return result, nil
}

func (e *Engine) logOutput(log *zap.Logger, stdout, stderr *bytes.Buffer) {
	level := zap.DebugLevel
	if e.Verbose {
		level = zap.InfoLevel
	}
	if stdout.Len() > 0 {
		log.Log(level, "build stdout", zap.String("output", stdout.String()))
	}
	if stderr.Len() > 0 {
		log.Log(level, "build stderr", zap.String("output", stderr.String()))
	}
}

func (e *Engine) scratchDir() string {
	if e.ScratchDir == "" {
		return os.TempDir()
	}
	return e.ScratchDir
}

func (e *Engine) reporter() Reporter {
	if e.Reporter == nil {
		return NoOpReporter{}
	}
	return e.Reporter
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// newID returns a random identifier as 32 hex characters.
func newID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
