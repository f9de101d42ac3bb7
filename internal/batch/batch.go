package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/helix-datasets/blind-helix/internal/catalog"
	"github.com/helix-datasets/blind-helix/internal/parser"
	"golang.org/x/sync/errgroup"
)

// Reporter receives job outcomes as they finish. OnJobDone may be called
// from several workers at once.
type Reporter interface {
	OnBatchStart(libraries, workers int)
	OnJobDone(outcome Outcome)
}

// NoOpReporter discards progress.
type NoOpReporter struct{}

func (NoOpReporter) OnBatchStart(libraries, workers int) {}
func (NoOpReporter) OnJobDone(outcome Outcome)           {}

// Runner parses a set of libraries with a bounded number of workers.
type Runner struct {
	Kind    string
	Output  string
	Workers int
	Verbose bool

	// Deps are shared by every job. Guard is set to the runner's lock.
	Deps parser.Deps

	Reporter Reporter
}

// Summary totals a batch run.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Outcomes  []Outcome // in library name order

	// Catalog totals every library recorded in the output directory,
	// including those from earlier runs.
	Catalog catalog.Summary

	// Failures are the catalog entries with status failed, by name.
	Failures []catalog.Entry
}

// Run parses every distinct library name. Per-library failures are
// isolated; Run only returns an error when the batch itself cannot run or
// ctx is canceled.
func (r *Runner) Run(ctx context.Context, libraries []string) (Summary, error) {
	names := distinct(libraries)

	if err := os.MkdirAll(r.Output, 0755); err != nil {
		return Summary{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	store, err := catalog.Open(filepath.Join(r.Output, catalog.FileName))
	if err != nil {
		return Summary{}, err
	}
	defer store.Close()

	deps := r.Deps
	deps.Guard = NewLock(filepath.Join(r.Output, LockFile))

	workers := max(1, r.Workers)
	reporter := r.reporter()
	reporter.OnBatchStart(len(names), workers)

	outcomes := make([]Outcome, len(names))
	run := func(ctx context.Context, i int) {
		job := Job{
			Kind:    r.Kind,
			Name:    names[i],
			Output:  r.Output,
			Deps:    deps,
			Catalog: store,
			Verbose: r.Verbose,
		}
		outcomes[i] = job.Run(ctx)
		reporter.OnJobDone(outcomes[i])
	}

	if workers == 1 {
		for i := range names {
			if ctx.Err() != nil {
				break
			}
			run(ctx, i)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(workers)
		for i := range names {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				run(ctx, i)
				return nil
			})
		}
		g.Wait()
	}

	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}

	sum := Summary{Total: len(names), Outcomes: outcomes}
	for _, o := range outcomes {
		switch {
		case o.Skipped:
			sum.Skipped++
		case o.Status == catalog.StatusSucceeded:
			sum.Succeeded++
		default:
			sum.Failed++
		}
	}

	if sum.Catalog, err = store.Summary(); err != nil {
		return Summary{}, err
	}
	entries, err := store.Entries()
	if err != nil {
		return Summary{}, err
	}
	for _, e := range entries {
		if e.Status == catalog.StatusFailed {
			sum.Failures = append(sum.Failures, e)
		}
	}
	return sum, nil
}

func (r *Runner) reporter() Reporter {
	if r.Reporter == nil {
		return NoOpReporter{}
	}
	return r.Reporter
}

func distinct(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	var out []string
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
