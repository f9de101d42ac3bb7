package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/helix-datasets/blind-helix/internal/batch"
	"github.com/helix-datasets/blind-helix/internal/catalog"
	"github.com/helix-datasets/blind-helix/internal/dataset"
	"github.com/helix-datasets/blind-helix/internal/harness"
	"github.com/schollz/progressbar/v3"
)

const (
	markSuccess = "✓"
	markFailure = "✗"
)

// statusBar is a progress bar on stderr with status lines interleaved on
// out. Safe for concurrent use.
type statusBar struct {
	mu  sync.Mutex
	out io.Writer
	bar *progressbar.ProgressBar
}

func newStatusBar(out io.Writer, total int, description, unit string, quiet bool) *statusBar {
	s := &statusBar{out: out}
	if quiet || total <= 0 {
		return s
	}

	s.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString(unit),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)
	return s
}

// step prints one status line and advances the bar.
func (s *statusBar) step(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bar != nil {
		s.bar.Clear()
	}
	fmt.Fprintf(s.out, format+"\n", args...)
	if s.bar != nil {
		s.bar.Add(1)
	}
}

func (s *statusBar) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bar != nil {
		s.bar.Finish()
		s.bar = nil
	}
}

// testProgress reports component tests of a single library.
type testProgress struct {
	out   io.Writer
	name  string
	quiet bool
	bar   *statusBar
}

func (p *testProgress) OnStart(total int) {
	p.bar = newStatusBar(p.out, total, "testing "+p.name, "fn/s", p.quiet)
}

func (p *testProgress) OnResult(s harness.Status) {
	mark := markSuccess
	if !s.Success {
		mark = markFailure
	}
	p.bar.step("%s (%s) %s", s.Component.Function, s.Position(), mark)
	if s.Index == s.Total {
		p.bar.finish()
	}
}

func (p *testProgress) finish() {
	if p.bar != nil {
		p.bar.finish()
	}
}

// datasetProgress reports sample builds.
type datasetProgress struct {
	out   io.Writer
	quiet bool
	bar   *statusBar
}

func (p *datasetProgress) OnBuildStart(samples, workers int) {
	fmt.Fprintf(p.out, "building %d samples with %d workers\n", samples, workers)
	p.bar = newStatusBar(p.out, samples, "building samples", "samples/s", p.quiet)
}

func (p *datasetProgress) OnSampleBuilt(r dataset.Result) {
	if r.Built() {
		p.bar.step("%s %s %s", r.Label(), markSuccess, r.ID)
		return
	}
	p.bar.step("%s %s %v", r.Label(), markFailure, r.Err)
}

func (p *datasetProgress) finish() {
	if p.bar != nil {
		p.bar.finish()
	}
}

// batchProgress reports library jobs of parse-many.
type batchProgress struct {
	out     io.Writer
	quiet   bool
	verbose bool
	bar     *statusBar
}

func (p *batchProgress) OnBatchStart(libraries, workers int) {
	suffix := ""
	if p.verbose {
		suffix = " (verbose)"
	}
	fmt.Fprintf(p.out, "parsing %d libraries with %d workers%s\n", libraries, workers, suffix)
	p.bar = newStatusBar(p.out, libraries, "parsing libraries", "libs/s", p.quiet)
}

func (p *batchProgress) OnJobDone(o batch.Outcome) {
	switch {
	case o.Skipped:
		mark := markSuccess
		if o.Status != catalog.StatusSucceeded {
			mark = markFailure
		}
		if o.Found > 0 {
			p.bar.step("%s %s parsed previously %d/%d (%s)", o.Name, mark, o.Working, o.Found, percent(o.Working, o.Found))
			return
		}
		p.bar.step("%s %s parsed previously", o.Name, mark)
	case o.Err != nil:
		p.bar.step("%s %s %v", o.Name, markFailure, o.Err)
	default:
		p.bar.step("%s %s %d/%d (%s)", o.Name, markSuccess, o.Working, o.Found, percent(o.Working, o.Found))
	}
}

func (p *batchProgress) finish() {
	if p.bar != nil {
		p.bar.finish()
	}
}
