package dataset

import (
	"fmt"
	"strings"

	"github.com/helix-datasets/blind-helix/internal/library"
)

// Result is the outcome of building one sample.
type Result struct {
	ID         string
	Components []library.Component
	Tags       library.TagSet
	Err        error
}

// Built reports whether the sample produced a labeled artifact.
func (r Result) Built() bool {
	return r.Err == nil && r.ID != "" && r.Tags != nil
}

// Label is the bracketed component list, e.g. "[z-deflate, png-read]".
func (r Result) Label() string {
	names := make([]string, len(r.Components))
	for i, c := range r.Components {
		names[i] = c.Name()
	}
	return fmt.Sprintf("[%s]", strings.Join(names, ", "))
}

// Reporter receives dataset build progress. OnSampleBuilt may be called
// from several workers at once.
type Reporter interface {
	OnBuildStart(samples, workers int)
	OnSampleBuilt(result Result)
}

// NoOpReporter discards progress.
type NoOpReporter struct{}

func (NoOpReporter) OnBuildStart(samples, workers int) {}
func (NoOpReporter) OnSampleBuilt(result Result)       {}
