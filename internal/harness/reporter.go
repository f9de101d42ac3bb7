package harness

import (
	"fmt"

	"github.com/helix-datasets/blind-helix/internal/library"
)

// Status is the outcome of testing one component.
type Status struct {
	Index     int // 1-based position
	Total     int
	Component library.Component
	Success   bool
	Reason    string // failure mode for known failures
}

// Position formats the status position as "i/n".
func (s Status) Position() string {
	return fmt.Sprintf("%d/%d", s.Index, s.Total)
}

// Reporter receives per-component progress from TestAll.
type Reporter interface {
	// OnStart is called once with the number of components to test.
	OnStart(total int)

	// OnResult is called after each component, in test order.
	OnResult(status Status)
}

// NoOpReporter discards progress.
type NoOpReporter struct{}

func (NoOpReporter) OnStart(total int)      {}
func (NoOpReporter) OnResult(status Status) {}

// LogReporter writes one line per component through a printf-style sink.
type LogReporter struct {
	Printf func(format string, args ...any)
}

func (r LogReporter) OnStart(total int) {}

func (r LogReporter) OnResult(s Status) {
	if r.Printf == nil {
		return
	}
	if s.Success {
		r.Printf("%s (%s) ✓", s.Component.Function, s.Position())
		return
	}
	r.Printf("%s (%s) ✗", s.Component.Function, s.Position())
}
