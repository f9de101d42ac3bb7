// Package symbols extracts function names from compiled binaries.
package symbols

import "context"

// Source extracts function symbol names from a binary file.
//
// Implementations accept object files, executables and static archives.
// With exportedOnly set, only globally visible, defined functions are
// returned; otherwise every defined function is.
type Source interface {
	Extract(ctx context.Context, path string, exportedOnly bool) ([]string, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, path string, exportedOnly bool) ([]string, error)

func (f SourceFunc) Extract(ctx context.Context, path string, exportedOnly bool) ([]string, error) {
	return f(ctx, path, exportedOnly)
}
