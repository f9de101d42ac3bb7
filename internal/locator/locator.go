// Package locator resolves library names to library files on disk.
package locator

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound indicates a library name could not be resolved.
var ErrNotFound = errors.New("library not found")

// Locator resolves a library name to the path of its library file.
type Locator interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// Static resolves every name to the same, explicitly configured path.
type Static string

func (s Static) Resolve(ctx context.Context, name string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return string(s), nil
}
