package symbols

import (
	"context"
	"fmt"
	"os"

	"github.com/maypok86/otter"
)

// DefaultCacheSize is the number of extraction results kept by CachedSource.
const DefaultCacheSize = 4096

// CachedSource memoizes another Source. Entries are keyed by path, size and
// modification time, so a rewritten file is extracted again.
type CachedSource struct {
	source Source
	cache  otter.Cache[string, []string]
}

// NewCachedSource wraps source with a cache of the given capacity.
func NewCachedSource(source Source, capacity int) (*CachedSource, error) {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	cache, err := otter.MustBuilder[string, []string](capacity).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create symbol cache: %w", err)
	}
	return &CachedSource{source: source, cache: cache}, nil
}

func (c *CachedSource) Extract(ctx context.Context, path string, exportedOnly bool) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%s|%d|%d|%t", path, info.Size(), info.ModTime().UnixNano(), exportedOnly)

	if names, ok := c.cache.Get(key); ok {
		return append([]string(nil), names...), nil
	}

	names, err := c.source.Extract(ctx, path, exportedOnly)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, append([]string(nil), names...))
	return names, nil
}

// Close releases the cache.
func (c *CachedSource) Close() {
	c.cache.Close()
}
