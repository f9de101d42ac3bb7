package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// LockFile is the lock file name inside a batch output directory.
const LockFile = ".lock"

// lockRetryDelay is how often a contended lock is retried.
const lockRetryDelay = 100 * time.Millisecond

// Lock serializes access to single-user resources across every worker of
// every process sharing the output directory. Goroutines queue on the
// mutex, processes on the file lock.
type Lock struct {
	mu   sync.Mutex
	file *flock.Flock
}

// NewLock creates a lock backed by the file at path.
func NewLock(path string) *Lock {
	return &Lock{file: flock.New(path)}
}

// Do runs fn while holding the lock.
func (l *Lock) Do(ctx context.Context, fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	locked, err := l.file.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", l.file.Path(), err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire lock %s", l.file.Path())
	}
	defer l.file.Unlock()

	return fn()
}
