package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const retryDelay = 100 * time.Millisecond

// FileLock hands out advisory file locks keyed by name. Locks are held by the
// operating system, so a crashed holder never leaves a stale lock behind.
type FileLock struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*flock.Flock
}

// NewFileLock creates a lock manager storing lock files in dir. An empty dir
// uses a directory under os.TempDir.
func NewFileLock(dir string, logger *slog.Logger) *FileLock {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "cinemate-locks")
	}
	logger.Debug("Using local file-based locking", slog.String("dir", dir))
	return &FileLock{
		dir:    dir,
		logger: logger,
		locks:  make(map[string]*flock.Flock),
	}
}

// TryLock attempts to acquire the lock for key, waiting up to timeout. It
// returns false without an error when another holder kept the lock for the
// whole timeout.
func (fl *FileLock) TryLock(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if _, held := fl.locks[key]; held {
		return false, nil
	}

	if err := os.MkdirAll(fl.dir, 0o750); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	lockFile := fl.getLockFilePath(key)
	fileLock := flock.New(lockFile)

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok, err := fileLock.TryLockContext(waitCtx, retryDelay)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return false, nil
		}
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}

	fl.locks[key] = fileLock
	fl.logger.Debug("Acquired lock", slog.String("key", key), slog.String("file", lockFile))
	return true, nil
}

// Unlock releases the lock for the given key. Unlocking a key that is not
// held is a no-op.
func (fl *FileLock) Unlock(ctx context.Context, key string) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	fileLock, held := fl.locks[key]
	if !held {
		return nil
	}
	delete(fl.locks, key)

	if err := fileLock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	fl.logger.Debug("Released lock", slog.String("key", key), slog.String("file", fileLock.Path()))
	return nil
}

// Close releases every lock still held.
func (fl *FileLock) Close() error {
	fl.mu.Lock()
	keys := make([]string, 0, len(fl.locks))
	for key := range fl.locks {
		keys = append(keys, key)
	}
	fl.mu.Unlock()

	var errs []error
	for _, key := range keys {
		if err := fl.Unlock(context.Background(), key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// getLockFilePath returns the file path for a lock key.
func (fl *FileLock) getLockFilePath(key string) string {
	// Base keeps keys from escaping the lock directory.
	return filepath.Join(fl.dir, filepath.Base(filepath.Clean(key))+".lock")
}
