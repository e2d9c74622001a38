package durable

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// LockTable is a registry of exclusive locks keyed by canonical absolute path.
//
// Every [Writer] that must serialize against another one has to share the
// same table; two tables never see each other's locks. The table is process
// local and gives no guarantee against other processes.
//
// Locks are created on first use and dropped once nobody holds or waits for
// them, so the table does not grow with the number of distinct paths ever
// touched.
//
// The zero value is not usable; use [NewLockTable].
type LockTable struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	sem  *semaphore.Weighted
	refs int
}

// NewLockTable returns an empty lock registry.
func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[string]*pathLock)}
}

// Unlock releases locks obtained from [LockTable.Lock] or [LockTable.LockAll].
// Calling it more than once is a no-op.
type Unlock func()

// Canonical returns the key used for path: absolute and lexically cleaned.
// Symlinks are not resolved because the path may not exist yet.
func Canonical(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: path is empty", ErrInvalidArgument)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("canonical path %q: %w", path, err)
	}

	return filepath.Clean(abs), nil
}

// Lock acquires the exclusive lock for path.
//
// timeout > 0 bounds the wait; timeout <= 0 waits until the lock is free or
// ctx is done. An expired wait returns an error matching [ErrTimeout].
// A canceled ctx returns the context error.
func (t *LockTable) Lock(ctx context.Context, path string, timeout time.Duration) (Unlock, error) {
	return t.LockAll(ctx, []string{path}, timeout)
}

// LockAll acquires the locks for every path. Paths are deduplicated and
// acquired in sorted order so concurrent batches over overlapping paths
// cannot deadlock. The timeout covers the whole acquisition. On failure no
// lock is held.
func (t *LockTable) LockAll(ctx context.Context, paths []string, timeout time.Duration) (Unlock, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: context is nil", ErrInvalidArgument)
	}

	keys := make([]string, 0, len(paths))

	for _, p := range paths {
		key, err := Canonical(p)
		if err != nil {
			return nil, err
		}

		keys = append(keys, key)
	}

	slices.Sort(keys)
	keys = slices.Compact(keys)

	if timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	held := make([]string, 0, len(keys))

	for _, key := range keys {
		err := t.acquire(ctx, key)
		if err != nil {
			t.releaseAll(held)

			return nil, err
		}

		held = append(held, key)
	}

	var once sync.Once

	return func() {
		once.Do(func() { t.releaseAll(held) })
	}, nil
}

func (t *LockTable) acquire(ctx context.Context, key string) error {
	t.mu.Lock()

	pl, ok := t.locks[key]
	if !ok {
		pl = &pathLock{sem: semaphore.NewWeighted(1)}
		t.locks[key] = pl
	}

	pl.refs++
	t.mu.Unlock()

	err := pl.sem.Acquire(ctx, 1)
	if err == nil {
		return nil
	}

	t.unref(key, pl)

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrTimeout, key)
	}

	return fmt.Errorf("lock %s: %w", key, err)
}

func (t *LockTable) releaseAll(keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		t.mu.Lock()
		pl := t.locks[keys[i]]
		t.mu.Unlock()

		pl.sem.Release(1)
		t.unref(keys[i], pl)
	}
}

func (t *LockTable) unref(key string, pl *pathLock) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pl.refs--
	if pl.refs == 0 {
		delete(t.locks, key)
	}
}

// Len returns the number of paths currently locked or waited on.
func (t *LockTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.locks)
}
