// Package durable implements crash-safe file reads and writes with
// per-path locking.
//
// A [Writer] guarantees that after any interruption a written path holds
// either its previous content or the complete new content. Writes go to a
// sibling temp file which then replaces the target. Every read and write
// holds the path's lock from a shared [LockTable] for its whole duration.
package durable

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/calvinalkan/slotstore/pkg/fs"
)

// Options configures a [Writer].
type Options struct {
	// FS is the filesystem to use. Defaults to [fs.Real].
	FS fs.FS

	// Locks is the lock registry. Writers that must serialize against each
	// other need the same table. Defaults to a private table.
	Locks *LockTable

	// Timeout bounds every lock wait. Zero or negative waits without limit
	// (a deadline on the call's context still applies).
	Timeout time.Duration

	// Perm is the mode of written files. Defaults to 0o644.
	Perm os.FileMode

	// SkipDirSync disables the parent directory fsync after a replace.
	SkipDirSync bool
}

// Writer reads and writes whole files atomically.
//
// Writer is safe for concurrent use.
type Writer struct {
	fs      fs.FS
	atomic  *fs.AtomicWriter
	locks   *LockTable
	timeout time.Duration
	opts    fs.AtomicWriteOptions
}

// New creates a Writer.
func New(opts Options) *Writer {
	fsys := opts.FS
	if fsys == nil {
		fsys = fs.NewReal()
	}

	locks := opts.Locks
	if locks == nil {
		locks = NewLockTable()
	}

	aw := fs.NewAtomicWriter(fsys)

	writeOpts := aw.DefaultOptions()
	if opts.Perm != 0 {
		writeOpts.Perm = opts.Perm
	}

	writeOpts.SyncDir = !opts.SkipDirSync

	return &Writer{
		fs:      fsys,
		atomic:  aw,
		locks:   locks,
		timeout: opts.Timeout,
		opts:    writeOpts,
	}
}

// Locks returns the lock table the writer uses.
func (w *Writer) Locks() *LockTable {
	return w.locks
}

// Read returns the full content of path.
// Returns an error matching [ErrNotFound] if path does not exist.
func (w *Writer) Read(ctx context.Context, path string) ([]byte, error) {
	key, err := Canonical(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	unlock, err := w.locks.Lock(ctx, key, w.timeout)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	defer unlock()

	data, err := w.fs.ReadFile(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read: %w: %s", ErrNotFound, key)
		}

		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	return data, nil
}

// ReadBatch reads every path concurrently. Results are in input order.
// The first failure cancels the remaining reads and is returned.
func (w *Writer) ReadBatch(ctx context.Context, paths []string) ([][]byte, error) {
	if ctx == nil {
		return nil, fmt.Errorf("read batch: %w: context is nil", ErrInvalidArgument)
	}

	out := make([][]byte, len(paths))

	g, gctx := errgroup.WithContext(ctx)

	for i, p := range paths {
		g.Go(func() error {
			data, err := w.Read(gctx, p)
			if err != nil {
				return err
			}

			out[i] = data

			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		return nil, err
	}

	return out, nil
}

// Write replaces the content of path atomically. Missing parent directories
// are created.
func (w *Writer) Write(ctx context.Context, path string, content []byte) error {
	key, err := Canonical(path)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}

	unlock, err := w.locks.Lock(ctx, key, w.timeout)
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	defer unlock()

	err = w.atomic.Write(key, bytes.NewReader(content), w.opts)
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}

	return nil
}

// WriteBatch writes contents[i] to paths[i] for every i.
//
// All temp files are written and synced first; only when every one of them
// succeeded are the targets replaced, in input order. If staging fails no
// target is touched. The replace phase is not transactional: an interruption
// or a failing rename part way through leaves the earlier targets replaced
// and the later ones untouched.
//
// Returns [ErrInvalidArgument] if the slices differ in length.
func (w *Writer) WriteBatch(ctx context.Context, paths []string, contents [][]byte) error {
	if len(paths) != len(contents) {
		return fmt.Errorf("write batch: %w: %d paths, %d contents", ErrInvalidArgument, len(paths), len(contents))
	}

	if len(paths) == 0 {
		return nil
	}

	keys := make([]string, len(paths))

	for i, p := range paths {
		key, err := Canonical(p)
		if err != nil {
			return fmt.Errorf("write batch: %w", err)
		}

		keys[i] = key
	}

	unlock, err := w.locks.LockAll(ctx, keys, w.timeout)
	if err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	defer unlock()

	staged, err := w.stageAll(keys, contents)
	if err != nil {
		return fmt.Errorf("write batch: %w", err)
	}

	for i, s := range staged {
		commitErr := s.Commit()
		if commitErr == nil {
			continue
		}

		applied := i
		if errors.Is(commitErr, fs.ErrAtomicWriteDirSync) {
			applied++
		}

		discardErr := discardAll(staged[i+1:])

		return errors.Join(
			fmt.Errorf("write batch: replace %s (%d of %d applied): %w", s.Path(), applied, len(staged), commitErr),
			discardErr,
		)
	}

	return nil
}

func (w *Writer) stageAll(keys []string, contents [][]byte) ([]*fs.Staged, error) {
	staged := make([]*fs.Staged, len(keys))

	var g errgroup.Group

	for i, key := range keys {
		g.Go(func() error {
			s, err := w.atomic.Stage(key, bytes.NewReader(contents[i]), w.opts)
			if err != nil {
				return fmt.Errorf("stage %s: %w", key, err)
			}

			staged[i] = s

			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		var ok []*fs.Staged

		for _, s := range staged {
			if s != nil {
				ok = append(ok, s)
			}
		}

		return nil, errors.Join(err, discardAll(ok))
	}

	return staged, nil
}

func discardAll(staged []*fs.Staged) error {
	var errs []error

	for _, s := range staged {
		if err := s.Discard(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Remove deletes path. Removing a missing path is not an error.
func (w *Writer) Remove(ctx context.Context, path string) error {
	key, err := Canonical(path)
	if err != nil {
		return fmt.Errorf("remove: %w", err)
	}

	unlock, err := w.locks.Lock(ctx, key, w.timeout)
	if err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	defer unlock()

	err = w.fs.Remove(key)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", key, err)
	}

	return nil
}

// Exists reports whether path exists.
func (w *Writer) Exists(ctx context.Context, path string) (bool, error) {
	key, err := Canonical(path)
	if err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}

	unlock, err := w.locks.Lock(ctx, key, w.timeout)
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	defer unlock()

	ok, err := w.fs.Exists(key)
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}

	return ok, nil
}
