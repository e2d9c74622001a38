package fs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
)

// ErrAtomicWriteDirSync indicates the parent directory could not be synced after rename.
//
// When returned, the new file is in place but durability is not guaranteed.
// Callers can detect this with errors.Is(err, ErrAtomicWriteDirSync).
var ErrAtomicWriteDirSync = errors.New("dir sync")

// AtomicWriter writes files atomically using a sibling temp file and rename.
//
// A write is split in two steps so callers can batch them: [AtomicWriter.Stage]
// writes and syncs the temp file, [Staged.Commit] replaces the target.
// Until Commit, the target path still holds its previous content.
type AtomicWriter struct {
	fs FS
}

// NewAtomicWriter creates an AtomicWriter that uses the given filesystem.
// Panics if fs is nil.
func NewAtomicWriter(fs FS) *AtomicWriter {
	if fs == nil {
		panic("fs is nil")
	}

	return &AtomicWriter{fs: fs}
}

// AtomicWriteOptions configures write behavior.
type AtomicWriteOptions struct {
	// SyncDir controls whether the parent directory is synced after rename.
	// Default: true.
	SyncDir bool

	// Perm specifies the file permissions. Must be non-zero.
	// The file is always explicitly chmod'd to this mode, regardless of umask.
	Perm os.FileMode

	// MkdirAll creates missing parent directories before staging.
	MkdirAll bool
}

// DefaultOptions returns the default atomic write options.
func (*AtomicWriter) DefaultOptions() AtomicWriteOptions {
	return AtomicWriteOptions{
		SyncDir:  true,
		Perm:     0o644,
		MkdirAll: true,
	}
}

// Staged is a fully written and synced temp file waiting to replace its target.
// Exactly one of [Staged.Commit] or [Staged.Discard] must be called.
type Staged struct {
	fs      FS
	dir     string
	path    string
	tmpPath string
	syncDir bool
	done    bool
}

// Path returns the target path the staged file will replace.
func (s *Staged) Path() string {
	return s.path
}

// Write writes data from r to path atomically and durably.
//
// It writes to a temp file in the same directory, syncs it, renames it over
// path, then syncs the parent directory (if opts.SyncDir is true).
//
// If the directory sync step fails, the returned error satisfies
// errors.Is(err, ErrAtomicWriteDirSync).
func (w *AtomicWriter) Write(path string, reader io.Reader, opts AtomicWriteOptions) error {
	staged, err := w.Stage(path, reader, opts)
	if err != nil {
		return err
	}

	return staged.Commit()
}

// WriteWithDefaults writes content atomically using default options.
func (w *AtomicWriter) WriteWithDefaults(path string, r io.Reader) error {
	return w.Write(path, r, w.DefaultOptions())
}

// Stage writes data from r into a synced temp file next to path.
// The target is untouched until [Staged.Commit]. On error nothing is left
// behind.
func (w *AtomicWriter) Stage(path string, reader io.Reader, opts AtomicWriteOptions) (*Staged, error) {
	if reader == nil {
		panic("reader is nil")
	}

	if path == "" {
		return nil, errors.New("path is empty")
	}

	if opts.Perm == 0 {
		return nil, errors.New("opts.Perm must be non-zero")
	}

	dir, base := filepath.Split(path)
	if base == "" || base == string(os.PathSeparator) || base == "." {
		return nil, fmt.Errorf("path is invalid: %q", path)
	}

	if dir == "" {
		dir = "."
	}

	dir = filepath.Clean(dir)

	if opts.MkdirAll {
		err := w.fs.MkdirAll(dir, 0o755)
		if err != nil {
			return nil, fmt.Errorf("create dir %q: %w", dir, err)
		}
	}

	tmpFile, tmpPath, err := createAtomicTempFile(w.fs, dir, base, opts.Perm)
	if err != nil {
		return nil, err
	}

	cleanup := func() error {
		closeErr := closeTmpFile(tmpPath, tmpFile)
		removeErr := removeTempFile(w.fs, tmpPath)

		return errors.Join(closeErr, removeErr)
	}

	chmodErr := tmpFile.Chmod(opts.Perm)
	if chmodErr != nil {
		return nil, errors.Join(
			fmt.Errorf("chmod temp file %q: %w", tmpPath, chmodErr),
			cleanup(),
		)
	}

	writeErr := writeAndSyncTempFile(tmpFile, tmpPath, reader)
	if writeErr != nil {
		return nil, errors.Join(writeErr, cleanup())
	}

	closeErr := closeTmpFile(tmpPath, tmpFile)
	if closeErr != nil {
		return nil, errors.Join(closeErr, removeTempFile(w.fs, tmpPath))
	}

	return &Staged{
		fs:      w.fs,
		dir:     dir,
		path:    path,
		tmpPath: tmpPath,
		syncDir: opts.SyncDir,
	}, nil
}

// Commit renames the temp file over the target path and syncs the parent
// directory. On a rename failure the temp file is removed and the target
// keeps its previous content.
func (s *Staged) Commit() error {
	if s.done {
		return errors.New("staged write already finished")
	}

	s.done = true

	renameErr := s.fs.Rename(s.tmpPath, s.path)
	if renameErr != nil {
		return errors.Join(
			fmt.Errorf("rename: %w", renameErr),
			removeTempFile(s.fs, s.tmpPath),
		)
	}

	if s.syncDir {
		return fsyncDir(s.fs, s.dir)
	}

	return nil
}

// Discard removes the temp file. It is a no-op after Commit.
func (s *Staged) Discard() error {
	if s.done {
		return nil
	}

	s.done = true

	return removeTempFile(s.fs, s.tmpPath)
}

func writeAndSyncTempFile(file File, path string, r io.Reader) error {
	_, copyErr := io.Copy(file, r)
	if copyErr != nil {
		return fmt.Errorf("write temp file %q: %w", path, copyErr)
	}

	err := file.Sync()
	if err != nil {
		return fmt.Errorf("sync temp file %q: %w", path, err)
	}

	return nil
}

const atomicWriteMaxAttempts = 10000

var atomicWriteCounter atomic.Uint64

func createAtomicTempFile(fs FS, dir, base string, perm os.FileMode) (File, string, error) {
	for range atomicWriteMaxAttempts {
		seq := atomicWriteCounter.Add(1)
		path := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d", base, seq))

		file, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
		if err == nil {
			return file, path, nil
		}

		if os.IsExist(err) {
			continue
		}

		return nil, "", fmt.Errorf("create temp file: %w", err)
	}

	return nil, "", fmt.Errorf("exhausted temp file attempts in %q", dir)
}

func fsyncDir(fs FS, dirPath string) error {
	dirFd, err := fs.Open(dirPath)
	if err != nil {
		return errors.Join(ErrAtomicWriteDirSync, fmt.Errorf("open dir %q: %w", dirPath, err))
	}

	syncErr := dirFd.Sync()
	if syncErr == nil {
		return closeDir(dirPath, dirFd)
	}

	return errors.Join(
		ErrAtomicWriteDirSync,
		fmt.Errorf("%q: %w", dirPath, syncErr),
		closeDir(dirPath, dirFd),
	)
}

func closeDir(dir string, file File) error {
	err := file.Close()
	if err == nil {
		return nil
	}

	return fmt.Errorf("close dir %q: %w", dir, err)
}

func closeTmpFile(path string, file File) error {
	err := file.Close()
	if err == nil || errors.Is(err, os.ErrClosed) {
		return nil
	}

	return fmt.Errorf("close temp file %q: %w", path, err)
}

func removeTempFile(fs FS, path string) error {
	err := fs.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove temp file %q: %w", path, err)
	}

	return nil
}
