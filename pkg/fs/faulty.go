package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrInjected is the default error returned by [Faulty] rules without an
// explicit error.
var ErrInjected = errors.New("injected fault")

// Op names an [FS] method that [Faulty] can intercept.
type Op string

// Interceptable operations.
const (
	OpOpen     Op = "open"
	OpOpenFile Op = "openfile"
	OpReadFile Op = "readfile"
	OpMkdirAll Op = "mkdirall"
	OpStat     Op = "stat"
	OpExists   Op = "exists"
	OpRemove   Op = "remove"
	OpRename   Op = "rename"
)

// Fault describes one injected failure.
type Fault struct {
	// Op is the intercepted operation.
	Op Op

	// Contains matches paths containing this substring. Empty matches all.
	// For [OpRename] the destination path is matched.
	Contains string

	// Err is returned instead of calling the wrapped FS. Defaults to [ErrInjected].
	Err error

	// Times limits how often the fault fires. Zero means every time.
	Times int
}

// Faulty is an [FS] wrapper that fails selected operations.
//
// It is meant for tests: it lets a caller make the Nth rename of an index
// file fail, or make a payload unreadable, without touching real permissions.
type Faulty struct {
	fs FS

	mu     sync.Mutex
	faults []*faultState
	calls  map[Op]int
}

type faultState struct {
	Fault

	fired int
}

// NewFaulty wraps fs. A nil fs wraps [Real].
func NewFaulty(fs FS) *Faulty {
	if fs == nil {
		fs = NewReal()
	}

	return &Faulty{
		fs:    fs,
		calls: make(map[Op]int),
	}
}

// Inject adds a fault rule. Rules are checked in insertion order.
func (f *Faulty) Inject(fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if fault.Err == nil {
		fault.Err = ErrInjected
	}

	f.faults = append(f.faults, &faultState{Fault: fault})
}

// Reset removes all fault rules and call counts.
func (f *Faulty) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.faults = nil
	f.calls = make(map[Op]int)
}

// Calls returns how often op was invoked, including failed invocations.
func (f *Faulty) Calls(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[op]
}

func (f *Faulty) check(op Op, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[op]++

	for _, st := range f.faults {
		if st.Op != op || !strings.Contains(path, st.Contains) {
			continue
		}

		if st.Times > 0 && st.fired >= st.Times {
			continue
		}

		st.fired++

		return &os.PathError{Op: string(op), Path: path, Err: st.Err}
	}

	return nil
}

func (f *Faulty) Open(path string) (File, error) {
	if err := f.check(OpOpen, path); err != nil {
		return nil, err
	}

	return f.fs.Open(path)
}

func (f *Faulty) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	if err := f.check(OpOpenFile, path); err != nil {
		return nil, err
	}

	return f.fs.OpenFile(path, flag, perm)
}

func (f *Faulty) ReadFile(path string) ([]byte, error) {
	if err := f.check(OpReadFile, path); err != nil {
		return nil, err
	}

	return f.fs.ReadFile(path)
}

func (f *Faulty) MkdirAll(path string, perm os.FileMode) error {
	if err := f.check(OpMkdirAll, path); err != nil {
		return err
	}

	return f.fs.MkdirAll(path, perm)
}

func (f *Faulty) Stat(path string) (os.FileInfo, error) {
	if err := f.check(OpStat, path); err != nil {
		return nil, err
	}

	return f.fs.Stat(path)
}

func (f *Faulty) Exists(path string) (bool, error) {
	if err := f.check(OpExists, path); err != nil {
		return false, err
	}

	return f.fs.Exists(path)
}

func (f *Faulty) Remove(path string) error {
	if err := f.check(OpRemove, path); err != nil {
		return err
	}

	return f.fs.Remove(path)
}

func (f *Faulty) Rename(oldpath, newpath string) error {
	if err := f.check(OpRename, newpath); err != nil {
		return err
	}

	return f.fs.Rename(oldpath, newpath)
}

// Compile-time interface check.
var _ FS = (*Faulty)(nil)
