package fs_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calvinalkan/slotstore/pkg/fs"
)

const testContentHello = "hello"

func Test_AtomicWriter_Write_Creates_File_With_Content(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "final.txt")

	writer := fs.NewAtomicWriter(fs.NewReal())

	err := writer.WriteWithDefaults(path, strings.NewReader(testContentHello))
	if err != nil {
		t.Fatalf("WriteWithDefaults: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(got) != testContentHello {
		t.Fatalf("content=%q, want %q", string(got), testContentHello)
	}

	assertNoTempFiles(t, filepath.Dir(path))
}

func Test_AtomicWriter_Stage_Leaves_Target_Untouched_Until_Commit(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "slot.json")

	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	writer := fs.NewAtomicWriter(fs.NewReal())

	staged, err := writer.Stage(path, strings.NewReader("new"), writer.DefaultOptions())
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "old" {
		t.Fatalf("content before commit=%q, want %q", got, "old")
	}

	if err := staged.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, _ = os.ReadFile(path)
	if string(got) != "new" {
		t.Fatalf("content after commit=%q, want %q", got, "new")
	}

	assertNoTempFiles(t, dir)
}

func Test_AtomicWriter_Discard_Removes_Temp_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "slot.json")

	writer := fs.NewAtomicWriter(fs.NewReal())

	staged, err := writer.Stage(path, strings.NewReader("new"), writer.DefaultOptions())
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}

	if err := staged.Discard(); err != nil {
		t.Fatalf("Discard: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("target exists after discard: err=%v", err)
	}

	assertNoTempFiles(t, dir)
}

func Test_AtomicWriter_Write_Keeps_Old_Content_When_Rename_Fails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "slot.json")

	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	faulty := fs.NewFaulty(nil)
	faulty.Inject(fs.Fault{Op: fs.OpRename, Contains: "slot.json"})

	writer := fs.NewAtomicWriter(faulty)

	err := writer.WriteWithDefaults(path, strings.NewReader("new"))
	if !errors.Is(err, fs.ErrInjected) {
		t.Fatalf("err=%v, want %v", err, fs.ErrInjected)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "old" {
		t.Fatalf("content=%q, want %q", got, "old")
	}

	assertNoTempFiles(t, dir)
}

func Test_AtomicWriter_Write_Returns_Error_When_Temp_File_Cannot_Be_Created(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "slot.json")

	faulty := fs.NewFaulty(nil)
	faulty.Inject(fs.Fault{Op: fs.OpOpenFile, Contains: ".tmp-"})

	writer := fs.NewAtomicWriter(faulty)

	err := writer.WriteWithDefaults(path, strings.NewReader("new"))
	if !errors.Is(err, fs.ErrInjected) {
		t.Fatalf("err=%v, want %v", err, fs.ErrInjected)
	}

	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("target exists after failed write: err=%v", statErr)
	}
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir(%q): %v", dir, err)
	}

	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}
