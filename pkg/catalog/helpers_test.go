package catalog_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/calvinalkan/slotstore/internal/testutil"
	"github.com/calvinalkan/slotstore/pkg/catalog"
)

type save struct {
	Level int    `json:"level"`
	Name  string `json:"name"`
}

type preview struct {
	Title string `json:"title"`
}

type noMeta = struct{}

func openTest[D, M any](t *testing.T, dir string, opts catalog.Options) *catalog.Manager[D, M] {
	t.Helper()

	if opts.Now == nil {
		opts.Now = testutil.NewClock().Now
	}

	if opts.LockTimeout == 0 {
		opts.LockTimeout = 5 * time.Second
	}

	m, err := catalog.Open[D, M](t.Context(), dir, opts)
	if err != nil {
		t.Fatalf("Open(%q): %v", dir, err)
	}

	return m
}

func readIndex(t *testing.T, dir string) *catalog.Index {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(dir, catalog.IndexFile))
	if err != nil {
		t.Fatalf("read index: %v", err)
	}

	var ix catalog.Index

	err = json.Unmarshal(data, &ix)
	if err != nil {
		t.Fatalf("decode index: %v\n%s", err, data)
	}

	return &ix
}

func writeIndex(t *testing.T, dir string, ix *catalog.Index) {
	t.Helper()

	data, err := json.Marshal(ix)
	if err != nil {
		t.Fatalf("encode index: %v", err)
	}

	err = os.WriteFile(filepath.Join(dir, catalog.IndexFile), data, 0o644)
	if err != nil {
		t.Fatalf("write index: %v", err)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()

	err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644)
	if err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func fileExists(t *testing.T, dir, name string) bool {
	t.Helper()

	_, err := os.Stat(filepath.Join(dir, name))
	if err == nil {
		return true
	}

	if errors.Is(err, os.ErrNotExist) {
		return false
	}

	t.Fatalf("stat %s: %v", name, err)

	return false
}

// seedEntry adds an entry backed by <id>.json to ix.
func seedEntry(t *testing.T, dir string, ix *catalog.Index, c catalog.Category, rev int64, ts time.Time) uuid.UUID {
	t.Helper()

	id := uuid.Must(uuid.NewV7())
	e := &catalog.Entry{Revision: rev, Timestamp: ts, Path: id.String() + ".json"}

	if c == catalog.Manual {
		ix.Manual[id] = e
		ix.ManualOrder = append(ix.ManualOrder, id)
	} else {
		ix.Automatic[id] = e
		ix.AutomaticOrder = append(ix.AutomaticOrder, id)
	}

	writeFile(t, dir, e.Path, `{"level":1,"name":"seeded"}`)

	return id
}

var t0 = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
