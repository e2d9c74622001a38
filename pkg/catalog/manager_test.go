package catalog_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/calvinalkan/slotstore/pkg/catalog"
	"github.com/calvinalkan/slotstore/pkg/durable"
	"github.com/calvinalkan/slotstore/pkg/fs"
)

func Test_Open_Writes_Empty_Index_When_Directory_Is_Empty(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "saves")
	openTest[save, noMeta](t, dir, catalog.Options{})

	data, err := os.ReadFile(filepath.Join(dir, catalog.IndexFile))
	if err != nil {
		t.Fatalf("read index: %v", err)
	}

	var got map[string]any

	err = json.Unmarshal(data, &got)
	if err != nil {
		t.Fatalf("decode index: %v", err)
	}

	want := map[string]any{
		"revisio_proximus": float64(0),
		"versio":           float64(0),
		"manualis":         map[string]any{},
		"ordo_manualis":    []any{},
		"automaticus":      map[string]any{},
		"ordo_automaticus": []any{},
		"novissimus":       nil,
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("index.json mismatch (-want +got):\n%s", diff)
	}
}

func Test_Get_Returns_Created_Payload(t *testing.T) {
	t.Parallel()

	m := openTest[save, noMeta](t, t.TempDir(), catalog.Options{})

	for _, want := range []save{{Level: 1, Name: "start"}, {Level: 99, Name: "boss ✓"}, {}} {
		id, err := m.CreateManual(t.Context(), want, noMeta{})
		if err != nil {
			t.Fatalf("CreateManual: %v", err)
		}

		rec, err := m.Get(t.Context(), id)
		if err != nil {
			t.Fatalf("Get(%s): %v", id, err)
		}

		if diff := cmp.Diff(want, rec.Payload); diff != "" {
			t.Fatalf("payload mismatch (-want +got):\n%s", diff)
		}

		if rec.ID != id || rec.Category != catalog.Manual {
			t.Fatalf("record = %+v, want id %s in manual", rec, id)
		}
	}
}

func Test_Create_Returns_Fresh_ID_At_Head_Of_Its_List(t *testing.T) {
	t.Parallel()

	m := openTest[save, noMeta](t, t.TempDir(), catalog.Options{})
	seen := map[uuid.UUID]bool{}

	for i := range 4 {
		create, list := m.CreateManual, m.ListManual
		if i%2 == 1 {
			create, list = m.CreateAutomatic, m.ListAutomatic
		}

		id, err := create(t.Context(), save{Level: i}, noMeta{})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}

		if seen[id] {
			t.Fatalf("create %d returned reused id %s", i, id)
		}

		seen[id] = true

		ids, err := list(t.Context())
		if err != nil {
			t.Fatalf("list: %v", err)
		}

		if len(ids) == 0 || ids[0] != id {
			t.Fatalf("list after create %d = %v, want %s at head", i, ids, id)
		}
	}
}

func Test_CreateAutomatic_Evicts_Oldest_When_Capacity_Is_Exceeded(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := openTest[save, noMeta](t, dir, catalog.Options{AutomaticCapacity: 2})

	var ids []uuid.UUID

	for i := range 3 {
		id, err := m.CreateAutomatic(t.Context(), save{Level: i}, noMeta{})
		if err != nil {
			t.Fatalf("CreateAutomatic %d: %v", i, err)
		}

		ids = append(ids, id)
	}

	got, err := m.ListAutomatic(t.Context())
	if err != nil {
		t.Fatalf("ListAutomatic: %v", err)
	}

	if diff := cmp.Diff([]uuid.UUID{ids[2], ids[1]}, got); diff != "" {
		t.Fatalf("ListAutomatic mismatch (-want +got):\n%s", diff)
	}

	if fileExists(t, dir, ids[0].String()+".json") {
		t.Fatalf("payload of evicted entry %s still exists", ids[0])
	}

	_, err = m.Get(t.Context(), ids[0])
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("Get(evicted): err=%v, want %v", err, catalog.ErrNotFound)
	}

	latest, ok, err := m.LatestID(t.Context())
	if err != nil || !ok || latest != ids[2] {
		t.Fatalf("LatestID() = (%s, %t, %v), want (%s, true, nil)", latest, ok, err, ids[2])
	}
}

func Test_CreateAutomatic_Keeps_Nothing_When_Automatic_Is_Disabled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := openTest[save, noMeta](t, dir, catalog.Options{DisableAutomatic: true})

	manual, err := m.CreateManual(t.Context(), save{Name: "m"}, noMeta{})
	if err != nil {
		t.Fatalf("CreateManual: %v", err)
	}

	auto, err := m.CreateAutomatic(t.Context(), save{Name: "a"}, noMeta{})
	if err != nil {
		t.Fatalf("CreateAutomatic: %v", err)
	}

	if fileExists(t, dir, auto.String()+".json") {
		t.Fatalf("automatic payload kept with capacity 0")
	}

	latest, ok, err := m.LatestID(t.Context())
	if err != nil || !ok || latest != manual {
		t.Fatalf("LatestID() = (%s, %t, %v), want manual %s", latest, ok, err, manual)
	}
}

func Test_Update_Moves_Entry_To_Head_Of_Own_List_Only(t *testing.T) {
	t.Parallel()

	m := openTest[save, noMeta](t, t.TempDir(), catalog.Options{})
	ctx := t.Context()

	a, _ := m.CreateAutomatic(ctx, save{Name: "a"}, noMeta{})
	m1, _ := m.CreateManual(ctx, save{Name: "m1"}, noMeta{})
	m2, _ := m.CreateManual(ctx, save{Name: "m2"}, noMeta{})
	b, _ := m.CreateAutomatic(ctx, save{Name: "b"}, noMeta{})

	before, err := m.Get(ctx, a)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	rev, err := m.Update(ctx, a, save{Name: "a2", Level: 2}, noMeta{})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if rev <= before.Revision || rev != 4 {
		t.Fatalf("Update revision = %d, want 4 (was %d)", rev, before.Revision)
	}

	auto, _ := m.ListAutomatic(ctx)
	if diff := cmp.Diff([]uuid.UUID{a, b}, auto); diff != "" {
		t.Fatalf("ListAutomatic mismatch (-want +got):\n%s", diff)
	}

	manual, _ := m.ListManual(ctx)
	if diff := cmp.Diff([]uuid.UUID{m2, m1}, manual); diff != "" {
		t.Fatalf("ListManual changed (-want +got):\n%s", diff)
	}

	rec, err := m.Get(ctx, a)
	if err != nil {
		t.Fatalf("Get after update: %v", err)
	}

	if rec.Category != catalog.Automatic || rec.Revision != rev || rec.Payload.Name != "a2" {
		t.Fatalf("record after update = %+v", rec)
	}

	latest, _, _ := m.LatestID(ctx)
	if latest != a {
		t.Fatalf("LatestID() = %s, want updated %s", latest, a)
	}
}

func Test_Update_Returns_ErrNotFound_When_ID_Is_Unknown(t *testing.T) {
	t.Parallel()

	m := openTest[save, noMeta](t, t.TempDir(), catalog.Options{})

	_, err := m.Update(t.Context(), uuid.New(), save{}, noMeta{})
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("Update(unknown): err=%v, want %v", err, catalog.ErrNotFound)
	}

	st, err := m.Stat(t.Context())
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}

	if st.NextRevision != 0 {
		t.Fatalf("NextRevision = %d after failed update, want 0", st.NextRevision)
	}
}

func Test_Delete_Falls_Back_To_Next_Latest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := openTest[save, noMeta](t, dir, catalog.Options{})
	ctx := t.Context()

	first, _ := m.CreateManual(ctx, save{Name: "first"}, noMeta{})
	second, _ := m.CreateAutomatic(ctx, save{Name: "second"}, noMeta{})

	err := m.Delete(ctx, second)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}

	_, err = m.Get(ctx, second)
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("Get(deleted): err=%v, want %v", err, catalog.ErrNotFound)
	}

	if fileExists(t, dir, second.String()+".json") {
		t.Fatalf("payload of deleted entry still exists")
	}

	latest, ok, _ := m.LatestID(ctx)
	if !ok || latest != first {
		t.Fatalf("LatestID() = (%s, %t), want %s", latest, ok, first)
	}

	err = m.Delete(ctx, first)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}

	_, ok, _ = m.LatestID(ctx)
	if ok {
		t.Fatalf("LatestID() reported an entry in an empty catalog")
	}

	if ix := readIndex(t, dir); ix.Latest != nil || ix.NextRevision != 2 {
		t.Fatalf("persisted index = latest %v, next %d; want nil, 2", ix.Latest, ix.NextRevision)
	}

	err = m.Delete(ctx, first)
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("Delete twice: err=%v, want %v", err, catalog.ErrNotFound)
	}
}

func Test_Mutations_Are_Visible_After_Reopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := openTest[save, noMeta](t, dir, catalog.Options{AutomaticCapacity: 3})
	ctx := t.Context()

	manual, _ := m.CreateManual(ctx, save{Name: "m"}, noMeta{})
	auto, _ := m.CreateAutomatic(ctx, save{Name: "a"}, noMeta{})
	_, _ = m.Update(ctx, manual, save{Name: "m2"}, noMeta{})

	reopened := openTest[save, noMeta](t, dir, catalog.Options{AutomaticCapacity: 3})

	want, _ := m.Stat(ctx)
	got, _ := reopened.Stat(ctx)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Stat after reopen (-before +after):\n%s", diff)
	}

	rec, err := reopened.Get(ctx, manual)
	if err != nil || rec.Payload.Name != "m2" || rec.Revision != 2 {
		t.Fatalf("Get(manual) after reopen = %+v, %v", rec, err)
	}

	ids, _ := reopened.ListAutomatic(ctx)
	if diff := cmp.Diff([]uuid.UUID{auto}, ids); diff != "" {
		t.Fatalf("ListAutomatic after reopen (-want +got):\n%s", diff)
	}
}

func Test_Open_Returns_ErrCorrupt_When_Index_Is_Malformed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, catalog.IndexFile, `{"revisio_proximus": "nope"`)

	_, err := catalog.Open[save, noMeta](t.Context(), dir, catalog.Options{})
	if !errors.Is(err, catalog.ErrCorrupt) {
		t.Fatalf("Open: err=%v, want %v", err, catalog.ErrCorrupt)
	}

	data, _ := os.ReadFile(filepath.Join(dir, catalog.IndexFile))
	if string(data) != `{"revisio_proximus": "nope"` {
		t.Fatalf("corrupt index was rewritten: %q", data)
	}
}

func Test_Get_Returns_ErrCorrupt_When_Payload_Is_Malformed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := openTest[save, noMeta](t, dir, catalog.Options{})

	id, _ := m.CreateManual(t.Context(), save{}, noMeta{})
	writeFile(t, dir, id.String()+".json", "{broken")

	_, err := m.Get(t.Context(), id)
	if !errors.Is(err, catalog.ErrCorrupt) {
		t.Fatalf("Get: err=%v, want %v", err, catalog.ErrCorrupt)
	}
}

func Test_Open_Rejects_Invalid_Options(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		dir  string
		opts catalog.Options
	}{
		{name: "EmptyDir", dir: "", opts: catalog.Options{}},
		{name: "NegativeCapacity", dir: t.TempDir(), opts: catalog.Options{AutomaticCapacity: -1}},
		{name: "NegativeTimeout", dir: t.TempDir(), opts: catalog.Options{LockTimeout: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := catalog.Open[save, noMeta](t.Context(), tt.dir, tt.opts)
			if !errors.Is(err, catalog.ErrInvalidArgument) {
				t.Fatalf("Open: err=%v, want %v", err, catalog.ErrInvalidArgument)
			}
		})
	}
}

func Test_Operations_Return_ErrTimeout_When_Catalog_Lock_Is_Held(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := openTest[save, noMeta](t, dir, catalog.Options{LockTimeout: 30 * time.Millisecond})
	ctx := t.Context()

	existing, _ := m.CreateManual(ctx, save{Name: "x"}, noMeta{})

	unlock, err := m.HoldLockForTest(ctx)
	if err != nil {
		t.Fatalf("HoldLockForTest: %v", err)
	}

	calls := map[string]func() error{
		"CreateManual": func() error { _, err := m.CreateManual(ctx, save{}, noMeta{}); return err },
		"Update":       func() error { _, err := m.Update(ctx, existing, save{}, noMeta{}); return err },
		"Delete":       func() error { return m.Delete(ctx, existing) },
		"Get":          func() error { _, err := m.Get(ctx, existing); return err },
		"ListManual":   func() error { _, err := m.ListManual(ctx); return err },
		"LatestID":     func() error { _, _, err := m.LatestID(ctx); return err },
	}

	for name, call := range calls {
		err := call()
		if !errors.Is(err, catalog.ErrTimeout) {
			t.Fatalf("%s while locked: err=%v, want %v", name, err, catalog.ErrTimeout)
		}
	}

	unlock()

	st, err := m.Stat(ctx)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}

	if st.Manual != 1 || st.NextRevision != 1 {
		t.Fatalf("state changed by timed out calls: %+v", st)
	}

	if ix := readIndex(t, dir); ix.NextRevision != 1 || len(ix.Manual) != 1 {
		t.Fatalf("index changed by timed out calls: %+v", ix)
	}
}

func Test_Create_Returns_ErrTimeout_And_Changes_Nothing_When_Index_File_Is_Locked(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	locks := durable.NewLockTable()
	m := openTest[save, noMeta](t, dir, catalog.Options{Locks: locks, LockTimeout: 30 * time.Millisecond})

	unlock, err := locks.Lock(t.Context(), filepath.Join(dir, catalog.IndexFile), 0)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	_, err = m.CreateManual(t.Context(), save{Name: "x"}, noMeta{})
	if !errors.Is(err, catalog.ErrTimeout) {
		t.Fatalf("CreateManual: err=%v, want %v", err, catalog.ErrTimeout)
	}

	unlock()

	ids, _ := m.ListManual(t.Context())
	if len(ids) != 0 {
		t.Fatalf("ListManual = %v after timed out create", ids)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("directory has %d files after timed out create, want only the index", len(entries))
	}
}

func Test_Create_Leaves_Catalog_Unchanged_When_Index_Write_Fails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	faulty := fs.NewFaulty(nil)
	m := openTest[save, noMeta](t, dir, catalog.Options{FS: faulty})

	faulty.Inject(fs.Fault{Op: fs.OpRename, Contains: catalog.IndexFile, Times: 1})

	_, err := m.CreateManual(t.Context(), save{Name: "lost"}, noMeta{})
	if !errors.Is(err, fs.ErrInjected) {
		t.Fatalf("CreateManual: err=%v, want %v", err, fs.ErrInjected)
	}

	ids, _ := m.ListManual(t.Context())
	if len(ids) != 0 {
		t.Fatalf("ListManual = %v after failed persist", ids)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("directory has %d files after failed persist, want only the index", len(entries))
	}

	id, err := m.CreateManual(t.Context(), save{Name: "kept"}, noMeta{})
	if err != nil {
		t.Fatalf("CreateManual after fault: %v", err)
	}

	rec, _ := m.Get(t.Context(), id)
	if rec.Revision != 0 {
		t.Fatalf("revision after failed create = %d, want 0 (counter must not advance)", rec.Revision)
	}
}

func Test_Create_Fails_Before_Waiting_When_Payload_Cannot_Be_Encoded(t *testing.T) {
	t.Parallel()

	m := openTest[json.RawMessage, noMeta](t, t.TempDir(), catalog.Options{LockTimeout: catalog.NoTimeout})

	unlock, err := m.HoldLockForTest(t.Context())
	if err != nil {
		t.Fatalf("HoldLockForTest: %v", err)
	}
	defer unlock()

	_, err = m.CreateManual(t.Context(), json.RawMessage("{"), noMeta{})
	if !errors.Is(err, catalog.ErrInvalidArgument) {
		t.Fatalf("CreateManual: err=%v, want %v", err, catalog.ErrInvalidArgument)
	}
}

func Test_Metadata_Is_Stored_Beside_Payload_When_Enabled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := openTest[save, preview](t, dir, catalog.Options{WithMetadata: true})

	id, err := m.CreateManual(t.Context(), save{Level: 3}, preview{Title: "Cave"})
	if err != nil {
		t.Fatalf("CreateManual: %v", err)
	}

	if !fileExists(t, dir, id.String()+"_n.json") {
		t.Fatalf("metadata file missing")
	}

	rec, err := m.GetMetadata(t.Context(), id)
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}

	if rec.Payload.Title != "Cave" {
		t.Fatalf("metadata = %+v", rec.Payload)
	}

	_, err = m.Update(t.Context(), id, save{Level: 4}, preview{Title: "Lake"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	rec, _ = m.GetMetadata(t.Context(), id)
	if rec.Payload.Title != "Lake" || rec.Revision != 1 {
		t.Fatalf("metadata after update = %+v", rec)
	}

	ix := readIndex(t, dir)
	if got := ix.Manual[id].MetadataPath; got != id.String()+"_n.json" {
		t.Fatalf("path_notitia = %q", got)
	}

	err = m.Delete(t.Context(), id)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if fileExists(t, dir, id.String()+"_n.json") {
		t.Fatalf("metadata file kept after delete")
	}
}

func Test_GetMetadata_Returns_ErrInvalidArgument_When_Metadata_Is_Disabled(t *testing.T) {
	t.Parallel()

	m := openTest[save, preview](t, t.TempDir(), catalog.Options{})

	id, _ := m.CreateManual(t.Context(), save{}, preview{Title: "ignored"})

	_, err := m.GetMetadata(t.Context(), id)
	if !errors.Is(err, catalog.ErrInvalidArgument) {
		t.Fatalf("GetMetadata: err=%v, want %v", err, catalog.ErrInvalidArgument)
	}
}

func Test_Concurrent_Creates_Get_Unique_Revisions(t *testing.T) {
	t.Parallel()

	m := openTest[save, noMeta](t, t.TempDir(), catalog.Options{AutomaticCapacity: 100})

	const workers = 20

	var wg sync.WaitGroup

	for i := range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			create := m.CreateManual
			if i%2 == 0 {
				create = m.CreateAutomatic
			}

			_, err := create(t.Context(), save{Level: i}, noMeta{})
			if err != nil {
				t.Errorf("create %d: %v", i, err)
			}
		}()
	}

	wg.Wait()

	summaries := make(map[int64]uuid.UUID)

	for _, c := range []catalog.Category{catalog.Manual, catalog.Automatic} {
		entries, err := m.Entries(t.Context(), c)
		if err != nil {
			t.Fatalf("Entries: %v", err)
		}

		for i, e := range entries {
			if other, dup := summaries[e.Revision]; dup {
				t.Fatalf("revision %d used by %s and %s", e.Revision, other, e.ID)
			}

			summaries[e.Revision] = e.ID

			if i > 0 && entries[i-1].Revision < e.Revision {
				t.Fatalf("%s entries not in descending revision order", c)
			}
		}
	}

	if len(summaries) != workers {
		t.Fatalf("got %d entries, want %d", len(summaries), workers)
	}

	st, _ := m.Stat(t.Context())
	if st.NextRevision != workers || st.Latest == nil || st.Latest.Revision != workers-1 {
		t.Fatalf("Stat = %+v", st)
	}
}

func Test_Managers_Sharing_A_LockTable_Work_On_Separate_Directories(t *testing.T) {
	t.Parallel()

	locks := durable.NewLockTable()
	a := openTest[save, noMeta](t, t.TempDir(), catalog.Options{Locks: locks})
	b := openTest[save, noMeta](t, t.TempDir(), catalog.Options{Locks: locks})

	idA, err := a.CreateManual(t.Context(), save{Name: "a"}, noMeta{})
	if err != nil {
		t.Fatalf("a.CreateManual: %v", err)
	}

	_, err = b.Get(t.Context(), idA)
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("b.Get(a's id): err=%v, want %v", err, catalog.ErrNotFound)
	}

	if locks.Len() != 0 {
		t.Fatalf("lock table holds %d entries while idle", locks.Len())
	}
}
