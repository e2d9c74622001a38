package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/calvinalkan/slotstore/internal/testutil/model"
	"github.com/calvinalkan/slotstore/pkg/catalog"
)

// Harness runs operations against a real catalog and the model side by side.
type Harness struct {
	TB      testing.TB
	Dir     string
	Clock   *Clock
	Model   *model.Model
	Catalog *catalog.Manager[string, struct{}]

	opts catalog.Options
}

// NewHarness opens a catalog in a fresh temp dir with the given automatic
// capacity.
func NewHarness(tb testing.TB, capacity int) *Harness {
	tb.Helper()

	clock := NewClock()

	h := &Harness{
		TB:    tb,
		Dir:   tb.TempDir(),
		Clock: clock,
		Model: model.New(capacity),
		opts: catalog.Options{
			AutomaticCapacity: capacity,
			DisableAutomatic:  capacity == 0,
			LockTimeout:       10 * time.Second,
			Now:               clock.Now,
		},
	}

	h.open()

	return h
}

func (h *Harness) open() {
	h.TB.Helper()

	m, err := catalog.Open[string, struct{}](h.TB.Context(), h.Dir, h.opts)
	if err != nil {
		h.TB.Fatalf("open catalog: %v", err)
	}

	h.Catalog = m
}

// Reopen discards the Manager and opens the directory again.
func (h *Harness) Reopen() {
	h.TB.Helper()

	h.open()
	h.Model.Reopen()
}

// Apply runs op against the catalog and the model. It returns an error
// describing the first disagreement.
func (h *Harness) Apply(op Op) error {
	ctx := h.TB.Context()

	switch op.Kind {
	case OpCreateManual, OpCreateAutomatic:
		create, category := h.Catalog.CreateManual, model.Manual
		if op.Kind == OpCreateAutomatic {
			create, category = h.Catalog.CreateAutomatic, model.Automatic
		}

		id, err := create(ctx, op.Payload, struct{}{})
		if err != nil {
			return fmt.Errorf("real failed: %w", err)
		}

		for _, gone := range h.Model.Create(category, id, op.Payload) {
			_, statErr := os.Stat(filepath.Join(h.Dir, gone.String()+".json"))
			if !errors.Is(statErr, os.ErrNotExist) {
				return fmt.Errorf("evicted %s still has a payload file (stat err=%v)", gone, statErr)
			}
		}

	case OpUpdate:
		rev, err := h.Catalog.Update(ctx, op.ID, op.Payload, struct{}{})
		wantRev, ok := h.Model.Update(op.ID, op.Payload)

		if err := compareOutcome(ok, err); err != nil {
			return err
		}

		if ok && rev != wantRev {
			return fmt.Errorf("revision: got %d, want %d", rev, wantRev)
		}

	case OpDelete:
		err := h.Catalog.Delete(ctx, op.ID)

		return compareOutcome(h.Model.Delete(op.ID), err)

	case OpGet:
		rec, err := h.Catalog.Get(ctx, op.ID)
		want, ok := h.Model.Get(op.ID)

		if err := compareOutcome(ok, err); err != nil {
			return err
		}

		if !ok {
			return nil
		}

		got := model.Slot{ID: rec.ID, Category: rec.Category.String(), Revision: rec.Revision, Payload: rec.Payload}
		if diff := cmp.Diff(want, got); diff != "" {
			return fmt.Errorf("get mismatch (-model +real):\n%s", diff)
		}

	case OpList, OpLatest:
		return h.CheckState()

	case OpReopen:
		h.Reopen()

		return h.CheckState()
	}

	return nil
}

// compareOutcome checks that the catalog failed with ErrNotFound exactly
// when the model reported the id as missing.
func compareOutcome(modelOK bool, err error) error {
	switch {
	case modelOK && err != nil:
		return fmt.Errorf("real failed, model succeeded: %w", err)
	case !modelOK && err == nil:
		return errors.New("real succeeded, model reported not found")
	case !modelOK && !errors.Is(err, catalog.ErrNotFound):
		return fmt.Errorf("real error %w, want %w", err, catalog.ErrNotFound)
	default:
		return nil
	}
}

// CheckState compares both listings, the latest id and the revision counter.
func (h *Harness) CheckState() error {
	ctx := h.TB.Context()

	manual, err := h.Catalog.ListManual(ctx)
	if err != nil {
		return fmt.Errorf("list manual: %w", err)
	}

	automatic, err := h.Catalog.ListAutomatic(ctx)
	if err != nil {
		return fmt.Errorf("list automatic: %w", err)
	}

	if diff := cmp.Diff(h.Model.List(model.Manual), manual, cmpopts.EquateEmpty()); diff != "" {
		return fmt.Errorf("manual list (-model +real):\n%s", diff)
	}

	if diff := cmp.Diff(h.Model.List(model.Automatic), automatic, cmpopts.EquateEmpty()); diff != "" {
		return fmt.Errorf("automatic list (-model +real):\n%s", diff)
	}

	gotLatest, gotOK, err := h.Catalog.LatestID(ctx)
	if err != nil {
		return fmt.Errorf("latest: %w", err)
	}

	wantLatest, wantOK := h.Model.Latest()
	if gotOK != wantOK || gotLatest != wantLatest {
		return fmt.Errorf("latest: got (%s, %t), want (%s, %t)", gotLatest, gotOK, wantLatest, wantOK)
	}

	st, err := h.Catalog.Stat(ctx)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}

	if st.NextRevision != h.Model.NextRevision() {
		return fmt.Errorf("next revision: got %d, want %d", st.NextRevision, h.Model.NextRevision())
	}

	return nil
}
