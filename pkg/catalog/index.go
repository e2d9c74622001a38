package catalog

import (
	"cmp"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// IndexFile is the name of the index snapshot at the catalog root.
const IndexFile = "index.json"

// Category names the collection an entry belongs to. The values are the
// literal strings stored in index.json.
type Category string

const (
	Manual    Category = "manualis"
	Automatic Category = "automaticus"
)

func (c Category) String() string {
	switch c {
	case Manual:
		return "manual"
	case Automatic:
		return "automatic"
	default:
		return string(c)
	}
}

// Entry is one stored record. Paths are relative to the catalog root.
type Entry struct {
	Revision     int64     `json:"revisio"`
	Timestamp    time.Time `json:"timestamp"`
	Path         string    `json:"path"`
	MetadataPath string    `json:"path_notitia,omitempty"`
}

// Latest points at the entry with the greatest revision.
type Latest struct {
	Category  Category  `json:"methodus"`
	ID        uuid.UUID `json:"guid"`
	Revision  int64     `json:"revisio"`
	Timestamp time.Time `json:"timestamp"`
}

// Index is the full catalog state as persisted in index.json.
//
// Outside of [Open] an Index satisfies:
//   - an id is in at most one collection
//   - revisions are unique across both collections
//   - the automatic collection holds at most the configured capacity
//   - each order list is exactly its collection's keys, revision descending
//   - Latest is nil iff both collections are empty, else it names the entry
//     with the greatest revision
type Index struct {
	NextRevision   int64                `json:"revisio_proximus"`
	SchemaVersion  int                  `json:"versio"`
	Manual         map[uuid.UUID]*Entry `json:"manualis"`
	ManualOrder    []uuid.UUID          `json:"ordo_manualis"`
	Automatic      map[uuid.UUID]*Entry `json:"automaticus"`
	AutomaticOrder []uuid.UUID          `json:"ordo_automaticus"`
	Latest         *Latest              `json:"novissimus"`
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	ix := &Index{}
	ix.fill()

	return ix
}

// fill replaces nil collections so the snapshot always encodes {} and []
// rather than null.
func (ix *Index) fill() {
	if ix.Manual == nil {
		ix.Manual = make(map[uuid.UUID]*Entry)
	}

	if ix.Automatic == nil {
		ix.Automatic = make(map[uuid.UUID]*Entry)
	}

	if ix.ManualOrder == nil {
		ix.ManualOrder = []uuid.UUID{}
	}

	if ix.AutomaticOrder == nil {
		ix.AutomaticOrder = []uuid.UUID{}
	}
}

func decodeIndex(data []byte) (*Index, error) {
	var ix Index

	err := json.Unmarshal(data, &ix)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrCorrupt, IndexFile, err)
	}

	ix.fill()

	return &ix, nil
}

func encodeIndex(ix *Index) ([]byte, error) {
	data, err := json.MarshalIndent(ix, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", IndexFile, err)
	}

	return append(data, '\n'), nil
}

// Clone returns a deep copy.
func (ix *Index) Clone() *Index {
	out := &Index{
		NextRevision:   ix.NextRevision,
		SchemaVersion:  ix.SchemaVersion,
		Manual:         cloneEntries(ix.Manual),
		ManualOrder:    slices.Clone(ix.ManualOrder),
		Automatic:      cloneEntries(ix.Automatic),
		AutomaticOrder: slices.Clone(ix.AutomaticOrder),
	}

	if ix.Latest != nil {
		l := *ix.Latest
		out.Latest = &l
	}

	out.fill()

	return out
}

func cloneEntries(in map[uuid.UUID]*Entry) map[uuid.UUID]*Entry {
	out := make(map[uuid.UUID]*Entry, len(in))

	for id, e := range in {
		if e == nil {
			out[id] = nil

			continue
		}

		c := *e
		out[id] = &c
	}

	return out
}

func (ix *Index) entries(c Category) map[uuid.UUID]*Entry {
	if c == Manual {
		return ix.Manual
	}

	return ix.Automatic
}

func (ix *Index) order(c Category) *[]uuid.UUID {
	if c == Manual {
		return &ix.ManualOrder
	}

	return &ix.AutomaticOrder
}

// Lookup finds id in the manual collection, then the automatic one.
func (ix *Index) Lookup(id uuid.UUID) (*Entry, Category, bool) {
	if e, ok := ix.Manual[id]; ok {
		return e, Manual, true
	}

	if e, ok := ix.Automatic[id]; ok {
		return e, Automatic, true
	}

	return nil, "", false
}

// Len returns the number of entries across both collections.
func (ix *Index) Len() int {
	return len(ix.Manual) + len(ix.Automatic)
}

// pushFront stores e under id and moves id to the head of its order list.
func (ix *Index) pushFront(c Category, id uuid.UUID, e *Entry) {
	ix.entries(c)[id] = e

	order := ix.order(c)
	*order = slices.DeleteFunc(*order, func(o uuid.UUID) bool { return o == id })
	*order = slices.Insert(*order, 0, id)
}

func (ix *Index) remove(c Category, id uuid.UUID) {
	delete(ix.entries(c), id)

	order := ix.order(c)
	*order = slices.DeleteFunc(*order, func(o uuid.UUID) bool { return o == id })
}

func (ix *Index) setLatest(c Category, id uuid.UUID, e *Entry) {
	ix.Latest = &Latest{
		Category:  c,
		ID:        id,
		Revision:  e.Revision,
		Timestamp: e.Timestamp,
	}
}

// sortedIDs returns the keys of entries ordered by revision descending.
// Equal revisions fall back to id order so the result is deterministic.
func sortedIDs(entries map[uuid.UUID]*Entry) []uuid.UUID {
	ids := slices.Collect(maps.Keys(entries))

	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		if c := cmp.Compare(entries[b].Revision, entries[a].Revision); c != 0 {
			return c
		}

		return cmp.Compare(a.String(), b.String())
	})

	if ids == nil {
		ids = []uuid.UUID{}
	}

	return ids
}

// recomputeOrder rebuilds both order lists from the collections.
func (ix *Index) recomputeOrder() {
	ix.ManualOrder = sortedIDs(ix.Manual)
	ix.AutomaticOrder = sortedIDs(ix.Automatic)
}

// recomputeLatest points Latest at the head with the greater revision.
// Order lists must be current. Ties go to the manual collection.
func (ix *Index) recomputeLatest() {
	var (
		best    *Entry
		bestID  uuid.UUID
		bestCat Category
	)

	for _, c := range []Category{Manual, Automatic} {
		order := *ix.order(c)
		if len(order) == 0 {
			continue
		}

		e := ix.entries(c)[order[0]]
		if best == nil || e.Revision > best.Revision {
			best, bestID, bestCat = e, order[0], c
		}
	}

	if best == nil {
		ix.Latest = nil

		return
	}

	ix.setLatest(bestCat, bestID, best)
}

// overflow returns the automatic ids beyond capacity, oldest revision first.
func (ix *Index) overflow(capacity int) []uuid.UUID {
	excess := len(ix.Automatic) - capacity
	if excess <= 0 {
		return nil
	}

	ids := sortedIDs(ix.Automatic)
	victims := slices.Clone(ids[len(ids)-excess:])
	slices.Reverse(victims)

	return victims
}
