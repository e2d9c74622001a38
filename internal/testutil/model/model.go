// Package model is an in-memory oracle for the observable behavior of a
// catalog.
//
// It tracks which ids exist, their collection, revision and payload, and
// nothing about files or encodings. Fuzz tests run the same operations
// against a real catalog and this model and compare the results.
//
// Ids are not generated here. The real catalog mints them and the caller
// passes them in.
//
// Keep it simple enough to be obviously correct; it has no tests of its own.
package model

import (
	"slices"

	"github.com/google/uuid"
)

// Category values match catalog.Category.String.
const (
	Manual    = "manual"
	Automatic = "automatic"
)

// Slot is one entry as the model sees it.
type Slot struct {
	ID       uuid.UUID
	Category string
	Revision int64
	Payload  string
}

// Model is the oracle state.
type Model struct {
	capacity int
	next     int64
	slots    map[uuid.UUID]Slot
}

// New returns an empty model with the given automatic capacity.
func New(capacity int) *Model {
	return &Model{
		capacity: capacity,
		slots:    make(map[uuid.UUID]Slot),
	}
}

// Create adds a slot under id and returns the ids evicted to respect the
// automatic capacity, oldest first.
func (m *Model) Create(category string, id uuid.UUID, payload string) []uuid.UUID {
	if _, ok := m.slots[id]; ok {
		panic("model: duplicate id " + id.String())
	}

	m.slots[id] = Slot{ID: id, Category: category, Revision: m.next, Payload: payload}
	m.next++

	if category != Automatic {
		return nil
	}

	var evicted []uuid.UUID

	for {
		auto := m.List(Automatic)
		if len(auto) <= m.capacity {
			return evicted
		}

		oldest := auto[len(auto)-1]
		delete(m.slots, oldest)
		evicted = append(evicted, oldest)
	}
}

// Update replaces the payload and assigns the next revision.
func (m *Model) Update(id uuid.UUID, payload string) (int64, bool) {
	s, ok := m.slots[id]
	if !ok {
		return 0, false
	}

	s.Revision = m.next
	s.Payload = payload
	m.slots[id] = s
	m.next++

	return s.Revision, true
}

// Delete removes id.
func (m *Model) Delete(id uuid.UUID) bool {
	if _, ok := m.slots[id]; !ok {
		return false
	}

	delete(m.slots, id)

	return true
}

// Get returns the slot for id.
func (m *Model) Get(id uuid.UUID) (Slot, bool) {
	s, ok := m.slots[id]

	return s, ok
}

// List returns the ids in category, newest revision first.
func (m *Model) List(category string) []uuid.UUID {
	var ids []uuid.UUID

	for id, s := range m.slots {
		if s.Category == category {
			ids = append(ids, id)
		}
	}

	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		ra, rb := m.slots[a].Revision, m.slots[b].Revision

		switch {
		case ra > rb:
			return -1
		case ra < rb:
			return 1
		default:
			panic("model: duplicate revision")
		}
	})

	return ids
}

// Latest returns the id with the greatest revision.
func (m *Model) Latest() (uuid.UUID, bool) {
	var (
		best  Slot
		found bool
	)

	for _, s := range m.slots {
		if !found || s.Revision > best.Revision {
			best, found = s, true
		}
	}

	return best.ID, found
}

// IDs returns all ids in a stable order.
func (m *Model) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(m.slots))
	for id := range m.slots {
		ids = append(ids, id)
	}

	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return m.slots[a].compare(m.slots[b])
	})

	return ids
}

func (s Slot) compare(o Slot) int {
	switch {
	case s.Revision < o.Revision:
		return -1
	case s.Revision > o.Revision:
		return 1
	default:
		return 0
	}
}

// NextRevision returns the revision the next create or update receives.
func (m *Model) NextRevision() int64 {
	return m.next
}

// Reopen applies what reopening a catalog does to the counter: with entries
// present it becomes the greatest revision plus one, otherwise it is kept.
func (m *Model) Reopen() {
	if len(m.slots) == 0 {
		return
	}

	var maxRev int64 = -1
	for _, s := range m.slots {
		maxRev = max(maxRev, s.Revision)
	}

	m.next = maxRev + 1
}
