package catalog

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// LatestID returns the id with the greatest revision. ok is false when the
// catalog is empty.
func (m *Manager[D, M]) LatestID(ctx context.Context) (uuid.UUID, bool, error) {
	start := time.Now()

	unlock, err := m.lock(ctx)
	if err != nil {
		m.observe(OpLatest, start, err)

		return uuid.Nil, false, fmt.Errorf("latest: %w", err)
	}
	defer unlock()

	m.observe(OpLatest, start, nil)

	if m.index.Latest == nil {
		return uuid.Nil, false, nil
	}

	return m.index.Latest.ID, true, nil
}

// Get returns the entry for id with its decoded payload.
func (m *Manager[D, M]) Get(ctx context.Context, id uuid.UUID) (Record[D], error) {
	start := time.Now()

	rec, err := readRecord[D](ctx, m, id, func(e *Entry) string { return e.Path })
	m.observe(OpGet, start, err)

	if err != nil {
		return rec, fmt.Errorf("get %s: %w", id, err)
	}

	return rec, nil
}

// GetMetadata returns the entry for id with its decoded metadata payload.
// Fails with [ErrInvalidArgument] unless the catalog was opened with
// [Options.WithMetadata].
func (m *Manager[D, M]) GetMetadata(ctx context.Context, id uuid.UUID) (Record[M], error) {
	start := time.Now()

	if !m.opts.WithMetadata {
		err := fmt.Errorf("%w: catalog has no metadata files", ErrInvalidArgument)
		m.observe(OpGetMetadata, start, err)

		return Record[M]{}, fmt.Errorf("get metadata %s: %w", id, err)
	}

	rec, err := readRecord[M](ctx, m, id, func(e *Entry) string { return e.MetadataPath })
	m.observe(OpGetMetadata, start, err)

	if err != nil {
		return rec, fmt.Errorf("get metadata %s: %w", id, err)
	}

	return rec, nil
}

// readRecord reads the file picked by file for id and decodes it as T.
func readRecord[T, D, M any](ctx context.Context, m *Manager[D, M], id uuid.UUID, file func(*Entry) string) (Record[T], error) {
	unlock, err := m.lock(ctx)
	if err != nil {
		return Record[T]{}, err
	}
	defer unlock()

	e, cat, ok := m.index.Lookup(id)
	if !ok {
		return Record[T]{}, ErrNotFound
	}

	rel := file(e)

	p, ok := m.resolve(rel)
	if !ok {
		return Record[T]{}, fmt.Errorf("%w: invalid path %q", ErrCorrupt, rel)
	}

	data, err := m.writer.Read(ctx, p)
	if err != nil {
		return Record[T]{}, translate(err)
	}

	payload, err := decodePayload[T](rel, data)
	if err != nil {
		return Record[T]{}, err
	}

	return Record[T]{
		ID:        id,
		Category:  cat,
		Revision:  e.Revision,
		Timestamp: e.Timestamp,
		Payload:   payload,
	}, nil
}

// CreateManual stores a new manual entry and returns its id. meta is
// ignored unless the catalog was opened with [Options.WithMetadata].
func (m *Manager[D, M]) CreateManual(ctx context.Context, data D, meta M) (uuid.UUID, error) {
	start := time.Now()

	id, err := m.create(ctx, Manual, data, meta)
	m.observe(OpCreateManual, start, err)

	if err != nil {
		return uuid.Nil, fmt.Errorf("create manual: %w", err)
	}

	return id, nil
}

// CreateAutomatic stores a new automatic entry and returns its id. When the
// automatic collection exceeds its capacity the entries with the oldest
// revisions are deleted.
func (m *Manager[D, M]) CreateAutomatic(ctx context.Context, data D, meta M) (uuid.UUID, error) {
	start := time.Now()

	id, err := m.create(ctx, Automatic, data, meta)
	m.observe(OpCreateAutomatic, start, err)

	if err != nil {
		return uuid.Nil, fmt.Errorf("create automatic: %w", err)
	}

	return id, nil
}

func (m *Manager[D, M]) create(ctx context.Context, cat Category, data D, meta M) (uuid.UUID, error) {
	// Encode before waiting for the lock so the stored value is the one
	// passed in, even if the caller mutates it while we wait.
	payload, metaPayload, err := m.encode(data, meta)
	if err != nil {
		return uuid.Nil, err
	}

	unlock, err := m.lock(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	defer unlock()

	id, err := m.newID()
	if err != nil {
		return uuid.Nil, err
	}

	next := m.index.Clone()

	e := &Entry{
		Revision:  next.NextRevision,
		Timestamp: m.opts.Now().UTC(),
		Path:      dataName(id),
	}

	if m.opts.WithMetadata {
		e.MetadataPath = metadataName(id)
	}

	paths, contents := m.payloadWrites(e, payload, metaPayload)

	next.pushFront(cat, id, e)
	next.NextRevision++
	next.setLatest(cat, id, e)

	var (
		garbage []string
		evicted int
	)

	if cat == Automatic {
		for _, victim := range next.overflow(m.opts.AutomaticCapacity) {
			garbage = append(garbage, next.detach(Automatic, victim)...)
			evicted++

			m.log.Debug("evicting automatic entry", "id", victim)
		}

		if evicted > 0 {
			next.recomputeLatest()
		}
	}

	err = m.persist(ctx, next, paths, contents)
	if err != nil {
		if !isTimeout(err) {
			m.collect(ctx, []string{e.Path, e.MetadataPath})
		}

		return uuid.Nil, err
	}

	m.index = next
	m.collect(ctx, garbage)

	if evicted > 0 {
		m.metrics.RecordEviction(evicted)
	}

	m.metrics.RecordSize(len(next.Manual), len(next.Automatic))
	m.log.Debug("created entry", "id", id, "category", cat.String(), "revision", e.Revision)

	return id, nil
}

// Update replaces the payload of id and gives it a new revision. The entry
// stays in its collection and moves to the head of that collection's order.
// Returns the new revision.
func (m *Manager[D, M]) Update(ctx context.Context, id uuid.UUID, data D, meta M) (int64, error) {
	start := time.Now()

	rev, err := m.update(ctx, id, data, meta)
	m.observe(OpUpdate, start, err)

	if err != nil {
		return 0, fmt.Errorf("update %s: %w", id, err)
	}

	return rev, nil
}

func (m *Manager[D, M]) update(ctx context.Context, id uuid.UUID, data D, meta M) (int64, error) {
	payload, metaPayload, err := m.encode(data, meta)
	if err != nil {
		return 0, err
	}

	unlock, err := m.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	_, cat, ok := m.index.Lookup(id)
	if !ok {
		return 0, ErrNotFound
	}

	next := m.index.Clone()
	e := next.entries(cat)[id]

	if _, ok := m.resolve(e.Path); !ok {
		e.Path = dataName(id)
	}

	if m.opts.WithMetadata {
		if _, ok := m.resolve(e.MetadataPath); !ok {
			e.MetadataPath = metadataName(id)
		}
	}

	e.Revision = next.NextRevision
	e.Timestamp = m.opts.Now().UTC()

	paths, contents := m.payloadWrites(e, payload, metaPayload)

	next.pushFront(cat, id, e)
	next.NextRevision++
	next.setLatest(cat, id, e)

	err = m.persist(ctx, next, paths, contents)
	if err != nil {
		return 0, err
	}

	m.index = next
	m.log.Debug("updated entry", "id", id, "category", cat.String(), "revision", e.Revision)

	return e.Revision, nil
}

// Delete removes id from its collection and deletes its files. File
// deletion is best effort: a failure is logged, not returned.
func (m *Manager[D, M]) Delete(ctx context.Context, id uuid.UUID) error {
	start := time.Now()

	err := m.delete(ctx, id)
	m.observe(OpDelete, start, err)

	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}

	return nil
}

func (m *Manager[D, M]) delete(ctx context.Context, id uuid.UUID) error {
	unlock, err := m.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	_, cat, ok := m.index.Lookup(id)
	if !ok {
		return ErrNotFound
	}

	next := m.index.Clone()
	garbage := next.detach(cat, id)
	next.recomputeLatest()

	err = m.persist(ctx, next, nil, nil)
	if err != nil {
		return err
	}

	m.index = next
	m.collect(ctx, garbage)

	m.metrics.RecordSize(len(next.Manual), len(next.Automatic))
	m.log.Debug("deleted entry", "id", id, "category", cat.String())

	return nil
}

// ListManual returns the manual ids, newest revision first.
func (m *Manager[D, M]) ListManual(ctx context.Context) ([]uuid.UUID, error) {
	return m.list(ctx, Manual)
}

// ListAutomatic returns the automatic ids, newest revision first.
func (m *Manager[D, M]) ListAutomatic(ctx context.Context) ([]uuid.UUID, error) {
	return m.list(ctx, Automatic)
}

func (m *Manager[D, M]) list(ctx context.Context, cat Category) ([]uuid.UUID, error) {
	start := time.Now()

	unlock, err := m.lock(ctx)
	m.observe(OpList, start, err)

	if err != nil {
		return nil, fmt.Errorf("list %s: %w", cat, err)
	}
	defer unlock()

	return slices.Clone(*m.index.order(cat)), nil
}

// Summary describes an entry without reading its files.
type Summary struct {
	ID        uuid.UUID
	Category  Category
	Revision  int64
	Timestamp time.Time
}

// Entries returns a summary of every entry in c, newest revision first.
func (m *Manager[D, M]) Entries(ctx context.Context, c Category) ([]Summary, error) {
	start := time.Now()

	unlock, err := m.lock(ctx)
	m.observe(OpList, start, err)

	if err != nil {
		return nil, fmt.Errorf("entries %s: %w", c, err)
	}
	defer unlock()

	order := *m.index.order(c)
	out := make([]Summary, 0, len(order))

	for _, id := range order {
		e := m.index.entries(c)[id]
		out = append(out, Summary{ID: id, Category: c, Revision: e.Revision, Timestamp: e.Timestamp})
	}

	return out, nil
}

// Stat returns a snapshot of the catalog bookkeeping.
func (m *Manager[D, M]) Stat(ctx context.Context) (Stats, error) {
	unlock, err := m.lock(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("stat: %w", err)
	}
	defer unlock()

	st := Stats{
		Dir:               m.dir,
		Manual:            len(m.index.Manual),
		Automatic:         len(m.index.Automatic),
		AutomaticCapacity: m.opts.AutomaticCapacity,
		NextRevision:      m.index.NextRevision,
		SchemaVersion:     m.index.SchemaVersion,
		WithMetadata:      m.opts.WithMetadata,
		Repairs:           m.repairs,
	}

	if m.index.Latest != nil {
		l := *m.index.Latest
		st.Latest = &l
	}

	return st, nil
}

func (m *Manager[D, M]) encode(data D, meta M) ([]byte, []byte, error) {
	payload, err := encodePayload(data)
	if err != nil {
		return nil, nil, err
	}

	if !m.opts.WithMetadata {
		return payload, nil, nil
	}

	metaPayload, err := encodePayload(meta)
	if err != nil {
		return nil, nil, err
	}

	return payload, metaPayload, nil
}

// payloadWrites returns the absolute paths and contents for e's files.
// Callers ensure e's paths are valid.
func (m *Manager[D, M]) payloadWrites(e *Entry, payload, metaPayload []byte) ([]string, [][]byte) {
	p, _ := m.resolve(e.Path)
	paths := []string{p}
	contents := [][]byte{payload}

	if m.opts.WithMetadata {
		mp, _ := m.resolve(e.MetadataPath)
		paths = append(paths, mp)
		contents = append(contents, metaPayload)
	}

	return paths, contents
}

func (m *Manager[D, M]) newID() (uuid.UUID, error) {
	for range 3 {
		id, err := uuid.NewV7()
		if err != nil {
			return uuid.Nil, fmt.Errorf("generate id: %w", err)
		}

		if _, _, taken := m.index.Lookup(id); !taken {
			return id, nil
		}
	}

	return uuid.Nil, fmt.Errorf("generate id: collided with existing entries")
}
