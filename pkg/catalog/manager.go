package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/calvinalkan/slotstore/pkg/durable"
)

// Record is an entry together with its decoded payload.
type Record[T any] struct {
	ID        uuid.UUID
	Category  Category
	Revision  int64
	Timestamp time.Time
	Payload   T
}

// Stats describes a catalog at one point in time.
type Stats struct {
	Dir               string
	Manual            int
	Automatic         int
	AutomaticCapacity int
	NextRevision      int64
	SchemaVersion     int
	WithMetadata      bool
	Latest            *Latest
	// Repairs is what normalization changed when the catalog was opened.
	Repairs Repairs
}

// Manager owns one catalog directory. D is the payload type and M the
// metadata type of the dual-payload layout; single-payload catalogs
// conventionally use struct{} for M and ignore it.
//
// Every operation takes the catalog lock, so operations on one Manager are
// totally ordered. Mutations are applied to a copy of the index which
// replaces the in-memory index only after index.json was written, so a
// failed write leaves the Manager as it was.
//
// Two Managers must never share a directory.
type Manager[D, M any] struct {
	dir     string
	opts    Options
	writer  *durable.Writer
	log     *slog.Logger
	metrics MetricsCollector
	sem     *semaphore.Weighted
	index   *Index
	repairs Repairs
}

// Open loads the catalog in dir, creating dir and an empty index if needed,
// repairs the index and persists the repaired version.
//
// Open is expensive: it checks every backing file. Hosts open a catalog
// once and share the Manager. A malformed index.json fails with
// [ErrCorrupt] and is left untouched.
func Open[D, M any](ctx context.Context, dir string, opts Options) (*Manager[D, M], error) {
	if ctx == nil {
		return nil, fmt.Errorf("open catalog: %w: context is nil", ErrInvalidArgument)
	}

	if dir == "" {
		return nil, fmt.Errorf("open catalog: %w: directory is empty", ErrInvalidArgument)
	}

	opts, err := opts.withDefaults()
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	err = opts.FS.MkdirAll(root, 0o755)
	if err != nil {
		return nil, fmt.Errorf("open catalog: create directory: %w", err)
	}

	m := &Manager[D, M]{
		dir:  root,
		opts: opts,
		writer: durable.New(durable.Options{
			FS:      opts.FS,
			Locks:   opts.Locks,
			Timeout: opts.waitLimit(),
		}),
		log:     opts.Logger.With("catalog", root),
		metrics: opts.Metrics,
		sem:     semaphore.NewWeighted(1),
	}

	ix, err := m.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	if opts.Migrate != nil {
		err = opts.Migrate(ctx, ix)
		if err != nil {
			return nil, fmt.Errorf("open catalog: migrate: %w", err)
		}

		ix.fill()
	}

	repairs, garbage, err := m.normalize(ctx, ix)
	if err != nil {
		return nil, fmt.Errorf("open catalog: normalize: %w", err)
	}

	err = m.persist(ctx, ix, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	m.index = ix
	m.repairs = repairs
	m.collect(ctx, garbage)

	if repairs.Total() > 0 {
		m.log.Info("repaired catalog",
			"orphans", repairs.Orphans,
			"duplicate_ids", repairs.DuplicateIDs,
			"duplicate_revisions", repairs.DuplicateRevisions,
			"evicted", repairs.Evicted)
	}

	m.metrics.RecordRepairs(repairs)
	m.metrics.RecordSize(len(ix.Manual), len(ix.Automatic))

	return m, nil
}

// load reads index.json, or creates and persists an empty index when the
// file does not exist.
func (m *Manager[D, M]) load(ctx context.Context) (*Index, error) {
	data, err := m.writer.Read(ctx, m.indexPath())
	if errors.Is(err, durable.ErrNotFound) {
		ix := NewIndex()

		err = m.persist(ctx, ix, nil, nil)
		if err != nil {
			return nil, err
		}

		m.log.Debug("created empty index")

		return ix, nil
	}

	if err != nil {
		return nil, translate(err)
	}

	return decodeIndex(data)
}

// Dir returns the absolute catalog root.
func (m *Manager[D, M]) Dir() string {
	return m.dir
}

func (m *Manager[D, M]) indexPath() string {
	return filepath.Join(m.dir, IndexFile)
}

// resolve turns an entry path into an absolute path inside the root.
func (m *Manager[D, M]) resolve(rel string) (string, bool) {
	if rel == "" || !filepath.IsLocal(rel) {
		return "", false
	}

	return filepath.Join(m.dir, rel), true
}

func dataName(id uuid.UUID) string     { return id.String() + ".json" }
func metadataName(id uuid.UUID) string { return id.String() + "_n.json" }

// lock takes the catalog lock, bounded by the configured timeout.
func (m *Manager[D, M]) lock(ctx context.Context) (func(), error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: context is nil", ErrInvalidArgument)
	}

	waitCtx := ctx

	if limit := m.opts.waitLimit(); limit > 0 {
		var cancel context.CancelFunc

		waitCtx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}

	err := m.sem.Acquire(waitCtx, 1)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: catalog lock", ErrTimeout)
		}

		return nil, fmt.Errorf("catalog lock: %w", err)
	}

	return func() { m.sem.Release(1) }, nil
}

// persist writes the payload files and then index.json as one batch. All
// temp files are staged before anything is replaced and the index is
// replaced last.
func (m *Manager[D, M]) persist(ctx context.Context, ix *Index, paths []string, contents [][]byte) error {
	data, err := encodeIndex(ix)
	if err != nil {
		return err
	}

	paths = append(slices.Clone(paths), m.indexPath())
	contents = append(slices.Clone(contents), data)

	err = m.writer.WriteBatch(ctx, paths, contents)
	if err != nil {
		return fmt.Errorf("persist: %w", translate(err))
	}

	return nil
}

// collect deletes files that the index no longer references. Failures are
// logged; a leftover file is harmless because nothing points at it.
func (m *Manager[D, M]) collect(ctx context.Context, rels []string) {
	for _, rel := range rels {
		p, ok := m.resolve(rel)
		if !ok {
			continue
		}

		err := m.writer.Remove(ctx, p)
		if err != nil {
			m.log.Warn("remove unreferenced file", "path", rel, "error", err)
		}
	}
}

func encodePayload[T any](v T) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: encode payload: %w", ErrInvalidArgument, err)
	}

	return data, nil
}

func decodePayload[T any](rel string, data []byte) (T, error) {
	var v T

	err := json.Unmarshal(data, &v)
	if err != nil {
		return v, fmt.Errorf("%w: decode %s: %w", ErrCorrupt, rel, err)
	}

	return v, nil
}

func (m *Manager[D, M]) observe(op Op, start time.Time, err error) {
	m.metrics.RecordOperation(op, time.Since(start), err)
}
