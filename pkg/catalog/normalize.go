package catalog

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/google/uuid"
)

// Repairs counts what normalization changed while opening a catalog.
type Repairs struct {
	// Orphans are entries dropped because a backing file was missing.
	Orphans int
	// DuplicateIDs are entries dropped because their id was in both collections.
	DuplicateIDs int
	// DuplicateRevisions are entries dropped because another entry had the
	// same revision and a newer timestamp.
	DuplicateRevisions int
	// Evicted are automatic entries dropped to respect the capacity.
	Evicted int
}

// Total returns the number of dropped entries.
func (r Repairs) Total() int {
	return r.Orphans + r.DuplicateIDs + r.DuplicateRevisions + r.Evicted
}

type slotRef struct {
	cat   Category
	id    uuid.UUID
	entry *Entry
}

// normalize repairs ix in place and returns the relative paths of files that
// no surviving entry references. The caller deletes them once the repaired
// index is persisted.
func (m *Manager[D, M]) normalize(ctx context.Context, ix *Index) (Repairs, []string, error) {
	var (
		r       Repairs
		garbage []string
	)

	orphans, err := m.dropOrphans(ctx, ix)
	if err != nil {
		return r, nil, err
	}

	r.Orphans = len(orphans.dropped)
	garbage = append(garbage, orphans.garbage...)

	// Same id in both collections: keep the newer timestamp.
	for _, id := range sortedIDs(ix.Manual) {
		auto, ok := ix.Automatic[id]
		if !ok {
			continue
		}

		loser := Automatic
		if auto.Timestamp.After(ix.Manual[id].Timestamp) {
			loser = Manual
		}

		m.log.Info("dropping duplicate id", "id", id, "category", loser.String())

		garbage = append(garbage, ix.detach(loser, id)...)
		r.DuplicateIDs++
	}

	// Same revision on several entries: keep the newest timestamp, then
	// manual over automatic, then the smallest id.
	byRevision := make(map[int64][]slotRef)

	for _, c := range []Category{Manual, Automatic} {
		for id, e := range ix.entries(c) {
			byRevision[e.Revision] = append(byRevision[e.Revision], slotRef{cat: c, id: id, entry: e})
		}
	}

	for _, rev := range slices.Sorted(maps.Keys(byRevision)) {
		group := byRevision[rev]
		if len(group) < 2 {
			continue
		}

		slices.SortFunc(group, func(a, b slotRef) int {
			if c := b.entry.Timestamp.Compare(a.entry.Timestamp); c != 0 {
				return c
			}

			if a.cat != b.cat {
				if a.cat == Manual {
					return -1
				}

				return 1
			}

			return cmp.Compare(a.id.String(), b.id.String())
		})

		for _, loser := range group[1:] {
			m.log.Info("dropping duplicate revision",
				"id", loser.id, "category", loser.cat.String(), "revision", rev, "kept", group[0].id)

			garbage = append(garbage, ix.detach(loser.cat, loser.id)...)
			r.DuplicateRevisions++
		}
	}

	for _, id := range ix.overflow(m.opts.AutomaticCapacity) {
		m.log.Info("evicting automatic entry over capacity",
			"id", id, "revision", ix.Automatic[id].Revision, "capacity", m.opts.AutomaticCapacity)

		garbage = append(garbage, ix.detach(Automatic, id)...)
		r.Evicted++
	}

	// A loaded counter is kept when the catalog is empty so revisions are
	// never reissued after everything was deleted.
	if ix.Len() > 0 {
		maxRev := int64(math.MinInt64)

		for _, c := range []Category{Manual, Automatic} {
			for _, e := range ix.entries(c) {
				maxRev = max(maxRev, e.Revision)
			}
		}

		ix.NextRevision = maxRev + 1
	}

	ix.recomputeOrder()
	ix.recomputeLatest()

	return r, garbage, nil
}

type orphanResult struct {
	dropped []uuid.UUID
	garbage []string
}

// dropOrphans removes entries whose data file, or metadata file in the
// dual-payload layout, is missing. A surviving sibling file is collected.
func (m *Manager[D, M]) dropOrphans(ctx context.Context, ix *Index) (orphanResult, error) {
	var res orphanResult

	for _, c := range []Category{Manual, Automatic} {
		entries := ix.entries(c)

		ids := slices.SortedFunc(maps.Keys(entries), func(a, b uuid.UUID) int {
			return cmp.Compare(a.String(), b.String())
		})

		for _, id := range ids {
			e := entries[id]
			if e == nil {
				m.log.Info("dropping empty entry", "id", id, "category", c.String())
				ix.remove(c, id)
				res.dropped = append(res.dropped, id)

				continue
			}

			dataOK, err := m.fileExists(ctx, e.Path)
			if err != nil {
				return res, err
			}

			metaOK := true

			if m.opts.WithMetadata {
				metaOK, err = m.fileExists(ctx, e.MetadataPath)
				if err != nil {
					return res, err
				}
			}

			if dataOK && metaOK {
				continue
			}

			m.log.Info("dropping entry with missing file",
				"id", id, "category", c.String(), "data", dataOK, "metadata", metaOK)

			ix.remove(c, id)
			res.dropped = append(res.dropped, id)

			if dataOK {
				res.garbage = append(res.garbage, e.Path)
			}

			if m.opts.WithMetadata && metaOK {
				res.garbage = append(res.garbage, e.MetadataPath)
			}
		}
	}

	return res, nil
}

// fileExists reports whether the entry path rel exists. Empty paths and paths
// escaping the catalog root count as missing.
func (m *Manager[D, M]) fileExists(ctx context.Context, rel string) (bool, error) {
	p, ok := m.resolve(rel)
	if !ok {
		return false, nil
	}

	ok, err := m.writer.Exists(ctx, p)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", rel, translate(err))
	}

	return ok, nil
}

// detach removes id from c and returns its file paths that no remaining
// entry still references.
func (ix *Index) detach(c Category, id uuid.UUID) []string {
	e := ix.entries(c)[id]
	ix.remove(c, id)

	if e == nil {
		return nil
	}

	var out []string

	for _, p := range []string{e.Path, e.MetadataPath} {
		if p != "" && !ix.references(p) {
			out = append(out, p)
		}
	}

	return out
}

func (ix *Index) references(rel string) bool {
	for _, c := range []Category{Manual, Automatic} {
		for _, e := range ix.entries(c) {
			if e != nil && (e.Path == rel || e.MetadataPath == rel) {
				return true
			}
		}
	}

	return false
}
