// Package catalog stores versioned payloads as JSON files in one directory.
//
// A catalog keeps two collections of entries. Manual entries are kept until
// deleted. Automatic entries form a bounded ring: creating one beyond
// [Options.AutomaticCapacity] deletes the entries with the oldest revisions.
// Every create and update takes the next value of a catalog-wide revision
// counter, and the entry with the greatest revision is the catalog's latest.
//
// The directory layout is:
//
//	index.json     bookkeeping for both collections
//	<id>.json      payload of entry <id>
//	<id>_n.json    metadata payload, when opened with Options.WithMetadata
//
// [Open] loads index.json and repairs it before use. Entries whose files
// are missing are dropped, an id present in both collections keeps its newer
// copy, entries sharing a revision collapse to the newest one and the
// automatic collection is trimmed to capacity. A malformed index.json is
// not repaired; Open fails with [ErrCorrupt].
//
// All file access goes through a [durable.Writer], so every file on disk
// holds either its previous or its complete new content.
//
// A [Manager] is safe for concurrent use. It assumes it is the only writer
// of its directory; there is no coordination between processes.
package catalog
