package catalog

import (
	"sync/atomic"
	"time"
)

// Op names a catalog operation in metrics.
type Op string

const (
	OpLatest          Op = "latest"
	OpGet             Op = "get"
	OpGetMetadata     Op = "get_metadata"
	OpCreateManual    Op = "create_manual"
	OpCreateAutomatic Op = "create_automatic"
	OpUpdate          Op = "update"
	OpDelete          Op = "delete"
	OpList            Op = "list"
)

// MetricsCollector receives operational metrics from a [Manager].
// Implementations must be safe for concurrent use.
type MetricsCollector interface {
	// RecordOperation is called after every public operation.
	// err is nil on success.
	RecordOperation(op Op, duration time.Duration, err error)

	// RecordEviction is called with the number of automatic entries removed
	// by capacity enforcement.
	RecordEviction(count int)

	// RecordRepairs is called once per [Open] with what normalization fixed.
	RecordRepairs(r Repairs)

	// RecordSize is called whenever the collection sizes may have changed.
	RecordSize(manual, automatic int)
}

// NoopMetricsCollector discards everything.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordOperation(Op, time.Duration, error) {}
func (NoopMetricsCollector) RecordEviction(int)                       {}
func (NoopMetricsCollector) RecordRepairs(Repairs)                    {}
func (NoopMetricsCollector) RecordSize(int, int)                      {}

// BasicMetricsCollector keeps in-memory counters. Useful in tests and for
// hosts without a metrics backend.
type BasicMetricsCollector struct {
	Operations atomic.Int64
	Errors     atomic.Int64
	TotalNanos atomic.Int64
	Timeouts   atomic.Int64
	Evicted    atomic.Int64
	Repaired   atomic.Int64
	Manual     atomic.Int64
	Automatic  atomic.Int64
}

// RecordOperation implements MetricsCollector.
func (b *BasicMetricsCollector) RecordOperation(_ Op, duration time.Duration, err error) {
	b.Operations.Add(1)
	b.TotalNanos.Add(duration.Nanoseconds())

	if err != nil {
		b.Errors.Add(1)

		if isTimeout(err) {
			b.Timeouts.Add(1)
		}
	}
}

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction(count int) {
	b.Evicted.Add(int64(count))
}

// RecordRepairs implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRepairs(r Repairs) {
	b.Repaired.Add(int64(r.Total()))
	b.Evicted.Add(int64(r.Evicted))
}

// RecordSize implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSize(manual, automatic int) {
	b.Manual.Store(int64(manual))
	b.Automatic.Store(int64(automatic))
}

// Snapshot returns the current counter values.
func (b *BasicMetricsCollector) Snapshot() BasicMetricsStats {
	ops := b.Operations.Load()

	var avg int64
	if ops > 0 {
		avg = b.TotalNanos.Load() / ops
	}

	return BasicMetricsStats{
		Operations: ops,
		Errors:     b.Errors.Load(),
		Timeouts:   b.Timeouts.Load(),
		AvgNanos:   avg,
		Evicted:    b.Evicted.Load(),
		Repaired:   b.Repaired.Load(),
		Manual:     b.Manual.Load(),
		Automatic:  b.Automatic.Load(),
	}
}

// BasicMetricsStats is a snapshot of [BasicMetricsCollector].
type BasicMetricsStats struct {
	Operations int64
	Errors     int64
	Timeouts   int64
	AvgNanos   int64
	Evicted    int64
	Repaired   int64
	Manual     int64
	Automatic  int64
}
