package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/calvinalkan/slotstore/pkg/durable"
	"github.com/calvinalkan/slotstore/pkg/fs"
)

const (
	// DefaultAutomaticCapacity is the automatic slot count used when
	// [Options.AutomaticCapacity] is zero.
	DefaultAutomaticCapacity = 5

	// DefaultLockTimeout is used when [Options.LockTimeout] is zero.
	DefaultLockTimeout = 30 * time.Second

	// NoTimeout makes every lock wait unbounded.
	NoTimeout time.Duration = -1
)

// Options configures [Open]. The zero value is valid.
type Options struct {
	// AutomaticCapacity bounds the automatic collection. Zero means
	// [DefaultAutomaticCapacity]. Use [Options.DisableAutomatic] for a
	// catalog that keeps no automatic slots.
	AutomaticCapacity int

	// DisableAutomatic sets the automatic capacity to zero: every automatic
	// create is evicted immediately.
	DisableAutomatic bool

	// LockTimeout bounds every lock wait, for the catalog lock and the
	// per-file locks. Zero means [DefaultLockTimeout], [NoTimeout] waits
	// forever.
	LockTimeout time.Duration

	// WithMetadata enables the dual-payload layout: every entry also has a
	// <id>_n.json metadata file.
	WithMetadata bool

	// FS is the filesystem. Defaults to [fs.Real].
	FS fs.FS

	// Locks is the per-path lock table shared with other writers in the
	// process. Defaults to a private table.
	Locks *durable.LockTable

	// Logger receives repair and cleanup messages. Defaults to discarding.
	Logger *slog.Logger

	// Metrics receives operation timings. Defaults to [NoopMetricsCollector].
	Metrics MetricsCollector

	// Now is the clock used for entry timestamps. Defaults to time.Now.
	Now func() time.Time

	// Migrate runs on the loaded index before it is normalized. It may
	// rewrite the index in place, for example based on SchemaVersion.
	Migrate func(ctx context.Context, ix *Index) error
}

func (o Options) withDefaults() (Options, error) {
	if o.AutomaticCapacity < 0 {
		return o, fmt.Errorf("%w: automatic capacity %d is negative", ErrInvalidArgument, o.AutomaticCapacity)
	}

	if o.LockTimeout < 0 && o.LockTimeout != NoTimeout {
		return o, fmt.Errorf("%w: lock timeout %s is negative", ErrInvalidArgument, o.LockTimeout)
	}

	switch {
	case o.DisableAutomatic:
		o.AutomaticCapacity = 0
	case o.AutomaticCapacity == 0:
		o.AutomaticCapacity = DefaultAutomaticCapacity
	}

	if o.LockTimeout == 0 {
		o.LockTimeout = DefaultLockTimeout
	}

	if o.FS == nil {
		o.FS = fs.NewReal()
	}

	if o.Locks == nil {
		o.Locks = durable.NewLockTable()
	}

	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}

	if o.Metrics == nil {
		o.Metrics = NoopMetricsCollector{}
	}

	if o.Now == nil {
		o.Now = time.Now
	}

	return o, nil
}

// waitLimit converts LockTimeout into the durable convention where zero
// means unbounded.
func (o Options) waitLimit() time.Duration {
	if o.LockTimeout == NoTimeout {
		return 0
	}

	return o.LockTimeout
}
