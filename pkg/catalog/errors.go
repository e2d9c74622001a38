package catalog

import (
	"errors"
	"fmt"

	"github.com/calvinalkan/slotstore/pkg/durable"
)

var (
	// ErrNotFound reports an id that is in neither collection, or a payload
	// file that is missing on disk.
	ErrNotFound = errors.New("not found")

	// ErrTimeout reports a lock wait that exceeded its deadline. The
	// operation did not change anything.
	ErrTimeout = errors.New("timeout")

	// ErrCorrupt reports an index or payload file that could not be decoded.
	// A corrupt index is fatal for [Open].
	ErrCorrupt = errors.New("corrupt")

	// ErrInvalidArgument reports a malformed call or invalid [Options].
	ErrInvalidArgument = errors.New("invalid argument")
)

// translate maps durable errors onto the catalog sentinels while keeping the
// original chain intact.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, durable.ErrTimeout):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, durable.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, durable.ErrInvalidArgument):
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	default:
		return err
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
