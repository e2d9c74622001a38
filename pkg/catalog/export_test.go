package catalog

import "context"

// HoldLockForTest takes the catalog lock the way an operation would.
func (m *Manager[D, M]) HoldLockForTest(ctx context.Context) (func(), error) {
	return m.lock(ctx)
}
