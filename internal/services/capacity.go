package services

import (
	"context"
	"fmt"

	"github.com/admbtski/miglee-sub005/internal/platform/metrics"
)

// CapacityCoordinator performs the conditional joined-count updates on the
// event row. It never reads-then-writes: the conditional update's
// affected-row count is the only success signal, so concurrent reservations
// cannot over-admit.
type CapacityCoordinator struct {
	metrics *metrics.Metrics
}

// NewCapacityCoordinator creates a CapacityCoordinator. metrics may be nil.
func NewCapacityCoordinator(m *metrics.Metrics) *CapacityCoordinator {
	return &CapacityCoordinator{metrics: m}
}

// ReserveSlot attempts to reserve one capacity slot for the event. Returns
// false when the event is full; a lost race is a normal outcome here, not an
// error.
func (c *CapacityCoordinator) ReserveSlot(ctx context.Context, store Store, eventID string) (bool, error) {
	ok, err := store.Events().ReserveJoinedSlot(ctx, eventID)
	if err != nil {
		return false, fmt.Errorf("reserve joined slot: %w", err)
	}
	if !ok {
		c.metrics.IncrementCapacityConflicts()
	}
	return ok, nil
}

// ReleaseSlot frees one capacity slot. Unconditional: a joined member leaving
// always frees a slot that was previously reserved.
func (c *CapacityCoordinator) ReleaseSlot(ctx context.Context, store Store, eventID string) error {
	if err := store.Events().ReleaseJoinedSlot(ctx, eventID); err != nil {
		return fmt.Errorf("release joined slot: %w", err)
	}
	return nil
}
