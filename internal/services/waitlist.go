package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/admbtski/miglee-sub005/internal/domain"
	"github.com/admbtski/miglee-sub005/internal/platform/metrics"
)

// DefaultPromoteBatch caps one PromoteMany pass.
const DefaultPromoteBatch = 10

// WaitlistPromoter moves the earliest-queued waitlisted member into a freed
// capacity slot. Safe to call whenever a JOINED slot is vacated: with no
// eligible candidate or no capacity it is a no-op, never an error.
type WaitlistPromoter struct {
	capacity *CapacityCoordinator
	sm       StateMachine
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewWaitlistPromoter creates a WaitlistPromoter. metrics may be nil.
func NewWaitlistPromoter(capacity *CapacityCoordinator, logger *slog.Logger, m *metrics.Metrics) *WaitlistPromoter {
	return &WaitlistPromoter{
		capacity: capacity,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// PromoteOne promotes the head of the event's waitlist if the join window is
// open and a slot can be reserved. It runs against the caller's tx-scoped
// store and reports whether a promotion happened. It never loops: a lost
// capacity race means the slot is gone, so retrying would not help.
func (p *WaitlistPromoter) PromoteOne(ctx context.Context, store Store, eventID string) (bool, error) {
	event, err := store.Events().GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get event: %w", err)
	}

	now := p.now()
	if res := EvaluateJoinWindow(event, now); !res.Open {
		return false, nil
	}
	// Fast path; the authoritative check is the conditional reserve below.
	if event.IsFull() {
		return false, nil
	}

	candidate, err := store.Members().FirstWaitlisted(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("first waitlisted: %w", err)
	}

	ok, err := p.capacity.ReserveSlot(ctx, store, eventID)
	if err != nil {
		return false, err
	}
	if !ok {
		// Lost the race to a concurrent join or promotion.
		return false, nil
	}

	if err := p.sm.CanTransition(candidate.Status, domain.StatusJoined, CapabilitySystem); err != nil {
		return false, err
	}

	candidate.Status = domain.StatusJoined
	candidate.JoinedAt = &now
	candidate.LeftAt = nil
	candidate.UpdatedAt = now
	if err := store.Members().Update(ctx, candidate); err != nil {
		return false, fmt.Errorf("update member: %w", err)
	}

	note := fmt.Sprintf("promoted from waitlist position for event %s", eventID)
	entry := domain.NewMemberEvent(eventID, candidate.UserID, domain.SystemActor(), domain.MemberEventWaitlistPromote, &note, now)
	if err := store.MemberEvents().Create(ctx, entry); err != nil {
		return false, fmt.Errorf("create member event: %w", err)
	}

	notif := domain.NewNotification(domain.NotifyWaitlistPromoted, candidate.UserID, eventID, domain.SystemActor(), now)
	if err := store.Outbox().Create(ctx, notif); err != nil {
		return false, fmt.Errorf("create notification: %w", err)
	}

	p.metrics.IncrementPromotions()
	if p.logger != nil {
		p.logger.Info("waitlist member promoted",
			"event_id", eventID, "user_id", candidate.UserID)
	}
	return true, nil
}

// PromoteMany calls PromoteOne until it reports no promotion or maxPromotions
// is reached, and returns the number promoted. Used when capacity increases
// or several members leave at once.
func (p *WaitlistPromoter) PromoteMany(ctx context.Context, store Store, eventID string, maxPromotions int) (int, error) {
	if maxPromotions <= 0 {
		maxPromotions = DefaultPromoteBatch
	}
	promoted := 0
	for promoted < maxPromotions {
		ok, err := p.PromoteOne(ctx, store, eventID)
		if err != nil {
			return promoted, err
		}
		if !ok {
			break
		}
		promoted++
	}
	return promoted, nil
}
