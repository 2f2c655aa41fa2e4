package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/admbtski/miglee-sub005/internal/domain"
	"github.com/admbtski/miglee-sub005/internal/services"
)

// Dispatcher drains the notification outbox after commit. Rows are written
// inside the mutation's transaction, so an aborted transaction never reaches
// this code; dispatching after commit keeps delivery and state change from
// ever disagreeing.
type Dispatcher struct {
	tx        services.StoreTx
	publisher domain.NotificationPublisher
	mailer    domain.Mailer
	logger    *slog.Logger
	now       func() time.Time
}

// NewDispatcher wires the dispatcher. publisher and mailer may each be nil
// when that channel is not configured.
func NewDispatcher(tx services.StoreTx, publisher domain.NotificationPublisher, mailer domain.Mailer, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		tx:        tx,
		publisher: publisher,
		mailer:    mailer,
		logger:    logger,
		now:       time.Now,
	}
}

// DispatchPending publishes up to limit undispatched notifications and marks
// them dispatched. Delivery failures are logged and the row stays pending for
// the next pass; delivery here is at-least-once.
func (d *Dispatcher) DispatchPending(ctx context.Context, limit int) (int, error) {
	dispatched := 0
	err := d.tx.RunInTx(ctx, func(store services.Store) error {
		pending, err := store.Outbox().ListPending(ctx, limit)
		if err != nil {
			return fmt.Errorf("list pending notifications: %w", err)
		}
		for _, n := range pending {
			if err := d.deliver(ctx, n); err != nil {
				d.logger.Warn("notification delivery failed",
					"notification_id", n.ID, "kind", n.Kind, "error", err)
				continue
			}
			if err := store.Outbox().MarkDispatched(ctx, n.ID, d.now()); err != nil {
				return fmt.Errorf("mark dispatched: %w", err)
			}
			dispatched++
		}
		return nil
	})
	return dispatched, err
}

func (d *Dispatcher) deliver(ctx context.Context, n *domain.Notification) error {
	if d.publisher != nil {
		if err := d.publisher.Publish(ctx, n); err != nil {
			return err
		}
	}
	if d.mailer == nil {
		return nil
	}
	// Email is sent only when the producer attached a recipient address.
	to := n.Data["email"]
	if to == "" {
		return nil
	}
	subject, html, text, ok, err := RenderEmail(n)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return d.mailer.Send(to, subject, html, text)
}
