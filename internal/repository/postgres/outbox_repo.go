package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/admbtski/miglee-sub005/internal/domain"
)

type notificationOutboxRepository struct {
	DB Querier
}

func NewNotificationOutboxRepository(q Querier) domain.NotificationOutboxRepository {
	return &notificationOutboxRepository{
		DB: q,
	}
}

// Create inserts the outbox row in the caller's transaction. Rows carrying a
// dedupe key use ON CONFLICT DO NOTHING so repeated fan-out of the same
// logical notification is dropped at insert time.
func (r *notificationOutboxRepository) Create(ctx context.Context, n *domain.Notification) error {
	var data []byte
	if n.Data != nil {
		var err error
		data, err = json.Marshal(n.Data)
		if err != nil {
			return err
		}
	}
	query := `
		INSERT INTO notification_outbox (id, kind, recipient_id, actor_id, event_id, dedupe_key, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (dedupe_key) DO NOTHING
	`
	_, err := r.DB.ExecContext(ctx, query,
		n.ID, n.Kind, n.RecipientID, n.ActorID, n.EventID, n.DedupeKey, data, n.CreatedAt,
	)
	return err
}

func (r *notificationOutboxRepository) ListPending(ctx context.Context, limit int) ([]*domain.Notification, error) {
	query := `
		SELECT id, kind, recipient_id, actor_id, event_id, dedupe_key, data, created_at, dispatched_at
		FROM notification_outbox
		WHERE dispatched_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := make([]*domain.Notification, 0)
	for rows.Next() {
		n := &domain.Notification{}
		var actorNull, dedupeNull sql.NullString
		var dataNull []byte
		var dispatchedNull sql.NullTime
		if err := rows.Scan(&n.ID, &n.Kind, &n.RecipientID, &actorNull, &n.EventID, &dedupeNull, &dataNull, &n.CreatedAt, &dispatchedNull); err != nil {
			return nil, err
		}
		if actorNull.Valid {
			n.ActorID = &actorNull.String
		}
		if dedupeNull.Valid {
			n.DedupeKey = &dedupeNull.String
		}
		if len(dataNull) > 0 {
			if err := json.Unmarshal(dataNull, &n.Data); err != nil {
				return nil, err
			}
		}
		if dispatchedNull.Valid {
			n.DispatchedAt = &dispatchedNull.Time
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (r *notificationOutboxRepository) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE notification_outbox SET dispatched_at = $1 WHERE id = $2`
	result, err := r.DB.ExecContext(ctx, query, at, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
