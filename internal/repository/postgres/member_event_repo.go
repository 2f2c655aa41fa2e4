package postgres

import (
	"context"
	"database/sql"

	"github.com/admbtski/miglee-sub005/internal/domain"
)

type memberEventRepository struct {
	DB Querier
}

func NewMemberEventRepository(q Querier) domain.MemberEventRepository {
	return &memberEventRepository{
		DB: q,
	}
}

func (r *memberEventRepository) Create(ctx context.Context, ev *domain.MemberEvent) error {
	query := `
		INSERT INTO member_events (id, event_id, user_id, actor_id, kind, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	// actor_id NULL marks a system action.
	var actorID *string
	if id, ok := ev.Actor.UserID(); ok {
		actorID = &id
	}
	_, err := r.DB.ExecContext(ctx, query,
		ev.ID, ev.EventID, ev.UserID, actorID, ev.Kind, ev.Note, ev.CreatedAt,
	)
	return err
}

func (r *memberEventRepository) ListByEventAndUser(ctx context.Context, eventID, userID string) ([]*domain.MemberEvent, error) {
	query := `
		SELECT id, event_id, user_id, actor_id, kind, note, created_at
		FROM member_events
		WHERE event_id = $1 AND user_id = $2
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.DB.QueryContext(ctx, query, eventID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]*domain.MemberEvent, 0)
	for rows.Next() {
		ev := &domain.MemberEvent{}
		var actorNull, noteNull sql.NullString
		if err := rows.Scan(&ev.ID, &ev.EventID, &ev.UserID, &actorNull, &ev.Kind, &noteNull, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if actorNull.Valid {
			ev.Actor = domain.UserActor(actorNull.String)
		} else {
			ev.Actor = domain.SystemActor()
		}
		if noteNull.Valid {
			ev.Note = &noteNull.String
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
