package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/admbtski/miglee-sub005/internal/domain"
)

type eventRepository struct {
	DB Querier
}

func NewEventRepository(q Querier) domain.EventRepository {
	return &eventRepository{
		DB: q,
	}
}

func (r *eventRepository) Create(ctx context.Context, e *domain.Event) error {
	query := `
		INSERT INTO events (
			id, title, start_at, end_at, max_participants, joined_count, join_mode,
			allow_join_late, join_opens_minutes_before_start, join_cutoff_minutes_before_start,
			late_join_cutoff_minutes_after_start, join_manually_closed,
			canceled_at, deleted_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := r.DB.ExecContext(ctx, query,
		e.ID, e.Title, e.StartAt, e.EndAt, e.Max, e.JoinedCount, e.JoinMode,
		e.AllowJoinLate, e.JoinOpensMinutesBeforeStart, e.JoinCutoffMinutesBeforeStart,
		e.LateJoinCutoffMinutesAfterStart, e.JoinManuallyClosed,
		e.CanceledAt, e.DeletedAt, e.CreatedAt, e.UpdatedAt,
	)
	return err
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	query := `
		SELECT id, title, start_at, end_at, max_participants, joined_count, join_mode,
		       allow_join_late, join_opens_minutes_before_start, join_cutoff_minutes_before_start,
		       late_join_cutoff_minutes_after_start, join_manually_closed,
		       canceled_at, deleted_at, created_at, updated_at
		FROM events
		WHERE id = $1
	`
	e := &domain.Event{}
	var maxNull, opensNull, cutoffNull, lateCutoffNull sql.NullInt64
	var canceledNull, deletedNull sql.NullTime
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&e.ID, &e.Title, &e.StartAt, &e.EndAt, &maxNull, &e.JoinedCount, &e.JoinMode,
		&e.AllowJoinLate, &opensNull, &cutoffNull,
		&lateCutoffNull, &e.JoinManuallyClosed,
		&canceledNull, &deletedNull, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if maxNull.Valid {
		v := int(maxNull.Int64)
		e.Max = &v
	}
	if opensNull.Valid {
		v := int(opensNull.Int64)
		e.JoinOpensMinutesBeforeStart = &v
	}
	if cutoffNull.Valid {
		v := int(cutoffNull.Int64)
		e.JoinCutoffMinutesBeforeStart = &v
	}
	if lateCutoffNull.Valid {
		v := int(lateCutoffNull.Int64)
		e.LateJoinCutoffMinutesAfterStart = &v
	}
	if canceledNull.Valid {
		e.CanceledAt = &canceledNull.Time
	}
	if deletedNull.Valid {
		e.DeletedAt = &deletedNull.Time
	}
	return e, nil
}

// ReserveJoinedSlot is the optimistic capacity guard: the conditional update
// only succeeds while capacity remains, and the affected-row count is the
// success signal. No read-then-write window exists.
func (r *eventRepository) ReserveJoinedSlot(ctx context.Context, eventID string) (bool, error) {
	query := `
		UPDATE events
		SET joined_count = joined_count + 1, updated_at = NOW()
		WHERE id = $1
		  AND (max_participants IS NULL OR joined_count < max_participants)
	`
	result, err := r.DB.ExecContext(ctx, query, eventID)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (r *eventRepository) ReleaseJoinedSlot(ctx context.Context, eventID string) error {
	query := `
		UPDATE events
		SET joined_count = joined_count - 1, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.DB.ExecContext(ctx, query, eventID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
