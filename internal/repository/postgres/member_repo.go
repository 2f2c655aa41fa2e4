package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/admbtski/miglee-sub005/internal/domain"
)

const memberColumns = `id, event_id, user_id, status, role, joined_at, left_at, note, added_by_id, created_at, updated_at`

type eventMemberRepository struct {
	DB Querier
}

func NewEventMemberRepository(q Querier) domain.EventMemberRepository {
	return &eventMemberRepository{
		DB: q,
	}
}

func (r *eventMemberRepository) Create(ctx context.Context, m *domain.EventMember) error {
	query := `
		INSERT INTO event_members (id, event_id, user_id, status, role, joined_at, left_at, note, added_by_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.DB.ExecContext(ctx, query,
		m.ID, m.EventID, m.UserID, m.Status, m.Role,
		m.JoinedAt, m.LeftAt, m.Note, m.AddedByID, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			// Unique (event_id, user_id) violated: a concurrent request
			// created the row first.
			return domain.NewFailedPrecondition(domain.ReasonAlreadyMember, "membership already exists")
		}
		return err
	}
	return nil
}

func (r *eventMemberRepository) GetByEventAndUser(ctx context.Context, eventID, userID string) (*domain.EventMember, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM event_members
		WHERE event_id = $1 AND user_id = $2
	`
	return r.scanOne(r.DB.QueryRowContext(ctx, query, eventID, userID))
}

func (r *eventMemberRepository) ListByEventID(ctx context.Context, eventID string) ([]*domain.EventMember, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM event_members
		WHERE event_id = $1
		ORDER BY created_at ASC, id ASC
	`
	return r.list(ctx, query, eventID)
}

func (r *eventMemberRepository) ListByStatus(ctx context.Context, eventID string, status domain.MemberStatus) ([]*domain.EventMember, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM event_members
		WHERE event_id = $1 AND status = $2
		ORDER BY created_at ASC, id ASC
	`
	return r.list(ctx, query, eventID, status)
}

func (r *eventMemberRepository) CountByStatus(ctx context.Context, eventID string, status domain.MemberStatus) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM event_members
		WHERE event_id = $1 AND status = $2
	`
	var count int
	if err := r.DB.QueryRowContext(ctx, query, eventID, status).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// FirstWaitlisted selects the head of the FIFO queue: earliest created_at,
// ties broken by id ascending.
func (r *eventMemberRepository) FirstWaitlisted(ctx context.Context, eventID string) (*domain.EventMember, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM event_members
		WHERE event_id = $1 AND status = $2
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`
	return r.scanOne(r.DB.QueryRowContext(ctx, query, eventID, domain.StatusWaitlist))
}

func (r *eventMemberRepository) Update(ctx context.Context, m *domain.EventMember) error {
	query := `
		UPDATE event_members
		SET status = $1, role = $2, joined_at = $3, left_at = $4, note = $5,
		    added_by_id = $6, created_at = $7, updated_at = $8
		WHERE id = $9
	`
	result, err := r.DB.ExecContext(ctx, query,
		m.Status, m.Role, m.JoinedAt, m.LeftAt, m.Note,
		m.AddedByID, m.CreatedAt, m.UpdatedAt, m.ID,
	)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *eventMemberRepository) Delete(ctx context.Context, eventID, userID string) error {
	query := `DELETE FROM event_members WHERE event_id = $1 AND user_id = $2`
	result, err := r.DB.ExecContext(ctx, query, eventID, userID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *eventMemberRepository) scanOne(row *sql.Row) (*domain.EventMember, error) {
	m := &domain.EventMember{}
	var joinedNull, leftNull sql.NullTime
	var noteNull, addedByNull sql.NullString
	err := row.Scan(
		&m.ID, &m.EventID, &m.UserID, &m.Status, &m.Role,
		&joinedNull, &leftNull, &noteNull, &addedByNull, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	fillMemberNullables(m, joinedNull, leftNull, noteNull, addedByNull)
	return m, nil
}

func (r *eventMemberRepository) list(ctx context.Context, query string, args ...any) ([]*domain.EventMember, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]*domain.EventMember, 0)
	for rows.Next() {
		m := &domain.EventMember{}
		var joinedNull, leftNull sql.NullTime
		var noteNull, addedByNull sql.NullString
		if err := rows.Scan(
			&m.ID, &m.EventID, &m.UserID, &m.Status, &m.Role,
			&joinedNull, &leftNull, &noteNull, &addedByNull, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, err
		}
		fillMemberNullables(m, joinedNull, leftNull, noteNull, addedByNull)
		members = append(members, m)
	}
	return members, rows.Err()
}

func fillMemberNullables(m *domain.EventMember, joined, left sql.NullTime, note, addedBy sql.NullString) {
	if joined.Valid {
		m.JoinedAt = &joined.Time
	}
	if left.Valid {
		m.LeftAt = &left.Time
	}
	if note.Valid {
		m.Note = &note.String
	}
	if addedBy.Valid {
		m.AddedByID = &addedBy.String
	}
}
