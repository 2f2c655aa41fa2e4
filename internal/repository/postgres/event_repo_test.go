package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/admbtski/miglee-sub005/internal/domain"
)

func TestEventRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	startAt := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	endAt := startAt.Add(3 * time.Hour)

	eventColumns := []string{
		"id", "title", "start_at", "end_at", "max_participants", "joined_count", "join_mode",
		"allow_join_late", "join_opens_minutes_before_start", "join_cutoff_minutes_before_start",
		"late_join_cutoff_minutes_after_start", "join_manually_closed",
		"canceled_at", "deleted_at", "created_at", "updated_at",
	}

	tests := []struct {
		name    string
		id      string
		mock    func(mock sqlmock.Sqlmock)
		want    *domain.Event
		wantErr error
	}{
		{
			name: "success with capacity",
			id:   "ev-1",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT id, title, start_at, end_at, max_participants, joined_count, join_mode`).
					WithArgs("ev-1").
					WillReturnRows(sqlmock.NewRows(eventColumns).
						AddRow("ev-1", "Go Meetup", startAt, endAt, int64(50), 12, "OPEN",
							true, int64(120), nil, nil, false, nil, nil, createdAt, createdAt))
			},
			want: func() *domain.Event {
				max := 50
				opens := 120
				return &domain.Event{
					ID:                          "ev-1",
					Title:                       "Go Meetup",
					StartAt:                     startAt,
					EndAt:                       endAt,
					Max:                         &max,
					JoinedCount:                 12,
					JoinMode:                    domain.JoinModeOpen,
					AllowJoinLate:               true,
					JoinOpensMinutesBeforeStart: &opens,
					CreatedAt:                   createdAt,
					UpdatedAt:                   createdAt,
				}
			}(),
		},
		{
			name: "success unlimited capacity",
			id:   "ev-2",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT id, title, start_at, end_at, max_participants, joined_count, join_mode`).
					WithArgs("ev-2").
					WillReturnRows(sqlmock.NewRows(eventColumns).
						AddRow("ev-2", "Open House", startAt, endAt, nil, 3, "APPROVAL",
							false, nil, nil, nil, false, nil, nil, createdAt, createdAt))
			},
			want: &domain.Event{
				ID:          "ev-2",
				Title:       "Open House",
				StartAt:     startAt,
				EndAt:       endAt,
				JoinedCount: 3,
				JoinMode:    domain.JoinModeApproval,
				CreatedAt:   createdAt,
				UpdatedAt:   createdAt,
			},
		},
		{
			name: "not found",
			id:   "ev-missing",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT id, title, start_at, end_at, max_participants, joined_count, join_mode`).
					WithArgs("ev-missing").
					WillReturnError(sql.ErrNoRows)
			},
			wantErr: domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(mock)
			repo := NewEventRepository(db)
			got, err := repo.GetByID(ctx, tt.id)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Nil(t, got)
				require.NoError(t, mock.ExpectationsWereMet())
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestEventRepository_ReserveJoinedSlot(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		mock    func(mock sqlmock.Sqlmock)
		want    bool
		wantErr bool
	}{
		{
			name: "slot reserved",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE events`).
					WithArgs("ev-1").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			want: true,
		},
		{
			name: "event full",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE events`).
					WithArgs("ev-1").
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			want: false,
		},
		{
			name: "db error",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE events`).
					WithArgs("ev-1").
					WillReturnError(sql.ErrConnDone)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(mock)
			repo := NewEventRepository(db)
			got, err := repo.ReserveJoinedSlot(ctx, "ev-1")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestEventRepository_ReleaseJoinedSlot(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		mock    func(mock sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "slot released",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE events`).
					WithArgs("ev-1").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "missing event",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE events`).
					WithArgs("ev-1").
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(mock)
			repo := NewEventRepository(db)
			err = repo.ReleaseJoinedSlot(ctx, "ev-1")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
