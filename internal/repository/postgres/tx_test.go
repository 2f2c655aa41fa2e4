package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/admbtski/miglee-sub005/internal/services"
)

func TestTxManager_RunInTx_Commit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE events`).
		WithArgs("ev-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tm := NewTxManager(db)
	err = tm.RunInTx(context.Background(), func(store services.Store) error {
		ok, err := store.Events().ReserveJoinedSlot(context.Background(), "ev-1")
		require.NoError(t, err)
		require.True(t, ok)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManager_RunInTx_RollbackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	tm := NewTxManager(db)
	boom := errors.New("boom")
	err = tm.RunInTx(context.Background(), func(store services.Store) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManager_RunInTx_CanceledContext(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tm := NewTxManager(db)
	err = tm.RunInTx(ctx, func(store services.Store) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}
