package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/admbtski/miglee-sub005/internal/domain"
	"github.com/admbtski/miglee-sub005/internal/services"
)

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx, so
// every repository can run either standalone or bound to a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store bundles the repositories bound to one Querier. Inside a transaction
// all repositories share the same *sql.Tx, so reads see the transaction's
// prior writes.
type Store struct {
	events       domain.EventRepository
	members      domain.EventMemberRepository
	memberEvents domain.MemberEventRepository
	outbox       domain.NotificationOutboxRepository
}

// NewStore creates a Store bound to the given Querier.
func NewStore(q Querier) *Store {
	return &Store{
		events:       NewEventRepository(q),
		members:      NewEventMemberRepository(q),
		memberEvents: NewMemberEventRepository(q),
		outbox:       NewNotificationOutboxRepository(q),
	}
}

func (s *Store) Events() domain.EventRepository { return s.events }

func (s *Store) Members() domain.EventMemberRepository { return s.members }

func (s *Store) MemberEvents() domain.MemberEventRepository { return s.memberEvents }

func (s *Store) Outbox() domain.NotificationOutboxRepository { return s.outbox }

// defaultTxTimeout bounds a single membership transaction.
const defaultTxTimeout = 5 * time.Second

// TxManager runs use-case closures inside one database transaction: begin,
// run against a tx-bound store, commit on nil, roll back on error.
type TxManager struct {
	db      *sql.DB
	timeout time.Duration
}

// NewTxManager creates a TxManager over the given database handle.
func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

// RunInTx implements services.StoreTx.
func (t *TxManager) RunInTx(ctx context.Context, fn func(store services.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(NewStore(tx)); err != nil {
		return err
	}
	return tx.Commit()
}
