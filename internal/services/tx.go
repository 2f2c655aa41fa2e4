package services

import (
	"context"

	"github.com/admbtski/miglee-sub005/internal/domain"
)

// Store bundles the repositories a single use case touches. Inside RunInTx
// every repository is bound to the same transaction, so reads see the
// transaction's own prior writes.
type Store interface {
	Events() domain.EventRepository
	Members() domain.EventMemberRepository
	MemberEvents() domain.MemberEventRepository
	Outbox() domain.NotificationOutboxRepository
}

// StoreTx provides the transactional boundary for membership mutations.
// Implementations wrap a database transaction; the in-memory test double
// simply runs fn against its store. The tx-scoped store is always an explicit
// parameter, never an ambient handle.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(store Store) error) error
}
