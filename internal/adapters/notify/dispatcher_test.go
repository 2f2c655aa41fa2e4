package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/admbtski/miglee-sub005/internal/domain"
	"github.com/admbtski/miglee-sub005/internal/services"
)

// outboxStore is a Store/StoreTx double exposing only the outbox; the
// dispatcher touches nothing else.
type outboxStore struct {
	rows []*domain.Notification
}

func (s *outboxStore) RunInTx(ctx context.Context, fn func(store services.Store) error) error {
	return fn(s)
}

func (s *outboxStore) Events() domain.EventRepository { return nil }

func (s *outboxStore) Members() domain.EventMemberRepository { return nil }

func (s *outboxStore) MemberEvents() domain.MemberEventRepository { return nil }

func (s *outboxStore) Outbox() domain.NotificationOutboxRepository { return (*outboxRepo)(s) }

type outboxRepo outboxStore

func (r *outboxRepo) Create(ctx context.Context, n *domain.Notification) error {
	r.rows = append(r.rows, n)
	return nil
}

func (r *outboxRepo) ListPending(ctx context.Context, limit int) ([]*domain.Notification, error) {
	var out []*domain.Notification
	for _, n := range r.rows {
		if n.DispatchedAt == nil {
			out = append(out, n)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *outboxRepo) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	for _, n := range r.rows {
		if n.ID == id {
			n.DispatchedAt = &at
			return nil
		}
	}
	return domain.ErrNotFound
}

type fakePublisher struct {
	published []*domain.Notification
	err       error
}

func (p *fakePublisher) Publish(ctx context.Context, n *domain.Notification) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, n)
	return nil
}

type sentMail struct {
	to      string
	subject string
}

type fakeMailer struct {
	sent []sentMail
}

func (m *fakeMailer) Send(to, subject, html, text string) error {
	m.sent = append(m.sent, sentMail{to: to, subject: subject})
	return nil
}

func TestDispatcher_DispatchPending(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &outboxStore{rows: []*domain.Notification{
		{
			ID:          "n-1",
			Kind:        domain.NotifyInvited,
			RecipientID: "user-1",
			EventID:     "ev-1",
			Data:        map[string]string{"email": "user-1@example.com"},
			CreatedAt:   now,
		},
		{
			ID:          "n-2",
			Kind:        domain.NotifyKicked,
			RecipientID: "user-2",
			EventID:     "ev-1",
			CreatedAt:   now,
		},
	}}
	publisher := &fakePublisher{}
	mailer := &fakeMailer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	d := NewDispatcher(store, publisher, mailer, logger)
	d.now = func() time.Time { return now }

	dispatched, err := d.DispatchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 2, dispatched)

	// Both rows went out over pub/sub; only the templated row with an email
	// address produced a mail.
	require.Len(t, publisher.published, 2)
	require.Len(t, mailer.sent, 1)
	require.Equal(t, "user-1@example.com", mailer.sent[0].to)
	require.NotNil(t, store.rows[0].DispatchedAt)
	require.NotNil(t, store.rows[1].DispatchedAt)

	// A second pass finds nothing left.
	dispatched, err = d.DispatchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 0, dispatched)
}

func TestDispatcher_DeliveryFailureLeavesRowPending(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &outboxStore{rows: []*domain.Notification{
		{ID: "n-1", Kind: domain.NotifyApproved, RecipientID: "user-1", EventID: "ev-1", CreatedAt: now},
	}}
	publisher := &fakePublisher{err: errors.New("redis down")}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	d := NewDispatcher(store, publisher, nil, logger)

	dispatched, err := d.DispatchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 0, dispatched)
	require.Nil(t, store.rows[0].DispatchedAt)
}

func TestRenderEmail(t *testing.T) {
	n := &domain.Notification{Kind: domain.NotifyWaitlistPromoted}
	subject, html, text, ok, err := RenderEmail(n)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "A spot opened up: you're in", subject)
	require.Equal(t, html, text)

	// Kinds without a template are skipped, not errored.
	_, _, _, ok, err = RenderEmail(&domain.Notification{Kind: domain.NotifyUnbanned})
	require.NoError(t, err)
	require.False(t, ok)
}
