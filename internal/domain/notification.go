package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// NotificationKind identifies what happened, for rendering and routing.
type NotificationKind string

const (
	NotifyJoinRequest      NotificationKind = "JOIN_REQUEST"
	NotifyInvited          NotificationKind = "INVITED"
	NotifyInviteAccepted   NotificationKind = "INVITE_ACCEPTED"
	NotifyApproved         NotificationKind = "APPROVED"
	NotifyWaitlisted       NotificationKind = "WAITLISTED"
	NotifyRejected         NotificationKind = "REJECTED"
	NotifyKicked           NotificationKind = "KICKED"
	NotifyBanned           NotificationKind = "BANNED"
	NotifyUnbanned         NotificationKind = "UNBANNED"
	NotifyWaitlistPromoted NotificationKind = "WAITLIST_PROMOTED"
)

// Notification is an outbox row: written in the same transaction as the state
// change it reports, dispatched after commit so an aborted transaction never
// notifies anyone.
type Notification struct {
	ID          string           `json:"id"`
	Kind        NotificationKind `json:"kind"`
	RecipientID string           `json:"recipient_id"`
	// ActorID is nil for system-initiated notifications.
	ActorID *string `json:"actor_id,omitempty"`
	EventID string  `json:"event_id"`
	// DedupeKey, when set, makes repeated inserts a no-op; used e.g. so a
	// moderator gets one join-request notification per requester.
	DedupeKey *string           `json:"dedupe_key,omitempty"`
	Data      map[string]string `json:"data,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	DispatchedAt *time.Time `json:"dispatched_at,omitempty"`
}

// NewNotification creates an outbox row with a fresh ID.
func NewNotification(kind NotificationKind, recipientID, eventID string, actor Actor, now time.Time) *Notification {
	n := &Notification{
		ID:          uuid.NewString(),
		Kind:        kind,
		RecipientID: recipientID,
		EventID:     eventID,
		CreatedAt:   now,
	}
	if id, ok := actor.UserID(); ok {
		n.ActorID = &id
	}
	return n
}

// NotificationOutboxRepository defines storage operations for the outbox.
type NotificationOutboxRepository interface {
	// Create inserts the row; inserts with an already-seen dedupe key are
	// silently dropped.
	Create(ctx context.Context, n *Notification) error
	ListPending(ctx context.Context, limit int) ([]*Notification, error)
	MarkDispatched(ctx context.Context, id string, at time.Time) error
}

// NotificationPublisher fans a committed notification out to subscribers.
type NotificationPublisher interface {
	Publish(ctx context.Context, n *Notification) error
}

// Mailer sends a rendered email (infrastructure port).
type Mailer interface {
	Send(to, subject, html, text string) error
}
