package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MemberEventKind tags one membership transition in the append-only trail.
type MemberEventKind string

const (
	MemberEventJoin            MemberEventKind = "JOIN"
	MemberEventRequest         MemberEventKind = "REQUEST"
	MemberEventInvite          MemberEventKind = "INVITE"
	MemberEventAcceptInvite    MemberEventKind = "ACCEPT_INVITE"
	MemberEventApprove         MemberEventKind = "APPROVE"
	MemberEventReject          MemberEventKind = "REJECT"
	MemberEventKick            MemberEventKind = "KICK"
	MemberEventBan             MemberEventKind = "BAN"
	MemberEventUnban           MemberEventKind = "UNBAN"
	MemberEventLeave           MemberEventKind = "LEAVE"
	MemberEventWaitlist        MemberEventKind = "WAITLIST"
	MemberEventWaitlistPromote MemberEventKind = "WAITLIST_PROMOTE"
	MemberEventWaitlistLeave   MemberEventKind = "WAITLIST_LEAVE"
)

// MemberEvent is one append-only row per membership transition. Write-only
// from this core; read by governance tooling.
type MemberEvent struct {
	ID      string `json:"id"`
	EventID string `json:"event_id"`
	// UserID is the subject of the transition, not the initiator.
	UserID    string          `json:"user_id"`
	Actor     Actor           `json:"-"`
	Kind      MemberEventKind `json:"kind"`
	Note      *string         `json:"note,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewMemberEvent creates a transition-log row with a fresh ID.
func NewMemberEvent(eventID, userID string, actor Actor, kind MemberEventKind, note *string, now time.Time) *MemberEvent {
	return &MemberEvent{
		ID:        uuid.NewString(),
		EventID:   eventID,
		UserID:    userID,
		Actor:     actor,
		Kind:      kind,
		Note:      note,
		CreatedAt: now,
	}
}

// MemberEventRepository defines storage operations for the transition trail.
type MemberEventRepository interface {
	Create(ctx context.Context, ev *MemberEvent) error
	ListByEventAndUser(ctx context.Context, eventID, userID string) ([]*MemberEvent, error)
}
