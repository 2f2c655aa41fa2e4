package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MemberStatus is the lifecycle status of an event membership.
type MemberStatus string

const (
	// StatusNone is the implicit status of a user with no membership row.
	StatusNone MemberStatus = ""

	StatusPending   MemberStatus = "PENDING"
	StatusInvited   MemberStatus = "INVITED"
	StatusJoined    MemberStatus = "JOINED"
	StatusWaitlist  MemberStatus = "WAITLIST"
	StatusRejected  MemberStatus = "REJECTED"
	StatusKicked    MemberStatus = "KICKED"
	StatusBanned    MemberStatus = "BANNED"
	StatusLeft      MemberStatus = "LEFT"
	StatusCancelled MemberStatus = "CANCELLED"
)

// MemberRole is a member's role within one event.
type MemberRole string

const (
	RoleOwner       MemberRole = "OWNER"
	RoleModerator   MemberRole = "MODERATOR"
	RoleParticipant MemberRole = "PARTICIPANT"
)

// EventMember is one membership row per (event, user) pair. Rows are created
// on first interaction and never physically removed except by the explicit
// cancel-pending/invite-cancel paths.
type EventMember struct {
	ID      string `json:"id"`
	EventID string `json:"event_id"`
	UserID  string `json:"user_id"`

	Status MemberStatus `json:"status"`
	Role   MemberRole   `json:"role"`

	JoinedAt *time.Time `json:"joined_at,omitempty"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
	Note     *string    `json:"note,omitempty"`
	// AddedByID records who invited/approved/banned this member, if anyone.
	AddedByID *string `json:"added_by_id,omitempty"`

	// CreatedAt is also the FIFO key for the waitlist (ties broken by ID).
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEventMember creates a membership row with a fresh ID.
func NewEventMember(eventID, userID string, status MemberStatus, role MemberRole, now time.Time) *EventMember {
	return &EventMember{
		ID:        uuid.NewString(),
		EventID:   eventID,
		UserID:    userID,
		Status:    status,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// EventMemberRepository defines storage operations for membership rows.
type EventMemberRepository interface {
	Create(ctx context.Context, m *EventMember) error
	GetByEventAndUser(ctx context.Context, eventID, userID string) (*EventMember, error)
	ListByEventID(ctx context.Context, eventID string) ([]*EventMember, error)
	ListByStatus(ctx context.Context, eventID string, status MemberStatus) ([]*EventMember, error)
	CountByStatus(ctx context.Context, eventID string, status MemberStatus) (int, error)

	// FirstWaitlisted returns the earliest WAITLIST member for the event,
	// ordered by (created_at ASC, id ASC), or ErrNotFound.
	FirstWaitlisted(ctx context.Context, eventID string) (*EventMember, error)

	// Update persists all mutable fields of the row identified by m.ID.
	Update(ctx context.Context, m *EventMember) error

	// Delete removes the row for (eventID, userID); used only by the
	// cancel-pending/invite-cancel paths.
	Delete(ctx context.Context, eventID, userID string) error
}
