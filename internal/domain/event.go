package domain

import (
	"context"
	"time"
)

// JoinMode controls how new members are admitted to an event.
type JoinMode string

const (
	JoinModeOpen       JoinMode = "OPEN"
	JoinModeApproval   JoinMode = "APPROVAL"
	JoinModeInviteOnly JoinMode = "INVITE_ONLY"
)

// Event is the capacity/timing aggregate for a single event. It is mutated by
// this core only through the joined-count conditional updates; all other
// fields are owned by unrelated event-editing code.
type Event struct {
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	StartAt time.Time  `json:"start_at"`
	EndAt   time.Time  `json:"end_at"`

	// Max is the capacity; nil means unlimited.
	Max *int `json:"max,omitempty"`
	// JoinedCount is denormalized and must equal the count of JOINED members
	// at quiescence.
	JoinedCount int `json:"joined_count"`

	JoinMode JoinMode `json:"join_mode"`

	// Join-window configuration. Nil bounds mean "no constraint".
	AllowJoinLate                   bool `json:"allow_join_late"`
	JoinOpensMinutesBeforeStart     *int `json:"join_opens_minutes_before_start,omitempty"`
	JoinCutoffMinutesBeforeStart    *int `json:"join_cutoff_minutes_before_start,omitempty"`
	LateJoinCutoffMinutesAfterStart *int `json:"late_join_cutoff_minutes_after_start,omitempty"`
	JoinManuallyClosed              bool `json:"join_manually_closed"`

	CanceledAt *time.Time `json:"canceled_at,omitempty"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsFull reports whether the event has no spare capacity. Advisory only: the
// authoritative guard against over-admission is the conditional update in
// EventRepository.ReserveJoinedSlot.
func (e *Event) IsFull() bool {
	return e.Max != nil && e.JoinedCount >= *e.Max
}

// EventRepository defines the storage operations this core needs on events.
type EventRepository interface {
	Create(ctx context.Context, e *Event) error
	GetByID(ctx context.Context, id string) (*Event, error)

	// ReserveJoinedSlot atomically increments joined_count if capacity
	// remains (or capacity is unlimited). Returns false when the event is
	// full or missing; the affected-row count is the success signal.
	ReserveJoinedSlot(ctx context.Context, eventID string) (bool, error)

	// ReleaseJoinedSlot decrements joined_count. Decrements are never
	// capacity-guarded: a leaving/kicked/banned joined member always frees a
	// slot that was previously reserved.
	ReleaseJoinedSlot(ctx context.Context, eventID string) error
}
