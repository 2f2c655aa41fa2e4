package services

import (
	"fmt"

	"github.com/admbtski/miglee-sub005/internal/domain"
)

// Capability is the privilege level an actor brings to a transition. An
// actor may hold several (an owner is also a moderator); pass the full set.
type Capability uint8

const (
	CapabilitySelf Capability = 1 << iota
	CapabilityModerator
	CapabilityOwner
	CapabilitySystem
)

// Has reports whether the two capability sets intersect.
func (c Capability) Has(other Capability) bool {
	return c&other != 0
}

type transition struct {
	from, to domain.MemberStatus
}

// legalTransitions maps each legal edge to the capabilities allowed to take
// it. Any edge not listed here is rejected. Row deletion (cancel-pending,
// invite-cancel) is not a transition and is guarded separately.
var legalTransitions = map[transition]Capability{
	// Self join request / direct join from a clean slate.
	{domain.StatusNone, domain.StatusPending}:      CapabilitySelf,
	{domain.StatusRejected, domain.StatusPending}:  CapabilitySelf,
	{domain.StatusLeft, domain.StatusPending}:      CapabilitySelf,
	{domain.StatusCancelled, domain.StatusPending}: CapabilitySelf,
	{domain.StatusNone, domain.StatusJoined}:       CapabilitySelf,
	{domain.StatusRejected, domain.StatusJoined}:   CapabilitySelf,
	{domain.StatusLeft, domain.StatusJoined}:       CapabilitySelf,
	{domain.StatusCancelled, domain.StatusJoined}:  CapabilitySelf,

	// Self entry to the waitlist while the event is full (open mode).
	{domain.StatusNone, domain.StatusWaitlist}:      CapabilitySelf,
	{domain.StatusRejected, domain.StatusWaitlist}:  CapabilitySelf,
	{domain.StatusLeft, domain.StatusWaitlist}:      CapabilitySelf,
	{domain.StatusCancelled, domain.StatusWaitlist}: CapabilitySelf,

	// Moderator invites; a kicked member can only come back via invite.
	{domain.StatusNone, domain.StatusInvited}:      CapabilityModerator | CapabilityOwner,
	{domain.StatusRejected, domain.StatusInvited}:  CapabilityModerator | CapabilityOwner,
	{domain.StatusLeft, domain.StatusInvited}:      CapabilityModerator | CapabilityOwner,
	{domain.StatusCancelled, domain.StatusInvited}: CapabilityModerator | CapabilityOwner,
	{domain.StatusKicked, domain.StatusInvited}:    CapabilityModerator | CapabilityOwner,

	// Invite re-click: joins directly when open and not full, otherwise
	// becomes a pending request.
	{domain.StatusInvited, domain.StatusJoined}:  CapabilitySelf,
	{domain.StatusInvited, domain.StatusPending}: CapabilitySelf,

	// Moderation of pending requests.
	{domain.StatusPending, domain.StatusJoined}:   CapabilityModerator | CapabilityOwner,
	{domain.StatusPending, domain.StatusWaitlist}: CapabilityModerator | CapabilityOwner,
	{domain.StatusPending, domain.StatusRejected}: CapabilityModerator | CapabilityOwner,

	// Leaving and being removed.
	{domain.StatusJoined, domain.StatusLeft}:   CapabilitySelf,
	{domain.StatusJoined, domain.StatusKicked}: CapabilityModerator | CapabilityOwner,
	{domain.StatusJoined, domain.StatusBanned}: CapabilityModerator | CapabilityOwner,

	// Waitlist promotion (automatic or manual) and self leave-waitlist.
	{domain.StatusWaitlist, domain.StatusJoined}:    CapabilitySystem | CapabilityModerator | CapabilityOwner,
	{domain.StatusWaitlist, domain.StatusCancelled}: CapabilitySelf,

	// Unban lands in a neutral state; the user must request to join again.
	{domain.StatusBanned, domain.StatusRejected}: CapabilityModerator | CapabilityOwner,
}

// StateMachine validates requested membership transitions. It does not touch
// capacity or the join window; those concerns are composed by the
// orchestrator.
type StateMachine struct{}

// CanTransition returns nil when the edge from -> to is legal for an actor
// holding the given capabilities, or a FailedPrecondition error otherwise.
func (StateMachine) CanTransition(from, to domain.MemberStatus, caps Capability) error {
	allowed, ok := legalTransitions[transition{from, to}]
	if !ok {
		return domain.NewFailedPrecondition(domain.ReasonInvalidTransition,
			fmt.Sprintf("cannot move membership from %s to %s", statusLabel(from), statusLabel(to)))
	}
	if !caps.Has(allowed) {
		return domain.NewFailedPrecondition(domain.ReasonInvalidTransition,
			fmt.Sprintf("actor may not move membership from %s to %s", statusLabel(from), statusLabel(to)))
	}
	return nil
}

func statusLabel(s domain.MemberStatus) string {
	if s == domain.StatusNone {
		return "NONE"
	}
	return string(s)
}
