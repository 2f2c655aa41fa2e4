package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/admbtski/miglee-sub005/internal/domain"
	"github.com/admbtski/miglee-sub005/internal/platform/metrics"
)

const auditScopeMembership = "membership"

// MembershipService is the use-case layer for the event-membership
// lifecycle. Every exported method runs inside a single transaction: load,
// authorize, guard, transition, adjust capacity when crossing the JOINED
// boundary, append the transition-log entry, queue side effects, return the
// refreshed row. If anything fails the whole transaction rolls back, side
// effects included.
type MembershipService struct {
	tx       StoreTx
	authz    domain.AuthorizationOracle
	audit    domain.AuditSink
	capacity *CapacityCoordinator
	sm       StateMachine
	promoter *WaitlistPromoter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewMembershipService wires the orchestrator. metrics may be nil.
func NewMembershipService(
	tx StoreTx,
	authz domain.AuthorizationOracle,
	audit domain.AuditSink,
	capacity *CapacityCoordinator,
	promoter *WaitlistPromoter,
	logger *slog.Logger,
	m *metrics.Metrics,
) *MembershipService {
	return &MembershipService{
		tx:       tx,
		authz:    authz,
		audit:    audit,
		capacity: capacity,
		promoter: promoter,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// Join handles a self-service join click. Idempotent for users who are
// already JOINED, PENDING or WAITLIST. A kicked user is hard-rejected (only
// an explicit invite re-admits); a banned user always fails. An invited user
// re-clicking joins directly when the event is open-mode with capacity,
// otherwise becomes a pending request.
func (s *MembershipService) Join(ctx context.Context, eventID string, actor domain.Actor) (*domain.EventMember, error) {
	userID, ok := actor.UserID()
	if !ok {
		return nil, domain.ErrUnauthenticated
	}

	var out *domain.EventMember
	err := s.tx.RunInTx(ctx, func(store Store) error {
		event, err := store.Events().GetByID(ctx, eventID)
		if err != nil {
			return fmt.Errorf("get event: %w", err)
		}
		member, err := s.memberOrNone(ctx, store, eventID, userID)
		if err != nil {
			return err
		}

		from := domain.StatusNone
		if member != nil {
			from = member.Status
		}
		switch from {
		case domain.StatusJoined, domain.StatusPending, domain.StatusWaitlist:
			out = member
			return nil
		case domain.StatusBanned:
			return domain.NewFailedPrecondition(domain.ReasonBanned, "user is banned from this event")
		case domain.StatusKicked:
			return domain.NewFailedPrecondition(domain.ReasonKickedNeedsInvite, "user was kicked and must be invited again")
		}

		now := s.now()
		if res := EvaluateJoinWindow(event, now); !res.Open {
			return joinWindowError(res)
		}

		var target domain.MemberStatus
		if from == domain.StatusInvited {
			if event.JoinMode == domain.JoinModeOpen && !event.IsFull() {
				target = domain.StatusJoined
			} else {
				target = domain.StatusPending
			}
		} else {
			switch event.JoinMode {
			case domain.JoinModeOpen:
				if event.IsFull() {
					target = domain.StatusPending
				} else {
					target = domain.StatusJoined
				}
			case domain.JoinModeApproval:
				target = domain.StatusPending
			default:
				return domain.NewFailedPrecondition(domain.ReasonInviteOnly, "event is invite-only")
			}
		}

		if err := s.sm.CanTransition(from, target, CapabilitySelf); err != nil {
			return err
		}
		if target == domain.StatusJoined {
			reserved, err := s.capacity.ReserveSlot(ctx, store, eventID)
			if err != nil {
				return err
			}
			if !reserved {
				// Lost the race; route to a pending request instead.
				target = domain.StatusPending
				if err := s.sm.CanTransition(from, target, CapabilitySelf); err != nil {
					return err
				}
			}
		}

		if member == nil {
			member = domain.NewEventMember(eventID, userID, target, domain.RoleParticipant, now)
			if target == domain.StatusJoined {
				member.JoinedAt = &now
			}
			if err := store.Members().Create(ctx, member); err != nil {
				return fmt.Errorf("create member: %w", err)
			}
		} else {
			member.Status = target
			if target == domain.StatusJoined {
				member.JoinedAt = &now
				member.LeftAt = nil
			}
			member.UpdatedAt = now
			if err := store.Members().Update(ctx, member); err != nil {
				return fmt.Errorf("update member: %w", err)
			}
		}

		kind := domain.MemberEventRequest
		if target == domain.StatusJoined {
			kind = domain.MemberEventJoin
			if from == domain.StatusInvited {
				kind = domain.MemberEventAcceptInvite
			}
		}
		if err := store.MemberEvents().Create(ctx, domain.NewMemberEvent(eventID, userID, actor, kind, nil, now)); err != nil {
			return fmt.Errorf("create member event: %w", err)
		}

		if target == domain.StatusJoined {
			s.metrics.IncrementJoins()
		} else {
			if err := s.notifyModerators(ctx, store, eventID, userID, actor, now); err != nil {
				return err
			}
		}
		out = member
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AcceptInvite flips an INVITED membership to JOINED. The join window and
// capacity are re-validated here: the invite itself never reserved a slot.
func (s *MembershipService) AcceptInvite(ctx context.Context, eventID string, actor domain.Actor) (*domain.EventMember, error) {
	userID, ok := actor.UserID()
	if !ok {
		return nil, domain.ErrUnauthenticated
	}

	var out *domain.EventMember
	err := s.tx.RunInTx(ctx, func(store Store) error {
		event, err := store.Events().GetByID(ctx, eventID)
		if err != nil {
			return fmt.Errorf("get event: %w", err)
		}
		member, err := s.memberOrNone(ctx, store, eventID, userID)
		if err != nil {
			return err
		}
		if member == nil || member.Status != domain.StatusInvited {
			return domain.NewFailedPrecondition(domain.ReasonNotInvited, "no pending invite for this user")
		}

		now := s.now()
		if res := EvaluateJoinWindow(event, now); !res.Open {
			return joinWindowError(res)
		}
		if err := s.sm.CanTransition(domain.StatusInvited, domain.StatusJoined, CapabilitySelf); err != nil {
			return err
		}
		reserved, err := s.capacity.ReserveSlot(ctx, store, eventID)
		if err != nil {
			return err
		}
		if !reserved {
			return domain.NewFailedPrecondition(domain.ReasonEventFull, "event is full")
		}

		member.Status = domain.StatusJoined
		member.JoinedAt = &now
		member.LeftAt = nil
		member.UpdatedAt = now
		if err := store.Members().Update(ctx, member); err != nil {
			return fmt.Errorf("update member: %w", err)
		}
		if err := store.MemberEvents().Create(ctx, domain.NewMemberEvent(eventID, userID, actor, domain.MemberEventAcceptInvite, nil, now)); err != nil {
			return fmt.Errorf("create member event: %w", err)
		}
		if member.AddedByID != nil {
			n := domain.NewNotification(domain.NotifyInviteAccepted, *member.AddedByID, eventID, actor, now)
			n.Data = map[string]string{"member_user_id": userID}
			if err := store.Outbox().Create(ctx, n); err != nil {
				return fmt.Errorf("create notification: %w", err)
			}
		}
		s.metrics.IncrementJoins()
		out = member
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InviteMember creates or refreshes an INVITED membership for the target
// user. Moderator+ action; the owner and banned users cannot be targeted.
// Re-invites previously REJECTED/LEFT/CANCELLED/KICKED members.
func (s *MembershipService) InviteMember(ctx context.Context, eventID string, actor domain.Actor, targetUserID string, note *string) (*domain.EventMember, error) {
	actorID, caps, err := s.requireModerator(ctx, eventID, actor)
	if err != nil {
		return nil, err
	}

	var out *domain.EventMember
	err = s.tx.RunInTx(ctx, func(store Store) error {
		if _, err := store.Events().GetByID(ctx, eventID); err != nil {
			return fmt.Errorf("get event: %w", err)
		}
		member, err := s.memberOrNone(ctx, store, eventID, targetUserID)
		if err != nil {
			return err
		}

		from := domain.StatusNone
		if member != nil {
			if member.Role == domain.RoleOwner {
				return domain.NewForbidden(domain.ReasonOwnerImmutable, "the owner cannot be invited")
			}
			from = member.Status
		}
		switch from {
		case domain.StatusInvited:
			out = member
			return nil
		case domain.StatusBanned:
			return domain.NewFailedPrecondition(domain.ReasonBanned, "user is banned from this event")
		case domain.StatusJoined:
			return domain.NewFailedPrecondition(domain.ReasonAlreadyMember, "user is already a member")
		}

		if err := s.sm.CanTransition(from, domain.StatusInvited, caps); err != nil {
			return err
		}

		now := s.now()
		if member == nil {
			member = domain.NewEventMember(eventID, targetUserID, domain.StatusInvited, domain.RoleParticipant, now)
			member.AddedByID = &actorID
			member.Note = note
			if err := store.Members().Create(ctx, member); err != nil {
				return fmt.Errorf("create member: %w", err)
			}
		} else {
			member.Status = domain.StatusInvited
			member.AddedByID = &actorID
			member.Note = note
			member.UpdatedAt = now
			if err := store.Members().Update(ctx, member); err != nil {
				return fmt.Errorf("update member: %w", err)
			}
		}

		if err := store.MemberEvents().Create(ctx, domain.NewMemberEvent(eventID, targetUserID, actor, domain.MemberEventInvite, note, now)); err != nil {
			return fmt.Errorf("create member event: %w", err)
		}
		if err := s.recordAudit(ctx, store, eventID, actor, "INVITE", member, nil, domain.SeverityRoutine); err != nil {
			return err
		}
		n := domain.NewNotification(domain.NotifyInvited, targetUserID, eventID, actor, now)
		if err := store.Outbox().Create(ctx, n); err != nil {
			return fmt.Errorf("create notification: %w", err)
		}
		out = member
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApproveMembership admits a PENDING request. With capacity available the
// member lands JOINED; on a full event the member is routed to WAITLIST with
// a two-entry trail (APPROVE then WAITLIST) so governance can distinguish
// "approved but deferred" from a plain rejection. The APPROVE audit entry is
// written only on the direct-join path.
func (s *MembershipService) ApproveMembership(ctx context.Context, eventID string, actor domain.Actor, targetUserID string) (*domain.EventMember, error) {
	actorID, caps, err := s.requireModerator(ctx, eventID, actor)
	if err != nil {
		return nil, err
	}

	var out *domain.EventMember
	err = s.tx.RunInTx(ctx, func(store Store) error {
		if _, err := store.Events().GetByID(ctx, eventID); err != nil {
			return fmt.Errorf("get event: %w", err)
		}
		member, err := s.memberOrNone(ctx, store, eventID, targetUserID)
		if err != nil {
			return err
		}
		if member == nil || member.Status != domain.StatusPending {
			return domain.NewFailedPrecondition(domain.ReasonNotPending, "membership is not pending approval")
		}

		now := s.now()
		reserved, err := s.capacity.ReserveSlot(ctx, store, eventID)
		if err != nil {
			return err
		}

		if reserved {
			if err := s.sm.CanTransition(domain.StatusPending, domain.StatusJoined, caps); err != nil {
				return err
			}
			member.Status = domain.StatusJoined
			member.JoinedAt = &now
			member.AddedByID = &actorID
			member.UpdatedAt = now
			if err := store.Members().Update(ctx, member); err != nil {
				return fmt.Errorf("update member: %w", err)
			}
			if err := store.MemberEvents().Create(ctx, domain.NewMemberEvent(eventID, targetUserID, actor, domain.MemberEventApprove, nil, now)); err != nil {
				return fmt.Errorf("create member event: %w", err)
			}
			if err := s.recordAudit(ctx, store, eventID, actor, "APPROVE", member, nil, domain.SeverityRoutine); err != nil {
				return err
			}
			n := domain.NewNotification(domain.NotifyApproved, targetUserID, eventID, actor, now)
			if err := store.Outbox().Create(ctx, n); err != nil {
				return fmt.Errorf("create notification: %w", err)
			}
			s.metrics.IncrementJoins()
			out = member
			return nil
		}

		// Event full: approved but deferred to the waitlist.
		if err := s.sm.CanTransition(domain.StatusPending, domain.StatusWaitlist, caps); err != nil {
			return err
		}
		member.Status = domain.StatusWaitlist
		member.AddedByID = &actorID
		member.UpdatedAt = now
		if err := store.Members().Update(ctx, member); err != nil {
			return fmt.Errorf("update member: %w", err)
		}
		note := "approved while event was full"
		if err := store.MemberEvents().Create(ctx, domain.NewMemberEvent(eventID, targetUserID, actor, domain.MemberEventApprove, &note, now)); err != nil {
			return fmt.Errorf("create member event: %w", err)
		}
		if err := store.MemberEvents().Create(ctx, domain.NewMemberEvent(eventID, targetUserID, actor, domain.MemberEventWaitlist, nil, now)); err != nil {
			return fmt.Errorf("create member event: %w", err)
		}
		n := domain.NewNotification(domain.NotifyWaitlisted, targetUserID, eventID, actor, now)
		if err := store.Outbox().Create(ctx, n); err != nil {
			return fmt.Errorf("create notification: %w", err)
		}
		out = member
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RejectMembership declines a PENDING request, storing the optional
// moderator note as the rejection reason.
func (s *MembershipService) RejectMembership(ctx context.Context, eventID string, actor domain.Actor, targetUserID string, note *string) (*domain.EventMember, error) {
	_, caps, err := s.requireModerator(ctx, eventID, actor)
	if err != nil {
		return nil, err
	}

	var out *domain.EventMember
	err = s.tx.RunInTx(ctx, func(store Store) error {
		member, err := s.memberOrNone(ctx, store, eventID, targetUserID)
		if err != nil {
			return err
		}
		if member == nil || member.Status != domain.StatusPending {
			return domain.NewFailedPrecondition(domain.ReasonNotPending, "membership is not pending approval")
		}
		if err := s.sm.CanTransition(domain.StatusPending, domain.StatusRejected, caps); err != nil {
			return err
		}

		now := s.now()
		member.Status = domain.StatusRejected
		member.Note = note
		member.UpdatedAt = now
		if err := store.Members().Update(ctx, member); err != nil {
			return fmt.Errorf("update member: %w", err)
		}
		if err := store.MemberEvents().Create(ctx, domain.NewMemberEvent(eventID, targetUserID, actor, domain.MemberEventReject, note, now)); err != nil {
			return fmt.Errorf("create member event: %w", err)
		}
		if err := s.recordAudit(ctx, store, eventID, actor, "REJECT", member, nil, domain.SeverityRoutine); err != nil {
			return err
		}
		n := domain.NewNotification(domain.NotifyRejected, targetUserID, eventID, actor, now)
		if err := store.Outbox().Create(ctx, n); err != nil {
			return fmt.Errorf("create notification: %w", err)
		}
		out = member
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// KickMember removes a JOINED member, frees their slot and promotes from the
// waitlist. The owner cannot be kicked. A kicked member can only return via
// an explicit invite.
func (s *MembershipService) KickMember(ctx context.Context, eventID string, actor domain.Actor, targetUserID string, note *string) (*domain.EventMember, error) {
	return s.removeJoined(ctx, eventID, actor, targetUserID, note, domain.StatusKicked)
}

// BanMember removes a JOINED member and blocks any self-service re-entry
// until an explicit unban. Treated as a security-relevant action in the
// audit trail.
func (s *MembershipService) BanMember(ctx context.Context, eventID string, actor domain.Actor, targetUserID string, note *string) (*domain.EventMember, error) {
	return s.removeJoined(ctx, eventID, actor, targetUserID, note, domain.StatusBanned)
}

func (s *MembershipService) removeJoined(ctx context.Context, eventID string, actor domain.Actor, targetUserID string, note *string, target domain.MemberStatus) (*domain.EventMember, error) {
	actorID, caps, err := s.requireModerator(ctx, eventID, actor)
	if err != nil {
		return nil, err
	}

	var out *domain.EventMember
	err = s.tx.RunInTx(ctx, func(store Store) error {
		member, err := store.Members().GetByEventAndUser(ctx, eventID, targetUserID)
		if err != nil {
			return fmt.Errorf("get member: %w", err)
		}
		if member.Role == domain.RoleOwner {
			return domain.NewForbidden(domain.ReasonOwnerImmutable, "the owner cannot be removed")
		}
		if err := s.sm.CanTransition(member.Status, target, caps); err != nil {
			return err
		}

		now := s.now()
		member.Status = target
		member.LeftAt = &now
		member.AddedByID = &actorID
		member.Note = note
		member.UpdatedAt = now
		if err := store.Members().Update(ctx, member); err != nil {
			return fmt.Errorf("update member: %w", err)
		}

		if err := s.capacity.ReleaseSlot(ctx, store, eventID); err != nil {
			return err
		}

		kind := domain.MemberEventKick
		action := "KICK"
		notify := domain.NotifyKicked
		severity := domain.SeverityCritical
		if target == domain.StatusBanned {
			kind = domain.MemberEventBan
			action = "BAN"
			notify = domain.NotifyBanned
			severity = domain.SeveritySecurity
		}
		if err := store.MemberEvents().Create(ctx, domain.NewMemberEvent(eventID, targetUserID, actor, kind, note, now)); err != nil {
			return fmt.Errorf("create member event: %w", err)
		}
		if err := s.recordAudit(ctx, store, eventID, actor, action, member, nil, severity); err != nil {
			return err
		}
		n := domain.NewNotification(notify, targetUserID, eventID, actor, now)
		if err := store.Outbox().Create(ctx, n); err != nil {
			return fmt.Errorf("create notification: %w", err)
		}
		if target == domain.StatusBanned {
			s.metrics.IncrementBans()
		}
		if s.logger != nil {
			s.logger.Info("member removed",
				"event_id", eventID, "user_id", targetUserID, "status", string(target))
		}

		// A slot was vacated; promote opportunistically.
		if _, err := s.promoter.PromoteOne(ctx, store, eventID); err != nil {
			return err
		}
		out = member
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UnbanMember lifts a ban. The member lands in REJECTED, a neutral state:
// re-entry requires a fresh join request, never an automatic re-join.
func (s *MembershipService) UnbanMember(ctx context.Context, eventID string, actor domain.Actor, targetUserID string) (*domain.EventMember, error) {
	_, caps, err := s.requireModerator(ctx, eventID, actor)
	if err != nil {
		return nil, err
	}

	var out *domain.EventMember
	err = s.tx.RunInTx(ctx, func(store Store) error {
		member, err := store.Members().GetByEventAndUser(ctx, eventID, targetUserID)
		if err != nil {
			return fmt.Errorf("get member: %w", err)
		}
		if err := s.sm.CanTransition(member.Status, domain.StatusRejected, caps); err != nil {
			return err
		}

		now := s.now()
		member.Status = domain.StatusRejected
		member.UpdatedAt = now
		if err := store.Members().Update(ctx, member); err != nil {
			return fmt.Errorf("update member: %w", err)
		}
		if err := store.MemberEvents().Create(ctx, domain.NewMemberEvent(eventID, targetUserID, actor, domain.MemberEventUnban, nil, now)); err != nil {
			return fmt.Errorf("create member event: %w", err)
		}
		if err := s.recordAudit(ctx, store, eventID, actor, "UNBAN", member, nil, domain.SeverityCritical); err != nil {
			return err
		}
		n := domain.NewNotification(domain.NotifyUnbanned, targetUserID, eventID, actor, now)
		if err := store.Outbox().Create(ctx, n); err != nil {
			return fmt.Errorf("create notification: %w", err)
		}
		out = member
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateMemberRole changes a non-owner member's role. Owner-only; the owner
// role itself can never be granted or retargeted here. The diff-bearing
// audit entry is emitted only when the role actually changed.
func (s *MembershipService) UpdateMemberRole(ctx context.Context, eventID string, actor domain.Actor, targetUserID string, newRole domain.MemberRole) (*domain.EventMember, error) {
	userID, ok := actor.UserID()
	if !ok {
		return nil, domain.ErrUnauthenticated
	}
	isOwner, err := s.authz.IsOwner(ctx, eventID, userID)
	if err != nil {
		return nil, fmt.Errorf("authorize owner: %w", err)
	}
	if !isOwner {
		return nil, domain.NewForbidden(domain.ReasonNotOwner, "only the owner may change member roles")
	}
	if newRole != domain.RoleModerator && newRole != domain.RoleParticipant {
		return nil, domain.NewForbidden(domain.ReasonOwnerImmutable, "the owner role cannot be assigned")
	}

	var out *domain.EventMember
	err = s.tx.RunInTx(ctx, func(store Store) error {
		member, err := store.Members().GetByEventAndUser(ctx, eventID, targetUserID)
		if err != nil {
			return fmt.Errorf("get member: %w", err)
		}
		if member.Role == domain.RoleOwner {
			return domain.NewForbidden(domain.ReasonOwnerImmutable, "the owner role cannot be changed")
		}
		if member.Role == newRole {
			out = member
			return nil
		}

		oldRole := member.Role
		now := s.now()
		member.Role = newRole
		member.UpdatedAt = now
		if err := store.Members().Update(ctx, member); err != nil {
			return fmt.Errorf("update member: %w", err)
		}
		diff := map[string]domain.AuditChange{
			"role": {From: string(oldRole), To: string(newRole)},
		}
		if err := s.recordAudit(ctx, store, eventID, actor, "ROLE_CHANGE", member, diff, domain.SeverityRoutine); err != nil {
			return err
		}
		out = member
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LeaveEvent handles a self-service leave of a JOINED member, frees the slot
// and promotes from the waitlist. The owner must transfer ownership first.
func (s *MembershipService) LeaveEvent(ctx context.Context, eventID string, actor domain.Actor) (*domain.EventMember, error) {
	userID, ok := actor.UserID()
	if !ok {
		return nil, domain.ErrUnauthenticated
	}

	var out *domain.EventMember
	err := s.tx.RunInTx(ctx, func(store Store) error {
		member, err := store.Members().GetByEventAndUser(ctx, eventID, userID)
		if err != nil {
			return fmt.Errorf("get member: %w", err)
		}
		if member.Role == domain.RoleOwner {
			return domain.NewFailedPrecondition(domain.ReasonOwnerCannotLeave, "the owner must transfer ownership before leaving")
		}
		if err := s.sm.CanTransition(member.Status, domain.StatusLeft, CapabilitySelf); err != nil {
			return err
		}

		now := s.now()
		member.Status = domain.StatusLeft
		member.LeftAt = &now
		member.UpdatedAt = now
		if err := store.Members().Update(ctx, member); err != nil {
			return fmt.Errorf("update member: %w", err)
		}
		if err := s.capacity.ReleaseSlot(ctx, store, eventID); err != nil {
			return err
		}
		if err := store.MemberEvents().Create(ctx, domain.NewMemberEvent(eventID, userID, actor, domain.MemberEventLeave, nil, now)); err != nil {
			return fmt.Errorf("create member event: %w", err)
		}
		if _, err := s.promoter.PromoteOne(ctx, store, eventID); err != nil {
			return err
		}
		out = member
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// JoinWaitlistOpen queues the user on the waitlist of a full open-mode
// event. On a non-full or non-open event callers should use plain Join.
// Re-entering after having left the waitlist resets the FIFO timestamp, so
// re-entrants go to the back of the queue.
func (s *MembershipService) JoinWaitlistOpen(ctx context.Context, eventID string, actor domain.Actor) (*domain.EventMember, error) {
	userID, ok := actor.UserID()
	if !ok {
		return nil, domain.ErrUnauthenticated
	}

	var out *domain.EventMember
	err := s.tx.RunInTx(ctx, func(store Store) error {
		event, err := store.Events().GetByID(ctx, eventID)
		if err != nil {
			return fmt.Errorf("get event: %w", err)
		}
		if event.JoinMode != domain.JoinModeOpen {
			return domain.NewFailedPrecondition(domain.ReasonInvalidTransition, "waitlist self-join is only available for open events")
		}
		if !event.IsFull() {
			return domain.NewFailedPrecondition(domain.ReasonEventNotFull, "event is not full; use join")
		}

		now := s.now()
		if res := EvaluateJoinWindow(event, now); !res.Open {
			return joinWindowError(res)
		}

		member, err := s.memberOrNone(ctx, store, eventID, userID)
		if err != nil {
			return err
		}
		from := domain.StatusNone
		if member != nil {
			from = member.Status
		}
		switch from {
		case domain.StatusWaitlist:
			out = member
			return nil
		case domain.StatusJoined:
			return domain.NewFailedPrecondition(domain.ReasonAlreadyMember, "user is already a member")
		case domain.StatusBanned:
			return domain.NewFailedPrecondition(domain.ReasonBanned, "user is banned from this event")
		case domain.StatusKicked:
			return domain.NewFailedPrecondition(domain.ReasonKickedNeedsInvite, "user was kicked and must be invited again")
		}
		if err := s.sm.CanTransition(from, domain.StatusWaitlist, CapabilitySelf); err != nil {
			return err
		}

		if member == nil {
			member = domain.NewEventMember(eventID, userID, domain.StatusWaitlist, domain.RoleParticipant, now)
			if err := store.Members().Create(ctx, member); err != nil {
				return fmt.Errorf("create member: %w", err)
			}
		} else {
			member.Status = domain.StatusWaitlist
			// Back of the queue for re-entrants.
			member.CreatedAt = now
			member.UpdatedAt = now
			if err := store.Members().Update(ctx, member); err != nil {
				return fmt.Errorf("update member: %w", err)
			}
		}
		if err := store.MemberEvents().Create(ctx, domain.NewMemberEvent(eventID, userID, actor, domain.MemberEventWaitlist, nil, now)); err != nil {
			return fmt.Errorf("create member event: %w", err)
		}
		out = member
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LeaveWaitlist removes the user from the waitlist. Nothing was occupying a
// slot, so no promotion is triggered.
func (s *MembershipService) LeaveWaitlist(ctx context.Context, eventID string, actor domain.Actor) (*domain.EventMember, error) {
	userID, ok := actor.UserID()
	if !ok {
		return nil, domain.ErrUnauthenticated
	}

	var out *domain.EventMember
	err := s.tx.RunInTx(ctx, func(store Store) error {
		member, err := store.Members().GetByEventAndUser(ctx, eventID, userID)
		if err != nil {
			return fmt.Errorf("get member: %w", err)
		}
		if member.Status != domain.StatusWaitlist {
			return domain.NewFailedPrecondition(domain.ReasonNotWaitlisted, "user is not on the waitlist")
		}
		if err := s.sm.CanTransition(domain.StatusWaitlist, domain.StatusCancelled, CapabilitySelf); err != nil {
			return err
		}

		now := s.now()
		member.Status = domain.StatusCancelled
		member.UpdatedAt = now
		if err := store.Members().Update(ctx, member); err != nil {
			return fmt.Errorf("update member: %w", err)
		}
		if err := store.MemberEvents().Create(ctx, domain.NewMemberEvent(eventID, userID, actor, domain.MemberEventWaitlistLeave, nil, now)); err != nil {
			return fmt.Errorf("create member event: %w", err)
		}
		out = member
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PromoteFromWaitlist is the moderator's explicit promotion of a named
// candidate, not necessarily the head of the queue. It goes through the same
// capacity guard as automatic promotion, so it can still fail with
// "event full" when it loses a race.
func (s *MembershipService) PromoteFromWaitlist(ctx context.Context, eventID string, actor domain.Actor, targetUserID string) (*domain.EventMember, error) {
	actorID, caps, err := s.requireModerator(ctx, eventID, actor)
	if err != nil {
		return nil, err
	}

	var out *domain.EventMember
	err = s.tx.RunInTx(ctx, func(store Store) error {
		member, err := store.Members().GetByEventAndUser(ctx, eventID, targetUserID)
		if err != nil {
			return fmt.Errorf("get member: %w", err)
		}
		if member.Status != domain.StatusWaitlist {
			return domain.NewFailedPrecondition(domain.ReasonNotWaitlisted, "user is not on the waitlist")
		}
		if err := s.sm.CanTransition(domain.StatusWaitlist, domain.StatusJoined, caps); err != nil {
			return err
		}
		reserved, err := s.capacity.ReserveSlot(ctx, store, eventID)
		if err != nil {
			return err
		}
		if !reserved {
			return domain.NewFailedPrecondition(domain.ReasonEventFull, "event is full")
		}

		now := s.now()
		member.Status = domain.StatusJoined
		member.JoinedAt = &now
		member.AddedByID = &actorID
		member.UpdatedAt = now
		if err := store.Members().Update(ctx, member); err != nil {
			return fmt.Errorf("update member: %w", err)
		}
		if err := store.MemberEvents().Create(ctx, domain.NewMemberEvent(eventID, targetUserID, actor, domain.MemberEventWaitlistPromote, nil, now)); err != nil {
			return fmt.Errorf("create member event: %w", err)
		}
		n := domain.NewNotification(domain.NotifyWaitlistPromoted, targetUserID, eventID, actor, now)
		if err := store.Outbox().Create(ctx, n); err != nil {
			return fmt.Errorf("create notification: %w", err)
		}
		s.metrics.IncrementPromotions()
		out = member
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CancelJoinRequest withdraws the caller's own PENDING request or INVITED
// row. The row is deleted outright: it represents a request that was never
// admitted, so no capacity accounting applies.
func (s *MembershipService) CancelJoinRequest(ctx context.Context, eventID string, actor domain.Actor) error {
	userID, ok := actor.UserID()
	if !ok {
		return domain.ErrUnauthenticated
	}
	return s.tx.RunInTx(ctx, func(store Store) error {
		member, err := store.Members().GetByEventAndUser(ctx, eventID, userID)
		if err != nil {
			return fmt.Errorf("get member: %w", err)
		}
		if member.Status != domain.StatusPending && member.Status != domain.StatusInvited {
			return domain.NewFailedPrecondition(domain.ReasonNotPending, "no pending request or invite to cancel")
		}
		if err := store.Members().Delete(ctx, eventID, userID); err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
		return nil
	})
}

// CancelPendingOrInviteForUser is the moderator variant of request
// withdrawal; it additionally clears REJECTED rows.
func (s *MembershipService) CancelPendingOrInviteForUser(ctx context.Context, eventID string, actor domain.Actor, targetUserID string) error {
	_, _, err := s.requireModerator(ctx, eventID, actor)
	if err != nil {
		return err
	}
	return s.tx.RunInTx(ctx, func(store Store) error {
		member, err := store.Members().GetByEventAndUser(ctx, eventID, targetUserID)
		if err != nil {
			return fmt.Errorf("get member: %w", err)
		}
		switch member.Status {
		case domain.StatusPending, domain.StatusInvited, domain.StatusRejected:
		default:
			return domain.NewFailedPrecondition(domain.ReasonNotPending, "no pending request, invite or rejection to cancel")
		}
		if err := store.Members().Delete(ctx, eventID, targetUserID); err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
		return nil
	})
}

// PromoteWaitlist promotes up to maxPromotions members in FIFO order in its
// own transaction. System entry point for when capacity increases.
func (s *MembershipService) PromoteWaitlist(ctx context.Context, eventID string, maxPromotions int) (int, error) {
	promoted := 0
	err := s.tx.RunInTx(ctx, func(store Store) error {
		n, err := s.promoter.PromoteMany(ctx, store, eventID, maxPromotions)
		promoted = n
		return err
	})
	return promoted, err
}

func (s *MembershipService) memberOrNone(ctx context.Context, store Store, eventID, userID string) (*domain.EventMember, error) {
	member, err := store.Members().GetByEventAndUser(ctx, eventID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get member: %w", err)
	}
	return member, nil
}

// requireModerator resolves the actor's capabilities and fails with
// Forbidden unless they carry moderator or owner privileges.
func (s *MembershipService) requireModerator(ctx context.Context, eventID string, actor domain.Actor) (string, Capability, error) {
	if actor.IsSystem() {
		return "", CapabilitySystem, nil
	}
	userID, ok := actor.UserID()
	if !ok {
		return "", 0, domain.ErrUnauthenticated
	}
	caps := CapabilitySelf
	isOwner, err := s.authz.IsOwner(ctx, eventID, userID)
	if err != nil {
		return "", 0, fmt.Errorf("authorize owner: %w", err)
	}
	if isOwner {
		return userID, caps | CapabilityOwner | CapabilityModerator, nil
	}
	isMod, err := s.authz.IsModeratorOrOwner(ctx, eventID, userID)
	if err != nil {
		return "", 0, fmt.Errorf("authorize moderator: %w", err)
	}
	if isMod {
		return userID, caps | CapabilityModerator, nil
	}
	isGlobal, err := s.authz.IsGlobalModerator(ctx, userID)
	if err != nil {
		return "", 0, fmt.Errorf("authorize global moderator: %w", err)
	}
	if !isGlobal {
		return "", 0, domain.NewForbidden(domain.ReasonNotModerator, "moderator or owner role required")
	}
	return userID, caps | CapabilityModerator, nil
}

// notifyModerators fans a deduplicated join-request notification out to all
// current moderators and the owner.
func (s *MembershipService) notifyModerators(ctx context.Context, store Store, eventID, requesterID string, actor domain.Actor, now time.Time) error {
	members, err := store.Members().ListByEventID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}
	for _, m := range members {
		if m.Role != domain.RoleOwner && m.Role != domain.RoleModerator {
			continue
		}
		n := domain.NewNotification(domain.NotifyJoinRequest, m.UserID, eventID, actor, now)
		key := fmt.Sprintf("join_request:%s:%s:%s", m.UserID, eventID, requesterID)
		n.DedupeKey = &key
		n.Data = map[string]string{"member_user_id": requesterID}
		if err := store.Outbox().Create(ctx, n); err != nil {
			return fmt.Errorf("create notification: %w", err)
		}
	}
	return nil
}

// recordAudit writes a MUST-level audit entry inside the transaction; a sink
// failure aborts the whole action.
func (s *MembershipService) recordAudit(ctx context.Context, store Store, eventID string, actor domain.Actor, action string, member *domain.EventMember, diff map[string]domain.AuditChange, severity int) error {
	entry := domain.AuditEntry{
		EventID:    eventID,
		Actor:      actor,
		ActorRole:  s.actorRole(ctx, store, eventID, actor),
		Scope:      auditScopeMembership,
		Action:     action,
		EntityType: "event_member",
		EntityID:   member.ID,
		Diff:       diff,
		Severity:   severity,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}

func (s *MembershipService) actorRole(ctx context.Context, store Store, eventID string, actor domain.Actor) domain.MemberRole {
	userID, ok := actor.UserID()
	if !ok {
		return ""
	}
	m, err := store.Members().GetByEventAndUser(ctx, eventID, userID)
	if err != nil {
		return ""
	}
	return m.Role
}
