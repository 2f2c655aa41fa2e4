package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain error so the calling layer can map it to a
// transport status without string-matching.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindFailedPrecondition
	// KindConflict marks a lost optimistic-locking race. It is internal and
	// usually absorbed into a FailedPrecondition before reaching callers.
	KindConflict
)

// Reason is a machine-readable code carried by domain errors so the calling
// layer can render a precise message.
type Reason string

const (
	ReasonEventCanceled    Reason = "CANCELED"
	ReasonEventDeleted     Reason = "DELETED"
	ReasonManuallyClosed   Reason = "MANUALLY_CLOSED"
	ReasonNotOpenYet       Reason = "NOT_OPEN_YET"
	ReasonPreStartCutoff   Reason = "PRE_START_CUTOFF"
	ReasonLateJoinDisabled Reason = "LATE_JOIN_DISABLED"
	ReasonLateJoinCutoff   Reason = "LATE_JOIN_CUTOFF"
	ReasonEnded            Reason = "ENDED"

	ReasonEventFull         Reason = "EVENT_FULL"
	ReasonEventNotFull      Reason = "NOT_FULL"
	ReasonBanned            Reason = "BANNED"
	ReasonKickedNeedsInvite Reason = "KICKED_NEEDS_INVITE"
	ReasonInviteOnly        Reason = "INVITE_ONLY"
	ReasonInvalidTransition Reason = "INVALID_TRANSITION"
	ReasonOwnerImmutable    Reason = "OWNER_IMMUTABLE"
	ReasonOwnerCannotLeave  Reason = "OWNER_CANNOT_LEAVE"
	ReasonNotPending        Reason = "NOT_PENDING"
	ReasonNotInvited        Reason = "NOT_INVITED"
	ReasonNotWaitlisted     Reason = "NOT_WAITLISTED"
	ReasonAlreadyMember     Reason = "ALREADY_MEMBER"
	ReasonNotModerator      Reason = "NOT_MODERATOR"
	ReasonNotOwner          Reason = "NOT_OWNER"
)

// Error is a typed domain error carrying a kind and a reason code.
type Error struct {
	Kind    ErrorKind
	Reason  Reason
	Message string
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Message)
	}
	return e.Message
}

// Is matches any *Error of the same kind when the target carries no reason,
// so errors.Is(err, domain.ErrNotFound) works for every not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// NewError creates a typed domain error.
func NewError(kind ErrorKind, reason Reason, message string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message}
}

// NewForbidden creates a Forbidden error with the given reason code.
func NewForbidden(reason Reason, message string) *Error {
	return &Error{Kind: KindForbidden, Reason: reason, Message: message}
}

// NewFailedPrecondition creates a FailedPrecondition error with the given reason code.
func NewFailedPrecondition(reason Reason, message string) *Error {
	return &Error{Kind: KindFailedPrecondition, Reason: reason, Message: message}
}

// Common sentinel errors, matched by kind via errors.Is.
var (
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated, Message: "authentication required"}
	ErrForbidden       = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrNotFound        = &Error{Kind: KindNotFound, Message: "not found"}
	ErrConflict        = &Error{Kind: KindConflict, Message: "conflict"}
)

// ReasonOf extracts the reason code from a domain error, or "" if none.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
