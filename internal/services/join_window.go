package services

import (
	"time"

	"github.com/admbtski/miglee-sub005/internal/domain"
)

// JoinWindowResult reports whether joining is currently permitted and, if
// not, the machine-readable reason.
type JoinWindowResult struct {
	Open   bool
	Reason domain.Reason
}

func closedWindow(reason domain.Reason) JoinWindowResult {
	return JoinWindowResult{Reason: reason}
}

// EvaluateJoinWindow decides whether new admissions are permitted for the
// event at the given instant. Pure: no side effects, and callers must
// re-evaluate per call since now moves. Reasons are checked in a fixed
// priority order; unconfigured (nil) bounds impose no constraint.
func EvaluateJoinWindow(e *domain.Event, now time.Time) JoinWindowResult {
	if e.CanceledAt != nil {
		return closedWindow(domain.ReasonEventCanceled)
	}
	if e.DeletedAt != nil {
		return closedWindow(domain.ReasonEventDeleted)
	}
	if e.JoinManuallyClosed {
		return closedWindow(domain.ReasonManuallyClosed)
	}

	if e.JoinOpensMinutesBeforeStart != nil {
		opens := e.StartAt.Add(-time.Duration(*e.JoinOpensMinutesBeforeStart) * time.Minute)
		if now.Before(opens) {
			return closedWindow(domain.ReasonNotOpenYet)
		}
	}
	if e.JoinCutoffMinutesBeforeStart != nil {
		cutoff := e.StartAt.Add(-time.Duration(*e.JoinCutoffMinutesBeforeStart) * time.Minute)
		if !now.Before(cutoff) && now.Before(e.StartAt) {
			return closedWindow(domain.ReasonPreStartCutoff)
		}
	}

	if !now.Before(e.StartAt) {
		if !e.AllowJoinLate {
			return closedWindow(domain.ReasonLateJoinDisabled)
		}
		if e.LateJoinCutoffMinutesAfterStart != nil {
			lateCutoff := e.StartAt.Add(time.Duration(*e.LateJoinCutoffMinutesAfterStart) * time.Minute)
			if !now.Before(lateCutoff) && now.Before(e.EndAt) {
				return closedWindow(domain.ReasonLateJoinCutoff)
			}
		}
		if !now.Before(e.EndAt) {
			return closedWindow(domain.ReasonEnded)
		}
	}

	return JoinWindowResult{Open: true}
}

// joinWindowError converts a closed result into the FailedPrecondition error
// surfaced to callers.
func joinWindowError(res JoinWindowResult) error {
	return domain.NewFailedPrecondition(res.Reason, "join window is closed")
}
