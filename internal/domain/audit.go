package domain

import "context"

// Audit severity levels. 3 is a routine membership change, 4 critical,
// 5 security-relevant (ban).
const (
	SeverityRoutine  = 3
	SeverityCritical = 4
	SeveritySecurity = 5
)

// AuditChange records one field's before/after values in an audit diff.
type AuditChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// AuditEntry is handed to the audit sink for MUST-level membership actions.
// Persistence is external; the sink is called synchronously inside the same
// transaction, so a sink failure aborts the whole action.
type AuditEntry struct {
	EventID    string
	Actor      Actor
	ActorRole  MemberRole
	Scope      string
	Action     string
	EntityType string
	EntityID   string
	Diff       map[string]AuditChange
	Meta       map[string]string
	Severity   int
}

// AuditSink records audit entries. Consumed, not implemented, by this core.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// AuthorizationOracle answers role-capability questions for an actor against
// an event. Consumed, not implemented, by this core. Global moderators carry
// moderator capability on every event without holding a membership row.
type AuthorizationOracle interface {
	IsModeratorOrOwner(ctx context.Context, eventID, userID string) (bool, error)
	IsOwner(ctx context.Context, eventID, userID string) (bool, error)
	IsGlobalModerator(ctx context.Context, userID string) (bool, error)
}
