package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/admbtski/miglee-sub005/internal/domain"
)

// memStore is an in-memory Store/StoreTx used by the service tests. It
// honors the conditional-update semantics of the real repositories,
// including the capacity guard and dedupe-key drops.
type memStore struct {
	events       map[string]*domain.Event
	members      map[string]*domain.EventMember
	memberEvents []*domain.MemberEvent
	outbox       []*domain.Notification
	dedupeSeen   map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		events:     make(map[string]*domain.Event),
		members:    make(map[string]*domain.EventMember),
		dedupeSeen: make(map[string]bool),
	}
}

func memberKey(eventID, userID string) string {
	return eventID + ":" + userID
}

func (s *memStore) addEvent(e *domain.Event) { s.events[e.ID] = e }

func (s *memStore) addMember(m *domain.EventMember) {
	s.members[memberKey(m.EventID, m.UserID)] = m
}

func (s *memStore) member(eventID, userID string) *domain.EventMember {
	return s.members[memberKey(eventID, userID)]
}

func (s *memStore) eventsOfKind(kind domain.MemberEventKind) []*domain.MemberEvent {
	var out []*domain.MemberEvent
	for _, ev := range s.memberEvents {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (s *memStore) joinedCount(eventID string) int {
	count := 0
	for _, m := range s.members {
		if m.EventID == eventID && m.Status == domain.StatusJoined {
			count++
		}
	}
	return count
}

// RunInTx implements StoreTx. The in-memory double has no rollback; tests
// that exercise failures assert on the error, not on partial state.
func (s *memStore) RunInTx(ctx context.Context, fn func(store Store) error) error {
	return fn(s)
}

func (s *memStore) Events() domain.EventRepository { return &memEventRepo{s} }

func (s *memStore) Members() domain.EventMemberRepository { return &memMemberRepo{s} }

func (s *memStore) MemberEvents() domain.MemberEventRepository { return &memMemberEventRepo{s} }

func (s *memStore) Outbox() domain.NotificationOutboxRepository { return &memOutboxRepo{s} }

type memEventRepo struct{ s *memStore }

func (r *memEventRepo) Create(ctx context.Context, e *domain.Event) error {
	r.s.events[e.ID] = e
	return nil
}

func (r *memEventRepo) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	e, ok := r.s.events[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

func (r *memEventRepo) ReserveJoinedSlot(ctx context.Context, eventID string) (bool, error) {
	e, ok := r.s.events[eventID]
	if !ok {
		return false, nil
	}
	if e.Max != nil && e.JoinedCount >= *e.Max {
		return false, nil
	}
	e.JoinedCount++
	return true, nil
}

func (r *memEventRepo) ReleaseJoinedSlot(ctx context.Context, eventID string) error {
	e, ok := r.s.events[eventID]
	if !ok {
		return domain.ErrNotFound
	}
	e.JoinedCount--
	return nil
}

type memMemberRepo struct{ s *memStore }

func (r *memMemberRepo) Create(ctx context.Context, m *domain.EventMember) error {
	key := memberKey(m.EventID, m.UserID)
	if _, exists := r.s.members[key]; exists {
		return domain.NewFailedPrecondition(domain.ReasonAlreadyMember, "membership already exists")
	}
	r.s.members[key] = m
	return nil
}

func (r *memMemberRepo) GetByEventAndUser(ctx context.Context, eventID, userID string) (*domain.EventMember, error) {
	m, ok := r.s.members[memberKey(eventID, userID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return m, nil
}

func (r *memMemberRepo) ListByEventID(ctx context.Context, eventID string) ([]*domain.EventMember, error) {
	var out []*domain.EventMember
	for _, m := range r.s.members {
		if m.EventID == eventID {
			out = append(out, m)
		}
	}
	sortMembersFIFO(out)
	return out, nil
}

func (r *memMemberRepo) ListByStatus(ctx context.Context, eventID string, status domain.MemberStatus) ([]*domain.EventMember, error) {
	var out []*domain.EventMember
	for _, m := range r.s.members {
		if m.EventID == eventID && m.Status == status {
			out = append(out, m)
		}
	}
	sortMembersFIFO(out)
	return out, nil
}

func (r *memMemberRepo) CountByStatus(ctx context.Context, eventID string, status domain.MemberStatus) (int, error) {
	list, _ := r.ListByStatus(ctx, eventID, status)
	return len(list), nil
}

func (r *memMemberRepo) FirstWaitlisted(ctx context.Context, eventID string) (*domain.EventMember, error) {
	list, _ := r.ListByStatus(ctx, eventID, domain.StatusWaitlist)
	if len(list) == 0 {
		return nil, domain.ErrNotFound
	}
	return list[0], nil
}

func (r *memMemberRepo) Update(ctx context.Context, m *domain.EventMember) error {
	key := memberKey(m.EventID, m.UserID)
	if _, ok := r.s.members[key]; !ok {
		return domain.ErrNotFound
	}
	r.s.members[key] = m
	return nil
}

func (r *memMemberRepo) Delete(ctx context.Context, eventID, userID string) error {
	key := memberKey(eventID, userID)
	if _, ok := r.s.members[key]; !ok {
		return domain.ErrNotFound
	}
	delete(r.s.members, key)
	return nil
}

func sortMembersFIFO(members []*domain.EventMember) {
	sort.Slice(members, func(i, j int) bool {
		if members[i].CreatedAt.Equal(members[j].CreatedAt) {
			return members[i].ID < members[j].ID
		}
		return members[i].CreatedAt.Before(members[j].CreatedAt)
	})
}

type memMemberEventRepo struct{ s *memStore }

func (r *memMemberEventRepo) Create(ctx context.Context, ev *domain.MemberEvent) error {
	r.s.memberEvents = append(r.s.memberEvents, ev)
	return nil
}

func (r *memMemberEventRepo) ListByEventAndUser(ctx context.Context, eventID, userID string) ([]*domain.MemberEvent, error) {
	var out []*domain.MemberEvent
	for _, ev := range r.s.memberEvents {
		if ev.EventID == eventID && ev.UserID == userID {
			out = append(out, ev)
		}
	}
	return out, nil
}

type memOutboxRepo struct{ s *memStore }

func (r *memOutboxRepo) Create(ctx context.Context, n *domain.Notification) error {
	if n.DedupeKey != nil {
		if r.s.dedupeSeen[*n.DedupeKey] {
			return nil
		}
		r.s.dedupeSeen[*n.DedupeKey] = true
	}
	r.s.outbox = append(r.s.outbox, n)
	return nil
}

func (r *memOutboxRepo) ListPending(ctx context.Context, limit int) ([]*domain.Notification, error) {
	var out []*domain.Notification
	for _, n := range r.s.outbox {
		if n.DispatchedAt == nil {
			out = append(out, n)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memOutboxRepo) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	for _, n := range r.s.outbox {
		if n.ID == id {
			n.DispatchedAt = &at
			return nil
		}
	}
	return domain.ErrNotFound
}

// mockOracle answers role questions from fixed sets.
type mockOracle struct {
	owners     map[string]bool
	moderators map[string]bool
	globals    map[string]bool
}

func (o *mockOracle) IsModeratorOrOwner(ctx context.Context, eventID, userID string) (bool, error) {
	return o.owners[userID] || o.moderators[userID], nil
}

func (o *mockOracle) IsOwner(ctx context.Context, eventID, userID string) (bool, error) {
	return o.owners[userID], nil
}

func (o *mockOracle) IsGlobalModerator(ctx context.Context, userID string) (bool, error) {
	return o.globals[userID], nil
}

// mockAuditSink collects entries; err, when set, simulates a sink failure.
type mockAuditSink struct {
	entries []domain.AuditEntry
	err     error
}

func (a *mockAuditSink) Record(ctx context.Context, entry domain.AuditEntry) error {
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, entry)
	return nil
}

type fixture struct {
	store   *memStore
	oracle  *mockOracle
	audit   *mockAuditSink
	svc     *MembershipService
	promote *WaitlistPromoter
	now     time.Time
}

func newFixture() *fixture {
	store := newMemStore()
	oracle := &mockOracle{
		owners:     make(map[string]bool),
		moderators: make(map[string]bool),
		globals:    make(map[string]bool),
	}
	audit := &mockAuditSink{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	capacity := NewCapacityCoordinator(nil)
	promoter := NewWaitlistPromoter(capacity, logger, nil)
	svc := NewMembershipService(store, oracle, audit, capacity, promoter, logger, nil)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	promoter.now = svc.now

	return &fixture{
		store:   store,
		oracle:  oracle,
		audit:   audit,
		svc:     svc,
		promote: promoter,
		now:     now,
	}
}

func (f *fixture) openEvent(id string, max *int) *domain.Event {
	e := &domain.Event{
		ID:        id,
		Title:     "Test Meetup",
		StartAt:   f.now.Add(2 * time.Hour),
		EndAt:     f.now.Add(4 * time.Hour),
		Max:       max,
		JoinMode:  domain.JoinModeOpen,
		CreatedAt: f.now.Add(-24 * time.Hour),
		UpdatedAt: f.now.Add(-24 * time.Hour),
	}
	f.store.addEvent(e)
	return e
}

func intPtr(v int) *int { return &v }

func strPtr(s string) *string { return &s }
