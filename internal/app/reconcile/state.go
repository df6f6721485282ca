package reconcile

import (
	"sort"
	"time"

	"github.com/PabloGalante/vetassist/internal/domain"
)

type idSet map[domain.RequestID]struct{}

func (s idSet) has(id domain.RequestID) bool {
	_, ok := s[id]
	return ok
}

func (s idSet) with(id domain.RequestID) idSet {
	if s.has(id) {
		return s
	}
	out := make(idSet, len(s)+1)
	for k := range s {
		out[k] = struct{}{}
	}
	out[id] = struct{}{}
	return out
}

func (s idSet) without(id domain.RequestID) idSet {
	if !s.has(id) {
		return s
	}
	out := make(idSet, len(s))
	for k := range s {
		if k != id {
			out[k] = struct{}{}
		}
	}
	return out
}

func (s idSet) sorted() []domain.RequestID {
	out := make([]domain.RequestID, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// State is everything a single conversation tracks. Like Messages, a State
// is never edited in place; reducers return a new value and leave the old
// one intact, so a callback holding a stale State cannot corrupt the live one.
type State struct {
	Messages Messages

	outstanding idSet
	stalled     idSet
	answered    idSet
	seeded      map[domain.EntryID]struct{}

	LastActivity time.Time
}

func NewState(now time.Time) State {
	return State{LastActivity: now}
}

func (s State) Outstanding() []domain.RequestID     { return s.outstanding.sorted() }
func (s State) Stalled() []domain.RequestID         { return s.stalled.sorted() }
func (s State) PendingCount() int                   { return len(s.outstanding) }
func (s State) IsStalled(id domain.RequestID) bool  { return s.stalled.has(id) }
func (s State) IsAnswered(id domain.RequestID) bool { return s.answered.has(id) }

// HasLiveOutstanding reports whether some outstanding id has not been given up on.
func (s State) HasLiveOutstanding() bool {
	for id := range s.outstanding {
		if !s.stalled.has(id) {
			return true
		}
	}
	return false
}

// Touch records push activity.
func (s State) Touch(now time.Time) State {
	if now.After(s.LastActivity) {
		s.LastActivity = now
	}
	return s
}

// Track adds id to the outstanding set unless it is already answered.
func (s State) Track(id domain.RequestID) State {
	if id == "" || s.answered.has(id) {
		return s
	}
	s.outstanding = s.outstanding.with(id)
	s.stalled = s.stalled.without(id)
	return s
}

// MarkStalled flags ids as given up on by the poller. They stay outstanding
// and still reconcile if an answer shows up later.
func (s State) MarkStalled(ids ...domain.RequestID) State {
	for _, id := range ids {
		if s.outstanding.has(id) {
			s.stalled = s.stalled.with(id)
		}
	}
	return s
}

// Unstall clears the stalled flags, used when a fresh polling round starts.
func (s State) Unstall() State {
	if len(s.stalled) == 0 {
		return s
	}
	s.stalled = nil
	return s
}

// AddEntry appends an arbitrary entry. An entry tied to a request takes the
// id derived from its role. Assistant entries go through Reconcile, and
// processing entries are tracked unless the request was already answered.
func (s State) AddEntry(e domain.ConversationEntry) State {
	if e.RequestID == "" {
		s.Messages = s.Messages.Append(e)
		return s
	}

	switch e.Role {
	case domain.RoleAssistant:
		s, _ = Reconcile(s, domain.RequestRecord{ID: e.RequestID, Response: e.Content}, e.CreatedAt)
		return s
	case domain.RoleProcessing:
		return s.AddProcessing(e.RequestID, e.Content, e.CreatedAt)
	case domain.RoleUser:
		e.ID = domain.UserEntryID(e.RequestID)
	}
	s.Messages = s.Messages.Append(e)
	return s
}

// AddProcessing inserts the placeholder for id and registers it as outstanding.
func (s State) AddProcessing(id domain.RequestID, text string, now time.Time) State {
	if id == "" || s.answered.has(id) {
		return s
	}
	if _, ok := s.Messages.Lookup(domain.AssistantEntryID(id)); ok {
		return s
	}
	s.Messages = s.Messages.Append(domain.ConversationEntry{
		ID:        domain.ProcessingEntryID(id),
		Role:      domain.RoleProcessing,
		Content:   text,
		CreatedAt: now,
		RequestID: id,
	})
	return s.Track(id)
}

// Seed fills an empty conversation from a local cache. Seeded entries are
// provisional and disappear on the next history load.
func (s State) Seed(entries []domain.ConversationEntry) State {
	if s.Messages.Len() > 0 || len(entries) == 0 {
		return s
	}
	seeded := make(map[domain.EntryID]struct{}, len(entries))
	for _, e := range entries {
		seeded[e.ID] = struct{}{}
	}
	s.Messages = s.Messages.ReplaceAll(entries)
	s.seeded = seeded
	return s
}

// Rollback removes the optimistic entries of a submit that never reached the store.
func (s State) Rollback(id domain.RequestID) State {
	if s.answered.has(id) {
		return s
	}
	s.Messages = s.Messages.
		Remove(domain.UserEntryID(id)).
		Remove(domain.ProcessingEntryID(id))
	s.outstanding = s.outstanding.without(id)
	s.stalled = s.stalled.without(id)
	return s
}
