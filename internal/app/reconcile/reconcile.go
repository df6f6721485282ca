// Package reconcile holds the pure conversation state and the single
// transition function that merges an observed answer into it.
//
// Every delivery path (push primary, push backup, poll sweep, history
// reload, direct submit response) goes through Reconcile, which is what
// makes repeated or out-of-order deliveries harmless.
package reconcile

import (
	"time"

	"github.com/PabloGalante/vetassist/internal/domain"
)

type Outcome string

const (
	// OutcomeIgnored: the record has no id or no answer.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeReplaced: the processing placeholder became the answer.
	OutcomeReplaced Outcome = "replaced"
	// OutcomeRevised: an existing answer got new content.
	OutcomeRevised Outcome = "revised"
	// OutcomeInserted: no entry existed for the request yet.
	OutcomeInserted Outcome = "inserted"
	// OutcomeDuplicate: the same answer was already shown.
	OutcomeDuplicate Outcome = "duplicate"
)

// Changed reports whether the outcome altered the visible messages.
func (o Outcome) Changed() bool {
	return o == OutcomeReplaced || o == OutcomeRevised || o == OutcomeInserted
}

// Reconcile merges rec into s. It never fails: records without an id or an
// answer leave s untouched and report OutcomeIgnored.
func Reconcile(s State, rec domain.RequestRecord, now time.Time) (State, Outcome) {
	if rec.ID == "" {
		return s, OutcomeIgnored
	}
	answer, ok := rec.Answer()
	if !ok {
		return s, OutcomeIgnored
	}

	id := rec.ID
	assistant := domain.ConversationEntry{
		ID:            domain.AssistantEntryID(id),
		Role:          domain.RoleAssistant,
		Content:       answer,
		CreatedAt:     now,
		HasAttachment: false,
		RequestID:     id,
	}

	var outcome Outcome
	switch {
	case has(s.Messages, domain.ProcessingEntryID(id)):
		s.Messages = s.Messages.Replace(domain.ProcessingEntryID(id), assistant)
		outcome = OutcomeReplaced

	case has(s.Messages, domain.AssistantEntryID(id)):
		existing, _ := s.Messages.Lookup(domain.AssistantEntryID(id))
		if existing.Content == answer {
			outcome = OutcomeDuplicate
			break
		}
		revised := *existing
		revised.Content = answer
		revised.CreatedAt = now
		s.Messages = s.Messages.Replace(existing.ID, revised)
		outcome = OutcomeRevised

	default:
		s.Messages = s.Messages.Append(assistant)
		outcome = OutcomeInserted
	}

	s.answered = s.answered.with(id)
	s.outstanding = s.outstanding.without(id)
	s.stalled = s.stalled.without(id)

	return s, outcome
}

func has(m Messages, id domain.EntryID) bool {
	_, ok := m.Lookup(id)
	return ok
}
