package reconcile

import (
	"encoding/json"
	"strings"

	"github.com/PabloGalante/vetassist/internal/domain"
)

const (
	symptomsWaitingText = "Vet Assistant is analyzing the symptoms... hang tight."
	genericWaitingText  = "Vet Assistant is reviewing your message... hang tight."
	photoOnlyText       = "Shared a photo"
	sharedContentText   = "Shared content"
)

// UserContent renders what the owner sent for a request.
func UserContent(symptoms []string, notes string, hasPhoto bool) string {
	var parts []string
	for _, s := range symptoms {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	notes = strings.TrimSpace(notes)

	switch {
	case len(parts) > 0 && notes != "":
		return "Symptoms reported: " + strings.Join(parts, ", ") + "\n\nNotes: " + notes
	case len(parts) > 0:
		return "Symptoms reported: " + strings.Join(parts, ", ")
	case notes != "":
		return notes
	case hasPhoto:
		return photoOnlyText
	default:
		return sharedContentText
	}
}

// WaitingText is the placeholder shown while a request has no answer.
func WaitingText(hasSymptoms bool) string {
	if hasSymptoms {
		return symptomsWaitingText
	}
	return genericWaitingText
}

// History is the result of loading persisted records.
type History struct {
	Entries     []domain.ConversationEntry
	Outstanding []domain.RequestID
}

// LoadHistory turns persisted records into conversation entries. Records
// without an id or creation time are skipped.
func LoadHistory(records []domain.RequestRecord) History {
	var h History
	for _, rec := range records {
		if !rec.Valid() {
			continue
		}
		id := rec.ID
		hasPhoto := rec.PhotoURL != ""

		h.Entries = append(h.Entries, domain.ConversationEntry{
			ID:            domain.UserEntryID(id),
			Role:          domain.RoleUser,
			Content:       UserContent(rec.Symptoms, rec.Notes, hasPhoto),
			CreatedAt:     rec.CreatedAt,
			HasAttachment: hasPhoto,
			RequestID:     id,
		})

		if answer, ok := rec.Answer(); ok {
			h.Entries = append(h.Entries, domain.ConversationEntry{
				ID:        domain.AssistantEntryID(id),
				Role:      domain.RoleAssistant,
				Content:   answer,
				CreatedAt: rec.CreatedAt,
				RequestID: id,
			})
			continue
		}

		h.Entries = append(h.Entries, domain.ConversationEntry{
			ID:        domain.ProcessingEntryID(id),
			Role:      domain.RoleProcessing,
			Content:   WaitingText(rec.HasSymptoms()),
			CreatedAt: rec.CreatedAt,
			RequestID: id,
		})
		h.Outstanding = append(h.Outstanding, id)
	}
	return h
}

// DecodeRecords parses a JSON payload of records. Anything that is not an
// array yields no records, and elements that fail to decode are skipped.
func DecodeRecords(data []byte) []domain.RequestRecord {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}

	out := make([]domain.RequestRecord, 0, len(raw))
	for _, item := range raw {
		var rec domain.RequestRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// ApplyHistory installs a freshly loaded history as the conversation.
//
// Requests already answered in s keep their answer even when the loaded
// rows are older than what the push channel delivered. Entries created
// locally after the fetch started are kept after the loaded ones, while
// entries seeded from the local cache are dropped.
func ApplyHistory(s State, h History) State {
	loaded := make(map[domain.EntryID]struct{}, len(h.Entries))
	for _, e := range h.Entries {
		loaded[e.ID] = struct{}{}
	}

	entries := make([]domain.ConversationEntry, 0, len(h.Entries))
	for _, e := range h.Entries {
		if e.Role == domain.RoleProcessing && s.answered.has(e.RequestID) {
			if known, ok := s.Messages.Lookup(domain.AssistantEntryID(e.RequestID)); ok {
				entries = append(entries, *known)
				loaded[known.ID] = struct{}{}
			}
			continue
		}
		entries = append(entries, e)
	}

	for _, e := range s.Messages.Entries() {
		if _, ok := loaded[e.ID]; ok {
			continue
		}
		if _, ok := s.seeded[e.ID]; ok {
			continue
		}
		if e.Role == domain.RoleProcessing && e.RequestID != "" {
			if _, ok := loaded[domain.AssistantEntryID(e.RequestID)]; ok {
				continue
			}
		}
		entries = append(entries, e)
	}

	s.Messages = s.Messages.ReplaceAll(entries)
	s.seeded = nil

	for _, id := range h.Outstanding {
		s = s.Track(id)
	}
	for _, e := range entries {
		if e.Role == domain.RoleAssistant && e.RequestID != "" {
			s.answered = s.answered.with(e.RequestID)
			s.outstanding = s.outstanding.without(e.RequestID)
			s.stalled = s.stalled.without(e.RequestID)
		}
	}
	return s
}
