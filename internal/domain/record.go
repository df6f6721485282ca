package domain

import (
	"strings"
	"time"
)

// RequestRecord is the persisted row for a question or symptom report.
// The external automation eventually fills one of the two answer fields.
type RequestRecord struct {
	ID        RequestID `json:"id" firestore:"-"`
	PetID     PetID     `json:"pet_id" firestore:"pet_id"`
	Symptoms  []string  `json:"symptoms,omitempty" firestore:"symptoms"`
	Notes     string    `json:"notes,omitempty" firestore:"notes"`
	PhotoURL  string    `json:"photo_url,omitempty" firestore:"photo_url"`
	CreatedAt time.Time `json:"created_at" firestore:"created_at"`

	// AIResponse is checked first, Response second.
	AIResponse string `json:"ai_response,omitempty" firestore:"ai_response"`
	Response   string `json:"response,omitempty" firestore:"response"`
}

// Answer returns the first non-empty answer field.
func (r RequestRecord) Answer() (string, bool) {
	if r.AIResponse != "" {
		return r.AIResponse, true
	}
	if r.Response != "" {
		return r.Response, true
	}
	return "", false
}

// Valid reports whether the record carries an identifier and a creation time.
func (r RequestRecord) Valid() bool {
	return r.ID != "" && !r.CreatedAt.IsZero()
}

func (r RequestRecord) HasSymptoms() bool {
	for _, s := range r.Symptoms {
		if strings.TrimSpace(s) != "" {
			return true
		}
	}
	return false
}

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
)

// ChangeEvent is delivered by a push subscription.
type ChangeEvent struct {
	Type EventType
	New  RequestRecord
	Old  *RequestRecord
}

// Filter scopes a subscription. An empty PetID matches every record.
type Filter struct {
	PetID PetID
}

func (f Filter) Match(r RequestRecord) bool {
	return f.PetID == "" || f.PetID == r.PetID
}
