package domain

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("record not found")

// Responder produces the answer text for a request. It stands in for the
// external automation that fills the answer field.
type Responder interface {
	Respond(ctx context.Context, rec RequestRecord) (string, error)
}

// RecordSubscriber opens a push subscription on request records.
// The returned function tears it down and is safe to call more than once.
type RecordSubscriber interface {
	Subscribe(ctx context.Context, filter Filter, onEvent func(ChangeEvent)) (unsubscribe func(), err error)
}

// RecordFetcher is the batched read used by the polling fallback.
// Unknown ids are silently absent from the result.
type RecordFetcher interface {
	FetchByIDs(ctx context.Context, ids []RequestID) ([]RequestRecord, error)
}

// HistoryReader returns a pet's records ordered by creation time.
type HistoryReader interface {
	ListByPet(ctx context.Context, pet PetID, limit int) ([]RequestRecord, error)
}

// RequestWriter persists a new request record.
type RequestWriter interface {
	CreateRequest(ctx context.Context, rec *RequestRecord) (*RequestRecord, error)
}

// AnswerWriter mutates a record with an answer, the way the external
// automation does.
type AnswerWriter interface {
	SetAnswer(ctx context.Context, id RequestID, text string) error
}

// PendingLister lists a pet's requests that are still waiting for an answer.
type PendingLister interface {
	Pending(ctx context.Context, pet PetID) ([]RequestRecord, error)
}

// RecordStore is everything the conversation layer needs from the backing store.
type RecordStore interface {
	RecordSubscriber
	RecordFetcher
	HistoryReader
	RequestWriter
}

// EntryCache is a best-effort local copy of recent entries used for
// instant redisplay. It is never authoritative.
type EntryCache interface {
	Load(pet PetID) ([]ConversationEntry, bool)
	Save(pet PetID, entries []ConversationEntry) error
}
