package conversation_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PabloGalante/vetassist/internal/adapters/storage/memory"
	"github.com/PabloGalante/vetassist/internal/app/conversation"
	"github.com/PabloGalante/vetassist/internal/domain"
)

// quiet keeps every timer far away unless a test shortens it.
func quiet() conversation.Settings {
	s := conversation.DefaultSettings()
	s.PollInterval = time.Hour
	s.LivenessCheckInterval = time.Hour
	s.SubmitRetryDelay = time.Millisecond
	return s
}

// countingStore counts batched lookups.
type countingStore struct {
	*memory.RequestStore
	fetches atomic.Int32
}

func (s *countingStore) FetchByIDs(ctx context.Context, ids []domain.RequestID) ([]domain.RequestRecord, error) {
	s.fetches.Add(1)
	return s.RequestStore.FetchByIDs(ctx, ids)
}

// failingStore rejects every write.
type failingStore struct {
	*memory.RequestStore
	attempts atomic.Int32
}

var errUnavailable = errors.New("store unavailable")

func (s *failingStore) CreateRequest(context.Context, *domain.RequestRecord) (*domain.RequestRecord, error) {
	s.attempts.Add(1)
	return nil, errUnavailable
}

// answeringStore answers in the same write that creates the request.
type answeringStore struct {
	*memory.RequestStore
	answer string
}

func (s *answeringStore) CreateRequest(ctx context.Context, rec *domain.RequestRecord) (*domain.RequestRecord, error) {
	created, err := s.RequestStore.CreateRequest(ctx, rec)
	if err != nil {
		return nil, err
	}
	created.AIResponse = s.answer
	return created, nil
}

// capturingStore keeps the handlers it was given so a test can fire them
// after the conversation is gone.
type capturingStore struct {
	*memory.RequestStore

	mu       sync.Mutex
	handlers []func(domain.ChangeEvent)
}

func (s *capturingStore) Subscribe(_ context.Context, _ domain.Filter, onEvent func(domain.ChangeEvent)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, onEvent)
	return func() {}, nil
}

func (s *capturingStore) fire(ev domain.ChangeEvent) {
	s.mu.Lock()
	handlers := append([]func(domain.ChangeEvent){}, s.handlers...)
	s.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

type mapCache struct {
	mu      sync.Mutex
	entries map[domain.PetID][]domain.ConversationEntry
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[domain.PetID][]domain.ConversationEntry)}
}

func (c *mapCache) Load(pet domain.PetID) ([]domain.ConversationEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[pet]
	return e, ok
}

func (c *mapCache) Save(pet domain.PetID, entries []domain.ConversationEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[pet] = entries
	return nil
}

func byRole(entries []domain.ConversationEntry, role domain.Role) []domain.ConversationEntry {
	var out []domain.ConversationEntry
	for _, e := range entries {
		if e.Role == role {
			out = append(out, e)
		}
	}
	return out
}
