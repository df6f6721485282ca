package conversation

import (
	"context"
	"sync"

	"github.com/PabloGalante/vetassist/internal/domain"
	"github.com/PabloGalante/vetassist/internal/observability"
)

// Service keeps one open Conversation per pet. The record store is the
// subscription manager every conversation subscribes through; it is
// injected here rather than shared as package state.
type Service struct {
	store    domain.RecordStore
	cache    domain.EntryCache
	settings Settings
	opts     []Option

	mu    sync.Mutex
	convs map[domain.PetID]*Conversation
}

// NewService builds a Service. cache may be nil.
func NewService(store domain.RecordStore, cache domain.EntryCache, settings Settings, opts ...Option) *Service {
	return &Service{
		store:    store,
		cache:    cache,
		settings: settings,
		opts:     opts,
		convs:    make(map[domain.PetID]*Conversation),
	}
}

// Open returns the conversation for pet, starting it if needed, and waits
// for its history to load or ctx to end.
func (s *Service) Open(ctx context.Context, pet domain.PetID) (*Conversation, error) {
	s.mu.Lock()
	conv, ok := s.convs[pet]
	if !ok {
		opts := append([]Option(nil), s.opts...)
		if s.cache != nil {
			if cached, found := s.cache.Load(pet); found {
				opts = append(opts, WithSeed(cached))
			}
		}
		conv = Open(pet, s.store, s.settings, opts...)
		s.convs[pet] = conv
		observability.LoggerFromContext(ctx).Info("conversation opened", "pet_id", pet)
	}
	s.mu.Unlock()

	select {
	case <-conv.Ready():
		return conv, nil
	case <-ctx.Done():
		return conv, ctx.Err()
	}
}

// Get returns an already open conversation.
func (s *Service) Get(pet domain.PetID) (*Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[pet]
	return conv, ok
}

// Switch closes every open conversation except the one for pet and opens
// that one. It is what a client does when the selected pet changes.
func (s *Service) Switch(ctx context.Context, pet domain.PetID) (*Conversation, error) {
	s.mu.Lock()
	var stale []domain.PetID
	for id := range s.convs {
		if id != pet {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	for _, id := range stale {
		s.Close(id)
	}
	return s.Open(ctx, pet)
}

// Close tears down pet's conversation and stores its entries in the cache.
func (s *Service) Close(pet domain.PetID) bool {
	s.mu.Lock()
	conv, ok := s.convs[pet]
	delete(s.convs, pet)
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.closeAndCache(conv)
	return true
}

// Shutdown closes every open conversation.
func (s *Service) Shutdown() {
	s.mu.Lock()
	convs := s.convs
	s.convs = make(map[domain.PetID]*Conversation)
	s.mu.Unlock()

	for _, conv := range convs {
		s.closeAndCache(conv)
	}
}

func (s *Service) closeAndCache(conv *Conversation) {
	conv.Close()

	if s.cache == nil {
		return
	}
	if err := s.cache.Save(conv.PetID(), conv.Messages()); err != nil {
		observability.Logger().Warn("failed to cache conversation", "pet_id", conv.PetID(), "error", err)
	}
}
