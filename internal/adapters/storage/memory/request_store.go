package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/vetassist/internal/domain"
)

// RequestStore is an in-memory backing store for request records with
// push notifications. It is NOT persistent and is only suitable for
// development / local mode and tests.
type RequestStore struct {
	mu      sync.RWMutex
	records map[domain.RequestID]domain.RequestRecord
	order   []domain.RequestID
	subs    map[int]*subscription
	nextSub int
	muted   bool
	now     func() time.Time
}

type subscription struct {
	filter  domain.Filter
	onEvent func(domain.ChangeEvent)
}

func NewRequestStore() *RequestStore {
	return &RequestStore{
		records: make(map[domain.RequestID]domain.RequestRecord),
		subs:    make(map[int]*subscription),
		now:     time.Now,
	}
}

// Mute makes the store stop delivering push events without reporting any
// error, like a realtime transport that silently dropped.
func (s *RequestStore) Mute(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
}

// Subscribers returns the number of live subscriptions.
func (s *RequestStore) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

func (s *RequestStore) Subscribe(ctx context.Context, filter domain.Filter, onEvent func(domain.ChangeEvent)) (func(), error) {
	if onEvent == nil {
		return nil, errors.New("memory: nil event handler")
	}

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = &subscription{filter: filter, onEvent: onEvent}
	s.mu.Unlock()

	var once sync.Once
	remove := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
	stop := context.AfterFunc(ctx, remove)

	return func() {
		stop()
		remove()
	}, nil
}

func (s *RequestStore) CreateRequest(ctx context.Context, rec *domain.RequestRecord) (*domain.RequestRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.New("memory: nil record")
	}

	stored := clone(*rec)
	if stored.ID == "" {
		stored.ID = domain.RequestID(uuid.NewString())
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}

	s.mu.Lock()
	if _, exists := s.records[stored.ID]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("memory: request %s already exists", stored.ID)
	}
	s.records[stored.ID] = stored
	s.order = append(s.order, stored.ID)
	s.mu.Unlock()

	s.publish(domain.ChangeEvent{Type: domain.EventInsert, New: clone(stored)})

	out := clone(stored)
	return &out, nil
}

// SetAnswer writes text into the second answer field, which is what the
// automation webhook does.
func (s *RequestStore) SetAnswer(ctx context.Context, id domain.RequestID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	old, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("memory: request %s: %w", id, domain.ErrNotFound)
	}
	updated := clone(old)
	updated.Response = text
	s.records[id] = updated
	s.mu.Unlock()

	prev := clone(old)
	s.publish(domain.ChangeEvent{Type: domain.EventUpdate, New: clone(updated), Old: &prev})
	return nil
}

func (s *RequestStore) FetchByIDs(ctx context.Context, ids []domain.RequestID) ([]domain.RequestRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RequestRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.records[id]; ok {
			out = append(out, clone(rec))
		}
	}
	return out, nil
}

func (s *RequestStore) ListByPet(ctx context.Context, pet domain.PetID, limit int) ([]domain.RequestRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.RequestRecord
	for _, id := range s.order {
		rec := s.records[id]
		if rec.PetID == pet {
			out = append(out, clone(rec))
		}
	}
	if limit > 0 && len(out) > limit {
		return out[len(out)-limit:], nil
	}
	return out, nil
}

func (s *RequestStore) Pending(ctx context.Context, pet domain.PetID) ([]domain.RequestRecord, error) {
	records, err := s.ListByPet(ctx, pet, 0)
	if err != nil {
		return nil, err
	}
	out := records[:0]
	for _, rec := range records {
		if _, answered := rec.Answer(); !answered {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *RequestStore) publish(ev domain.ChangeEvent) {
	s.mu.RLock()
	if s.muted {
		s.mu.RUnlock()
		return
	}
	var targets []func(domain.ChangeEvent)
	for _, sub := range s.subs {
		if sub.filter.Match(ev.New) {
			targets = append(targets, sub.onEvent)
		}
	}
	s.mu.RUnlock()

	for _, fn := range targets {
		fn(ev)
	}
}

func clone(r domain.RequestRecord) domain.RequestRecord {
	if r.Symptoms != nil {
		r.Symptoms = append([]string(nil), r.Symptoms...)
	}
	return r
}
