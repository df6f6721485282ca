package firestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/vetassist/internal/domain"
)

const requestsCollection = "symptom_requests"

type Store struct {
	client *firestore.Client
	now    func() time.Time
}

// NewStore creates a Firestore store.
// Uses the project passed (VETASSIST_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) requestsCol() *firestore.CollectionRef {
	return s.client.Collection(requestsCollection)
}

func (s *Store) requestDoc(id domain.RequestID) *firestore.DocumentRef {
	return s.requestsCol().Doc(string(id))
}

func decode(snap *firestore.DocumentSnapshot) (domain.RequestRecord, error) {
	var rec domain.RequestRecord
	if err := snap.DataTo(&rec); err != nil {
		return domain.RequestRecord{}, fmt.Errorf("decode request %s: %w", snap.Ref.ID, err)
	}
	rec.ID = domain.RequestID(snap.Ref.ID)
	return rec, nil
}

// ─────────────────────────────────────────
// RecordSubscriber implementation
// ─────────────────────────────────────────

// Subscribe listens to query snapshots for the filter. The first snapshot
// is the current contents of the query and is not reported; after that every
// added document is an insert and every modified one an update.
func (s *Store) Subscribe(ctx context.Context, filter domain.Filter, onEvent func(domain.ChangeEvent)) (func(), error) {
	if onEvent == nil {
		return nil, errors.New("firestore: nil event handler")
	}

	q := s.requestsCol().Query
	if filter.PetID != "" {
		q = q.Where("pet_id", "==", string(filter.PetID))
	}

	ctx, cancel := context.WithCancel(ctx)
	it := q.Snapshots(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		listen(it, onEvent)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			it.Stop()
			wg.Wait()
		})
	}, nil
}

func listen(it *firestore.QuerySnapshotIterator, onEvent func(domain.ChangeEvent)) {
	first := true
	for {
		qs, err := it.Next()
		if err != nil {
			// Cancellation, Stop or a dead stream. Silence is picked up by the
			// liveness supervisor on the other side.
			return
		}
		if first {
			first = false
			continue
		}

		for _, change := range qs.Changes {
			var typ domain.EventType
			switch change.Kind {
			case firestore.DocumentAdded:
				typ = domain.EventInsert
			case firestore.DocumentModified:
				typ = domain.EventUpdate
			default:
				continue
			}

			rec, err := decode(change.Doc)
			if err != nil {
				continue
			}
			onEvent(domain.ChangeEvent{Type: typ, New: rec})
		}
	}
}

// ─────────────────────────────────────────
// RecordFetcher / HistoryReader implementation
// ─────────────────────────────────────────

func (s *Store) FetchByIDs(ctx context.Context, ids []domain.RequestID) ([]domain.RequestRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, s.requestDoc(id))
	}

	snaps, err := s.client.GetAll(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("firestore FetchByIDs: %w", err)
	}

	out := make([]domain.RequestRecord, 0, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		rec, err := decode(snap)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// ListByPet returns the newest limit records of pet, oldest first.
func (s *Store) ListByPet(ctx context.Context, pet domain.PetID, limit int) ([]domain.RequestRecord, error) {
	q := s.requestsCol().Where("pet_id", "==", string(pet)).OrderBy("created_at", firestore.Asc)
	if limit > 0 {
		q = q.LimitToLast(limit)
	}

	docs, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("firestore ListByPet: %w", err)
	}

	out := make([]domain.RequestRecord, 0, len(docs))
	for _, snap := range docs {
		rec, err := decode(snap)
		if err != nil {
			// One bad row must not hide the rest of the conversation.
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// ─────────────────────────────────────────
// RequestWriter / AnswerWriter implementation
// ─────────────────────────────────────────

func (s *Store) CreateRequest(ctx context.Context, rec *domain.RequestRecord) (*domain.RequestRecord, error) {
	if rec == nil {
		return nil, errors.New("firestore: nil record")
	}

	stored := *rec
	if stored.ID == "" {
		stored.ID = domain.RequestID(uuid.NewString())
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}

	if _, err := s.requestDoc(stored.ID).Create(ctx, stored); err != nil {
		return nil, fmt.Errorf("firestore CreateRequest: %w", err)
	}
	return &stored, nil
}

// SetAnswer writes the second answer field, like the automation webhook.
func (s *Store) SetAnswer(ctx context.Context, id domain.RequestID, text string) error {
	_, err := s.requestDoc(id).Update(ctx, []firestore.Update{{Path: "response", Value: text}})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("request %s: %w", id, domain.ErrNotFound)
		}
		return fmt.Errorf("firestore SetAnswer: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────
// PendingLister implementation
// ─────────────────────────────────────────

// Pending lists pet's unanswered requests, oldest first.
func (s *Store) Pending(ctx context.Context, pet domain.PetID) ([]domain.RequestRecord, error) {
	iter := s.requestsCol().
		Where("pet_id", "==", string(pet)).
		OrderBy("created_at", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var out []domain.RequestRecord
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore Pending: %w", err)
		}
		rec, err := decode(snap)
		if err != nil {
			continue
		}
		if _, answered := rec.Answer(); !answered {
			out = append(out, rec)
		}
	}
	return out, nil
}
