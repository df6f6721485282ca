package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/vetassist/internal/app/reconcile"
	"github.com/PabloGalante/vetassist/internal/domain"
	"github.com/PabloGalante/vetassist/internal/observability"
)

type SubmitInput struct {
	Symptoms []string
	Notes    string
	PhotoURL string
}

func (in SubmitInput) empty() bool {
	for _, s := range in.Symptoms {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return strings.TrimSpace(in.Notes) == "" && in.PhotoURL == ""
}

// Submit shows the request and its placeholder right away, then writes the
// backing record. If the write keeps failing the optimistic entries are
// removed again and an error wrapping ErrSubmitFailed is returned.
func (c *Conversation) Submit(ctx context.Context, in SubmitInput) (*domain.RequestRecord, error) {
	if in.empty() {
		return nil, ErrEmptySubmission
	}

	now := c.now()
	rec := domain.RequestRecord{
		ID:        domain.RequestID(uuid.NewString()),
		PetID:     c.pet,
		Symptoms:  in.Symptoms,
		Notes:     in.Notes,
		PhotoURL:  in.PhotoURL,
		CreatedAt: now,
	}

	log := observability.LoggerFromContext(ctx).With(
		"pet_id", c.pet,
		"request_id", rec.ID,
	)
	log.Info("submitting request", "symptoms", len(in.Symptoms), "has_photo", in.PhotoURL != "")

	err := c.call(func() {
		hasPhoto := rec.PhotoURL != ""
		next := c.state.AddEntry(domain.ConversationEntry{
			ID:            domain.UserEntryID(rec.ID),
			Role:          domain.RoleUser,
			Content:       reconcile.UserContent(rec.Symptoms, rec.Notes, hasPhoto),
			CreatedAt:     now,
			HasAttachment: hasPhoto,
			RequestID:     rec.ID,
		})
		next = next.AddProcessing(rec.ID, reconcile.WaitingText(rec.HasSymptoms()), now)
		c.commit(next)
		c.startPolling("submit")
	})
	if err != nil {
		return nil, err
	}

	created, err := c.create(ctx, &rec, log)
	if err != nil {
		log.Error("failed to create request", "error", err)
		_ = c.call(func() {
			c.commit(c.state.Rollback(rec.ID))
			if c.poll.active && c.state.PendingCount() == 0 {
				c.stopPolling("submit rolled back")
			}
		})
		return nil, fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}

	if _, ok := created.Answer(); ok {
		if err := c.Reconcile(*created); err != nil {
			return nil, err
		}
	}

	log.Info("request submitted")
	return created, nil
}

// create writes rec, retrying a bounded number of times.
func (c *Conversation) create(ctx context.Context, rec *domain.RequestRecord, log *slog.Logger) (*domain.RequestRecord, error) {
	attempts := c.settings.SubmitAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		created, err := c.store.CreateRequest(ctx, rec)
		if err == nil {
			return created, nil
		}
		lastErr = err
		log.Warn("create request attempt failed", "attempt", attempt, "error", err)

		if attempt == attempts {
			break
		}
		select {
		case <-time.After(c.settings.SubmitRetryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.ctx.Done():
			return nil, ErrClosed
		}
	}
	return nil, lastErr
}
