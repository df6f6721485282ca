// Package automation answers request records in process. It plays the part
// of the external automation in local and demo deployments: it watches for
// new records, produces an answer with a domain.Responder and writes it back
// through the store, which then reaches conversations like any other update.
package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/PabloGalante/vetassist/internal/domain"
	"github.com/PabloGalante/vetassist/internal/observability"
)

// Store is what the worker needs from the backing store.
type Store interface {
	domain.RecordSubscriber
	domain.AnswerWriter
}

type Options struct {
	// Delay is how long a request waits before it is answered.
	Delay time.Duration
	// Rate caps answers per second across all pets.
	Rate float64
	// Workers is the number of answers generated concurrently.
	Workers int
	// Timeout bounds a single Respond + SetAnswer.
	Timeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Rate <= 0 {
		o.Rate = 2
	}
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	return o
}

type Worker struct {
	store     Store
	responder domain.Responder
	opts      Options
	limiter   *rate.Limiter

	queue chan domain.RequestRecord

	mu   sync.Mutex
	seen map[domain.RequestID]struct{}
}

func NewWorker(store Store, responder domain.Responder, opts Options) *Worker {
	opts = opts.withDefaults()
	return &Worker{
		store:     store,
		responder: responder,
		opts:      opts,
		limiter:   rate.NewLimiter(rate.Limit(opts.Rate), 1),
		queue:     make(chan domain.RequestRecord, 256),
		seen:      make(map[domain.RequestID]struct{}),
	}
}

// Run subscribes to every new record and answers it. It blocks until ctx is
// done and returns nil on a clean shutdown.
func (w *Worker) Run(ctx context.Context) error {
	log := observability.WithFields("component", "automation")

	unsubscribe, err := w.store.Subscribe(ctx, domain.Filter{}, w.enqueue)
	if err != nil {
		return fmt.Errorf("automation subscribe: %w", err)
	}
	defer unsubscribe()

	log.Info("automation worker started", "workers", w.opts.Workers, "rate", w.opts.Rate, "delay", w.opts.Delay.String())

	var wg sync.WaitGroup
	for i := 0; i < w.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()

	log.Info("automation worker stopped")
	return nil
}

// enqueue picks up inserts that still need an answer. A full queue drops the
// record; the conversation keeps polling and liveness reports the gap.
func (w *Worker) enqueue(ev domain.ChangeEvent) {
	if ev.Type != domain.EventInsert || ev.New.ID == "" {
		return
	}
	if _, answered := ev.New.Answer(); answered {
		return
	}

	w.mu.Lock()
	if _, dup := w.seen[ev.New.ID]; dup {
		w.mu.Unlock()
		return
	}
	w.seen[ev.New.ID] = struct{}{}
	w.mu.Unlock()

	select {
	case w.queue <- ev.New:
	default:
		observability.Logger().Warn("automation queue full, dropping request", "request_id", ev.New.ID)
	}
}

func (w *Worker) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-w.queue:
			if err := w.answer(ctx, rec); err != nil && !errors.Is(err, context.Canceled) {
				observability.Logger().Error("failed to answer request", "request_id", rec.ID, "error", err)
			}
			w.mu.Lock()
			delete(w.seen, rec.ID)
			w.mu.Unlock()
		}
	}
}

func (w *Worker) answer(ctx context.Context, rec domain.RequestRecord) error {
	if w.opts.Delay > 0 {
		t := time.NewTimer(w.opts.Delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, w.opts.Timeout)
	defer cancel()

	log := observability.WithFields("request_id", rec.ID, "pet_id", rec.PetID)
	start := time.Now()

	text, err := w.responder.Respond(ctx, rec)
	if err != nil {
		return fmt.Errorf("respond: %w", err)
	}
	if err := w.store.SetAnswer(ctx, rec.ID, text); err != nil {
		return fmt.Errorf("set answer: %w", err)
	}

	log.Info("request answered", "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}
