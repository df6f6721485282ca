// Package conversation runs one pet's conversation: the optimistic submit
// path, the two push subscriptions, the polling fallback and the liveness
// supervisor, all feeding the reconcile package.
//
// Each Conversation owns a single loop goroutine. Push callbacks, poll
// results, timer ticks and API calls are posted to it as closures, so state
// is only ever touched from one goroutine and needs no locking. Readers get
// an immutable Snapshot published after every change.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PabloGalante/vetassist/internal/app/reconcile"
	"github.com/PabloGalante/vetassist/internal/domain"
	"github.com/PabloGalante/vetassist/internal/observability"
)

var (
	ErrClosed          = errors.New("conversation closed")
	ErrSubmitFailed    = errors.New("submit failed")
	ErrEmptySubmission = errors.New("nothing to submit")
)

// Snapshot is the read-only view handed to the UI layer.
type Snapshot struct {
	PetID            domain.PetID               `json:"pet_id"`
	Messages         []domain.ConversationEntry `json:"messages"`
	ConnectionHealth domain.ConnectionHealth    `json:"connection_health"`
	PendingResponses int                        `json:"pending_responses"`
	Stalled          []domain.RequestID         `json:"stalled,omitempty"`
	Version          uint64                     `json:"version"`
}

type Option func(*Conversation)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Conversation) { c.now = now }
}

// WithSeed fills the conversation with cached entries before history loads.
func WithSeed(entries []domain.ConversationEntry) Option {
	return func(c *Conversation) { c.seed = entries }
}

type Conversation struct {
	pet      domain.PetID
	store    domain.RecordStore
	settings Settings
	now      func() time.Time
	log      *slog.Logger
	seed     []domain.ConversationEntry

	ctx     context.Context
	cancel  context.CancelFunc
	actions chan func()
	done    chan struct{}
	ready   chan struct{}
	wg      sync.WaitGroup

	unsubscribe []func()
	closeOnce   sync.Once

	// Owned by the loop goroutine.
	state       reconcile.State
	lastPrimary time.Time
	poll        pollState
	version     uint64

	published atomic.Pointer[Snapshot]
	changesMu sync.Mutex
	changes   chan struct{}
}

// Open starts a conversation for pet: it subscribes both push channels,
// starts the loop and kicks off the history load. Call Close to release it.
func Open(pet domain.PetID, store domain.RecordStore, settings Settings, opts ...Option) *Conversation {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Conversation{
		pet:      pet,
		store:    store,
		settings: settings,
		now:      time.Now,
		log:      observability.WithFields("pet_id", pet),
		ctx:      ctx,
		cancel:   cancel,
		actions:  make(chan func(), 64),
		done:     make(chan struct{}),
		ready:    make(chan struct{}),
		changes:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.state = reconcile.NewState(c.now()).Seed(c.seed)
	c.publish()

	c.subscribe()

	go c.run()

	c.wg.Add(1)
	go c.loadHistory()

	observability.OpenConversations.Inc()
	return c
}

func (c *Conversation) PetID() domain.PetID { return c.pet }

// Ready is closed once the initial history load has been applied or has failed.
func (c *Conversation) Ready() <-chan struct{} { return c.ready }

// Done is closed when the conversation has been torn down.
func (c *Conversation) Done() <-chan struct{} { return c.done }

func (c *Conversation) Snapshot() Snapshot { return *c.published.Load() }

func (c *Conversation) Messages() []domain.ConversationEntry {
	return c.published.Load().Messages
}

func (c *Conversation) ConnectionHealth() domain.ConnectionHealth {
	return c.published.Load().ConnectionHealth
}

func (c *Conversation) PendingResponsesCount() int {
	return c.published.Load().PendingResponses
}

func (c *Conversation) StalledCount() int {
	return len(c.published.Load().Stalled)
}

// Changes returns a channel that is closed on the next published change.
// Grab it before reading the Snapshot to never miss an update.
func (c *Conversation) Changes() <-chan struct{} {
	c.changesMu.Lock()
	defer c.changesMu.Unlock()
	return c.changes
}

// AddMessage appends entry. An assistant entry with a request id is merged
// like any other answer, and a processing entry with one is registered as
// outstanding under its derived id.
func (c *Conversation) AddMessage(entry domain.ConversationEntry) error {
	return c.call(func() {
		if entry.Role == domain.RoleAssistant && entry.RequestID != "" {
			c.apply(domain.SourceDirect, domain.RequestRecord{
				ID:        entry.RequestID,
				PetID:     c.pet,
				CreatedAt: entry.CreatedAt,
				Response:  entry.Content,
			})
			return
		}
		c.commit(c.state.AddEntry(entry))
		c.startPolling("message added")
	})
}

// AddProcessingEntry shows the waiting placeholder for requestID.
func (c *Conversation) AddProcessingEntry(requestID domain.RequestID, text string) error {
	return c.call(func() {
		c.commit(c.state.AddProcessing(requestID, text, c.now()))
		c.startPolling("processing entry")
	})
}

// Reconcile merges a record observed outside the push and poll paths,
// typically the response of the write that created it.
func (c *Conversation) Reconcile(rec domain.RequestRecord) error {
	return c.call(func() { c.apply(domain.SourceDirect, rec) })
}

// Close unsubscribes both push channels, stops every timer and waits for
// background work to finish. It is safe to call more than once.
func (c *Conversation) Close() {
	c.closeOnce.Do(func() {
		for _, unsub := range c.unsubscribe {
			unsub()
		}
		c.cancel()
		<-c.done
		c.wg.Wait()

		observability.PendingResponses.Sub(float64(c.state.PendingCount()))
		observability.OpenConversations.Dec()
		c.notify()
		c.log.Info("conversation closed")
	})
}

func (c *Conversation) run() {
	defer close(c.done)

	liveness := time.NewTicker(c.settings.LivenessCheckInterval)
	defer liveness.Stop()
	defer c.stopPolling("closed")

	for {
		select {
		case <-c.ctx.Done():
			return
		case fn := <-c.actions:
			c.safely(fn)
		case <-c.poll.tick():
			c.safely(c.sweep)
		case <-liveness.C:
			c.safely(c.checkLiveness)
		}
	}
}

// safely runs fn on the loop, logging instead of crashing on a panic so a
// bad record cannot take the whole conversation down.
func (c *Conversation) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("conversation action panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

// post hands fn to the loop. It reports false once the conversation is closed,
// in which case fn is dropped.
func (c *Conversation) post(fn func()) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}
	select {
	case c.actions <- fn:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// call runs fn on the loop and waits for it.
func (c *Conversation) call(fn func()) error {
	finished := make(chan struct{})
	if !c.post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

func (c *Conversation) commit(next reconcile.State) {
	observability.PendingResponses.Add(float64(next.PendingCount() - c.state.PendingCount()))
	c.state = next
	c.publish()
}

func (c *Conversation) publish() {
	c.version++

	health := domain.HealthConnected
	if c.poll.active {
		health = domain.HealthPolling
	}

	c.published.Store(&Snapshot{
		PetID:            c.pet,
		Messages:         c.state.Messages.Entries(),
		ConnectionHealth: health,
		PendingResponses: c.state.PendingCount(),
		Stalled:          c.state.Stalled(),
		Version:          c.version,
	})
	c.notify()
}

func (c *Conversation) notify() {
	c.changesMu.Lock()
	defer c.changesMu.Unlock()
	close(c.changes)
	c.changes = make(chan struct{})
}

// apply is the only place where an observed answer enters the state.
func (c *Conversation) apply(src domain.Source, rec domain.RequestRecord) {
	next, outcome := reconcile.Reconcile(c.state, rec, c.now())
	observability.ReconcileTotal.WithLabelValues(string(src), string(outcome)).Inc()

	switch outcome {
	case reconcile.OutcomeIgnored:
		if rec.ID == "" {
			c.log.Warn("ignoring record without id", "source", src)
		}
		return
	case reconcile.OutcomeDuplicate:
		c.log.Debug("answer already shown", "source", src, "request_id", rec.ID)
	default:
		c.log.Info("answer reconciled", "source", src, "request_id", rec.ID, "outcome", outcome)
	}

	c.commit(next)
	if c.poll.active && next.PendingCount() == 0 {
		c.stopPolling("drained")
	}
}

func (c *Conversation) loadHistory() {
	defer c.wg.Done()
	defer close(c.ready)

	ctx, cancel := context.WithTimeout(c.ctx, c.settings.fetchTimeout())
	defer cancel()

	records, err := c.store.ListByPet(ctx, c.pet, c.settings.HistoryLimit)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.log.Error("failed to load history", "error", err)
		}
		return
	}

	_ = c.call(func() {
		history := reconcile.LoadHistory(records)
		c.commit(reconcile.ApplyHistory(c.state, history))

		for _, rec := range records {
			if _, ok := rec.Answer(); ok && rec.Valid() {
				c.apply(domain.SourceHistory, rec)
			}
		}

		c.log.Info("history loaded",
			"records", len(records),
			"entries", c.state.Messages.Len(),
			"pending", c.state.PendingCount())

		c.startPolling("history")
	})
}
