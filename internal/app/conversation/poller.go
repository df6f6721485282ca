package conversation

import (
	"context"
	"time"

	"github.com/PabloGalante/vetassist/internal/domain"
	"github.com/PabloGalante/vetassist/internal/observability"
)

// pollState is the polling fallback: idle → polling → idle.
type pollState struct {
	active   bool
	ticker   *time.Ticker
	sweeps   int
	round    int
	inflight bool

	// checks counts how many sweeps of the current round included each id.
	checks map[domain.RequestID]int
}

// tick is nil while idle, which blocks forever in a select.
func (p *pollState) tick() <-chan time.Time {
	if p.ticker == nil {
		return nil
	}
	return p.ticker.C
}

// startPolling moves to polling if there is outstanding work. While already
// polling it does nothing, so the sweep counter keeps running.
func (c *Conversation) startPolling(reason string) {
	if c.poll.active || c.state.PendingCount() == 0 {
		return
	}

	c.poll.active = true
	c.poll.sweeps = 0
	c.poll.round++
	c.poll.checks = make(map[domain.RequestID]int)
	c.poll.ticker = time.NewTicker(c.settings.PollInterval)
	observability.PollingConversations.Inc()

	c.log.Info("polling started", "reason", reason, "pending", c.state.PendingCount())
	c.commit(c.state.Unstall())
}

func (c *Conversation) stopPolling(reason string) {
	if !c.poll.active {
		return
	}

	c.poll.ticker.Stop()
	c.poll.ticker = nil
	c.poll.active = false
	observability.PollingConversations.Dec()

	c.log.Info("polling stopped", "reason", reason, "sweeps", c.poll.sweeps, "pending", c.state.PendingCount())
	c.publish()
}

// sweep issues one batched lookup for every outstanding id. Only one lookup
// is in flight at a time; a tick that lands while one is running is skipped.
func (c *Conversation) sweep() {
	if !c.poll.active || c.poll.inflight {
		return
	}

	ids := c.state.Outstanding()
	if len(ids) == 0 {
		c.stopPolling("drained")
		return
	}

	c.poll.sweeps++
	c.poll.inflight = true
	for _, id := range ids {
		c.poll.checks[id]++
	}
	round := c.poll.round

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(c.ctx, c.settings.fetchTimeout())
		records, err := c.store.FetchByIDs(ctx, ids)
		cancel()

		c.post(func() { c.finishSweep(round, records, err) })
	}()
}

func (c *Conversation) finishSweep(round int, records []domain.RequestRecord, err error) {
	c.poll.inflight = false

	if err != nil {
		observability.SweepsTotal.WithLabelValues("error").Inc()
		c.log.Warn("poll sweep failed", "sweep", c.poll.sweeps, "error", err)
	} else {
		observability.SweepsTotal.WithLabelValues("ok").Inc()
		for _, rec := range records {
			if _, ok := rec.Answer(); ok {
				c.apply(domain.SourcePoll, rec)
			}
		}
	}

	if !c.poll.active || round != c.poll.round {
		return
	}
	if c.state.PendingCount() == 0 {
		c.stopPolling("drained")
		return
	}
	if c.poll.sweeps >= c.settings.MaxSweeps {
		// Ids that joined late keep their liveness escalation; the rest are given up on.
		var exhausted []domain.RequestID
		for _, id := range c.state.Outstanding() {
			if c.poll.checks[id] >= c.settings.MaxSweeps {
				exhausted = append(exhausted, id)
			}
		}
		c.commit(c.state.MarkStalled(exhausted...))
		c.log.Warn("giving up polling", "sweeps", c.poll.sweeps, "stalled", exhausted)
		c.stopPolling("sweep limit reached")
	}
}
