package conversation

import (
	"time"

	"github.com/PabloGalante/vetassist/internal/domain"
	"github.com/PabloGalante/vetassist/internal/observability"
)

// subscribe opens the primary and backup push channels. A failed
// subscription is not fatal: the liveness supervisor notices the silence
// and falls back to polling.
func (c *Conversation) subscribe() {
	filter := domain.Filter{PetID: c.pet}

	channels := []struct {
		source  domain.Source
		onEvent func(domain.ChangeEvent)
	}{
		{domain.SourcePrimary, c.onPrimary},
		{domain.SourceBackup, c.onBackup},
	}

	for _, ch := range channels {
		unsub, err := c.store.Subscribe(c.ctx, filter, ch.onEvent)
		if err != nil {
			c.log.Warn("push subscription failed", "channel", ch.source, "error", err)
			continue
		}
		c.unsubscribe = append(c.unsubscribe, unsub)
	}
}

func (c *Conversation) onPrimary(ev domain.ChangeEvent) {
	c.post(func() {
		now := c.now()
		c.lastPrimary = now
		c.observe(domain.SourcePrimary, ev, now)
	})
}

func (c *Conversation) onBackup(ev domain.ChangeEvent) {
	c.post(func() {
		now := c.now()
		if c.primaryActiveSince(now, c.settings.BackupSuppressWindow) {
			c.touch(now)
			observability.BackupSuppressed.Inc()
			return
		}
		c.observe(domain.SourceBackup, ev, now)
	})
}

func (c *Conversation) primaryActiveSince(now time.Time, window time.Duration) bool {
	return !c.lastPrimary.IsZero() && now.Sub(c.lastPrimary) < window
}

func (c *Conversation) observe(src domain.Source, ev domain.ChangeEvent, now time.Time) {
	c.touch(now)

	if ev.Type != domain.EventInsert && ev.Type != domain.EventUpdate {
		return
	}
	if _, ok := ev.New.Answer(); !ok {
		return
	}
	c.apply(src, ev.New)
}

// touch records push activity. It does not publish: liveness is not part of the view.
func (c *Conversation) touch(now time.Time) {
	c.state = c.state.Touch(now)
}
