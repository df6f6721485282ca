package conversation

import "github.com/PabloGalante/vetassist/internal/observability"

// checkLiveness forces polling when the push channels have been silent for
// too long while there is still work the poller has not given up on.
func (c *Conversation) checkLiveness() {
	if c.poll.active {
		return
	}

	silence := c.now().Sub(c.state.LastActivity)
	if silence <= c.settings.LivenessTimeout || !c.state.HasLiveOutstanding() {
		return
	}

	observability.LivenessEscalations.Inc()
	c.log.Warn("push channel silent, escalating to polling", "silence", silence.String())
	c.startPolling("liveness")
}
