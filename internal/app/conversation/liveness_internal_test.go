package conversation

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/vetassist/internal/adapters/storage/memory"
	"github.com/PabloGalante/vetassist/internal/domain"
	"github.com/PabloGalante/vetassist/internal/observability"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func openManual(t *testing.T) (*Conversation, *memory.RequestStore, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	store := memory.NewRequestStore()
	store.Mute(true)

	settings := DefaultSettings()
	settings.PollInterval = time.Hour
	settings.LivenessCheckInterval = time.Hour

	c := Open("rex", store, settings, WithClock(clock.Now))
	t.Cleanup(c.Close)
	<-c.Ready()
	return c, store, clock
}

// track registers id as outstanding without starting the poller.
func track(t *testing.T, c *Conversation, id domain.RequestID) {
	t.Helper()
	require.NoError(t, c.call(func() {
		c.commit(c.state.AddProcessing(id, "waiting", c.now()))
	}))
}

func TestLivenessEscalatesAfterSilence(t *testing.T) {
	c, _, clock := openManual(t)
	track(t, c, "r1")
	require.Equal(t, domain.HealthConnected, c.ConnectionHealth())

	escalations := testutil.ToFloat64(observability.LivenessEscalations)

	clock.Advance(20 * time.Second)
	require.NoError(t, c.call(c.checkLiveness))
	assert.Equal(t, domain.HealthConnected, c.ConnectionHealth())

	clock.Advance(11 * time.Second)
	require.NoError(t, c.call(c.checkLiveness))
	assert.Equal(t, domain.HealthPolling, c.ConnectionHealth())
	assert.Equal(t, escalations+1, testutil.ToFloat64(observability.LivenessEscalations))
}

func TestLivenessStaysQuietWithPushActivity(t *testing.T) {
	c, _, clock := openManual(t)
	track(t, c, "r1")

	for i := 0; i < 4; i++ {
		clock.Advance(10 * time.Second)
		c.onPrimary(domain.ChangeEvent{Type: domain.EventUpdate, New: domain.RequestRecord{ID: "r2", PetID: "rex"}})
		require.NoError(t, c.call(c.checkLiveness))
	}
	assert.Equal(t, domain.HealthConnected, c.ConnectionHealth())
	assert.Equal(t, 1, c.PendingResponsesCount())
}

func TestLivenessIgnoresNothingPendingAndStalled(t *testing.T) {
	c, _, clock := openManual(t)

	clock.Advance(time.Minute)
	require.NoError(t, c.call(c.checkLiveness))
	assert.Equal(t, domain.HealthConnected, c.ConnectionHealth())

	track(t, c, "r1")
	require.NoError(t, c.call(func() { c.commit(c.state.MarkStalled("r1")) }))
	clock.Advance(time.Minute)
	require.NoError(t, c.call(c.checkLiveness))
	assert.Equal(t, domain.HealthConnected, c.ConnectionHealth())
	assert.Equal(t, 1, c.StalledCount())
}

func TestBackupDefersToActivePrimary(t *testing.T) {
	c, _, clock := openManual(t)
	track(t, c, "r1")

	suppressed := testutil.ToFloat64(observability.BackupSuppressed)
	answer := domain.ChangeEvent{
		Type: domain.EventUpdate,
		New:  domain.RequestRecord{ID: "r1", PetID: "rex", Response: "All good"},
	}

	c.onPrimary(domain.ChangeEvent{Type: domain.EventInsert, New: domain.RequestRecord{ID: "r0", PetID: "rex"}})
	clock.Advance(time.Second)
	c.onBackup(answer)
	require.NoError(t, c.call(func() {}))

	assert.Equal(t, suppressed+1, testutil.ToFloat64(observability.BackupSuppressed))
	assert.Equal(t, 1, c.PendingResponsesCount())

	clock.Advance(2 * time.Second)
	c.onBackup(answer)
	require.NoError(t, c.call(func() {}))

	assert.Equal(t, suppressed+1, testutil.ToFloat64(observability.BackupSuppressed))
	assert.Zero(t, c.PendingResponsesCount())
	assert.Len(t, c.Messages(), 1)
	assert.Equal(t, domain.RoleAssistant, c.Messages()[0].Role)
}

func TestStalledOnlyAfterFullRound(t *testing.T) {
	c, _, _ := openManual(t)

	track(t, c, "r1")
	var round int
	require.NoError(t, c.call(func() {
		c.settings.MaxSweeps = 2
		c.startPolling("test")
		round = c.poll.round
		c.poll.sweeps = 1
		c.poll.checks["r1"] = 1
	}))
	track(t, c, "r2")
	require.NoError(t, c.call(func() {
		c.poll.sweeps = 2
		c.poll.checks["r1"] = 2
		c.poll.checks["r2"] = 1
		c.poll.inflight = true
		c.finishSweep(round, nil, nil)
	}))

	snap := c.Snapshot()
	assert.Equal(t, domain.HealthConnected, snap.ConnectionHealth)
	assert.Equal(t, []domain.RequestID{"r1"}, snap.Stalled)
	assert.Equal(t, 2, snap.PendingResponses)
}

func TestPanicInActionKeepsLoopAlive(t *testing.T) {
	c, _, _ := openManual(t)

	require.NoError(t, c.call(func() { panic("boom") }))
	track(t, c, "r1")
	assert.Equal(t, 1, c.PendingResponsesCount())
}
