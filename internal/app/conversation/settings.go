package conversation

import (
	"time"

	"github.com/PabloGalante/vetassist/internal/config"
)

// Settings are the reconciliation timings of a conversation.
type Settings struct {
	PollInterval          time.Duration
	MaxSweeps             int
	BackupSuppressWindow  time.Duration
	LivenessCheckInterval time.Duration
	LivenessTimeout       time.Duration
	SubmitAttempts        int
	SubmitRetryDelay      time.Duration
	HistoryLimit          int
}

func DefaultSettings() Settings {
	return FromTuning(config.DefaultTuning())
}

func FromTuning(t config.Tuning) Settings {
	return Settings{
		PollInterval:          t.PollInterval,
		MaxSweeps:             t.MaxSweeps,
		BackupSuppressWindow:  t.BackupSuppressWindow,
		LivenessCheckInterval: t.LivenessCheckInterval,
		LivenessTimeout:       t.LivenessTimeout,
		SubmitAttempts:        t.SubmitAttempts,
		SubmitRetryDelay:      t.SubmitRetryDelay,
		HistoryLimit:          t.HistoryLimit,
	}
}

// fetchTimeout bounds a single poll lookup so a hung request cannot block
// the next sweeps forever.
func (s Settings) fetchTimeout() time.Duration {
	if d := 5 * s.PollInterval; d > 10*time.Second {
		return d
	}
	return 10 * time.Second
}
