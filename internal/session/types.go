package session

import (
	"context"
	"time"
)

// Settings is the per-guild analysis configuration. The scheduler re-reads it
// every iteration so a live change takes effect on the next cycle.
type Settings struct {
	Mode     string
	Interval time.Duration
}

// SettingsSource looks up the current settings for a guild.
type SettingsSource interface {
	GuildSettings(ctx context.Context, guildID string) (Settings, error)
}

// Outcome classifies a single analysis cycle. Every cycle produces exactly
// one Outcome and the caller always observes it.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	// OutcomeNoAudio means the recorder held no audio when the cycle ran.
	// Benign on periodic ticks; surfaced to the invoker on manual triggers.
	OutcomeNoAudio
	// OutcomeRateLimited means the analysis service rejected the request
	// with a quota signal. The next scheduled tick is the retry.
	OutcomeRateLimited
	// OutcomeTransient covers any other analysis or publication fault.
	OutcomeTransient
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeNoAudio:
		return "no_audio"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Runner drives one flush → upload → analyze → report cycle for a session.
// Implementations must not panic across this boundary; every failure maps to
// an Outcome.
type Runner interface {
	Run(ctx context.Context, sess *GuildSession, mode string, final bool) (Outcome, error)
}

// CaptureHandle is the owned voice-capture resource for a session. It is
// released exactly once during Stop.
type CaptureHandle interface {
	Close() error
}
