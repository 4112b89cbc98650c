package session

import (
	"context"
	"time"

	"github.com/discord-insight-lab/internal/logging"
)

// defaultInterval is the fallback cycle length when the settings source is
// unavailable. The settings store enforces its own minimum; this only guards
// against a broken collaborator returning zero.
const defaultInterval = 5 * time.Minute

// loop is the per-session scheduler. Each iteration re-reads the guild's
// configured interval, sleeps on a cancellable timer, re-checks liveness and
// runs one analysis cycle. A failed cycle is logged and the loop continues;
// only deactivation or context cancellation terminates it, and termination
// is final.
func (s *GuildSession) loop(ctx context.Context) {
	defer close(s.done)

	for {
		if !s.Active() {
			return
		}

		mode := ""
		interval := defaultInterval
		cfg, err := s.settings.GuildSettings(ctx, s.guildID)
		if err != nil {
			logging.Warnw("scheduler: settings lookup failed, using default interval", "guild.id", s.guildID, "err", err)
		} else {
			mode = cfg.Mode
			if cfg.Interval > 0 {
				interval = cfg.Interval
			}
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if !s.Active() {
			return
		}

		outcome, err := s.runner.Run(ctx, s, mode, false)
		switch {
		case err != nil:
			logging.Warnw("scheduler: analysis cycle failed", "guild.id", s.guildID, "outcome", outcome.String(), "err", err)
		case outcome == OutcomeNoAudio:
			logging.Debugw("scheduler: no audio this cycle", logging.GuildFields(s.guildID)...)
		default:
			logging.Infow("scheduler: analysis cycle complete", "guild.id", s.guildID, "outcome", outcome.String())
		}
	}
}
