package session

import (
	"context"
	"sync"

	"github.com/discord-insight-lab/internal/logging"
)

// GuildSession is the recording session for one guild. It owns the recorder,
// the voice-capture handle, the speaker display-name table and the rolling
// analysis context. All mutable fields are guarded by a single session-scoped
// RWMutex; unrelated guilds never contend on it.
type GuildSession struct {
	guildID   string
	channelID string
	recorder  *Recorder

	mu      sync.RWMutex
	active  bool
	stopped bool
	capture CaptureHandle
	names   map[uint32]string
	context string

	settings SettingsSource
	runner   Runner

	cancel context.CancelFunc
	done   chan struct{}
}

// NewGuildSession creates an idle session that will publish reports to the
// given text channel.
func NewGuildSession(guildID, channelID string) *GuildSession {
	return &GuildSession{
		guildID:   guildID,
		channelID: channelID,
		recorder:  NewRecorder(),
		names:     make(map[uint32]string),
		done:      make(chan struct{}),
	}
}

func (s *GuildSession) GuildID() string     { return s.guildID }
func (s *GuildSession) ChannelID() string   { return s.channelID }
func (s *GuildSession) Recorder() *Recorder { return s.recorder }

// Active reports whether the session is currently recording.
func (s *GuildSession) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SetSpeakerName records the display name for a speaker stream id. The table
// only grows during a session; empty names are ignored so a late or failed
// lookup never erases a known identity.
func (s *GuildSession) SetSpeakerName(speakerID uint32, name string) {
	if name == "" {
		return
	}
	s.mu.Lock()
	s.names[speakerID] = name
	s.mu.Unlock()
}

// SpeakerNames returns a copy of the current display-name table.
func (s *GuildSession) SpeakerNames() map[uint32]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uint32]string, len(s.names))
	for id, n := range s.names {
		out[id] = n
	}
	return out
}

// Context returns the rolling context carried into the next analysis request.
func (s *GuildSession) Context() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.context
}

// SetContext replaces the rolling context wholesale. The pipeline truncates
// the report to its bounded trailing window before calling this, so the
// stored value never grows across cycles.
func (s *GuildSession) SetContext(ctx string) {
	s.mu.Lock()
	s.context = ctx
	s.mu.Unlock()
}

// StartRecording takes ownership of the capture handle and starts the
// periodic scheduler loop. A session records at most once; restarting a
// stopped session is rejected.
func (s *GuildSession) StartRecording(capture CaptureHandle, settings SettingsSource, runner Runner) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSessionStopped
	}
	if s.active {
		s.mu.Unlock()
		return ErrSessionExists
	}
	s.active = true
	s.capture = capture
	s.settings = settings
	s.runner = runner

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	go s.loop(ctx)

	logging.Infow("session: recording started", logging.GuildFields(s.guildID)...)
	return nil
}

// Stop ends the session: it signals the scheduler to abort its interval
// sleep, waits for the loop to exit, runs exactly one final analysis pass
// over whatever audio remains, and releases the capture handle. The caller
// removes the session from the registry afterwards, so no scheduler tick can
// fire after removal.
func (s *GuildSession) Stop(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return OutcomeNoAudio, ErrSessionStopped
	}
	s.stopped = true
	s.active = false
	capture := s.capture
	s.capture = nil
	cancel := s.cancel
	runner := s.runner
	settings := s.settings
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-s.done
	} else {
		close(s.done)
	}

	outcome := OutcomeNoAudio
	var runErr error
	if runner != nil {
		mode := ""
		if settings != nil {
			if cfg, err := settings.GuildSettings(ctx, s.guildID); err == nil {
				mode = cfg.Mode
			} else {
				logging.Warnw("session: settings lookup failed for final pass", "guild.id", s.guildID, "err", err)
			}
		}
		outcome, runErr = runner.Run(ctx, s, mode, true)
		if runErr != nil {
			logging.Warnw("session: final analysis failed", "guild.id", s.guildID, "outcome", outcome.String(), "err", runErr)
		}
	}

	if capture != nil {
		if err := capture.Close(); err != nil {
			logging.Warnw("session: capture release failed", "guild.id", s.guildID, "err", err)
		}
	}

	logging.Infow("session: stopped", "guild.id", s.guildID, "final_outcome", outcome.String())
	return outcome, runErr
}
