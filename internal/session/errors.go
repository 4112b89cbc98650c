package session

import "errors"

var (
	// ErrNoAudio is returned by Recorder.Flush when no speaker has buffered
	// any audio. On periodic ticks this is the normal idle condition.
	ErrNoAudio = errors.New("no audio buffered")

	// ErrSessionExists is returned by Registry.CreateIfAbsent when the guild
	// already has an active session.
	ErrSessionExists = errors.New("session already active for guild")

	// ErrSessionNotFound is returned for operations against a guild with no
	// active session.
	ErrSessionNotFound = errors.New("no active session for guild")

	// ErrSessionStopped is returned when a lifecycle operation targets a
	// session that has already been stopped. A stopped session never records
	// again; a new one must be created.
	ErrSessionStopped = errors.New("session already stopped")
)
