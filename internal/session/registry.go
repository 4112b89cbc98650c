package session

import "sync"

// Registry holds at most one session per guild. The mutex guards only the
// map itself, so operations on different guilds' sessions proceed fully in
// parallel.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*GuildSession
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*GuildSession)}
}

// CreateIfAbsent atomically inserts the session built by factory unless the
// guild already has one. Two concurrent start requests for the same guild
// yield exactly one created session; the loser gets ErrSessionExists.
func (r *Registry) CreateIfAbsent(guildID string, factory func() *GuildSession) (*GuildSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[guildID]; ok {
		return existing, ErrSessionExists
	}
	sess := factory()
	r.sessions[guildID] = sess
	return sess, nil
}

// Get returns the guild's session, if any.
func (r *Registry) Get(guildID string) (*GuildSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[guildID]
	return sess, ok
}

// Remove deletes and returns the guild's session. The caller is responsible
// for stopping the returned session before it goes out of scope.
func (r *Registry) Remove(guildID string) (*GuildSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[guildID]
	if ok {
		delete(r.sessions, guildID)
	}
	return sess, ok
}

// RemoveIf deletes the guild's entry only when it still maps to sess. A
// handler that stopped a session holds a reference from before the stop; a
// plain delete by guild id could evict a newer session registered in the
// meantime. Reports whether the entry was removed.
func (r *Registry) RemoveIf(guildID string, sess *GuildSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.sessions[guildID]; ok && current == sess {
		delete(r.sessions, guildID)
		return true
	}
	return false
}

// GuildIDs returns the guilds that currently have a session.
func (r *Registry) GuildIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
