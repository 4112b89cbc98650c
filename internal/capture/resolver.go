package capture

import (
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// NameResolver turns Discord user IDs into display names for speaker
// labeling.
type NameResolver interface {
	UserName(userID string) string
}

// cacheTTL controls how long a cached name is valid.
var cacheTTL = 5 * time.Minute

type cacheEntry struct {
	val    string
	expiry time.Time
}

type discordResolver struct {
	s         *discordgo.Session
	mu        sync.Mutex
	userCache map[string]cacheEntry
}

// NewDiscordResolver builds a resolver backed by the Discord REST API with a
// short-lived name cache.
func NewDiscordResolver(s *discordgo.Session) NameResolver {
	return &discordResolver{
		s:         s,
		userCache: make(map[string]cacheEntry),
	}
}

func (d *discordResolver) UserName(userID string) string {
	if d.s == nil || userID == "" {
		return ""
	}
	d.mu.Lock()
	if e, ok := d.userCache[userID]; ok {
		if time.Now().Before(e.expiry) {
			d.mu.Unlock()
			return e.val
		}
		delete(d.userCache, userID)
	}
	d.mu.Unlock()

	u, err := d.s.User(userID)
	if err != nil || u == nil || u.Username == "" {
		return ""
	}
	name := u.Username

	d.mu.Lock()
	d.userCache[userID] = cacheEntry{val: name, expiry: time.Now().Add(cacheTTL)}
	d.mu.Unlock()
	return name
}

// NoopResolver never resolves anything; speakers fall back to numeric
// labels. Useful in tests.
type NoopResolver struct{}

func (NoopResolver) UserName(string) string { return "" }
