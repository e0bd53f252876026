package discord

import (
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// NameResolver resolves display names for attribution. Implementations
// must be safe for concurrent use; lookups happen on the speaking-update
// path.
type NameResolver interface {
	UserName(userID string) string
	ChannelName(channelID string) string
}

// cacheTTL controls how long a cached name is valid.
var cacheTTL = 5 * time.Minute

type cacheEntry struct {
	val    string
	expiry time.Time
}

// sessionResolver resolves names through the gateway session with a small
// TTL cache in front, so repeated speaking updates for the same user do
// not hit the REST API.
type sessionResolver struct {
	s  *discordgo.Session
	mu sync.Mutex

	userCache    map[string]cacheEntry
	channelCache map[string]cacheEntry
}

func NewResolver(s *discordgo.Session) NameResolver {
	return &sessionResolver{
		s:            s,
		userCache:    make(map[string]cacheEntry),
		channelCache: make(map[string]cacheEntry),
	}
}

func (r *sessionResolver) lookup(m map[string]cacheEntry, id string) (string, bool) {
	if id == "" {
		return "", false
	}
	if e, ok := m[id]; ok {
		if time.Now().Before(e.expiry) {
			return e.val, true
		}
		delete(m, id)
	}
	return "", false
}

func (r *sessionResolver) store(m map[string]cacheEntry, id, val string) {
	m[id] = cacheEntry{val: val, expiry: time.Now().Add(cacheTTL)}
}

func (r *sessionResolver) UserName(userID string) string {
	if r.s == nil || userID == "" {
		return ""
	}
	r.mu.Lock()
	if v, ok := r.lookup(r.userCache, userID); ok {
		r.mu.Unlock()
		return v
	}
	r.mu.Unlock()
	if u, err := r.s.User(userID); err == nil && u != nil {
		r.mu.Lock()
		r.store(r.userCache, userID, u.Username)
		r.mu.Unlock()
		return u.Username
	}
	return ""
}

func (r *sessionResolver) ChannelName(channelID string) string {
	if r.s == nil || channelID == "" {
		return ""
	}
	r.mu.Lock()
	if v, ok := r.lookup(r.channelCache, channelID); ok {
		r.mu.Unlock()
		return v
	}
	r.mu.Unlock()
	if r.s.State != nil {
		if c, err := r.s.State.Channel(channelID); err == nil && c != nil {
			r.mu.Lock()
			r.store(r.channelCache, channelID, c.Name)
			r.mu.Unlock()
			return c.Name
		}
	}
	if c, err := r.s.Channel(channelID); err == nil && c != nil {
		r.mu.Lock()
		r.store(r.channelCache, channelID, c.Name)
		r.mu.Unlock()
		return c.Name
	}
	return ""
}

// noopResolver is used in tests and when no gateway session exists.
type noopResolver struct{}

func NewNoopResolver() NameResolver { return noopResolver{} }

func (noopResolver) UserName(string) string    { return "" }
func (noopResolver) ChannelName(string) string { return "" }
