package session

import (
	"context"
	"sync"
	"time"

	"github.com/discord-voice-bridge/internal/bridge"
	"github.com/discord-voice-bridge/internal/inference"
	"github.com/discord-voice-bridge/internal/logging"
	"github.com/discord-voice-bridge/internal/metrics"
	"github.com/discord-voice-bridge/internal/voice"
)

// Manager owns the session table and enforces at most one live session per
// room. All sessions share the one inference client and the one bridge.
type Manager struct {
	client    *inference.Client
	router    *bridge.Bridge
	bufferCfg voice.BufferConfig
	defaults  Settings

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(client *inference.Client, router *bridge.Bridge, bufferCfg voice.BufferConfig, defaults Settings) *Manager {
	return &Manager{
		client:    client,
		router:    router,
		bufferCfg: bufferCfg,
		defaults:  defaults,
		sessions:  make(map[string]*Session),
	}
}

// Join creates and activates a session for the room. The given sinks are
// registered alongside the implicit web fan-out. Returns ErrSessionExists
// when the room already has a live session.
func (m *Manager) Join(guildID, channelID string, sinks ...bridge.Sink) (*Session, error) {
	key := guildID + ":" + channelID

	m.mu.Lock()
	if _, ok := m.sessions[key]; ok {
		m.mu.Unlock()
		return nil, ErrSessionExists
	}
	registry := voice.NewSpeakerRegistry()
	topic := bridge.NewTopic()
	s := &Session{
		GuildID:   guildID,
		ChannelID: channelID,
		Registry:  registry,
		Buffers:   voice.NewBufferManager(guildID, channelID, registry, m.bufferCfg),
		topic:     topic,
		client:    m.client,
		router:    m.router,
		settings:  m.defaults,
		started:   time.Now(),
	}
	s.state.Store(int32(StateJoining))
	s.ctx, s.cancel = context.WithCancel(context.Background())
	m.sessions[key] = s
	m.mu.Unlock()

	m.router.RegisterRoom(key, topic, sinks...)
	s.wg.Add(1)
	go s.run()
	s.state.Store(int32(StateActive))
	metrics.ActiveSessions.Inc()
	logging.Infow("session: active", "room", key,
		"target_language", s.settings.TargetLang, "generate_tts", s.settings.GenerateTTS)
	return s, nil
}

// Get returns the live session for a room.
func (m *Manager) Get(guildID, channelID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[guildID+":"+channelID]
	return s, ok
}

// Leave gracefully ends the room's session: buffered speech is flushed and
// submitted before teardown. Returns false when no session exists.
func (m *Manager) Leave(guildID, channelID string) bool {
	s, ok := m.take(guildID + ":" + channelID)
	if !ok {
		return false
	}
	s.Leave()
	metrics.ActiveSessions.Dec()
	return true
}

// CloseAll hard-closes every session, for process shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for key, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, key)
	}
	m.mu.Unlock()
	for _, s := range all {
		s.Close()
		metrics.ActiveSessions.Dec()
	}
}

func (m *Manager) take(key string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	return s, ok
}

// Info is a point-in-time view of one session, for the stats endpoint.
type Info struct {
	GuildID       string    `json:"guild_id"`
	ChannelID     string    `json:"channel_id"`
	State         string    `json:"state"`
	TargetLang    string    `json:"target_language"`
	GenerateTTS   bool      `json:"generate_tts"`
	Speakers      int       `json:"speakers"`
	ActiveBuffers int       `json:"active_buffers"`
	Subscribers   int       `json:"subscribers"`
	Started       time.Time `json:"started"`
}

// Snapshot reports every live session.
func (m *Manager) Snapshot() []Info {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()

	out := make([]Info, 0, len(all))
	for _, s := range all {
		set := s.Settings()
		out = append(out, Info{
			GuildID:       s.GuildID,
			ChannelID:     s.ChannelID,
			State:         s.State().String(),
			TargetLang:    set.TargetLang,
			GenerateTTS:   set.GenerateTTS,
			Speakers:      s.Registry.Len(),
			ActiveBuffers: s.Buffers.ActiveBuffers(),
			Subscribers:   s.topic.SubscriberCount(),
			Started:       s.started,
		})
	}
	return out
}
