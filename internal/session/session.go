package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/discord-voice-bridge/internal/bridge"
	"github.com/discord-voice-bridge/internal/inference"
	"github.com/discord-voice-bridge/internal/logging"
	"github.com/discord-voice-bridge/internal/metrics"
	"github.com/discord-voice-bridge/internal/voice"
)

var (
	// ErrSessionExists means a session is already active for the room;
	// at most one is allowed at a time.
	ErrSessionExists = errors.New("session: room already has an active session")
	// ErrSessionClosed means the session no longer accepts work.
	ErrSessionClosed = errors.New("session: closed")
)

// State of a channel session.
type State int32

const (
	StateJoining State = iota
	StateActive
	StateLeaving
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StateActive:
		return "active"
	case StateLeaving:
		return "leaving"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Settings are the runtime-adjustable knobs of a session.
type Settings struct {
	TargetLang  string
	GenerateTTS bool
}

// Session is the owning lifecycle object for one active room: it binds the
// speaker registry, the buffer manager and the broadcast topic, and
// everything it owns dies with it.
type Session struct {
	GuildID   string
	ChannelID string
	Registry  *voice.SpeakerRegistry
	Buffers   *voice.BufferManager

	topic  *bridge.Topic
	client *inference.Client
	router *bridge.Bridge

	state atomic.Int32

	mu       sync.RWMutex
	settings Settings

	started time.Time
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	// submitWG tracks in-flight submissions so Leave can let them finish.
	submitWG sync.WaitGroup
}

// Key returns the room routing key.
func (s *Session) Key() string { return s.GuildID + ":" + s.ChannelID }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Topic returns the room's broadcast topic.
func (s *Session) Topic() *bridge.Topic { return s.topic }

// Settings returns a copy of the current settings.
func (s *Session) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// UpdateSettings changes the target language and TTS flag for subsequent
// utterances. In-flight utterances keep the language they were cut with.
func (s *Session) UpdateSettings(targetLang string, generateTTS bool) {
	s.mu.Lock()
	s.settings = Settings{TargetLang: targetLang, GenerateTTS: generateTTS}
	s.mu.Unlock()
	logging.Infow("session: settings updated", "room", s.Key(),
		"target_language", targetLang, "generate_tts", generateTTS)
}

// HandleSpeaking processes a speaking-state transition from the call
// transport, attributing the stream to a speaker.
func (s *Session) HandleSpeaking(ssrc uint32, userID, username string) {
	if s.State() != StateActive {
		return
	}
	s.Registry.Register(ssrc, userID, username)
}

// HandleFrame feeds one decoded frame into the buffer manager. Finished
// utterances are submitted off the frame path; a stalled inference
// connection never blocks audio capture.
func (s *Session) HandleFrame(frame voice.Frame) {
	if s.State() != StateActive {
		return
	}
	metrics.FramesReceived.Inc()
	if ut := s.Buffers.Push(frame); ut != nil {
		s.submit(ut)
	}
}

// HandleDisconnect force-flushes a departing speaker's buffer before the
// registry mapping is dropped, so the final utterance keeps attribution.
func (s *Session) HandleDisconnect(ssrc uint32) {
	if ut := s.Buffers.FlushStream(ssrc); ut != nil {
		s.submit(ut)
	}
	s.Registry.Unregister(ssrc)
}

// submit stamps the utterance with the session's current settings and
// hands it to the inference client, fire and forget.
func (s *Session) submit(ut *voice.Utterance) {
	set := s.Settings()
	ut.TargetLang = set.TargetLang
	s.submitWG.Add(1)
	go func() {
		defer s.submitWG.Done()
		if err := s.client.Submit(ut, set.GenerateTTS); err != nil {
			// the utterance is lost; the worst outcome of any single
			// failure is one lost utterance
			logging.Warnw("session: utterance submission failed",
				"room", s.Key(), "utterance_id", ut.ID, "user_id", ut.UserID, "err", err)
		}
	}()
}

// run sweeps the buffers so silence is detected even when a speaker's
// frames stop arriving.
func (s *Session) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			for _, ut := range s.Buffers.FlushExpired() {
				s.submit(ut)
			}
		}
	}
}

// Leave transitions Active -> Leaving -> Closed. Buffers are force-flushed
// and their utterances, plus any in-flight submissions, are allowed to
// complete; no new frames are accepted from the moment Leaving is entered.
func (s *Session) Leave() {
	if !s.state.CompareAndSwap(int32(StateActive), int32(StateLeaving)) {
		return
	}
	logging.Infow("session: leaving", "room", s.Key())
	for _, ut := range s.Buffers.FlushAll() {
		s.submit(ut)
	}
	s.submitWG.Wait()
	s.cancel()
	s.wg.Wait()
	s.router.UnregisterRoom(s.Key())
	s.state.Store(int32(StateClosed))
	logging.Infow("session: closed", "room", s.Key())
}

// Close is the hard teardown path: partially accumulated buffers are
// discarded rather than flushed, and in-flight submissions are abandoned.
func (s *Session) Close() {
	prev := State(s.state.Swap(int32(StateClosed)))
	if prev == StateClosed {
		return
	}
	s.Buffers.DiscardAll()
	s.cancel()
	s.wg.Wait()
	s.router.UnregisterRoom(s.Key())
	logging.Infow("session: hard closed", "room", s.Key())
}
