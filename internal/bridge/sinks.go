package bridge

import (
	"encoding/base64"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/discord-voice-bridge/internal/inference"
	"github.com/discord-voice-bridge/internal/logging"
)

// Sink is the single capability every result consumer implements. The
// bridge holds a collection of these rather than branching on sink kind.
type Sink interface {
	Name() string
	Deliver(res *inference.Result) error
}

// MessagePoster abstracts the chat-thread API the transcript sink posts
// through. The discord package provides the real implementation.
type MessagePoster interface {
	// EnsureThread returns the delivery destination for the given room
	// and target language, creating it on first use.
	EnsureThread(guildID, channelID, lang string) (string, error)
	Post(threadID, content string) error
}

// TranscriptSink posts each result as a two-line block (speaker header,
// quoted original, translation) to a per-language thread.
type TranscriptSink struct {
	poster MessagePoster

	mu      sync.Mutex
	threads map[string]string // room:lang -> thread id
}

func NewTranscriptSink(poster MessagePoster) *TranscriptSink {
	return &TranscriptSink{poster: poster, threads: make(map[string]string)}
}

func (s *TranscriptSink) Name() string { return "transcript" }

func (s *TranscriptSink) Deliver(res *inference.Result) error {
	if res.OriginalText == "" {
		return nil
	}
	threadID, err := s.threadFor(res.GuildID, res.ChannelID, res.TargetLanguage)
	if err != nil {
		return fmt.Errorf("transcript thread for %s/%s: %w", res.RoomKey(), res.TargetLanguage, err)
	}
	content := fmt.Sprintf("**%s**\n> %s\n%s", res.Username, res.OriginalText, res.TranslatedText)
	if err := s.poster.Post(threadID, content); err != nil {
		// forget the cached thread so a deleted one gets recreated
		s.forget(res.GuildID, res.ChannelID, res.TargetLanguage)
		return err
	}
	return nil
}

func (s *TranscriptSink) threadFor(guildID, channelID, lang string) (string, error) {
	key := guildID + ":" + channelID + ":" + lang
	s.mu.Lock()
	id, ok := s.threads[key]
	s.mu.Unlock()
	if ok {
		return id, nil
	}
	id, err := s.poster.EnsureThread(guildID, channelID, lang)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.threads[key] = id
	s.mu.Unlock()
	return id, nil
}

func (s *TranscriptSink) forget(guildID, channelID, lang string) {
	s.mu.Lock()
	delete(s.threads, guildID+":"+channelID+":"+lang)
	s.mu.Unlock()
}

// PlaybackSink accepts synthesized audio for in-call playback. The mixer
// is not implemented; the sink counts and discards so the rest of the
// pipeline exercises the full delivery path.
type PlaybackSink struct {
	enqueued atomic.Int64
}

func NewPlaybackSink() *PlaybackSink { return &PlaybackSink{} }

func (s *PlaybackSink) Name() string { return "playback" }

func (s *PlaybackSink) Deliver(res *inference.Result) error {
	if res.TTSAudio == "" {
		return nil
	}
	audio, err := base64.StdEncoding.DecodeString(res.TTSAudio)
	if err != nil {
		return fmt.Errorf("playback: decode tts audio: %w", err)
	}
	s.Enqueue(audio)
	return nil
}

// Enqueue accepts one audio blob for playback.
func (s *PlaybackSink) Enqueue(audio []byte) {
	n := s.enqueued.Add(1)
	logging.Debugw("playback: discarding audio (mixer not implemented)",
		"bytes", len(audio), "enqueued_total", n)
}

// Enqueued reports how many blobs have been accepted.
func (s *PlaybackSink) Enqueued() int64 { return s.enqueued.Load() }

// topicSink adapts a Topic to the Sink interface so the web fan-out goes
// through the same delivery collection as every other consumer.
type topicSink struct {
	topic *Topic
}

func (s *topicSink) Name() string { return "web" }

func (s *topicSink) Deliver(res *inference.Result) error {
	s.topic.Publish(NewWebMessage(res))
	return nil
}
