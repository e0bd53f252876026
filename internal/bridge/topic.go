package bridge

import (
	"sync"
	"time"

	"github.com/discord-voice-bridge/internal/inference"
	"github.com/discord-voice-bridge/internal/metrics"
)

// WebMessage is the JSON payload delivered to web viewers.
type WebMessage struct {
	Type           string `json:"type"`
	GuildID        string `json:"guild_id"`
	ChannelID      string `json:"channel_id"`
	UserID         string `json:"user_id"`
	Username       string `json:"username"`
	OriginalText   string `json:"original_text"`
	TranslatedText string `json:"translated_text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	TTSAudio       string `json:"tts_audio,omitempty"`
	LatencyMs      int64  `json:"latency_ms,omitempty"`
	// Timestamp is epoch milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// NewWebMessage converts an inference result into the viewer payload.
func NewWebMessage(res *inference.Result) WebMessage {
	return WebMessage{
		Type:           "voice_transcription",
		GuildID:        res.GuildID,
		ChannelID:      res.ChannelID,
		UserID:         res.UserID,
		Username:       res.Username,
		OriginalText:   res.OriginalText,
		TranslatedText: res.TranslatedText,
		SourceLanguage: res.SourceLanguage,
		TargetLanguage: res.TargetLanguage,
		TTSAudio:       res.TTSAudio,
		LatencyMs:      res.LatencyMs,
		Timestamp:      time.Now().UnixMilli(),
	}
}

// Topic is the fan-out channel for one room. Subscribers connect and
// disconnect while results are flowing; delivery to one subscriber never
// blocks on another, and a slow subscriber loses messages rather than
// stalling the pipeline.
type Topic struct {
	mu     sync.RWMutex
	subs   map[uint64]chan WebMessage
	nextID uint64
	closed bool
}

func NewTopic() *Topic {
	return &Topic{subs: make(map[uint64]chan WebMessage)}
}

// Subscription is one viewer's handle on a topic. Receive from C; Close
// detaches and releases the channel.
type Subscription struct {
	topic *Topic
	id    uint64
	C     <-chan WebMessage
}

// Subscribe attaches a new subscriber with the given channel buffer.
// Returns nil if the topic is already closed (session ended).
func (t *Topic) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.nextID++
	ch := make(chan WebMessage, buffer)
	t.subs[t.nextID] = ch
	metrics.TopicSubscribers.Inc()
	return &Subscription{topic: t, id: t.nextID, C: ch}
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	if s == nil || s.topic == nil {
		return
	}
	s.topic.mu.Lock()
	if ch, ok := s.topic.subs[s.id]; ok {
		delete(s.topic.subs, s.id)
		close(ch)
		metrics.TopicSubscribers.Dec()
	}
	s.topic.mu.Unlock()
	s.topic = nil
}

// Publish delivers msg to every current subscriber without blocking;
// subscribers whose buffers are full are skipped. Returns the number of
// subscribers the message reached.
func (t *Topic) Publish(msg WebMessage) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return 0
	}
	n := 0
	for _, ch := range t.subs {
		select {
		case ch <- msg:
			n++
		default:
			// slow viewer; drop rather than stall
		}
	}
	return n
}

// SubscriberCount reports the current number of subscribers.
func (t *Topic) SubscriberCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// Close detaches all subscribers and marks the topic dead. Subscriber
// channels are closed so viewer loops terminate.
func (t *Topic) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for id, ch := range t.subs {
		delete(t.subs, id)
		close(ch)
		metrics.TopicSubscribers.Dec()
	}
}
