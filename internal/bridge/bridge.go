package bridge

import (
	"sync"

	"github.com/discord-voice-bridge/internal/inference"
	"github.com/discord-voice-bridge/internal/logging"
	"github.com/discord-voice-bridge/internal/metrics"
)

// Bridge routes inference results to the sinks registered for their
// originating room. Sink failures are isolated: each delivery runs on its
// own goroutine and an error in one sink never delays or drops delivery
// to the others.
type Bridge struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

type room struct {
	topic *Topic
	sinks []Sink
}

func New() *Bridge {
	return &Bridge{rooms: make(map[string]*room)}
}

// RegisterRoom binds a topic and fixed sinks to a room key. The web
// fan-out sink is added implicitly from the topic. Called when a channel
// session starts.
func (b *Bridge) RegisterRoom(key string, topic *Topic, sinks ...Sink) {
	all := make([]Sink, 0, len(sinks)+1)
	all = append(all, &topicSink{topic: topic})
	all = append(all, sinks...)
	b.mu.Lock()
	b.rooms[key] = &room{topic: topic, sinks: all}
	b.mu.Unlock()
	logging.Infow("bridge: room registered", "room", key, "sinks", len(all))
}

// UnregisterRoom removes the room's routing entry and closes its topic.
// Results arriving afterwards are dropped by Route.
func (b *Bridge) UnregisterRoom(key string) {
	b.mu.Lock()
	r, ok := b.rooms[key]
	delete(b.rooms, key)
	b.mu.Unlock()
	if ok {
		r.topic.Close()
		logging.Infow("bridge: room unregistered", "room", key)
	}
}

// AddSink attaches an additional sink to an already registered room.
func (b *Bridge) AddSink(key string, s Sink) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.rooms[key]
	if !ok {
		return false
	}
	r.sinks = append(r.sinks, s)
	return true
}

// Topic returns the fan-out topic for a room so viewers can subscribe.
func (b *Bridge) Topic(key string) (*Topic, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.rooms[key]
	if !ok {
		return nil, false
	}
	return r.topic, true
}

// Route delivers one result to every sink registered for its room. A
// result for an unknown room (session already ended) is dropped with a
// warning. Empty transcriptions are skipped entirely.
func (b *Bridge) Route(res *inference.Result) {
	if res.OriginalText == "" && res.TTSAudio == "" {
		logging.Debugw("bridge: skipping empty result", "user_id", res.UserID)
		return
	}
	key := res.RoomKey()
	b.mu.RLock()
	r, ok := b.rooms[key]
	var sinks []Sink
	if ok {
		sinks = append(sinks, r.sinks...)
	}
	b.mu.RUnlock()
	if !ok {
		metrics.ResultsUnrouted.Inc()
		logging.Warnw("bridge: dropping result for ended room", "room", key, "user_id", res.UserID)
		return
	}
	metrics.ResultsRouted.Inc()
	for _, s := range sinks {
		go func(s Sink) {
			if err := s.Deliver(res); err != nil {
				metrics.SinkFailures.WithLabelValues(s.Name()).Inc()
				logging.Warnw("bridge: sink delivery failed",
					"sink", s.Name(), "room", key, "err", err)
			}
		}(s)
	}
}

// RoomCount reports registered rooms, for the stats endpoint.
func (b *Bridge) RoomCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms)
}
