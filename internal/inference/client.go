package inference

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/discord-voice-bridge/internal/logging"
	"github.com/discord-voice-bridge/internal/metrics"
	"github.com/discord-voice-bridge/internal/voice"
	"github.com/gorilla/websocket"
)

// State of the inference connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateGivenUp
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateGivenUp:
		return "given_up"
	}
	return "unknown"
}

// Config for the inference client.
type Config struct {
	URL            string
	Backoff        BackoffPolicy
	RequestTimeout time.Duration
	PingInterval   time.Duration
	SendQueueSize  int
}

// Client maintains one persistent duplex websocket to the inference peer,
// shared across all rooms in the deployment. Submissions are fire and
// forget; results come back asynchronously on the registered handler in
// whatever order the peer produces them.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	state  atomic.Int32
	sendCh chan []byte

	mu        sync.RWMutex
	handler   func(*Result)
	onTimeout func(utteranceID, speakerKey string)

	pending pendingTracker

	// pongSeen flips when an application-level Pong arrives; the write
	// loop checks it one ping interval after sending a ping.
	pongSeen atomic.Bool
}

func NewClient(cfg Config) *Client {
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = 500
	}
	c := &Client{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		sendCh: make(chan []byte, cfg.SendQueueSize),
	}
	c.pending.init()
	return c
}

// State returns the current connection state.
func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) setState(s State) { c.state.Store(int32(s)) }

// OnResult registers the callback invoked for every Result received on the
// connection, regardless of which utterance triggered it. The callback
// must not block; slow downstream work belongs on its own goroutine.
func (c *Client) OnResult(h func(*Result)) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// OnTimeout registers an optional callback for per-request timeouts.
func (c *Client) OnTimeout(h func(utteranceID, speakerKey string)) {
	c.mu.Lock()
	c.onTimeout = h
	c.mu.Unlock()
}

// Submit serializes the utterance and queues it for sending. It fails fast
// with ErrNotConnected (or ErrGivenUp) when no live connection exists; the
// utterance is dropped, there is no retry queue.
func (c *Client) Submit(u *voice.Utterance, generateTTS bool) error {
	switch c.State() {
	case StateConnected:
	case StateGivenUp:
		metrics.InferenceDropped.Inc()
		return ErrGivenUp
	default:
		metrics.InferenceDropped.Inc()
		return ErrNotConnected
	}
	data, err := json.Marshal(NewAudioRequest(u, generateTTS))
	if err != nil {
		return err
	}
	select {
	case c.sendCh <- data:
	default:
		metrics.InferenceDropped.Inc()
		logging.Warnw("inference: send queue full, dropping utterance",
			"utterance_id", u.ID, "user_id", u.UserID)
		return ErrQueueFull
	}
	metrics.InferenceRequests.Inc()
	if c.cfg.RequestTimeout > 0 {
		c.trackPending(u)
	}
	logging.Debugw("inference: submitted utterance",
		"utterance_id", u.ID, "user_id", u.UserID,
		"samples", len(u.Samples), "duration_ms", u.Duration().Milliseconds(),
		"target_language", u.TargetLang)
	return nil
}

func (c *Client) trackPending(u *voice.Utterance) {
	key := u.GuildID + ":" + u.UserID
	id := u.ID
	c.pending.add(key, id, c.cfg.RequestTimeout, func() {
		metrics.InferenceTimeouts.Inc()
		logging.Warnw("inference: request timed out", "utterance_id", id, "speaker", key,
			"timeout_ms", c.cfg.RequestTimeout.Milliseconds(), "err", ErrTimeout)
		c.mu.RLock()
		h := c.onTimeout
		c.mu.RUnlock()
		if h != nil {
			h(id, key)
		}
	})
}

// Run drives the connection state machine until ctx is cancelled or the
// attempt bound is exhausted. Call it on its own goroutine.
func (c *Client) Run(ctx context.Context) {
	attempt := 0
	for {
		c.setState(StateConnecting)
		logging.Infow("inference: connecting", "url", c.cfg.URL)
		conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
		if err == nil {
			c.setState(StateConnected)
			attempt = 0
			logging.Infow("inference: connected", "url", c.cfg.URL)
			c.serve(ctx, conn)
			_ = conn.Close()
			c.pending.clearAll()
		} else {
			logging.Warnw("inference: connect failed", "url", c.cfg.URL, "err", err)
		}

		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}
		attempt++
		metrics.InferenceReconnects.Inc()
		if c.cfg.Backoff.Exhausted(attempt) {
			c.setState(StateGivenUp)
			logging.Errorw("inference: reconnect attempts exhausted, giving up",
				"attempts", attempt-1, "err", ErrGivenUp)
			return
		}
		c.setState(StateReconnecting)
		delay := c.cfg.Backoff.Delay(attempt)
		logging.Warnw("inference: reconnecting", "attempt", attempt, "delay_ms", delay.Milliseconds())
		select {
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return
		case <-time.After(delay):
		}
	}
}

// serve runs the read and write halves for one established connection and
// returns when either fails.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	readErr := make(chan error, 1)
	go c.readLoop(conn, readErr)

	c.pongSeen.Store(true)
	var pingC <-chan time.Time
	if c.cfg.PingInterval > 0 {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		pingC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			// polite close; the peer sees a normal shutdown
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case err := <-readErr:
			logging.Warnw("inference: read loop ended", "err", err)
			return
		case data := <-c.sendCh:
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logging.Warnw("inference: send failed", "err", err)
				return
			}
		case <-pingC:
			if !c.pongSeen.Load() {
				logging.Warnw("inference: no pong within interval, treating connection as dead")
				return
			}
			c.pongSeen.Store(false)
			ping, _ := json.Marshal(pingMessage{Type: TypePing})
			if err := conn.WriteMessage(websocket.TextMessage, ping); err != nil {
				logging.Warnw("inference: ping failed", "err", err)
				return
			}
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn, readErr chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		var res Result
		if err := json.Unmarshal(data, &res); err != nil {
			// malformed responses never crash the handler loop
			logging.Warnw("inference: malformed response discarded", "err", err, "bytes", len(data))
			continue
		}
		switch res.Type {
		case TypeResult:
			metrics.InferenceResults.Inc()
			if res.LatencyMs > 0 {
				metrics.InferenceLatency.Observe(float64(res.LatencyMs) / 1000)
			}
			if id, ok := c.pending.settle(res.SpeakerKey()); ok {
				logging.Debugw("inference: result received", "utterance_id", id,
					"user_id", res.UserID, "latency_ms", res.LatencyMs)
			}
			c.mu.RLock()
			h := c.handler
			c.mu.RUnlock()
			if h != nil {
				h(&res)
			}
		case TypePong:
			c.pongSeen.Store(true)
		case TypeReady:
			logging.Infow("inference: service ready",
				"stt_models", res.STTModels, "tts_models", res.TTSModels)
		case TypeError:
			logging.Errorw("inference: peer reported error", "message", res.Message, "code", res.Code)
		default:
			logging.Debugw("inference: unknown message type ignored", "type", res.Type)
		}
	}
}

// pendingTracker follows outstanding requests per speaker so each can carry
// an independent timeout. Results have no correlation id on the wire, so a
// result settles the oldest outstanding request for its speaker; the
// submitter keeps at most a handful in flight per speaker in practice.
type pendingTracker struct {
	mu   sync.Mutex
	reqs map[string][]*pendingRequest
}

type pendingRequest struct {
	utteranceID string
	timer       *time.Timer
}

func (t *pendingTracker) init() {
	t.reqs = make(map[string][]*pendingRequest)
}

func (t *pendingTracker) add(key, utteranceID string, d time.Duration, onExpire func()) {
	p := &pendingRequest{utteranceID: utteranceID}
	p.timer = time.AfterFunc(d, func() {
		if t.remove(key, p) {
			onExpire()
		}
	})
	t.mu.Lock()
	t.reqs[key] = append(t.reqs[key], p)
	t.mu.Unlock()
}

// settle cancels the oldest outstanding request for key.
func (t *pendingTracker) settle(key string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.reqs[key]
	if len(list) == 0 {
		return "", false
	}
	p := list[0]
	p.timer.Stop()
	if len(list) == 1 {
		delete(t.reqs, key)
	} else {
		t.reqs[key] = list[1:]
	}
	return p.utteranceID, true
}

// remove drops a specific request; returns false if it was already settled.
func (t *pendingTracker) remove(key string, p *pendingRequest) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.reqs[key]
	for i, q := range list {
		if q == p {
			t.reqs[key] = append(list[:i], list[i+1:]...)
			if len(t.reqs[key]) == 0 {
				delete(t.reqs, key)
			}
			return true
		}
	}
	return false
}

// clearAll stops every timer, used when the connection drops: outstanding
// requests died with the connection and should not fire timeouts on top of
// the reconnect noise.
func (t *pendingTracker) clearAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, list := range t.reqs {
		for _, p := range list {
			p.timer.Stop()
		}
		delete(t.reqs, key)
	}
}

// PendingCount reports outstanding requests, for the stats endpoint.
func (c *Client) PendingCount() int {
	c.pending.mu.Lock()
	defer c.pending.mu.Unlock()
	n := 0
	for _, list := range c.pending.reqs {
		n += len(list)
	}
	return n
}
