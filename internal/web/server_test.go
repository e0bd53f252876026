package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/discord-voice-bridge/internal/bridge"
	"github.com/discord-voice-bridge/internal/inference"
	"github.com/discord-voice-bridge/internal/session"
	"github.com/discord-voice-bridge/internal/voice"
	"github.com/gorilla/websocket"
)

func testStack() (*session.Manager, *bridge.Bridge, *inference.Client) {
	client := inference.NewClient(inference.Config{URL: "ws://localhost:1/voice"})
	router := bridge.New()
	mgr := session.NewManager(client, router, voice.BufferConfig{
		SampleRate:      48000,
		SilenceTimeout:  800 * time.Millisecond,
		MinUtterance:    500 * time.Millisecond,
		MaxUtterance:    30 * time.Second,
		EnergyThreshold: 0.01,
	}, session.Settings{TargetLang: "en"})
	return mgr, router, client
}

func testServer(t *testing.T) (*httptest.Server, *session.Manager, *bridge.Bridge) {
	t.Helper()
	mgr, router, client := testStack()
	srv := NewServer(":0", mgr, router, client)
	ts := httptest.NewServer(srv.http.Handler)
	t.Cleanup(ts.Close)
	return ts, mgr, router
}

func TestHealthz(t *testing.T) {
	ts, _, _ := testServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("health body: %+v", body)
	}
}

func TestSessionsEndpoint(t *testing.T) {
	ts, mgr, _ := testServer(t)
	if _, err := mgr.Join("g1", "c1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	defer mgr.Leave("g1", "c1")

	resp, err := http.Get(ts.URL + "/api/voice/sessions")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Sessions       []session.Info `json:"sessions"`
		InferenceState string         `json:"inference_state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Sessions) != 1 || body.Sessions[0].GuildID != "g1" {
		t.Fatalf("sessions body: %+v", body)
	}
	if body.InferenceState != "disconnected" {
		t.Fatalf("inference state: got=%s", body.InferenceState)
	}
}

func TestViewerUnknownRoom(t *testing.T) {
	ts, _, _ := testServer(t)
	resp, err := http.Get(ts.URL + "/ws/voice/g1/c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status for unknown room: want=404 got=%d", resp.StatusCode)
	}
}

// TestViewerReceivesResults: a connected viewer gets routed results as
// JSON messages.
func TestViewerReceivesResults(t *testing.T) {
	ts, mgr, router := testServer(t)
	if _, err := mgr.Join("g1", "c1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	defer mgr.Leave("g1", "c1")

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/voice/g1/c1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// subscription attaches before upgrade, but give the write pump a beat
	time.Sleep(20 * time.Millisecond)
	router.Route(&inference.Result{
		Type:           inference.TypeResult,
		GuildID:        "g1",
		ChannelID:      "c1",
		UserID:         "u1",
		Username:       "alice",
		OriginalText:   "hola",
		TranslatedText: "hello",
	})

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg bridge.WebMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "voice_transcription" || msg.TranslatedText != "hello" {
		t.Fatalf("viewer message: %+v", msg)
	}
}

func TestSettingsEndpoint(t *testing.T) {
	ts, mgr, _ := testServer(t)

	post := func(path, body string) *http.Response {
		t.Helper()
		resp, err := http.Post(ts.URL+path, "application/json", bytes.NewBufferString(body))
		if err != nil {
			t.Fatalf("post %s: %v", path, err)
		}
		return resp
	}

	resp := post("/api/voice/sessions/g1/c1/settings", `{"target_language":"ja"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("settings without session: want=404 got=%d", resp.StatusCode)
	}

	s, err := mgr.Join("g1", "c1")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	defer mgr.Leave("g1", "c1")

	resp = post("/api/voice/sessions/g1/c1/settings", `{"target_language":"ja","generate_tts":true}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("settings update: want=200 got=%d", resp.StatusCode)
	}
	if got := s.Settings(); got.TargetLang != "ja" || !got.GenerateTTS {
		t.Fatalf("settings not applied: %+v", got)
	}

	resp = post("/api/voice/sessions/g1/c1/settings", `{}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty language: want=400 got=%d", resp.StatusCode)
	}
}
