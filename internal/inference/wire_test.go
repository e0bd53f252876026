package inference

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/discord-voice-bridge/internal/voice"
)

// TestAudioRequestPreservesIdentity: the request carries the utterance's
// identity fields unchanged; the peer echoes them back, so any mutation
// here would corrupt routing.
func TestAudioRequestPreservesIdentity(t *testing.T) {
	u := &voice.Utterance{
		ID:         "u-1",
		GuildID:    "guild-1",
		ChannelID:  "chan-1",
		UserID:     "user-1",
		Username:   "alice",
		Samples:    []int16{0, 1, -1, 256},
		SampleRate: 48000,
		TargetLang: "es",
		Start:      time.Unix(1700000000, 0),
		End:        time.Unix(1700000001, 0),
	}
	req := NewAudioRequest(u, true)

	if req.Type != TypeAudio {
		t.Fatalf("type: want=%s got=%s", TypeAudio, req.Type)
	}
	if req.GuildID != u.GuildID || req.ChannelID != u.ChannelID ||
		req.UserID != u.UserID || req.Username != u.Username {
		t.Fatalf("identity fields mutated: got=%+v", req)
	}
	if req.SampleRate != 48000 || req.TargetLanguage != "es" || !req.GenerateTTS {
		t.Fatalf("request parameters mismatch: got=%+v", req)
	}

	raw, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil {
		t.Fatalf("audio is not valid base64: %v", err)
	}
	// i16 little-endian: 0, 1, -1, 256
	want := []byte{0x00, 0x00, 0x01, 0x00, 0xff, 0xff, 0x00, 0x01}
	if len(raw) != len(want) {
		t.Fatalf("pcm length: want=%d got=%d", len(want), len(raw))
	}
	for i := range want {
		if raw[i] != want[i] {
			t.Fatalf("pcm byte %d: want=%#x got=%#x", i, want[i], raw[i])
		}
	}
}

func TestResultKeys(t *testing.T) {
	res := &Result{GuildID: "g1", ChannelID: "c1", UserID: "u1"}
	if got := res.RoomKey(); got != "g1:c1" {
		t.Fatalf("room key: want=g1:c1 got=%s", got)
	}
	if got := res.SpeakerKey(); got != "g1:u1" {
		t.Fatalf("speaker key: want=g1:u1 got=%s", got)
	}
}

// TestResultDecodeTaggedUnion exercises the union tags the peer sends on
// one connection: results, pongs and ready notices all decode into Result.
func TestResultDecodeTaggedUnion(t *testing.T) {
	var res Result
	payload := `{"type":"Result","guild_id":"g1","channel_id":"c1","user_id":"u1",` +
		`"username":"alice","original_text":"hola","translated_text":"hello",` +
		`"source_language":"es","target_language":"en","latency_ms":120}`
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Type != TypeResult || res.OriginalText != "hola" || res.LatencyMs != 120 {
		t.Fatalf("result fields: got=%+v", res)
	}

	var pong Result
	if err := json.Unmarshal([]byte(`{"type":"Pong"}`), &pong); err != nil {
		t.Fatalf("decode pong: %v", err)
	}
	if pong.Type != TypePong {
		t.Fatalf("pong type: got=%s", pong.Type)
	}

	var ready Result
	if err := json.Unmarshal([]byte(`{"type":"Ready","stt_models":["whisper"],"tts_models":[]}`), &ready); err != nil {
		t.Fatalf("decode ready: %v", err)
	}
	if ready.Type != TypeReady || len(ready.STTModels) != 1 {
		t.Fatalf("ready fields: got=%+v", ready)
	}
}
