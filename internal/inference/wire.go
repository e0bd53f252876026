package inference

import (
	"encoding/base64"

	"github.com/discord-voice-bridge/internal/voice"
)

// Message type tags used on the inference websocket. The wire format is a
// JSON tagged union in both directions.
const (
	TypeAudio  = "Audio"
	TypePing   = "Ping"
	TypePong   = "Pong"
	TypeResult = "Result"
	TypeError  = "Error"
	TypeReady  = "Ready"
)

// Request is the client -> peer message. Audio requests carry the full
// field set; pings are marshalled separately so they stay minimal.
type Request struct {
	Type           string `json:"type"`
	GuildID        string `json:"guild_id"`
	ChannelID      string `json:"channel_id"`
	UserID         string `json:"user_id"`
	Username       string `json:"username"`
	AudioBase64    string `json:"audio_base64"`
	SampleRate     int    `json:"sample_rate"`
	TargetLanguage string `json:"target_language"`
	GenerateTTS    bool   `json:"generate_tts"`
}

// NewAudioRequest builds the wire request for an utterance. Audio travels
// as base64 PCM i16 little-endian mono.
func NewAudioRequest(u *voice.Utterance, generateTTS bool) Request {
	return Request{
		Type:           TypeAudio,
		GuildID:        u.GuildID,
		ChannelID:      u.ChannelID,
		UserID:         u.UserID,
		Username:       u.Username,
		AudioBase64:    base64.StdEncoding.EncodeToString(u.PCMBytes()),
		SampleRate:     u.SampleRate,
		TargetLanguage: u.TargetLang,
		GenerateTTS:    generateTTS,
	}
}

type pingMessage struct {
	Type string `json:"type"`
}

// Result is the peer -> client message. A Result is keyed by value
// (guild, channel, user); the peer echoes the identity fields from the
// request, there is no correlation identifier on the wire.
type Result struct {
	Type           string   `json:"type"`
	GuildID        string   `json:"guild_id,omitempty"`
	ChannelID      string   `json:"channel_id,omitempty"`
	UserID         string   `json:"user_id,omitempty"`
	Username       string   `json:"username,omitempty"`
	OriginalText   string   `json:"original_text,omitempty"`
	TranslatedText string   `json:"translated_text,omitempty"`
	SourceLanguage string   `json:"source_language,omitempty"`
	TargetLanguage string   `json:"target_language,omitempty"`
	TTSAudio       string   `json:"tts_audio,omitempty"`
	LatencyMs      int64    `json:"latency_ms,omitempty"`
	Message        string   `json:"message,omitempty"`
	Code           string   `json:"code,omitempty"`
	STTModels      []string `json:"stt_models,omitempty"`
	TTSModels      []string `json:"tts_models,omitempty"`
}

// RoomKey returns the routing key for the originating room.
func (r *Result) RoomKey() string {
	return r.GuildID + ":" + r.ChannelID
}

// SpeakerKey identifies the speaker a result belongs to, used for pending
// request bookkeeping.
func (r *Result) SpeakerKey() string {
	return r.GuildID + ":" + r.UserID
}
