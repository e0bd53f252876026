package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Audio.SilenceTimeout != 800*time.Millisecond {
		t.Fatalf("silence timeout default: got=%v", cfg.Audio.SilenceTimeout)
	}
	if cfg.Audio.MinUtterance != 500*time.Millisecond || cfg.Audio.MaxUtterance != 30*time.Second {
		t.Fatalf("utterance bounds default: got=%v/%v", cfg.Audio.MinUtterance, cfg.Audio.MaxUtterance)
	}
	if cfg.Audio.EnergyThreshold != 0.01 {
		t.Fatalf("energy threshold default: got=%f", cfg.Audio.EnergyThreshold)
	}
	if cfg.Inference.MaxAttempts != 10 || cfg.Inference.ReconnectBase != 2*time.Second {
		t.Fatalf("reconnect defaults: got=%+v", cfg.Inference)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
discord:
  guild_id: "123"
  voice_channel_id: "456"
audio:
  energy_threshold: 0.02
inference:
  url: ws://inference:9000/voice
  max_attempts: 5
web:
  addr: ":9090"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Discord.GuildID != "123" || cfg.Discord.VoiceChannelID != "456" {
		t.Fatalf("discord section: got=%+v", cfg.Discord)
	}
	if cfg.Audio.EnergyThreshold != 0.02 {
		t.Fatalf("energy threshold: got=%f", cfg.Audio.EnergyThreshold)
	}
	if cfg.Inference.URL != "ws://inference:9000/voice" || cfg.Inference.MaxAttempts != 5 {
		t.Fatalf("inference section: got=%+v", cfg.Inference)
	}
	if cfg.Web.Addr != ":9090" {
		t.Fatalf("web addr: got=%s", cfg.Web.Addr)
	}
	// untouched values keep their defaults
	if cfg.Audio.SilenceTimeout != 800*time.Millisecond {
		t.Fatalf("unset field lost its default: got=%v", cfg.Audio.SilenceTimeout)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("inference:\n  url: ws://from-file/voice\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("INFERENCE_URL", "ws://from-env/voice")
	t.Setenv("SILENCE_TIMEOUT_MS", "600")
	t.Setenv("TARGET_LANGUAGE", "ja")
	t.Setenv("GENERATE_TTS", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Inference.URL != "ws://from-env/voice" {
		t.Fatalf("env should win over file: got=%s", cfg.Inference.URL)
	}
	if cfg.Audio.SilenceTimeout != 600*time.Millisecond {
		t.Fatalf("silence timeout from env: got=%v", cfg.Audio.SilenceTimeout)
	}
	if cfg.Audio.DefaultTargetLang != "ja" || !cfg.Audio.GenerateTTS {
		t.Fatalf("audio env overrides: got=%+v", cfg.Audio)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if cfg.Inference.URL != Default().Inference.URL {
		t.Fatalf("expected defaults, got=%s", cfg.Inference.URL)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero sample rate", func(c *Config) { c.Audio.SampleRate = 0 }},
		{"threshold above one", func(c *Config) { c.Audio.EnergyThreshold = 1.5 }},
		{"max below min", func(c *Config) { c.Audio.MaxUtterance = 100 * time.Millisecond }},
		{"zero silence timeout", func(c *Config) { c.Audio.SilenceTimeout = 0 }},
		{"zero attempts", func(c *Config) { c.Inference.MaxAttempts = 0 }},
		{"max delay below base", func(c *Config) { c.Inference.ReconnectMax = time.Second }},
	}
	for _, c := range cases {
		cfg := Default()
		c.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", c.name)
		}
	}
}
