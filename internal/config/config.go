package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration. Values come from an
// optional YAML file with environment variables taking precedence, so a
// bare container deployment can run on env vars alone.
type Config struct {
	Discord   DiscordConfig   `yaml:"discord"`
	Audio     AudioConfig     `yaml:"audio"`
	Inference InferenceConfig `yaml:"inference"`
	Web       WebConfig       `yaml:"web"`
}

// DiscordConfig holds bot credentials and optional auto-join targets.
type DiscordConfig struct {
	Token          string `yaml:"token"`
	GuildID        string `yaml:"guild_id"`
	VoiceChannelID string `yaml:"voice_channel_id"`
	// TranscriptChannelID is the text channel transcript threads are
	// created under. Empty disables thread posting.
	TranscriptChannelID string `yaml:"transcript_channel_id"`
}

// AudioConfig holds segmentation and VAD parameters.
type AudioConfig struct {
	SampleRate         int           `yaml:"sample_rate"`
	SilenceTimeout     time.Duration `yaml:"silence_timeout"`
	MinUtterance       time.Duration `yaml:"min_utterance"`
	MaxUtterance       time.Duration `yaml:"max_utterance"`
	EnergyThreshold    float64       `yaml:"energy_threshold"`
	DefaultTargetLang  string        `yaml:"default_target_language"`
	GenerateTTS        bool          `yaml:"generate_tts"`
}

// InferenceConfig holds connection parameters for the inference peer.
type InferenceConfig struct {
	URL            string        `yaml:"url"`
	ReconnectBase  time.Duration `yaml:"reconnect_base"`
	ReconnectMax   time.Duration `yaml:"reconnect_max"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	SendQueueSize  int           `yaml:"send_queue_size"`
}

// WebConfig holds the HTTP listener configuration.
type WebConfig struct {
	Addr    string `yaml:"addr"`
	Enabled bool   `yaml:"enabled"`
}

// Default returns a Config populated with the documented defaults.
func Default() Config {
	return Config{
		Audio: AudioConfig{
			SampleRate:        48000,
			SilenceTimeout:    800 * time.Millisecond,
			MinUtterance:      500 * time.Millisecond,
			MaxUtterance:      30 * time.Second,
			EnergyThreshold:   0.01,
			DefaultTargetLang: "en",
		},
		Inference: InferenceConfig{
			URL:            "ws://localhost:8001/voice",
			ReconnectBase:  2 * time.Second,
			ReconnectMax:   30 * time.Second,
			MaxAttempts:    10,
			RequestTimeout: 30 * time.Second,
			PingInterval:   10 * time.Second,
			SendQueueSize:  500,
		},
		Web: WebConfig{
			Addr:    ":8080",
			Enabled: true,
		},
	}
}

// Load reads the YAML file at path (if non-empty and present), applies
// environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Discord.Token, "DISCORD_BOT_TOKEN")
	setString(&cfg.Discord.GuildID, "GUILD_ID")
	setString(&cfg.Discord.VoiceChannelID, "VOICE_CHANNEL_ID")
	setString(&cfg.Discord.TranscriptChannelID, "TRANSCRIPT_CHANNEL_ID")

	setDuration(&cfg.Audio.SilenceTimeout, "SILENCE_TIMEOUT_MS")
	setDuration(&cfg.Audio.MinUtterance, "MIN_UTTERANCE_MS")
	setDuration(&cfg.Audio.MaxUtterance, "MAX_UTTERANCE_MS")
	setFloat(&cfg.Audio.EnergyThreshold, "VAD_ENERGY_THRESHOLD")
	setString(&cfg.Audio.DefaultTargetLang, "TARGET_LANGUAGE")
	setBool(&cfg.Audio.GenerateTTS, "GENERATE_TTS")

	setString(&cfg.Inference.URL, "INFERENCE_URL")
	setDuration(&cfg.Inference.ReconnectBase, "RECONNECT_BASE_MS")
	setDuration(&cfg.Inference.ReconnectMax, "RECONNECT_MAX_MS")
	setInt(&cfg.Inference.MaxAttempts, "RECONNECT_MAX_ATTEMPTS")
	setDuration(&cfg.Inference.RequestTimeout, "REQUEST_TIMEOUT_MS")
	setDuration(&cfg.Inference.PingInterval, "PING_INTERVAL_MS")

	setString(&cfg.Web.Addr, "WEB_ADDR")
}

// Validate checks internal consistency of segmentation and reconnect
// parameters.
func (c Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.EnergyThreshold < 0 || c.Audio.EnergyThreshold > 1 {
		return fmt.Errorf("audio.energy_threshold must be in [0,1], got %f", c.Audio.EnergyThreshold)
	}
	if c.Audio.MinUtterance <= 0 || c.Audio.MaxUtterance <= c.Audio.MinUtterance {
		return fmt.Errorf("audio: need 0 < min_utterance < max_utterance")
	}
	if c.Audio.SilenceTimeout <= 0 {
		return fmt.Errorf("audio.silence_timeout must be positive")
	}
	if c.Inference.MaxAttempts <= 0 {
		return fmt.Errorf("inference.max_attempts must be positive, got %d", c.Inference.MaxAttempts)
	}
	if c.Inference.ReconnectBase <= 0 || c.Inference.ReconnectMax < c.Inference.ReconnectBase {
		return fmt.Errorf("inference: need 0 < reconnect_base <= reconnect_max")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// setDuration reads an integer millisecond value from the environment.
func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = time.Duration(n) * time.Millisecond
		}
	}
}
