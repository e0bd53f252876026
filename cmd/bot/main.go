package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/discord-voice-bridge/internal/bridge"
	"github.com/discord-voice-bridge/internal/config"
	"github.com/discord-voice-bridge/internal/discord"
	"github.com/discord-voice-bridge/internal/inference"
	"github.com/discord-voice-bridge/internal/logging"
	"github.com/discord-voice-bridge/internal/session"
	"github.com/discord-voice-bridge/internal/voice"
	"github.com/discord-voice-bridge/internal/web"
)

func main() {
	sugar := logging.Init()
	if sugar == nil {
		l, _ := zap.NewProduction()
		defer l.Sync()
		sugar = l.Sugar()
	}

	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		sugar.Fatalf("config load failed: %v", err)
	}
	if cfg.Discord.Token == "" {
		sugar.Fatal("DISCORD_BOT_TOKEN required")
	}

	client := inference.NewClient(inference.Config{
		URL: cfg.Inference.URL,
		Backoff: inference.BackoffPolicy{
			Base:        cfg.Inference.ReconnectBase,
			Max:         cfg.Inference.ReconnectMax,
			MaxAttempts: cfg.Inference.MaxAttempts,
		},
		RequestTimeout: cfg.Inference.RequestTimeout,
		PingInterval:   cfg.Inference.PingInterval,
		SendQueueSize:  cfg.Inference.SendQueueSize,
	})

	router := bridge.New()
	client.OnResult(router.Route)

	mgr := session.NewManager(client, router, voice.BufferConfig{
		SampleRate:      cfg.Audio.SampleRate,
		SilenceTimeout:  cfg.Audio.SilenceTimeout,
		MinUtterance:    cfg.Audio.MinUtterance,
		MaxUtterance:    cfg.Audio.MaxUtterance,
		EnergyThreshold: cfg.Audio.EnergyThreshold,
	}, session.Settings{
		TargetLang:  cfg.Audio.DefaultTargetLang,
		GenerateTTS: cfg.Audio.GenerateTTS,
	})

	bot, err := discord.NewBot(cfg.Discord.Token, mgr, cfg.Discord)
	if err != nil {
		sugar.Fatalf("bot init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	sugar.Infow("opening discord session")
	if err := bot.Open(); err != nil {
		sugar.Fatalf("discord session open failed: %v", err)
	}

	if cfg.Discord.GuildID != "" && cfg.Discord.VoiceChannelID != "" {
		sugar.Infow("auto-joining voice channel",
			"guild", cfg.Discord.GuildID, "channel", cfg.Discord.VoiceChannelID)
		if err := bot.Join(cfg.Discord.GuildID, cfg.Discord.VoiceChannelID); err != nil {
			sugar.Warnf("voice join failed: %v", err)
		}
	}

	var srv *web.Server
	if cfg.Web.Enabled {
		srv = web.NewServer(cfg.Web.Addr, mgr, router, client)
		srv.Start()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	sugar.Infow("shutdown signal received, closing resources")

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			sugar.Warnf("web server shutdown error: %v", err)
		}
		shutdownCancel()
	}
	bot.Close()
	cancel()
	mgr.CloseAll()

	_ = logging.Sync()
	sugar.Info("shutdown complete")
}
