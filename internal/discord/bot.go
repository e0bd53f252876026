package discord

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/discord-voice-bridge/internal/bridge"
	"github.com/discord-voice-bridge/internal/config"
	"github.com/discord-voice-bridge/internal/logging"
	"github.com/discord-voice-bridge/internal/session"
)

// Bot owns the gateway connection and the per-room voice receivers. Join
// and Leave are the operator-facing lifecycle operations; everything else
// reacts to gateway events.
type Bot struct {
	dg       *discordgo.Session
	mgr      *session.Manager
	resolver NameResolver
	cfg      config.DiscordConfig

	mu        sync.Mutex
	receivers map[string]*roomReceiver
}

type roomReceiver struct {
	guildID   string
	channelID string
	vc        *discordgo.VoiceConnection
	recv      *Receiver
	sess      *session.Session
}

func NewBot(token string, mgr *session.Manager, cfg config.DiscordConfig) (*Bot, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create gateway session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages
	b := &Bot{
		dg:        dg,
		mgr:       mgr,
		resolver:  NewResolver(dg),
		cfg:       cfg,
		receivers: make(map[string]*roomReceiver),
	}
	dg.AddHandler(b.handleReady)
	dg.AddHandler(b.handleVoiceState)
	return b, nil
}

// Session exposes the gateway session for components that need REST access.
func (b *Bot) Session() *discordgo.Session { return b.dg }

// Open connects to the gateway.
func (b *Bot) Open() error {
	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	return nil
}

func (b *Bot) handleReady(_ *discordgo.Session, r *discordgo.Ready) {
	logging.Infow("bot: gateway ready",
		"username", r.User.Username, "guilds", len(r.Guilds))
}

// handleVoiceState flushes and unregisters a speaker's streams when they
// leave the voice channel we are in, so their last utterance is not lost
// to the silence timer.
func (b *Bot) handleVoiceState(_ *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if vs.BeforeUpdate == nil || vs.BeforeUpdate.ChannelID == vs.ChannelID {
		return
	}
	b.mu.Lock()
	rr, ok := b.receivers[vs.GuildID+":"+vs.BeforeUpdate.ChannelID]
	b.mu.Unlock()
	if !ok {
		return
	}
	for _, ssrc := range rr.sess.Registry.SSRCsFor(vs.UserID) {
		rr.sess.HandleDisconnect(ssrc)
	}
	logging.Infow("bot: speaker left channel", "guild_id", vs.GuildID,
		"channel_id", vs.BeforeUpdate.ChannelID, "user_id", vs.UserID)
}

// Join starts a session for the voice channel and begins receiving audio.
// The transcript sink is attached when a transcript channel is configured;
// the playback sink is always attached so synthesized audio has somewhere
// to land.
func (b *Bot) Join(guildID, channelID string) error {
	key := guildID + ":" + channelID
	b.mu.Lock()
	if _, ok := b.receivers[key]; ok {
		b.mu.Unlock()
		return session.ErrSessionExists
	}
	b.mu.Unlock()

	sinks := []bridge.Sink{bridge.NewPlaybackSink()}
	if b.cfg.TranscriptChannelID != "" {
		sinks = append(sinks, bridge.NewTranscriptSink(NewThreadPoster(b.dg, b.cfg.TranscriptChannelID)))
	}
	sess, err := b.mgr.Join(guildID, channelID, sinks...)
	if err != nil {
		return err
	}

	vc, err := b.dg.ChannelVoiceJoin(guildID, channelID, true, false)
	if err != nil {
		b.mgr.Leave(guildID, channelID)
		return fmt.Errorf("join voice channel %s: %w", channelID, err)
	}
	recv := newReceiver(vc, sess, b.resolver)
	recv.start()

	b.mu.Lock()
	b.receivers[key] = &roomReceiver{
		guildID:   guildID,
		channelID: channelID,
		vc:        vc,
		recv:      recv,
		sess:      sess,
	}
	b.mu.Unlock()
	logging.Infow("bot: joined voice channel",
		logging.RoomFields(guildID, channelID)...)
	return nil
}

// Leave stops receiving, gracefully ends the session (flushing buffered
// speech) and disconnects from the voice channel.
func (b *Bot) Leave(guildID, channelID string) error {
	key := guildID + ":" + channelID
	b.mu.Lock()
	rr, ok := b.receivers[key]
	delete(b.receivers, key)
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("not in voice channel %s", channelID)
	}
	rr.recv.stop()
	b.mgr.Leave(guildID, channelID)
	if err := rr.vc.Disconnect(); err != nil {
		logging.Warnw("bot: voice disconnect failed", "err", err)
	}
	logging.Infow("bot: left voice channel", logging.RoomFields(guildID, channelID)...)
	return nil
}

// Close tears down every receiver and the gateway connection. Sessions get
// the graceful leave path so buffered speech is flushed on shutdown.
func (b *Bot) Close() {
	b.mu.Lock()
	keys := make([]string, 0, len(b.receivers))
	for key := range b.receivers {
		keys = append(keys, key)
	}
	b.mu.Unlock()
	for _, key := range keys {
		b.mu.Lock()
		rr, ok := b.receivers[key]
		delete(b.receivers, key)
		b.mu.Unlock()
		if !ok {
			continue
		}
		rr.recv.stop()
		b.mgr.Leave(rr.guildID, rr.channelID)
		if err := rr.vc.Disconnect(); err != nil {
			logging.Warnw("bot: voice disconnect failed", "err", err)
		}
	}
	if err := b.dg.Close(); err != nil {
		logging.Warnw("bot: gateway close failed", "err", err)
	}
}
