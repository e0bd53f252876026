package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// threadPoster posts transcript blocks into per-language threads under the
// configured transcript text channel. It implements bridge.MessagePoster.
type threadPoster struct {
	s *discordgo.Session
	// transcriptChannelID is the text channel threads are created under.
	transcriptChannelID string
}

func NewThreadPoster(s *discordgo.Session, transcriptChannelID string) *threadPoster {
	return &threadPoster{s: s, transcriptChannelID: transcriptChannelID}
}

// EnsureThread finds or creates the thread for a room and target language.
// Existing active threads are reused by name so a bot restart does not
// litter the channel with duplicates.
func (p *threadPoster) EnsureThread(guildID, channelID, lang string) (string, error) {
	name := threadName(p.s, channelID, lang)
	if threads, err := p.s.GuildThreadsActive(guildID); err == nil {
		for _, t := range threads.Threads {
			if t.ParentID == p.transcriptChannelID && t.Name == name {
				return t.ID, nil
			}
		}
	}
	t, err := p.s.ThreadStart(p.transcriptChannelID, name,
		discordgo.ChannelTypeGuildPublicThread, 60)
	if err != nil {
		return "", fmt.Errorf("create transcript thread %q: %w", name, err)
	}
	return t.ID, nil
}

func (p *threadPoster) Post(threadID, content string) error {
	_, err := p.s.ChannelMessageSend(threadID, content)
	return err
}

// threadName builds a stable thread name from the voice channel name and
// target language, falling back to the channel id when the name is not in
// the state cache.
func threadName(s *discordgo.Session, channelID, lang string) string {
	name := channelID
	if s != nil && s.State != nil {
		if c, err := s.State.Channel(channelID); err == nil && c != nil && c.Name != "" {
			name = c.Name
		}
	}
	if lang == "" {
		return fmt.Sprintf("voice-translations-%s", name)
	}
	return fmt.Sprintf("voice-translations-%s-%s", name, lang)
}
