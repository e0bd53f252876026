package discord

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/discord-voice-bridge/internal/logging"
	"github.com/discord-voice-bridge/internal/metrics"
	"github.com/discord-voice-bridge/internal/session"
	"github.com/discord-voice-bridge/internal/voice"
	"github.com/hraban/opus"
)

const (
	// packetQueueSize bounds the raw packet queue between the gateway
	// reader and the decode worker. A full queue drops the packet; the
	// receive loop must never block on decoding.
	packetQueueSize = 256

	receiveChannels = 2
)

// Receiver consumes the voice connection for one room: it maps speaking
// updates to speakers, decodes incoming Opus packets and feeds frames into
// the room's session.
type Receiver struct {
	vc       *discordgo.VoiceConnection
	sess     *session.Session
	resolver NameResolver

	pktCh  chan *discordgo.Packet
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	decoders map[uint32]*opus.Decoder
}

func newReceiver(vc *discordgo.VoiceConnection, sess *session.Session, resolver NameResolver) *Receiver {
	return &Receiver{
		vc:       vc,
		sess:     sess,
		resolver: resolver,
		pktCh:    make(chan *discordgo.Packet, packetQueueSize),
		decoders: make(map[uint32]*opus.Decoder),
	}
}

func (r *Receiver) start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.vc.AddHandler(r.handleSpeaking)
	r.wg.Add(2)
	go r.readLoop(ctx)
	go r.decodeLoop(ctx)
}

// stop ends both loops. The voice connection itself is closed by the bot.
func (r *Receiver) stop() {
	r.cancel()
	r.wg.Wait()
}

// handleSpeaking maps an SSRC to the speaking user. Speaking=false means
// the user stopped transmitting, not that they left; the mapping stays so
// their next burst keeps attribution.
func (r *Receiver) handleSpeaking(_ *discordgo.VoiceConnection, su *discordgo.VoiceSpeakingUpdate) {
	if su.UserID == "" {
		return
	}
	name := r.resolver.UserName(su.UserID)
	if name == "" {
		name = su.UserID
	}
	r.sess.HandleSpeaking(uint32(su.SSRC), su.UserID, name)
	fields := append([]any{"ssrc", su.SSRC, "speaking", su.Speaking}, logging.UserFields(su.UserID, name)...)
	logging.Debugw("receiver: mapped stream to user", fields...)
}

// readLoop drains the gateway's packet channel into the bounded queue.
func (r *Receiver) readLoop(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-r.vc.OpusRecv:
			if !ok {
				logging.Infow("receiver: voice connection closed")
				return
			}
			select {
			case r.pktCh <- pkt:
			default:
				metrics.FramesDropped.Inc()
				logging.Warnw("receiver: packet queue full, dropping", "ssrc", pkt.SSRC)
			}
		}
	}
}

// decodeLoop decodes queued packets and pushes frames into the session.
func (r *Receiver) decodeLoop(ctx context.Context) {
	defer r.wg.Done()
	pcm := make([]int16, voice.SamplesPerFrame*receiveChannels)
	for {
		select {
		case <-ctx.Done():
			return
		case pkt := <-r.pktCh:
			dec, err := r.decoderFor(pkt.SSRC)
			if err != nil {
				metrics.DecodeErrors.Inc()
				logging.Errorw("receiver: decoder init failed", "ssrc", pkt.SSRC, "err", err)
				continue
			}
			n, err := dec.Decode(pkt.Opus, pcm)
			if err != nil {
				metrics.DecodeErrors.Inc()
				logging.Errorw("receiver: opus decode error", "ssrc", pkt.SSRC, "err", err)
				continue
			}
			samples := make([]int16, n*receiveChannels)
			copy(samples, pcm[:n*receiveChannels])
			r.sess.HandleFrame(voice.Frame{
				SSRC:       pkt.SSRC,
				Sequence:   pkt.Sequence,
				SampleRate: voice.DefaultSampleRate,
				Channels:   receiveChannels,
				Samples:    samples,
			})
		}
	}
}

// decoderFor returns the per-stream decoder, creating it on first packet.
// Opus decoders carry inter-frame state, so streams never share one.
func (r *Receiver) decoderFor(ssrc uint32) (*opus.Decoder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if dec, ok := r.decoders[ssrc]; ok {
		return dec, nil
	}
	dec, err := opus.NewDecoder(voice.DefaultSampleRate, receiveChannels)
	if err != nil {
		return nil, err
	}
	r.decoders[ssrc] = dec
	return dec, nil
}
