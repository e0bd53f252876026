package voice

import (
	"encoding/binary"
	"time"
)

// DefaultSampleRate is the rate Discord delivers voice at (Hz).
const DefaultSampleRate = 48000

// FrameDuration is the duration of one opus frame from Discord.
const FrameDuration = 20 * time.Millisecond

// SamplesPerFrame is the per-channel sample count of one frame at the
// default rate.
const SamplesPerFrame = DefaultSampleRate / 50

// Frame is one decoded audio block from the call transport, tagged with the
// ephemeral stream identifier (SSRC) it arrived on. Frames are never
// persisted; ownership stays with the caller.
type Frame struct {
	SSRC       uint32
	Sequence   uint16
	SampleRate int
	Channels   int
	// Samples are interleaved PCM when Channels > 1.
	Samples []int16
}

// Speaker is a resolved (speaker id, display name) pair for a stream.
type Speaker struct {
	UserID   string
	Username string
}

// Utterance is an immutable snapshot of one contiguous span of a single
// speaker's speech, produced by a buffer flush. The sample slice is owned
// by the utterance; the buffer manager never reuses it.
type Utterance struct {
	ID         string
	GuildID    string
	ChannelID  string
	UserID     string
	Username   string
	Samples    []int16
	SampleRate int
	TargetLang string
	Start      time.Time
	End        time.Time
}

// Duration reports the audio duration derived from the sample count.
func (u *Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.Samples)) * time.Second / time.Duration(u.SampleRate)
}

// PCMBytes returns the samples as little-endian 16-bit PCM, the layout the
// inference peer expects.
func (u *Utterance) PCMBytes() []byte {
	out := make([]byte, len(u.Samples)*2)
	for i, s := range u.Samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
