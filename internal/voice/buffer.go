package voice

import (
	"sync"
	"time"

	"github.com/discord-voice-bridge/internal/logging"
	"github.com/discord-voice-bridge/internal/metrics"
	"github.com/google/uuid"
)

// BufferConfig holds the segmentation parameters. These arrive from the
// configuration layer; the defaults documented there are 800ms silence
// timeout, 500ms minimum, 30s maximum and a 0.01 energy threshold.
type BufferConfig struct {
	SampleRate      int
	SilenceTimeout  time.Duration
	MinUtterance    time.Duration
	MaxUtterance    time.Duration
	EnergyThreshold float64
}

// speakerBuffer is the accumulation state for one stream. Mutation is
// exclusive per stream via mu; unrelated streams never contend.
type speakerBuffer struct {
	mu       sync.Mutex
	userID   string
	username string
	samples  []int16
	// speechLen is the sample count up to and including the last frame
	// that carried speech. Trailing silence past this index is trimmed
	// from emitted utterances.
	speechLen  int
	start      time.Time
	lastFrame  time.Time
	lastSpeech time.Time
	flushed    bool
}

// BufferManager converts continuous per-speaker frame streams into
// discrete utterances. One manager serves one room; the registry is
// consulted on every push and never written here.
type BufferManager struct {
	cfg       BufferConfig
	guildID   string
	channelID string
	registry  *SpeakerRegistry
	buffers   sync.Map // uint32 -> *speakerBuffer

	// now is replaceable in tests to drive silence timeouts.
	now func() time.Time
}

func NewBufferManager(guildID, channelID string, registry *SpeakerRegistry, cfg BufferConfig) *BufferManager {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	return &BufferManager{
		cfg:       cfg,
		guildID:   guildID,
		channelID: channelID,
		registry:  registry,
		now:       time.Now,
	}
}

// Push feeds one frame through attribution, VAD and the flush conditions.
// It returns a finished utterance when one of the flush conditions fires,
// or nil. Frames for unattributed streams are dropped without touching any
// buffer; that is an expected race at stream start.
func (m *BufferManager) Push(frame Frame) *Utterance {
	sp, ok := m.registry.Resolve(frame.SSRC)
	if !ok {
		metrics.FramesUnattributed.Inc()
		return nil
	}
	mono := Downmix(frame.Samples, frame.Channels)
	speech := DetectSpeech(mono, m.cfg.EnergyThreshold)
	now := m.now()

	for {
		b := m.getOrCreate(frame.SSRC, sp, speech, now)
		if b == nil {
			// silence with no open buffer: nothing to do
			return nil
		}
		b.mu.Lock()
		if b.flushed {
			// lost a race against a flush; start over
			b.mu.Unlock()
			continue
		}
		b.samples = append(b.samples, mono...)
		b.lastFrame = now
		if speech {
			b.lastSpeech = now
			b.speechLen = len(b.samples)
		}
		ut := m.evaluate(frame.SSRC, b, now)
		b.mu.Unlock()
		return ut
	}
}

func (m *BufferManager) getOrCreate(ssrc uint32, sp Speaker, speech bool, now time.Time) *speakerBuffer {
	if v, ok := m.buffers.Load(ssrc); ok {
		return v.(*speakerBuffer)
	}
	if !speech {
		return nil
	}
	b := &speakerBuffer{
		userID:     sp.UserID,
		username:   sp.Username,
		samples:    make([]int16, 0, SamplesPerFrame*50),
		start:      now,
		lastFrame:  now,
		lastSpeech: now,
	}
	actual, _ := m.buffers.LoadOrStore(ssrc, b)
	return actual.(*speakerBuffer)
}

// evaluate applies the flush conditions with b.mu held. Silence flush and
// sub-minimum discard come first, then the forced duration cap.
func (m *BufferManager) evaluate(ssrc uint32, b *speakerBuffer, now time.Time) *Utterance {
	if now.Sub(b.lastSpeech) >= m.cfg.SilenceTimeout {
		if m.sampleDuration(b.speechLen) >= m.cfg.MinUtterance {
			metrics.FlushesSilence.Inc()
			return m.emitLocked(ssrc, b, b.speechLen, now, true)
		}
		// short noise: discard silently
		metrics.FlushesDiscarded.Inc()
		m.discardLocked(ssrc, b)
		return nil
	}
	if m.sampleDuration(len(b.samples)) >= m.cfg.MaxUtterance {
		logging.Infow("buffer: forced flush at duration cap",
			logging.BufferFields(ssrc, len(b.samples), int(m.sampleDuration(len(b.samples)).Milliseconds()))...)
		metrics.FlushesForced.Inc()
		return m.emitLocked(ssrc, b, len(b.samples), now, false)
	}
	return nil
}

// emitLocked snapshots n samples into an utterance. When remove is true the
// buffer is destroyed; otherwise it is reset in place so accumulation
// continues without losing frames (forced flush during continuous speech).
func (m *BufferManager) emitLocked(ssrc uint32, b *speakerBuffer, n int, now time.Time, remove bool) *Utterance {
	if n == 0 {
		if remove {
			m.discardLocked(ssrc, b)
		}
		return nil
	}
	samples := make([]int16, n)
	copy(samples, b.samples[:n])
	ut := &Utterance{
		ID:         uuid.NewString(),
		GuildID:    m.guildID,
		ChannelID:  m.channelID,
		UserID:     b.userID,
		Username:   b.username,
		Samples:    samples,
		SampleRate: m.cfg.SampleRate,
		Start:      b.start,
		End:        now,
	}
	if remove {
		m.discardLocked(ssrc, b)
	} else {
		b.samples = make([]int16, 0, SamplesPerFrame*50)
		b.speechLen = 0
		b.start = now
	}
	metrics.UtterancesEmitted.Inc()
	logging.Debugw("buffer: emitted utterance",
		"ssrc", ssrc, "utterance_id", ut.ID, "user_id", ut.UserID,
		"samples", len(ut.Samples), "duration_ms", ut.Duration().Milliseconds())
	return ut
}

func (m *BufferManager) discardLocked(ssrc uint32, b *speakerBuffer) {
	b.flushed = true
	b.samples = nil
	m.buffers.Delete(ssrc)
}

// FlushExpired sweeps all buffers and applies the flush conditions against
// the current time. The owning session drives this from a ticker so silence
// is detected even when a speaker's frames stop arriving entirely.
func (m *BufferManager) FlushExpired() []*Utterance {
	now := m.now()
	var out []*Utterance
	m.buffers.Range(func(key, v any) bool {
		b := v.(*speakerBuffer)
		b.mu.Lock()
		if !b.flushed {
			if ut := m.evaluate(key.(uint32), b, now); ut != nil {
				out = append(out, ut)
			}
		}
		b.mu.Unlock()
		return true
	})
	return out
}

// FlushStream force-flushes the buffer for a departing stream. The
// utterance is emitted only when the minimum duration is met; shorter
// remainders are discarded. Call this before SpeakerRegistry.Unregister.
func (m *BufferManager) FlushStream(ssrc uint32) *Utterance {
	v, ok := m.buffers.Load(ssrc)
	if !ok {
		return nil
	}
	b := v.(*speakerBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.flushed {
		return nil
	}
	if m.sampleDuration(b.speechLen) >= m.cfg.MinUtterance {
		return m.emitLocked(ssrc, b, b.speechLen, m.now(), true)
	}
	metrics.FlushesDiscarded.Inc()
	m.discardLocked(ssrc, b)
	return nil
}

// FlushAll force-flushes every buffer, for session leave.
func (m *BufferManager) FlushAll() []*Utterance {
	var out []*Utterance
	m.buffers.Range(func(key, _ any) bool {
		if ut := m.FlushStream(key.(uint32)); ut != nil {
			out = append(out, ut)
		}
		return true
	})
	return out
}

// DiscardAll drops every buffer without emitting, for hard teardown.
func (m *BufferManager) DiscardAll() {
	m.buffers.Range(func(key, v any) bool {
		b := v.(*speakerBuffer)
		b.mu.Lock()
		m.discardLocked(key.(uint32), b)
		b.mu.Unlock()
		return true
	})
}

// ActiveBuffers reports the number of streams currently accumulating.
func (m *BufferManager) ActiveBuffers() int {
	n := 0
	m.buffers.Range(func(_, _ any) bool { n++; return true })
	return n
}

func (m *BufferManager) sampleDuration(n int) time.Duration {
	return time.Duration(n) * time.Second / time.Duration(m.cfg.SampleRate)
}
