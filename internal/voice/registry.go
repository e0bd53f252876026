package voice

import (
	"sync"

	"github.com/discord-voice-bridge/internal/logging"
)

// SpeakerRegistry maps ephemeral stream identifiers (SSRCs) to stable
// speaker identities. Stream ids are reassigned across reconnects, so
// Register is an upsert. The registry is read on every frame and written
// only on speaking-state transitions, hence the RWMutex.
type SpeakerRegistry struct {
	mu      sync.RWMutex
	entries map[uint32]Speaker
}

func NewSpeakerRegistry() *SpeakerRegistry {
	return &SpeakerRegistry{entries: make(map[uint32]Speaker)}
}

// Register upserts the mapping for ssrc. It always succeeds and overwrites
// any prior mapping, which handles stream-id reuse after reconnect.
func (r *SpeakerRegistry) Register(ssrc uint32, userID, username string) {
	r.mu.Lock()
	r.entries[ssrc] = Speaker{UserID: userID, Username: username}
	r.mu.Unlock()
	logging.Debugw("registry: mapped stream to speaker", "ssrc", ssrc, "user_id", userID, "user_name", username)
}

// Resolve looks up the speaker for ssrc. A missing entry is a normal
// condition at stream start, not an error.
func (r *SpeakerRegistry) Resolve(ssrc uint32) (Speaker, bool) {
	r.mu.RLock()
	sp, ok := r.entries[ssrc]
	r.mu.RUnlock()
	return sp, ok
}

// Unregister drops the mapping for ssrc. Callers that hold a buffer for the
// stream must force-flush it before calling this, or the final utterance
// loses its attribution.
func (r *SpeakerRegistry) Unregister(ssrc uint32) {
	r.mu.Lock()
	delete(r.entries, ssrc)
	r.mu.Unlock()
}

// SSRCsFor returns every stream currently attributed to userID. Voice
// state updates identify users, not streams, so departures resolve through
// this reverse lookup.
func (r *SpeakerRegistry) SSRCsFor(userID string) []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []uint32
	for ssrc, sp := range r.entries {
		if sp.UserID == userID {
			out = append(out, ssrc)
		}
	}
	return out
}

// Len reports the number of attributed streams.
func (r *SpeakerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
