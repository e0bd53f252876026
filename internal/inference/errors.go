package inference

import "errors"

var (
	// ErrNotConnected is returned by Submit when no live connection
	// exists. There is no local retry queue; the utterance is dropped.
	ErrNotConnected = errors.New("inference: not connected")
	// ErrGivenUp means the reconnect attempt bound was exhausted. The
	// connection will not recover without a restart.
	ErrGivenUp = errors.New("inference: reconnect attempts exhausted")
	// ErrQueueFull means the send queue was full; the utterance is
	// dropped rather than back-pressuring the audio path.
	ErrQueueFull = errors.New("inference: send queue full")
	// ErrTimeout is reported once per request whose result never arrived
	// within the request timeout.
	ErrTimeout = errors.New("inference: request timed out")
)
