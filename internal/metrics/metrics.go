package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline counters, registered on the default registry and exposed by the
// web server's /metrics endpoint.
var (
	FramesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebridge_frames_received_total",
		Help: "Total audio frames received from the call transport",
	})
	FramesUnattributed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebridge_frames_unattributed_total",
		Help: "Frames dropped because their stream had no speaker mapping yet",
	})
	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebridge_frames_dropped_total",
		Help: "Raw packets dropped because the decode queue was full",
	})
	DecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebridge_decode_errors_total",
		Help: "Opus decode failures",
	})

	UtterancesEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebridge_utterances_emitted_total",
		Help: "Utterances emitted by the buffer manager",
	})
	FlushesSilence = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebridge_flushes_silence_total",
		Help: "Silence-timeout flushes",
	})
	FlushesForced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebridge_flushes_forced_total",
		Help: "Forced flushes at the maximum utterance duration",
	})
	FlushesDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebridge_flushes_discarded_total",
		Help: "Buffers discarded below the minimum utterance duration",
	})

	InferenceRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebridge_inference_requests_total",
		Help: "Requests submitted to the inference peer",
	})
	InferenceResults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebridge_inference_results_total",
		Help: "Results received from the inference peer",
	})
	InferenceDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebridge_inference_dropped_total",
		Help: "Utterances dropped because the inference connection was down or the queue full",
	})
	InferenceTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebridge_inference_timeouts_total",
		Help: "Requests that saw no result within the request timeout",
	})
	InferenceReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebridge_inference_reconnects_total",
		Help: "Reconnection attempts to the inference peer",
	})
	InferenceLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicebridge_inference_latency_seconds",
		Help:    "Pipeline latency reported by the inference peer",
		Buckets: prometheus.DefBuckets,
	})

	ResultsRouted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebridge_results_routed_total",
		Help: "Inference results routed to a room topic",
	})
	ResultsUnrouted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebridge_results_unrouted_total",
		Help: "Inference results dropped because their room session had ended",
	})
	SinkFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicebridge_sink_failures_total",
		Help: "Delivery failures per sink kind",
	}, []string{"sink"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicebridge_active_sessions",
		Help: "Active channel sessions",
	})
	TopicSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicebridge_topic_subscribers",
		Help: "Connected web viewers across all room topics",
	})
)
