package server

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/drewpri411/kaathumaaa/pkg/agent"
	"github.com/drewpri411/kaathumaaa/pkg/bus"
)

// Metrics are the server-wide Prometheus collectors. One instance per
// process; per-session observation happens through bus subscriptions.
type Metrics struct {
	SessionsActive     prometheus.Gauge
	FramesIn           prometheus.Counter
	ChunksTranscribed  prometheus.Counter
	FragmentsDropped   prometheus.Counter
	TurnsEnded         prometheus.Counter
	BackchannelsPlayed prometheus.Counter
	BackchannelsAbort  prometheus.Counter
	AgentInterrupts    prometheus.Counter
	BufferOverruns     prometheus.Counter
	TurnDuration       prometheus.Histogram
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kaathumaaa_sessions_active",
			Help: "Number of live conversation sessions.",
		}),
		FramesIn: factory.NewCounter(prometheus.CounterOpts{
			Name: "kaathumaaa_audio_frames_in_total",
			Help: "Capture frames ingested across all sessions.",
		}),
		ChunksTranscribed: factory.NewCounter(prometheus.CounterOpts{
			Name: "kaathumaaa_transcript_updates_total",
			Help: "Successful transcript merges.",
		}),
		FragmentsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "kaathumaaa_transcript_fragments_dropped_total",
			Help: "Chunk transcriptions dropped on failure or empty result.",
		}),
		TurnsEnded: factory.NewCounter(prometheus.CounterOpts{
			Name: "kaathumaaa_turns_ended_total",
			Help: "Turn-end decisions fired.",
		}),
		BackchannelsPlayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "kaathumaaa_backchannels_played_total",
			Help: "Backchannel clips that survived the safe zone and played.",
		}),
		BackchannelsAbort: factory.NewCounter(prometheus.CounterOpts{
			Name: "kaathumaaa_backchannels_aborted_total",
			Help: "Backchannels aborted inside the safe zone.",
		}),
		AgentInterrupts: factory.NewCounter(prometheus.CounterOpts{
			Name: "kaathumaaa_agent_interruptions_total",
			Help: "Agent utterances truncated by resumed user speech.",
		}),
		BufferOverruns: factory.NewCounter(prometheus.CounterOpts{
			Name: "kaathumaaa_audio_buffer_overruns_total",
			Help: "Audio pipeline overruns (oldest frames dropped).",
		}),
		TurnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kaathumaaa_turn_duration_seconds",
			Help:    "User turn length from speech start to the turn-end decision.",
			Buckets: []float64{0.5, 1, 2, 4, 8, 15, 30, 60},
		}),
	}
}

// Observe attaches counters to one session's bus.
func (m *Metrics) Observe(s *agent.Session) {
	b := s.Bus()
	b.MustSubscribe(bus.TopicAudioFrame, func(bus.Event) { m.FramesIn.Inc() })
	b.MustSubscribe(bus.TopicTranscriptUpdated, func(bus.Event) { m.ChunksTranscribed.Inc() })
	b.MustSubscribe(bus.TopicTranscriptDropped, func(bus.Event) { m.FragmentsDropped.Inc() })
	var turnMu sync.Mutex
	var turnStart time.Time
	b.MustSubscribe(bus.TopicStateChanged, func(ev bus.Event) {
		if p, ok := ev.Payload.(bus.StatePayload); ok && p.New == "USER_SPEAKING" {
			turnMu.Lock()
			turnStart = p.At
			turnMu.Unlock()
		}
	})
	b.MustSubscribe(bus.TopicTurnEnded, func(ev bus.Event) {
		m.TurnsEnded.Inc()
		turnMu.Lock()
		start := turnStart
		turnMu.Unlock()
		if !start.IsZero() {
			m.TurnDuration.Observe(ev.At.Sub(start).Seconds())
		}
	})
	b.MustSubscribe(bus.TopicBackchannelPlaying, func(bus.Event) { m.BackchannelsPlayed.Inc() })
	b.MustSubscribe(bus.TopicBackchannelAborted, func(bus.Event) { m.BackchannelsAbort.Inc() })
	b.MustSubscribe(bus.TopicAgentInterrupted, func(bus.Event) { m.AgentInterrupts.Inc() })
	b.MustSubscribe(bus.TopicBufferOverrun, func(bus.Event) { m.BufferOverruns.Inc() })
}
