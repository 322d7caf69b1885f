// Package mixer reconciles the session's three outbound audio sources,
// agent speech, backchannel clips and silence fill, into one PCM stream.
// Agent speech and backchannels are mutually exclusive; agent speech wins
// when both are queued, and resumed user speech truncates agent output
// within one frame period.
package mixer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/drewpri411/kaathumaaa/pkg/bus"
	"github.com/drewpri411/kaathumaaa/pkg/config"
	"github.com/drewpri411/kaathumaaa/pkg/rtc"
)

// outBuffer bounds the output channel. The transport should consume at
// real-time rate; if it stalls, newest frames are dropped.
const outBuffer = 64

// Mixer is the single writer of the session's outbound audio.
type Mixer struct {
	bus *bus.Bus
	log *slog.Logger

	sampleRate    int
	frameDuration time.Duration

	mu            sync.Mutex
	agent         []*rtc.AudioFrame
	agentGen      uint64
	agentOpen     bool // a stream is attached and not yet finished
	agentSpeaking bool // state cache for the interruption rule
	backchannel   []*rtc.AudioFrame
	seq           uint64

	out  chan *rtc.AudioFrame
	subs []*bus.Subscription
}

// New wires a mixer to the session bus.
func New(cfg config.AudioConfig, b *bus.Bus, log *slog.Logger) *Mixer {
	if log == nil {
		log = slog.Default()
	}
	m := &Mixer{
		bus:           b,
		log:           log,
		sampleRate:    cfg.SampleRate,
		frameDuration: cfg.FrameDuration,
		out:           make(chan *rtc.AudioFrame, outBuffer),
	}
	m.subs = []*bus.Subscription{
		b.MustSubscribe(bus.TopicBackchannelPlaying, m.onBackchannelPlaying),
		b.MustSubscribe(bus.TopicStateChanged, m.onStateChanged),
		b.MustSubscribe(bus.TopicSpeechStarted, m.onSpeechStarted),
	}
	return m
}

// Close detaches from the bus. The output channel stays open; Run's return
// is the signal that mixing stopped.
func (m *Mixer) Close() error {
	var first error
	for _, s := range m.subs {
		if err := s.Cancel(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Out is the mixed PCM stream, one frame per frame period.
func (m *Mixer) Out() <-chan *rtc.AudioFrame { return m.out }

// Run emits one frame per frame period until ctx is done.
func (m *Mixer) Run(ctx context.Context) {
	ticker := time.NewTicker(m.frameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Step()
		}
	}
}

// Step produces exactly one output frame. Exposed so tests can drive the
// mixer without a ticker.
func (m *Mixer) Step() {
	m.mu.Lock()
	frame, events := m.nextLocked()
	m.mu.Unlock()

	for _, fire := range events {
		fire()
	}
	select {
	case m.out <- frame:
	default:
		m.log.Warn("output consumer stalled, frame dropped", "seq", frame.Seq)
	}
}

// nextLocked picks the frame for this period and the lifecycle events the
// pick implies.
func (m *Mixer) nextLocked() (*rtc.AudioFrame, []func()) {
	var events []func()
	var frame *rtc.AudioFrame

	switch {
	case len(m.agent) > 0:
		frame = m.agent[0]
		m.agent = m.agent[1:]
		// A concurrent backchannel is ducked, not delayed: its frames are
		// discarded at the same rate the agent's play out.
		if len(m.backchannel) > 0 {
			m.backchannel = m.backchannel[1:]
			if len(m.backchannel) == 0 {
				events = append(events, func() { m.bus.Publish(bus.TopicBackchannelDone, bus.BackchannelPayload{}) })
			}
		}
		if len(m.agent) == 0 && !m.agentOpen {
			events = append(events, func() { m.bus.Publish(bus.TopicAgentPlaybackDone, struct{}{}) })
		}
	case len(m.backchannel) > 0:
		frame = m.backchannel[0]
		m.backchannel = m.backchannel[1:]
		if len(m.backchannel) == 0 {
			events = append(events, func() { m.bus.Publish(bus.TopicBackchannelDone, bus.BackchannelPayload{}) })
		}
	default:
		frame = rtc.SilenceFrame(m.sampleRate, 1, m.frameDuration)
	}

	frame.Seq = m.seq
	m.seq++
	return frame, events
}

func (m *Mixer) onBackchannelPlaying(ev bus.Event) {
	p, ok := ev.Payload.(bus.BackchannelPayload)
	if !ok || len(p.Frames) == 0 {
		return
	}
	// Clip frames are shared by every session playing the clip; queue
	// clones so stamping the output sequence never touches the library's
	// copies.
	frames := make([]*rtc.AudioFrame, len(p.Frames))
	for i, f := range p.Frames {
		frames[i] = f.Clone()
	}
	m.mu.Lock()
	m.backchannel = frames
	m.mu.Unlock()
}

func (m *Mixer) onStateChanged(ev bus.Event) {
	if p, ok := ev.Payload.(bus.StatePayload); ok {
		m.mu.Lock()
		m.agentSpeaking = p.New == "AGENT_SPEAKING"
		m.mu.Unlock()
	}
}

// onSpeechStarted applies the interruption rule: user speech while the
// agent holds the floor truncates agent output immediately.
func (m *Mixer) onSpeechStarted(ev bus.Event) {
	m.mu.Lock()
	if !m.agentSpeaking {
		m.mu.Unlock()
		return
	}
	truncated := m.truncateAgentLocked()
	m.mu.Unlock()

	if truncated >= 0 {
		m.log.Info("agent speech interrupted", "truncated", truncated)
		m.bus.Publish(bus.TopicAgentInterrupted, bus.InterruptPayload{Truncated: truncated})
	}
}

// truncateAgentLocked drops everything queued on the agent channel and
// invalidates the attached stream. Returns the discarded duration, or -1
// when no stream was live.
func (m *Mixer) truncateAgentLocked() time.Duration {
	if !m.agentOpen && len(m.agent) == 0 {
		return -1
	}
	var d time.Duration
	for _, f := range m.agent {
		d += f.Duration()
	}
	m.agent = nil
	m.agentOpen = false
	m.agentGen++
	return d
}

// AgentStream feeds one agent utterance into the mixer. Push reports
// whether the frame was accepted; once the stream is invalidated by an
// interruption the feeder should stop.
type AgentStream struct {
	m   *Mixer
	gen uint64
}

// StartAgent attaches a new agent utterance stream, displacing any
// previous one.
func (m *Mixer) StartAgent() *AgentStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agent = nil
	m.agentGen++
	m.agentOpen = true
	return &AgentStream{m: m, gen: m.agentGen}
}

// Push queues one frame of agent speech.
func (s *AgentStream) Push(frame *rtc.AudioFrame) bool {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.gen != s.m.agentGen {
		return false
	}
	s.m.agent = append(s.m.agent, frame)
	return true
}

// Finish marks the utterance complete. Playback-done is published once the
// queue drains.
func (s *AgentStream) Finish() {
	s.m.mu.Lock()
	if s.gen != s.m.agentGen {
		s.m.mu.Unlock()
		return
	}
	s.m.agentOpen = false
	drained := len(s.m.agent) == 0
	s.m.mu.Unlock()

	if drained {
		s.m.bus.Publish(bus.TopicAgentPlaybackDone, struct{}{})
	}
}
