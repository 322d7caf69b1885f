package backchannel

import (
	"log/slog"
	"sync"
	"time"

	"github.com/drewpri411/kaathumaaa/pkg/bus"
	"github.com/drewpri411/kaathumaaa/pkg/config"
)

// EventState is the lifecycle state of one scheduled backchannel.
type EventState int

const (
	StatePending EventState = iota // waiting out the safe zone
	StatePlaying                   // handed to the mixer
	StateAborted                   // user resumed or turn ended during the safe zone
	StateDone                      // playback drained
)

func (s EventState) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StatePlaying:
		return "PLAYING"
	case StateAborted:
		return "ABORTED"
	case StateDone:
		return "DONE"
	default:
		return "unknown"
	}
}

// Event is one scheduled backchannel moving through its lifecycle.
type Event struct {
	Clip  *Clip
	State EventState
	timer *time.Timer
}

// System owns backchannel behavior for a session: it watches silence ticks,
// rolls the trigger, runs the safe-zone delay and hands surviving events to
// the mixer via the bus. At most one event is PENDING or PLAYING at a time.
type System struct {
	bus      *bus.Bus
	log      *slog.Logger
	trigger  *Trigger
	selector *Selector
	safeZone time.Duration

	mu           sync.Mutex
	live         *Event
	lastPlayedAt time.Time
	playedAny    bool
	userSpeaking bool
	turnEnded    bool
	turnStart    time.Time
	transcript   string

	now   func() time.Time
	after func(time.Duration, func()) *time.Timer
	subs  []*bus.Subscription
}

// NewSystem wires the backchannel system to the session bus.
func NewSystem(cfg config.BackchannelConfig, lib *Library, b *bus.Bus, log *slog.Logger) *System {
	if log == nil {
		log = slog.Default()
	}
	s := &System{
		bus:      b,
		log:      log,
		trigger:  NewTrigger(cfg.BaseProbability, cfg.MinInterval, nil),
		selector: NewSelector(lib, nil),
		safeZone: cfg.SafeZone,
		now:      time.Now,
		after:    time.AfterFunc,
	}
	s.subs = []*bus.Subscription{
		b.MustSubscribe(bus.TopicStateChanged, s.onStateChanged),
		b.MustSubscribe(bus.TopicTranscriptUpdated, s.onTranscript),
		b.MustSubscribe(bus.TopicSilenceTick, s.onSilenceTick),
		b.MustSubscribe(bus.TopicSpeechStarted, s.onSpeechStarted),
		b.MustSubscribe(bus.TopicTurnEnded, s.onTurnEnded),
		b.MustSubscribe(bus.TopicBackchannelDone, s.onPlaybackDone),
	}
	return s
}

// Close detaches from the bus and cancels any pending event silently.
func (s *System) Close() error {
	s.mu.Lock()
	if s.live != nil && s.live.timer != nil {
		s.live.timer.Stop()
	}
	s.live = nil
	s.mu.Unlock()

	var first error
	for _, sub := range s.subs {
		if err := sub.Cancel(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s *System) onStateChanged(ev bus.Event) {
	p, ok := ev.Payload.(bus.StatePayload)
	if !ok {
		return
	}
	s.mu.Lock()
	s.userSpeaking = p.New == "USER_SPEAKING"
	if s.userSpeaking && p.Old != "USER_SPEAKING" {
		s.turnStart = p.At
		s.turnEnded = false
		s.transcript = ""
	}
	s.mu.Unlock()
}

func (s *System) onTranscript(ev bus.Event) {
	if p, ok := ev.Payload.(bus.TranscriptPayload); ok {
		s.mu.Lock()
		s.transcript = p.Text
		s.mu.Unlock()
	}
}

func (s *System) onSilenceTick(ev bus.Event) {
	p, ok := ev.Payload.(bus.SilenceTickPayload)
	if !ok {
		return
	}

	s.mu.Lock()
	if !s.userSpeaking || s.turnEnded || s.live != nil {
		s.mu.Unlock()
		return
	}
	now := s.now()
	in := TriggerInput{
		Silence:     p.Duration,
		Transcript:  s.transcript,
		SinceLast:   now.Sub(s.lastPlayedAt),
		SpeakingFor: now.Sub(s.turnStart),
		PlayedAny:   s.playedAny,
	}
	fire, prob := s.trigger.Decide(in)
	if !fire {
		s.mu.Unlock()
		return
	}
	clip := s.selector.Select(s.transcript)
	if clip == nil {
		s.mu.Unlock()
		return
	}
	event := &Event{Clip: clip, State: StatePending}
	event.timer = s.after(s.safeZone, func() { s.safeZoneElapsed(event) })
	s.live = event
	s.mu.Unlock()

	s.log.Debug("backchannel scheduled", "type", clip.Name, "probability", prob)
	s.bus.Publish(bus.TopicBackchannelScheduled, bus.BackchannelPayload{Type: clip.Name})
}

// safeZoneElapsed promotes a still-pending event to PLAYING and hands its
// frames to the mixer.
func (s *System) safeZoneElapsed(event *Event) {
	s.mu.Lock()
	if s.live != event || event.State != StatePending {
		s.mu.Unlock()
		return
	}
	event.State = StatePlaying
	s.lastPlayedAt = s.now()
	s.playedAny = true
	clip := event.Clip
	s.mu.Unlock()

	s.bus.Publish(bus.TopicBackchannelPlaying, bus.BackchannelPayload{
		Type:   clip.Name,
		Frames: clip.Frames,
	})
}

func (s *System) onSpeechStarted(ev bus.Event) { s.abortPending("user resumed speaking") }

func (s *System) onTurnEnded(ev bus.Event) {
	s.mu.Lock()
	s.turnEnded = true
	s.mu.Unlock()
	s.abortPending("turn ended")
}

// abortPending cancels a PENDING event; a PLAYING clip is short and runs
// out on its own, the mixer's priority rules keep it out of the agent's
// way.
func (s *System) abortPending(reason string) {
	s.mu.Lock()
	event := s.live
	if event == nil || event.State != StatePending {
		s.mu.Unlock()
		return
	}
	event.timer.Stop()
	event.State = StateAborted
	s.live = nil
	name := event.Clip.Name
	s.mu.Unlock()

	s.log.Debug("backchannel aborted", "type", name, "reason", reason)
	s.bus.Publish(bus.TopicBackchannelAborted, bus.BackchannelPayload{Type: name})
}

func (s *System) onPlaybackDone(ev bus.Event) {
	s.mu.Lock()
	if s.live != nil && s.live.State == StatePlaying {
		s.live.State = StateDone
		s.live = nil
	}
	s.mu.Unlock()
}

// Live returns the in-flight event, or nil. Exposed for the status surface.
func (s *System) Live() *Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}
