// Package agent hosts the per-session conversation state machine. A Session
// owns its event bus and every component on it; sessions share no mutable
// state, so one misbehaving conversation cannot touch another.
package agent

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/drewpri411/kaathumaaa/pkg/ai/llm"
	"github.com/drewpri411/kaathumaaa/pkg/ai/stt"
	"github.com/drewpri411/kaathumaaa/pkg/ai/tts"
	"github.com/drewpri411/kaathumaaa/pkg/ai/vad"
	"github.com/drewpri411/kaathumaaa/pkg/audio/mixer"
	"github.com/drewpri411/kaathumaaa/pkg/audio/pipeline"
	"github.com/drewpri411/kaathumaaa/pkg/backchannel"
	"github.com/drewpri411/kaathumaaa/pkg/bus"
	"github.com/drewpri411/kaathumaaa/pkg/config"
	"github.com/drewpri411/kaathumaaa/pkg/linguistic"
	"github.com/drewpri411/kaathumaaa/pkg/rtc"
	"github.com/drewpri411/kaathumaaa/pkg/transcript"
	"github.com/drewpri411/kaathumaaa/pkg/turn"
	"github.com/drewpri411/kaathumaaa/pkg/voice"
)

const systemPrompt = "You are a helpful voice assistant. Keep replies short and conversational; they will be spoken aloud."

// fallbackReply is spoken when response generation fails, so the user is
// never left in silence.
const fallbackReply = "Sorry, I missed that. Could you say it again?"

// maxHistoryMessages bounds the conversation history sent to the LLM.
const maxHistoryMessages = 20

// Collaborators are the external services a session drives. Tests inject
// fakes; production wires the configured providers.
type Collaborators struct {
	VAD vad.VAD
	STT stt.STT
	LLM llm.LLM
	TTS tts.TTS
}

// Session is one live conversation.
type Session struct {
	ID  string
	cfg *config.Config
	log *slog.Logger
	bus *bus.Bus

	pipeline     *pipeline.Pipeline
	tracker      *voice.Tracker
	coordinator  *transcript.Coordinator
	analyzer     *linguistic.Analyzer
	detector     *turn.Detector
	backchannels *backchannel.System
	mixer        *mixer.Mixer
	llm          llm.LLM
	tts          tts.TTS

	mu        sync.Mutex
	state     ConversationState
	gen       uint64 // bumped on every entry to USER_SPEAKING
	turnStart time.Time
	turns     int
	history   []llm.Message

	subs      []*bus.Subscription
	cancelRun context.CancelFunc
}

// NewSession builds and fully wires a session. The returned session is
// IDLE; call Start to begin mixing output.
func NewSession(id string, cfg *config.Config, c Collaborators, lib *backchannel.Library, log *slog.Logger) (*Session, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("session", id)
	b := bus.New(log)

	pl, err := pipeline.New(cfg.Audio, b, log)
	if err != nil {
		return nil, err
	}
	analyzer := linguistic.NewAnalyzer(nil)
	s := &Session{
		ID:           id,
		cfg:          cfg,
		log:          log,
		bus:          b,
		pipeline:     pl,
		tracker:      voice.NewTracker(c.VAD, b, voice.OptionsFromConfig(cfg), log),
		coordinator:  transcript.NewCoordinator(c.STT, b, log),
		analyzer:     analyzer,
		detector:     turn.NewDetector(cfg.Turn, analyzer, b, log),
		backchannels: backchannel.NewSystem(cfg.Backchannel, lib, b, log),
		mixer:        mixer.New(cfg.Audio, b, log),
		llm:          c.LLM,
		tts:          c.TTS,
		state:        StateIdle,
		history:      []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}},
	}
	s.subs = []*bus.Subscription{
		b.MustSubscribe(bus.TopicSpeechStarted, s.onSpeechStarted),
		b.MustSubscribe(bus.TopicTurnEnded, s.onTurnEnded),
		b.MustSubscribe(bus.TopicAgentInterrupted, s.onAgentInterrupted),
		b.MustSubscribe(bus.TopicAgentPlaybackDone, s.onAgentPlaybackDone),
	}
	return s, nil
}

// Start launches the mixer loop. Output is read from Output().
func (s *Session) Start(ctx context.Context) {
	ctx, s.cancelRun = context.WithCancel(ctx)
	go s.mixer.Run(ctx)
}

// Close tears the session down. In-flight collaborator calls are canceled.
func (s *Session) Close() {
	if s.cancelRun != nil {
		s.cancelRun()
	}
	for _, sub := range s.subs {
		_ = sub.Cancel()
	}
	_ = s.backchannels.Close()
	_ = s.detector.Close()
	_ = s.coordinator.Close()
	_ = s.tracker.Close()
	_ = s.mixer.Close()
	s.log.Info("session closed")
}

// PushAudio ingests one capture frame's PCM from the transport.
func (s *Session) PushAudio(data []byte, capturedAt time.Time) error {
	return s.pipeline.Push(data, capturedAt)
}

// Output is the mixed outbound PCM stream.
func (s *Session) Output() <-chan *rtc.AudioFrame { return s.mixer.Out() }

// Bus exposes the session's event bus for observers such as metrics.
// Observers subscribe only; they never publish.
func (s *Session) Bus() *bus.Bus { return s.bus }

// State returns the current conversation state.
func (s *Session) State() ConversationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot is the read-only status surface.
type Snapshot struct {
	ID         string `json:"id"`
	State      string `json:"state"`
	Transcript string `json:"transcript"`
	Turns      int    `json:"turns"`
}

// Snapshot reports the current state, partial transcript and completed
// turn count.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	state := s.state
	turns := s.turns
	s.mu.Unlock()
	return Snapshot{
		ID:         s.ID,
		State:      state.String(),
		Transcript: s.coordinator.Transcript(),
		Turns:      turns,
	}
}

// transitionLocked records the state change and returns the publish to run
// after the lock is released. Publishing under the lock would let a
// subscriber call back into the session and deadlock.
func (s *Session) transitionLocked(to ConversationState, at time.Time) func() {
	from := s.state
	if from == to {
		return func() {}
	}
	s.state = to
	payload := bus.StatePayload{Old: from.String(), New: to.String(), At: at}
	return func() {
		s.log.Info("state changed", "from", payload.Old, "to", payload.New)
		s.bus.Publish(bus.TopicStateChanged, payload)
	}
}

// enterUserSpeakingLocked starts a fresh turn: new generation, new turn
// clock, new transcript.
func (s *Session) enterUserSpeakingLocked(at time.Time) func() {
	s.gen++
	s.turnStart = at
	s.coordinator.BeginTurn()
	return s.transitionLocked(StateUserSpeaking, at)
}

func (s *Session) onSpeechStarted(ev bus.Event) {
	p, ok := ev.Payload.(bus.SpeechPayload)
	if !ok {
		return
	}
	s.mu.Lock()
	fire := func() {}
	// AGENT_SPEAKING is handled by the mixer's interruption rule; the state
	// change follows from agent_interrupted. Speech during PROCESSING is
	// absorbed into the next turn.
	if s.state == StateIdle {
		fire = s.enterUserSpeakingLocked(p.At)
	}
	s.mu.Unlock()
	fire()
}

func (s *Session) onTurnEnded(ev bus.Event) {
	p, ok := ev.Payload.(bus.TurnEndedPayload)
	if !ok {
		return
	}
	s.mu.Lock()
	if s.state != StateUserSpeaking {
		s.mu.Unlock()
		return
	}
	turnDuration := ev.At.Sub(s.turnStart)
	s.turns++
	gen := s.gen
	fire := s.transitionLocked(StateProcessing, ev.At)
	s.mu.Unlock()
	fire()

	words := len(strings.Fields(p.Transcript))
	sentences := s.analyzer.Analyze(p.Transcript).SentenceCount
	s.detector.CloseTurn(turnDuration, words, sentences)

	go s.respond(p.Transcript, gen)
}

func (s *Session) onAgentInterrupted(ev bus.Event) {
	s.mu.Lock()
	fire := func() {}
	if s.state == StateAgentSpeaking {
		fire = s.enterUserSpeakingLocked(ev.At)
	}
	s.mu.Unlock()
	fire()
}

func (s *Session) onAgentPlaybackDone(ev bus.Event) {
	s.mu.Lock()
	fire := func() {}
	if s.state == StateAgentSpeaking {
		fire = s.transitionLocked(StateIdle, ev.At)
	}
	s.mu.Unlock()
	fire()
}

// respond runs the LLM and TTS for one finalized turn. A result arriving
// after the turn was superseded is discarded.
func (s *Session) respond(userText string, gen uint64) {
	ctx := context.Background()

	messages := append(s.historyTail(), llm.Message{Role: llm.RoleUser, Content: userText})
	reply, llmErr := s.llm.Chat(ctx, llm.ChatRequest{
		Messages:    messages,
		MaxTokens:   s.cfg.OpenAI.MaxTokens,
		Temperature: s.cfg.OpenAI.Temperature,
	})

	text := reply.Message.Content
	if llmErr != nil {
		s.log.Error("response generation failed", "error", llmErr)
		text = fallbackReply
	}
	if s.stale(gen) {
		s.log.Debug("discarding stale response", "gen", gen)
		return
	}

	frames, synthErr := s.tts.Synthesize(ctx, tts.SynthesizeRequest{Text: text, Voice: s.cfg.OpenAI.TTSVoice})
	if synthErr != nil {
		s.log.Error("speech synthesis failed", "error", synthErr)
		s.mu.Lock()
		fire := s.transitionLocked(StateIdle, time.Now())
		s.mu.Unlock()
		fire()
		return
	}
	if llmErr == nil {
		s.remember(userText, text)
	}

	s.mu.Lock()
	if s.staleLocked(gen) {
		s.mu.Unlock()
		for range frames {
		}
		return
	}
	fire := s.transitionLocked(StateAgentSpeaking, time.Now())
	s.mu.Unlock()
	fire()

	stream := s.mixer.StartAgent()
	for frame := range frames {
		if !stream.Push(frame) {
			// Interrupted; drain what the provider still sends.
			for range frames {
			}
			return
		}
	}
	stream.Finish()
}

// stale reports whether gen's turn has been superseded.
func (s *Session) stale(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staleLocked(gen)
}

func (s *Session) staleLocked(gen uint64) bool {
	return gen != s.gen || s.state != StateProcessing
}

func (s *Session) historyTail() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) <= maxHistoryMessages {
		return append([]llm.Message(nil), s.history...)
	}
	tail := make([]llm.Message, 0, maxHistoryMessages)
	tail = append(tail, s.history[0]) // keep the system prompt
	tail = append(tail, s.history[len(s.history)-(maxHistoryMessages-1):]...)
	return tail
}

func (s *Session) remember(userText, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history,
		llm.Message{Role: llm.RoleUser, Content: userText},
		llm.Message{Role: llm.RoleAssistant, Content: reply},
	)
}
