package bus

import (
	"time"

	"github.com/drewpri411/kaathumaaa/pkg/rtc"
)

// Topic names. Namespaced by the component that publishes them.
const (
	// Audio pipeline
	TopicAudioFrame    = "audio:frame"
	TopicAudioChunk    = "audio:chunk"
	TopicBufferOverrun = "audio:overrun"

	// Speech/silence tracker
	TopicSpeechStarted = "speech:started"
	TopicSpeechEnded   = "speech:ended"
	TopicSilenceTick   = "speech:silence_tick"

	// Transcription coordinator
	TopicTranscriptUpdated = "transcript:updated"
	TopicTranscriptDropped = "transcript:dropped"

	// Turn detector
	TopicTurnEvaluated = "turn:evaluated"
	TopicTurnEnded     = "turn:ended"

	// Backchannel system
	TopicBackchannelScheduled = "backchannel:scheduled"
	TopicBackchannelPlaying   = "backchannel:playing"
	TopicBackchannelAborted   = "backchannel:aborted"
	TopicBackchannelDone      = "backchannel:done"

	// Audio mixer
	TopicAgentInterrupted  = "mixer:agent_interrupted"
	TopicAgentPlaybackDone = "mixer:agent_done"

	// Conversation state manager
	TopicStateChanged = "state:changed"
)

// FramePayload carries one capture frame from the pipeline.
type FramePayload struct {
	Frame *rtc.AudioFrame
}

// ChunkPayload carries one completed transcription window.
type ChunkPayload struct {
	Chunk *rtc.AudioChunk
}

// OverrunPayload reports frames dropped under backpressure.
type OverrunPayload struct {
	Dropped int
}

// SilenceBand classifies the current silence duration.
type SilenceBand int

const (
	BandNone  SilenceBand = iota // below the short-pause floor
	BandShort                    // short-pause floor .. long-pause ceiling
	BandLong                     // at or above the long-pause ceiling
)

func (b SilenceBand) String() string {
	switch b {
	case BandNone:
		return "none"
	case BandShort:
		return "short"
	case BandLong:
		return "long"
	default:
		return "unknown"
	}
}

// SpeechPayload marks a speaking-state transition.
type SpeechPayload struct {
	At      time.Time
	Resumed bool // speech resumed out of a tracked silence
}

// SilenceTickPayload is published for every silent frame after speech.
type SilenceTickPayload struct {
	At             time.Time
	Duration       time.Duration // elapsed since the SILENT transition
	Band           SilenceBand
	SpeechDuration time.Duration // length of the speech run that just ended
}

// TranscriptPayload carries the merged running transcript.
type TranscriptPayload struct {
	Text       string
	Added      string // tokens contributed by the latest fragment
	Generation uint64 // turn generation the transcript belongs to
}

// TranscriptDroppedPayload reports a fragment dropped on STT failure.
type TranscriptDroppedPayload struct {
	ChunkSeq uint64
	Reason   string
}

// TurnScore is the structured result of one turn-end evaluation.
type TurnScore struct {
	Silence    int     // 0-100
	Linguistic int     // 0-100
	Context    int     // 0-100
	Fused      float64 // weighted combination
	EndOfTurn  bool
}

// TurnEndedPayload announces the (single) turn-end decision for a turn.
type TurnEndedPayload struct {
	Score      TurnScore
	Transcript string
	Generation uint64
}

// BackchannelPayload tracks a backchannel event through its lifecycle.
type BackchannelPayload struct {
	Type   string
	Frames []*rtc.AudioFrame // populated on the playing transition
}

// InterruptPayload reports agent speech truncated by resumed user speech.
type InterruptPayload struct {
	Truncated time.Duration // audio discarded from the agent channel
}

// StatePayload announces a conversation state transition.
type StatePayload struct {
	Old, New string
	At       time.Time
}
