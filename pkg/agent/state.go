package agent

// ConversationState is the session's top-level state. The Session is its
// sole writer; everything else observes it through state-change events.
type ConversationState int

const (
	StateIdle ConversationState = iota
	StateUserSpeaking
	StateProcessing
	StateAgentSpeaking
)

func (s ConversationState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateUserSpeaking:
		return "USER_SPEAKING"
	case StateProcessing:
		return "PROCESSING"
	case StateAgentSpeaking:
		return "AGENT_SPEAKING"
	default:
		return "unknown"
	}
}
