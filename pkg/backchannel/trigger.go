package backchannel

import (
	"math/rand"
	"strings"
	"time"
)

// DefaultEmotionKeywords mark emotionally loaded speech, which invites an
// acknowledgement.
var DefaultEmotionKeywords = []string{
	"amazing", "terrible", "wonderful", "awful", "excited",
	"frustrated", "happy", "sad", "angry", "love", "hate",
}

// DefaultExplicitPrompts are phrases that directly solicit a listener
// response.
var DefaultExplicitPrompts = []string{
	"you know?", "right?", "don't you think?", "isn't it?",
	"you see?", "understand?", "make sense?",
}

// TriggerInput is a snapshot of the conversation at one silence tick.
type TriggerInput struct {
	Silence     time.Duration // current silence run
	Transcript  string        // running transcript of the turn
	SinceLast   time.Duration // time since a backchannel last played
	SpeakingFor time.Duration // how long the user has held this turn
	PlayedAny   bool          // whether any backchannel played this session
}

// Trigger decides whether a silence tick warrants a backchannel. The
// decision is a hard gate followed by a probability roll with contextual
// modifiers.
type Trigger struct {
	BaseProbability float64
	MinInterval     time.Duration
	WindowLow       time.Duration // silence gate lower bound
	WindowHigh      time.Duration // silence gate upper bound

	emotionKeywords map[string]bool
	explicitPrompts []string
	roll            func() float64
}

// NewTrigger builds a trigger with the standard gate window and keyword
// sets. A nil roll uses the global math/rand source.
func NewTrigger(baseProbability float64, minInterval time.Duration, roll func() float64) *Trigger {
	if roll == nil {
		roll = rand.Float64
	}
	keywords := make(map[string]bool, len(DefaultEmotionKeywords))
	for _, w := range DefaultEmotionKeywords {
		keywords[w] = true
	}
	return &Trigger{
		BaseProbability: baseProbability,
		MinInterval:     minInterval,
		WindowLow:       300 * time.Millisecond,
		WindowHigh:      700 * time.Millisecond,
		emotionKeywords: keywords,
		explicitPrompts: DefaultExplicitPrompts,
		roll:            roll,
	}
}

// Decide returns whether to schedule a backchannel now, and the computed
// probability for observability.
func (t *Trigger) Decide(in TriggerInput) (bool, float64) {
	if !t.gate(in) {
		return false, 0
	}
	p := t.probability(in)
	return t.roll() < p, p
}

// gate applies the hard preconditions: a natural short pause, enough
// elapsed since the last backchannel, and enough speech to react to.
func (t *Trigger) gate(in TriggerInput) bool {
	if in.Silence < t.WindowLow || in.Silence > t.WindowHigh {
		return false
	}
	if in.PlayedAny && in.SinceLast < t.MinInterval {
		return false
	}
	if countSentences(in.Transcript) < 2 {
		return false
	}
	if len(strings.Fields(in.Transcript)) < 5 {
		return false
	}
	return true
}

func (t *Trigger) probability(in TriggerInput) float64 {
	p := t.BaseProbability
	lower := strings.ToLower(in.Transcript)

	if t.hasEmotionKeyword(lower) {
		p += 0.3
	}
	if t.hasExplicitPrompt(lower) {
		p += 0.5
	}
	if in.PlayedAny && in.SinceLast < 8*time.Second {
		p -= 0.2
	}
	if in.SpeakingFor < 3*time.Second {
		p -= 0.3
	}
	if endsWithSentencePunct(lower) {
		p += 0.2
	}

	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

func (t *Trigger) hasEmotionKeyword(lower string) bool {
	for _, w := range strings.Fields(lower) {
		if t.emotionKeywords[strings.Trim(w, ".,!?;:")] {
			return true
		}
	}
	return false
}

func (t *Trigger) hasExplicitPrompt(lower string) bool {
	for _, phrase := range t.explicitPrompts {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func endsWithSentencePunct(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?")
}

func countSentences(s string) int {
	n := strings.Count(s, ".") + strings.Count(s, "?") + strings.Count(s, "!")
	if n == 0 && strings.TrimSpace(s) != "" {
		n = 1
	}
	return n
}
