// Package turn fuses silence, linguistic and context signals into a single
// end-of-turn decision. The decision fires at most once per turn and only
// while the user holds the floor.
package turn

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/drewpri411/kaathumaaa/pkg/bus"
	"github.com/drewpri411/kaathumaaa/pkg/config"
	"github.com/drewpri411/kaathumaaa/pkg/linguistic"
)

// Stats is the exponentially weighted history of completed turns, used to
// judge the current turn against the speaker's own habits.
type Stats struct {
	AvgDuration  float64 // seconds
	AvgWords     float64
	AvgSentences float64
	Samples      int
}

// Detector recomputes the fused score on every silence tick and transcript
// update. It caches conversation state and transcript from bus events; it
// never reaches into another component.
type Detector struct {
	bus      *bus.Bus
	log      *slog.Logger
	analyzer *linguistic.Analyzer
	cfg      config.TurnConfig

	mu           sync.Mutex
	userSpeaking bool
	fired        bool
	transcript   string
	generation   uint64
	speechTotal  time.Duration // voiced time accumulated this turn
	runStart     time.Time     // start of the current voiced run, zero when silent
	lastSilence  time.Duration
	stats        Stats

	subs []*bus.Subscription
}

// NewDetector wires a detector to the session bus.
func NewDetector(cfg config.TurnConfig, analyzer *linguistic.Analyzer, b *bus.Bus, log *slog.Logger) *Detector {
	if log == nil {
		log = slog.Default()
	}
	d := &Detector{bus: b, log: log, analyzer: analyzer, cfg: cfg}
	d.subs = []*bus.Subscription{
		b.MustSubscribe(bus.TopicStateChanged, d.onStateChanged),
		b.MustSubscribe(bus.TopicSpeechStarted, d.onSpeechStarted),
		b.MustSubscribe(bus.TopicSpeechEnded, d.onSpeechEnded),
		b.MustSubscribe(bus.TopicTranscriptUpdated, d.onTranscript),
		b.MustSubscribe(bus.TopicSilenceTick, d.onSilenceTick),
	}
	return d
}

// Close detaches the detector from the bus.
func (d *Detector) Close() error {
	var first error
	for _, s := range d.subs {
		if err := s.Cancel(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (d *Detector) onStateChanged(ev bus.Event) {
	p, ok := ev.Payload.(bus.StatePayload)
	if !ok {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.userSpeaking = p.New == "USER_SPEAKING"
	if d.userSpeaking && p.Old != "USER_SPEAKING" {
		// New turn: the one-shot rearms and per-turn accumulators clear.
		d.fired = false
		d.transcript = ""
		d.speechTotal = 0
		d.runStart = time.Time{}
		d.lastSilence = 0
	}
}

func (d *Detector) onSpeechStarted(ev bus.Event) {
	p, ok := ev.Payload.(bus.SpeechPayload)
	if !ok {
		return
	}
	d.mu.Lock()
	d.runStart = p.At
	d.lastSilence = 0
	d.mu.Unlock()
}

func (d *Detector) onSpeechEnded(ev bus.Event) {
	p, ok := ev.Payload.(bus.SpeechPayload)
	if !ok {
		return
	}
	d.mu.Lock()
	if !d.runStart.IsZero() {
		d.speechTotal += p.At.Sub(d.runStart)
		d.runStart = time.Time{}
	}
	d.mu.Unlock()
}

func (d *Detector) onTranscript(ev bus.Event) {
	p, ok := ev.Payload.(bus.TranscriptPayload)
	if !ok {
		return
	}
	d.mu.Lock()
	d.transcript = p.Text
	d.generation = p.Generation
	d.mu.Unlock()
	d.evaluate()
}

func (d *Detector) onSilenceTick(ev bus.Event) {
	p, ok := ev.Payload.(bus.SilenceTickPayload)
	if !ok {
		return
	}
	d.mu.Lock()
	d.lastSilence = p.Duration
	d.mu.Unlock()
	d.evaluate()
}

// evaluate recomputes the fused score and publishes the decision. Publishes
// run outside the lock; the one-shot flag is flipped under it, so a second
// tick arriving before the publish completes cannot re-fire.
func (d *Detector) evaluate() {
	d.mu.Lock()
	if !d.userSpeaking || d.fired {
		d.mu.Unlock()
		return
	}
	analysis := d.analyzer.Analyze(d.transcript)
	score := bus.TurnScore{
		Silence:    d.silenceScore(d.lastSilence),
		Linguistic: analysis.Score,
		Context:    d.contextScore(d.speechTotal, analysis),
	}
	score.Fused = d.cfg.SilenceWeight*float64(score.Silence) +
		d.cfg.LinguisticWeight*float64(score.Linguistic) +
		d.cfg.ContextWeight*float64(score.Context)
	score.EndOfTurn = score.Fused >= d.cfg.EndThreshold

	transcript, gen := d.transcript, d.generation
	if score.EndOfTurn {
		d.fired = true
	}
	d.mu.Unlock()

	d.bus.Publish(bus.TopicTurnEvaluated, score)
	if score.EndOfTurn {
		d.log.Info("turn ended",
			"fused", score.Fused,
			"silence", score.Silence,
			"linguistic", score.Linguistic,
			"context", score.Context)
		d.bus.Publish(bus.TopicTurnEnded, bus.TurnEndedPayload{
			Score:      score,
			Transcript: transcript,
			Generation: gen,
		})
	}
}

// silenceScore maps silence duration linearly into 0-100: 0 below the
// short-pause floor, 100 at or above the long-pause ceiling.
func (d *Detector) silenceScore(silence time.Duration) int {
	short, long := d.cfg.ShortPause, d.cfg.LongPause
	switch {
	case silence < short:
		return 0
	case silence >= long:
		return 100
	default:
		frac := float64(silence-short) / float64(long-short)
		return int(math.Round(100 * frac))
	}
}

// contextScore starts from the original heuristic over the current turn's
// shape and nudges it by how the turn compares to the speaker's
// exponentially weighted history.
func (d *Detector) contextScore(speech time.Duration, analysis linguistic.Analysis) int {
	score := 50
	secs := speech.Seconds()
	if secs > 15 {
		score += 20
	} else if secs < 2 {
		score -= 10
	}
	if analysis.WordCount < 5 {
		score -= 20
	}
	if analysis.SentenceCount >= 2 {
		score += 10
	}
	if d.stats.Samples > 0 {
		if secs >= d.stats.AvgDuration {
			score += 10
		}
		if float64(analysis.WordCount) >= d.stats.AvgWords {
			score += 5
		}
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// CloseTurn folds a completed turn into the history. Called by the state
// manager when the agent finishes responding. The first history_turns
// outcomes are averaged cumulatively so early turns carry full weight;
// after that the configured decay takes over.
func (d *Detector) CloseTurn(duration time.Duration, words, sentences int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Samples++
	a := d.cfg.ContextDecay
	if d.stats.Samples <= d.cfg.HistoryTurns {
		a = 1 / float64(d.stats.Samples)
	}
	d.stats.AvgDuration = a*duration.Seconds() + (1-a)*d.stats.AvgDuration
	d.stats.AvgWords = a*float64(words) + (1-a)*d.stats.AvgWords
	d.stats.AvgSentences = a*float64(sentences) + (1-a)*d.stats.AvgSentences
}

// History returns a copy of the turn statistics.
func (d *Detector) History() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}
