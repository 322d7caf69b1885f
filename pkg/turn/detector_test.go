package turn

import (
	"math"
	"testing"
	"time"

	"github.com/drewpri411/kaathumaaa/pkg/bus"
	"github.com/drewpri411/kaathumaaa/pkg/config"
	"github.com/drewpri411/kaathumaaa/pkg/linguistic"
)

func testTurnConfig() config.TurnConfig {
	return config.TurnConfig{
		ShortPause:       400 * time.Millisecond,
		LongPause:        1500 * time.Millisecond,
		SilenceWeight:    0.40,
		LinguisticWeight: 0.35,
		ContextWeight:    0.25,
		EndThreshold:     65,
		ContextDecay:     0.30,
		HistoryTurns:     5,
	}
}

type harness struct {
	bus       *bus.Bus
	detector  *Detector
	evaluated []bus.TurnScore
	ended     []bus.TurnEndedPayload
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{bus: bus.New(nil)}
	h.bus.MustSubscribe(bus.TopicTurnEvaluated, func(ev bus.Event) {
		h.evaluated = append(h.evaluated, ev.Payload.(bus.TurnScore))
	})
	h.bus.MustSubscribe(bus.TopicTurnEnded, func(ev bus.Event) {
		h.ended = append(h.ended, ev.Payload.(bus.TurnEndedPayload))
	})
	h.detector = NewDetector(testTurnConfig(), linguistic.NewAnalyzer(nil), h.bus, nil)
	t.Cleanup(func() { h.detector.Close() })
	return h
}

func (h *harness) startTurn() {
	h.bus.Publish(bus.TopicStateChanged, bus.StatePayload{Old: "IDLE", New: "USER_SPEAKING", At: time.Unix(0, 0)})
}

func (h *harness) speak(d time.Duration) {
	start := time.Unix(10, 0)
	h.bus.Publish(bus.TopicSpeechStarted, bus.SpeechPayload{At: start})
	h.bus.Publish(bus.TopicSpeechEnded, bus.SpeechPayload{At: start.Add(d)})
}

func (h *harness) transcript(text string) {
	h.bus.Publish(bus.TopicTranscriptUpdated, bus.TranscriptPayload{Text: text, Generation: 1})
}

func (h *harness) tick(silence time.Duration) {
	h.bus.Publish(bus.TopicSilenceTick, bus.SilenceTickPayload{Duration: silence})
}

func TestLongSilenceAfterCompleteSentenceEndsTurn(t *testing.T) {
	h := newHarness(t)
	h.startTurn()
	h.speak(time.Second)
	h.transcript("I went to the store yesterday.")
	h.tick(1600 * time.Millisecond)

	if len(h.ended) != 1 {
		t.Fatalf("got %d turn ends, want 1", len(h.ended))
	}
	score := h.ended[0].Score
	if score.Silence != 100 {
		t.Errorf("silence score %d, want 100 for 1600ms", score.Silence)
	}
	if score.Linguistic != 90 {
		t.Errorf("linguistic score %d, want 90", score.Linguistic)
	}
	if score.Context != 40 {
		t.Errorf("context score %d, want 40", score.Context)
	}
	want := 0.40*100 + 0.35*90 + 0.25*40
	if math.Abs(score.Fused-want) > 1e-9 {
		t.Errorf("fused %v, want %v", score.Fused, want)
	}
	if h.ended[0].Transcript != "I went to the store yesterday." {
		t.Errorf("turn end carries transcript %q", h.ended[0].Transcript)
	}
}

func TestShortPauseMidUtteranceContinuesTurn(t *testing.T) {
	h := newHarness(t)
	h.startTurn()
	h.speak(time.Second)
	h.transcript("I went to the store yesterday.")
	h.tick(300 * time.Millisecond)

	if len(h.ended) != 0 {
		t.Fatalf("turn ended on a 300ms pause: %+v", h.ended)
	}
	last := h.evaluated[len(h.evaluated)-1]
	if last.Silence != 0 {
		t.Errorf("silence score %d, want 0 below the short-pause floor", last.Silence)
	}
}

func TestSilenceScoreIsLinearBetweenBands(t *testing.T) {
	h := newHarness(t)
	h.startTurn()
	h.transcript("um okay") // keep linguistic low so the turn never ends
	h.tick(950 * time.Millisecond)

	last := h.evaluated[len(h.evaluated)-1]
	if last.Silence != 50 {
		t.Errorf("silence score %d at the midpoint, want 50", last.Silence)
	}

	h.tick(400 * time.Millisecond)
	if got := h.evaluated[len(h.evaluated)-1].Silence; got != 0 {
		t.Errorf("silence score %d at the floor, want 0", got)
	}
	h.tick(1500 * time.Millisecond)
	if got := h.evaluated[len(h.evaluated)-1].Silence; got != 100 {
		t.Errorf("silence score %d at the ceiling, want 100", got)
	}
}

func TestTurnEndFiresExactlyOnce(t *testing.T) {
	h := newHarness(t)
	h.startTurn()
	h.speak(time.Second)
	h.transcript("I went to the store yesterday.")
	h.tick(1600 * time.Millisecond)
	h.tick(1700 * time.Millisecond)
	h.tick(2 * time.Second)

	if len(h.ended) != 1 {
		t.Fatalf("got %d turn ends, want exactly 1", len(h.ended))
	}
}

func TestNoTurnEndOutsideUserSpeaking(t *testing.T) {
	h := newHarness(t)
	// Never entered USER_SPEAKING.
	h.transcript("I went to the store yesterday.")
	h.tick(2 * time.Second)
	if len(h.evaluated) != 0 || len(h.ended) != 0 {
		t.Fatalf("detector evaluated outside USER_SPEAKING: %d/%d", len(h.evaluated), len(h.ended))
	}

	h.startTurn()
	h.bus.Publish(bus.TopicStateChanged, bus.StatePayload{Old: "USER_SPEAKING", New: "PROCESSING", At: time.Now()})
	h.tick(2 * time.Second)
	if len(h.ended) != 0 {
		t.Fatal("turn ended while PROCESSING")
	}
}

func TestOneShotRearmsOnNewTurn(t *testing.T) {
	h := newHarness(t)
	h.startTurn()
	h.speak(time.Second)
	h.transcript("I went to the store yesterday.")
	h.tick(1600 * time.Millisecond)

	h.bus.Publish(bus.TopicStateChanged, bus.StatePayload{Old: "USER_SPEAKING", New: "PROCESSING", At: time.Now()})
	h.startTurn()
	h.speak(time.Second)
	h.transcript("Then I came right back home.")
	h.tick(1600 * time.Millisecond)

	if len(h.ended) != 2 {
		t.Fatalf("got %d turn ends across two turns, want 2", len(h.ended))
	}
}

func TestCloseTurnUpdatesHistoryExponentially(t *testing.T) {
	cfg := testTurnConfig()
	cfg.HistoryTurns = 1 // decay from the second turn on
	d := NewDetector(cfg, linguistic.NewAnalyzer(nil), bus.New(nil), nil)
	t.Cleanup(func() { d.Close() })

	d.CloseTurn(10*time.Second, 20, 2)
	stats := d.History()
	if stats.Samples != 1 || stats.AvgDuration != 10 {
		t.Fatalf("first close: %+v", stats)
	}

	d.CloseTurn(20*time.Second, 40, 4)
	stats = d.History()
	want := 0.30*20 + 0.70*10
	if math.Abs(stats.AvgDuration-want) > 1e-9 {
		t.Errorf("AvgDuration %v, want %v", stats.AvgDuration, want)
	}
	if math.Abs(stats.AvgWords-(0.30*40+0.70*20)) > 1e-9 {
		t.Errorf("AvgWords %v", stats.AvgWords)
	}
	if stats.Samples != 2 {
		t.Errorf("Samples %d, want 2", stats.Samples)
	}
}

func TestCloseTurnAveragesWithinHistoryWindow(t *testing.T) {
	cfg := testTurnConfig()
	cfg.HistoryTurns = 3
	d := NewDetector(cfg, linguistic.NewAnalyzer(nil), bus.New(nil), nil)
	t.Cleanup(func() { d.Close() })

	// The first history_turns outcomes are a plain cumulative mean.
	d.CloseTurn(10*time.Second, 10, 1)
	d.CloseTurn(20*time.Second, 20, 2)
	if stats := d.History(); math.Abs(stats.AvgDuration-15) > 1e-9 {
		t.Errorf("AvgDuration after 2 turns = %v, want 15", stats.AvgDuration)
	}
	d.CloseTurn(30*time.Second, 30, 3)
	stats := d.History()
	if math.Abs(stats.AvgDuration-20) > 1e-9 {
		t.Errorf("AvgDuration after 3 turns = %v, want 20", stats.AvgDuration)
	}
	if math.Abs(stats.AvgWords-20) > 1e-9 {
		t.Errorf("AvgWords after 3 turns = %v, want 20", stats.AvgWords)
	}

	// Beyond the window the configured decay weights the new outcome.
	d.CloseTurn(40*time.Second, 40, 4)
	stats = d.History()
	want := 0.30*40 + 0.70*20
	if math.Abs(stats.AvgDuration-want) > 1e-9 {
		t.Errorf("AvgDuration after 4 turns = %v, want %v", stats.AvgDuration, want)
	}
	if stats.Samples != 4 {
		t.Errorf("Samples = %d, want 4", stats.Samples)
	}
}

func TestHistoryNudgesContextScore(t *testing.T) {
	h := newHarness(t)
	// Typical turns are short, so exceeding them nudges toward ending.
	h.detector.CloseTurn(500*time.Millisecond, 3, 1)

	h.startTurn()
	h.speak(time.Second) // above the 0.5s average
	h.transcript("I went to the store yesterday.")
	h.tick(500 * time.Millisecond)

	last := h.evaluated[len(h.evaluated)-1]
	// Base 40 (short turn -10, baseline 50) plus 10 for beating the
	// duration average plus 5 for beating the word average.
	if last.Context != 55 {
		t.Errorf("context score %d, want 55 with history bonuses", last.Context)
	}
}
