package backchannel

import (
	"testing"
	"time"

	"github.com/drewpri411/kaathumaaa/pkg/bus"
	"github.com/drewpri411/kaathumaaa/pkg/config"
)

type schedulerHarness struct {
	bus       *bus.Bus
	system    *System
	safeZone  func() // runs the captured safe-zone callback
	scheduled []string
	playing   []bus.BackchannelPayload
	aborted   []string
}

func newSchedulerHarness(t *testing.T) *schedulerHarness {
	t.Helper()
	h := &schedulerHarness{bus: bus.New(nil)}
	h.bus.MustSubscribe(bus.TopicBackchannelScheduled, func(ev bus.Event) {
		h.scheduled = append(h.scheduled, ev.Payload.(bus.BackchannelPayload).Type)
	})
	h.bus.MustSubscribe(bus.TopicBackchannelPlaying, func(ev bus.Event) {
		h.playing = append(h.playing, ev.Payload.(bus.BackchannelPayload))
	})
	h.bus.MustSubscribe(bus.TopicBackchannelAborted, func(ev bus.Event) {
		h.aborted = append(h.aborted, ev.Payload.(bus.BackchannelPayload).Type)
	})

	cfg := config.BackchannelConfig{
		BaseProbability: 1.0,
		MinInterval:     5 * time.Second,
		SafeZone:        300 * time.Millisecond,
		Volume:          0.5,
	}
	h.system = NewSystem(cfg, fullLibrary(), h.bus, nil)
	h.system.trigger.roll = func() float64 { return 0 }
	h.system.selector.roll = func() float64 { return 0 }
	h.system.now = func() time.Time { return time.Unix(100, 0) }
	h.safeZone = func() { t.Fatal("no safe-zone timer armed") }
	h.system.after = func(d time.Duration, f func()) *time.Timer {
		if d != 300*time.Millisecond {
			t.Errorf("safe zone armed for %v, want 300ms", d)
		}
		h.safeZone = f
		return time.NewTimer(time.Hour) // never fires on its own
	}
	t.Cleanup(func() { h.system.Close() })
	return h
}

func (h *schedulerHarness) startTurn() {
	// Turn started long enough ago that speaking-duration modifiers
	// cannot suppress the roll.
	h.bus.Publish(bus.TopicStateChanged, bus.StatePayload{
		Old: "IDLE", New: "USER_SPEAKING", At: time.Unix(90, 0),
	})
	h.bus.Publish(bus.TopicTranscriptUpdated, bus.TranscriptPayload{
		Text: "I went to the store. Then I came back. and after that",
	})
}

func (h *schedulerHarness) tick() {
	h.bus.Publish(bus.TopicSilenceTick, bus.SilenceTickPayload{Duration: 500 * time.Millisecond})
}

func TestTickSchedulesPendingEvent(t *testing.T) {
	h := newSchedulerHarness(t)
	h.startTurn()
	h.tick()

	if len(h.scheduled) != 1 {
		t.Fatalf("got %d scheduled, want 1", len(h.scheduled))
	}
	live := h.system.Live()
	if live == nil || live.State != StatePending {
		t.Fatalf("live event %+v, want PENDING", live)
	}
	if len(h.playing) != 0 {
		t.Error("nothing should play before the safe zone elapses")
	}
}

func TestSafeZoneElapsesIntoPlaying(t *testing.T) {
	h := newSchedulerHarness(t)
	h.startTurn()
	h.tick()
	h.safeZone()

	if len(h.playing) != 1 {
		t.Fatalf("got %d playing events, want 1", len(h.playing))
	}
	if len(h.playing[0].Frames) == 0 {
		t.Error("playing event must carry the clip frames for the mixer")
	}
	if live := h.system.Live(); live == nil || live.State != StatePlaying {
		t.Fatalf("live event %+v, want PLAYING", live)
	}
}

func TestSpeechDuringSafeZoneAborts(t *testing.T) {
	h := newSchedulerHarness(t)
	h.startTurn()
	h.tick()

	h.bus.Publish(bus.TopicSpeechStarted, bus.SpeechPayload{At: time.Unix(101, 0)})

	if len(h.aborted) != 1 {
		t.Fatalf("got %d aborts, want 1", len(h.aborted))
	}
	if h.system.Live() != nil {
		t.Error("aborted event should clear the live slot")
	}

	// The stale timer callback must be a no-op.
	h.safeZone()
	if len(h.playing) != 0 {
		t.Error("aborted backchannel must never reach the mixer")
	}
}

func TestTurnEndDuringSafeZoneAborts(t *testing.T) {
	h := newSchedulerHarness(t)
	h.startTurn()
	h.tick()

	h.bus.Publish(bus.TopicTurnEnded, bus.TurnEndedPayload{})

	if len(h.aborted) != 1 {
		t.Fatalf("got %d aborts, want 1", len(h.aborted))
	}
	h.safeZone()
	if len(h.playing) != 0 {
		t.Error("aborted backchannel must never reach the mixer")
	}

	// And no new event schedules for the rest of the ended turn.
	h.tick()
	if len(h.scheduled) != 1 {
		t.Errorf("scheduled %d events after turn end, want no more", len(h.scheduled)-1)
	}
}

func TestAtMostOneLiveEvent(t *testing.T) {
	h := newSchedulerHarness(t)
	h.startTurn()
	h.tick()
	h.tick()
	h.tick()

	if len(h.scheduled) != 1 {
		t.Fatalf("got %d scheduled with one pending, want 1", len(h.scheduled))
	}

	h.safeZone()
	h.tick()
	if len(h.scheduled) != 1 {
		t.Errorf("scheduled a second event while one is playing")
	}

	// Playback completion frees the slot; the next turn may schedule again.
	h.bus.Publish(bus.TopicBackchannelDone, bus.BackchannelPayload{})
	if h.system.Live() != nil {
		t.Error("done event should clear the live slot")
	}
}

func TestMinIntervalSuppresssNextTrigger(t *testing.T) {
	h := newSchedulerHarness(t)
	h.startTurn()
	h.tick()
	h.safeZone() // plays at t=100s
	h.bus.Publish(bus.TopicBackchannelDone, bus.BackchannelPayload{})

	// 2 seconds later is inside the 5 second minimum interval.
	h.system.now = func() time.Time { return time.Unix(102, 0) }
	h.tick()
	if len(h.scheduled) != 1 {
		t.Fatalf("scheduled again %v after last play, inside min interval", 2*time.Second)
	}

	h.system.now = func() time.Time { return time.Unix(110, 0) }
	h.tick()
	if len(h.scheduled) != 2 {
		t.Errorf("got %d scheduled after min interval passed, want 2", len(h.scheduled))
	}
}
