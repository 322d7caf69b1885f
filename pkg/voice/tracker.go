// Package voice turns per-frame VAD probabilities into speaking-state
// transitions and a silence clock. It is the sole source of the
// speech:started, speech:ended and silence_tick events the rest of the
// decision core keys off.
package voice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/drewpri411/kaathumaaa/pkg/ai/vad"
	"github.com/drewpri411/kaathumaaa/pkg/bus"
	"github.com/drewpri411/kaathumaaa/pkg/config"
	"github.com/drewpri411/kaathumaaa/pkg/rtc"
)

// SpeechInterval is one closed or still-open speech run. End.IsZero()
// means the run is ongoing.
type SpeechInterval struct {
	Start time.Time
	End   time.Time
}

// Open reports whether the interval has not yet been closed.
func (i SpeechInterval) Open() bool { return i.End.IsZero() }

// Duration returns the interval length; for an open interval, the length
// up to now.
func (i SpeechInterval) Duration(now time.Time) time.Duration {
	if i.Open() {
		return now.Sub(i.Start)
	}
	return i.End.Sub(i.Start)
}

// Tracker classifies each capture frame as voiced or unvoiced and applies
// hysteresis in both directions: a transition requires K consecutive frames
// contradicting the current state, which suppresses flicker on plosives and
// breath noise.
//
// All timing is derived from frame capture timestamps, not the wall clock,
// so replayed audio produces identical transitions.
type Tracker struct {
	vad  vad.VAD
	bus  *bus.Bus
	log  *slog.Logger
	opts Options

	mu        sync.Mutex
	speaking  bool
	streak    int       // consecutive frames contradicting the current state
	streakAt  time.Time // capture time of the first frame of the streak
	intervals []SpeechInterval
	sub       *bus.Subscription
}

// Options are the tracker tunables, lifted from the VAD and turn config.
type Options struct {
	Threshold  float32       // voiced when probability >= Threshold
	Hysteresis int           // consecutive frames required to transition
	ShortPause time.Duration // silence band floor
	LongPause  time.Duration // silence band ceiling
}

// OptionsFromConfig derives tracker options from the loaded config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Threshold:  cfg.VAD.Threshold,
		Hysteresis: cfg.VAD.HysteresisFrames,
		ShortPause: cfg.Turn.ShortPause,
		LongPause:  cfg.Turn.LongPause,
	}
}

// NewTracker wires a tracker to the session bus. It subscribes to the frame
// topic and starts classifying immediately.
func NewTracker(v vad.VAD, b *bus.Bus, opts Options, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	if opts.Hysteresis < 1 {
		opts.Hysteresis = 1
	}
	t := &Tracker{vad: v, bus: b, log: log, opts: opts}
	t.sub = b.MustSubscribe(bus.TopicAudioFrame, func(ev bus.Event) {
		p, ok := ev.Payload.(bus.FramePayload)
		if !ok {
			return
		}
		t.Process(context.Background(), p.Frame)
	})
	return t
}

// Close detaches the tracker from the bus.
func (t *Tracker) Close() error {
	if t.sub != nil {
		return t.sub.Cancel()
	}
	return nil
}

// Process classifies one frame and publishes any resulting transition or
// silence tick. A VAD failure skips the frame without changing state.
func (t *Tracker) Process(ctx context.Context, frame *rtc.AudioFrame) {
	prob, err := t.vad.Probability(ctx, frame)
	if err != nil {
		t.log.Warn("vad inference failed, frame skipped", "seq", frame.Seq, "error", err)
		return
	}
	voiced := prob >= t.opts.Threshold
	frameEnd := frame.CapturedAt.Add(frame.Duration())

	t.mu.Lock()
	var events []func()
	if voiced != t.speaking {
		if t.streak == 0 {
			t.streakAt = frame.CapturedAt
		}
		t.streak++
		if t.streak >= t.opts.Hysteresis {
			events = append(events, t.transitionLocked(voiced))
		}
	} else {
		t.streak = 0
	}

	// The silence clock runs from the last closed interval's end. Frames
	// inside the not-yet-confirmed unvoiced streak still count as speech.
	if !t.speaking && len(t.intervals) > 0 {
		last := t.intervals[len(t.intervals)-1]
		d := frameEnd.Sub(last.End)
		tick := bus.SilenceTickPayload{
			At:             frameEnd,
			Duration:       d,
			Band:           t.classify(d),
			SpeechDuration: last.End.Sub(last.Start),
		}
		events = append(events, func() { t.bus.Publish(bus.TopicSilenceTick, tick) })
	}
	t.mu.Unlock()

	for _, fire := range events {
		fire()
	}
}

// transitionLocked flips the speaking state, dated to the start of the
// streak that confirmed it, and returns the publish closure to run outside
// the lock.
func (t *Tracker) transitionLocked(speaking bool) func() {
	at := t.streakAt
	t.speaking = speaking
	t.streak = 0

	if speaking {
		resumed := false
		if n := len(t.intervals); n > 0 {
			prev := t.intervals[n-1]
			if prev.Open() {
				panic(fmt.Sprintf("voice: speech started at %v with interval still open since %v", at, prev.Start))
			}
			if !at.After(prev.End) {
				panic(fmt.Sprintf("voice: speech start %v not after previous end %v", at, prev.End))
			}
			resumed = at.Sub(prev.End) < t.opts.LongPause
		}
		t.intervals = append(t.intervals, SpeechInterval{Start: at})
		payload := bus.SpeechPayload{At: at, Resumed: resumed}
		return func() { t.bus.Publish(bus.TopicSpeechStarted, payload) }
	}

	n := len(t.intervals)
	if n == 0 || !t.intervals[n-1].Open() {
		panic(fmt.Sprintf("voice: speech ended at %v with no open interval", at))
	}
	t.intervals[n-1].End = at
	payload := bus.SpeechPayload{At: at}
	return func() { t.bus.Publish(bus.TopicSpeechEnded, payload) }
}

func (t *Tracker) classify(d time.Duration) bus.SilenceBand {
	switch {
	case d >= t.opts.LongPause:
		return bus.BandLong
	case d >= t.opts.ShortPause:
		return bus.BandShort
	default:
		return bus.BandNone
	}
}

// Speaking reports the current hysteresis-confirmed state.
func (t *Tracker) Speaking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.speaking
}

// Intervals returns a copy of the recorded speech intervals.
func (t *Tracker) Intervals() []SpeechInterval {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SpeechInterval, len(t.intervals))
	copy(out, t.intervals)
	return out
}

// SilenceSince reports the running silence duration as of now, zero while
// speaking or before any speech has occurred.
func (t *Tracker) SilenceSince(now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.speaking || len(t.intervals) == 0 {
		return 0
	}
	last := t.intervals[len(t.intervals)-1]
	if last.Open() {
		return 0
	}
	return now.Sub(last.End)
}

// Reset clears interval history between turns. The VAD keeps its internal
// state; only the bookkeeping resets.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.speaking = false
	t.streak = 0
	t.intervals = nil
}
