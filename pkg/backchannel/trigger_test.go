package backchannel

import (
	"math"
	"testing"
	"time"
)

// gatedInput passes every hard gate: mid short-pause silence, long since the
// last backchannel, plenty of speech.
func gatedInput() TriggerInput {
	return TriggerInput{
		Silence:     500 * time.Millisecond,
		Transcript:  "I went to the store. Then I came back. and after that",
		SinceLast:   time.Minute,
		SpeakingFor: 10 * time.Second,
		PlayedAny:   true,
	}
}

func always() float64 { return 0 }

func TestGateRejections(t *testing.T) {
	tr := NewTrigger(0.4, 5*time.Second, always)

	tests := []struct {
		name   string
		mutate func(*TriggerInput)
	}{
		{"silence below window", func(in *TriggerInput) { in.Silence = 200 * time.Millisecond }},
		{"silence above window", func(in *TriggerInput) { in.Silence = 900 * time.Millisecond }},
		{"too soon after last", func(in *TriggerInput) { in.SinceLast = 2 * time.Second }},
		{"single sentence", func(in *TriggerInput) { in.Transcript = "I went to the store yesterday" }},
		{"too few words", func(in *TriggerInput) { in.Transcript = "okay. sure." }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := gatedInput()
			tt.mutate(&in)
			if fire, _ := tr.Decide(in); fire {
				t.Error("gate should have rejected")
			}
		})
	}

	if fire, _ := tr.Decide(gatedInput()); !fire {
		t.Error("fully gated input with roll 0 should fire")
	}
}

func TestMinIntervalIgnoredBeforeFirstPlay(t *testing.T) {
	tr := NewTrigger(0.4, 5*time.Second, always)
	in := gatedInput()
	in.PlayedAny = false
	in.SinceLast = 0
	if fire, _ := tr.Decide(in); !fire {
		t.Error("min interval must not suppress before anything has played")
	}
}

func TestProbabilityModifiers(t *testing.T) {
	tr := NewTrigger(0.4, 5*time.Second, always)

	tests := []struct {
		name   string
		mutate func(*TriggerInput)
		want   float64
	}{
		{"base", func(*TriggerInput) {}, 0.4},
		{"emotion keyword", func(in *TriggerInput) {
			in.Transcript = "It was amazing. We stayed up all night. and then"
		}, 0.7},
		{"explicit prompt", func(in *TriggerInput) {
			in.Transcript = "It was far, you know? We kept going. after that"
		}, 0.9},
		{"recent backchannel", func(in *TriggerInput) { in.SinceLast = 6 * time.Second }, 0.2},
		{"just started speaking", func(in *TriggerInput) { in.SpeakingFor = 2 * time.Second }, 0.1},
		{"sentence boundary", func(in *TriggerInput) {
			in.Transcript = "I went to the store. Then I came back home."
		}, 0.6},
		{"clamped at one", func(in *TriggerInput) {
			in.Transcript = "It was amazing, right? We stayed up all night."
		}, 1.0}, // 0.4 + 0.3 + 0.5 + 0.2 caps
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := gatedInput()
			tt.mutate(&in)
			_, got := tr.Decide(in)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("probability %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRollDecides(t *testing.T) {
	low := NewTrigger(0.4, 5*time.Second, func() float64 { return 0.39 })
	high := NewTrigger(0.4, 5*time.Second, func() float64 { return 0.41 })

	if fire, _ := low.Decide(gatedInput()); !fire {
		t.Error("roll below probability should fire")
	}
	if fire, _ := high.Decide(gatedInput()); fire {
		t.Error("roll above probability should not fire")
	}
}
