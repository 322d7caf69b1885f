// Package fake provides a scripted VAD for testing.
package fake

import (
	"context"

	"github.com/drewpri411/kaathumaaa/pkg/ai/vad"
	"github.com/drewpri411/kaathumaaa/pkg/rtc"
)

// FakeVAD replays a fixed sequence of probabilities, one per frame. When the
// script is exhausted it repeats the final value.
type FakeVAD struct {
	script []float32
	pos    int
}

// NewFakeVAD creates a fake VAD from a probability script.
func NewFakeVAD(script ...float32) *FakeVAD {
	if len(script) == 0 {
		script = []float32{0}
	}
	return &FakeVAD{script: script}
}

// Probability returns the next scripted value.
func (f *FakeVAD) Probability(_ context.Context, _ *rtc.AudioFrame) (float32, error) {
	p := f.script[f.pos]
	if f.pos < len(f.script)-1 {
		f.pos++
	}
	return p, nil
}

// Reset rewinds the script.
func (f *FakeVAD) Reset() { f.pos = 0 }

// Capabilities returns permissive fake capabilities.
func (f *FakeVAD) Capabilities() vad.Capabilities {
	return vad.Capabilities{SampleRates: []int{16000, 48000}}
}
