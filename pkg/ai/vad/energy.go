package vad

import (
	"context"
	"math"

	"github.com/drewpri411/kaathumaaa/pkg/rtc"
)

// EnergyVAD is a pure-Go detector based on RMS energy. It is the fallback
// when no ONNX model is available; the probability it reports is a smoothed
// ratio of frame energy to a noise floor, not a model posterior.
type EnergyVAD struct {
	noiseFloor float64 // adaptive RMS estimate of background noise
	speechRef  float64 // RMS considered fully confident speech
}

// NewEnergyVAD creates an energy detector tuned for 16 kHz speech.
func NewEnergyVAD() *EnergyVAD {
	return &EnergyVAD{
		noiseFloor: 0.004,
		speechRef:  0.04,
	}
}

// Probability maps normalized RMS into [0,1] between the noise floor and the
// speech reference level. The noise floor adapts slowly downward so a quiet
// room tightens the detector over time.
func (v *EnergyVAD) Probability(_ context.Context, frame *rtc.AudioFrame) (float32, error) {
	level := rms(frame.Samples())

	if level < v.noiseFloor {
		// slow decay toward the observed quiet level
		v.noiseFloor = 0.95*v.noiseFloor + 0.05*level
		return 0, nil
	}
	p := (level - v.noiseFloor) / (v.speechRef - v.noiseFloor)
	if p > 1 {
		p = 1
	}
	return float32(p), nil
}

// Reset restores the initial noise floor.
func (v *EnergyVAD) Reset() {
	v.noiseFloor = 0.004
}

// Capabilities reports the heuristic detector's capabilities.
func (v *EnergyVAD) Capabilities() Capabilities {
	return Capabilities{SampleRates: []int{8000, 16000, 48000}, ModelBacked: false}
}

func rms(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}
