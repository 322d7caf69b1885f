// Package vad defines the voice-activity-detection collaborator boundary.
// The model itself is a black box: one frame in, one speech probability out.
package vad

import (
	"context"

	"github.com/drewpri411/kaathumaaa/pkg/rtc"
)

// Capabilities describes a VAD provider.
type Capabilities struct {
	SampleRates []int
	ModelBacked bool // false for heuristic detectors
}

// VAD scores one frame at a time. Implementations may keep internal model
// state across calls (recurrent models do), so a VAD instance belongs to a
// single session and is not safe for concurrent use.
type VAD interface {
	// Probability returns the speech probability in [0,1] for one frame.
	Probability(ctx context.Context, frame *rtc.AudioFrame) (float32, error)

	// Reset clears internal model state between turns or sessions.
	Reset()

	// Capabilities returns the provider's capabilities.
	Capabilities() Capabilities
}
