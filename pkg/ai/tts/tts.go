// Package tts defines the speech-synthesis collaborator boundary.
package tts

import (
	"context"

	"github.com/drewpri411/kaathumaaa/pkg/rtc"
)

// SynthesizeRequest contains the text to speak and voice parameters.
type SynthesizeRequest struct {
	Text  string
	Voice string
	Speed float32
}

// Capabilities describes a TTS provider.
type Capabilities struct {
	SupportedVoices []string
	SampleRates     []int
}

// TTS converts text to audio frames. The returned channel closes when
// synthesis completes or the context is canceled; frames match the session's
// configured sample rate and frame duration.
type TTS interface {
	Synthesize(ctx context.Context, req SynthesizeRequest) (<-chan *rtc.AudioFrame, error)

	// Capabilities returns the provider's capabilities.
	Capabilities() Capabilities
}
