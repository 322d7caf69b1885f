// Package stt defines the speech-to-text collaborator boundary: one audio
// chunk in, one transcript fragment out. Chunked request/response fits the
// overlapping-window transcription model; consecutive chunks may be in
// flight concurrently and are correlated back by chunk sequence.
package stt

import (
	"context"
	"time"

	"github.com/drewpri411/kaathumaaa/pkg/rtc"
)

// Fragment is the recognized text for one chunk, tagged with the chunk's
// identity so out-of-order responses can be reordered before merging.
type Fragment struct {
	Text     string
	ChunkSeq uint64
	Start    time.Time
	End      time.Time
}

// Capabilities describes an STT provider.
type Capabilities struct {
	SupportedLanguages []string
	SampleRates        []int
}

// STT transcribes one chunk per call. Implementations must be safe for
// concurrent calls; the transcription coordinator overlaps requests for
// consecutive chunks.
type STT interface {
	// TranscribeChunk recognizes the chunk's audio. An empty Text with a nil
	// error means the provider heard nothing; the caller drops the fragment.
	TranscribeChunk(ctx context.Context, chunk *rtc.AudioChunk) (Fragment, error)

	// Capabilities returns the provider's capabilities.
	Capabilities() Capabilities
}
