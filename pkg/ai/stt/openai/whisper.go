// Package openai implements STT over the OpenAI Whisper transcription API.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/drewpri411/kaathumaaa/pkg/ai"
	"github.com/drewpri411/kaathumaaa/pkg/ai/stt"
	"github.com/drewpri411/kaathumaaa/pkg/audio/wav"
	"github.com/drewpri411/kaathumaaa/pkg/rtc"
)

// WhisperSTT transcribes chunks through the Whisper API. Each chunk is
// wrapped in an in-memory WAV container for upload.
type WhisperSTT struct {
	client   *goopenai.Client
	model    string
	language string
	log      *slog.Logger
}

// Config holds configuration for the Whisper provider.
type Config struct {
	APIKey   string
	Model    string // default whisper-1
	Language string // empty for auto-detect
}

// NewWhisperSTT creates a Whisper chunk transcriber.
func NewWhisperSTT(cfg Config, log *slog.Logger) (*WhisperSTT, error) {
	if cfg.APIKey == "" {
		return nil, ai.NewFatalError(nil, "OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = goopenai.Whisper1
	}
	if log == nil {
		log = slog.Default()
	}
	return &WhisperSTT{
		client:   goopenai.NewClient(cfg.APIKey),
		model:    cfg.Model,
		language: cfg.Language,
		log:      log,
	}, nil
}

// TranscribeChunk uploads the chunk as WAV and returns the recognized text.
func (w *WhisperSTT) TranscribeChunk(ctx context.Context, chunk *rtc.AudioChunk) (stt.Fragment, error) {
	start := time.Now()

	resp, err := w.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    w.model,
		FilePath: "chunk.wav",
		Reader:   bytes.NewReader(wav.Encode(chunk.PCM(), chunk.SampleRate(), 1)),
		Language: w.language,
	})
	if err != nil {
		return stt.Fragment{}, ai.NewRecoverableError(err, fmt.Sprintf("whisper transcription failed for chunk %d", chunk.Seq))
	}

	w.log.Debug("chunk transcribed",
		"chunk", chunk.Seq,
		"latency", time.Since(start),
		"chars", len(resp.Text))

	return stt.Fragment{
		Text:     resp.Text,
		ChunkSeq: chunk.Seq,
		Start:    chunk.Start,
		End:      chunk.End,
	}, nil
}

// Capabilities returns the provider's capabilities.
func (w *WhisperSTT) Capabilities() stt.Capabilities {
	return stt.Capabilities{
		SupportedLanguages: []string{"en", "es", "de", "fr", "ja", "zh", "pt", "ru"},
		SampleRates:        []int{16000, 22050, 44100, 48000},
	}
}
