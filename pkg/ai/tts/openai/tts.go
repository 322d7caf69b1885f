// Package openai implements TTS over the OpenAI speech API. Responses are
// MP3; they are decoded, downmixed to mono, and resampled to the session's
// capture rate before being framed.
package openai

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	mp3 "github.com/hajimehoshi/go-mp3"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/drewpri411/kaathumaaa/pkg/ai"
	"github.com/drewpri411/kaathumaaa/pkg/ai/tts"
	"github.com/drewpri411/kaathumaaa/pkg/rtc"
)

// SpeechTTS synthesizes through the OpenAI speech API.
type SpeechTTS struct {
	client        *goopenai.Client
	model         string
	voice         string
	sampleRate    int
	frameDuration time.Duration
	log           *slog.Logger
}

// Config holds configuration for the speech provider.
type Config struct {
	APIKey        string
	Model         string // default tts-1
	Voice         string // default alloy
	SampleRate    int    // output frame rate, default 16000
	FrameDuration time.Duration
}

// NewSpeechTTS creates an OpenAI speech provider.
func NewSpeechTTS(cfg Config, log *slog.Logger) (*SpeechTTS, error) {
	if cfg.APIKey == "" {
		return nil, ai.NewFatalError(nil, "OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "tts-1"
	}
	if cfg.Voice == "" {
		cfg.Voice = "alloy"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.FrameDuration == 0 {
		cfg.FrameDuration = 30 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &SpeechTTS{
		client:        goopenai.NewClient(cfg.APIKey),
		model:         cfg.Model,
		voice:         cfg.Voice,
		sampleRate:    cfg.SampleRate,
		frameDuration: cfg.FrameDuration,
		log:           log,
	}, nil
}

// Synthesize requests speech and streams decoded PCM frames.
func (s *SpeechTTS) Synthesize(ctx context.Context, req tts.SynthesizeRequest) (<-chan *rtc.AudioFrame, error) {
	voice := s.voice
	if req.Voice != "" {
		voice = req.Voice
	}

	speechReq := goopenai.CreateSpeechRequest{
		Model: goopenai.SpeechModel(s.model),
		Input: req.Text,
		Voice: goopenai.SpeechVoice(voice),
	}
	if req.Speed > 0 {
		speechReq.Speed = float64(req.Speed)
	}

	resp, err := s.client.CreateSpeech(ctx, speechReq)
	if err != nil {
		return nil, ai.NewRecoverableError(err, "speech synthesis failed")
	}

	out := make(chan *rtc.AudioFrame, 16)
	go func() {
		defer close(out)
		defer resp.Close()

		start := time.Now()
		pcm, err := s.decode(resp)
		if err != nil {
			s.log.Warn("tts decode failed", "error", err)
			return
		}
		s.log.Debug("tts synthesis decoded",
			"latency", time.Since(start),
			"duration", time.Duration(len(pcm)/2)*time.Second/time.Duration(s.sampleRate))

		samplesPerFrame := int(s.frameDuration * time.Duration(s.sampleRate) / time.Second)
		bytesPerFrame := samplesPerFrame * 2
		for off, seq := 0, uint64(0); off < len(pcm); off, seq = off+bytesPerFrame, seq+1 {
			data := make([]byte, bytesPerFrame)
			copy(data, pcm[off:min(off+bytesPerFrame, len(pcm))])
			frame := &rtc.AudioFrame{
				Data:              data,
				SampleRate:        s.sampleRate,
				SamplesPerChannel: samplesPerFrame,
				NumChannels:       1,
				Seq:               seq,
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// decode converts the MP3 response into mono 16-bit PCM at the target rate.
func (s *SpeechTTS) decode(r io.Reader) ([]byte, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("mp3 decoder: %w", err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("mp3 decode: %w", err)
	}

	// go-mp3 always yields interleaved stereo 16-bit at the source rate
	srcRate := dec.SampleRate()
	n := len(raw) / 4
	mono := make([]int16, n)
	for i := 0; i < n; i++ {
		l := int16(raw[4*i]) | int16(raw[4*i+1])<<8
		r := int16(raw[4*i+2]) | int16(raw[4*i+3])<<8
		mono[i] = int16((int32(l) + int32(r)) / 2)
	}

	resampled := resampleLinear(mono, srcRate, s.sampleRate)
	out := make([]byte, len(resampled)*2)
	for i, v := range resampled {
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out, nil
}

// resampleLinear converts mono PCM between rates by linear interpolation.
// Adequate for speech output; not a polyphase resampler.
func resampleLinear(in []int16, srcRate, dstRate int) []int16 {
	if srcRate == dstRate || len(in) == 0 {
		return in
	}
	outLen := int(int64(len(in)) * int64(dstRate) / int64(srcRate))
	out := make([]int16, outLen)
	for i := range out {
		pos := float64(i) * float64(srcRate) / float64(dstRate)
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = int16(float64(in[j])*(1-frac) + float64(in[j+1])*frac)
	}
	return out
}

// Capabilities returns the provider's capabilities.
func (s *SpeechTTS) Capabilities() tts.Capabilities {
	return tts.Capabilities{
		SupportedVoices: []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"},
		SampleRates:     []int{16000, 24000},
	}
}
