// Package fake provides a deterministic TTS for testing.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/drewpri411/kaathumaaa/pkg/ai/tts"
	"github.com/drewpri411/kaathumaaa/pkg/rtc"
)

// FakeTTS emits a fixed number of silent frames per request.
type FakeTTS struct {
	mu         sync.Mutex
	frameCount int
	err        error
	requests   []tts.SynthesizeRequest

	SampleRate    int
	FrameDuration time.Duration
}

// NewFakeTTS creates a fake that yields frameCount frames per synthesis.
func NewFakeTTS(frameCount int) *FakeTTS {
	if frameCount <= 0 {
		frameCount = 10
	}
	return &FakeTTS{
		frameCount:    frameCount,
		SampleRate:    16000,
		FrameDuration: 30 * time.Millisecond,
	}
}

// Fail makes subsequent Synthesize calls return err.
func (f *FakeTTS) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Requests returns the recorded synthesis requests.
func (f *FakeTTS) Requests() []tts.SynthesizeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]tts.SynthesizeRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// Synthesize records the request and streams silent frames.
func (f *FakeTTS) Synthesize(ctx context.Context, req tts.SynthesizeRequest) (<-chan *rtc.AudioFrame, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	err := f.err
	count := f.frameCount
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}

	out := make(chan *rtc.AudioFrame, count)
	go func() {
		defer close(out)
		for i := 0; i < count; i++ {
			frame := rtc.SilenceFrame(f.SampleRate, 1, f.FrameDuration)
			frame.Seq = uint64(i)
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Capabilities returns permissive fake capabilities.
func (f *FakeTTS) Capabilities() tts.Capabilities {
	return tts.Capabilities{SupportedVoices: []string{"fake"}, SampleRates: []int{16000}}
}
