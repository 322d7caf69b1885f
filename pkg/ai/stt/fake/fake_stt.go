// Package fake provides a scripted STT for testing.
package fake

import (
	"context"
	"sync"

	"github.com/drewpri411/kaathumaaa/pkg/ai/stt"
	"github.com/drewpri411/kaathumaaa/pkg/rtc"
)

// FakeSTT returns scripted texts keyed by chunk sequence, or in call order
// when no per-chunk script is set. Errors can be injected per chunk.
type FakeSTT struct {
	mu      sync.Mutex
	texts   []string
	byChunk map[uint64]string
	errs    map[uint64]error
	calls   int

	// Delay lets tests hold a response to exercise out-of-order arrival.
	Delay func(chunkSeq uint64)
}

// NewFakeSTT creates a fake that replays texts in call order.
func NewFakeSTT(texts ...string) *FakeSTT {
	return &FakeSTT{
		texts:   texts,
		byChunk: map[uint64]string{},
		errs:    map[uint64]error{},
	}
}

// SetChunkText pins the response for a specific chunk sequence.
func (f *FakeSTT) SetChunkText(seq uint64, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byChunk[seq] = text
}

// SetChunkError injects a failure for a specific chunk sequence.
func (f *FakeSTT) SetChunkError(seq uint64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[seq] = err
}

// Calls reports how many chunks were dispatched.
func (f *FakeSTT) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// TranscribeChunk returns the scripted response for the chunk.
func (f *FakeSTT) TranscribeChunk(ctx context.Context, chunk *rtc.AudioChunk) (stt.Fragment, error) {
	if f.Delay != nil {
		f.Delay(chunk.Seq)
	}

	f.mu.Lock()
	f.calls++
	if err, ok := f.errs[chunk.Seq]; ok {
		f.mu.Unlock()
		return stt.Fragment{}, err
	}
	text, ok := f.byChunk[chunk.Seq]
	if !ok && len(f.texts) > 0 {
		i := f.calls - 1
		if i >= len(f.texts) {
			i = len(f.texts) - 1
		}
		text = f.texts[i]
	}
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return stt.Fragment{}, err
	}
	return stt.Fragment{
		Text:     text,
		ChunkSeq: chunk.Seq,
		Start:    chunk.Start,
		End:      chunk.End,
	}, nil
}

// Capabilities returns permissive fake capabilities.
func (f *FakeSTT) Capabilities() stt.Capabilities {
	return stt.Capabilities{SupportedLanguages: []string{"en"}, SampleRates: []int{16000}}
}
