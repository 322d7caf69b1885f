// Package pipeline ingests capture frames and derives the two streams the
// decision core runs on: an immediate per-frame stream for voice activity
// tracking, and an overlapping chunk stream for transcription.
package pipeline

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/drewpri411/kaathumaaa/pkg/bus"
	"github.com/drewpri411/kaathumaaa/pkg/config"
	"github.com/drewpri411/kaathumaaa/pkg/rtc"
)

// Pipeline buffers incoming frames and slices them into fixed-length,
// fixed-overlap chunks. Chunk boundaries are wall-clock derived: a chunk may
// start or end mid-word, which is exactly why consecutive chunks overlap.
//
// Push never blocks the capture source. When the buffer bound is exceeded the
// oldest unconsumed frames are dropped and an overrun event is published.
type Pipeline struct {
	bus *bus.Bus
	log *slog.Logger

	sampleRate   int
	frameSamples int
	chunkFrames  int
	stepFrames   int // chunkFrames - overlap
	maxBuffered  int

	mu       sync.Mutex
	pending  []*rtc.AudioFrame
	frameSeq uint64
	chunkSeq uint64
}

// New creates a pipeline for one session.
func New(cfg config.AudioConfig, b *bus.Bus, log *slog.Logger) (*Pipeline, error) {
	if log == nil {
		log = slog.Default()
	}
	chunkFrames := cfg.ChunkFrames()
	overlapFrames := cfg.OverlapFrames()
	if chunkFrames <= overlapFrames {
		return nil, fmt.Errorf("chunk window of %d frames must exceed overlap of %d", chunkFrames, overlapFrames)
	}
	return &Pipeline{
		bus:          b,
		log:          log,
		sampleRate:   cfg.SampleRate,
		frameSamples: cfg.FrameSamples(),
		chunkFrames:  chunkFrames,
		stepFrames:   chunkFrames - overlapFrames,
		maxBuffered:  int(cfg.BufferWindow / cfg.FrameDuration),
	}, nil
}

// Push ingests one capture frame's worth of PCM. It tags the frame with the
// next sequence number, forwards it immediately on the frame topic, and
// publishes any chunk whose window just completed.
func (p *Pipeline) Push(data []byte, capturedAt time.Time) error {
	p.mu.Lock()
	frame, err := rtc.NewAudioFrame(data, p.sampleRate, 1, p.frameSeq, capturedAt)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.frameSeq++

	p.pending = append(p.pending, frame)
	dropped := 0
	for len(p.pending) > p.maxBuffered {
		p.pending = p.pending[1:]
		dropped++
	}

	chunks := p.drainChunksLocked()
	p.mu.Unlock()

	// Low-latency path first: activity tracking must not wait on chunking.
	p.bus.Publish(bus.TopicAudioFrame, bus.FramePayload{Frame: frame})

	if dropped > 0 {
		p.log.Warn("audio buffer overrun", "dropped_frames", dropped)
		p.bus.Publish(bus.TopicBufferOverrun, bus.OverrunPayload{Dropped: dropped})
	}
	for _, c := range chunks {
		p.bus.Publish(bus.TopicAudioChunk, bus.ChunkPayload{Chunk: c})
	}
	return nil
}

// drainChunksLocked emits every complete window, advancing by the step size
// so the overlap region is retained for the next chunk.
func (p *Pipeline) drainChunksLocked() []*rtc.AudioChunk {
	var out []*rtc.AudioChunk
	for len(p.pending) >= p.chunkFrames {
		frames := make([]*rtc.AudioFrame, p.chunkFrames)
		copy(frames, p.pending[:p.chunkFrames])

		first, last := frames[0], frames[len(frames)-1]
		out = append(out, &rtc.AudioChunk{
			Frames: frames,
			Seq:    p.chunkSeq,
			Start:  first.CapturedAt,
			End:    last.CapturedAt.Add(last.Duration()),
		})
		p.chunkSeq++
		p.pending = p.pending[p.stepFrames:]
	}
	return out
}

// Reset drops buffered frames, typically at turn boundaries. Sequence
// numbers keep counting; they are session-scoped.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = nil
}

// Buffered reports the number of frames awaiting chunk emission.
func (p *Pipeline) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
