package pipeline

import (
	"testing"
	"time"

	"github.com/drewpri411/kaathumaaa/pkg/bus"
	"github.com/drewpri411/kaathumaaa/pkg/config"
)

func testAudioConfig() config.AudioConfig {
	return config.AudioConfig{
		SampleRate:    16000,
		FrameDuration: 30 * time.Millisecond,
		BufferWindow:  300 * time.Millisecond,
		ChunkWindow:   150 * time.Millisecond,
		ChunkOverlap:  60 * time.Millisecond,
	}
}

func framePCM(cfg config.AudioConfig) []byte {
	return make([]byte, cfg.FrameSamples()*2)
}

func pushFrames(t *testing.T, p *Pipeline, cfg config.AudioConfig, n int, start time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		at := start.Add(time.Duration(i) * cfg.FrameDuration)
		if err := p.Push(framePCM(cfg), at); err != nil {
			t.Fatalf("push frame %d: %v", i, err)
		}
	}
}

func TestPushPublishesFramesImmediately(t *testing.T) {
	cfg := testAudioConfig()
	b := bus.New(nil)

	var frames []bus.FramePayload
	b.MustSubscribe(bus.TopicAudioFrame, func(ev bus.Event) {
		frames = append(frames, ev.Payload.(bus.FramePayload))
	})

	p, err := New(cfg, b, nil)
	if err != nil {
		t.Fatal(err)
	}
	pushFrames(t, p, cfg, 3, time.Unix(0, 0))

	if len(frames) != 3 {
		t.Fatalf("got %d frame events, want 3", len(frames))
	}
	for i, f := range frames {
		if f.Frame.Seq != uint64(i) {
			t.Errorf("frame %d has seq %d", i, f.Frame.Seq)
		}
	}
}

func TestChunksOverlapByConfiguredAmount(t *testing.T) {
	cfg := testAudioConfig() // 5 frames per chunk, 2 frames overlap
	b := bus.New(nil)

	var chunks []bus.ChunkPayload
	b.MustSubscribe(bus.TopicAudioChunk, func(ev bus.Event) {
		chunks = append(chunks, ev.Payload.(bus.ChunkPayload))
	})

	p, err := New(cfg, b, nil)
	if err != nil {
		t.Fatal(err)
	}
	start := time.Unix(100, 0)
	pushFrames(t, p, cfg, 8, start) // 5 complete chunk 0, 3 more complete chunk 1

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	c0, c1 := chunks[0].Chunk, chunks[1].Chunk
	if c0.Seq != 0 || c1.Seq != 1 {
		t.Errorf("chunk seqs %d,%d, want 0,1", c0.Seq, c1.Seq)
	}
	if len(c0.Frames) != 5 || len(c1.Frames) != 5 {
		t.Fatalf("chunk lengths %d,%d, want 5,5", len(c0.Frames), len(c1.Frames))
	}
	// Chunk 1 starts 3 frames (chunk minus overlap) after chunk 0.
	wantStart := start.Add(3 * cfg.FrameDuration)
	if !c1.Start.Equal(wantStart) {
		t.Errorf("chunk 1 starts at %v, want %v", c1.Start, wantStart)
	}
	if c1.Frames[0].Seq != c0.Frames[3].Seq {
		t.Errorf("chunk 1 should begin at frame %d, got %d", c0.Frames[3].Seq, c1.Frames[0].Seq)
	}
}

func TestOverrunDropsOldestAndPublishes(t *testing.T) {
	cfg := testAudioConfig()
	cfg.ChunkWindow = 10 * time.Second // keep chunks from draining the buffer
	cfg.BufferWindow = 5 * cfg.FrameDuration
	b := bus.New(nil)

	dropped := 0
	b.MustSubscribe(bus.TopicBufferOverrun, func(ev bus.Event) {
		dropped += ev.Payload.(bus.OverrunPayload).Dropped
	})

	p, err := New(cfg, b, nil)
	if err != nil {
		t.Fatal(err)
	}
	pushFrames(t, p, cfg, 8, time.Unix(0, 0))

	if dropped != 3 {
		t.Errorf("dropped %d frames, want 3", dropped)
	}
	if p.Buffered() != 5 {
		t.Errorf("buffered %d frames, want 5", p.Buffered())
	}
}

func TestRejectsMalformedFrame(t *testing.T) {
	cfg := testAudioConfig()
	p, err := New(cfg, bus.New(nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Push([]byte{1}, time.Now()); err == nil {
		t.Error("odd-length PCM should be rejected")
	}
}

func TestOverlapMustBeSmallerThanWindow(t *testing.T) {
	cfg := testAudioConfig()
	cfg.ChunkOverlap = cfg.ChunkWindow
	if _, err := New(cfg, bus.New(nil), nil); err == nil {
		t.Error("overlap equal to window should be rejected")
	}
}
