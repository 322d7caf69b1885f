// Package transcript merges overlapping-chunk STT results into one running
// transcript per turn. Chunks are dispatched concurrently but merged strictly
// in chunk-sequence order; the overlap region between consecutive chunks is
// deduplicated token-wise so no word is counted twice.
package transcript

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/drewpri411/kaathumaaa/pkg/ai/stt"
	"github.com/drewpri411/kaathumaaa/pkg/bus"
	"github.com/drewpri411/kaathumaaa/pkg/rtc"
)

// maxOverlapTokens bounds the suffix/prefix alignment window. A 0.5s chunk
// overlap cannot plausibly contain more words than this.
const maxOverlapTokens = 12

type slot struct {
	gen  uint64
	frag stt.Fragment
	err  error
}

// Coordinator consumes chunk events, drives the STT collaborator, and owns
// the merge buffer. All mutable state is guarded by mu; STT calls run on
// their own goroutines and never hold the lock.
type Coordinator struct {
	stt stt.STT
	bus *bus.Bus
	log *slog.Logger

	mu      sync.Mutex
	gen     uint64
	text    string
	nextSeq uint64
	slots   map[uint64]slot
	cancel  context.CancelFunc
	ctx     context.Context

	wg  sync.WaitGroup
	sub *bus.Subscription
}

// NewCoordinator wires a coordinator to the session bus.
func NewCoordinator(s stt.STT, b *bus.Bus, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		stt:    s,
		bus:    b,
		log:    log,
		slots:  make(map[uint64]slot),
		ctx:    ctx,
		cancel: cancel,
	}
	c.sub = b.MustSubscribe(bus.TopicAudioChunk, func(ev bus.Event) {
		p, ok := ev.Payload.(bus.ChunkPayload)
		if !ok {
			return
		}
		c.dispatch(p.Chunk)
	})
	return c
}

// Close cancels in-flight STT calls and detaches from the bus.
func (c *Coordinator) Close() error {
	c.cancel()
	err := c.sub.Cancel()
	c.wg.Wait()
	return err
}

// Wait blocks until every dispatched STT call has completed and merged.
// Used by tests for determinism.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// BeginTurn starts a new transcript generation. The previous turn's
// in-flight calls are canceled; any result that still arrives carries the
// old generation and is discarded at merge time.
func (c *Coordinator) BeginTurn() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel()
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.gen++
	c.text = ""
	return c.gen
}

// Generation returns the current turn generation.
func (c *Coordinator) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Transcript returns the current merged transcript.
func (c *Coordinator) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

func (c *Coordinator) dispatch(chunk *rtc.AudioChunk) {
	c.mu.Lock()
	gen, ctx := c.gen, c.ctx
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		frag, err := c.stt.TranscribeChunk(ctx, chunk)
		frag.ChunkSeq = chunk.Seq
		c.complete(chunk.Seq, gen, frag, err)
	}()
}

// complete records one finished STT call and merges every contiguous slot
// starting at nextSeq. Results can land in any order; the merge consumes
// them in chunk-sequence order only.
func (c *Coordinator) complete(seq, gen uint64, frag stt.Fragment, err error) {
	var events []func()

	c.mu.Lock()
	c.slots[seq] = slot{gen: gen, frag: frag, err: err}
	for {
		s, ok := c.slots[c.nextSeq]
		if !ok {
			break
		}
		delete(c.slots, c.nextSeq)
		seq := c.nextSeq
		c.nextSeq++

		switch {
		case s.gen != c.gen:
			// Superseded turn. Silence, not an error.
		case s.err != nil:
			reason := s.err.Error()
			events = append(events, func() {
				c.bus.Publish(bus.TopicTranscriptDropped, bus.TranscriptDroppedPayload{ChunkSeq: seq, Reason: reason})
			})
		case strings.TrimSpace(s.frag.Text) == "":
			events = append(events, func() {
				c.bus.Publish(bus.TopicTranscriptDropped, bus.TranscriptDroppedPayload{ChunkSeq: seq, Reason: "empty transcription"})
			})
		default:
			added := mergeFragment(&c.text, s.frag.Text)
			payload := bus.TranscriptPayload{Text: c.text, Added: added, Generation: c.gen}
			events = append(events, func() {
				c.bus.Publish(bus.TopicTranscriptUpdated, payload)
			})
		}
	}
	c.mu.Unlock()

	for _, fire := range events {
		fire()
	}
}

// mergeFragment appends fragment text to the running transcript, dropping
// the longest token run that the transcript's tail and the fragment's head
// share. Returns the text actually added; a fragment fully covered by the
// transcript adds nothing and leaves it unchanged.
func mergeFragment(text *string, fragment string) string {
	fragTokens := strings.Fields(fragment)
	if len(fragTokens) == 0 {
		return ""
	}
	tailTokens := strings.Fields(*text)
	if n := len(tailTokens); n > maxOverlapTokens {
		tailTokens = tailTokens[n-maxOverlapTokens:]
	}

	k := overlapLen(tailTokens, fragTokens)
	added := strings.Join(fragTokens[k:], " ")
	if added == "" {
		return ""
	}
	if *text == "" {
		*text = added
	} else {
		*text += " " + added
	}
	return added
}

// overlapLen returns the longest k such that the last k tokens of tail
// match the first k tokens of head under normalization.
func overlapLen(tail, head []string) int {
	max := len(tail)
	if len(head) < max {
		max = len(head)
	}
	for k := max; k > 0; k-- {
		if tokensEqual(tail[len(tail)-k:], head[:k]) {
			return k
		}
	}
	return 0
}

func tokensEqual(a, b []string) bool {
	for i := range a {
		if normalizeToken(a[i]) != normalizeToken(b[i]) {
			return false
		}
	}
	return true
}

// normalizeToken lowercases and strips edge punctuation so "Hello," in one
// chunk matches "hello" in the next.
func normalizeToken(t string) string {
	return strings.Trim(strings.ToLower(t), ".,!?;:\"'")
}
