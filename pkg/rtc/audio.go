package rtc

import (
	"fmt"
	"time"
)

// AudioFrame represents one fixed-duration block of mono PCM audio.
// Len(Data) == SamplesPerChannel * NumChannels * 2.
// Frames are immutable once produced; ownership passes from the capture
// source to the audio pipeline.
type AudioFrame struct {
	Data              []byte // 16-bit PCM, little-endian
	SampleRate        int    // typically 16 000
	SamplesPerChannel int
	NumChannels       int       // 1 for the capture path
	Seq               uint64    // monotonic per session
	CapturedAt        time.Time // capture timestamp from the transport
}

// NewAudioFrame creates a frame and validates that the payload length matches
// a whole number of 16-bit samples for the given channel count.
func NewAudioFrame(data []byte, sampleRate, numChannels int, seq uint64, capturedAt time.Time) (*AudioFrame, error) {
	if sampleRate <= 0 || numChannels <= 0 {
		return nil, fmt.Errorf("invalid audio format: rate=%d channels=%d", sampleRate, numChannels)
	}
	if len(data) == 0 || len(data)%(numChannels*2) != 0 {
		return nil, fmt.Errorf("audio frame data length %d is not a whole number of %d-channel samples", len(data), numChannels)
	}
	return &AudioFrame{
		Data:              data,
		SampleRate:        sampleRate,
		SamplesPerChannel: len(data) / (numChannels * 2),
		NumChannels:       numChannels,
		Seq:               seq,
		CapturedAt:        capturedAt,
	}, nil
}

// Duration returns the playback duration of this frame.
func (f *AudioFrame) Duration() time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return time.Duration(f.SamplesPerChannel) * time.Second / time.Duration(f.SampleRate)
}

// Clone creates a deep copy of the frame.
func (f *AudioFrame) Clone() *AudioFrame {
	data := make([]byte, len(f.Data))
	copy(data, f.Data)

	return &AudioFrame{
		Data:              data,
		SampleRate:        f.SampleRate,
		SamplesPerChannel: f.SamplesPerChannel,
		NumChannels:       f.NumChannels,
		Seq:               f.Seq,
		CapturedAt:        f.CapturedAt,
	}
}

// Samples decodes the payload into int16 samples (interleaved if stereo).
func (f *AudioFrame) Samples() []int16 {
	out := make([]int16, len(f.Data)/2)
	for i := range out {
		out[i] = int16(f.Data[2*i]) | int16(f.Data[2*i+1])<<8
	}
	return out
}

// SilenceFrame returns a zeroed frame with the given format and duration.
func SilenceFrame(sampleRate, numChannels int, d time.Duration) *AudioFrame {
	samples := int(d * time.Duration(sampleRate) / time.Second)
	return &AudioFrame{
		Data:              make([]byte, samples*numChannels*2),
		SampleRate:        sampleRate,
		SamplesPerChannel: samples,
		NumChannels:       numChannels,
	}
}

// AudioChunk is an ordered run of frames spanning a fixed transcription
// window. Consecutive chunks share a fixed overlap so words split at a
// boundary can be recovered downstream. Boundaries are wall-clock derived,
// never speech derived, so a chunk may begin or end mid-word.
type AudioChunk struct {
	Frames []*AudioFrame
	Seq    uint64 // monotonic chunk sequence per session
	Start  time.Time
	End    time.Time
}

// PCM concatenates the frames' payloads into one contiguous PCM buffer.
func (c *AudioChunk) PCM() []byte {
	var n int
	for _, f := range c.Frames {
		n += len(f.Data)
	}
	out := make([]byte, 0, n)
	for _, f := range c.Frames {
		out = append(out, f.Data...)
	}
	return out
}

// Duration returns the summed duration of the chunk's frames.
func (c *AudioChunk) Duration() time.Duration {
	var d time.Duration
	for _, f := range c.Frames {
		d += f.Duration()
	}
	return d
}

// SampleRate returns the sample rate of the chunk's frames, or 0 when empty.
func (c *AudioChunk) SampleRate() int {
	if len(c.Frames) == 0 {
		return 0
	}
	return c.Frames[0].SampleRate
}
