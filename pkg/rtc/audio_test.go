package rtc

import (
	"bytes"
	"testing"
	"time"
)

func TestNewAudioFrameValidation(t *testing.T) {
	tests := []struct {
		name       string
		data       []byte
		sampleRate int
		channels   int
		wantErr    bool
	}{
		{"valid mono", make([]byte, 640), 16000, 1, false},
		{"valid stereo", make([]byte, 640), 16000, 2, false},
		{"empty payload", nil, 16000, 1, true},
		{"odd byte count", make([]byte, 641), 16000, 1, true},
		{"stereo misaligned", make([]byte, 642), 16000, 2, true},
		{"zero sample rate", make([]byte, 640), 0, 1, true},
		{"zero channels", make([]byte, 640), 16000, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewAudioFrame(tt.data, tt.sampleRate, tt.channels, 0, time.Now())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			want := len(tt.data) / (tt.channels * 2)
			if f.SamplesPerChannel != want {
				t.Errorf("SamplesPerChannel = %d, want %d", f.SamplesPerChannel, want)
			}
		})
	}
}

func TestFrameDuration(t *testing.T) {
	f, err := NewAudioFrame(make([]byte, 640), 16000, 1, 0, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if got := f.Duration(); got != 20*time.Millisecond {
		t.Errorf("Duration = %v, want 20ms", got)
	}
	if got := (&AudioFrame{}).Duration(); got != 0 {
		t.Errorf("zero frame Duration = %v, want 0", got)
	}
}

func TestFrameSamplesDecode(t *testing.T) {
	f := &AudioFrame{Data: []byte{0x01, 0x00, 0xFF, 0xFF, 0x00, 0x80}}
	want := []int16{1, -1, -32768}
	got := f.Samples()
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestFrameCloneIsIndependent(t *testing.T) {
	orig, _ := NewAudioFrame([]byte{1, 2, 3, 4}, 16000, 1, 7, time.Now())
	clone := orig.Clone()
	clone.Data[0] = 99
	if orig.Data[0] != 1 {
		t.Error("mutating the clone changed the original")
	}
	if clone.Seq != 7 || clone.SampleRate != 16000 {
		t.Errorf("clone lost metadata: %+v", clone)
	}
}

func TestSilenceFrame(t *testing.T) {
	f := SilenceFrame(16000, 1, 20*time.Millisecond)
	if f.SamplesPerChannel != 320 || len(f.Data) != 640 {
		t.Errorf("got %d samples, %d bytes", f.SamplesPerChannel, len(f.Data))
	}
	if f.Duration() != 20*time.Millisecond {
		t.Errorf("Duration = %v", f.Duration())
	}
}

func TestChunkPCMAndDuration(t *testing.T) {
	a, _ := NewAudioFrame([]byte{1, 2}, 1000, 1, 0, time.Time{})
	b, _ := NewAudioFrame([]byte{3, 4}, 1000, 1, 1, time.Time{})
	c := &AudioChunk{Frames: []*AudioFrame{a, b}}

	if got := c.PCM(); !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("PCM = %v", got)
	}
	if got := c.Duration(); got != 2*time.Millisecond {
		t.Errorf("Duration = %v, want 2ms", got)
	}
	if c.SampleRate() != 1000 {
		t.Errorf("SampleRate = %d", c.SampleRate())
	}
	if (&AudioChunk{}).SampleRate() != 0 {
		t.Error("empty chunk should report rate 0")
	}
}
