// Package backchannel produces the agent's short acknowledgement sounds
// ("mm-hmm", "right") while the user holds the floor. Triggering is
// probabilistic with contextual modifiers, selection is anti-repetitive,
// and every scheduled clip passes through a safe-zone delay that aborts it
// if the user resumes speaking.
package backchannel

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/drewpri411/kaathumaaa/pkg/audio/wav"
	"github.com/drewpri411/kaathumaaa/pkg/rtc"
)

// Clip is one preloaded backchannel utterance, already framed and
// volume-scaled for the mixer.
type Clip struct {
	Name   string
	Frames []*rtc.AudioFrame
}

// Duration returns the clip's playback length.
func (c *Clip) Duration() time.Duration {
	var d time.Duration
	for _, f := range c.Frames {
		d += f.Duration()
	}
	return d
}

// Library holds all clips in memory. Loaded once at session start;
// read-only afterwards, so no locking.
type Library struct {
	clips map[string]*Clip
	names []string
}

// LoadLibrary reads every WAV file in dir, validates the format against the
// session sample rate, scales it by volume and frames it for playback.
// Files that fail to decode are skipped with a warning; an empty directory
// yields an empty library and backchannels are simply never played.
func LoadLibrary(dir string, sampleRate int, frameDuration time.Duration, volume float64, log *slog.Logger) (*Library, error) {
	if log == nil {
		log = slog.Default()
	}
	lib := &Library{clips: make(map[string]*Clip)}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("backchannel directory missing, backchannels disabled", "dir", dir)
			return lib, nil
		}
		return nil, fmt.Errorf("read backchannel dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".wav") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		pcm, hdr, err := wav.DecodeFile(path)
		if err != nil {
			log.Warn("skipping backchannel clip", "file", e.Name(), "error", err)
			continue
		}
		if hdr.NumChannels != 1 || hdr.SampleRate != sampleRate {
			log.Warn("skipping backchannel clip with wrong format",
				"file", e.Name(), "channels", hdr.NumChannels, "rate", hdr.SampleRate)
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".wav")
		lib.add(&Clip{
			Name:   name,
			Frames: wav.Frames(scalePCM(pcm, volume), hdr, frameDuration),
		})
		log.Debug("loaded backchannel clip", "name", name)
	}
	return lib, nil
}

// NewStaticLibrary builds a library from preframed clips. Used by tests.
func NewStaticLibrary(clips ...*Clip) *Library {
	lib := &Library{clips: make(map[string]*Clip, len(clips))}
	for _, c := range clips {
		lib.add(c)
	}
	return lib
}

func (l *Library) add(c *Clip) {
	if _, ok := l.clips[c.Name]; !ok {
		l.names = append(l.names, c.Name)
	}
	l.clips[c.Name] = c
}

// Get returns the named clip, or nil.
func (l *Library) Get(name string) *Clip { return l.clips[name] }

// Names returns all clip names in load order.
func (l *Library) Names() []string { return l.names }

// Empty reports whether the library holds no clips.
func (l *Library) Empty() bool { return len(l.clips) == 0 }

// scalePCM multiplies 16-bit samples by volume in [0,1].
func scalePCM(pcm []byte, volume float64) []byte {
	out := make([]byte, len(pcm))
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		v := int32(float64(s) * volume)
		out[i] = byte(uint16(v))
		out[i+1] = byte(uint16(v) >> 8)
	}
	return out
}
