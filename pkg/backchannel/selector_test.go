package backchannel

import (
	"testing"
	"time"

	"github.com/drewpri411/kaathumaaa/pkg/rtc"
)

func clip(name string) *Clip {
	return &Clip{Name: name, Frames: []*rtc.AudioFrame{rtc.SilenceFrame(16000, 1, 30*time.Millisecond)}}
}

func fullLibrary() *Library {
	return NewStaticLibrary(clip("mmhmm"), clip("okay"), clip("yeah"), clip("i_see"), clip("right"))
}

func TestCandidatesFollowTone(t *testing.T) {
	tests := []struct {
		name       string
		transcript string
		allowed    map[string]bool
	}{
		{"question", "where did you put the keys?", map[string]bool{"right": true, "i_see": true}},
		{"question opener", "how does that even work", map[string]bool{"right": true, "i_see": true}},
		{"emotional", "the trip was amazing honestly", map[string]bool{"yeah": true, "right": true}},
		{"neutral", "we drove up the coast for a while", map[string]bool{"mmhmm": true, "okay": true, "i_see": true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewSelector(fullLibrary(), func() float64 { return 0 }).Select(tt.transcript)
			if got == nil || !tt.allowed[got.Name] {
				t.Errorf("selected %v, want one of %v", got, tt.allowed)
			}
		})
	}
}

func TestNeverRepeatsImmediatelyPriorPick(t *testing.T) {
	s := NewSelector(fullLibrary(), nil)

	prev := ""
	for i := 0; i < 50; i++ {
		got := s.Select("we drove up the coast for a while")
		if got == nil {
			t.Fatal("selection returned nil with a full library")
		}
		if got.Name == prev {
			t.Fatalf("pick %d repeated %q", i, got.Name)
		}
		prev = got.Name
	}
}

func TestUsageBalancingPrefersLessUsed(t *testing.T) {
	lib := NewStaticLibrary(clip("mmhmm"), clip("okay"), clip("i_see"))
	s := NewSelector(lib, func() float64 { return 0 })

	// Inflate one clip's usage; the roll-0 pick walks the candidate list
	// and lands on the first entry, which stays first only while weights
	// are equal.
	s.usage["mmhmm"] = 100

	got := s.Select("we drove up the coast for a while")
	if got.Name == "mmhmm" {
		t.Error("heavily used clip should lose the weighted pick")
	}
}

func TestFallsBackWhenCandidatesMissing(t *testing.T) {
	lib := NewStaticLibrary(clip("yeah")) // none of the neutral candidates exist
	s := NewSelector(lib, nil)

	got := s.Select("we drove up the coast for a while")
	if got == nil || got.Name != "yeah" {
		t.Errorf("selected %v, want the only available clip", got)
	}
}

func TestEmptyLibrarySelectsNothing(t *testing.T) {
	s := NewSelector(NewStaticLibrary(), nil)
	if got := s.Select("anything at all"); got != nil {
		t.Errorf("selected %v from an empty library", got)
	}
}
