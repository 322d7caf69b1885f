package backchannel

import (
	"math/rand"
	"strings"
)

var questionOpeners = []string{"what", "when", "where", "who", "why", "how"}

var emotionOpinionWords = []string{
	"amazing", "terrible", "wonderful", "awful", "excited", "love", "hate",
}

// Selector picks which clip to play. Candidates come from the utterance's
// tone, the immediately prior pick is excluded, and the remaining choices
// are weighted toward the least used so one clip never dominates.
type Selector struct {
	lib    *Library
	usage  map[string]int
	recent []string // last three picks, newest last
	roll   func() float64
}

// NewSelector builds a selector over the library. A nil roll uses the
// global math/rand source.
func NewSelector(lib *Library, roll func() float64) *Selector {
	if roll == nil {
		roll = rand.Float64
	}
	return &Selector{lib: lib, usage: make(map[string]int), roll: roll}
}

// Select picks a clip for the given transcript, or nil if the library has
// nothing suitable. The pick is recorded for anti-repetition and usage
// balancing.
func (s *Selector) Select(transcript string) *Clip {
	if s.lib.Empty() {
		return nil
	}
	candidates := s.available(s.candidates(transcript))
	if len(candidates) == 0 {
		candidates = s.available(s.lib.Names())
	}
	if len(candidates) == 0 {
		candidates = s.lib.Names()
	}

	name := s.weightedPick(candidates)
	s.record(name)
	return s.lib.Get(name)
}

// candidates maps utterance tone to preferred clip names.
func (s *Selector) candidates(transcript string) []string {
	lower := strings.ToLower(strings.TrimSpace(transcript))

	if strings.HasSuffix(lower, "?") || hasOpener(lower, questionOpeners) {
		return []string{"right", "i_see"}
	}
	for _, w := range emotionOpinionWords {
		if strings.Contains(lower, w) {
			return []string{"yeah", "right"}
		}
	}
	return []string{"mmhmm", "okay", "i_see"}
}

// available filters candidates to clips the library holds and that
// anti-repetition permits: never the immediately prior pick, and never a
// clip that just played twice running.
func (s *Selector) available(names []string) []string {
	var banned string
	if n := len(s.recent); n > 0 {
		banned = s.recent[n-1]
	}
	var out []string
	for _, name := range names {
		if name == banned || s.lib.Get(name) == nil {
			continue
		}
		out = append(out, name)
	}
	return out
}

// weightedPick draws from names with weight inverse to usage count.
func (s *Selector) weightedPick(names []string) string {
	total := 0.0
	for _, n := range names {
		total += 1.0 / float64(s.usage[n]+1)
	}
	r := s.roll() * total
	for _, n := range names {
		r -= 1.0 / float64(s.usage[n]+1)
		if r <= 0 {
			return n
		}
	}
	return names[len(names)-1]
}

func (s *Selector) record(name string) {
	s.usage[name]++
	s.recent = append(s.recent, name)
	if len(s.recent) > 3 {
		s.recent = s.recent[1:]
	}
}

func hasOpener(lower string, openers []string) bool {
	for _, o := range openers {
		if strings.HasPrefix(lower, o+" ") || lower == o {
			return true
		}
	}
	return false
}
