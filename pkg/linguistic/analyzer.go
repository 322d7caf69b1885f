// Package linguistic scores transcript text for utterance completeness.
// The heuristics are deliberately shallow: they run on every partial
// transcript in the hot path, so there is no tokenizer or parser here, just
// word and punctuation shape.
package linguistic

import "strings"

// Analysis is the result of one completeness pass over a transcript.
type Analysis struct {
	Score                int // 0-100
	IsQuestion           bool
	IsComplete           bool
	WordCount            int
	SentenceCount        int
	EndsWithContinuation bool
	EndsWithPunctuation  bool
}

// DefaultContinuationWords are trailing words that signal the speaker is
// mid-thought. Overridable per analyzer.
var DefaultContinuationWords = []string{
	"and", "so", "but", "um", "uh", "like", "or", "because",
	"then", "well", "actually", "basically", "you know",
}

var questionWords = map[string]bool{
	"what": true, "when": true, "where": true, "who": true, "whom": true,
	"whose": true, "why": true, "which": true, "how": true,
	"is": true, "are": true, "was": true, "were": true,
	"do": true, "does": true, "did": true,
	"can": true, "could": true, "will": true, "would": true,
	"should": true, "shall": true, "may": true, "might": true, "must": true,
}

var commonVerbs = map[string]bool{
	"is": true, "are": true, "was": true, "were": true, "am": true,
	"be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true,
	"do": true, "does": true, "did": true,
	"can": true, "could": true, "will": true, "would": true,
	"should": true, "shall": true, "may": true, "might": true, "must": true,
	"go": true, "goes": true, "went": true, "going": true,
	"get": true, "gets": true, "got": true, "getting": true,
	"make": true, "makes": true, "made": true, "making": true,
	"know": true, "knows": true, "knew": true, "knowing": true,
	"think": true, "thinks": true, "thought": true, "thinking": true,
	"see": true, "sees": true, "saw": true, "seeing": true,
	"want": true, "wants": true, "wanted": true, "wanting": true,
	"need": true, "needs": true, "needed": true, "needing": true,
}

// Analyzer scores utterances. Safe for concurrent use; it holds no
// mutable state after construction.
type Analyzer struct {
	continuation map[string]bool
}

// NewAnalyzer builds an analyzer. Nil or empty continuationWords falls back
// to DefaultContinuationWords.
func NewAnalyzer(continuationWords []string) *Analyzer {
	if len(continuationWords) == 0 {
		continuationWords = DefaultContinuationWords
	}
	m := make(map[string]bool, len(continuationWords))
	for _, w := range continuationWords {
		m[strings.ToLower(w)] = true
	}
	return &Analyzer{continuation: m}
}

// Analyze scores text for completeness.
//
// Empty text scores 0 and utterances under three words score a flat 20;
// neither is enough signal for the structural checks. A trailing
// continuation word caps the score at 30 regardless of anything else,
// because "so" at the end of a grammatically complete sentence still means
// the speaker intends to continue.
func (a *Analyzer) Analyze(text string) Analysis {
	text = strings.TrimSpace(text)
	if text == "" {
		return Analysis{}
	}

	words := strings.Fields(text)
	if len(words) < 3 {
		return Analysis{
			Score:               20,
			IsQuestion:          a.isQuestion(text, words),
			WordCount:           len(words),
			EndsWithPunctuation: endsWithPunctuation(text),
		}
	}

	endsPunct := endsWithPunctuation(text)
	endsCont := a.continuation[trimWordPunct(strings.ToLower(words[len(words)-1]))]
	isQuest := a.isQuestion(text, words)
	sentences := countSentences(text)
	hasSV := hasSubjectAndVerb(words)

	score := completenessScore(endsPunct, endsCont, isQuest, sentences, hasSV)

	return Analysis{
		Score:                score,
		IsQuestion:           isQuest,
		IsComplete:           score >= 70,
		WordCount:            len(words),
		SentenceCount:        sentences,
		EndsWithContinuation: endsCont,
		EndsWithPunctuation:  endsPunct,
	}
}

func completenessScore(endsPunct, endsCont, isQuestion bool, sentences int, hasSubjectVerb bool) int {
	if endsCont {
		return 30
	}
	score := 0
	if endsPunct {
		score += 40
	}
	if hasSubjectVerb {
		score += 20
	}
	if sentences >= 1 && endsPunct {
		score += 30
	}
	if isQuestion && endsPunct {
		score += 10
	}
	if score > 100 {
		score = 100
	}
	return score
}

func endsWithPunctuation(text string) bool {
	if text == "" {
		return false
	}
	switch text[len(text)-1] {
	case '.', '?', '!':
		return true
	}
	return false
}

func (a *Analyzer) isQuestion(text string, words []string) bool {
	if strings.HasSuffix(text, "?") {
		return true
	}
	if len(words) > 0 && questionWords[strings.ToLower(words[0])] {
		return true
	}
	return false
}

func countSentences(text string) int {
	n := strings.Count(text, ".") + strings.Count(text, "?") + strings.Count(text, "!")
	if n == 0 && strings.TrimSpace(text) != "" {
		n = 1
	}
	return n
}

// hasSubjectAndVerb is a rough structural check: any common verb form, or
// three or more words as a fallback.
func hasSubjectAndVerb(words []string) bool {
	if len(words) < 2 {
		return false
	}
	for _, w := range words {
		if commonVerbs[trimWordPunct(strings.ToLower(w))] {
			return true
		}
	}
	return len(words) >= 3
}

func trimWordPunct(w string) string {
	return strings.TrimRight(w, ".,!?;:")
}
