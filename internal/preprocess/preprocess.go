// Package preprocess segments chunk text into sentences with metadata
// (token_count, has_verb, complexity_score), cleaning common PDF
// extraction artifacts first. The real sentence segmentation / POS
// tagging is delegated to a LinguisticEngine, declared out of scope by
// spec.md section 1; this package supplies the graceful-degradation
// heuristic fallback spec.md 4.4 mandates for when no engine is wired.
package preprocess

import (
	"regexp"
	"strings"
)

// Sentence is one segmented sentence plus the metadata PromptRouter
// and Validator need.
type Sentence struct {
	Text            string
	TokenCount      int
	HasVerb         bool
	ComplexityScore int
}

// Result is the Preprocessor's full output for one chunk.
type Result struct {
	Sentences []Sentence
	RawText   string
	Count     int
}

// LinguisticEngine is the external collaborator spec.md declares:
// sentence segmentation, POS tagging, and verb detection. A real
// implementation might wrap an NLP library; none ships in this repo
// since no such dependency appears anywhere in the example pack.
type LinguisticEngine interface {
	// Segment splits text into sentence strings.
	Segment(text string) []string
	// HasConjugatedVerb reports whether sentence contains a conjugated
	// main verb or auxiliary (infinitives/participles do not count).
	HasConjugatedVerb(sentence string) bool
	// CountSubordinateMarkers and CountCoordinateMarkers feed the
	// complexity_score formula.
	CountSubordinateMarkers(sentence string) int
	CountCoordinateMarkers(sentence string) int
}

// Preprocessor is the C4 component.
type Preprocessor struct {
	engine LinguisticEngine
}

// New constructs a Preprocessor. engine may be nil, in which case the
// heuristic degraded path is used for every chunk.
func New(engine LinguisticEngine) *Preprocessor {
	return &Preprocessor{engine: engine}
}

var (
	hyphenBreak    = regexp.MustCompile(`(\p{L})-\s*\n\s*(\p{L})`)
	whitespaceRuns = regexp.MustCompile(`[ \t]+`)
	missingSpace   = regexp.MustCompile(`([.!?,;:])([\p{L}])`)
	ligatures      = strings.NewReplacer("ﬁ", "fi", "ﬂ", "fl", "ﬀ", "ff", "ﬃ", "ffi", "ﬄ", "ffl")
	quoteNormalize = strings.NewReplacer(
		"«", `"`, "»", `"`,
		"‘", "'", "’", "'",
		"“", `"`, "”", `"`,
	)
)

// clean rejoins hyphenated line breaks, normalizes guillemets/curly
// quotes, expands ligatures, collapses whitespace runs, and inserts a
// space after sentence punctuation where the PDF extractor glued two
// words together — matching the cleanup habits evident throughout
// services/pdf_extractor.go.
func clean(raw string) string {
	s := hyphenBreak.ReplaceAllString(raw, "$1$2")
	s = ligatures.Replace(s)
	s = quoteNormalize.Replace(s)
	s = missingSpace.ReplaceAllString(s, "$1 $2")
	s = whitespaceRuns.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

var sentenceBreak = regexp.MustCompile(`(?s)(.*?[.!?])(\s+|$)`)

func heuristicSegment(text string) []string {
	var out []string
	matches := sentenceBreak.FindAllStringSubmatch(text, -1)
	consumed := 0
	for _, m := range matches {
		s := strings.TrimSpace(m[1])
		if s != "" {
			out = append(out, s)
		}
		consumed += len(m[0])
	}
	if consumed < len(text) {
		rest := strings.TrimSpace(text[consumed:])
		if rest != "" {
			out = append(out, rest)
		}
	}
	return out
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// Preprocess segments chunkText into sentences, dropping those under
// 3 tokens (treated as artifacts), and computes metadata per spec.md
// 4.4.
func (p *Preprocessor) Preprocess(chunkText string) Result {
	raw := clean(chunkText)

	var rawSentences []string
	degraded := p.engine == nil
	if !degraded {
		rawSentences = p.engine.Segment(raw)
	} else {
		rawSentences = heuristicSegment(raw)
	}

	var sentences []Sentence
	for _, s := range rawSentences {
		tokens := wordCount(s)
		if tokens < 3 {
			continue
		}
		if degraded {
			sentences = append(sentences, Sentence{
				Text:            s,
				TokenCount:      tokens,
				HasVerb:         false,
				ComplexityScore: tokens,
			})
			continue
		}
		subMarkers := p.engine.CountSubordinateMarkers(s)
		coMarkers := p.engine.CountCoordinateMarkers(s)
		sentences = append(sentences, Sentence{
			Text:            s,
			TokenCount:      tokens,
			HasVerb:         p.engine.HasConjugatedVerb(s),
			ComplexityScore: tokens + 3*subMarkers + 2*coMarkers,
		})
	}

	return Result{Sentences: sentences, RawText: raw, Count: len(sentences)}
}
