package preprocess

import (
	"strings"
	"testing"
)

func TestPreprocess_DegradedPathSegmentsOnPunctuation(t *testing.T) {
	p := New(nil)
	result := p.Preprocess("The lab meets on Tuesday. It starts at nine in the morning.")

	if result.Count != 2 {
		t.Fatalf("expected 2 sentences, got %d: %+v", result.Count, result.Sentences)
	}
	for _, s := range result.Sentences {
		if s.HasVerb {
			t.Errorf("degraded path should never report HasVerb=true, got true for %q", s.Text)
		}
		if s.ComplexityScore != s.TokenCount {
			t.Errorf("degraded path complexity score should equal token count, got score=%d tokens=%d", s.ComplexityScore, s.TokenCount)
		}
	}
}

func TestPreprocess_DropsFragmentsUnderThreeTokens(t *testing.T) {
	p := New(nil)
	result := p.Preprocess("Ok. The committee convened to review the annual budget report.")

	for _, s := range result.Sentences {
		if len(strings.Fields(s.Text)) < 3 {
			t.Errorf("expected sentences under 3 tokens to be dropped, found %q", s.Text)
		}
	}
}

func TestClean_RejoinsHyphenatedLineBreaks(t *testing.T) {
	out := clean("The extraor-\ndinary result surprised everyone.")
	if strings.Contains(out, "-\n") || strings.Contains(out, "extraor-") {
		t.Errorf("expected hyphen break to be rejoined, got %q", out)
	}
	if !strings.Contains(out, "extraordinary") {
		t.Errorf("expected rejoined word \"extraordinary\", got %q", out)
	}
}

func TestClean_NormalizesLigaturesAndQuotes(t *testing.T) {
	out := clean("The ﬁrst ﬂight was “delayed”.")
	if strings.ContainsAny(out, "ﬁﬂ“”") {
		t.Errorf("expected ligatures/quotes normalized, got %q", out)
	}
	if !strings.Contains(out, "first flight") {
		t.Errorf("expected expanded ligatures, got %q", out)
	}
}

type fakeEngine struct{}

func (fakeEngine) Segment(text string) []string { return strings.Split(text, "|") }
func (fakeEngine) HasConjugatedVerb(s string) bool {
	return strings.Contains(s, "est")
}
func (fakeEngine) CountSubordinateMarkers(s string) int { return strings.Count(s, "que") }
func (fakeEngine) CountCoordinateMarkers(s string) int  { return strings.Count(s, "et") }

func TestPreprocess_UsesWiredEngineWhenPresent(t *testing.T) {
	p := New(fakeEngine{})
	result := p.Preprocess("il est arrivé tard|elle et lui sont partis ensemble")

	if result.Count != 2 {
		t.Fatalf("expected 2 sentences from engine segmentation, got %d", result.Count)
	}
	if !result.Sentences[0].HasVerb {
		t.Error("expected first sentence to be detected as having a verb via the wired engine")
	}
}
