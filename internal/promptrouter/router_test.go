package promptrouter

import (
	"testing"

	"github.com/sahilchouksey/go-init-setup/internal/preprocess"
)

func TestClassify_Passthrough(t *testing.T) {
	r := New(Config{})
	s := preprocess.Sentence{TokenCount: 6, HasVerb: true, ComplexityScore: 6}

	if got := r.Classify(s); got != TierPassthrough {
		t.Errorf("expected TierPassthrough, got %s", got)
	}
}

func TestClassify_HeavyOnComplexityOrLength(t *testing.T) {
	r := New(Config{})

	complex := preprocess.Sentence{TokenCount: 9, HasVerb: true, ComplexityScore: 15}
	if got := r.Classify(complex); got != TierHeavy {
		t.Errorf("expected TierHeavy for high complexity, got %s", got)
	}

	long := preprocess.Sentence{TokenCount: 20, HasVerb: true, ComplexityScore: 5}
	if got := r.Classify(long); got != TierHeavy {
		t.Errorf("expected TierHeavy for long sentence, got %s", got)
	}
}

func TestClassify_LightFallback(t *testing.T) {
	r := New(Config{})
	s := preprocess.Sentence{TokenCount: 9, HasVerb: false, ComplexityScore: 9}

	if got := r.Classify(s); got != TierLight {
		t.Errorf("expected TierLight, got %s", got)
	}
}

func TestClassify_DisablePassthroughForcesLightOrHeavy(t *testing.T) {
	r := New(Config{DisablePassthrough: true})
	s := preprocess.Sentence{TokenCount: 6, HasVerb: true, ComplexityScore: 6}

	if got := r.Classify(s); got == TierPassthrough {
		t.Errorf("expected passthrough to be disabled, got %s", got)
	}
}

func TestBatching(t *testing.T) {
	if !New(Config{}).Batching() {
		t.Error("expected batching enabled by default")
	}
	if New(Config{DisableBatching: true}).Batching() {
		t.Error("expected batching disabled when DisableBatching is set")
	}
}
