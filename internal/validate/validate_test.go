package validate

import "testing"

func newValidator() *Validator {
	return New(Config{MinWords: 4, MaxWords: 40})
}

func TestValidate_AcceptsGoodSentence(t *testing.T) {
	v := newValidator()
	texts := []string{"The committee approved the new budget proposal."}
	hasVerb := []bool{true}

	accepted, stats := v.Validate(texts, hasVerb)

	if len(accepted) != 1 {
		t.Fatalf("expected 1 accepted sentence, got %d", len(accepted))
	}
	if stats.Accepted != 1 || stats.Total != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestValidate_RejectsTooShortAndTooLong(t *testing.T) {
	v := newValidator()
	texts := []string{
		"Too short.",
		"word word word word word word word word word word word word word word word word word word word word word word word word word word word word word word word word word word word word word word word word word word",
	}
	hasVerb := []bool{true, true}

	accepted, stats := v.Validate(texts, hasVerb)

	if len(accepted) != 0 {
		t.Errorf("expected 0 accepted, got %d", len(accepted))
	}
	if stats.RejectedLength != 2 {
		t.Errorf("expected 2 length rejections, got %d", stats.RejectedLength)
	}
}

func TestValidate_RejectsMissingVerb(t *testing.T) {
	v := newValidator()
	texts := []string{"the quick brown fox jumping over lazy dogs"}
	hasVerb := []bool{false}

	accepted, stats := v.Validate(texts, hasVerb)

	if len(accepted) != 0 {
		t.Errorf("expected rejection for no-verb sentence, got %d accepted", len(accepted))
	}
	if stats.RejectedNoVerb != 1 {
		t.Errorf("expected 1 no-verb rejection, got %d", stats.RejectedNoVerb)
	}
}

func TestValidate_RejectsRelativePronounFragment(t *testing.T) {
	v := newValidator()
	texts := []string{"qui est arrivé hier soir tard dans la nuit"}
	hasVerb := []bool{true}

	accepted, stats := v.Validate(texts, hasVerb)

	if len(accepted) != 0 {
		t.Errorf("expected fragment rejection, got %d accepted", len(accepted))
	}
	if stats.RejectedFragment != 1 {
		t.Errorf("expected 1 fragment rejection, got %d", stats.RejectedFragment)
	}
}

func TestStats_PassRate(t *testing.T) {
	empty := Stats{}
	if empty.PassRate() != 1.0 {
		t.Errorf("expected vacuous pass rate of 1.0 for empty input, got %f", empty.PassRate())
	}

	half := Stats{Total: 10, Accepted: 5}
	if half.PassRate() != 0.5 {
		t.Errorf("expected 0.5 pass rate, got %f", half.PassRate())
	}
}
