package estimate

import "testing"

func TestEstimate_TokensScaleWithPageCount(t *testing.T) {
	r := Estimate(10, "balanced", 1.0, 1.0)
	wantTokens := 10 * (tokensPerPageText + tokensPerPageImage)
	if r.EstimatedTokens != wantTokens {
		t.Errorf("expected %d tokens, got %d", wantTokens, r.EstimatedTokens)
	}
}

func TestEstimate_SafetyMultiplierInflatesCreditsOnly(t *testing.T) {
	base := Estimate(10, "balanced", 2.0, 1.0)
	padded := Estimate(10, "balanced", 2.0, 1.5)

	if padded.EstimatedTokens != base.EstimatedTokens {
		t.Errorf("safety multiplier must not change token estimate, got %d vs %d", padded.EstimatedTokens, base.EstimatedTokens)
	}
	if padded.EstimatedCredits <= base.EstimatedCredits {
		t.Errorf("expected padded credits (%d) to exceed base credits (%d)", padded.EstimatedCredits, base.EstimatedCredits)
	}
}

func TestEstimate_ZeroPagesIsZeroCost(t *testing.T) {
	r := Estimate(0, "balanced", 1.0, 1.0)
	if r.EstimatedTokens != 0 || r.EstimatedCredits != 0 {
		t.Errorf("expected zero tokens/credits for zero pages, got tokens=%d credits=%d", r.EstimatedTokens, r.EstimatedCredits)
	}
}

func TestEstimate_RoundsCreditsToNearestInt(t *testing.T) {
	r := Estimate(1, "balanced", 1.0, 1.0)
	tokens := tokensPerPageText + tokensPerPageImage
	wantCredits := int(float64(tokens) / 1000.0 * 1.0 * 1.0)
	if r.EstimatedCredits < wantCredits {
		t.Errorf("expected credits rounded near %d, got %d", wantCredits, r.EstimatedCredits)
	}
}

func TestEstimate_CarriesModelAndRateThrough(t *testing.T) {
	r := Estimate(5, "heavy", 3.25, 1.1)
	if r.Model != "heavy" {
		t.Errorf("expected model %q, got %q", "heavy", r.Model)
	}
	if r.PricingRate != 3.25 {
		t.Errorf("expected pricing rate 3.25, got %v", r.PricingRate)
	}
}
