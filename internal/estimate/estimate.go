// Package estimate computes the stateless page-count-to-token/credit
// heuristic behind ControlAPI's estimate() operation (spec.md 4.11).
// The exact formula is an open question per spec.md section 9 ("the
// blueprint pegs it at ~500 tokens/page plus an image weight"); this
// repo fixes it at 550 tokens/page (500 text + a flat 50/page image
// weight) per SPEC_FULL.md section 12, decision 1 — a simple,
// calibratable constant rather than real image detection, since
// TextExtractor does not report image density.
package estimate

import "math"

const (
	tokensPerPageText  = 500
	tokensPerPageImage = 50
)

// Result is ControlAPI's estimate() response payload.
type Result struct {
	EstimatedTokens  int
	EstimatedCredits int
	PricingRate      float64
	Model            string
}

// Estimate computes tokens/credits for a page count, model, and
// pricing rate (credits per 1,000 tokens), applying the configured
// safety multiplier to credits so that a slight under-estimate of
// tokens does not cause a mid-job INSUFFICIENT_CREDITS surprise.
func Estimate(pageCount int, model string, pricingRate, safetyMultiplier float64) Result {
	tokens := pageCount * (tokensPerPageText + tokensPerPageImage)
	rawCredits := float64(tokens) / 1000.0 * pricingRate
	credits := int(math.Round(rawCredits * safetyMultiplier))
	return Result{
		EstimatedTokens:  tokens,
		EstimatedCredits: credits,
		PricingRate:      pricingRate,
		Model:            model,
	}
}
