// Package promptrouter classifies each preprocessed sentence into a
// handling tier (passthrough / light / heavy), driving how the
// Normalizer batches its LLM calls. Pure classification logic, no
// external dependency — mirrors the teacher's config.Get()-driven
// debug-flag style for the two override knobs.
package promptrouter

import "github.com/sahilchouksey/go-init-setup/internal/preprocess"

// Tier is one of the three sentence-handling tiers from spec.md 4.5.
type Tier string

const (
	TierPassthrough Tier = "passthrough"
	TierLight       Tier = "light"
	TierHeavy       Tier = "heavy"
)

// Config holds the two debug override flags spec.md 4.5 allows.
type Config struct {
	DisablePassthrough bool
	DisableBatching    bool
}

// Router classifies sentences into tiers.
type Router struct {
	cfg Config
}

// New constructs a Router.
func New(cfg Config) *Router {
	return &Router{cfg: cfg}
}

// Classify returns the tier for one sentence, per spec.md 4.5's table.
func (r *Router) Classify(s preprocess.Sentence) Tier {
	if !r.cfg.DisablePassthrough && s.TokenCount >= 4 && s.TokenCount <= 8 && s.HasVerb {
		return TierPassthrough
	}
	if s.ComplexityScore > 12 || s.TokenCount > 10 {
		return TierHeavy
	}
	return TierLight
}

// Batching reports whether light-tier sentences should be batched into
// a single LLM call (true) or issued one call per sentence (false, when
// DisableBatching is set for debugging).
func (r *Router) Batching() bool {
	return !r.cfg.DisableBatching
}
