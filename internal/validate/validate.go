// Package validate implements the quality gate (C7): length, verb,
// and fragment rejection rules, plus the per-chunk pass-rate floor
// that settles a chunk as failed when too little survives. New code
// grounded stylistically on the teacher's small-pure-helper packages
// (utils/pdfvalidation) rather than on any single file, since no
// direct teacher analog for sentence-quality rules exists.
package validate

import (
	"regexp"
	"strings"
)

// RejectReason is the stats bucket a rejected sentence falls into.
type RejectReason string

const (
	RejectLength   RejectReason = "rejected_length"
	RejectNoVerb   RejectReason = "rejected_no_verb"
	RejectFragment RejectReason = "rejected_fragment"
)

// Stats tallies acceptance/rejection counts for one chunk.
type Stats struct {
	Total            int
	Accepted         int
	RejectedLength   int
	RejectedNoVerb   int
	RejectedFragment int
}

// PassRate returns accepted/total, or 1.0 for an empty input (vacuous
// pass — an empty batch is not itself a quality failure).
func (s Stats) PassRate() float64 {
	if s.Total == 0 {
		return 1.0
	}
	return float64(s.Accepted) / float64(s.Total)
}

// Config tunes the length bounds.
type Config struct {
	MinWords int
	MaxWords int
}

// Validator is the C7 component.
type Validator struct {
	cfg Config
}

// New constructs a Validator.
func New(cfg Config) *Validator {
	return &Validator{cfg: cfg}
}

var (
	relativePronounStart = regexp.MustCompile(`(?i)^(qui|que|dont|où|lequel|laquelle|lesquels|lesquelles)\b`)
	subordinatorStart    = regexp.MustCompile(`(?i)^(parce que|puisque|bien que|quoique|lorsque|quand|si|comme)\b`)
	prepositionStart     = regexp.MustCompile(`(?i)^(à|de|dans|sur|sous|avec|sans|pour|par|chez|entre|vers)\b`)
	hasVerbLike          = regexp.MustCompile(`(?i)\b(est|sont|était|étaient|a|ont|avait|avaient|fait|font|peut|peuvent|doit|doivent|sera|seront)\b`)
)

// isFragment applies spec.md 4.7 rule 3's three fragment heuristics.
func isFragment(sentence string) bool {
	s := strings.TrimSpace(sentence)
	if relativePronounStart.MatchString(s) {
		return true
	}
	if subordinatorStart.MatchString(s) {
		// Reject only if no internal main clause verb is found after the
		// subordinating conjunction's own clause, approximated here by
		// requiring at least one further verb-like token beyond the first
		// few words.
		fields := strings.Fields(s)
		if len(fields) < 4 || !hasVerbLike.MatchString(strings.Join(fields[3:], " ")) {
			return true
		}
	}
	if prepositionStart.MatchString(s) {
		fields := strings.Fields(s)
		half := len(fields) / 2
		if half == 0 {
			half = len(fields)
		}
		firstHalf := strings.Join(fields[:half], " ")
		if !hasVerbLike.MatchString(firstHalf) {
			return true
		}
	}
	return false
}

// Validate applies the three rejection rules to each candidate text
// in order (length, verb, fragment), returning accepted text plus
// per-reason stats. Rejected sentences are discarded, not repaired.
func (v *Validator) Validate(texts []string, hasVerb []bool) (accepted []string, stats Stats) {
	stats.Total = len(texts)
	for i, text := range texts {
		words := strings.Fields(text)
		tokenCount := len(words)

		if tokenCount < v.cfg.MinWords || tokenCount > v.cfg.MaxWords {
			stats.RejectedLength++
			continue
		}

		verbPresent := hasVerb[i]
		if !verbPresent {
			// Secondary heuristic check in case metadata wasn't supplied
			// (e.g. degraded preprocessing path).
			verbPresent = hasVerbLike.MatchString(text)
		}
		if !verbPresent {
			stats.RejectedNoVerb++
			continue
		}

		if isFragment(text) {
			stats.RejectedFragment++
			continue
		}

		accepted = append(accepted, text)
		stats.Accepted++
	}
	return accepted, stats
}
