// Package normalizer is the Normalizer adapter (C6): it calls the LLM
// with a tier-appropriate prompt, parses its JSON-list-of-strings
// output (with one parse-retry), and classifies failures as transient
// or non-transient per spec.md 4.6's failure table. It generalizes
// services/digitalocean/inference.go's functional-options client and
// services/digitalocean/rate_limiter.go's token-bucket backoff away
// from DigitalOcean-specific framing, since the LLM itself is declared
// an external collaborator.
package normalizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sahilchouksey/go-init-setup/internal/apperr"
	"github.com/sahilchouksey/go-init-setup/internal/preprocess"
	"github.com/sahilchouksey/go-init-setup/internal/promptrouter"
)

// LLMClient is the external collaborator contract: a single
// chat-completion call with a prompt, returning raw text. The concrete
// DigitalOcean-flavored client (doclient.go) is one implementation;
// tests substitute a fake.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (text string, tokensUsed int, err error)
}

// Config tunes retry/backoff/timeout behavior.
type Config struct {
	CallTimeout     time.Duration
	MaxRetries      int
	BaseBackoff     time.Duration
	BackoffMultiple float64
}

// Normalizer is the C6 component.
type Normalizer struct {
	client LLMClient
	cfg    Config
}

// New constructs a Normalizer around an LLMClient.
func New(client LLMClient, cfg Config) *Normalizer {
	return &Normalizer{client: client, cfg: cfg}
}

// TokensUsed accumulates telemetry across Normalize calls for a chunk,
// read by JobEngine.finalize to compute actual_tokens.
type TokensUsed struct {
	Total int
}

// Normalize runs one tier-appropriate call (or batch of calls) over
// batch, returning normalized text per input sentence in the same
// order. On transient batch failure it falls back to per-sentence
// calls; a transient per-sentence failure returns the original text
// unchanged, to be filtered later by Validator, per spec.md 4.6. A
// non-transient failure (batch or per-sentence) is returned as an
// error.
func (n *Normalizer) Normalize(ctx context.Context, batch []preprocess.Sentence, tier promptrouter.Tier, telemetry *TokensUsed) ([]string, error) {
	if tier == promptrouter.TierPassthrough {
		out := make([]string, len(batch))
		for i, s := range batch {
			out[i] = s.Text
		}
		return out, nil
	}

	if len(batch) > 1 {
		out, err := n.callBatch(ctx, batch, tier, telemetry)
		if err == nil {
			return out, nil
		}
		classified := apperr.ClassifyNormalizeError(err)
		if classified != nil && !classified.Transient() {
			return nil, classified
		}
		// Fall back to per-sentence calls.
	}

	out := make([]string, len(batch))
	for i, s := range batch {
		text, err := n.callOne(ctx, s, tier, telemetry)
		if err != nil {
			classified := apperr.ClassifyNormalizeError(err)
			if classified != nil && !classified.Transient() {
				return nil, classified
			}
			out[i] = s.Text // unchanged, filtered later by Validator
			continue
		}
		out[i] = text
	}
	return out, nil
}

func (n *Normalizer) callBatch(ctx context.Context, batch []preprocess.Sentence, tier promptrouter.Tier, telemetry *TokensUsed) ([]string, error) {
	prompt := buildPrompt(batch, tier)
	texts, tokens, err := n.callWithRetry(ctx, prompt, len(batch))
	if telemetry != nil {
		telemetry.Total += tokens
	}
	return texts, err
}

func (n *Normalizer) callOne(ctx context.Context, s preprocess.Sentence, tier promptrouter.Tier, telemetry *TokensUsed) (string, error) {
	prompt := buildPrompt([]preprocess.Sentence{s}, tier)
	texts, tokens, err := n.callWithRetry(ctx, prompt, 1)
	if telemetry != nil {
		telemetry.Total += tokens
	}
	if err != nil {
		return "", err
	}
	if len(texts) == 0 {
		return "", fmt.Errorf("normalizer returned empty list")
	}
	return texts[0], nil
}

// callWithRetry enforces the per-call timeout and exponential backoff
// over transient failures, including one parse-retry for
// non-conforming JSON output, per spec.md 4.6.
func (n *Normalizer) callWithRetry(ctx context.Context, prompt string, expected int) ([]string, int, error) {
	var lastErr error
	parseRetried := false
	totalTokens := 0

	for attempt := 1; attempt <= n.cfg.MaxRetries+1; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, n.cfg.CallTimeout)
		raw, tokens, err := n.client.Complete(callCtx, prompt)
		cancel()
		totalTokens += tokens

		if err != nil {
			lastErr = err
			classified := apperr.ClassifyNormalizeError(err)
			if classified != nil && !classified.Transient() {
				return nil, totalTokens, classified
			}
			n.sleepBackoff(ctx, attempt)
			continue
		}

		texts, parseErr := parseJSONList(raw)
		if parseErr != nil {
			if !parseRetried {
				parseRetried = true
				lastErr = parseErr
				continue // one parse-retry, no backoff sleep required
			}
			return nil, totalTokens, apperr.Transientf(apperr.CodeNormalizeParse, "normalizer output failed to parse twice", parseErr)
		}
		return texts, totalTokens, nil
	}
	return nil, totalTokens, apperr.Transientf(apperr.CodeNormalizeExhausted, "normalizer retries exhausted", lastErr)
}

func (n *Normalizer) sleepBackoff(ctx context.Context, attempt int) {
	backoff := n.cfg.BaseBackoff
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * n.cfg.BackoffMultiple)
	}
	select {
	case <-time.After(backoff):
	case <-ctx.Done():
	}
}

func buildPrompt(batch []preprocess.Sentence, tier promptrouter.Tier) string {
	var b strings.Builder
	switch tier {
	case promptrouter.TierLight:
		b.WriteString("Make minor grammatical adjustments to each sentence below. Return a JSON list of strings, one per input sentence, same order.\n")
	case promptrouter.TierHeavy:
		b.WriteString("Decompose each complex sentence below into simpler sentences preserving meaning. Return a JSON list of strings, same order as input.\n")
	default:
		b.WriteString("Validate each sentence below is well-formed. Return a JSON list of strings, same order as input.\n")
	}
	for i, s := range batch {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s.Text)
	}
	return b.String()
}

// parseJSONList extracts a JSON array of strings from raw model
// output, tolerating markdown code fences the way
// utils/json_extractor.go's ExtractJSON does.
func parseJSONList(raw string) ([]string, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	start := strings.Index(trimmed, "[")
	end := strings.LastIndex(trimmed, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array found in output")
	}
	trimmed = trimmed[start : end+1]

	var out []string
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	return out, nil
}
