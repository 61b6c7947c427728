package normalizer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sahilchouksey/go-init-setup/internal/preprocess"
	"github.com/sahilchouksey/go-init-setup/internal/promptrouter"
)

type fakeLLM struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, int, error) {
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var text string
	if i < len(f.responses) {
		text = f.responses[i]
	}
	return text, 10, err
}

func testConfig() Config {
	return Config{
		CallTimeout:     time.Second,
		MaxRetries:      2,
		BaseBackoff:     time.Millisecond,
		BackoffMultiple: 2,
	}
}

func TestNormalize_PassthroughTierReturnsInputUnchanged(t *testing.T) {
	n := New(&fakeLLM{}, testConfig())
	batch := []preprocess.Sentence{{Text: "hello there"}, {Text: "general kenobi"}}

	out, err := n.Normalize(context.Background(), batch, promptrouter.TierPassthrough, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0] != "hello there" || out[1] != "general kenobi" {
		t.Errorf("expected passthrough to return input unchanged, got %v", out)
	}
}

func TestNormalize_SingleSentenceParsesJSONList(t *testing.T) {
	client := &fakeLLM{responses: []string{`["corrected sentence."]`}}
	n := New(client, testConfig())

	var telemetry TokensUsed
	out, err := n.Normalize(context.Background(), []preprocess.Sentence{{Text: "a sentence"}}, promptrouter.TierLight, &telemetry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0] != "corrected sentence." {
		t.Errorf("expected 1 normalized sentence, got %v", out)
	}
	if telemetry.Total == 0 {
		t.Error("expected telemetry to accumulate tokens")
	}
}

func TestNormalize_TolersMarkdownFencedJSON(t *testing.T) {
	client := &fakeLLM{responses: []string{"```json\n[\"one\", \"two\"]\n```"}}
	n := New(client, testConfig())

	out, err := n.Normalize(context.Background(), []preprocess.Sentence{{Text: "a"}, {Text: "b"}}, promptrouter.TierHeavy, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 || out[0] != "one" || out[1] != "two" {
		t.Errorf("expected fenced JSON to parse, got %v", out)
	}
}

func TestNormalize_OneParseRetryThenSucceeds(t *testing.T) {
	client := &fakeLLM{responses: []string{"not json at all", `["fixed"]`}}
	n := New(client, testConfig())

	out, err := n.Normalize(context.Background(), []preprocess.Sentence{{Text: "a"}}, promptrouter.TierLight, nil)
	if err != nil {
		t.Fatalf("unexpected error after one parse retry: %v", err)
	}
	if len(out) != 1 || out[0] != "fixed" {
		t.Errorf("expected retry to recover, got %v", out)
	}
}

func TestNormalize_BatchFailureFallsBackToPerSentence(t *testing.T) {
	client := &fakeLLM{
		// all 3 batch attempts (MaxRetries=2) fail transiently, exhausting
		// the batch call and forcing a fall back to one call per sentence.
		responses: []string{"", "", "", `["x fixed"]`, `["y fixed"]`},
		errs: []error{
			errors.New("connection reset"), errors.New("connection reset"), errors.New("connection reset"),
			nil, nil,
		},
	}
	n := New(client, testConfig())

	out, err := n.Normalize(context.Background(), []preprocess.Sentence{{Text: "x"}, {Text: "y"}}, promptrouter.TierHeavy, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 || out[0] != "x fixed" || out[1] != "y fixed" {
		t.Errorf("expected per-sentence fallback results, got %v", out)
	}
}

func TestNormalize_NonTransientErrorIsNotRetried(t *testing.T) {
	client := &fakeLLM{errs: []error{errors.New("auth error: status 401")}}
	n := New(client, testConfig())

	_, err := n.Normalize(context.Background(), []preprocess.Sentence{{Text: "a"}}, promptrouter.TierLight, nil)
	if err == nil {
		t.Fatal("expected non-transient error to propagate")
	}
	if client.calls != 1 {
		t.Errorf("expected exactly 1 call for a non-transient error, got %d", client.calls)
	}
}

func TestNormalize_PerSentenceFailureFallsBackToOriginalText(t *testing.T) {
	client := &fakeLLM{
		errs: []error{
			errors.New("timeout"), errors.New("timeout"), errors.New("timeout"),
		},
	}
	n := New(client, testConfig())

	out, err := n.Normalize(context.Background(), []preprocess.Sentence{{Text: "unchanged text"}}, promptrouter.TierLight, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0] != "unchanged text" {
		t.Errorf("expected original text preserved after exhausted retries, got %q", out[0])
	}
}
