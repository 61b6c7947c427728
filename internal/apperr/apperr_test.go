package apperr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassifyNormalizeError_NilIsNil(t *testing.T) {
	if got := ClassifyNormalizeError(nil); got != nil {
		t.Errorf("expected nil for nil error, got %v", got)
	}
}

func TestClassifyNormalizeError_Timeout(t *testing.T) {
	got := ClassifyNormalizeError(errors.New("context deadline exceeded"))
	if got.Code != CodeNormalizeTimeout || !got.Transient() {
		t.Errorf("expected transient %s, got code=%s transient=%v", CodeNormalizeTimeout, got.Code, got.Transient())
	}
}

func TestClassifyNormalizeError_RateLimit(t *testing.T) {
	got := ClassifyNormalizeError(errors.New("rate limit: status 429: too many requests"))
	if got.Code != CodeNormalizeRateLimit || !got.Transient() {
		t.Errorf("expected transient %s, got code=%s transient=%v", CodeNormalizeRateLimit, got.Code, got.Transient())
	}
}

func TestClassifyNormalizeError_ServerError(t *testing.T) {
	got := ClassifyNormalizeError(errors.New("5xx from provider: status 503: service unavailable"))
	if got.Code != CodeNormalizeTimeout || !got.Transient() {
		t.Errorf("expected transient %s, got code=%s transient=%v", CodeNormalizeTimeout, got.Code, got.Transient())
	}
}

func TestClassifyNormalizeError_ParseFailure(t *testing.T) {
	got := ClassifyNormalizeError(fmt.Errorf("invalid json: %w", errors.New("unexpected token")))
	if got.Code != CodeNormalizeParse || !got.Transient() {
		t.Errorf("expected transient %s, got code=%s transient=%v", CodeNormalizeParse, got.Code, got.Transient())
	}
}

func TestClassifyNormalizeError_AuthIsNonTransient(t *testing.T) {
	got := ClassifyNormalizeError(errors.New("auth error: status 401"))
	if got.Code != CodeInvalidInput || got.Transient() {
		t.Errorf("expected non-transient %s, got code=%s transient=%v", CodeInvalidInput, got.Code, got.Transient())
	}
}

func TestClassifyNormalizeError_UnknownFallsBackToNonTransientExhausted(t *testing.T) {
	got := ClassifyNormalizeError(errors.New("something unexpected happened"))
	if got.Code != CodeNormalizeExhausted || got.Transient() {
		t.Errorf("expected non-transient %s, got code=%s transient=%v", CodeNormalizeExhausted, got.Code, got.Transient())
	}
}

func TestAppError_UnwrapExposesWrapped(t *testing.T) {
	cause := errors.New("root cause")
	wrapped := Wrap(CodeInvalidPDF, "bad pdf", cause)
	if !errors.Is(wrapped, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestAppError_ErrorStringIncludesCodeAndMessage(t *testing.T) {
	err := New(CodeNotFound, "job not found")
	msg := err.Error()
	if !strings.Contains(msg, string(CodeNotFound)) || !strings.Contains(msg, "job not found") {
		t.Errorf("expected error string to include code and message, got %q", msg)
	}
}
