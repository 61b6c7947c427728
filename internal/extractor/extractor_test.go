package extractor

import (
	"strings"
	"testing"
)

func TestSanitizePDF_StripsTrailingGarbageAfterEOF(t *testing.T) {
	content := []byte("%PDF-1.4\n...body...\n%%EOF\n<html>tracking pixel junk</html>")
	out := sanitizePDF(content)
	if strings.Contains(string(out), "tracking pixel") {
		t.Errorf("expected trailing garbage after %%%%EOF to be stripped, got %q", out)
	}
	if !strings.HasSuffix(strings.TrimRight(string(out), "\n"), "%%EOF") {
		t.Errorf("expected output to end at %%%%EOF marker, got %q", out)
	}
}

func TestSanitizePDF_LeavesShortTrailerAlone(t *testing.T) {
	content := []byte("%PDF-1.4\n...body...\n%%EOF\n")
	out := sanitizePDF(content)
	if string(out) != string(content) {
		t.Errorf("expected content with no significant trailing bytes to pass through unchanged")
	}
}

func TestSanitizePDF_NonPDFContentPassesThrough(t *testing.T) {
	content := []byte("not a pdf at all")
	out := sanitizePDF(content)
	if string(out) != string(content) {
		t.Errorf("expected non-PDF content to pass through unchanged")
	}
}

func TestSanitizePDF_EmptyContent(t *testing.T) {
	if out := sanitizePDF(nil); out != nil {
		t.Errorf("expected nil in, nil out, got %v", out)
	}
}

func TestSanitizePDF_NoEOFMarkerPassesThrough(t *testing.T) {
	content := []byte("%PDF-1.4\nno eof marker here at all")
	out := sanitizePDF(content)
	if string(out) != string(content) {
		t.Errorf("expected content without %%%%EOF to pass through unchanged")
	}
}

func TestPageCount_EmptyContentErrors(t *testing.T) {
	e := New()
	if _, err := e.PageCount(nil); err == nil {
		t.Error("expected error for empty PDF content")
	}
}

func TestExtractPageRange_EmptyContentErrors(t *testing.T) {
	e := New()
	if _, err := e.ExtractPageRange(nil, 1, 1); err == nil {
		t.Error("expected error for empty PDF content")
	}
}

func TestExtractPageRange_MalformedContentErrors(t *testing.T) {
	e := New()
	if _, err := e.ExtractPageRange([]byte("not a real pdf"), 1, 1); err == nil {
		t.Error("expected error for unparsable PDF content")
	}
}
