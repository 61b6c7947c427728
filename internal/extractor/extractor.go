// Package extractor supplies the default TextExtractor implementation
// declared as an external collaborator by spec.md section 1. It is a
// direct generalization of services/pdf_extractor.go's PDFExtractor,
// narrowed to page-range extraction keyed to chunker.PageRange rather
// than whole-document extraction.
package extractor

import (
	"bytes"
	"fmt"
	"log"
	"strings"

	"github.com/ledongthuc/pdf"
)

// TextExtractor is the interface JobEngine depends on; spec.md treats
// the concrete PDF byte extraction as out of scope, so callers may
// substitute a fake in tests.
type TextExtractor interface {
	ExtractPageRange(content []byte, startPage, endPage int) (string, error)
	PageCount(content []byte) (int, error)
}

// PDFTextExtractor wraps github.com/ledongthuc/pdf (MIT license),
// exactly the library the teacher already depends on.
type PDFTextExtractor struct{}

// New constructs a PDFTextExtractor.
func New() *PDFTextExtractor {
	return &PDFTextExtractor{}
}

// sanitizePDF strips trailing garbage past the last %%EOF marker,
// lifted verbatim in spirit from services/pdf_extractor.go: many PDFs
// downloaded from the web have HTML or tracking bytes appended after
// the real end-of-file marker.
func sanitizePDF(content []byte) []byte {
	if len(content) == 0 {
		return content
	}
	if !bytes.HasPrefix(content, []byte("%PDF-")) {
		return content
	}
	eofMarker := []byte("%%EOF")
	lastEOF := bytes.LastIndex(content, eofMarker)
	if lastEOF == -1 {
		return content
	}
	pdfEnd := lastEOF + len(eofMarker)
	for pdfEnd < len(content) && (content[pdfEnd] == '\n' || content[pdfEnd] == '\r') {
		pdfEnd++
	}
	if pdfEnd < len(content) && len(content)-pdfEnd > 10 {
		log.Printf("[EXTRACTOR] stripping %d bytes of trailing garbage after %%EOF", len(content)-pdfEnd)
		return content[:pdfEnd]
	}
	return content
}

// PageCount returns the total number of pages in content.
func (e *PDFTextExtractor) PageCount(content []byte) (int, error) {
	if len(content) == 0 {
		return 0, fmt.Errorf("empty PDF content")
	}
	content = sanitizePDF(content)
	reader := bytes.NewReader(content)
	pdfReader, err := pdf.NewReader(reader, int64(len(content)))
	if err != nil {
		return 0, fmt.Errorf("failed to parse PDF: %w", err)
	}
	return pdfReader.NumPage(), nil
}

// ExtractPageRange extracts text from pages [startPage, endPage]
// (1-indexed, inclusive), preserving row structure where possible and
// falling back to plain text per page.
func (e *PDFTextExtractor) ExtractPageRange(content []byte, startPage, endPage int) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("empty PDF content")
	}
	content = sanitizePDF(content)
	reader := bytes.NewReader(content)
	pdfReader, err := pdf.NewReader(reader, int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to parse PDF: %w", err)
	}

	numPages := pdfReader.NumPage()
	if numPages == 0 {
		return "", fmt.Errorf("PDF has no pages")
	}
	if startPage < 1 {
		startPage = 1
	}
	if endPage > numPages {
		endPage = numPages
	}
	if startPage > endPage {
		return "", fmt.Errorf("invalid page range: start=%d, end=%d", startPage, endPage)
	}

	var textBuilder strings.Builder
	for i := startPage; i <= endPage; i++ {
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			log.Printf("[EXTRACTOR] page %d is null, skipping", i)
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			text, plainErr := page.GetPlainText(nil)
			if plainErr != nil {
				log.Printf("[EXTRACTOR] failed to extract page %d: %v", i, plainErr)
				continue
			}
			textBuilder.WriteString(text)
			textBuilder.WriteString("\n")
			continue
		}
		for _, row := range rows {
			var rowText strings.Builder
			for _, word := range row.Content {
				rowText.WriteString(word.S)
			}
			line := strings.TrimSpace(rowText.String())
			if line != "" {
				textBuilder.WriteString(line)
				textBuilder.WriteString("\n")
			}
		}
		textBuilder.WriteString("\n")
	}

	extracted := strings.TrimSpace(textBuilder.String())
	log.Printf("[EXTRACTOR] extracted %d characters from pages %d-%d", len(extracted), startPage, endPage)
	return extracted, nil
}
