// Package chunker adaptively splits a PDF's page range into
// overlapping chunks for parallel processing. It generalizes
// services/pdf_extractor.go's CalculateChunks (flat
// PagesPerChunk/OverlapPages) into the spec's page-count-adaptive
// tiers with a fixed 2-page overlap.
package chunker

import "log"

// PageRange is an inclusive, 1-indexed page span.
type PageRange struct {
	Start      int
	End        int
	HasOverlap bool
}

const overlapPages = 2

// Chunker plans chunk boundaries for a document.
type Chunker struct{}

// New constructs a Chunker. It holds no state; planning is a pure
// function of total page count.
func New() *Chunker {
	return &Chunker{}
}

// pagesPerChunk implements spec.md 4.3's adaptive size-selection table.
func pagesPerChunk(totalPages int) int {
	switch {
	case totalPages <= 50:
		return totalPages
	case totalPages <= 200:
		return 50
	case totalPages <= 500:
		return 40
	default:
		return 30
	}
}

// Plan returns an ordered list of page ranges covering totalPages,
// with has_overlap=false for the single-chunk (<=50 pages) case and
// has_overlap=true on every chunk after the first otherwise.
func (c *Chunker) Plan(totalPages int) []PageRange {
	if totalPages <= 0 {
		return nil
	}

	size := pagesPerChunk(totalPages)
	if totalPages <= 50 {
		return []PageRange{{Start: 1, End: totalPages, HasOverlap: false}}
	}

	step := size - overlapPages
	if step <= 0 {
		step = 1
	}

	var chunks []PageRange
	for start := 1; start <= totalPages; {
		end := start + size - 1
		if end > totalPages {
			end = totalPages
		}
		chunks = append(chunks, PageRange{
			Start:      start,
			End:        end,
			HasOverlap: start > 1,
		})
		if end >= totalPages {
			break
		}
		start += step
	}

	log.Printf("[CHUNKER] planned %d chunks for %d pages (pagesPerChunk=%d, overlap=%d)",
		len(chunks), totalPages, size, overlapPages)
	return chunks
}
