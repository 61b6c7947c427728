package chunker

import "testing"

func TestPlan_SmallDocumentSingleChunk(t *testing.T) {
	c := New()
	chunks := c.Plan(30)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk for 30 pages, got %d", len(chunks))
	}
	if chunks[0].Start != 1 || chunks[0].End != 30 {
		t.Errorf("expected range [1,30], got [%d,%d]", chunks[0].Start, chunks[0].End)
	}
	if chunks[0].HasOverlap {
		t.Error("single chunk should not have overlap")
	}
}

func TestPlan_ZeroOrNegativePages(t *testing.T) {
	c := New()
	if got := c.Plan(0); got != nil {
		t.Errorf("expected nil for 0 pages, got %v", got)
	}
	if got := c.Plan(-5); got != nil {
		t.Errorf("expected nil for negative pages, got %v", got)
	}
}

func TestPlan_CoversEveryPageWithOverlap(t *testing.T) {
	c := New()
	chunks := c.Plan(180) // falls in the 51-200 tier -> 50 pages/chunk
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for 180 pages, got %d", len(chunks))
	}

	for i, ch := range chunks {
		if ch.Start > ch.End {
			t.Errorf("chunk %d has inverted range [%d,%d]", i, ch.Start, ch.End)
		}
		if i == 0 {
			if ch.HasOverlap {
				t.Error("first chunk must not be marked as overlapping")
			}
			continue
		}
		if !ch.HasOverlap {
			t.Errorf("chunk %d after the first must be marked as overlapping", i)
		}
		// Each chunk after the first must start at or before the previous
		// chunk's end, i.e. actually overlap by some pages.
		prev := chunks[i-1]
		if ch.Start > prev.End {
			t.Errorf("chunk %d does not overlap chunk %d: [%d,%d] vs [%d,%d]", i, i-1, ch.Start, ch.End, prev.Start, prev.End)
		}
	}

	if chunks[len(chunks)-1].End != 180 {
		t.Errorf("last chunk must reach the final page, got %d", chunks[len(chunks)-1].End)
	}
}

func TestPlan_LargeDocumentUsesSmallestTier(t *testing.T) {
	c := New()
	chunks := c.Plan(900)
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	// pagesPerChunk(900) == 30, so no single chunk should span more than
	// 30 pages.
	for i, ch := range chunks {
		span := ch.End - ch.Start + 1
		if span > 30 {
			t.Errorf("chunk %d spans %d pages, expected <= 30", i, span)
		}
	}
}
