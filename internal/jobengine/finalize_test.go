package jobengine

import (
	"testing"

	"github.com/sahilchouksey/go-init-setup/model"
)

func TestDedupOverlap_DropsExactMatchesFromPrevWindow(t *testing.T) {
	prev := []string{"The lab meets on Tuesday.", "It starts at nine."}
	cur := []string{"It starts at nine.", "Attendance is mandatory."}

	out := dedupOverlap(prev, cur)
	if len(out) != 1 || out[0] != "Attendance is mandatory." {
		t.Errorf("expected only the non-duplicate sentence to survive, got %v", out)
	}
}

func TestDedupOverlap_TrimsWhitespaceBeforeComparing(t *testing.T) {
	prev := []string{"  Padded sentence.  "}
	cur := []string{"Padded sentence."}

	out := dedupOverlap(prev, cur)
	if len(out) != 0 {
		t.Errorf("expected whitespace-padded duplicate to be dropped, got %v", out)
	}
}

func TestDedupOverlap_EmptyPrevReturnsCurUnchanged(t *testing.T) {
	cur := []string{"a", "b"}
	out := dedupOverlap(nil, cur)
	if len(out) != 2 || out[0] != "a" || out[1] != "b" {
		t.Errorf("expected cur unchanged when prev is empty, got %v", out)
	}
}

func TestSortedChunks_OrdersByChunkIndex(t *testing.T) {
	chunks := []model.JobChunk{
		{ChunkIndex: 2}, {ChunkIndex: 0}, {ChunkIndex: 1},
	}
	out := sortedChunks(chunks)
	for i, c := range out {
		if c.ChunkIndex != i {
			t.Errorf("expected chunk at position %d to have index %d, got %d", i, i, c.ChunkIndex)
		}
	}
}

func TestActualCreditsFor_MatchesEstimateFormulaWithoutSafetyFactor(t *testing.T) {
	got := actualCreditsFor(9000, 1.0)
	if got != 9 {
		t.Errorf("expected 9 credits for 9000 tokens at rate 1.0, got %d", got)
	}
}

func TestActualCreditsFor_RoundsHalfUp(t *testing.T) {
	got := actualCreditsFor(1500, 1.0) // 1.5 credits -> rounds to 2
	if got != 2 {
		t.Errorf("expected rounding 1.5 up to 2, got %d", got)
	}
}

func TestActualCreditsFor_ZeroTokensIsZeroCredits(t *testing.T) {
	if got := actualCreditsFor(0, 2.5); got != 0 {
		t.Errorf("expected 0 credits for 0 tokens, got %d", got)
	}
}
