package jobengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/sahilchouksey/go-init-setup/internal/apperr"
	"github.com/sahilchouksey/go-init-setup/internal/ledger"
	"github.com/sahilchouksey/go-init-setup/model"
	"gorm.io/datatypes"
)

// Finalize is spec.md 4.8's finalize(job_id): merges every succeeded
// chunk's accepted sentences in chunk_index order, drops exact-text
// duplicates that fall inside a declared overlap window, persists the
// result as a History row, settles the credit reservation, and
// publishes the terminal progress event. It is the sole writer of
// Job.status -> completed|failed for a job that reached its fan-in
// point, whether reached via the successful-count path or the
// all-chunks-terminal path.
func (e *Engine) Finalize(ctx context.Context, jobID uint) error {
	job, err := e.store.GetJob(ctx, jobID, true)
	if err != nil {
		return err
	}
	if job.Status == model.JobStatusCancelled {
		return nil // already settled by Cancel
	}
	if job.History != nil {
		return nil // watchdog race: already finalized
	}

	chunks := sortedChunks(job.Chunks)

	succeeded := 0
	failed := 0
	var sentences []model.Sentence
	chunkIDs := make([]uint, 0, len(chunks))
	totalTokens := 0
	position := 0

	var prevAccepted []string
	for _, c := range chunks {
		chunkIDs = append(chunkIDs, c.ID)
		switch c.Status {
		case model.JobChunkStatusSucceeded:
			succeeded++
		case model.JobChunkStatusFailed:
			failed++
			continue
		default:
			// Not yet terminal: finalize was triggered prematurely by a
			// watchdog race. Bail out and let the real fan-in trigger retry
			// this later.
			return nil
		}

		var res chunkResult
		if c.ResultRef == "" {
			continue
		}
		if err := json.Unmarshal([]byte(c.ResultRef), &res); err != nil {
			log.Printf("[JOB-ENGINE] finalize: could not decode result for chunk %d: %v", c.ID, err)
			continue
		}
		totalTokens += res.TokensUsed

		accepted := res.AcceptedTexts
		if c.HasOverlap {
			accepted = dedupOverlap(prevAccepted, accepted)
		}
		for _, text := range accepted {
			sentences = append(sentences, model.Sentence{
				Text:          text,
				SourceChunkID: c.ID,
				Position:      position,
			})
			position++
		}
		prevAccepted = res.AcceptedTexts
	}

	if succeeded == 0 {
		return e.finalizeFailed(ctx, job, chunks, chunkIDs)
	}

	return e.finalizeCompleted(ctx, job, sentences, chunkIDs, totalTokens, failed)
}

// dedupOverlap drops any sentence in cur that is an exact-text match
// of a sentence carried by prev, per spec.md 4.3's "exact text
// equality within the overlap window" dedup rule.
func dedupOverlap(prev, cur []string) []string {
	if len(prev) == 0 {
		return cur
	}
	seen := make(map[string]bool, len(prev))
	for _, t := range prev {
		seen[strings.TrimSpace(t)] = true
	}
	out := make([]string, 0, len(cur))
	for _, t := range cur {
		if seen[strings.TrimSpace(t)] {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (e *Engine) finalizeCompleted(ctx context.Context, job *model.Job, sentences []model.Sentence, chunkIDs []uint, actualTokens, failedChunks int) error {
	history := &model.History{
		JobID:     job.ID,
		UserID:    job.UserID,
		Sentences: datatypes.NewJSONType(sentences),
		ChunkIDs:  datatypes.NewJSONType(chunkIDs),
		SettingsSnapshot: datatypes.NewJSONType(map[string]any{
			"model":           job.Model,
			"pricing_version": job.PricingVersion,
			"failed_chunks":   failedChunks,
		}),
	}
	if err := e.store.CreateHistory(ctx, history); err != nil {
		return err
	}

	actualCredits := actualCreditsFor(actualTokens, job.PricingRate)
	if err := e.store.DB().WithContext(ctx).Model(&model.Job{}).Where("id = ?", job.ID).
		Updates(map[string]any{
			"actual_tokens":  actualTokens,
			"actual_credits": actualCredits,
		}).Error; err != nil {
		return err
	}

	monthKey := ledger.MonthKey(job.CreatedAt)
	reserved, err := e.ledger.ReservedAmount(ctx, job.ID)
	if err == nil {
		if err := e.ledger.FinalizeAdjust(ctx, job.UserID, job.ID, monthKey, reserved, actualCredits, job.PricingVersion); err != nil {
			log.Printf("[JOB-ENGINE] finalize_adjust failed for job %d: %v", job.ID, err)
		}
	}

	if err := e.store.UpdateJobStatus(ctx, job.ID, model.JobStatusCompleted); err != nil {
		return err
	}
	e.publish(ctx, job.ID, 100, "Completed")
	return nil
}

func (e *Engine) finalizeFailed(ctx context.Context, job *model.Job, chunks []model.JobChunk, chunkIDs []uint) error {
	msg := fmt.Sprintf("all chunks failed: %s", modeErrorCode(chunks))
	if err := e.store.FailJob(ctx, job.ID, string(apperr.CodeAllChunksFailed), msg); err != nil {
		return err
	}
	if _, err := e.refundIfNeeded(ctx, job.ID); err != nil {
		log.Printf("[JOB-ENGINE] refund on all-chunks-failed for job %d: %v", job.ID, err)
	}
	e.publishFinal(ctx, job.ID)
	return nil
}

// modeErrorCode tallies each failed chunk's last_error_code and
// returns the most frequent one, per spec.md 4.8's "surface the
// most-frequent chunk error" requirement for ALL_CHUNKS_FAILED. Ties
// resolve to whichever code is encountered first in chunk_index order.
func modeErrorCode(chunks []model.JobChunk) string {
	counts := make(map[string]int)
	best := "UNKNOWN"
	bestCount := 0
	for _, c := range chunks {
		if c.Status != model.JobChunkStatusFailed || c.LastErrorCode == "" {
			continue
		}
		counts[c.LastErrorCode]++
		if counts[c.LastErrorCode] > bestCount {
			best = c.LastErrorCode
			bestCount = counts[c.LastErrorCode]
		}
	}
	return best
}

// actualCreditsFor mirrors internal/estimate's formula at the finalize
// boundary, without the safety multiplier (spec.md 8's S1 scenario:
// actual_tokens=9000 -> actual_credits=9 at pricing_rate=1, no safety
// factor applied to the settled amount).
func actualCreditsFor(tokens int, pricingRate float64) int {
	raw := float64(tokens) / 1000.0 * pricingRate
	return int(raw + 0.5)
}
