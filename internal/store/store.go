// Package store provides typed, transactional persistence for Jobs,
// JobChunks, CreditLedger entries, and History, plus the handful of
// atomic primitives the JobEngine and CreditLedger rely on for
// race-free fan-in and resumable retries. It is a thin wrapper around
// *gorm.DB, built the way database/gorm.go bootstraps the teacher's
// GORMStore.
package store

import (
	"context"
	"errors"
	"log"
	"math"
	"strings"
	"time"

	"github.com/sahilchouksey/go-init-setup/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store wraps a *gorm.DB with the job-engine's persistence primitives.
type Store struct {
	db *gorm.DB
}

// New wraps an already-opened *gorm.DB (e.g. from database.GORMStore's
// underlying connection, obtained via GetDB().(*gorm.DB)).
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for callers that need raw GORM
// access (e.g. CreditLedger, which lives in a sibling package).
func (s *Store) DB() *gorm.DB { return s.db }

// transientSQLStates are Postgres SQLSTATE codes worth retrying inside
// SafeCommit: serialization_failure and deadlock_detected.
var transientSQLStates = map[string]bool{
	"40001": true,
	"40P01": true,
}

// SafeCommit runs fn inside a transaction, retrying on transient
// (serialization/deadlock) failures with exponential backoff up to
// maxAttempts. Non-transient failures are surfaced immediately. This
// generalizes the teacher's tx.Begin()/defer-recover/Rollback idiom
// (services/chunked_pyq_extractor.go's savePYQData) into a reusable
// retry wrapper, since spec.md requires every ledger/store write to
// go through a retrying commit.
func (s *Store) SafeCommit(ctx context.Context, maxAttempts int, fn func(tx *gorm.DB) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := s.db.WithContext(ctx).Transaction(fn)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTransient(err) {
			return err
		}
		backoff := time.Duration(math.Pow(2, float64(attempt-1))) * 50 * time.Millisecond
		log.Printf("[STORE] safe_commit: transient failure on attempt %d/%d, retrying in %v: %v", attempt, maxAttempts, backoff, err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	for code := range transientSQLStates {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return strings.Contains(msg, "deadlock") || strings.Contains(msg, "could not serialize") ||
		strings.Contains(msg, "connection reset") || strings.Contains(msg, "timeout")
}

// CreateJobWithChunks writes a Job and its planned JobChunks in a
// single transaction, as spec.md 3 requires ("JobChunks created in
// the same transaction as planning").
func (s *Store) CreateJobWithChunks(ctx context.Context, job *model.Job, chunks []model.JobChunk) error {
	return s.SafeCommit(ctx, 5, func(tx *gorm.DB) error {
		if err := tx.Create(job).Error; err != nil {
			return err
		}
		for i := range chunks {
			chunks[i].JobID = job.ID
		}
		if len(chunks) > 0 {
			if err := tx.Create(&chunks).Error; err != nil {
				return err
			}
		}
		job.Chunks = chunks
		return nil
	})
}

// CreateChunks persists a planned chunk set for an already-existing
// job, stamping job_id on each. Used by JobEngine.Start once chunk
// planning has run against the job's actual page count (CreateJobWithChunks
// covers the separate case of creating a job and its chunks together
// in one step).
func (s *Store) CreateChunks(ctx context.Context, jobID uint, chunks []model.JobChunk) error {
	for i := range chunks {
		chunks[i].JobID = jobID
	}
	return s.SafeCommit(ctx, 5, func(tx *gorm.DB) error {
		if len(chunks) == 0 {
			return nil
		}
		return tx.Create(&chunks).Error
	})
}

// GetJob loads a Job by id, optionally preloading chunks.
func (s *Store) GetJob(ctx context.Context, jobID uint, preloadChunks bool) (*model.Job, error) {
	var job model.Job
	q := s.db.WithContext(ctx)
	if preloadChunks {
		q = q.Preload("Chunks", func(db *gorm.DB) *gorm.DB {
			return db.Order("chunk_index ASC")
		})
	}
	if err := q.First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// UpdateJobStatus transitions a job's status field, stamping
// started_at/completed_at as appropriate. Only ever called through
// this helper per spec.md 5's "Job row: status ... mutated only
// through atomic helpers in Store."
func (s *Store) UpdateJobStatus(ctx context.Context, jobID uint, status model.JobStatus) error {
	updates := map[string]any{"status": status}
	now := time.Now()
	switch status {
	case model.JobStatusProcessing:
		updates["started_at"] = now
	case model.JobStatusCompleted, model.JobStatusFailed, model.JobStatusCancelled:
		updates["completed_at"] = now
	}
	return s.db.WithContext(ctx).Model(&model.Job{}).Where("id = ?", jobID).Updates(updates).Error
}

// UpdateJobProgress stamps progress_percent and current_step.
func (s *Store) UpdateJobProgress(ctx context.Context, jobID uint, progressPercent int, currentStep string) error {
	return s.db.WithContext(ctx).Model(&model.Job{}).Where("id = ?", jobID).
		Updates(map[string]any{"progress_percent": progressPercent, "current_step": currentStep}).Error
}

// FailJob marks a job failed with an error code/message.
func (s *Store) FailJob(ctx context.Context, jobID uint, code, message string) error {
	return s.db.WithContext(ctx).Model(&model.Job{}).Where("id = ?", jobID).
		Updates(map[string]any{
			"status":        model.JobStatusFailed,
			"error_code":    code,
			"error_message": message,
			"completed_at":  time.Now(),
		}).Error
}

// IncrementCounterAndRead atomically increments a Job's
// completed_chunks and returns the new value, used as the sole write
// path to completed_chunks (spec.md 4.1's invariant) and as the
// race-free fan-in signal for finalize.
func (s *Store) IncrementCounterAndRead(ctx context.Context, jobID uint) (int, error) {
	var newCount int
	err := s.SafeCommit(ctx, 5, func(tx *gorm.DB) error {
		if err := tx.Model(&model.Job{}).Where("id = ?", jobID).
			UpdateColumn("completed_chunks", gorm.Expr("completed_chunks + 1")).Error; err != nil {
			return err
		}
		var job model.Job
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&job, jobID).Error; err != nil {
			return err
		}
		newCount = job.CompletedChunks
		return nil
	})
	return newCount, err
}

// ClaimPendingChunk atomically selects one pending chunk for this job,
// marks it running, and stamps started_at/heartbeat_at. Uses
// SELECT ... FOR UPDATE SKIP LOCKED-style row locking (via
// clause.Locking) so two workers never claim the same chunk — this is
// the one primitive the teacher never directly demonstrates (no
// clause.Locking/FOR UPDATE anywhere in its tree); the surrounding
// transaction idiom still follows database/gorm.go.
func (s *Store) ClaimPendingChunk(ctx context.Context, jobID uint, workerID string) (*model.JobChunk, error) {
	var claimed *model.JobChunk
	err := s.SafeCommit(ctx, 5, func(tx *gorm.DB) error {
		var chunk model.JobChunk
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("job_id = ? AND status = ?", jobID, model.JobChunkStatusPending).
			Order("chunk_index ASC").
			First(&chunk).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			claimed = nil
			return nil
		}
		if err != nil {
			return err
		}
		now := time.Now()
		chunk.Status = model.JobChunkStatusRunning
		chunk.Attempts++
		chunk.WorkerID = workerID
		chunk.StartedAt = &now
		chunk.HeartbeatAt = &now
		if err := tx.Save(&chunk).Error; err != nil {
			return err
		}
		claimed = &chunk
		return nil
	})
	return claimed, err
}

// Heartbeat updates a running chunk's heartbeat_at. Fails if the
// chunk is not owned by workerID or is no longer running.
func (s *Store) Heartbeat(ctx context.Context, chunkID uint, workerID string) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&model.JobChunk{}).
		Where("id = ? AND worker_id = ? AND status = ?", chunkID, workerID, model.JobChunkStatusRunning).
		Update("heartbeat_at", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrChunkNotOwned
	}
	return nil
}

// SettleChunk transitions a running chunk to succeeded or failed,
// stamping finished_at and recording the result ref / error detail.
func (s *Store) SettleChunk(ctx context.Context, chunkID uint, outcome model.JobChunkStatus, resultRef string, errCode, errMsg string) error {
	now := time.Now()
	updates := map[string]any{
		"status":      outcome,
		"finished_at": now,
	}
	if resultRef != "" {
		updates["result_ref"] = resultRef
	}
	if errCode != "" {
		updates["last_error_code"] = errCode
	}
	if errMsg != "" {
		updates["last_error"] = errMsg
	}
	return s.db.WithContext(ctx).Model(&model.JobChunk{}).
		Where("id = ? AND status = ?", chunkID, model.JobChunkStatusRunning).
		Updates(updates).Error
}

// RequeueChunk resets a chunk back to pending for re-execution,
// leaving attempts/max_retries untouched (the claim step increments
// attempts again).
func (s *Store) RequeueChunk(ctx context.Context, chunkID uint) error {
	return s.db.WithContext(ctx).Model(&model.JobChunk{}).Where("id = ?", chunkID).
		Updates(map[string]any{"status": model.JobChunkStatusPending, "worker_id": ""}).Error
}

// ListChunks returns all chunks for a job ordered by chunk_index.
func (s *Store) ListChunks(ctx context.Context, jobID uint) ([]model.JobChunk, error) {
	var chunks []model.JobChunk
	err := s.db.WithContext(ctx).Where("job_id = ?", jobID).Order("chunk_index ASC").Find(&chunks).Error
	return chunks, err
}

// CreateHistory persists the finalized, merged sentence set for a job.
func (s *Store) CreateHistory(ctx context.Context, history *model.History) error {
	return s.db.WithContext(ctx).Create(history).Error
}

// StuckChunks returns running chunks whose heartbeat is older than
// threshold, for the stuck-chunk watchdog.
func (s *Store) StuckChunks(ctx context.Context, threshold time.Duration) ([]model.JobChunk, error) {
	var chunks []model.JobChunk
	cutoff := time.Now().Add(-threshold)
	err := s.db.WithContext(ctx).
		Where("status = ? AND heartbeat_at < ?", model.JobChunkStatusRunning, cutoff).
		Find(&chunks).Error
	return chunks, err
}

// UnfinalizedJobs returns jobs in status=processing whose chunks are
// all terminal and completed_chunks == total_chunks but have no
// History row yet — the fan-in safety net.
func (s *Store) UnfinalizedJobs(ctx context.Context) ([]model.Job, error) {
	var jobs []model.Job
	err := s.db.WithContext(ctx).
		Where("status = ? AND completed_chunks = total_chunks AND total_chunks > 0", model.JobStatusProcessing).
		Where("id NOT IN (SELECT job_id FROM histories)").
		Find(&jobs).Error
	return jobs, err
}

// RecentlyTerminalJobs returns jobs that reached a terminal status
// (completed/failed/cancelled) more than grace ago, for the
// abandoned-reservation watchdog to check against the ledger.
func (s *Store) RecentlyTerminalJobs(ctx context.Context, grace time.Duration) ([]model.Job, error) {
	var jobs []model.Job
	cutoff := time.Now().Add(-grace)
	err := s.db.WithContext(ctx).
		Where("status IN ? AND completed_at IS NOT NULL AND completed_at < ?",
			[]model.JobStatus{model.JobStatusCompleted, model.JobStatusFailed, model.JobStatusCancelled}, cutoff).
		Find(&jobs).Error
	return jobs, err
}

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrChunkNotOwned = errors.New("chunk not owned by worker or not running")
)
