package jobengine

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/sahilchouksey/go-init-setup/internal/apperr"
	"github.com/sahilchouksey/go-init-setup/internal/ledger"
	"github.com/sahilchouksey/go-init-setup/internal/scheduler"
	"github.com/sahilchouksey/go-init-setup/model"
)

// Watchdog runs the three reconciliation sweeps spec.md 4.8 names:
// stuck chunks (heartbeat gone silent), unfinalized jobs (fan-in
// missed by every worker), and abandoned reservations (a job left a
// ledger reserve that nothing ever settled). It is ticked by
// robfig/cron/v3, the same scheduler the teacher's CronManager already
// wraps for its own periodic jobs.
type Watchdog struct {
	engine *Engine
	cron   *cron.Cron
}

// NewWatchdog builds a Watchdog bound to engine.
func NewWatchdog(engine *Engine) *Watchdog {
	return &Watchdog{engine: engine, cron: cron.New()}
}

// Start schedules all three sweeps at engine.cfg.WatchdogTickInterval
// and starts the cron scheduler.
func (w *Watchdog) Start() error {
	spec := "@every " + w.engine.cfg.WatchdogTickInterval.String()
	if _, err := w.cron.AddFunc(spec, w.sweepStuckChunks); err != nil {
		return err
	}
	if _, err := w.cron.AddFunc(spec, w.sweepUnfinalizedJobs); err != nil {
		return err
	}
	if _, err := w.cron.AddFunc(spec, w.sweepAbandonedReservations); err != nil {
		return err
	}
	w.cron.Start()
	return nil
}

// Stop halts the cron scheduler, waiting for any in-flight sweep.
func (w *Watchdog) Stop() {
	ctx := w.cron.Stop()
	<-ctx.Done()
}

// sweepStuckChunks requeues running chunks whose heartbeat has gone
// silent past the stuck threshold, or fails them outright once
// retries are exhausted, per spec.md 4.8's stuck-chunk watchdog.
func (w *Watchdog) sweepStuckChunks() {
	ctx := context.Background()
	chunks, err := w.engine.store.StuckChunks(ctx, w.engine.cfg.ChunkStuckThreshold)
	if err != nil {
		log.Printf("[WATCHDOG] stuck-chunk scan failed: %v", err)
		return
	}
	for _, c := range chunks {
		if c.ExhaustedRetries() {
			if err := w.engine.store.SettleChunk(ctx, c.ID, model.JobChunkStatusFailed, "", string(apperr.CodeStuck), "worker heartbeat stopped and retries exhausted"); err != nil {
				log.Printf("[WATCHDOG] failed to settle exhausted stuck chunk %d: %v", c.ID, err)
				continue
			}
			w.engine.maybeFinalizeAfterTerminalFailure(ctx, c.JobID)
			continue
		}
		if err := w.engine.store.SettleChunk(ctx, c.ID, model.JobChunkStatusFailed, "", string(apperr.CodeStuck), "worker heartbeat stopped"); err != nil {
			log.Printf("[WATCHDOG] failed to settle stuck chunk %d before requeue: %v", c.ID, err)
			continue
		}
		if err := w.engine.store.RequeueChunk(ctx, c.ID); err != nil {
			log.Printf("[WATCHDOG] failed to requeue stuck chunk %d: %v", c.ID, err)
			continue
		}
		job, err := w.engine.store.GetJob(ctx, c.JobID, false)
		if err != nil {
			continue
		}
		pdfContent, err := w.engine.pdfBytes(ctx, job)
		if err != nil {
			log.Printf("[WATCHDOG] could not load PDF to re-enqueue stuck chunk %d: %v", c.ID, err)
			continue
		}
		w.engine.scheduler.EnqueueAfter(ctx, scheduler.Task{
			ID:          fmt.Sprintf("job-%d-chunk-%d-stuck-retry", c.JobID, c.ID),
			SoftTimeout: w.engine.cfg.JobSoftTimeout,
			Handler: func(taskCtx context.Context) error {
				w.engine.processChunk(taskCtx, c.JobID, c.ID, pdfContent)
				return nil
			},
		}, 0)
		log.Printf("[WATCHDOG] requeued stuck chunk %d (job %d)", c.ID, c.JobID)
	}
}

// sweepUnfinalizedJobs catches the case where every chunk settled but
// the worker that observed the terminal increment crashed before
// calling finalize — the safety net behind the atomic-counter fan-in.
func (w *Watchdog) sweepUnfinalizedJobs() {
	ctx := context.Background()
	jobs, err := w.engine.store.UnfinalizedJobs(ctx)
	if err != nil {
		log.Printf("[WATCHDOG] unfinalized-job scan failed: %v", err)
		return
	}
	for _, j := range jobs {
		log.Printf("[WATCHDOG] finalizing orphaned job %d", j.ID)
		if err := w.engine.Finalize(ctx, j.ID); err != nil {
			log.Printf("[WATCHDOG] finalize failed for orphaned job %d: %v", j.ID, err)
		}
	}
}

// sweepAbandonedReservations refunds any job whose ledger reserve was
// never matched by a finalize_adjust or refund entry and which has sat
// in a terminal status (failed/cancelled outside the normal path, e.g.
// a process crash mid-finalize) past a grace window.
func (w *Watchdog) sweepAbandonedReservations() {
	ctx := context.Background()
	grace := w.engine.cfg.ChunkStuckThreshold * 4
	jobs, err := w.engine.store.RecentlyTerminalJobs(ctx, grace)
	if err != nil {
		log.Printf("[WATCHDOG] abandoned-reservation scan failed: %v", err)
		return
	}
	for _, j := range jobs {
		already, err := w.engine.ledger.HasRefundOrAdjust(ctx, j.ID)
		if err != nil || already {
			continue
		}
		reserved, err := w.engine.ledger.ReservedAmount(ctx, j.ID)
		if err != nil {
			continue
		}
		monthKey := ledger.MonthKey(j.CreatedAt)
		if err := w.engine.ledger.Refund(ctx, j.UserID, j.ID, monthKey, reserved, j.PricingVersion); err != nil {
			log.Printf("[WATCHDOG] abandoned-reservation refund failed for job %d: %v", j.ID, err)
			continue
		}
		log.Printf("[WATCHDOG] refunded abandoned reservation for job %d", j.ID)
	}
}

// ForceFinalize is ControlAPI's admin override: re-run finalize for
// one job regardless of watchdog timing, used when an operator has
// confirmed the job is actually done despite the automatic sweep not
// having triggered yet.
func (e *Engine) ForceFinalize(ctx context.Context, jobID uint) error {
	job, err := e.store.GetJob(ctx, jobID, false)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return apperr.New(apperr.CodeAlreadyTerminal, "job is already in a terminal state")
	}
	return e.Finalize(ctx, jobID)
}
