// Package scheduler implements the Scheduler (C10): a fixed-size
// worker pool executing queued tasks with bounded concurrency,
// soft/hard per-task time limits, and worker recycling after a task
// count cap. Grounded on
// _examples/zJUNAIDz-vibe-learning-dump/go-concurrency/projects/job-queue/final/job_queue.go
// (bounded workers, context-aware Enqueue, graceful Close with
// shutdown timeout, atomic metrics) and the semaphore+WaitGroup
// fan-out pattern in services/chunked_pyq_extractor.go's
// processChunksParallel.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Task is one unit of work submitted to the pool. Handler must be
// idempotent: the pool may re-run a task after a hard-timeout kill.
type Task struct {
	ID          string
	Handler     func(ctx context.Context) error
	SoftTimeout time.Duration
	HardTimeout time.Duration
}

// Config tunes the pool.
type Config struct {
	NumWorkers      int
	QueueSize       int
	TasksPerWorker  int // worker self-recycles after this many tasks (0 = unlimited)
	ShutdownTimeout time.Duration
}

// DefaultConfig matches spec.md 6's vCPU-sized default.
func DefaultConfig() Config {
	return Config{
		NumWorkers:      runtime.NumCPU(),
		QueueSize:       1000,
		TasksPerWorker:  500,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Pool is the C10 worker pool.
type Pool struct {
	tasks chan Task
	done  chan struct{}
	wg    sync.WaitGroup
	cfg   Config

	metrics struct {
		enqueued  uint64
		completed uint64
		failed    uint64
		requeued  uint64
	}
}

// New constructs and starts a Pool with cfg.NumWorkers workers.
func New(cfg Config) *Pool {
	if cfg.NumWorkers <= 0 {
		cfg = DefaultConfig()
	}
	p := &Pool{
		tasks: make(chan Task, cfg.QueueSize),
		done:  make(chan struct{}),
		cfg:   cfg,
	}
	for i := 0; i < cfg.NumWorkers; i++ {
		p.wg.Add(1)
		go p.runWorker(i)
	}
	return p
}

// Enqueue submits a task, blocking if the queue is full, honoring ctx
// cancellation and pool shutdown.
func (p *Pool) Enqueue(ctx context.Context, t Task) error {
	select {
	case <-p.done:
		return fmt.Errorf("scheduler: pool shutting down")
	default:
	}
	select {
	case p.tasks <- t:
		atomic.AddUint64(&p.metrics.enqueued, 1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return fmt.Errorf("scheduler: pool shutting down")
	}
}

// EnqueueAfter submits a task after delay, used for chunk retry
// backoff (spec.md 4.8's "re-enqueue the same chunk_id with backoff
// delay"). Runs the wait in its own goroutine so Enqueue's caller is
// never blocked.
func (p *Pool) EnqueueAfter(ctx context.Context, t Task, delay time.Duration) {
	atomic.AddUint64(&p.metrics.requeued, 1)
	go func() {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		case <-p.done:
			return
		}
		_ = p.Enqueue(ctx, t)
	}()
}

func (p *Pool) runWorker(id int) {
	defer p.wg.Done()
	processed := 0
	for {
		select {
		case <-p.done:
			return
		case t, ok := <-p.tasks:
			if !ok {
				return
			}
			p.execute(id, t)
			processed++
			if p.cfg.TasksPerWorker > 0 && processed >= p.cfg.TasksPerWorker {
				log.Printf("[SCHEDULER] worker %d recycling after %d tasks", id, processed)
				p.wg.Add(1)
				go p.runWorker(id)
				return
			}
		}
	}
}

// execute runs one task under its soft/hard timeout pair. The soft
// timeout cancels the task's context (cooperative); the hard timeout
// abandons waiting for it and lets the worker continue to the next
// task (the task goroutine leaks until it eventually observes
// cancellation, matching spec.md 5's "worker is terminated and the
// task re-queued" semantics at the pool level — re-enqueue itself is
// JobEngine's responsibility via the retry path).
func (p *Pool) execute(workerID int, t Task) {
	ctx, cancel := context.WithTimeout(context.Background(), effectiveHard(t))
	defer cancel()

	softCtx, softCancel := context.WithTimeout(ctx, effectiveSoft(t))
	defer softCancel()

	resultCh := make(chan error, 1)
	go func() {
		resultCh <- t.Handler(softCtx)
	}()

	select {
	case err := <-resultCh:
		if err != nil {
			atomic.AddUint64(&p.metrics.failed, 1)
			log.Printf("[SCHEDULER] worker %d task %s failed: %v", workerID, t.ID, err)
			return
		}
		atomic.AddUint64(&p.metrics.completed, 1)
	case <-ctx.Done():
		atomic.AddUint64(&p.metrics.failed, 1)
		log.Printf("[SCHEDULER] worker %d task %s hit hard timeout", workerID, t.ID)
	}
}

func effectiveSoft(t Task) time.Duration {
	if t.SoftTimeout > 0 {
		return t.SoftTimeout
	}
	return 300 * time.Second
}

func effectiveHard(t Task) time.Duration {
	if t.HardTimeout > 0 {
		return t.HardTimeout
	}
	return effectiveSoft(t) + 60*time.Second
}

// Close gracefully shuts down the pool, waiting up to
// cfg.ShutdownTimeout for in-flight workers to drain.
func (p *Pool) Close() error {
	close(p.done)
	waitCh := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
		return nil
	case <-time.After(p.cfg.ShutdownTimeout):
		return fmt.Errorf("scheduler: shutdown timeout")
	}
}

// Metrics returns a snapshot of pool counters.
func (p *Pool) Metrics() (enqueued, completed, failed, requeued uint64) {
	return atomic.LoadUint64(&p.metrics.enqueued),
		atomic.LoadUint64(&p.metrics.completed),
		atomic.LoadUint64(&p.metrics.failed),
		atomic.LoadUint64(&p.metrics.requeued)
}
