package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_ExecutesEnqueuedTasks(t *testing.T) {
	pool := New(Config{NumWorkers: 2, QueueSize: 10, ShutdownTimeout: 2 * time.Second})
	defer pool.Close()

	var ran int32
	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		err := pool.Enqueue(context.Background(), Task{
			ID: "task",
			Handler: func(ctx context.Context) error {
				atomic.AddInt32(&ran, 1)
				done <- struct{}{}
				return nil
			},
		})
		if err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for tasks to run")
		}
	}

	if atomic.LoadInt32(&ran) != 3 {
		t.Errorf("expected 3 tasks to run, got %d", ran)
	}

	enqueued, completed, failed, _ := pool.Metrics()
	if enqueued != 3 || completed != 3 || failed != 0 {
		t.Errorf("unexpected metrics: enqueued=%d completed=%d failed=%d", enqueued, completed, failed)
	}
}

func TestPool_SoftTimeoutCancellationCountsAsFailure(t *testing.T) {
	pool := New(Config{NumWorkers: 1, QueueSize: 1, ShutdownTimeout: 2 * time.Second})
	defer pool.Close()

	blocked := make(chan struct{})
	err := pool.Enqueue(context.Background(), Task{
		ID:          "slow",
		SoftTimeout: 10 * time.Millisecond,
		HardTimeout: 20 * time.Millisecond,
		Handler: func(ctx context.Context) error {
			<-ctx.Done()
			close(blocked)
			return ctx.Err()
		},
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	select {
	case <-blocked:
	case <-time.After(1 * time.Second):
		t.Fatal("handler never observed cancellation")
	}

	time.Sleep(50 * time.Millisecond) // let execute() record the failure
	_, _, failed, _ := pool.Metrics()
	if failed != 1 {
		t.Errorf("expected 1 failed task from soft-timeout cancellation, got %d", failed)
	}
}

func TestPool_EnqueueRejectsAfterClose(t *testing.T) {
	pool := New(Config{NumWorkers: 1, QueueSize: 1, ShutdownTimeout: time.Second})
	if err := pool.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	err := pool.Enqueue(context.Background(), Task{ID: "after-close", Handler: func(ctx context.Context) error { return nil }})
	if err == nil {
		t.Error("expected enqueue after close to fail")
	}
}

func TestPool_EnqueueAfterDelaysExecution(t *testing.T) {
	pool := New(Config{NumWorkers: 1, QueueSize: 1, ShutdownTimeout: time.Second})
	defer pool.Close()

	done := make(chan time.Time, 1)
	start := time.Now()
	pool.EnqueueAfter(context.Background(), Task{
		ID: "delayed",
		Handler: func(ctx context.Context) error {
			done <- time.Now()
			return nil
		},
	}, 100*time.Millisecond)

	select {
	case ranAt := <-done:
		if ranAt.Sub(start) < 90*time.Millisecond {
			t.Errorf("expected task to run after ~100ms delay, ran after %v", ranAt.Sub(start))
		}
	case <-time.After(1 * time.Second):
		t.Fatal("delayed task never ran")
	}
}
