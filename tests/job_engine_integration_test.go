package tests

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sahilchouksey/go-init-setup/internal/chunker"
	"github.com/sahilchouksey/go-init-setup/internal/ledger"
	"github.com/sahilchouksey/go-init-setup/internal/store"
	"github.com/sahilchouksey/go-init-setup/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// jobEngineTestDB opens a direct GORM connection for job-engine
// integration tests, mirroring setupBatchIngestTestEnvironment's DSN
// assembly but scoped to just the tables this subsystem needs.
func jobEngineTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	required := []string{"DB_HOST", "DB_USER_NAME", "DB_PASSWORD", "DB_NAME", "DB_PORT"}
	var missing []string
	for _, v := range required {
		if os.Getenv(v) == "" {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		t.Skipf("missing required environment variables for job engine integration tests: %s", strings.Join(missing, ", "))
	}

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		os.Getenv("DB_HOST"), os.Getenv("DB_USER_NAME"), os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"), os.Getenv("DB_PORT"), getEnvOrDefault("DB_SSL_MODE", "disable"),
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}
	if err := db.AutoMigrate(&model.Job{}, &model.JobChunk{}, &model.History{}, &model.CreditLedgerEntry{}); err != nil {
		t.Fatalf("failed to migrate job engine tables: %v", err)
	}
	return db
}

func jobEngineTestUser(t *testing.T, db *gorm.DB) *model.User {
	t.Helper()
	email := fmt.Sprintf("job_engine_test_%d@test.com", time.Now().UnixNano())
	user := model.User{Email: email, PasswordHash: "test", PasswordSalt: []byte("salt"), Name: "Job Engine Test User", Role: "user"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return &user
}

// TestCreditLedger_ReserveFinalizeRoundTrip exercises the two-phase
// commit protocol spec.md 4.2 describes: grant, reserve, and a
// finalize_adjust that refunds the unused portion of the reservation.
func TestCreditLedger_ReserveFinalizeRoundTrip(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") != "true" {
		t.Skip("Skipping integration test. Set RUN_INTEGRATION_TESTS=true to run.")
	}

	log.Println("========================================")
	log.Println("TEST: Credit Ledger - Reserve/Finalize Round Trip")
	log.Println("========================================")

	db := jobEngineTestDB(t)
	user := jobEngineTestUser(t, db)
	s := store.New(db)
	l := ledger.New(s, -50)
	ctx := context.Background()
	monthKey := ledger.MonthKey(time.Now())

	if err := l.EnsureMonthlyGrant(ctx, user.ID, monthKey, 1000); err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	// A second grant call in the same month must be a no-op (idempotent).
	if err := l.EnsureMonthlyGrant(ctx, user.ID, monthKey, 1000); err != nil {
		t.Fatalf("second grant call failed: %v", err)
	}

	balance, err := l.Balance(ctx, user.ID, monthKey)
	if err != nil {
		t.Fatalf("balance lookup failed: %v", err)
	}
	if balance != 1000 {
		t.Fatalf("expected balance 1000 after idempotent grant, got %d", balance)
	}

	job := model.Job{UserID: user.ID, Status: model.JobStatusPending, PricingVersion: "v1"}
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("failed to create job: %v", err)
	}

	if err := l.Reserve(ctx, user.ID, job.ID, monthKey, 200, "v1"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	balance, _ = l.Balance(ctx, user.ID, monthKey)
	if balance != 800 {
		t.Fatalf("expected balance 800 after reserving 200, got %d", balance)
	}

	// Job only actually cost 120 credits; finalize_adjust should refund
	// the 80-credit difference.
	if err := l.FinalizeAdjust(ctx, user.ID, job.ID, monthKey, 200, 120, "v1"); err != nil {
		t.Fatalf("finalize_adjust failed: %v", err)
	}

	balance, _ = l.Balance(ctx, user.ID, monthKey)
	if balance != 880 {
		t.Fatalf("expected balance 880 after finalize_adjust, got %d", balance)
	}

	has, err := l.HasRefundOrAdjust(ctx, job.ID)
	if err != nil || !has {
		t.Errorf("expected HasRefundOrAdjust=true after finalize_adjust, got %v (err=%v)", has, err)
	}

	log.Printf("  ✓ Reserve/finalize round trip ended with balance=%d", balance)
}

// TestCreditLedger_ReserveRejectsBelowOverdraftFloor verifies spec.md
// 4.2's overdraft-floor guard: a reserve that would push the balance
// past the floor must fail with INSUFFICIENT_CREDITS and leave no
// ledger row behind.
func TestCreditLedger_ReserveRejectsBelowOverdraftFloor(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") != "true" {
		t.Skip("Skipping integration test. Set RUN_INTEGRATION_TESTS=true to run.")
	}

	db := jobEngineTestDB(t)
	user := jobEngineTestUser(t, db)
	s := store.New(db)
	l := ledger.New(s, 0) // no overdraft allowed
	ctx := context.Background()
	monthKey := ledger.MonthKey(time.Now())

	if err := l.EnsureMonthlyGrant(ctx, user.ID, monthKey, 100); err != nil {
		t.Fatalf("grant failed: %v", err)
	}

	job := model.Job{UserID: user.ID, Status: model.JobStatusPending, PricingVersion: "v1"}
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("failed to create job: %v", err)
	}

	err := l.Reserve(ctx, user.ID, job.ID, monthKey, 150, "v1")
	if err == nil {
		t.Fatal("expected reserve exceeding the floor to fail")
	}
	log.Printf("  ✓ Reserve correctly rejected: %v", err)

	balance, _ := l.Balance(ctx, user.ID, monthKey)
	if balance != 100 {
		t.Errorf("expected balance unchanged at 100 after rejected reserve, got %d", balance)
	}
}

// TestCreditLedger_RefundOnAbandonedJob exercises the watchdog path:
// a reserve with no matching finalize_adjust gets refunded in full.
func TestCreditLedger_RefundOnAbandonedJob(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") != "true" {
		t.Skip("Skipping integration test. Set RUN_INTEGRATION_TESTS=true to run.")
	}

	db := jobEngineTestDB(t)
	user := jobEngineTestUser(t, db)
	s := store.New(db)
	l := ledger.New(s, -50)
	ctx := context.Background()
	monthKey := ledger.MonthKey(time.Now())

	if err := l.EnsureMonthlyGrant(ctx, user.ID, monthKey, 500); err != nil {
		t.Fatalf("grant failed: %v", err)
	}

	job := model.Job{UserID: user.ID, Status: model.JobStatusFailed, PricingVersion: "v1"}
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("failed to create job: %v", err)
	}
	if err := l.Reserve(ctx, user.ID, job.ID, monthKey, 200, "v1"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	already, err := l.HasRefundOrAdjust(ctx, job.ID)
	if err != nil || already {
		t.Fatalf("expected no refund/adjust yet, got %v (err=%v)", already, err)
	}

	reserved, err := l.ReservedAmount(ctx, job.ID)
	if err != nil || reserved != 200 {
		t.Fatalf("expected reserved amount 200, got %d (err=%v)", reserved, err)
	}

	if err := l.Refund(ctx, user.ID, job.ID, monthKey, reserved, "v1"); err != nil {
		t.Fatalf("refund failed: %v", err)
	}

	balance, _ := l.Balance(ctx, user.ID, monthKey)
	if balance != 500 {
		t.Errorf("expected balance restored to 500 after refund, got %d", balance)
	}

	has, err := l.HasRefundOrAdjust(ctx, job.ID)
	if err != nil || !has {
		t.Errorf("expected HasRefundOrAdjust=true after refund, got %v (err=%v)", has, err)
	}
	log.Println("  ✓ Abandoned reservation correctly refunded")
}

// TestStore_IncrementCounterAndReadFanIn verifies the atomic counter
// the JobEngine's fan-in relies on: concurrent increments must each
// see a distinct, monotonically increasing count, and exactly one
// caller must observe the terminal count equal to total chunks.
func TestStore_IncrementCounterAndReadFanIn(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") != "true" {
		t.Skip("Skipping integration test. Set RUN_INTEGRATION_TESTS=true to run.")
	}

	db := jobEngineTestDB(t)
	user := jobEngineTestUser(t, db)
	const totalChunks = 8

	job := model.Job{UserID: user.ID, Status: model.JobStatusProcessing, TotalChunks: totalChunks, PricingVersion: "v1"}
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("failed to create job: %v", err)
	}

	s := store.New(db)
	ctx := context.Background()

	results := make(chan int, totalChunks)
	for i := 0; i < totalChunks; i++ {
		go func() {
			n, err := s.IncrementCounterAndRead(ctx, job.ID)
			if err != nil {
				t.Errorf("increment failed: %v", err)
				results <- -1
				return
			}
			results <- n
		}()
	}

	seen := map[int]bool{}
	terminalObservations := 0
	for i := 0; i < totalChunks; i++ {
		n := <-results
		if n == -1 {
			continue
		}
		if seen[n] {
			t.Errorf("counter value %d observed more than once — fan-in is not race-free", n)
		}
		seen[n] = true
		if n == totalChunks {
			terminalObservations++
		}
	}

	if terminalObservations != 1 {
		t.Errorf("expected exactly 1 caller to observe the terminal count %d, got %d", totalChunks, terminalObservations)
	}
	log.Printf("  ✓ %d concurrent increments produced %d distinct values, 1 terminal observation", totalChunks, len(seen))
}

// TestJobEngine_ChunkPlanningMatchesStore verifies that Chunker output
// can be persisted via Store.CreateChunks and read back unchanged,
// the handoff between C3 (plan) and C1 (persist) spec.md 4.8 assumes.
func TestJobEngine_ChunkPlanningMatchesStore(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") != "true" {
		t.Skip("Skipping integration test. Set RUN_INTEGRATION_TESTS=true to run.")
	}

	db := jobEngineTestDB(t)
	user := jobEngineTestUser(t, db)
	s := store.New(db)
	ctx := context.Background()

	job := model.Job{UserID: user.ID, Status: model.JobStatusPending, PricingVersion: "v1"}
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("failed to create job: %v", err)
	}

	plan := chunker.New().Plan(120)
	if len(plan) == 0 {
		t.Fatal("expected a non-empty chunk plan for 120 pages")
	}

	toCreate := make([]model.JobChunk, len(plan))
	for i, pr := range plan {
		toCreate[i] = model.JobChunk{
			ChunkIndex: i,
			PageStart:  pr.Start,
			PageEnd:    pr.End,
			HasOverlap: pr.HasOverlap,
			Status:     model.JobChunkStatusPending,
		}
	}
	if err := s.CreateChunks(ctx, job.ID, toCreate); err != nil {
		t.Fatalf("CreateChunks failed: %v", err)
	}

	chunks, err := s.ListChunks(ctx, job.ID)
	if err != nil {
		t.Fatalf("ListChunks failed: %v", err)
	}
	if len(chunks) != len(plan) {
		t.Fatalf("expected %d persisted chunks, got %d", len(plan), len(chunks))
	}
	for i, c := range chunks {
		if c.PageStart != plan[i].Start || c.PageEnd != plan[i].End {
			t.Errorf("chunk %d range mismatch: stored [%d,%d], planned [%d,%d]", i, c.PageStart, c.PageEnd, plan[i].Start, plan[i].End)
		}
		if c.Status != model.JobChunkStatusPending {
			t.Errorf("chunk %d expected pending status on creation, got %s", i, c.Status)
		}
	}
	log.Printf("  ✓ %d planned chunks persisted and read back unchanged", len(chunks))
}
