// Package ledger implements the append-only credit ledger described
// in spec.md 4.2: monthly grants, two-phase reserve/finalize_adjust,
// refund, and admin adjustments. It is re-expressed in the teacher's
// GORM+Postgres idiom; the reserve/finalize/refund naming convention
// is grounded conceptually on other_examples' ledger.go (a non-teacher
// file, mined for naming only, not copied — see DESIGN.md).
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/sahilchouksey/go-init-setup/internal/apperr"
	"github.com/sahilchouksey/go-init-setup/internal/store"
	"github.com/sahilchouksey/go-init-setup/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger is the CreditLedger component (C2).
type Ledger struct {
	store          *store.Store
	overdraftFloor int
}

// New constructs a Ledger bound to the shared Store's *gorm.DB.
func New(s *store.Store, overdraftFloor int) *Ledger {
	return &Ledger{store: s, overdraftFloor: overdraftFloor}
}

// MonthKey returns the stable "YYYY-MM" identifier for t's month.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// EnsureMonthlyGrant idempotently inserts a grant delta for
// (user, month_key) if one does not already exist, using
// INSERT ... ON CONFLICT DO NOTHING the way spec.md 5 prescribes for
// avoiding duplicate-grant races across concurrent workers. The
// conflict target matches CreditLedgerEntry's partial unique index
// idx_user_month_reason (user_id, month_key, reason), which is scoped
// to reason='grant' by its own WHERE predicate — reserve/refund/
// finalize_adjust rows share the same (user_id, month_key, reason)
// shape across many jobs per month and must stay outside the
// constraint, so the ON CONFLICT target's TargetWhere has to repeat
// that same predicate or Postgres won't accept the partial index as
// an arbiter (42P10).
func (l *Ledger) EnsureMonthlyGrant(ctx context.Context, userID uint, monthKey string, grantAmount int) error {
	entry := model.CreditLedgerEntry{
		UserID:   userID,
		Delta:    grantAmount,
		Reason:   model.CreditReasonGrant,
		MonthKey: monthKey,
	}
	return l.store.DB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:     []clause.Column{{Name: "user_id"}, {Name: "month_key"}, {Name: "reason"}},
			TargetWhere: clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "reason = ?", Vars: []interface{}{string(model.CreditReasonGrant)}}}},
			DoNothing:   true,
		}).
		Create(&entry).Error
}

// Balance returns the current (user, month_key) balance: the sum of
// all ledger deltas.
func (l *Ledger) Balance(ctx context.Context, userID uint, monthKey string) (int, error) {
	var sum *int
	err := l.store.DB().WithContext(ctx).Model(&model.CreditLedgerEntry{}).
		Select("SUM(delta)").
		Where("user_id = ? AND month_key = ?", userID, monthKey).
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}

// Reserve appends a reserve delta of -credits under a user-scoped row
// lock, failing with INSUFFICIENT_CREDITS if balance-credits would
// breach the overdraft floor.
func (l *Ledger) Reserve(ctx context.Context, userID, jobID uint, monthKey string, credits int, pricingVersion string) error {
	return l.store.SafeCommit(ctx, 5, func(tx *gorm.DB) error {
		return l.ReserveTx(tx, userID, jobID, monthKey, credits, pricingVersion)
	})
}

// ReserveTx is Reserve's body, taking an already-open transaction so
// callers that must create the Job row and reserve its credits
// atomically (ControlAPI's confirm, per spec.md:65/282 — no Job row
// may survive an INSUFFICIENT_CREDITS failure) can run both writes
// under one commit/rollback via store.SafeCommit themselves.
func (l *Ledger) ReserveTx(tx *gorm.DB, userID, jobID uint, monthKey string, credits int, pricingVersion string) error {
	// Row-scoped lock: lock any existing ledger row for this user+month
	// to serialize concurrent reserve attempts. If none exists yet the
	// advisory ordering is provided by the unique (user_id, month_key,
	// reason=grant) row created by EnsureMonthlyGrant, which every
	// reserve call is preceded by.
	var rows []model.CreditLedgerEntry
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND month_key = ?", userID, monthKey).
		Find(&rows).Error; err != nil {
		return err
	}
	balance := 0
	for _, r := range rows {
		balance += r.Delta
	}
	if balance-credits < l.overdraftFloor {
		return apperr.New(apperr.CodeInsufficientCredits,
			fmt.Sprintf("required %d credits, available %d", credits, balance))
	}
	entry := model.CreditLedgerEntry{
		UserID:         userID,
		Delta:          -credits,
		Reason:         model.CreditReasonReserve,
		MonthKey:       monthKey,
		JobID:          &jobID,
		PricingVersion: pricingVersion,
	}
	return tx.Create(&entry).Error
}

// FinalizeAdjust appends delta = reserved - actualCredits on a
// successful job completion. delta may be positive (refund of
// over-reservation) or negative (additional charge, bounded by the
// overdraft floor having already been checked at reserve time). A
// zero delta is still appended, so HasRefundOrAdjust sees the
// reservation as settled.
func (l *Ledger) FinalizeAdjust(ctx context.Context, userID, jobID uint, monthKey string, reserved, actualCredits int, pricingVersion string) error {
	delta := reserved - actualCredits
	entry := model.CreditLedgerEntry{
		UserID:         userID,
		Delta:          delta,
		Reason:         model.CreditReasonFinalizeAdjust,
		MonthKey:       monthKey,
		JobID:          &jobID,
		PricingVersion: pricingVersion,
	}
	return l.store.SafeCommit(ctx, 5, func(tx *gorm.DB) error {
		return tx.Create(&entry).Error
	})
}

// Refund appends +reserved on cancellation/failure.
func (l *Ledger) Refund(ctx context.Context, userID, jobID uint, monthKey string, reserved int, pricingVersion string) error {
	entry := model.CreditLedgerEntry{
		UserID:         userID,
		Delta:          reserved,
		Reason:         model.CreditReasonRefund,
		MonthKey:       monthKey,
		JobID:          &jobID,
		PricingVersion: pricingVersion,
	}
	return l.store.SafeCommit(ctx, 5, func(tx *gorm.DB) error {
		return tx.Create(&entry).Error
	})
}

// AdminAdjust appends an arbitrary admin-initiated delta.
func (l *Ledger) AdminAdjust(ctx context.Context, userID uint, monthKey string, delta int, reason string) error {
	entry := model.CreditLedgerEntry{
		UserID:   userID,
		Delta:    delta,
		Reason:   model.CreditReasonAdminAdjust,
		MonthKey: monthKey,
	}
	return l.store.SafeCommit(ctx, 5, func(tx *gorm.DB) error {
		return tx.Create(&entry).Error
	})
}

// HasRefundOrAdjust reports whether a job's reserve has already been
// compensated by a finalize_adjust or refund entry, used by the
// abandoned-reservation watchdog to avoid double-refunding.
func (l *Ledger) HasRefundOrAdjust(ctx context.Context, jobID uint) (bool, error) {
	var count int64
	err := l.store.DB().WithContext(ctx).Model(&model.CreditLedgerEntry{}).
		Where("job_id = ? AND reason IN ?", jobID, []model.CreditLedgerReason{
			model.CreditReasonFinalizeAdjust, model.CreditReasonRefund,
		}).Count(&count).Error
	return count > 0, err
}

// ReservedAmount returns the magnitude of the reserve entry for a job
// (i.e. the credits originally reserved), used by refund/finalize.
func (l *Ledger) ReservedAmount(ctx context.Context, jobID uint) (int, error) {
	var entry model.CreditLedgerEntry
	err := l.store.DB().WithContext(ctx).
		Where("job_id = ? AND reason = ?", jobID, model.CreditReasonReserve).
		First(&entry).Error
	if err != nil {
		return 0, err
	}
	return -entry.Delta, nil
}
