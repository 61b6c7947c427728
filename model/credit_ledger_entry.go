package model

import "time"

// CreditLedgerReason enumerates why a ledger delta was appended.
type CreditLedgerReason string

const (
	CreditReasonGrant         CreditLedgerReason = "grant"
	CreditReasonReserve       CreditLedgerReason = "reserve"
	CreditReasonFinalizeAdjust CreditLedgerReason = "finalize_adjust"
	CreditReasonRefund        CreditLedgerReason = "refund"
	CreditReasonAdminAdjust   CreditLedgerReason = "admin_adjust"
)

// CreditLedgerEntry is one append-only row in a user's credit ledger.
// Balance for (user_id, month_key) is the sum of delta over all rows;
// rows are never updated or deleted by ordinary code paths.
type CreditLedgerEntry struct {
	ID             uint                `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time           `json:"created_at"`
	UserID         uint                `gorm:"index:idx_user_month,priority:1;uniqueIndex:idx_user_month_reason,priority:1;not null" json:"user_id"`
	Delta          int                 `json:"delta"`
	Reason         CreditLedgerReason  `gorm:"type:varchar(20);uniqueIndex:idx_user_month_reason,priority:3,where:reason = 'grant';not null" json:"reason"`
	MonthKey       string              `gorm:"type:varchar(7);index:idx_user_month,priority:2;uniqueIndex:idx_user_month_reason,priority:2;not null" json:"month_key"`
	JobID          *uint               `gorm:"index" json:"job_id,omitempty"`
	PricingVersion string              `gorm:"type:varchar(20)" json:"pricing_version,omitempty"`
}

func (CreditLedgerEntry) TableName() string { return "credit_ledger" }
