package model

// PricingRate is a static, versioned credits-per-1000-tokens table.
// database/gorm.go migrates it, but no code in this repository inserts
// rows; Estimate and Confirm reject a model that has no row for the
// current pricing version as unknown. A Job pins PricingVersion and
// PricingRate at reserve time; later changes to this table never
// retroactively affect in-flight or completed jobs.
type PricingRate struct {
	Version              string  `gorm:"primaryKey;type:varchar(20)" json:"version"`
	Model                string  `gorm:"primaryKey;type:varchar(50)" json:"model"`
	CreditsPer1000Tokens float64 `json:"credits_per_1000_tokens"`
}

func (PricingRate) TableName() string { return "pricing_rates" }
