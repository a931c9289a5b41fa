package model

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// RatePlan is a versioned commission configuration. Plans are administered
// outside the pipeline and treated as read-only input.
type RatePlan struct {
	ID             string          `json:"id"`
	Name           string          `json:"name" validate:"required,max=100"`
	LaborRate      decimal.Decimal `json:"labor_rate" validate:"gte=0,lte=1"`
	PartsRate      decimal.Decimal `json:"parts_rate" validate:"gte=0,lte=1"`
	BonusThreshold decimal.Decimal `json:"bonus_threshold" validate:"gte=0"`
	BonusAmount    decimal.Decimal `json:"bonus_amount" validate:"gte=0"`
	EffectiveFrom  *time.Time      `json:"effective_from,omitempty"`
	EffectiveTo    *time.Time      `json:"effective_to,omitempty"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Validate checks field ranges and that the effective window is not inverted.
func (p RatePlan) Validate() error {
	if err := Validate(p); err != nil {
		return err
	}
	if p.EffectiveFrom != nil && p.EffectiveTo != nil && p.EffectiveTo.Before(*p.EffectiveFrom) {
		return eris.New("model: invalid rateplan: effective_to must not be before effective_from")
	}
	return nil
}

// InEffect reports whether asOf falls inside the plan's optional bounds.
// Bounds are inclusive and compared by calendar date.
func (p RatePlan) InEffect(asOf time.Time) bool {
	day := asOf.Format(DateLayout)
	if p.EffectiveFrom != nil && day < p.EffectiveFrom.Format(DateLayout) {
		return false
	}
	if p.EffectiveTo != nil && day > p.EffectiveTo.Format(DateLayout) {
		return false
	}
	return true
}

// CommissionResult is derived from (PerformanceRecord, RatePlan) and never persisted.
type CommissionResult struct {
	LaborComm decimal.Decimal `json:"labor_comm"`
	PartsComm decimal.Decimal `json:"parts_comm"`
	Bonus     decimal.Decimal `json:"bonus"`
	Total     decimal.Decimal `json:"total"`
}

// RankingResult is an advisor's standing inside a period's eligible cohort.
type RankingResult struct {
	SalesRank  int     `json:"sales_rank"`
	ELRRank    int     `json:"elr_rank"`
	AvgRank    int     `json:"ro_avg_rank"`
	CohortSize int     `json:"total_advisors"`
	Percentile float64 `json:"percentile"`
}
