// Package model holds the domain types shared across the reporting pipeline.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire and storage format for period bounds.
const DateLayout = "2006-01-02"

// PerformanceRecord is one advisor's metrics for one period.
// (AdvisorID, Period) is unique; a later import of the same key replaces every field.
type PerformanceRecord struct {
	AdvisorID   string    `json:"advisor_id"`
	Period      string    `json:"period"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	TotalSales decimal.Decimal `json:"total_sales"`
	LaborSales decimal.Decimal `json:"labor_sales"`
	PartsSales decimal.Decimal `json:"parts_sales"`
	ROCount    int             `json:"ro_count"`
	OpCount    int             `json:"op_count"`
	TechHours  decimal.Decimal `json:"tech_hours"`
	ELR        decimal.Decimal `json:"elr"`

	// Pre-aggregated per-RO averages, taken as supplied by the extract.
	LaborAvg     decimal.Decimal `json:"labor_avg"`
	PartsAvg     decimal.Decimal `json:"parts_avg"`
	TotalAvg     decimal.Decimal `json:"total_avg"`
	TechHoursAvg decimal.Decimal `json:"tech_hours_avg"`

	// Derived at ingestion.
	OpsPerRO decimal.Decimal `json:"ops_per_ro"`
	LaborMix decimal.Decimal `json:"labor_mix"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the record's uniqueness key.
func (r PerformanceRecord) Key() RecordKey {
	return RecordKey{AdvisorID: r.AdvisorID, Period: r.Period}
}

// SameMetrics reports whether two records carry identical identity and metric
// values, ignoring store-assigned timestamps.
func (r PerformanceRecord) SameMetrics(o PerformanceRecord) bool {
	return r.AdvisorID == o.AdvisorID &&
		r.Period == o.Period &&
		sameDate(r.PeriodStart, o.PeriodStart) &&
		sameDate(r.PeriodEnd, o.PeriodEnd) &&
		r.TotalSales.Equal(o.TotalSales) &&
		r.LaborSales.Equal(o.LaborSales) &&
		r.PartsSales.Equal(o.PartsSales) &&
		r.ROCount == o.ROCount &&
		r.OpCount == o.OpCount &&
		r.TechHours.Equal(o.TechHours) &&
		r.ELR.Equal(o.ELR) &&
		r.LaborAvg.Equal(o.LaborAvg) &&
		r.PartsAvg.Equal(o.PartsAvg) &&
		r.TotalAvg.Equal(o.TotalAvg) &&
		r.TechHoursAvg.Equal(o.TechHoursAvg) &&
		r.OpsPerRO.Equal(o.OpsPerRO) &&
		r.LaborMix.Equal(o.LaborMix)
}

func sameDate(a, b time.Time) bool {
	return a.Format(DateLayout) == b.Format(DateLayout)
}

// RecordKey identifies a PerformanceRecord.
type RecordKey struct {
	AdvisorID string
	Period    string
}

// Period labels a reporting interval. Bounds are supplied by the caller,
// never derived from extract content.
type Period struct {
	Label string    `json:"period" validate:"required,max=20"`
	Start time.Time `json:"period_start" validate:"required"`
	End   time.Time `json:"period_end" validate:"required,gtefield=Start"`
}

// ParsePeriod builds a Period from a label and two YYYY-MM-DD dates.
func ParsePeriod(label, start, end string) (Period, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return Period{}, err
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return Period{}, err
	}
	return Period{Label: label, Start: s, End: e}, nil
}

// PeriodSummary is one row of the period listing.
type PeriodSummary struct {
	Period       string    `json:"period"`
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`
	AdvisorCount int       `json:"advisor_count"`
}
