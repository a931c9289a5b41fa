package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func datePtr(s string) *time.Time {
	t := date(s)
	return &t
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("2024-03", "2024-03-01", "2024-03-31")
	require.NoError(t, err)
	assert.Equal(t, "2024-03", p.Label)
	assert.Equal(t, date("2024-03-01"), p.Start)
	assert.Equal(t, date("2024-03-31"), p.End)

	_, err = ParsePeriod("2024-03", "03/01/2024", "2024-03-31")
	assert.Error(t, err)
	_, err = ParsePeriod("2024-03", "2024-03-01", "")
	assert.Error(t, err)
}

func TestValidate_Period(t *testing.T) {
	ok := Period{Label: "2024-03", Start: date("2024-03-01"), End: date("2024-03-31")}
	assert.NoError(t, Validate(ok))

	single := Period{Label: "2024-03-15", Start: date("2024-03-15"), End: date("2024-03-15")}
	assert.NoError(t, Validate(single))

	inverted := Period{Label: "2024-03", Start: date("2024-03-31"), End: date("2024-03-01")}
	err := Validate(inverted)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model: invalid period")
	assert.Contains(t, err.Error(), "period_end")
	assert.ErrorIs(t, err, ErrInvalid)

	err = Validate(Period{Start: date("2024-03-01"), End: date("2024-03-31")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "period is required")
}

func TestRatePlan_Validate(t *testing.T) {
	plan := RatePlan{
		Name:           "Standard",
		LaborRate:      decimal.RequireFromString("0.075"),
		PartsRate:      decimal.RequireFromString("0.04"),
		BonusThreshold: decimal.NewFromInt(400),
		BonusAmount:    decimal.NewFromInt(500),
	}
	assert.NoError(t, plan.Validate())

	bad := plan
	bad.LaborRate = decimal.RequireFromString("1.5")
	bad.Name = ""
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "labor_rate must be <= 1")
	assert.Contains(t, err.Error(), "name is required")

	inverted := plan
	inverted.EffectiveFrom = datePtr("2024-06-01")
	inverted.EffectiveTo = datePtr("2024-01-01")
	err = inverted.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "effective_to")
}

func TestRatePlan_InEffect(t *testing.T) {
	open := RatePlan{}
	assert.True(t, open.InEffect(date("1999-01-01")))

	bounded := RatePlan{EffectiveFrom: datePtr("2024-01-01"), EffectiveTo: datePtr("2024-12-31")}
	assert.True(t, bounded.InEffect(date("2024-01-01")))
	assert.True(t, bounded.InEffect(date("2024-12-31").Add(23*time.Hour)))
	assert.False(t, bounded.InEffect(date("2023-12-31")))
	assert.False(t, bounded.InEffect(date("2025-01-01")))

	fromOnly := RatePlan{EffectiveFrom: datePtr("2024-06-01")}
	assert.False(t, fromOnly.InEffect(date("2024-05-31")))
	assert.True(t, fromOnly.InEffect(date("2030-01-01")))
}

func TestPerformanceRecord_SameMetrics(t *testing.T) {
	a := PerformanceRecord{
		AdvisorID:   "A1",
		Period:      "2024-03",
		PeriodStart: date("2024-03-01"),
		PeriodEnd:   date("2024-03-31"),
		TotalSales:  decimal.RequireFromString("1234.5"),
		ROCount:     600,
	}
	b := a
	b.TotalSales = decimal.RequireFromString("1234.50")
	b.UpdatedAt = time.Now()
	assert.True(t, a.SameMetrics(b))
	assert.Equal(t, RecordKey{AdvisorID: "A1", Period: "2024-03"}, a.Key())

	b.ROCount = 601
	assert.False(t, a.SameMetrics(b))
}

func TestAdvisor(t *testing.T) {
	a := Advisor{AdvisorID: "A1", Name: "Jane Doe", Email: "jane@example.com"}
	assert.Equal(t, "Jane", a.FirstName())
	assert.NoError(t, Validate(a))

	assert.Equal(t, "Cher", Advisor{Name: "Cher"}.FirstName())

	err := Validate(Advisor{AdvisorID: "A1", Email: "not-an-email"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email must be a valid email")
}
