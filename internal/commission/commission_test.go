package commission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/advisor-reports/internal/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(s string) *time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return &t
}

type fakePlans struct {
	plans []model.RatePlan
	err   error
}

func (f fakePlans) ListRatePlans(context.Context) ([]model.RatePlan, error) {
	return f.plans, f.err
}

func TestCompute_WorkedExample(t *testing.T) {
	rec := model.PerformanceRecord{
		LaborSales: d("10000"),
		PartsSales: d("4000"),
		TotalAvg:   d("420"),
	}
	got := Compute(rec, DefaultPlan())

	assert.True(t, got.LaborComm.Equal(d("750")), "labor %s", got.LaborComm)
	assert.True(t, got.PartsComm.Equal(d("160")), "parts %s", got.PartsComm)
	assert.True(t, got.Bonus.Equal(d("500")), "bonus %s", got.Bonus)
	assert.True(t, got.Total.Equal(d("1410")), "total %s", got.Total)
}

func TestCompute_BonusGate(t *testing.T) {
	plan := DefaultPlan()
	tests := []struct {
		name     string
		totalAvg string
		bonus    string
	}{
		{"below threshold", "399.99", "0"},
		{"at threshold", "400", "500"},
		{"above threshold", "812.10", "500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(model.PerformanceRecord{TotalAvg: d(tt.totalAvg)}, plan)
			assert.True(t, got.Bonus.Equal(d(tt.bonus)), "bonus %s", got.Bonus)
		})
	}
}

func TestCompute_ZeroRecord(t *testing.T) {
	got := Compute(model.PerformanceRecord{}, DefaultPlan())
	assert.True(t, got.Total.IsZero())
}

func TestCompute_NoRounding(t *testing.T) {
	got := Compute(model.PerformanceRecord{LaborSales: d("123.45")}, DefaultPlan())
	assert.Equal(t, "9.25875", got.LaborComm.String())
}

func TestSelectPlan(t *testing.T) {
	asOf := *day("2024-03-31")
	now := time.Now()

	plans := []model.RatePlan{
		{ID: "inactive", IsActive: false, CreatedAt: now},
		{ID: "old", IsActive: true, CreatedAt: now.Add(-48 * time.Hour)},
		{ID: "newer", IsActive: true, CreatedAt: now.Add(-24 * time.Hour)},
		{ID: "future", IsActive: true, EffectiveFrom: day("2024-04-01"), CreatedAt: now},
		{ID: "expired", IsActive: true, EffectiveTo: day("2024-03-30"), CreatedAt: now},
	}

	got, ok := SelectPlan(plans, asOf)
	require.True(t, ok)
	assert.Equal(t, "newer", got.ID)
}

func TestSelectPlan_InclusiveBounds(t *testing.T) {
	plans := []model.RatePlan{
		{ID: "march", IsActive: true, EffectiveFrom: day("2024-03-01"), EffectiveTo: day("2024-03-31")},
	}
	_, ok := SelectPlan(plans, *day("2024-03-31"))
	assert.True(t, ok)
	_, ok = SelectPlan(plans, *day("2024-03-01"))
	assert.True(t, ok)
	_, ok = SelectPlan(plans, *day("2024-04-01"))
	assert.False(t, ok)
}

func TestSelectPlan_None(t *testing.T) {
	_, ok := SelectPlan(nil, time.Now())
	assert.False(t, ok)
}

func TestEngine_CurrentPlan(t *testing.T) {
	stored := model.RatePlan{ID: "p1", Name: "2024", IsActive: true, LaborRate: d("0.08")}
	e := NewEngine(fakePlans{plans: []model.RatePlan{stored}})

	plan, err := e.CurrentPlan(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "p1", plan.ID)
}

func TestEngine_CurrentPlan_Missing(t *testing.T) {
	e := NewEngine(fakePlans{})

	_, err := e.CurrentPlan(context.Background(), time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigurationMissing))
}

func TestEngine_CurrentPlan_Fallback(t *testing.T) {
	e := NewEngine(fakePlans{}, WithFallback(DefaultPlan()))

	plan, err := e.CurrentPlan(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "default", plan.ID)
	assert.True(t, plan.LaborRate.Equal(d("0.075")))
}

func TestEngine_CurrentPlan_SourceError(t *testing.T) {
	e := NewEngine(fakePlans{err: errors.New("db down")}, WithFallback(DefaultPlan()))

	_, err := e.CurrentPlan(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.False(t, errors.Is(err, ErrConfigurationMissing))
}

func TestEngine_ComputeFor_UsesPeriodEnd(t *testing.T) {
	plans := []model.RatePlan{
		{ID: "march", IsActive: true, LaborRate: d("0.1"), EffectiveTo: day("2024-03-31")},
	}
	e := NewEngine(fakePlans{plans: plans})

	res, plan, err := e.ComputeFor(context.Background(), model.PerformanceRecord{
		PeriodEnd:  *day("2024-03-31"),
		LaborSales: d("1000"),
	})
	require.NoError(t, err)
	assert.Equal(t, "march", plan.ID)
	assert.True(t, res.LaborComm.Equal(d("100")))
}
