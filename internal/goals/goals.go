// Package goals compares an advisor's period metrics with dealership targets.
package goals

import (
	"github.com/shopspring/decimal"

	"github.com/sells-group/advisor-reports/internal/config"
	"github.com/sells-group/advisor-reports/internal/model"
)

// Metric names a goal-tracked measure.
type Metric string

const (
	MetricELR      Metric = "Effective Labor Rate"
	MetricROAvg    Metric = "RO Average"
	MetricOpsPerRO Metric = "Operations per RO"
	MetricLaborMix Metric = "Labor Mix"
)

// Targets are the monthly goals. A zero target is not tracked.
type Targets struct {
	ELR      decimal.Decimal
	ROAvg    decimal.Decimal
	OpsPerRO decimal.Decimal
	LaborMix decimal.Decimal
}

// DefaultTargets returns the dealership's standing goals.
func DefaultTargets() Targets {
	return Targets{
		ELR:      decimal.NewFromInt(115),
		ROAvg:    decimal.NewFromInt(350),
		OpsPerRO: decimal.RequireFromString("4.5"),
		LaborMix: decimal.NewFromInt(60),
	}
}

// TargetsFromConfig converts configured goals.
func TargetsFromConfig(c config.GoalsConfig) Targets {
	return Targets{
		ELR:      decimal.NewFromFloat(c.TargetELR).Round(2),
		ROAvg:    decimal.NewFromFloat(c.TargetROAvg).Round(2),
		OpsPerRO: decimal.NewFromFloat(c.TargetOpsPerRO).Round(2),
		LaborMix: decimal.NewFromFloat(c.TargetLaborMix).Round(2),
	}
}

// Result is one metric's standing against its target.
type Result struct {
	Metric Metric
	Actual decimal.Decimal
	Target decimal.Decimal
}

// Evaluation splits tracked metrics into achieved and missed goals, in
// a fixed metric order.
type Evaluation struct {
	Achieved []Result
	Missed   []Result
}

// Evaluate compares rec with targets. Meeting a target exactly counts as
// achieved.
func Evaluate(rec model.PerformanceRecord, t Targets) Evaluation {
	var ev Evaluation
	for _, r := range []Result{
		{Metric: MetricELR, Actual: rec.ELR, Target: t.ELR},
		{Metric: MetricROAvg, Actual: rec.TotalAvg, Target: t.ROAvg},
		{Metric: MetricOpsPerRO, Actual: rec.OpsPerRO, Target: t.OpsPerRO},
		{Metric: MetricLaborMix, Actual: rec.LaborMix, Target: t.LaborMix},
	} {
		if !r.Target.IsPositive() {
			continue
		}
		if r.Actual.GreaterThanOrEqual(r.Target) {
			ev.Achieved = append(ev.Achieved, r)
		} else {
			ev.Missed = append(ev.Missed, r)
		}
	}
	return ev
}
