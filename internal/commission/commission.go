// Package commission resolves the rate plan in effect and computes advisor
// commission from a performance record.
package commission

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/advisor-reports/internal/model"
)

// ErrConfigurationMissing is returned when no rate plan is in effect and no
// fallback plan is configured.
var ErrConfigurationMissing = errors.New("commission: no rate plan in effect")

// PlanSource lists stored rate plans.
type PlanSource interface {
	ListRatePlans(ctx context.Context) ([]model.RatePlan, error)
}

// DefaultPlan returns the dealership's historical default rates.
func DefaultPlan() model.RatePlan {
	return model.RatePlan{
		ID:             "default",
		Name:           "Default",
		LaborRate:      decimal.RequireFromString("0.075"),
		PartsRate:      decimal.RequireFromString("0.04"),
		BonusThreshold: decimal.NewFromInt(400),
		BonusAmount:    decimal.NewFromInt(500),
		IsActive:       true,
	}
}

// SelectPlan picks the active plan whose bounds contain asOf. When several
// qualify the most recently created wins; ties keep the earlier entry.
func SelectPlan(plans []model.RatePlan, asOf time.Time) (*model.RatePlan, bool) {
	var best *model.RatePlan
	for i := range plans {
		p := &plans[i]
		if !p.IsActive || !p.InEffect(asOf) {
			continue
		}
		if best == nil || p.CreatedAt.After(best.CreatedAt) {
			best = p
		}
	}
	if best == nil {
		return nil, false
	}
	out := *best
	return &out, true
}

// Compute applies plan to rec. The bonus is all-or-nothing: it is paid in
// full when the RO average reaches the threshold. Amounts are not rounded.
func Compute(rec model.PerformanceRecord, plan model.RatePlan) model.CommissionResult {
	labor := rec.LaborSales.Mul(plan.LaborRate)
	parts := rec.PartsSales.Mul(plan.PartsRate)
	bonus := decimal.Zero
	if rec.TotalAvg.GreaterThanOrEqual(plan.BonusThreshold) {
		bonus = plan.BonusAmount
	}
	return model.CommissionResult{
		LaborComm: labor,
		PartsComm: parts,
		Bonus:     bonus,
		Total:     labor.Add(parts).Add(bonus),
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithFallback sets the plan used when none in the store is in effect.
func WithFallback(plan model.RatePlan) Option {
	return func(e *Engine) { e.fallback = &plan }
}

// Engine resolves plans from a PlanSource.
type Engine struct {
	plans    PlanSource
	fallback *model.RatePlan
}

// NewEngine creates an Engine reading plans from src.
func NewEngine(src PlanSource, opts ...Option) *Engine {
	e := &Engine{plans: src}
	for _, o := range opts {
		o(e)
	}
	return e
}

// CurrentPlan returns the plan in effect on asOf.
func (e *Engine) CurrentPlan(ctx context.Context, asOf time.Time) (*model.RatePlan, error) {
	plans, err := e.plans.ListRatePlans(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "commission: list rate plans")
	}
	if plan, ok := SelectPlan(plans, asOf); ok {
		return plan, nil
	}
	if e.fallback != nil {
		zap.L().Warn("commission: no rate plan in effect, using fallback",
			zap.String("as_of", asOf.Format(model.DateLayout)),
			zap.String("plan", e.fallback.Name),
		)
		plan := *e.fallback
		return &plan, nil
	}
	return nil, eris.Wrapf(ErrConfigurationMissing, "commission: as of %s", asOf.Format(model.DateLayout))
}

// ComputeFor resolves the plan in effect at the end of rec's period and
// applies it.
func (e *Engine) ComputeFor(ctx context.Context, rec model.PerformanceRecord) (model.CommissionResult, *model.RatePlan, error) {
	plan, err := e.CurrentPlan(ctx, rec.PeriodEnd)
	if err != nil {
		return model.CommissionResult{}, nil, err
	}
	return Compute(rec, *plan), plan, nil
}
