// Package report assembles per-advisor report models and renders them as
// PDF or text documents.
package report

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/advisor-reports/internal/commission"
	"github.com/sells-group/advisor-reports/internal/model"
	"github.com/sells-group/advisor-reports/internal/ranking"
	"github.com/sells-group/advisor-reports/internal/store"
)

// Model is everything a rendered report shows. GeneratedAt is the only
// value not derived from stored data.
type Model struct {
	AdvisorID   string                  `json:"advisor_id"`
	AdvisorName string                  `json:"advisor_name"`
	Dealership  string                  `json:"dealership"`
	Record      model.PerformanceRecord `json:"record"`
	Plan        model.RatePlan          `json:"plan"`
	Commission  model.CommissionResult  `json:"commission"`
	Ranking     model.RankingResult     `json:"ranking"`
	Eligible    bool                    `json:"eligible"`
	GeneratedAt time.Time               `json:"generated_at"`
}

// Period returns the report's period label.
func (m *Model) Period() string { return m.Record.Period }

// PercentileDisplay is the sales percentile rounded for display, or 0 when
// the advisor is outside the ranking cohort.
func (m *Model) PercentileDisplay() int {
	if m.Ranking.CohortSize == 0 {
		return 0
	}
	return RoundPercentile(m.Ranking.Percentile)
}

// RecordSource reads stored performance records.
type RecordSource interface {
	Get(ctx context.Context, advisorID, period string) (*model.PerformanceRecord, error)
}

// AdvisorSource reads advisor metadata.
type AdvisorSource interface {
	GetAdvisor(ctx context.Context, advisorID string) (*model.Advisor, error)
}

// Builder composes report models from the store and the engines.
type Builder struct {
	records    RecordSource
	advisors   AdvisorSource
	commission *commission.Engine
	ranking    *ranking.Engine
	dealership string
	now        func() time.Time
}

// NewBuilder creates a Builder.
func NewBuilder(records RecordSource, advisors AdvisorSource, comm *commission.Engine, rank *ranking.Engine, dealership string) *Builder {
	return &Builder{
		records:    records,
		advisors:   advisors,
		commission: comm,
		ranking:    rank,
		dealership: dealership,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// BuildModel loads one advisor's record for a period and composes the
// report. store.ErrNotFound and commission.ErrConfigurationMissing surface
// unchanged for errors.Is.
func (b *Builder) BuildModel(ctx context.Context, advisorID, period string) (*Model, error) {
	rec, err := b.records.Get(ctx, advisorID, period)
	if err != nil {
		return nil, eris.Wrapf(err, "report: load record %s/%s", advisorID, period)
	}
	rankings, err := b.ranking.RankPeriod(ctx, period)
	if err != nil {
		return nil, eris.Wrapf(err, "report: rank period %s", period)
	}
	return b.compose(ctx, *rec, rankings)
}

// compose builds a model from an already loaded record and its period's
// rankings.
func (b *Builder) compose(ctx context.Context, rec model.PerformanceRecord, rankings map[string]model.RankingResult) (*Model, error) {
	result, plan, err := b.commission.ComputeFor(ctx, rec)
	if err != nil {
		return nil, eris.Wrapf(err, "report: commission %s/%s", rec.AdvisorID, rec.Period)
	}

	m := &Model{
		AdvisorID:   rec.AdvisorID,
		AdvisorName: b.displayName(ctx, rec.AdvisorID),
		Dealership:  b.dealership,
		Record:      rec,
		Plan:        *plan,
		Commission:  result,
		GeneratedAt: b.now(),
	}
	if r, ok := rankings[rec.AdvisorID]; ok {
		m.Ranking = r
		m.Eligible = true
	}
	return m, nil
}

func (b *Builder) displayName(ctx context.Context, advisorID string) string {
	if b.advisors == nil {
		return advisorID
	}
	a, err := b.advisors.GetAdvisor(ctx, advisorID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			zap.L().Warn("report: advisor lookup failed", zap.String("advisor_id", advisorID), zap.Error(err))
		}
		return advisorID
	}
	if a.Name == "" {
		return advisorID
	}
	return a.Name
}
