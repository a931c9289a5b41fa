// Package ranking places advisors within their period's eligible cohort.
package ranking

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/advisor-reports/internal/model"
)

// DefaultMinROCount is the repair order threshold for cohort membership.
const DefaultMinROCount = 500

// Rank computes standard competition ranks ("1224") on total sales, ELR,
// and RO average, each descending, for records with at least minRO repair
// orders. Advisors outside the cohort have no entry.
func Rank(records []model.PerformanceRecord, minRO int) map[string]model.RankingResult {
	cohort := make([]model.PerformanceRecord, 0, len(records))
	for _, r := range records {
		if r.ROCount >= minRO {
			cohort = append(cohort, r)
		}
	}
	n := len(cohort)
	out := make(map[string]model.RankingResult, n)
	if n == 0 {
		return out
	}

	sales := competitionRanks(cohort, func(r model.PerformanceRecord) decimal.Decimal { return r.TotalSales })
	elr := competitionRanks(cohort, func(r model.PerformanceRecord) decimal.Decimal { return r.ELR })
	avg := competitionRanks(cohort, func(r model.PerformanceRecord) decimal.Decimal { return r.TotalAvg })

	for i, r := range cohort {
		out[r.AdvisorID] = model.RankingResult{
			SalesRank:  sales[i],
			ELRRank:    elr[i],
			AvgRank:    avg[i],
			CohortSize: n,
			Percentile: Percentile(sales[i], n),
		}
	}
	return out
}

// Percentile is the share of the cohort at or below the given sales rank.
func Percentile(salesRank, cohortSize int) float64 {
	if cohortSize == 0 {
		return 0
	}
	return 100 * float64(cohortSize-salesRank+1) / float64(cohortSize)
}

// competitionRanks returns the rank of each cohort entry by key, highest
// first. Equal keys share the rank of their first position and the next
// distinct key skips the tied slots.
func competitionRanks(cohort []model.PerformanceRecord, key func(model.PerformanceRecord) decimal.Decimal) []int {
	idx := make([]int, len(cohort))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return key(cohort[idx[a]]).GreaterThan(key(cohort[idx[b]]))
	})

	ranks := make([]int, len(cohort))
	for pos, i := range idx {
		if pos > 0 && key(cohort[i]).Equal(key(cohort[idx[pos-1]])) {
			ranks[i] = ranks[idx[pos-1]]
			continue
		}
		ranks[i] = pos + 1
	}
	return ranks
}

// CohortSource reads a period's cohort.
type CohortSource interface {
	GetCohort(ctx context.Context, period string, minRO int) ([]model.PerformanceRecord, error)
}

// Engine ranks stored periods.
type Engine struct {
	src   CohortSource
	minRO int
}

// NewEngine creates an Engine. A negative minRO selects DefaultMinROCount.
func NewEngine(src CohortSource, minRO int) *Engine {
	if minRO < 0 {
		minRO = DefaultMinROCount
	}
	return &Engine{src: src, minRO: minRO}
}

// MinROCount returns the cohort threshold.
func (e *Engine) MinROCount() int { return e.minRO }

// RankPeriod ranks every eligible advisor of a period.
func (e *Engine) RankPeriod(ctx context.Context, period string) (map[string]model.RankingResult, error) {
	recs, err := e.src.GetCohort(ctx, period, e.minRO)
	if err != nil {
		return nil, eris.Wrapf(err, "ranking: load cohort %s", period)
	}
	return Rank(recs, e.minRO), nil
}
