package ranking

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/advisor-reports/internal/model"
)

func rec(id string, sales, elr, avg string, ro int) model.PerformanceRecord {
	return model.PerformanceRecord{
		AdvisorID:  id,
		Period:     "2024-03",
		TotalSales: decimal.RequireFromString(sales),
		ELR:        decimal.RequireFromString(elr),
		TotalAvg:   decimal.RequireFromString(avg),
		ROCount:    ro,
	}
}

func TestRank_CompetitionTies(t *testing.T) {
	got := Rank([]model.PerformanceRecord{
		rec("A", "100", "110", "300", 600),
		rec("B", "90", "120", "300", 600),
		rec("C", "90", "100", "350", 600),
		rec("D", "80", "120", "250", 600),
	}, 500)

	require.Len(t, got, 4)
	assert.Equal(t, 1, got["A"].SalesRank)
	assert.Equal(t, 2, got["B"].SalesRank)
	assert.Equal(t, 2, got["C"].SalesRank)
	assert.Equal(t, 4, got["D"].SalesRank)

	assert.Equal(t, 1, got["B"].ELRRank)
	assert.Equal(t, 1, got["D"].ELRRank)
	assert.Equal(t, 3, got["A"].ELRRank)
	assert.Equal(t, 4, got["C"].ELRRank)

	assert.Equal(t, 1, got["C"].AvgRank)
	assert.Equal(t, 2, got["A"].AvgRank)
	assert.Equal(t, 2, got["B"].AvgRank)
	assert.Equal(t, 4, got["D"].AvgRank)

	for _, r := range got {
		assert.Equal(t, 4, r.CohortSize)
	}
	assert.InDelta(t, 100.0, got["A"].Percentile, 1e-9)
	assert.InDelta(t, 75.0, got["B"].Percentile, 1e-9)
	assert.InDelta(t, 25.0, got["D"].Percentile, 1e-9)
}

func TestRank_ExcludesBelowThreshold(t *testing.T) {
	got := Rank([]model.PerformanceRecord{
		rec("A", "100", "1", "1", 500),
		rec("B", "900", "1", "1", 499),
	}, 500)

	require.Len(t, got, 1)
	_, ok := got["B"]
	assert.False(t, ok)
	assert.Equal(t, 1, got["A"].CohortSize)
	assert.InDelta(t, 100.0, got["A"].Percentile, 1e-9)
}

func TestRank_Empty(t *testing.T) {
	assert.Empty(t, Rank(nil, 500))
}

func TestRank_NumericNotLexical(t *testing.T) {
	got := Rank([]model.PerformanceRecord{
		rec("A", "9000", "0", "0", 1),
		rec("B", "10000", "0", "0", 1),
	}, 0)
	assert.Equal(t, 1, got["B"].SalesRank)
	assert.Equal(t, 2, got["A"].SalesRank)
}

func TestPercentile_EmptyCohort(t *testing.T) {
	assert.Equal(t, 0.0, Percentile(0, 0))
}

type fakeCohort struct {
	recs  []model.PerformanceRecord
	err   error
	minRO int
}

func (f *fakeCohort) GetCohort(_ context.Context, _ string, minRO int) ([]model.PerformanceRecord, error) {
	f.minRO = minRO
	return f.recs, f.err
}

func TestEngine_RankPeriod(t *testing.T) {
	src := &fakeCohort{recs: []model.PerformanceRecord{rec("A", "100", "1", "1", 700)}}
	e := NewEngine(src, -1)

	got, err := e.RankPeriod(context.Background(), "2024-03")
	require.NoError(t, err)
	assert.Equal(t, DefaultMinROCount, src.minRO)
	assert.Equal(t, 1, got["A"].SalesRank)
}

func TestEngine_RankPeriod_Error(t *testing.T) {
	e := NewEngine(&fakeCohort{err: errors.New("db down")}, 500)

	_, err := e.RankPeriod(context.Background(), "2024-03")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ranking: load cohort 2024-03")
}
