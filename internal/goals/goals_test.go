package goals

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/advisor-reports/internal/config"
	"github.com/sells-group/advisor-reports/internal/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func metrics(rs []Result) []Metric {
	out := make([]Metric, len(rs))
	for i, r := range rs {
		out[i] = r.Metric
	}
	return out
}

func TestEvaluate(t *testing.T) {
	rec := model.PerformanceRecord{
		ELR:      d("115.00"),
		TotalAvg: d("349.99"),
		OpsPerRO: d("5.10"),
		LaborMix: d("58.20"),
	}

	ev := Evaluate(rec, DefaultTargets())
	assert.Equal(t, []Metric{MetricELR, MetricOpsPerRO}, metrics(ev.Achieved))
	assert.Equal(t, []Metric{MetricROAvg, MetricLaborMix}, metrics(ev.Missed))
	assert.True(t, ev.Missed[0].Target.Equal(d("350")))
}

func TestEvaluate_ZeroTargetUntracked(t *testing.T) {
	targets := DefaultTargets()
	targets.LaborMix = decimal.Zero

	ev := Evaluate(model.PerformanceRecord{}, targets)
	assert.Empty(t, ev.Achieved)
	assert.Len(t, ev.Missed, 3)
}

func TestTargetsFromConfig(t *testing.T) {
	tg := TargetsFromConfig(config.GoalsConfig{
		TargetELR:      115,
		TargetROAvg:    350,
		TargetOpsPerRO: 4.5,
		TargetLaborMix: 60,
	})
	def := DefaultTargets()
	require.True(t, tg.ELR.Equal(def.ELR))
	assert.True(t, tg.ROAvg.Equal(def.ROAvg))
	assert.True(t, tg.OpsPerRO.Equal(def.OpsPerRO))
	assert.True(t, tg.LaborMix.Equal(def.LaborMix))
}
