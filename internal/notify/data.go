package notify

import (
	"github.com/shopspring/decimal"

	"github.com/sells-group/advisor-reports/internal/goals"
	"github.com/sells-group/advisor-reports/internal/model"
	"github.com/sells-group/advisor-reports/internal/report"
)

type reportData struct {
	FirstName  string
	Period     string
	TotalSales string
	ROCount    string
	ELR        string
	ROAvg      string
	OpsPerRO   string
	LaborMix   string
	LaborComm  string
	PartsComm  string
	Bonus      string
	TotalComm  string
	Ranked     bool
	Rank       int
	CohortSize int
	Percentile int
	Dealership string
}

type goalData struct {
	FirstName  string
	Period     string
	Metric     string
	Value      string
	Target     string
	Dealership string
}

type alertData struct {
	FirstName  string
	Period     string
	Issues     []goalData
	Dealership string
}

func firstName(m *report.Model) string {
	return model.Advisor{Name: m.AdvisorName}.FirstName()
}

func monthlyReportData(m *report.Model) reportData {
	r := m.Record
	c := m.Commission
	return reportData{
		FirstName:  firstName(m),
		Period:     m.Period(),
		TotalSales: report.Currency(r.TotalSales),
		ROCount:    report.Count(r.ROCount),
		ELR:        report.Number(r.ELR),
		ROAvg:      report.Currency(r.TotalAvg),
		OpsPerRO:   report.Number(r.OpsPerRO),
		LaborMix:   report.Number(r.LaborMix),
		LaborComm:  report.Currency(c.LaborComm),
		PartsComm:  report.Currency(c.PartsComm),
		Bonus:      report.Currency(c.Bonus),
		TotalComm:  report.Currency(c.Total),
		Ranked:     m.Eligible,
		Rank:       m.Ranking.SalesRank,
		CohortSize: m.Ranking.CohortSize,
		Percentile: m.PercentileDisplay(),
		Dealership: m.Dealership,
	}
}

func formatMetric(metric goals.Metric, v decimal.Decimal) string {
	switch metric {
	case goals.MetricELR, goals.MetricROAvg:
		return report.Currency(v)
	case goals.MetricLaborMix:
		return report.Number(v) + "%"
	default:
		return report.Number(v)
	}
}
