package report

import (
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/advisor-reports/internal/model"
)

// Renderer turns a Model into a document.
type Renderer interface {
	Render(m *Model) ([]byte, error)
	// Ext is the file extension without the dot.
	Ext() string
}

// NewRenderer returns the renderer for a configured format.
func NewRenderer(format string) (Renderer, error) {
	switch format {
	case "pdf", "":
		return PDFRenderer{}, nil
	case "text", "md":
		return TextRenderer{}, nil
	default:
		return nil, eris.Errorf("report: unknown format %q", format)
	}
}

const (
	reportTitle  = "Service Advisor Performance Report"
	footerNotice = "This report is confidential and intended for the addressee only"
)

type line struct {
	Label string
	Value string
}

type section struct {
	Title string
	Lines []line
	// Emphasis is an optional closing line shown larger, e.g. the total.
	Emphasis *line
}

// headerLines identify the advisor and period.
func headerLines(m *Model) []string {
	return []string{
		fmt.Sprintf("Advisor: %s (%s)", m.AdvisorName, m.AdvisorID),
		fmt.Sprintf("Period: %s (%s to %s)", m.Record.Period,
			m.Record.PeriodStart.Format(model.DateLayout), m.Record.PeriodEnd.Format(model.DateLayout)),
	}
}

// footerLines close the report. The generation date is the only line that
// varies between renders of the same Model inputs.
func footerLines(m *Model) []string {
	return []string{
		footerText(m),
		"Generated: " + m.GeneratedAt.Format("January 2, 2006"),
		footerNotice,
	}
}

func footerText(m *Model) string {
	if m.Dealership == "" {
		return "Service Operations"
	}
	return m.Dealership
}

// sections lists the body of the report in display order.
func sections(m *Model) []section {
	r := m.Record
	c := m.Commission

	metrics := section{
		Title: "Key Performance Metrics",
		Lines: []line{
			{"Total Sales", Currency(r.TotalSales)},
			{"RO Count", Count(r.ROCount)},
			{"Effective Labor Rate", Currency(r.ELR)},
			{"RO Average", Currency(r.TotalAvg)},
			{"Operations/RO", Number(r.OpsPerRO)},
			{"Labor Mix", Number(r.LaborMix) + "%"},
			{"Tech Hours/RO", Number(r.TechHoursAvg)},
		},
	}

	comm := section{
		Title: "Commission Breakdown",
		Lines: []line{
			{fmt.Sprintf("Labor Commission (%s)", Percent(m.Plan.LaborRate)), Currency(c.LaborComm)},
			{fmt.Sprintf("Parts Commission (%s)", Percent(m.Plan.PartsRate)), Currency(c.PartsComm)},
			{"Performance Bonus", Currency(c.Bonus)},
		},
		Emphasis: &line{"Total Commission", Currency(c.Total)},
	}

	rank := section{Title: "Performance Rankings"}
	if m.Eligible {
		n := m.Ranking.CohortSize
		rank.Lines = []line{
			{"Total Sales Rank", fmt.Sprintf("#%d of %d (%dth percentile)", m.Ranking.SalesRank, n, m.PercentileDisplay())},
			{"ELR Rank", fmt.Sprintf("#%d of %d", m.Ranking.ELRRank, n)},
			{"RO Average Rank", fmt.Sprintf("#%d of %d", m.Ranking.AvgRank, n)},
		}
	} else {
		rank.Lines = []line{{"Status", "Not ranked: below the repair order minimum for this period"}}
	}

	return []section{metrics, comm, rank}
}
