// Package ingest turns dealership performance extracts into normalized
// PerformanceRecords and writes them to the store as one batch.
package ingest

import (
	"errors"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/advisor-reports/internal/config"
	"github.com/sells-group/advisor-reports/internal/model"
	"github.com/sells-group/advisor-reports/internal/numparse"
)

// ErrStructural marks an extract whose shape is wrong: inconsistent columns,
// missing mapped columns, or unparseable framing. Nothing from such an
// extract is written.
var ErrStructural = errors.New("ingest: structural error")

// derivedScale is the decimal scale derived ratios are stored at.
const derivedScale = 2

var (
	hundred = decimal.NewFromInt(100)
	oneCent = decimal.RequireFromString("0.01")
)

// ColumnMap names the extract column holding each record field.
// An empty name leaves that field unmapped (zero).
type ColumnMap struct {
	AdvisorName  string
	AdvisorID    string
	TotalSales   string
	ROCount      string
	ELR          string
	OpCount      string
	TechHours    string
	LaborSales   string
	PartsSales   string
	LaborAvg     string
	PartsAvg     string
	TotalAvg     string
	TechHoursAvg string
}

// DefaultColumns returns the header names of the DMS advisor performance export.
func DefaultColumns() ColumnMap {
	return ColumnMap{
		AdvisorName:  "Advisor Name",
		AdvisorID:    "Advisor",
		TotalSales:   "Labor & Parts",
		ROCount:      "Repair Order Count",
		ELR:          "Effective Labor Rate",
		OpCount:      "Operation Count",
		TechHours:    "Tech Hours",
		LaborSales:   "Labor Sales",
		PartsSales:   "Parts Sales",
		LaborAvg:     "Labor Sale Average",
		PartsAvg:     "Parts Sales Average",
		TotalAvg:     "Labor & Parts Average",
		TechHoursAvg: "Tech Hours Average",
	}
}

// ColumnsFromConfig converts the configured column names.
func ColumnsFromConfig(c config.ColumnsConfig) ColumnMap {
	return ColumnMap{
		AdvisorName:  c.AdvisorName,
		AdvisorID:    c.AdvisorID,
		TotalSales:   c.TotalSales,
		ROCount:      c.ROCount,
		ELR:          c.ELR,
		OpCount:      c.OpCount,
		TechHours:    c.TechHours,
		LaborSales:   c.LaborSales,
		PartsSales:   c.PartsSales,
		LaborAvg:     c.LaborAvg,
		PartsAvg:     c.PartsAvg,
		TotalAvg:     c.TotalAvg,
		TechHoursAvg: c.TechHoursAvg,
	}
}

func (m ColumnMap) names() []string {
	all := []string{
		m.AdvisorName, m.AdvisorID, m.TotalSales, m.ROCount, m.ELR, m.OpCount, m.TechHours,
		m.LaborSales, m.PartsSales, m.LaborAvg, m.PartsAvg, m.TotalAvg, m.TechHoursAvg,
	}
	out := all[:0]
	for _, n := range all {
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Mapping is the extraction configuration: column names plus the advisor
// names that mark system rows.
type Mapping struct {
	Columns   ColumnMap
	Sentinels []string
}

// DefaultMapping returns the DMS export columns and the XTIME system row.
func DefaultMapping() Mapping {
	return Mapping{Columns: DefaultColumns(), Sentinels: []string{"XTIME ADVISOR"}}
}

// MappingFromConfig builds a Mapping from the ingest config section.
func MappingFromConfig(c config.IngestConfig) Mapping {
	return Mapping{Columns: ColumnsFromConfig(c.Columns), Sentinels: c.Sentinels}
}

// ExtractResult holds the records produced from one extract.
type ExtractResult struct {
	Records []model.PerformanceRecord
	// Names maps advisor ID to the display name found in the extract.
	Names   map[string]string
	Skipped int
}

// Extract maps extract rows to PerformanceRecords for period. Rows with an
// empty advisor name, a sentinel name, or an empty or overlong advisor ID
// are skipped. Output order follows input order. Numeric cells never fail:
// anything unparseable, or too large for its stored column, becomes zero.
func Extract(rows []Row, period model.Period, m Mapping) (*ExtractResult, error) {
	if err := checkShape(rows, m.Columns); err != nil {
		return nil, err
	}

	sentinels := make(map[string]bool, len(m.Sentinels))
	for _, s := range m.Sentinels {
		sentinels[s] = true
	}

	res := &ExtractResult{
		Records: make([]model.PerformanceRecord, 0, len(rows)),
		Names:   make(map[string]string),
	}
	c := m.Columns
	for i, row := range rows {
		name := row[c.AdvisorName]
		if name == "" || sentinels[name] {
			res.Skipped++
			continue
		}
		advisorID := strings.TrimSpace(row[c.AdvisorID])
		if advisorID == "" {
			zap.L().Warn("ingest: row without advisor id skipped",
				zap.Int("row", i+1),
				zap.String("advisor_name", name),
			)
			res.Skipped++
			continue
		}
		if advisorIDTooLong(advisorID) {
			zap.L().Warn("ingest: row with overlong advisor id skipped",
				zap.Int("row", i+1),
				zap.String("advisor_name", name),
				zap.Int("max_len", MaxAdvisorIDLen),
			)
			res.Skipped++
			continue
		}

		rec := model.PerformanceRecord{
			AdvisorID:    advisorID,
			Period:       period.Label,
			PeriodStart:  period.Start,
			PeriodEnd:    period.End,
			TotalSales:   numparse.Decimal(cell(row, c.TotalSales)),
			ROCount:      numparse.Integer(cell(row, c.ROCount)),
			ELR:          numparse.Decimal(cell(row, c.ELR)),
			OpCount:      numparse.Integer(cell(row, c.OpCount)),
			TechHours:    numparse.Decimal(cell(row, c.TechHours)),
			LaborSales:   numparse.Decimal(cell(row, c.LaborSales)),
			PartsSales:   numparse.Decimal(cell(row, c.PartsSales)),
			LaborAvg:     numparse.Decimal(cell(row, c.LaborAvg)),
			PartsAvg:     numparse.Decimal(cell(row, c.PartsAvg)),
			TotalAvg:     numparse.Decimal(cell(row, c.TotalAvg)),
			TechHoursAvg: numparse.Decimal(cell(row, c.TechHoursAvg)),
		}
		zeroed := append(fitCounts(&rec), fitDecimals(&rec)...)
		derive(&rec)
		zeroed = append(zeroed, fitDecimals(&rec)...)
		logZeroed(i+1, rec, zeroed)
		checkAverage(rec)

		res.Records = append(res.Records, rec)
		res.Names[advisorID] = name
	}
	return res, nil
}

// derive fills OpsPerRO and LaborMix, guarding zero denominators.
func derive(rec *model.PerformanceRecord) {
	rec.OpsPerRO = decimal.Zero
	if rec.ROCount > 0 {
		rec.OpsPerRO = decimal.NewFromInt(int64(rec.OpCount)).
			Div(decimal.NewFromInt(int64(rec.ROCount))).
			Round(derivedScale)
	}
	rec.LaborMix = decimal.Zero
	if rec.TotalSales.IsPositive() {
		rec.LaborMix = rec.LaborSales.Div(rec.TotalSales).Mul(hundred).Round(derivedScale)
	}
}

// checkAverage logs when the supplied per-RO average disagrees with the
// totals. The supplied value is kept.
func checkAverage(rec model.PerformanceRecord) {
	if rec.ROCount <= 0 {
		return
	}
	computed := rec.TotalSales.Div(decimal.NewFromInt(int64(rec.ROCount)))
	if computed.Sub(rec.TotalAvg).Abs().GreaterThan(oneCent) {
		zap.L().Debug("ingest: supplied total average differs from totals",
			zap.String("advisor_id", rec.AdvisorID),
			zap.String("period", rec.Period),
			zap.String("supplied", rec.TotalAvg.StringFixed(2)),
			zap.String("computed", computed.StringFixed(2)),
		)
	}
}

// checkShape verifies every row has the same column set and that each
// mapped column is present.
func checkShape(rows []Row, c ColumnMap) error {
	if len(rows) == 0 {
		return nil
	}
	first := rows[0]
	var missing []string
	for _, name := range c.names() {
		if _, ok := first[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return eris.Wrapf(ErrStructural, "ingest: missing columns %s", strings.Join(missing, ", "))
	}
	for i, row := range rows[1:] {
		if len(row) != len(first) {
			return eris.Wrapf(ErrStructural, "ingest: row %d has %d columns, first row has %d", i+2, len(row), len(first))
		}
		for name := range first {
			if _, ok := row[name]; !ok {
				return eris.Wrapf(ErrStructural, "ingest: row %d lacks column %q", i+2, name)
			}
		}
	}
	return nil
}

func cell(row Row, column string) string {
	if column == "" {
		return ""
	}
	return row[column]
}
