package ingest

import (
	"math"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/advisor-reports/internal/model"
)

// MaxAdvisorIDLen is the longest advisor ID the performance table holds.
const MaxAdvisorIDLen = 50

// Magnitude bounds of the performance_data NUMERIC columns, after rounding
// to two places. A value at or above its bound does not fit the column.
var (
	salesBound = decimal.New(1, 10) // NUMERIC(12,2)
	wideBound  = decimal.New(1, 8)  // NUMERIC(10,2)
	rateBound  = decimal.New(1, 6)  // NUMERIC(8,2)
	mixBound   = decimal.New(1, 3)  // NUMERIC(5,2)
)

type decimalField struct {
	name  string
	value *decimal.Decimal
	bound decimal.Decimal
}

func decimalFields(rec *model.PerformanceRecord) []decimalField {
	return []decimalField{
		{"total_sales", &rec.TotalSales, salesBound},
		{"labor_sales", &rec.LaborSales, salesBound},
		{"parts_sales", &rec.PartsSales, salesBound},
		{"tech_hours", &rec.TechHours, wideBound},
		{"elr", &rec.ELR, rateBound},
		{"labor_avg", &rec.LaborAvg, wideBound},
		{"parts_avg", &rec.PartsAvg, wideBound},
		{"total_avg", &rec.TotalAvg, wideBound},
		{"tech_hours_avg", &rec.TechHoursAvg, rateBound},
		{"ops_per_ro", &rec.OpsPerRO, rateBound},
		{"labor_mix", &rec.LaborMix, mixBound},
	}
}

func fitsInt32(n int) bool {
	return n >= math.MinInt32 && n <= math.MaxInt32
}

// fitCounts zeroes RO and operation counts outside the INTEGER range. It
// runs before derivation so ratios never use an out-of-range count.
func fitCounts(rec *model.PerformanceRecord) []string {
	var zeroed []string
	if !fitsInt32(rec.ROCount) {
		rec.ROCount = 0
		zeroed = append(zeroed, "ro_count")
	}
	if !fitsInt32(rec.OpCount) {
		rec.OpCount = 0
		zeroed = append(zeroed, "op_count")
	}
	return zeroed
}

// fitDecimals zeroes metrics whose stored value would overflow the column.
func fitDecimals(rec *model.PerformanceRecord) []string {
	var zeroed []string
	for _, f := range decimalFields(rec) {
		if f.value.Round(2).Abs().GreaterThanOrEqual(f.bound) {
			*f.value = decimal.Zero
			zeroed = append(zeroed, f.name)
		}
	}
	return zeroed
}

func logZeroed(row int, rec model.PerformanceRecord, fields []string) {
	if len(fields) == 0 {
		return
	}
	zap.L().Warn("ingest: out-of-range values stored as zero",
		zap.Int("row", row),
		zap.String("advisor_id", rec.AdvisorID),
		zap.Strings("fields", fields),
	)
}

func advisorIDTooLong(id string) bool {
	return utf8.RuneCountInString(id) > MaxAdvisorIDLen
}
