package ingest

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/advisor-reports/internal/config"
	"github.com/sells-group/advisor-reports/internal/model"
)

func testPeriod() model.Period {
	return model.Period{
		Label: "2024-03",
		Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}
}

// extractRow builds a row with every default column; overrides replace cells.
func extractRow(name, id string, overrides map[string]string) Row {
	row := Row{
		"Advisor Name":          name,
		"Advisor":               id,
		"Labor & Parts":         "10,000.00",
		"Repair Order Count":    "600",
		"Effective Labor Rate":  "125.50",
		"Operation Count":       "1,500",
		"Tech Hours":            "800.5",
		"Labor Sales":           "6,000.00",
		"Parts Sales":           "4,000.00",
		"Labor Sale Average":    "10.00",
		"Parts Sales Average":   "6.67",
		"Labor & Parts Average": "16.67",
		"Tech Hours Average":    "1.33",
	}
	for k, v := range overrides {
		row[k] = v
	}
	return row
}

func decEq(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestExtract_MapsColumns(t *testing.T) {
	res, err := Extract([]Row{extractRow("Jane Doe", "A1", nil)}, testPeriod(), DefaultMapping())
	require.NoError(t, err)
	require.Len(t, res.Records, 1)

	rec := res.Records[0]
	assert.Equal(t, "A1", rec.AdvisorID)
	assert.Equal(t, "2024-03", rec.Period)
	assert.Equal(t, testPeriod().Start, rec.PeriodStart)
	assert.Equal(t, testPeriod().End, rec.PeriodEnd)
	decEq(t, "10000", rec.TotalSales)
	assert.Equal(t, 600, rec.ROCount)
	decEq(t, "125.50", rec.ELR)
	assert.Equal(t, 1500, rec.OpCount)
	decEq(t, "800.5", rec.TechHours)
	decEq(t, "6000", rec.LaborSales)
	decEq(t, "4000", rec.PartsSales)
	decEq(t, "10", rec.LaborAvg)
	decEq(t, "6.67", rec.PartsAvg)
	decEq(t, "16.67", rec.TotalAvg)
	decEq(t, "1.33", rec.TechHoursAvg)
	decEq(t, "2.5", rec.OpsPerRO)
	decEq(t, "60", rec.LaborMix)
	assert.Equal(t, map[string]string{"A1": "Jane Doe"}, res.Names)
}

func TestExtract_ExcludesBlankAndSentinelRows(t *testing.T) {
	rows := []Row{
		extractRow("Jane Doe", "A1", nil),
		extractRow("", "A2", nil),
		extractRow("XTIME ADVISOR", "SYS", nil),
		extractRow("John Roe", "A3", nil),
	}

	res, err := Extract(rows, testPeriod(), DefaultMapping())
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "A1", res.Records[0].AdvisorID)
	assert.Equal(t, "A3", res.Records[1].AdvisorID)
	assert.Equal(t, 2, res.Skipped)
}

func TestExtract_SkipsMissingAdvisorID(t *testing.T) {
	res, err := Extract([]Row{extractRow("Jane Doe", "  ", nil)}, testPeriod(), DefaultMapping())
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Equal(t, 1, res.Skipped)
}

func TestExtract_PreservesOrder(t *testing.T) {
	rows := []Row{
		extractRow("C", "A3", nil),
		extractRow("A", "A1", nil),
		extractRow("B", "A2", nil),
	}
	res, err := Extract(rows, testPeriod(), DefaultMapping())
	require.NoError(t, err)
	ids := make([]string, 0, len(res.Records))
	for _, r := range res.Records {
		ids = append(ids, r.AdvisorID)
	}
	assert.Equal(t, []string{"A3", "A1", "A2"}, ids)
}

func TestExtract_ZeroGuards(t *testing.T) {
	row := extractRow("Jane Doe", "A1", map[string]string{
		"Repair Order Count": "0",
		"Labor & Parts":      "0",
	})
	res, err := Extract([]Row{row}, testPeriod(), DefaultMapping())
	require.NoError(t, err)
	rec := res.Records[0]
	assert.True(t, rec.OpsPerRO.IsZero())
	assert.True(t, rec.LaborMix.IsZero())
}

func TestExtract_UnparseableCellsBecomeZero(t *testing.T) {
	row := extractRow("Jane Doe", "A1", map[string]string{
		"Labor & Parts":      "n/a",
		"Repair Order Count": "",
		"Tech Hours":         "--",
	})
	res, err := Extract([]Row{row}, testPeriod(), DefaultMapping())
	require.NoError(t, err)
	rec := res.Records[0]
	assert.True(t, rec.TotalSales.IsZero())
	assert.Equal(t, 0, rec.ROCount)
	assert.True(t, rec.TechHours.IsZero())
}

func TestExtract_OutOfRangeValuesBecomeZero(t *testing.T) {
	res, err := Extract([]Row{extractRow("Jane Doe", "A1", map[string]string{
		"Labor & Parts":        "12,345,678,901",
		"Repair Order Count":   "3,000,000,000",
		"Effective Labor Rate": "1e999",
		"Tech Hours":           "99,999,999.995",
	})}, testPeriod(), DefaultMapping())
	require.NoError(t, err)
	require.Len(t, res.Records, 1)

	rec := res.Records[0]
	decEq(t, "0", rec.TotalSales)
	assert.Equal(t, 0, rec.ROCount)
	decEq(t, "0", rec.ELR)
	decEq(t, "0", rec.TechHours)
	decEq(t, "0", rec.OpsPerRO)
	decEq(t, "0", rec.LaborMix)
	decEq(t, "6000", rec.LaborSales)
	assert.Equal(t, 1500, rec.OpCount)
}

func TestExtract_LargestStorableValuesKept(t *testing.T) {
	res, err := Extract([]Row{extractRow("Jane Doe", "A1", map[string]string{
		"Labor & Parts":      "9,999,999,999.99",
		"Repair Order Count": "2,147,483,647",
	})}, testPeriod(), DefaultMapping())
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	decEq(t, "9999999999.99", res.Records[0].TotalSales)
	assert.Equal(t, 2147483647, res.Records[0].ROCount)
}

func TestExtract_SkipsOverlongAdvisorID(t *testing.T) {
	longest := strings.Repeat("A", MaxAdvisorIDLen)
	rows := []Row{
		extractRow("Jane Doe", longest, nil),
		extractRow("John Roe", longest+"1", nil),
	}
	res, err := Extract(rows, testPeriod(), DefaultMapping())
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, longest, res.Records[0].AdvisorID)
	assert.Equal(t, 1, res.Skipped)
}

func TestExtract_DerivedRounding(t *testing.T) {
	row := extractRow("Jane Doe", "A1", map[string]string{
		"Operation Count":    "1000",
		"Repair Order Count": "3",
		"Labor Sales":        "1",
		"Labor & Parts":      "3",
	})
	res, err := Extract([]Row{row}, testPeriod(), DefaultMapping())
	require.NoError(t, err)
	decEq(t, "333.33", res.Records[0].OpsPerRO)
	decEq(t, "33.33", res.Records[0].LaborMix)
}

func TestExtract_MissingColumnIsStructural(t *testing.T) {
	row := extractRow("Jane Doe", "A1", nil)
	delete(row, "Tech Hours")

	_, err := Extract([]Row{row}, testPeriod(), DefaultMapping())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStructural))
	assert.Contains(t, err.Error(), "missing columns Tech Hours")
}

func TestExtract_DifferingColumnSetsIsStructural(t *testing.T) {
	second := extractRow("John Roe", "A2", nil)
	delete(second, "Parts Sales")
	second["Parts"] = "1"

	_, err := Extract([]Row{extractRow("Jane Doe", "A1", nil), second}, testPeriod(), DefaultMapping())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStructural))
}

func TestExtract_UnmappedColumnIsZero(t *testing.T) {
	m := DefaultMapping()
	m.Columns.TechHoursAvg = ""
	row := extractRow("Jane Doe", "A1", nil)
	delete(row, "Tech Hours Average")

	res, err := Extract([]Row{row}, testPeriod(), m)
	require.NoError(t, err)
	assert.True(t, res.Records[0].TechHoursAvg.IsZero())
}

func TestExtract_Empty(t *testing.T) {
	res, err := Extract(nil, testPeriod(), DefaultMapping())
	require.NoError(t, err)
	assert.Empty(t, res.Records)
}

func TestMappingFromConfig(t *testing.T) {
	m := MappingFromConfig(config.IngestConfig{
		Sentinels: []string{"HOUSE"},
		Columns:   config.ColumnsConfig{AdvisorName: "Name", AdvisorID: "ID"},
	})
	assert.Equal(t, []string{"HOUSE"}, m.Sentinels)
	assert.Equal(t, "Name", m.Columns.AdvisorName)
	assert.Equal(t, "ID", m.Columns.AdvisorID)
	assert.Equal(t, []string{"Name", "ID"}, m.Columns.names())
}
