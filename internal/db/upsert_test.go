package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCfg = UpsertConfig{
	Table:        "performance_data",
	Columns:      []string{"advisor_id", "period", "total_sales"},
	ConflictKeys: []string{"advisor_id", "period"},
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, testCfg, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "performance_data",
		ConflictKeys: []string{"advisor_id"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "performance_data",
		Columns: []string{"advisor_id", "period"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_DuplicateKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, testCfg, [][]any{
		{"A1", "2024-03", "10"},
		{"A1", "2024-03", "20"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "share conflict key")
}

func TestBulkUpsert_RowWidthMismatch(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, testCfg, [][]any{{"A1", "2024-03"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has 2 values, want 3")
}

func TestBulkUpsert_CommitsInOneTx(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	rows := [][]any{
		{"A1", "2024-03", "10"},
		{"A2", "2024-03", "20"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_performance_data" \(LIKE "performance_data" INCLUDING DEFAULTS\)`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_performance_data"}, testCfg.Columns).
		WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("advisor_id", "period"\) DO UPDATE SET "total_sales" = EXCLUDED."total_sales"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, testCfg, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_RollsBackOnCopyFailure(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_performance_data"}, testCfg.Columns).
		WillReturnError(errors.New("copy failed"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, testCfg, [][]any{{"A1", "2024-03", "10"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertStatement(t *testing.T) {
	stmt, err := UpsertStatement(testCfg, []string{"advisor_id", "updated_at"})
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "performance_data" ("advisor_id", "period", "total_sales") VALUES ($1, $2, $3) `+
			`ON CONFLICT ("advisor_id", "period") DO UPDATE SET "total_sales" = EXCLUDED."total_sales" `+
			`RETURNING "advisor_id", "updated_at"`,
		stmt)
}

func TestUpsertStatement_ExplicitUpdateCols(t *testing.T) {
	cfg := testCfg
	cfg.UpdateCols = []string{"total_sales"}
	stmt, err := UpsertStatement(cfg, nil)
	require.NoError(t, err)
	assert.NotContains(t, stmt, "RETURNING")
	assert.Contains(t, stmt, `DO UPDATE SET "total_sales" = EXCLUDED."total_sales"`)
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"reporting.performance_data", `"reporting"."performance_data"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitizeTable(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"id", "name", "value"})
	assert.Equal(t, `"id", "name", "value"`, result)
}
