package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig defines the parameters for an upsert. Callers declare it
// statically per entity; column lists never come from request data.
type UpsertConfig struct {
	Table        string   // target table (e.g., "performance_data")
	Columns      []string // all columns being inserted
	ConflictKeys []string // columns forming the unique constraint
	UpdateCols   []string // columns to update on conflict; nil = all non-conflict columns
}

func (cfg UpsertConfig) validate() error {
	if len(cfg.Columns) == 0 {
		return eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return eris.New("db: upsert: no conflict keys specified")
	}
	return nil
}

func (cfg UpsertConfig) updateColumns() []string {
	if cfg.UpdateCols != nil {
		return cfg.UpdateCols
	}
	conflictSet := make(map[string]bool, len(cfg.ConflictKeys))
	for _, k := range cfg.ConflictKeys {
		conflictSet[k] = true
	}
	var cols []string
	for _, c := range cfg.Columns {
		if !conflictSet[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

func (cfg UpsertConfig) onConflict() string {
	setClauses := make([]string, 0, len(cfg.Columns))
	for _, col := range cfg.updateColumns() {
		id := pgx.Identifier{col}.Sanitize()
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", id, id))
	}
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s",
		quoteAndJoin(cfg.ConflictKeys), strings.Join(setClauses, ", "))
}

// UpsertStatement builds a single-row INSERT ... ON CONFLICT DO UPDATE with
// positional parameters in Columns order. If returning is non-empty, the
// stored row's columns are returned.
func UpsertStatement(cfg UpsertConfig, returning []string) (string, error) {
	if err := cfg.validate(); err != nil {
		return "", err
	}
	placeholders := make([]string, len(cfg.Columns))
	for i := range cfg.Columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) %s",
		sanitizeTable(cfg.Table),
		quoteAndJoin(cfg.Columns),
		strings.Join(placeholders, ", "),
		cfg.onConflict(),
	)
	if len(returning) > 0 {
		stmt += " RETURNING " + quoteAndJoin(returning)
	}
	return stmt, nil
}

// BulkUpsert performs a bulk upsert via a temp table and INSERT ... ON CONFLICT.
// 1. Creates a temp table with the same columns
// 2. COPY rows into the temp table
// 3. INSERT INTO target SELECT ... FROM temp ON CONFLICT (keys) DO UPDATE SET ...
// 4. Drops the temp table on commit
//
// Every step runs in one transaction: the whole batch commits or none of it does.
// Rows must not repeat a conflict key; Postgres would reject the statement.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := cfg.validate(); err != nil {
		return 0, err
	}
	if err := checkDistinctKeys(cfg, rows); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tempTable := fmt.Sprintf("_tmp_upsert_%s", strings.ReplaceAll(cfg.Table, ".", "_"))

	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{tempTable}.Sanitize(),
		sanitizeTable(cfg.Table),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create temp table for %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{tempTable}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: COPY into temp table for %s", cfg.Table)
	}

	colList := quoteAndJoin(cfg.Columns)
	upsertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s %s",
		sanitizeTable(cfg.Table),
		colList,
		colList,
		pgx.Identifier{tempTable}.Sanitize(),
		cfg.onConflict(),
	)

	tag, err := tx.Exec(ctx, upsertSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: INSERT ON CONFLICT for %s", cfg.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}

	return tag.RowsAffected(), nil
}

// checkDistinctKeys rejects batches that repeat a conflict key.
func checkDistinctKeys(cfg UpsertConfig, rows [][]any) error {
	idx := make([]int, 0, len(cfg.ConflictKeys))
	for _, k := range cfg.ConflictKeys {
		found := -1
		for i, c := range cfg.Columns {
			if c == k {
				found = i
				break
			}
		}
		if found < 0 {
			return eris.Errorf("db: upsert: conflict key %q is not an inserted column", k)
		}
		idx = append(idx, found)
	}

	seen := make(map[string]int, len(rows))
	for n, row := range rows {
		if len(row) != len(cfg.Columns) {
			return eris.Errorf("db: upsert: row %d has %d values, want %d", n, len(row), len(cfg.Columns))
		}
		parts := make([]string, len(idx))
		for i, j := range idx {
			parts[i] = fmt.Sprint(row[j])
		}
		key := strings.Join(parts, "\x00")
		if prev, dup := seen[key]; dup {
			return eris.Errorf("db: upsert: rows %d and %d share conflict key %v", prev, n, parts)
		}
		seen[key] = n
	}
	return nil
}

// sanitizeTable handles schema-qualified table names like "reporting.performance_data".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
