package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/advisor-reports/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Decimals and
// calendar dates are stored as TEXT.
type SQLiteStore struct {
	db *sql.DB
}

// sqlitePragmas apply to every pooled connection, not just the first.
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// NewSQLite opens a SQLite database at the given path in WAL mode. Write
// transactions take the lock when they begin.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(dsn))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "sqlite: connect %s", dsn)
	}
	return &SQLiteStore{db: db}, nil
}

func sqliteDSN(dsn string) string {
	q := url.Values{}
	for _, p := range sqlitePragmas {
		q.Add("_pragma", p)
	}
	q.Set("_txlock", "immediate")
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + q.Encode()
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS performance_data (
	advisor_id     TEXT NOT NULL,
	period         TEXT NOT NULL,
	period_start   TEXT NOT NULL,
	period_end     TEXT NOT NULL,
	total_sales    TEXT NOT NULL DEFAULT '0',
	labor_sales    TEXT NOT NULL DEFAULT '0',
	parts_sales    TEXT NOT NULL DEFAULT '0',
	ro_count       INTEGER NOT NULL DEFAULT 0,
	op_count       INTEGER NOT NULL DEFAULT 0,
	tech_hours     TEXT NOT NULL DEFAULT '0',
	elr            TEXT NOT NULL DEFAULT '0',
	labor_avg      TEXT NOT NULL DEFAULT '0',
	parts_avg      TEXT NOT NULL DEFAULT '0',
	total_avg      TEXT NOT NULL DEFAULT '0',
	tech_hours_avg TEXT NOT NULL DEFAULT '0',
	ops_per_ro     TEXT NOT NULL DEFAULT '0',
	labor_mix      TEXT NOT NULL DEFAULT '0',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (advisor_id, period)
);

CREATE TABLE IF NOT EXISTS rate_plans (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	labor_rate      TEXT NOT NULL DEFAULT '0.0750',
	parts_rate      TEXT NOT NULL DEFAULT '0.0400',
	bonus_threshold TEXT NOT NULL DEFAULT '400.00',
	bonus_amount    TEXT NOT NULL DEFAULT '500.00',
	effective_from  TEXT,
	effective_to    TEXT,
	is_active       INTEGER NOT NULL DEFAULT 1,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS advisors (
	advisor_id       TEXT PRIMARY KEY,
	name             TEXT NOT NULL DEFAULT '',
	email            TEXT NOT NULL DEFAULT '',
	phone            TEXT NOT NULL DEFAULT '',
	manager_id       TEXT NOT NULL DEFAULT '',
	hire_date        TEXT,
	termination_date TEXT,
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS audit_log (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	advisor_id TEXT NOT NULL,
	period     TEXT NOT NULL,
	channel    TEXT NOT NULL DEFAULT '',
	recipient  TEXT NOT NULL DEFAULT '',
	subject    TEXT NOT NULL DEFAULT '',
	template   TEXT NOT NULL DEFAULT '',
	artifact   TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_performance_period ON performance_data(period);
CREATE INDEX IF NOT EXISTS idx_performance_advisor ON performance_data(advisor_id);
CREATE INDEX IF NOT EXISTS idx_audit_log_period ON audit_log(period, advisor_id);
CREATE INDEX IF NOT EXISTS idx_audit_log_created_at ON audit_log(created_at);
`

var (
	sqliteUpsertSQL = sqliteUpsertStatement()
	// sqliteUpsertReturningSQL yields the row this statement wrote.
	sqliteUpsertReturningSQL = sqliteUpsertSQL + " RETURNING " + strings.Join(performanceSelect, ", ")
	sqliteSelectSQL          = "SELECT " + strings.Join(performanceSelect, ", ") + " FROM performance_data"
	sqliteOrderBy            = " ORDER BY CAST(total_sales AS REAL) DESC, advisor_id"
)

// sqliteUpsertStatement builds the INSERT ... ON CONFLICT for performance_data.
// created_at is only written on first insert.
func sqliteUpsertStatement() string {
	cols := append(append([]string{}, performanceColumns...), "created_at")
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	key := make(map[string]bool, len(performanceKey))
	for _, k := range performanceKey {
		key[k] = true
	}
	var sets []string
	for _, c := range performanceColumns {
		if !key[c] {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}
	return fmt.Sprintf("INSERT INTO performance_data (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		strings.Join(cols, ", "), placeholders, strings.Join(performanceKey, ", "), strings.Join(sets, ", "))
}

func sqliteDate(t time.Time) any { return t.Format(model.DateLayout) }

func sqliteOptionalDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(model.DateLayout)
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Upsert(ctx context.Context, rec model.PerformanceRecord) (*model.PerformanceRecord, error) {
	now := time.Now().UTC()
	args := append(recordValues(rec, now, sqliteDate), now)
	stored, err := scanSQLiteRecord(s.db.QueryRowContext(ctx, sqliteUpsertReturningSQL, args...))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert %s/%s", rec.AdvisorID, rec.Period)
	}
	return stored, nil
}

// ImportBatch writes recs in one transaction; a failure leaves the table untouched.
func (s *SQLiteStore) ImportBatch(ctx context.Context, recs []model.PerformanceRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import batch: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertSQL)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import batch: prepare")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	seen := make(map[model.RecordKey]int, len(recs))
	var written int64
	for i, rec := range recs {
		if prev, dup := seen[rec.Key()]; dup {
			return 0, eris.Errorf("sqlite: import batch: rows %d and %d share key %s/%s", prev, i, rec.AdvisorID, rec.Period)
		}
		seen[rec.Key()] = i
		res, err := stmt.ExecContext(ctx, append(recordValues(rec, now, sqliteDate), now)...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: import batch: write %s/%s", rec.AdvisorID, rec.Period)
		}
		n, _ := res.RowsAffected()
		written += n
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: import batch: commit")
	}
	return written, nil
}

func (s *SQLiteStore) Get(ctx context.Context, advisorID, period string) (*model.PerformanceRecord, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelectSQL+` WHERE advisor_id = ? AND period = ?`, advisorID, period)
	rec, err := scanSQLiteRecord(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: performance %s/%s", advisorID, period)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get performance %s/%s", advisorID, period)
	}
	return rec, nil
}

func (s *SQLiteStore) GetByPeriod(ctx context.Context, period string) ([]model.PerformanceRecord, error) {
	return s.queryRecords(ctx, "get period "+period, sqliteSelectSQL+` WHERE period = ?`+sqliteOrderBy, period)
}

func (s *SQLiteStore) GetCohort(ctx context.Context, period string, minRO int) ([]model.PerformanceRecord, error) {
	return s.queryRecords(ctx, "get cohort "+period,
		sqliteSelectSQL+` WHERE period = ? AND ro_count >= ?`+sqliteOrderBy, period, minRO)
}

func (s *SQLiteStore) queryRecords(ctx context.Context, action, query string, args ...any) ([]model.PerformanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s", action)
	}
	defer rows.Close() //nolint:errcheck

	recs := []model.PerformanceRecord{}
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: %s: scan", action)
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrapf(rows.Err(), "sqlite: %s: iterate", action)
}

func (s *SQLiteStore) DeletePeriod(ctx context.Context, period string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM performance_data WHERE period = ?`, period)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: delete period %s", period)
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) ListPeriods(ctx context.Context) ([]model.PeriodSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT period, MIN(period_start), MAX(period_end), COUNT(*)
		FROM performance_data
		GROUP BY period
		ORDER BY period DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list periods")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.PeriodSummary{}
	for rows.Next() {
		var p model.PeriodSummary
		var start, end string
		if err := rows.Scan(&p.Period, &start, &end, &p.AdvisorCount); err != nil {
			return nil, eris.Wrap(err, "sqlite: list periods: scan")
		}
		if p.PeriodStart, err = time.Parse(model.DateLayout, start); err != nil {
			return nil, eris.Wrapf(err, "sqlite: list periods: period_start %q", start)
		}
		if p.PeriodEnd, err = time.Parse(model.DateLayout, end); err != nil {
			return nil, eris.Wrapf(err, "sqlite: list periods: period_end %q", end)
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list periods: iterate")
}

func (s *SQLiteStore) ListRatePlans(ctx context.Context) ([]model.RatePlan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, labor_rate, parts_rate, bonus_threshold, bonus_amount, effective_from, effective_to, is_active, created_at
		FROM rate_plans ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list rate plans")
	}
	defer rows.Close() //nolint:errcheck

	plans := []model.RatePlan{}
	for rows.Next() {
		var p model.RatePlan
		var from, to sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &p.LaborRate, &p.PartsRate, &p.BonusThreshold, &p.BonusAmount,
			&from, &to, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: list rate plans: scan")
		}
		if p.EffectiveFrom, err = parseOptionalDate(from); err != nil {
			return nil, eris.Wrapf(err, "sqlite: rate plan %s effective_from", p.ID)
		}
		if p.EffectiveTo, err = parseOptionalDate(to); err != nil {
			return nil, eris.Wrapf(err, "sqlite: rate plan %s effective_to", p.ID)
		}
		plans = append(plans, p)
	}
	return plans, eris.Wrap(rows.Err(), "sqlite: list rate plans: iterate")
}

func (s *SQLiteStore) CreateRatePlan(ctx context.Context, plan *model.RatePlan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	prepareRatePlan(plan)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rate_plans (id, name, labor_rate, parts_rate, bonus_threshold, bonus_amount, effective_from, effective_to, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ID, plan.Name, plan.LaborRate, plan.PartsRate, plan.BonusThreshold, plan.BonusAmount,
		sqliteOptionalDate(plan.EffectiveFrom), sqliteOptionalDate(plan.EffectiveTo), plan.IsActive, plan.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert rate plan %s", plan.Name)
}

func (s *SQLiteStore) DeactivateRatePlan(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE rate_plans SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: deactivate rate plan %s", id)
	}
	return checkRowsAffected(res, "rate plan", id)
}

func (s *SQLiteStore) UpsertAdvisor(ctx context.Context, a model.Advisor) error {
	if err := model.Validate(a); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO advisors (advisor_id, name, email, phone, manager_id, hire_date, termination_date, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (advisor_id) DO UPDATE SET
			name = COALESCE(NULLIF(excluded.name, ''), advisors.name),
			email = excluded.email,
			phone = excluded.phone,
			manager_id = excluded.manager_id,
			hire_date = excluded.hire_date,
			termination_date = excluded.termination_date,
			updated_at = excluded.updated_at`,
		a.AdvisorID, a.Name, a.Email, a.Phone, a.ManagerID,
		sqliteOptionalDate(a.HireDate), sqliteOptionalDate(a.TerminationDate), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert advisor %s", a.AdvisorID)
}

func (s *SQLiteStore) RecordAdvisorNames(ctx context.Context, names map[string]string) error {
	if len(names) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: record advisor names: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for _, id := range sortedKeys(names) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO advisors (advisor_id, name, updated_at) VALUES (?, ?, ?)
			ON CONFLICT (advisor_id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`,
			id, names[id], now)
		if err != nil {
			return eris.Wrapf(err, "sqlite: record advisor name %s", id)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: record advisor names: commit")
}

func (s *SQLiteStore) GetAdvisor(ctx context.Context, advisorID string) (*model.Advisor, error) {
	var a model.Advisor
	var hire, term sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT advisor_id, name, email, phone, manager_id, hire_date, termination_date FROM advisors WHERE advisor_id = ?`,
		advisorID,
	).Scan(&a.AdvisorID, &a.Name, &a.Email, &a.Phone, &a.ManagerID, &hire, &term)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: advisor %s", advisorID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get advisor %s", advisorID)
	}
	if a.HireDate, err = parseOptionalDate(hire); err != nil {
		return nil, eris.Wrapf(err, "sqlite: advisor %s hire_date", advisorID)
	}
	if a.TerminationDate, err = parseOptionalDate(term); err != nil {
		return nil, eris.Wrapf(err, "sqlite: advisor %s termination_date", advisorID)
	}
	return &a, nil
}

func (s *SQLiteStore) AppendAudit(ctx context.Context, e *model.AuditEntry) error {
	prepareAudit(e)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, kind, advisor_id, period, channel, recipient, subject, template, artifact, status, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.AdvisorID, e.Period, e.Channel, e.Recipient, e.Subject,
		e.Template, e.Artifact, string(e.Status), e.Error, e.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: append audit %s/%s", e.AdvisorID, e.Period)
}

func (s *SQLiteStore) ListAudit(ctx context.Context, f AuditFilter) ([]model.AuditEntry, error) {
	where, args := auditWhere(f, func(int) string { return "?" })
	args = append(args, auditLimit(f))
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, advisor_id, period, channel, recipient, subject, template, artifact, status, error, created_at
		 FROM audit_log`+where+` ORDER BY created_at DESC, rowid DESC LIMIT ?`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list audit")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.AuditEntry{}
	for rows.Next() {
		var e model.AuditEntry
		var kind, status string
		if err := rows.Scan(&e.ID, &kind, &e.AdvisorID, &e.Period, &e.Channel, &e.Recipient, &e.Subject,
			&e.Template, &e.Artifact, &status, &e.Error, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: list audit: scan")
		}
		e.Kind, e.Status = model.AuditKind(kind), model.AuditStatus(status)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list audit: iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row scannable) (*model.PerformanceRecord, error) {
	var r model.PerformanceRecord
	var start, end string
	err := row.Scan(
		&r.AdvisorID, &r.Period, &start, &end,
		&r.TotalSales, &r.LaborSales, &r.PartsSales,
		&r.ROCount, &r.OpCount, &r.TechHours, &r.ELR,
		&r.LaborAvg, &r.PartsAvg, &r.TotalAvg, &r.TechHoursAvg,
		&r.OpsPerRO, &r.LaborMix,
		&r.UpdatedAt, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if r.PeriodStart, err = time.Parse(model.DateLayout, start); err != nil {
		return nil, eris.Wrapf(err, "period_start %q", start)
	}
	if r.PeriodEnd, err = time.Parse(model.DateLayout, end); err != nil {
		return nil, eris.Wrapf(err, "period_end %q", end)
	}
	return &r, nil
}

func parseOptionalDate(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(model.DateLayout, v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
