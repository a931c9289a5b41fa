package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/advisor-reports/internal/db"
	"github.com/sells-group/advisor-reports/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var performanceUpsert = db.UpsertConfig{
	Table:        "performance_data",
	Columns:      performanceColumns,
	ConflictKeys: performanceKey,
}

var (
	upsertPerformanceSQL = mustUpsertStatement(performanceUpsert, performanceSelect)
	selectPerformanceSQL = "SELECT " + strings.Join(performanceSelect, ", ") + " FROM performance_data"
)

func mustUpsertStatement(cfg db.UpsertConfig, returning []string) string {
	stmt, err := db.UpsertStatement(cfg, returning)
	if err != nil {
		panic(err)
	}
	return stmt
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"upsert_performance":  upsertPerformanceSQL,
	"get_performance":     selectPerformanceSQL + ` WHERE advisor_id = $1 AND period = $2`,
	"get_period":          selectPerformanceSQL + ` WHERE period = $1 ORDER BY total_sales DESC, advisor_id`,
	"get_cohort":          selectPerformanceSQL + ` WHERE period = $1 AND ro_count >= $2 ORDER BY total_sales DESC, advisor_id`,
	"get_advisor":         `SELECT advisor_id, name, email, phone, manager_id, hire_date, termination_date FROM advisors WHERE advisor_id = $1`,
	"insert_audit":        `INSERT INTO audit_log (id, kind, advisor_id, period, channel, recipient, subject, template, artifact, status, error, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
	"list_rate_plans":     `SELECT id, name, labor_rate, parts_rate, bonus_threshold, bonus_amount, effective_from, effective_to, is_active, created_at FROM rate_plans ORDER BY created_at DESC`,
	"record_advisor_name": `INSERT INTO advisors (advisor_id, name, updated_at) VALUES ($1, $2, $3) ON CONFLICT (advisor_id) DO UPDATE SET name = EXCLUDED.name, updated_at = EXCLUDED.updated_at`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// NUMERIC columns scan into decimal.Decimal; statements are prepared
	// only after Migrate has created the tables they reference.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		var ready bool
		if err := conn.QueryRow(ctx, `SELECT to_regclass('audit_log') IS NOT NULL`).Scan(&ready); err != nil {
			return eris.Wrap(err, "postgres: check schema")
		}
		if !ready {
			return nil
		}
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS performance_data (
	advisor_id     VARCHAR(50) NOT NULL,
	period         VARCHAR(20) NOT NULL,
	period_start   DATE NOT NULL,
	period_end     DATE NOT NULL,
	total_sales    NUMERIC(12,2) NOT NULL DEFAULT 0,
	labor_sales    NUMERIC(12,2) NOT NULL DEFAULT 0,
	parts_sales    NUMERIC(12,2) NOT NULL DEFAULT 0,
	ro_count       INTEGER NOT NULL DEFAULT 0,
	op_count       INTEGER NOT NULL DEFAULT 0,
	tech_hours     NUMERIC(10,2) NOT NULL DEFAULT 0,
	elr            NUMERIC(8,2) NOT NULL DEFAULT 0,
	labor_avg      NUMERIC(10,2) NOT NULL DEFAULT 0,
	parts_avg      NUMERIC(10,2) NOT NULL DEFAULT 0,
	total_avg      NUMERIC(10,2) NOT NULL DEFAULT 0,
	tech_hours_avg NUMERIC(8,2) NOT NULL DEFAULT 0,
	ops_per_ro     NUMERIC(8,2) NOT NULL DEFAULT 0,
	labor_mix      NUMERIC(5,2) NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (advisor_id, period)
);

CREATE INDEX IF NOT EXISTS idx_performance_period ON performance_data(period);
CREATE INDEX IF NOT EXISTS idx_performance_advisor ON performance_data(advisor_id);

CREATE TABLE IF NOT EXISTS rate_plans (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name            VARCHAR(100) NOT NULL,
	labor_rate      NUMERIC(5,4) NOT NULL DEFAULT 0.0750,
	parts_rate      NUMERIC(5,4) NOT NULL DEFAULT 0.0400,
	bonus_threshold NUMERIC(10,2) NOT NULL DEFAULT 400.00,
	bonus_amount    NUMERIC(10,2) NOT NULL DEFAULT 500.00,
	effective_from  DATE,
	effective_to    DATE,
	is_active       BOOLEAN NOT NULL DEFAULT true,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS advisors (
	advisor_id       VARCHAR(50) PRIMARY KEY,
	name             TEXT NOT NULL DEFAULT '',
	email            TEXT NOT NULL DEFAULT '',
	phone            TEXT NOT NULL DEFAULT '',
	manager_id       TEXT NOT NULL DEFAULT '',
	hire_date        DATE,
	termination_date DATE,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audit_log (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	advisor_id VARCHAR(50) NOT NULL,
	period     VARCHAR(20) NOT NULL,
	channel    TEXT NOT NULL DEFAULT '',
	recipient  TEXT NOT NULL DEFAULT '',
	subject    TEXT NOT NULL DEFAULT '',
	template   TEXT NOT NULL DEFAULT '',
	artifact   TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_audit_log_period ON audit_log(period, advisor_id);
CREATE INDEX IF NOT EXISTS idx_audit_log_created_at ON audit_log(created_at DESC);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate creates the schema. It is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func pgDate(t time.Time) any { return t }

// Upsert writes one record in a single INSERT ... ON CONFLICT statement and
// returns the stored row.
func (s *PostgresStore) Upsert(ctx context.Context, rec model.PerformanceRecord) (*model.PerformanceRecord, error) {
	row := s.pool.QueryRow(ctx, upsertPerformanceSQL, recordValues(rec, time.Now().UTC(), pgDate)...)
	out, err := scanPGRecord(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert %s/%s", rec.AdvisorID, rec.Period)
	}
	return out, nil
}

// ImportBatch upserts recs in one transaction via COPY into a temp table.
// Keys must be distinct within the batch.
func (s *PostgresStore) ImportBatch(ctx context.Context, recs []model.PerformanceRecord) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, len(recs))
	for i, rec := range recs {
		rows[i] = recordValues(rec, now, pgDate)
	}
	n, err := db.BulkUpsert(ctx, s.pool, performanceUpsert, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: import batch")
	}
	return n, nil
}

// Get returns one advisor's record for a period, or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, advisorID, period string) (*model.PerformanceRecord, error) {
	row := s.pool.QueryRow(ctx, selectPerformanceSQL+` WHERE advisor_id = $1 AND period = $2`, advisorID, period)
	rec, err := scanPGRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: performance %s/%s", advisorID, period)
		}
		return nil, eris.Wrapf(err, "postgres: get performance %s/%s", advisorID, period)
	}
	return rec, nil
}

// GetByPeriod returns every record of a period, highest total sales first.
func (s *PostgresStore) GetByPeriod(ctx context.Context, period string) ([]model.PerformanceRecord, error) {
	return s.queryRecords(ctx, "get period "+period,
		selectPerformanceSQL+` WHERE period = $1 ORDER BY total_sales DESC, advisor_id`, period)
}

// GetCohort returns the period's records with at least minRO repair orders.
func (s *PostgresStore) GetCohort(ctx context.Context, period string, minRO int) ([]model.PerformanceRecord, error) {
	return s.queryRecords(ctx, "get cohort "+period,
		selectPerformanceSQL+` WHERE period = $1 AND ro_count >= $2 ORDER BY total_sales DESC, advisor_id`, period, minRO)
}

func (s *PostgresStore) queryRecords(ctx context.Context, action, sql string, args ...any) ([]model.PerformanceRecord, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s", action)
	}
	defer rows.Close()

	recs := []model.PerformanceRecord{}
	for rows.Next() {
		rec, err := scanPGRecord(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: %s: scan", action)
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrapf(rows.Err(), "postgres: %s: iterate", action)
}

// DeletePeriod removes every record of a period and returns the count.
func (s *PostgresStore) DeletePeriod(ctx context.Context, period string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM performance_data WHERE period = $1`, period)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: delete period %s", period)
	}
	return tag.RowsAffected(), nil
}

// ListPeriods summarizes stored periods, newest label first.
func (s *PostgresStore) ListPeriods(ctx context.Context) ([]model.PeriodSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT period, MIN(period_start), MAX(period_end), COUNT(*)
		FROM performance_data
		GROUP BY period
		ORDER BY period DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list periods")
	}
	defer rows.Close()

	out := []model.PeriodSummary{}
	for rows.Next() {
		var p model.PeriodSummary
		var count int64
		if err := rows.Scan(&p.Period, &p.PeriodStart, &p.PeriodEnd, &count); err != nil {
			return nil, eris.Wrap(err, "postgres: list periods: scan")
		}
		p.AdvisorCount = int(count)
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list periods: iterate")
}

// ListRatePlans returns all plans, newest first.
func (s *PostgresStore) ListRatePlans(ctx context.Context) ([]model.RatePlan, error) {
	rows, err := s.pool.Query(ctx, preparedStatements["list_rate_plans"])
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rate plans")
	}
	defer rows.Close()

	plans := []model.RatePlan{}
	for rows.Next() {
		var p model.RatePlan
		if err := rows.Scan(&p.ID, &p.Name, &p.LaborRate, &p.PartsRate, &p.BonusThreshold, &p.BonusAmount,
			&p.EffectiveFrom, &p.EffectiveTo, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: list rate plans: scan")
		}
		plans = append(plans, p)
	}
	return plans, eris.Wrap(rows.Err(), "postgres: list rate plans: iterate")
}

// CreateRatePlan validates and inserts plan, assigning ID and CreatedAt when unset.
func (s *PostgresStore) CreateRatePlan(ctx context.Context, plan *model.RatePlan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	prepareRatePlan(plan)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO rate_plans (id, name, labor_rate, parts_rate, bonus_threshold, bonus_amount, effective_from, effective_to, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		plan.ID, plan.Name, plan.LaborRate, plan.PartsRate, plan.BonusThreshold, plan.BonusAmount,
		plan.EffectiveFrom, plan.EffectiveTo, plan.IsActive, plan.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert rate plan %s", plan.Name)
}

// DeactivateRatePlan marks a plan inactive, or returns ErrNotFound.
func (s *PostgresStore) DeactivateRatePlan(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE rate_plans SET is_active = false WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: deactivate rate plan %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: rate plan %s", id)
	}
	return nil
}

// UpsertAdvisor writes advisor metadata. An empty name keeps the stored one.
func (s *PostgresStore) UpsertAdvisor(ctx context.Context, a model.Advisor) error {
	if err := model.Validate(a); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO advisors (advisor_id, name, email, phone, manager_id, hire_date, termination_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (advisor_id) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), advisors.name),
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			manager_id = EXCLUDED.manager_id,
			hire_date = EXCLUDED.hire_date,
			termination_date = EXCLUDED.termination_date,
			updated_at = EXCLUDED.updated_at`,
		a.AdvisorID, a.Name, a.Email, a.Phone, a.ManagerID, a.HireDate, a.TerminationDate, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert advisor %s", a.AdvisorID)
}

// RecordAdvisorNames stores display names without touching contact fields.
func (s *PostgresStore) RecordAdvisorNames(ctx context.Context, names map[string]string) error {
	if len(names) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: record advisor names: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	for _, id := range sortedKeys(names) {
		if _, err := tx.Exec(ctx, preparedStatements["record_advisor_name"], id, names[id], now); err != nil {
			return eris.Wrapf(err, "postgres: record advisor name %s", id)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: record advisor names: commit")
}

// GetAdvisor returns advisor metadata, or ErrNotFound.
func (s *PostgresStore) GetAdvisor(ctx context.Context, advisorID string) (*model.Advisor, error) {
	var a model.Advisor
	err := s.pool.QueryRow(ctx, preparedStatements["get_advisor"], advisorID).
		Scan(&a.AdvisorID, &a.Name, &a.Email, &a.Phone, &a.ManagerID, &a.HireDate, &a.TerminationDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: advisor %s", advisorID)
		}
		return nil, eris.Wrapf(err, "postgres: get advisor %s", advisorID)
	}
	return &a, nil
}

// AppendAudit inserts an audit entry, assigning ID and CreatedAt when unset.
func (s *PostgresStore) AppendAudit(ctx context.Context, e *model.AuditEntry) error {
	prepareAudit(e)
	_, err := s.pool.Exec(ctx, preparedStatements["insert_audit"],
		e.ID, string(e.Kind), e.AdvisorID, e.Period, e.Channel, e.Recipient, e.Subject,
		e.Template, e.Artifact, string(e.Status), e.Error, e.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: append audit %s/%s", e.AdvisorID, e.Period)
}

// ListAudit returns matching audit entries, newest first.
func (s *PostgresStore) ListAudit(ctx context.Context, f AuditFilter) ([]model.AuditEntry, error) {
	where, args := auditWhere(f, func(n int) string { return fmt.Sprintf("$%d", n) })
	args = append(args, auditLimit(f))
	query := `SELECT id, kind, advisor_id, period, channel, recipient, subject, template, artifact, status, error, created_at
		FROM audit_log` + where + fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list audit")
	}
	defer rows.Close()

	out := []model.AuditEntry{}
	for rows.Next() {
		var e model.AuditEntry
		var kind, status string
		if err := rows.Scan(&e.ID, &kind, &e.AdvisorID, &e.Period, &e.Channel, &e.Recipient, &e.Subject,
			&e.Template, &e.Artifact, &status, &e.Error, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: list audit: scan")
		}
		e.Kind, e.Status = model.AuditKind(kind), model.AuditStatus(status)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list audit: iterate")
}

func scanPGRecord(row pgx.Row) (*model.PerformanceRecord, error) {
	var r model.PerformanceRecord
	err := row.Scan(
		&r.AdvisorID, &r.Period, &r.PeriodStart, &r.PeriodEnd,
		&r.TotalSales, &r.LaborSales, &r.PartsSales,
		&r.ROCount, &r.OpCount, &r.TechHours, &r.ELR,
		&r.LaborAvg, &r.PartsAvg, &r.TotalAvg, &r.TechHoursAvg,
		&r.OpsPerRO, &r.LaborMix,
		&r.UpdatedAt, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
