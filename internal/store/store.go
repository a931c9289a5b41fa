// Package store persists performance records, rate plans, advisor metadata,
// and the render/delivery audit log.
package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/advisor-reports/internal/config"
	"github.com/sells-group/advisor-reports/internal/model"
)

// ErrNotFound is returned by single-entity lookups that match nothing.
// List operations return an empty slice instead.
var ErrNotFound = errors.New("store: not found")

// AuditFilter narrows ListAudit results. Zero fields match everything.
type AuditFilter struct {
	Kind      model.AuditKind
	AdvisorID string
	Period    string
	Limit     int
}

// Store defines the persistence interface for the reporting pipeline.
type Store interface {
	// Performance records
	Upsert(ctx context.Context, rec model.PerformanceRecord) (*model.PerformanceRecord, error)
	ImportBatch(ctx context.Context, recs []model.PerformanceRecord) (int64, error)
	Get(ctx context.Context, advisorID, period string) (*model.PerformanceRecord, error)
	GetByPeriod(ctx context.Context, period string) ([]model.PerformanceRecord, error)
	GetCohort(ctx context.Context, period string, minRO int) ([]model.PerformanceRecord, error)
	DeletePeriod(ctx context.Context, period string) (int64, error)
	ListPeriods(ctx context.Context) ([]model.PeriodSummary, error)

	// Rate plans
	ListRatePlans(ctx context.Context) ([]model.RatePlan, error)
	CreateRatePlan(ctx context.Context, plan *model.RatePlan) error
	DeactivateRatePlan(ctx context.Context, id string) error

	// Advisor metadata
	UpsertAdvisor(ctx context.Context, a model.Advisor) error
	RecordAdvisorNames(ctx context.Context, names map[string]string) error
	GetAdvisor(ctx context.Context, advisorID string) (*model.Advisor, error)

	// Audit log
	AppendAudit(ctx context.Context, entry *model.AuditEntry) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]model.AuditEntry, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the configured backend and migrates its schema.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	case "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "advisor-reports.db"
		}
		st, err = NewSQLite(dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// storageScale is the decimal scale of every stored metric column.
const storageScale = 2

// performanceColumns is the write column list for performance_data, in
// recordValues order. created_at is assigned by the database on insert.
var performanceColumns = []string{
	"advisor_id", "period", "period_start", "period_end",
	"total_sales", "labor_sales", "parts_sales",
	"ro_count", "op_count", "tech_hours", "elr",
	"labor_avg", "parts_avg", "total_avg", "tech_hours_avg",
	"ops_per_ro", "labor_mix",
	"updated_at",
}

var performanceKey = []string{"advisor_id", "period"}

// performanceSelect is the read column list, in scanRecord order.
var performanceSelect = append(append([]string{}, performanceColumns...), "created_at")

// recordValues flattens a record into performanceColumns order. Metrics are
// rounded to the storage scale so both backends hold identical values;
// date encodes period bounds for the backend.
func recordValues(rec model.PerformanceRecord, updatedAt time.Time, date func(time.Time) any) []any {
	return []any{
		rec.AdvisorID, rec.Period, date(rec.PeriodStart), date(rec.PeriodEnd),
		scaled(rec.TotalSales), scaled(rec.LaborSales), scaled(rec.PartsSales),
		rec.ROCount, rec.OpCount, scaled(rec.TechHours), scaled(rec.ELR),
		scaled(rec.LaborAvg), scaled(rec.PartsAvg), scaled(rec.TotalAvg), scaled(rec.TechHoursAvg),
		scaled(rec.OpsPerRO), scaled(rec.LaborMix),
		updatedAt,
	}
}

func scaled(d decimal.Decimal) decimal.Decimal {
	return d.Round(storageScale)
}

// defaultAuditLimit caps ListAudit when the filter sets no limit.
const defaultAuditLimit = 100

func auditLimit(f AuditFilter) int {
	if f.Limit <= 0 {
		return defaultAuditLimit
	}
	return f.Limit
}

// auditWhere builds the WHERE clause for f. placeholder renders the n-th
// (1-based) bind parameter for the backend.
func auditWhere(f AuditFilter, placeholder func(n int) string) (string, []any) {
	var conds []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		conds = append(conds, col+" = "+placeholder(len(args)))
	}
	if f.Kind != "" {
		add("kind", string(f.Kind))
	}
	if f.AdvisorID != "" {
		add("advisor_id", f.AdvisorID)
	}
	if f.Period != "" {
		add("period", f.Period)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func prepareRatePlan(p *model.RatePlan) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
}

func prepareAudit(e *model.AuditEntry) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
