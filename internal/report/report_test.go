package report

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/advisor-reports/internal/commission"
	"github.com/sells-group/advisor-reports/internal/model"
	"github.com/sells-group/advisor-reports/internal/ranking"
	"github.com/sells-group/advisor-reports/internal/store"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// memStore is an in-memory stand-in for the store used by the builder and batch.
type memStore struct {
	mu        sync.Mutex
	records   map[string]model.PerformanceRecord
	advisors  map[string]model.Advisor
	plans     []model.RatePlan
	audit     []model.AuditEntry
	cohortErr error
}

func newMemStore(recs ...model.PerformanceRecord) *memStore {
	s := &memStore{
		records:  map[string]model.PerformanceRecord{},
		advisors: map[string]model.Advisor{},
		plans:    []model.RatePlan{commission.DefaultPlan()},
	}
	for _, r := range recs {
		s.records[r.AdvisorID] = r
	}
	return s
}

func (s *memStore) Get(_ context.Context, advisorID, period string) (*model.PerformanceRecord, error) {
	r, ok := s.records[advisorID]
	if !ok || r.Period != period {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (s *memStore) GetCohort(_ context.Context, period string, minRO int) ([]model.PerformanceRecord, error) {
	if s.cohortErr != nil {
		return nil, s.cohortErr
	}
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []model.PerformanceRecord
	for _, id := range ids {
		if r := s.records[id]; r.Period == period && r.ROCount >= minRO {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) GetAdvisor(_ context.Context, id string) (*model.Advisor, error) {
	a, ok := s.advisors[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (s *memStore) ListRatePlans(context.Context) ([]model.RatePlan, error) {
	return s.plans, nil
}

func (s *memStore) AppendAudit(_ context.Context, e *model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, *e)
	return nil
}

func perfRecord(id string, sales string, ro int) model.PerformanceRecord {
	return model.PerformanceRecord{
		AdvisorID:    id,
		Period:       "2024-03",
		PeriodStart:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:    time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		TotalSales:   d(sales),
		LaborSales:   d("10000"),
		PartsSales:   d("4000"),
		ROCount:      ro,
		ELR:          d("118.25"),
		TotalAvg:     d("420"),
		OpsPerRO:     d("4.20"),
		LaborMix:     d("71.43"),
		TechHoursAvg: d("1.75"),
	}
}

func newTestBuilder(s *memStore) *Builder {
	b := NewBuilder(s, s, commission.NewEngine(s), ranking.NewEngine(s, 500), "Hendrick Toyota Merriam")
	b.now = func() time.Time { return time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC) }
	return b
}

// --- formatting ---

func TestFormatting(t *testing.T) {
	assert.Equal(t, "$1,234.50", Currency(d("1234.5")))
	assert.Equal(t, "$1,410.00", Currency(d("1410")))
	assert.Equal(t, "-$12.35", Currency(d("-12.345")))
	assert.Equal(t, "$0.00", Currency(decimal.Zero))
	assert.Equal(t, "1,234,567.89", Number(d("1234567.891")))
	assert.Equal(t, "12,345", Count(12345))
	assert.Equal(t, "7.50%", Percent(d("0.075")))
	assert.Equal(t, 67, RoundPercentile(66.6667))
	assert.Equal(t, 50, RoundPercentile(49.5))
}

// --- model ---

func TestBuildModel(t *testing.T) {
	s := newMemStore(perfRecord("A1", "14000", 600), perfRecord("A2", "9000", 520))
	s.advisors["A1"] = model.Advisor{AdvisorID: "A1", Name: "Jane Smith"}

	m, err := newTestBuilder(s).BuildModel(context.Background(), "A1", "2024-03")
	require.NoError(t, err)

	assert.Equal(t, "Jane Smith", m.AdvisorName)
	assert.True(t, m.Commission.Total.Equal(d("1410")))
	assert.True(t, m.Eligible)
	assert.Equal(t, 1, m.Ranking.SalesRank)
	assert.Equal(t, 2, m.Ranking.CohortSize)
	assert.Equal(t, 100, m.PercentileDisplay())
	assert.Equal(t, "2024-03", m.Period())
}

func TestBuildModel_OutsideCohort(t *testing.T) {
	s := newMemStore(perfRecord("A1", "14000", 600), perfRecord("A2", "9000", 120))

	m, err := newTestBuilder(s).BuildModel(context.Background(), "A2", "2024-03")
	require.NoError(t, err)
	assert.False(t, m.Eligible)
	assert.Equal(t, 0, m.Ranking.CohortSize)
	assert.Equal(t, 0, m.PercentileDisplay())
	assert.Equal(t, "A2", m.AdvisorName, "unknown advisors display their ID")
}

func TestBuildModel_NotFound(t *testing.T) {
	_, err := newTestBuilder(newMemStore()).BuildModel(context.Background(), "A9", "2024-03")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestBuildModel_NoPlan(t *testing.T) {
	s := newMemStore(perfRecord("A1", "14000", 600))
	s.plans = nil

	_, err := newTestBuilder(s).BuildModel(context.Background(), "A1", "2024-03")
	require.Error(t, err)
	assert.True(t, errors.Is(err, commission.ErrConfigurationMissing))
}

// --- renderers ---

func builtModel(t *testing.T) *Model {
	t.Helper()
	s := newMemStore(perfRecord("A1", "14000", 600), perfRecord("A2", "9000", 520))
	s.advisors["A1"] = model.Advisor{AdvisorID: "A1", Name: "Jane Smith"}
	m, err := newTestBuilder(s).BuildModel(context.Background(), "A1", "2024-03")
	require.NoError(t, err)
	return m
}

func TestTextRenderer(t *testing.T) {
	out, err := TextRenderer{}.Render(builtModel(t))
	require.NoError(t, err)
	text := string(out)

	assert.Contains(t, text, "# Service Advisor Performance Report")
	assert.Contains(t, text, "Advisor: Jane Smith (A1)")
	assert.Contains(t, text, "- Total Sales: $14,000.00")
	assert.Contains(t, text, "- Labor Commission (7.50%): $750.00")
	assert.Contains(t, text, "- Parts Commission (4.00%): $160.00")
	assert.Contains(t, text, "- Performance Bonus: $500.00")
	assert.Contains(t, text, "**Total Commission: $1,410.00**")
	assert.Contains(t, text, "#1 of 2 (100th percentile)")
	assert.Contains(t, text, "Hendrick Toyota Merriam")

	footerAt := strings.LastIndex(text, "\n---\n")
	require.Positive(t, footerAt)
	assert.NotContains(t, text[:footerAt], "Generated")
	assert.Contains(t, text[footerAt:], "Generated: April 1, 2024")
}

func TestTextRenderer_NotRanked(t *testing.T) {
	m := builtModel(t)
	m.Eligible = false
	m.Ranking = model.RankingResult{}

	out, err := TextRenderer{}.Render(m)
	require.NoError(t, err)
	assert.Contains(t, string(out), "Not ranked")
}

func TestPDFRenderer_Deterministic(t *testing.T) {
	m := builtModel(t)

	first, err := PDFRenderer{}.Render(m)
	require.NoError(t, err)
	second, err := PDFRenderer{}.Render(m)
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(first, []byte("%PDF-")))
	assert.Equal(t, first, second)

	m.GeneratedAt = m.GeneratedAt.Add(24 * time.Hour)
	third, err := PDFRenderer{}.Render(m)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestNewRenderer(t *testing.T) {
	r, err := NewRenderer("pdf")
	require.NoError(t, err)
	assert.Equal(t, "pdf", r.Ext())

	r, err = NewRenderer("text")
	require.NoError(t, err)
	assert.Equal(t, "md", r.Ext())

	_, err = NewRenderer("docx")
	assert.Error(t, err)
}

// --- batch ---

type flakyRenderer struct {
	TextRenderer
	failFor string
}

func (f flakyRenderer) Render(m *Model) ([]byte, error) {
	if m.AdvisorID == f.failFor {
		return nil, errors.New("font cache corrupted")
	}
	return f.TextRenderer.Render(m)
}

func TestRenderBatch_IsolatesFailures(t *testing.T) {
	s := newMemStore(
		perfRecord("A1", "14000", 600),
		perfRecord("A2", "12000", 700),
		perfRecord("A3", "9000", 510),
		perfRecord("A4", "30000", 100),
	)
	dir := t.TempDir()
	batch := NewBatch(newTestBuilder(s), s, flakyRenderer{failFor: "A2"}, s, dir, 500, WithConcurrency(2))

	outcomes, err := batch.RenderBatch(context.Background(), "2024-03")
	require.NoError(t, err)
	require.Len(t, outcomes, 3, "A4 is below the RO minimum")

	byID := map[string]Outcome{}
	for _, o := range outcomes {
		byID[o.AdvisorID] = o
	}
	assert.Equal(t, model.AuditSuccess, byID["A1"].Status)
	assert.Equal(t, model.AuditSuccess, byID["A3"].Status)
	assert.Equal(t, model.AuditFailed, byID["A2"].Status)
	assert.Contains(t, byID["A2"].Error, "font cache corrupted")

	assert.FileExists(t, filepath.Join(dir, "A1_2024-03_report.md"))
	assert.FileExists(t, filepath.Join(dir, "A3_2024-03_report.md"))
	_, statErr := os.Stat(filepath.Join(dir, "A2_2024-03_report.md"))
	assert.True(t, os.IsNotExist(statErr))

	require.Len(t, s.audit, 3)
	for _, e := range s.audit {
		assert.Equal(t, model.AuditRender, e.Kind)
	}
}

func TestRenderBatch_Cancelled(t *testing.T) {
	s := newMemStore(perfRecord("A1", "14000", 600), perfRecord("A2", "12000", 700))
	batch := NewBatch(newTestBuilder(s), s, TextRenderer{}, s, t.TempDir(), 500)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, err := batch.RenderBatch(ctx, "2024-03")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.True(t, o.Failed())
		assert.Contains(t, o.Error, context.Canceled.Error())
	}
	assert.Len(t, s.audit, 2, "cancelled attempts are still audited")
}

func TestRenderBatch_CohortError(t *testing.T) {
	s := newMemStore()
	s.cohortErr = errors.New("db down")
	batch := NewBatch(newTestBuilder(s), s, TextRenderer{}, s, t.TempDir(), 500)

	_, err := batch.RenderBatch(context.Background(), "2024-03")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestRenderAdvisor_NotFoundIsAudited(t *testing.T) {
	s := newMemStore()
	batch := NewBatch(newTestBuilder(s), s, TextRenderer{}, s, t.TempDir(), 500)

	out := batch.RenderAdvisor(context.Background(), "A9", "2024-03")
	assert.True(t, out.Failed())
	require.Len(t, s.audit, 1)
	assert.Equal(t, model.AuditFailed, s.audit[0].Status)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "A100_2024-03_report.pdf", FileName("A100", "2024-03", "pdf"))
	assert.Equal(t, "a~2Fb_2024~20Q1_report.md", FileName("a/b", "2024 Q1", "md"))
	assert.Equal(t, "~2E~2E~2Fetc_2024-03_report.md", FileName("../etc", "2024-03", "md"))
}

func TestFileName_DistinctIDs(t *testing.T) {
	ids := []string{"A-1", "A/1", `A\1`, "A 1", "A_1", "A~1", "A~2F1", "A..1", "A.1", "A_1_2024", "A"}
	seen := map[string]string{}
	for _, id := range ids {
		name := FileName(id, "2024-03", "md")
		assert.NotContains(t, name, "/")
		assert.NotContains(t, name, `\`)
		if prev, dup := seen[name]; dup {
			t.Errorf("advisor IDs %q and %q both map to %s", prev, id, name)
		}
		seen[name] = id
	}
}

func TestRenderBatch_SimilarIDsKeepSeparateFiles(t *testing.T) {
	s := newMemStore(
		perfRecord("A/1", "14000", 600),
		perfRecord("A-1", "12000", 700),
		perfRecord("A 1", "11000", 650),
		perfRecord("A_1", "9000", 510),
	)
	dir := t.TempDir()
	batch := NewBatch(newTestBuilder(s), s, TextRenderer{}, s, dir, 500, WithConcurrency(4))

	outcomes, err := batch.RenderBatch(context.Background(), "2024-03")
	require.NoError(t, err)
	require.Len(t, outcomes, 4)

	paths := map[string]bool{}
	for _, o := range outcomes {
		require.Equal(t, model.AuditSuccess, o.Status, o.AdvisorID)
		paths[o.Path] = true

		body, err := os.ReadFile(o.Path)
		require.NoError(t, err)
		assert.Contains(t, string(body), "("+o.AdvisorID+")")
	}
	assert.Len(t, paths, 4)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}
