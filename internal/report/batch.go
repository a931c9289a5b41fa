package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/advisor-reports/internal/metrics"
	"github.com/sells-group/advisor-reports/internal/model"
	"github.com/sells-group/advisor-reports/internal/ranking"
)

// Outcome is the result of rendering one advisor's report.
type Outcome struct {
	AdvisorID string            `json:"advisor_id"`
	Period    string            `json:"period"`
	Path      string            `json:"path,omitempty"`
	Status    model.AuditStatus `json:"status"`
	Error     string            `json:"error,omitempty"`
}

// Failed reports whether the render failed.
func (o Outcome) Failed() bool { return o.Status == model.AuditFailed }

// CohortSource reads a period's eligible records.
type CohortSource interface {
	GetCohort(ctx context.Context, period string, minRO int) ([]model.PerformanceRecord, error)
}

// AuditSink records render and delivery attempts.
type AuditSink interface {
	AppendAudit(ctx context.Context, entry *model.AuditEntry) error
}

// BatchOption configures a Batch.
type BatchOption func(*Batch)

// WithConcurrency bounds concurrent renders. Values below 1 mean 1.
func WithConcurrency(n int) BatchOption {
	return func(b *Batch) {
		if n < 1 {
			n = 1
		}
		b.concurrency = n
	}
}

// WithMetrics records render outcomes on p.
func WithMetrics(p *metrics.Pipeline) BatchOption {
	return func(b *Batch) { b.metrics = p }
}

// Batch renders reports for every advisor in a period's ranking cohort.
type Batch struct {
	builder     *Builder
	cohort      CohortSource
	renderer    Renderer
	audit       AuditSink
	outputDir   string
	minRO       int
	concurrency int
	metrics     *metrics.Pipeline
}

// NewBatch creates a Batch writing into outputDir.
func NewBatch(builder *Builder, cohort CohortSource, renderer Renderer, audit AuditSink, outputDir string, minRO int, opts ...BatchOption) *Batch {
	b := &Batch{
		builder:     builder,
		cohort:      cohort,
		renderer:    renderer,
		audit:       audit,
		outputDir:   outputDir,
		minRO:       minRO,
		concurrency: 4,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// FileName is the artifact name for one advisor's report. Distinct
// advisor IDs always map to distinct names.
func FileName(advisorID, period, ext string) string {
	return safeName(advisorID) + "_" + safeName(period) + "_report." + ext
}

// safeName keeps ASCII letters, digits, '-' and '.' and writes every other
// byte as ~XX. The encoding never emits '_', so the separators in FileName
// stay unambiguous.
func safeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '.':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "~%02X", c)
		}
	}
	return b.String()
}

// RenderBatch renders one report per cohort member. A failure for one
// advisor never stops the others; each attempt is audited. The returned
// error covers only loading the cohort. When ctx is cancelled, advisors not
// yet started are reported as failed with the context error.
func (b *Batch) RenderBatch(ctx context.Context, period string) ([]Outcome, error) {
	log := zap.L().With(zap.String("period", period))

	cohort, err := b.cohort.GetCohort(ctx, period, b.minRO)
	if err != nil {
		return nil, eris.Wrapf(err, "report: load cohort %s", period)
	}
	if err := os.MkdirAll(b.outputDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "report: create output dir %s", b.outputDir)
	}
	rankings := ranking.Rank(cohort, b.minRO)

	outcomes := make([]Outcome, len(cohort))
	var g errgroup.Group
	g.SetLimit(b.concurrency)

	for i, rec := range cohort {
		g.Go(func() error {
			var out Outcome
			if err := ctx.Err(); err != nil {
				out = FailedOutcome(rec.AdvisorID, period, err)
			} else {
				out = b.renderOne(ctx, rec, rankings)
			}
			b.record(context.WithoutCancel(ctx), out)
			outcomes[i] = out
			return nil // per-advisor failures never fail the batch
		})
	}
	_ = g.Wait()

	var failures int
	for _, o := range outcomes {
		if o.Failed() {
			failures++
		}
	}
	log.Info("report: batch complete",
		zap.Int("advisors", len(outcomes)),
		zap.Int("failed", failures),
	)
	return outcomes, nil
}

// RenderAdvisor renders and audits a single report regardless of cohort
// membership.
func (b *Batch) RenderAdvisor(ctx context.Context, advisorID, period string) Outcome {
	var out Outcome
	m, err := b.builder.BuildModel(ctx, advisorID, period)
	if err != nil {
		out = FailedOutcome(advisorID, period, err)
	} else {
		out = b.write(m)
	}
	b.record(context.WithoutCancel(ctx), out)
	return out
}

func (b *Batch) renderOne(ctx context.Context, rec model.PerformanceRecord, rankings map[string]model.RankingResult) Outcome {
	m, err := b.builder.compose(ctx, rec, rankings)
	if err != nil {
		return FailedOutcome(rec.AdvisorID, rec.Period, err)
	}
	return b.write(m)
}

func (b *Batch) write(m *Model) Outcome {
	data, err := b.renderer.Render(m)
	if err != nil {
		return FailedOutcome(m.AdvisorID, m.Record.Period, err)
	}
	path := filepath.Join(b.outputDir, FileName(m.AdvisorID, m.Record.Period, b.renderer.Ext()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return FailedOutcome(m.AdvisorID, m.Record.Period, eris.Wrapf(err, "report: write %s", path))
	}
	return Outcome{AdvisorID: m.AdvisorID, Period: m.Record.Period, Path: path, Status: model.AuditSuccess}
}

// record persists the outcome after it is final.
func (b *Batch) record(ctx context.Context, out Outcome) {
	Record(ctx, b.audit, b.metrics, b.renderer.Ext(), out)
}

// Record observes a final render outcome on p and appends its audit entry
// to sink. Either may be nil. Audit failures are logged and do not change
// the outcome.
func Record(ctx context.Context, sink AuditSink, p *metrics.Pipeline, format string, out Outcome) {
	var renderErr error
	if out.Failed() {
		renderErr = eris.New(out.Error)
	}
	p.ObserveRender(format, renderErr)

	if sink == nil {
		return
	}
	entry := &model.AuditEntry{
		Kind:      model.AuditRender,
		AdvisorID: out.AdvisorID,
		Period:    out.Period,
		Artifact:  out.Path,
		Status:    out.Status,
		Error:     out.Error,
	}
	if err := sink.AppendAudit(ctx, entry); err != nil {
		zap.L().Warn("report: audit append failed",
			zap.String("advisor_id", out.AdvisorID),
			zap.String("period", out.Period),
			zap.Error(err),
		)
	}
}

// FailedOutcome builds the outcome of a render attempt that returned err.
func FailedOutcome(advisorID, period string, err error) Outcome {
	zap.L().Warn("report: render failed",
		zap.String("advisor_id", advisorID),
		zap.String("period", period),
		zap.Error(err),
	)
	return Outcome{AdvisorID: advisorID, Period: period, Status: model.AuditFailed, Error: err.Error()}
}
