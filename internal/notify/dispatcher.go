package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/advisor-reports/internal/goals"
	"github.com/sells-group/advisor-reports/internal/metrics"
	"github.com/sells-group/advisor-reports/internal/model"
	"github.com/sells-group/advisor-reports/internal/report"
	"github.com/sells-group/advisor-reports/internal/store"
)

// StatusSkipped marks an advisor who was not contacted. Skips are not audited.
const StatusSkipped model.AuditStatus = "skipped"

// DeliveryOutcome is the result of one delivery attempt.
type DeliveryOutcome struct {
	AdvisorID string            `json:"advisor_id"`
	Period    string            `json:"period"`
	Channel   string            `json:"channel"`
	Recipient string            `json:"recipient"`
	Template  string            `json:"template"`
	Subject   string            `json:"subject,omitempty"`
	Status    model.AuditStatus `json:"status"`
	Error     string            `json:"error,omitempty"`
}

// AuditSink records delivery attempts.
type AuditSink interface {
	AppendAudit(ctx context.Context, entry *model.AuditEntry) error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithFrom sets the sender address.
func WithFrom(addr string) Option {
	return func(d *Dispatcher) { d.from = addr }
}

// WithMetrics records delivery outcomes on p.
func WithMetrics(p *metrics.Pipeline) Option {
	return func(d *Dispatcher) { d.metrics = p }
}

// WithRate paces batch sends to perSecond messages per second.
func WithRate(perSecond float64) Option {
	return func(d *Dispatcher) {
		if perSecond > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithGoals makes NotifyBatch follow each report with goal messages.
func WithGoals(t goals.Targets) Option {
	return func(d *Dispatcher) { d.targets = &t }
}

// WithConcurrency bounds concurrent batch deliveries.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n < 1 {
			n = 1
		}
		d.concurrency = n
	}
}

// Dispatcher renders and sends advisor notifications.
type Dispatcher struct {
	transport   Transport
	templates   *Templates
	audit       AuditSink
	from        string
	metrics     *metrics.Pipeline
	limiter     *rate.Limiter
	targets     *goals.Targets
	concurrency int
}

// NewDispatcher creates a Dispatcher delivering through t.
func NewDispatcher(t Transport, tpl *Templates, audit AuditSink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		transport:   t,
		templates:   tpl,
		audit:       audit,
		from:        "noreply@dealership.com",
		limiter:     rate.NewLimiter(rate.Inf, 1),
		concurrency: 4,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Notify sends the monthly report email for m to recipient. It makes one
// attempt and audits the outcome. An empty channel defaults to the
// transport's name.
func (d *Dispatcher) Notify(ctx context.Context, channel, recipient string, m *report.Model) DeliveryOutcome {
	data := monthlyReportData(m)
	subject := fmt.Sprintf("Your Performance Report - %s", m.Period())
	return d.deliver(ctx, channel, recipient, m, TemplateMonthlyReport, subject, data)
}

// NotifyGoals sends one goal-achieved message per met target and a single
// performance alert listing every missed one.
func (d *Dispatcher) NotifyGoals(ctx context.Context, channel, recipient string, m *report.Model, targets goals.Targets) []DeliveryOutcome {
	ev := goals.Evaluate(m.Record, targets)
	var out []DeliveryOutcome
	for _, r := range ev.Achieved {
		data := goalData{
			FirstName:  firstName(m),
			Period:     m.Period(),
			Metric:     string(r.Metric),
			Value:      formatMetric(r.Metric, r.Actual),
			Target:     formatMetric(r.Metric, r.Target),
			Dealership: m.Dealership,
		}
		subject := fmt.Sprintf("🎉 Goal Achieved: %s", r.Metric)
		out = append(out, d.deliver(ctx, channel, recipient, m, TemplateGoalAchieved, subject, data))
	}
	if len(ev.Missed) > 0 {
		data := alertData{FirstName: firstName(m), Period: m.Period(), Dealership: m.Dealership}
		for _, r := range ev.Missed {
			data.Issues = append(data.Issues, goalData{
				Metric: string(r.Metric),
				Value:  formatMetric(r.Metric, r.Actual),
				Target: formatMetric(r.Metric, r.Target),
			})
		}
		subject := fmt.Sprintf("Performance Alert - %s", m.Period())
		out = append(out, d.deliver(ctx, channel, recipient, m, TemplatePerformanceAlert, subject, data))
	}
	return out
}

// BatchSource supplies what NotifyBatch needs from the store and report builder.
type BatchSource interface {
	GetCohort(ctx context.Context, period string, minRO int) ([]model.PerformanceRecord, error)
	GetAdvisor(ctx context.Context, advisorID string) (*model.Advisor, error)
}

// ModelBuilder builds report models.
type ModelBuilder interface {
	BuildModel(ctx context.Context, advisorID, period string) (*report.Model, error)
}

// NotifyBatch emails every cohort member of a period whose advisor record has
// an email address. Sends are paced by the configured rate and one failure
// never stops the others. The returned error covers only loading the cohort.
func (d *Dispatcher) NotifyBatch(ctx context.Context, period string, minRO int, src BatchSource, builder ModelBuilder) ([]DeliveryOutcome, error) {
	cohort, err := src.GetCohort(ctx, period, minRO)
	if err != nil {
		return nil, eris.Wrapf(err, "notify: load cohort %s", period)
	}

	results := make([][]DeliveryOutcome, len(cohort))
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, rec := range cohort {
		g.Go(func() error {
			results[i] = d.notifyAdvisor(ctx, rec.AdvisorID, period, src, builder)
			return nil
		})
	}
	_ = g.Wait()

	var out []DeliveryOutcome
	var failed int
	for _, rs := range results {
		for _, r := range rs {
			if r.Status == model.AuditFailed {
				failed++
			}
			out = append(out, r)
		}
	}
	zap.L().Info("notify: batch complete",
		zap.String("period", period),
		zap.Int("advisors", len(cohort)),
		zap.Int("deliveries", len(out)),
		zap.Int("failed", failed),
	)
	return out, nil
}

func (d *Dispatcher) notifyAdvisor(ctx context.Context, advisorID, period string, src BatchSource, builder ModelBuilder) []DeliveryOutcome {
	channel := d.transport.Name()
	base := DeliveryOutcome{AdvisorID: advisorID, Period: period, Channel: channel, Template: TemplateMonthlyReport}

	a, err := src.GetAdvisor(ctx, advisorID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return []DeliveryOutcome{d.fail(ctx, base, eris.Wrapf(err, "notify: advisor %s", advisorID))}
	}
	if a == nil || a.Email == "" {
		base.Status = StatusSkipped
		base.Error = "no email on file"
		return []DeliveryOutcome{base}
	}
	base.Recipient = a.Email

	m, err := builder.BuildModel(ctx, advisorID, period)
	if err != nil {
		return []DeliveryOutcome{d.fail(ctx, base, err)}
	}

	out := []DeliveryOutcome{d.paced(ctx, base, func() DeliveryOutcome {
		return d.Notify(ctx, channel, a.Email, m)
	})}
	if d.targets != nil {
		out = append(out, d.goalsPaced(ctx, channel, a.Email, m)...)
	}
	return out
}

func (d *Dispatcher) goalsPaced(ctx context.Context, channel, recipient string, m *report.Model) []DeliveryOutcome {
	if d.targets == nil {
		return nil
	}
	if err := d.limiter.Wait(ctx); err != nil {
		base := DeliveryOutcome{AdvisorID: m.AdvisorID, Period: m.Period(), Channel: channel, Recipient: recipient, Template: TemplateGoalAchieved}
		return []DeliveryOutcome{d.fail(ctx, base, err)}
	}
	return d.NotifyGoals(ctx, channel, recipient, m, *d.targets)
}

func (d *Dispatcher) paced(ctx context.Context, base DeliveryOutcome, send func() DeliveryOutcome) DeliveryOutcome {
	if err := d.limiter.Wait(ctx); err != nil {
		return d.fail(ctx, base, err)
	}
	return send()
}

// deliver renders, sends once, then records the outcome.
func (d *Dispatcher) deliver(ctx context.Context, channel, recipient string, m *report.Model, tpl, subject string, data any) DeliveryOutcome {
	if channel == "" {
		channel = d.transport.Name()
	}
	out := DeliveryOutcome{
		AdvisorID: m.AdvisorID,
		Period:    m.Period(),
		Channel:   channel,
		Recipient: recipient,
		Template:  tpl,
		Subject:   subject,
	}

	html, err := d.templates.Render(tpl, data)
	if err != nil {
		return d.fail(ctx, out, err)
	}
	msg := Message{
		From:     d.from,
		To:       recipient,
		Subject:  subject,
		HTML:     html,
		Template: tpl,
		Metadata: map[string]string{"advisor_id": m.AdvisorID, "period": m.Period()},
	}
	if err := d.transport.Send(ctx, msg); err != nil {
		return d.fail(ctx, out, err)
	}

	out.Status = model.AuditSuccess
	d.record(ctx, out)
	return out
}

func (d *Dispatcher) fail(ctx context.Context, out DeliveryOutcome, err error) DeliveryOutcome {
	out.Status = model.AuditFailed
	out.Error = err.Error()
	zap.L().Warn("notify: delivery failed",
		zap.String("advisor_id", out.AdvisorID),
		zap.String("recipient", out.Recipient),
		zap.String("template", out.Template),
		zap.Error(err),
	)
	d.record(ctx, out)
	return out
}

// record audits a final outcome. Audit failures are logged only.
func (d *Dispatcher) record(ctx context.Context, out DeliveryOutcome) {
	var sendErr error
	if out.Status == model.AuditFailed {
		sendErr = eris.New(out.Error)
	}
	d.metrics.ObserveDelivery(out.Template, sendErr)

	if d.audit == nil {
		return
	}
	entry := &model.AuditEntry{
		Kind:      model.AuditDelivery,
		AdvisorID: out.AdvisorID,
		Period:    out.Period,
		Channel:   out.Channel,
		Recipient: out.Recipient,
		Subject:   out.Subject,
		Template:  out.Template,
		Status:    out.Status,
		Error:     out.Error,
	}
	if err := d.audit.AppendAudit(context.WithoutCancel(ctx), entry); err != nil {
		zap.L().Warn("notify: audit append failed", zap.String("advisor_id", out.AdvisorID), zap.Error(err))
	}
}
