package schedule

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sells-group/advisor-reports/internal/ingest"
	"github.com/sells-group/advisor-reports/internal/model"
	"github.com/sells-group/advisor-reports/internal/notify"
	"github.com/sells-group/advisor-reports/internal/report"
)

// PeriodLabel is the label format of calendar-month periods.
const PeriodLabel = "2006-01"

// PreviousMonth returns the full calendar month before now.
func PreviousMonth(now time.Time) model.Period {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	start := first.AddDate(0, -1, 0)
	return model.Period{
		Label: start.Format(PeriodLabel),
		Start: start,
		End:   first.AddDate(0, 0, -1),
	}
}

// MonthToDate returns the current month from its first day through now.
func MonthToDate(now time.Time) model.Period {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return model.Period{
		Label: start.Format(PeriodLabel),
		Start: start,
		End:   time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
	}
}

// BatchRenderer renders every cohort report for a period.
type BatchRenderer interface {
	RenderBatch(ctx context.Context, period string) ([]report.Outcome, error)
}

// NotifyFunc emails a period's reports.
type NotifyFunc func(ctx context.Context, period string) ([]notify.DeliveryOutcome, error)

// MonthlyJob renders, and optionally emails, last month's reports.
type MonthlyJob struct {
	spec   string
	render BatchRenderer
	notify NotifyFunc
	now    func() time.Time
}

// NewMonthlyJob creates the monthly report job. notify may be nil.
func NewMonthlyJob(spec string, render BatchRenderer, notify NotifyFunc) *MonthlyJob {
	return &MonthlyJob{spec: spec, render: render, notify: notify, now: time.Now}
}

// Name implements Job.
func (j *MonthlyJob) Name() string { return "monthly-reports" }

// Spec implements Job.
func (j *MonthlyJob) Spec() string { return j.spec }

// Run implements Job. Failed reports and deliveries are reported together
// after every advisor has been attempted.
func (j *MonthlyJob) Run(ctx context.Context) error {
	period := PreviousMonth(j.now()).Label

	outcomes, err := j.render.RenderBatch(ctx, period)
	if err != nil {
		return eris.Wrapf(err, "schedule: render %s", period)
	}
	var errs error
	var failed int
	for _, o := range outcomes {
		if o.Failed() {
			failed++
		}
	}
	if failed > 0 {
		errs = multierr.Append(errs, eris.Errorf("schedule: %d of %d reports failed for %s", failed, len(outcomes), period))
	}

	if j.notify != nil {
		deliveries, err := j.notify(ctx, period)
		if err != nil {
			errs = multierr.Append(errs, eris.Wrapf(err, "schedule: notify %s", period))
		}
		var undelivered int
		for _, d := range deliveries {
			if d.Status == model.AuditFailed {
				undelivered++
			}
		}
		if undelivered > 0 {
			errs = multierr.Append(errs, eris.Errorf("schedule: %d deliveries failed for %s", undelivered, period))
		}
	}

	zap.L().Info("schedule: monthly reports",
		zap.String("period", period),
		zap.Int("reports", len(outcomes)),
		zap.Int("failed", failed),
	)
	return errs
}

// Importer pulls an extract into the store.
type Importer interface {
	ImportFrom(ctx context.Context, location, format string, period model.Period) (*ingest.ImportResult, error)
}

// ImportJob refreshes the current month from the configured extract location.
type ImportJob struct {
	spec     string
	location string
	importer Importer
	now      func() time.Time
}

// NewImportJob creates the month-to-date import job.
func NewImportJob(spec, location string, importer Importer) *ImportJob {
	return &ImportJob{spec: spec, location: location, importer: importer, now: time.Now}
}

// Name implements Job.
func (j *ImportJob) Name() string { return "import-extract" }

// Spec implements Job.
func (j *ImportJob) Spec() string { return j.spec }

// Run implements Job.
func (j *ImportJob) Run(ctx context.Context) error {
	period := MonthToDate(j.now())
	res, err := j.importer.ImportFrom(ctx, j.location, "", period)
	if err != nil {
		return eris.Wrapf(err, "schedule: import %s", period.Label)
	}
	zap.L().Info("schedule: extract imported",
		zap.String("period", res.Period),
		zap.Int64("written", res.Written),
		zap.Int("skipped", res.Skipped),
	)
	return nil
}
