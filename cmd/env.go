package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"

	"github.com/sells-group/advisor-reports/internal/commission"
	"github.com/sells-group/advisor-reports/internal/goals"
	"github.com/sells-group/advisor-reports/internal/ingest"
	"github.com/sells-group/advisor-reports/internal/metrics"
	"github.com/sells-group/advisor-reports/internal/notify"
	"github.com/sells-group/advisor-reports/internal/ranking"
	"github.com/sells-group/advisor-reports/internal/report"
	"github.com/sells-group/advisor-reports/internal/store"
)

// appEnv holds the wired pipeline components shared by commands.
type appEnv struct {
	Store    store.Store
	Metrics  *metrics.Pipeline
	Ranking  *ranking.Engine
	Builder  *report.Builder
	Importer *ingest.Importer
}

// initStore validates store config and opens a migrated store.
func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	if cfg.Store.TimeoutSecs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Store.TimeoutSecs)*time.Second)
		defer cancel()
	}
	return store.Open(ctx, cfg.Store)
}

// initEnv opens the store and wires the engines on top of it. Metrics are
// registered on reg when it is non-nil.
func initEnv(ctx context.Context, reg prometheus.Registerer) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	m := metrics.New(reg)

	var commOpts []commission.Option
	if cfg.Commission.UseDefaultFallback {
		commOpts = append(commOpts, commission.WithFallback(commission.DefaultPlan()))
	}
	rank := ranking.NewEngine(st, cfg.Ranking.MinROCount)

	env := &appEnv{
		Store:   st,
		Metrics: m,
		Ranking: rank,
		Builder: report.NewBuilder(st, st, commission.NewEngine(st, commOpts...), rank, cfg.Report.Dealership),
		Importer: ingest.NewImporter(st, ingest.MappingFromConfig(cfg.Ingest),
			ingest.WithMetrics(m),
			ingest.WithSourceTimeout(time.Duration(cfg.Import.TimeoutSecs)*time.Second),
		),
	}
	return env, nil
}

// Close releases the store.
func (e *appEnv) Close() {
	_ = e.Store.Close()
}

// batch builds the report batch renderer for format.
func (e *appEnv) batch(format string) (*report.Batch, error) {
	if format == "" {
		format = cfg.Report.Format
	}
	renderer, err := report.NewRenderer(format)
	if err != nil {
		return nil, err
	}
	return report.NewBatch(e.Builder, e.Store, renderer, e.Store, cfg.Report.OutputDir, e.Ranking.MinROCount(),
		report.WithConcurrency(cfg.Report.Concurrency),
		report.WithMetrics(e.Metrics),
	), nil
}

// dispatcher builds the notification dispatcher from config.
func (e *appEnv) dispatcher(withGoals bool) (*notify.Dispatcher, error) {
	if err := cfg.Validate("notify"); err != nil {
		return nil, err
	}
	transport, err := notify.NewTransport(cfg.Notify)
	if err != nil {
		return nil, err
	}
	tpl, err := notify.LoadTemplates(cfg.Notify.TemplateDir)
	if err != nil {
		return nil, eris.Wrap(err, "load templates")
	}
	opts := []notify.Option{
		notify.WithMetrics(e.Metrics),
		notify.WithRate(cfg.Notify.RatePerSecond),
		notify.WithConcurrency(cfg.Report.Concurrency),
	}
	if cfg.Notify.From != "" {
		opts = append(opts, notify.WithFrom(cfg.Notify.From))
	}
	if withGoals {
		opts = append(opts, notify.WithGoals(goals.TargetsFromConfig(cfg.Goals)))
	}
	return notify.NewDispatcher(transport, tpl, e.Store, opts...), nil
}
