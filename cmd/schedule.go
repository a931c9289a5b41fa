package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/advisor-reports/internal/notify"
	"github.com/sells-group/advisor-reports/internal/schedule"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the monthly report and extract import jobs on their cron schedules",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("schedule"); err != nil {
			return err
		}
		env, err := initEnv(ctx, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		sched, err := buildScheduler(env)
		if err != nil {
			return err
		}

		if job, _ := cmd.Flags().GetString("run-now"); job != "" {
			return sched.RunNow(ctx, job)
		}

		sched.Start()
		<-ctx.Done()
		sched.Stop()
		return nil
	},
}

// buildScheduler registers the monthly report job and, when enabled, the
// extract import job.
func buildScheduler(env *appEnv) (*schedule.Scheduler, error) {
	sched := schedule.New(schedule.WithMetrics(env.Metrics))

	b, err := env.batch("")
	if err != nil {
		return nil, err
	}
	var notifyFn schedule.NotifyFunc
	if cfg.Schedule.Notify {
		disp, err := env.dispatcher(true)
		if err != nil {
			return nil, err
		}
		notifyFn = func(ctx context.Context, period string) ([]notify.DeliveryOutcome, error) {
			return disp.NotifyBatch(ctx, period, env.Ranking.MinROCount(), env.Store, env.Builder)
		}
	}
	if err := sched.Add(schedule.NewMonthlyJob(cfg.Schedule.ReportCron, b, notifyFn)); err != nil {
		return nil, err
	}

	if cfg.Import.Enabled {
		if cfg.Import.SourceURL == "" {
			zap.L().Warn("import job enabled without import.source_url; skipping")
		} else if err := sched.Add(schedule.NewImportJob(cfg.Import.Cron, cfg.Import.SourceURL, env.Importer)); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

func init() {
	scheduleCmd.Flags().String("run-now", "", "run the named job once and exit (monthly-reports, import-extract)")
	rootCmd.AddCommand(scheduleCmd)
}
