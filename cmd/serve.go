package main

import (
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/sells-group/advisor-reports/internal/api"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		env, err := initEnv(ctx, reg)
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Schedule.Enabled {
			if err := cfg.Validate("schedule"); err != nil {
				return err
			}
			sched, err := buildScheduler(env)
			if err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := api.New(cfg.Server, api.Deps{
			Store:        env.Store,
			Importer:     env.Importer,
			Builder:      env.Builder,
			Audit:        env.Store,
			Metrics:      env.Metrics,
			Gatherer:     reg,
			ReportFormat: cfg.Report.Format,
		})
		return srv.Serve(ctx, port)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
