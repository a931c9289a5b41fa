package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/advisor-reports/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render one advisor's monthly report",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		advisorID, _ := cmd.Flags().GetString("advisor")
		period, _ := cmd.Flags().GetString("period")
		format, _ := cmd.Flags().GetString("format")

		if err := cfg.Validate("report"); err != nil {
			return err
		}
		env, err := initEnv(ctx, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		b, err := env.batch(format)
		if err != nil {
			return err
		}
		out := b.RenderAdvisor(ctx, advisorID, period)
		if out.Failed() {
			return eris.Errorf("report %s/%s: %s", advisorID, period, out.Error)
		}
		fmt.Fprintln(os.Stdout, out.Path)
		return nil
	},
}

// -- report batch --

var reportBatchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Render reports for every advisor in a period's ranking cohort",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		period, _ := cmd.Flags().GetString("period")
		format, _ := cmd.Flags().GetString("format")

		if err := cfg.Validate("report"); err != nil {
			return err
		}
		env, err := initEnv(ctx, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		b, err := env.batch(format)
		if err != nil {
			return err
		}
		outcomes, err := b.RenderBatch(ctx, period)
		if err != nil {
			return err
		}

		formatOutcomes(os.Stdout, outcomes)
		failed := 0
		for _, o := range outcomes {
			if o.Failed() {
				failed++
			}
		}
		zap.L().Info("report batch complete",
			zap.String("period", period),
			zap.Int("rendered", len(outcomes)-failed),
			zap.Int("failed", failed),
		)
		if failed > 0 {
			return eris.Errorf("report batch: %d of %d reports failed", failed, len(outcomes))
		}
		return nil
	},
}

func formatOutcomes(w io.Writer, outcomes []report.Outcome) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ADVISOR\tSTATUS\tOUTPUT")
	for _, o := range outcomes {
		detail := o.Path
		if o.Failed() {
			detail = o.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", o.AdvisorID, o.Status, detail)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	reportCmd.Flags().String("advisor", "", "advisor ID (required)")
	reportCmd.Flags().String("period", "", "period label (required)")
	reportCmd.PersistentFlags().String("format", "", "pdf or md (default from config)")
	_ = reportCmd.MarkFlagRequired("advisor")
	_ = reportCmd.MarkFlagRequired("period")

	reportBatchCmd.Flags().String("period", "", "period label (required)")
	_ = reportBatchCmd.MarkFlagRequired("period")

	reportCmd.AddCommand(reportBatchCmd)
	rootCmd.AddCommand(reportCmd)
}
