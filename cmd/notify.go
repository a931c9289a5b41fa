package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/advisor-reports/internal/goals"
	"github.com/sells-group/advisor-reports/internal/model"
	"github.com/sells-group/advisor-reports/internal/notify"
	"github.com/sells-group/advisor-reports/internal/store"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Email monthly reports to advisors",
	Long:  "Sends the monthly report email to one advisor, or to every advisor in the period's ranking cohort with an email on file.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		period, _ := cmd.Flags().GetString("period")
		advisorID, _ := cmd.Flags().GetString("advisor")
		withGoals, _ := cmd.Flags().GetBool("goals")

		env, err := initEnv(ctx, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		disp, err := env.dispatcher(withGoals)
		if err != nil {
			return err
		}

		var outcomes []notify.DeliveryOutcome
		if advisorID == "" {
			outcomes, err = disp.NotifyBatch(ctx, period, env.Ranking.MinROCount(), env.Store, env.Builder)
			if err != nil {
				return err
			}
		} else {
			a, err := env.Store.GetAdvisor(ctx, advisorID)
			if errors.Is(err, store.ErrNotFound) || (err == nil && a.Email == "") {
				return eris.Errorf("notify: advisor %s has no email on file", advisorID)
			}
			if err != nil {
				return eris.Wrap(err, "notify")
			}
			m, err := env.Builder.BuildModel(ctx, advisorID, period)
			if err != nil {
				return eris.Wrap(err, "notify")
			}
			outcomes = append(outcomes, disp.Notify(ctx, "", a.Email, m))
			if withGoals {
				outcomes = append(outcomes, disp.NotifyGoals(ctx, "", a.Email, m, goals.TargetsFromConfig(cfg.Goals))...)
			}
		}

		formatDeliveries(os.Stdout, outcomes)
		failed := 0
		for _, o := range outcomes {
			if o.Status == model.AuditFailed {
				failed++
			}
		}
		zap.L().Info("notify complete", zap.String("period", period), zap.Int("sent", len(outcomes)-failed), zap.Int("failed", failed))
		if failed > 0 {
			return eris.Errorf("notify: %d deliveries failed", failed)
		}
		return nil
	},
}

func formatDeliveries(w io.Writer, outcomes []notify.DeliveryOutcome) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ADVISOR\tRECIPIENT\tTEMPLATE\tSTATUS\tERROR")
	for _, o := range outcomes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", o.AdvisorID, o.Recipient, o.Template, o.Status, o.Error)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	notifyCmd.Flags().String("period", "", "period label (required)")
	notifyCmd.Flags().String("advisor", "", "notify only this advisor")
	notifyCmd.Flags().Bool("goals", false, "also send goal achievement and alert emails")
	_ = notifyCmd.MarkFlagRequired("period")
	rootCmd.AddCommand(notifyCmd)
}
