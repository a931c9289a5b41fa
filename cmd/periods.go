package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/advisor-reports/internal/model"
	"github.com/sells-group/advisor-reports/internal/ranking"
	"github.com/sells-group/advisor-reports/internal/report"
)

var periodsCmd = &cobra.Command{
	Use:   "periods",
	Short: "Inspect and manage imported periods",
}

// -- periods list --

var periodsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List imported periods, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		periods, err := st.ListPeriods(ctx)
		if err != nil {
			return eris.Wrap(err, "periods list")
		}
		if len(periods) == 0 {
			fmt.Fprintln(os.Stderr, "No periods imported.")
			return nil
		}
		formatPeriodsList(os.Stdout, periods)
		return nil
	},
}

// -- periods show --

var periodsShowCmd = &cobra.Command{
	Use:   "show <period>",
	Short: "Show a period's records with cohort rankings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recs, err := st.GetByPeriod(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "periods show")
		}
		if len(recs) == 0 {
			fmt.Fprintf(os.Stderr, "No records for %s.\n", args[0])
			return nil
		}
		formatPeriodRecords(os.Stdout, recs, ranking.Rank(recs, cfg.Ranking.MinROCount))
		return nil
	},
}

// -- periods delete --

var periodsDeleteCmd = &cobra.Command{
	Use:   "delete <period>",
	Short: "Delete every record of a period",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return eris.Errorf("refusing to delete %s without --yes", args[0])
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.DeletePeriod(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "periods delete")
		}
		zap.L().Info("period deleted", zap.String("period", args[0]), zap.Int64("records", n))
		fmt.Fprintf(os.Stdout, "Deleted %d records for %s.\n", n, args[0])
		return nil
	},
}

func formatPeriodsList(w io.Writer, periods []model.PeriodSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PERIOD\tSTART\tEND\tADVISORS")
	for _, p := range periods {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n",
			p.Period,
			p.PeriodStart.Format(model.DateLayout),
			p.PeriodEnd.Format(model.DateLayout),
			p.AdvisorCount,
		)
	}
	tw.Flush() //nolint:errcheck
}

func formatPeriodRecords(w io.Writer, recs []model.PerformanceRecord, ranks map[string]model.RankingResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tADVISOR\tTOTAL SALES\tROS\tELR\tRO AVG\tPERCENTILE")
	for _, r := range recs {
		rank, pct := "-", "-"
		if res, ok := ranks[r.AdvisorID]; ok {
			rank = fmt.Sprintf("%d", res.SalesRank)
			pct = fmt.Sprintf("%d", report.RoundPercentile(res.Percentile))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rank,
			r.AdvisorID,
			report.Currency(r.TotalSales),
			report.Count(r.ROCount),
			report.Currency(r.ELR),
			report.Currency(r.TotalAvg),
			pct,
		)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	periodsDeleteCmd.Flags().Bool("yes", false, "confirm deletion")

	periodsCmd.AddCommand(periodsListCmd)
	periodsCmd.AddCommand(periodsShowCmd)
	periodsCmd.AddCommand(periodsDeleteCmd)
	rootCmd.AddCommand(periodsCmd)
}
