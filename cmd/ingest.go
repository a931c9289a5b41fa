package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/advisor-reports/internal/model"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Import a DMS advisor extract for one period",
	Long:  "Parses a CSV or XLSX extract (local path or ftp:// URL), normalizes each advisor row, and upserts the period's records in one transaction.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		file, _ := cmd.Flags().GetString("file")
		label, _ := cmd.Flags().GetString("period")
		start, _ := cmd.Flags().GetString("start")
		end, _ := cmd.Flags().GetString("end")
		format, _ := cmd.Flags().GetString("format")

		period, err := resolvePeriod(label, start, end)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Importer.ImportFrom(ctx, file, format, period)
		if err != nil {
			return eris.Wrap(err, "ingest")
		}

		zap.L().Info("ingest complete",
			zap.String("period", res.Period),
			zap.Int("rows", res.Rows),
			zap.Int("skipped", res.Skipped),
			zap.Int("duplicates", res.Duplicates),
			zap.Int64("written", res.Written),
		)
		fmt.Fprintf(os.Stdout, "%s: %d records written (%d rows skipped)\n", res.Period, res.Written, res.Skipped)
		return nil
	},
}

// resolvePeriod builds the import period. When start and end are omitted
// and the label is a YYYY-MM month, the period covers that calendar month.
func resolvePeriod(label, start, end string) (model.Period, error) {
	if start == "" && end == "" {
		month, err := time.Parse("2006-01", label)
		if err != nil {
			return model.Period{}, eris.Errorf("--start and --end are required unless --period is a YYYY-MM month (got %q)", label)
		}
		return model.Period{Label: label, Start: month, End: month.AddDate(0, 1, -1)}, nil
	}
	p, err := model.ParsePeriod(label, start, end)
	if err != nil {
		return model.Period{}, eris.Wrap(err, "period dates must be YYYY-MM-DD")
	}
	return p, nil
}

func init() {
	ingestCmd.Flags().String("file", "", "extract path or ftp:// URL (required)")
	ingestCmd.Flags().String("period", "", "period label, e.g. 2024-03 (required)")
	ingestCmd.Flags().String("start", "", "period start date YYYY-MM-DD")
	ingestCmd.Flags().String("end", "", "period end date YYYY-MM-DD")
	ingestCmd.Flags().String("format", "", "csv or xlsx (default from file extension)")
	_ = ingestCmd.MarkFlagRequired("file")
	_ = ingestCmd.MarkFlagRequired("period")
	rootCmd.AddCommand(ingestCmd)
}
