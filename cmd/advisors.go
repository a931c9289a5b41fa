package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/advisor-reports/internal/fetcher"
	"github.com/sells-group/advisor-reports/internal/ingest"
	"github.com/sells-group/advisor-reports/internal/model"
)

var advisorsCmd = &cobra.Command{
	Use:   "advisors",
	Short: "Manage advisor contact records",
}

// -- advisors import --

var advisorsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Upsert advisor contact details from a CSV or XLSX roster",
	Long:  "The roster needs an advisor_id column and may carry name, email, phone, manager_id, hire_date, and termination_date.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "advisors import: open file")
		}
		defer f.Close() //nolint:errcheck

		table, err := ingest.ParseTable(ctx, f, fetcher.FormatFromName(args[0]))
		if err != nil {
			return eris.Wrap(err, "advisors import")
		}
		advisors, err := advisorsFromTable(table)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		for i := range advisors {
			if err := st.UpsertAdvisor(ctx, advisors[i]); err != nil {
				return eris.Wrapf(err, "advisors import: %s", advisors[i].AdvisorID)
			}
		}
		zap.L().Info("advisors imported", zap.Int("count", len(advisors)), zap.String("file", args[0]))
		fmt.Fprintf(os.Stdout, "%d advisors imported\n", len(advisors))
		return nil
	},
}

// advisorsFromTable maps roster rows to advisors. Header names are matched
// case-insensitively; rows without an advisor ID are skipped.
func advisorsFromTable(t *ingest.Table) ([]model.Advisor, error) {
	cols := make(map[string]string, len(t.Header))
	for _, h := range t.Header {
		cols[strings.ToLower(strings.TrimSpace(h))] = h
	}
	if _, ok := cols["advisor_id"]; !ok {
		return nil, eris.New("advisors import: roster has no advisor_id column")
	}
	get := func(row ingest.Row, name string) string {
		if h, ok := cols[name]; ok {
			return strings.TrimSpace(row[h])
		}
		return ""
	}

	var out []model.Advisor
	for i, row := range t.Rows {
		id := get(row, "advisor_id")
		if id == "" {
			continue
		}
		a := model.Advisor{
			AdvisorID: id,
			Name:      get(row, "name"),
			Email:     get(row, "email"),
			Phone:     get(row, "phone"),
			ManagerID: get(row, "manager_id"),
		}
		var err error
		if a.HireDate, err = optionalDate("hire_date", get(row, "hire_date")); err != nil {
			return nil, eris.Wrapf(err, "advisors import: row %d", i+2)
		}
		if a.TerminationDate, err = optionalDate("termination_date", get(row, "termination_date")); err != nil {
			return nil, eris.Wrapf(err, "advisors import: row %d", i+2)
		}
		out = append(out, a)
	}
	return out, nil
}

func init() {
	advisorsCmd.AddCommand(advisorsImportCmd)
	rootCmd.AddCommand(advisorsCmd)
}
