package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/advisor-reports/internal/model"
	"github.com/sells-group/advisor-reports/internal/report"
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Manage commission rate plans",
}

// -- plans list --

var plansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rate plans, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		plans, err := st.ListRatePlans(ctx)
		if err != nil {
			return eris.Wrap(err, "plans list")
		}
		if len(plans) == 0 {
			fmt.Fprintln(os.Stderr, "No rate plans configured.")
			return nil
		}
		formatPlansList(os.Stdout, plans)
		return nil
	},
}

// -- plans add --

var plansAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a rate plan",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		spec := planSpec{}
		spec.Name, _ = cmd.Flags().GetString("name")
		spec.LaborRate, _ = cmd.Flags().GetString("labor-rate")
		spec.PartsRate, _ = cmd.Flags().GetString("parts-rate")
		spec.BonusThreshold, _ = cmd.Flags().GetString("bonus-threshold")
		spec.BonusAmount, _ = cmd.Flags().GetString("bonus-amount")
		spec.EffectiveFrom, _ = cmd.Flags().GetString("effective-from")
		spec.EffectiveTo, _ = cmd.Flags().GetString("effective-to")

		plan, err := spec.toRatePlan()
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.CreateRatePlan(ctx, &plan); err != nil {
			return eris.Wrap(err, "plans add")
		}
		zap.L().Info("rate plan added", zap.String("id", plan.ID), zap.String("name", plan.Name))
		fmt.Fprintln(os.Stdout, plan.ID)
		return nil
	},
}

// -- plans import --

var plansImportCmd = &cobra.Command{
	Use:   "import <plans.yaml>",
	Short: "Add every rate plan listed in a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "plans import: open file")
		}
		defer f.Close() //nolint:errcheck

		plans, err := readPlanFile(f)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		for i := range plans {
			if err := st.CreateRatePlan(ctx, &plans[i]); err != nil {
				return eris.Wrapf(err, "plans import: %s", plans[i].Name)
			}
		}
		zap.L().Info("rate plans imported", zap.Int("count", len(plans)), zap.String("file", args[0]))
		return nil
	},
}

// -- plans deactivate --

var plansDeactivateCmd = &cobra.Command{
	Use:   "deactivate <plan-id>",
	Short: "Deactivate a rate plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.DeactivateRatePlan(ctx, args[0]); err != nil {
			return eris.Wrap(err, "plans deactivate")
		}
		zap.L().Info("rate plan deactivated", zap.String("id", args[0]))
		return nil
	},
}

// planSpec is the file and flag form of a rate plan. Amounts are decimal strings.
type planSpec struct {
	Name           string `yaml:"name"`
	LaborRate      string `yaml:"labor_rate"`
	PartsRate      string `yaml:"parts_rate"`
	BonusThreshold string `yaml:"bonus_threshold"`
	BonusAmount    string `yaml:"bonus_amount"`
	EffectiveFrom  string `yaml:"effective_from"`
	EffectiveTo    string `yaml:"effective_to"`
	Active         *bool  `yaml:"active"`
}

type planFile struct {
	Plans []planSpec `yaml:"plans"`
}

func readPlanFile(r io.Reader) ([]model.RatePlan, error) {
	var pf planFile
	if err := yaml.NewDecoder(r).Decode(&pf); err != nil {
		return nil, eris.Wrap(err, "plans import: parse yaml")
	}
	if len(pf.Plans) == 0 {
		return nil, eris.New("plans import: file lists no plans")
	}
	plans := make([]model.RatePlan, 0, len(pf.Plans))
	for i, s := range pf.Plans {
		p, err := s.toRatePlan()
		if err != nil {
			return nil, eris.Wrapf(err, "plans import: plan %d", i+1)
		}
		plans = append(plans, p)
	}
	return plans, nil
}

func (s planSpec) toRatePlan() (model.RatePlan, error) {
	p := model.RatePlan{Name: s.Name, IsActive: true}
	if s.Active != nil {
		p.IsActive = *s.Active
	}
	var err error
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"labor_rate", s.LaborRate, &p.LaborRate},
		{"parts_rate", s.PartsRate, &p.PartsRate},
		{"bonus_threshold", s.BonusThreshold, &p.BonusThreshold},
		{"bonus_amount", s.BonusAmount, &p.BonusAmount},
	} {
		if *f.dst, err = decimal.NewFromString(f.raw); err != nil {
			return p, eris.Errorf("%s %q is not a number", f.name, f.raw)
		}
	}
	if p.EffectiveFrom, err = optionalDate("effective_from", s.EffectiveFrom); err != nil {
		return p, err
	}
	if p.EffectiveTo, err = optionalDate("effective_to", s.EffectiveTo); err != nil {
		return p, err
	}
	return p, p.Validate()
}

func optionalDate(name, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(model.DateLayout, raw)
	if err != nil {
		return nil, eris.Errorf("%s %q must be YYYY-MM-DD", name, raw)
	}
	return &t, nil
}

func formatPlansList(w io.Writer, plans []model.RatePlan) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tLABOR\tPARTS\tBONUS\tEFFECTIVE\tACTIVE")
	for _, p := range plans {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s over %s\t%s\t%t\n",
			p.ID,
			p.Name,
			report.Percent(p.LaborRate),
			report.Percent(p.PartsRate),
			report.Currency(p.BonusAmount),
			report.Currency(p.BonusThreshold),
			effectiveRange(p),
			p.IsActive,
		)
	}
	tw.Flush() //nolint:errcheck
}

func effectiveRange(p model.RatePlan) string {
	from, to := "…", "…"
	if p.EffectiveFrom != nil {
		from = p.EffectiveFrom.Format(model.DateLayout)
	}
	if p.EffectiveTo != nil {
		to = p.EffectiveTo.Format(model.DateLayout)
	}
	return from + " to " + to
}

func init() {
	plansAddCmd.Flags().String("name", "", "plan name (required)")
	plansAddCmd.Flags().String("labor-rate", "0.075", "labor commission rate (fraction)")
	plansAddCmd.Flags().String("parts-rate", "0.04", "parts commission rate (fraction)")
	plansAddCmd.Flags().String("bonus-threshold", "400", "RO average at which the bonus pays")
	plansAddCmd.Flags().String("bonus-amount", "500", "flat performance bonus")
	plansAddCmd.Flags().String("effective-from", "", "first effective date YYYY-MM-DD")
	plansAddCmd.Flags().String("effective-to", "", "last effective date YYYY-MM-DD")
	_ = plansAddCmd.MarkFlagRequired("name")

	plansCmd.AddCommand(plansListCmd)
	plansCmd.AddCommand(plansAddCmd)
	plansCmd.AddCommand(plansImportCmd)
	plansCmd.AddCommand(plansDeactivateCmd)
	rootCmd.AddCommand(plansCmd)
}
