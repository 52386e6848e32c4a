package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vnmchuo/costs-service/internal/pricing"
)

func newResolveCmd(o *options) *cobra.Command {
	var (
		asOfRaw string
		asJSON  bool
	)
	resolveCmd := &cobra.Command{
		Use:   "resolve [name]",
		Short: "Resolve the effective unit price of one or all cost names",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			asOf, err := parseAsOf(asOfRaw)
			if err != nil {
				return err
			}
			store, closeStore, err := o.readStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			r := pricing.NewResolver(store, store, nil)
			var prices []*pricing.ResolvedPrice
			if len(args) == 1 {
				p, err := r.ResolveOne(ctx, args[0], asOf)
				if err != nil {
					return fmt.Errorf("%s: %s", args[0], pricing.Message(err))
				}
				prices = append(prices, p)
			} else {
				prices, err = r.ResolveAll(ctx, asOf)
				if err != nil {
					return err
				}
			}
			return printResolved(cmd.OutOrStdout(), prices, asJSON)
		},
	}
	resolveCmd.Flags().StringVar(&asOfRaw, "as-of", "", "RFC3339 instant to resolve at (default now)")
	resolveCmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return resolveCmd
}

func newHistoryCmd(o *options) *cobra.Command {
	var asJSON bool
	historyCmd := &cobra.Command{
		Use:   "history <name>",
		Short: "Print every price row of a cost name, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, closeStore, err := o.readStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			rows, err := store.PriceHistory(ctx, args[0])
			if err != nil {
				return fmt.Errorf("%s: %s", args[0], pricing.Message(err))
			}
			return printRows(cmd.OutOrStdout(), rows, asJSON)
		},
	}
	historyCmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return historyCmd
}

func parseAsOf(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of %q (use RFC3339)", raw)
	}
	return t, nil
}

type resolvedLine struct {
	Name                   string    `json:"name"`
	PricePerUnitInUsdCents string    `json:"pricePerUnitInUsdCents"`
	Provider               string    `json:"provider"`
	EffectiveFrom          time.Time `json:"effectiveFrom"`
}

func printResolved(w io.Writer, prices []*pricing.ResolvedPrice, asJSON bool) error {
	if asJSON {
		out := make([]resolvedLine, 0, len(prices))
		for _, p := range prices {
			out = append(out, resolvedLine{p.Name, pricing.FormatCost(p.CostPerUnit), p.Provider, p.EffectiveFrom})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPROVIDER\tCENTS/UNIT\tEFFECTIVE FROM")
	for _, p := range prices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Name, p.Provider, pricing.FormatCost(p.CostPerUnit), p.EffectiveFrom.Format(time.RFC3339))
	}
	return tw.Flush()
}

type rowLine struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name"`
	Provider              string    `json:"provider"`
	PlanTier              string    `json:"planTier"`
	BillingCycle          string    `json:"billingCycle"`
	CostPerUnitInUsdCents string    `json:"costPerUnitInUsdCents"`
	EffectiveFrom         time.Time `json:"effectiveFrom"`
}

func printRows(w io.Writer, rows []*pricing.PriceRecord, asJSON bool) error {
	if asJSON {
		out := make([]rowLine, 0, len(rows))
		for _, p := range rows {
			out = append(out, rowLine{p.ID, p.Name, p.Provider, p.PlanTier, p.BillingCycle, pricing.FormatCost(p.CostPerUnit), p.EffectiveFrom})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EFFECTIVE FROM\tPLAN\tCYCLE\tCENTS/UNIT")
	for _, p := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.EffectiveFrom.Format(time.RFC3339), p.PlanTier, p.BillingCycle, pricing.FormatCost(p.CostPerUnit))
	}
	return tw.Flush()
}
