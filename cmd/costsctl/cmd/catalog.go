package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vnmchuo/costs-service/internal/auth"
	"github.com/vnmchuo/costs-service/internal/pricing"
	"github.com/vnmchuo/costs-service/internal/seeder"
)

func newMigrateCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the catalog and api_keys tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := o.openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := pricing.Migrate(ctx, pool); err != nil {
				return err
			}
			if err := auth.Migrate(ctx, pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newSeedCmd(o *options) *cobra.Command {
	var dryRun bool
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Append the seed catalog, skipping rows that already exist",
		Long: `Validate a catalog and append its plans and costs.

Without --file the catalog compiled into the binary is used. Every plan must
match at least one cost row of its provider, and every priced provider must
have a plan.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			catalog, err := loadCatalog(o.catalogFile)
			if err != nil {
				return err
			}
			if err := catalog.Validate(); err != nil {
				return fmt.Errorf("invalid catalog: %w", err)
			}
			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintf(out, "catalog ok: %d plans, %d costs\n", len(catalog.Plans), len(catalog.Prices))
				return nil
			}

			pool, err := o.openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			res, err := catalog.Apply(ctx, pricing.NewPostgresStore(pool), o.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "plans created: %d, costs created: %d, skipped: %d\n",
				res.PlansCreated, res.PricesCreated, res.Skipped)
			return nil
		},
	}
	seedCmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate only, no database writes")
	return seedCmd
}

func loadCatalog(path string) (*seeder.Catalog, error) {
	if path == "" {
		return seeder.Default()
	}
	return seeder.LoadFile(path)
}
