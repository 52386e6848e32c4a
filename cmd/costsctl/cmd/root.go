// Package cmd provides the costsctl operator commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vnmchuo/costs-service/internal/logging"
	"github.com/vnmchuo/costs-service/internal/pricing"
	"github.com/vnmchuo/costs-service/internal/seeder"
)

type options struct {
	dsn         string
	catalogFile string
	logLevel    string
	logger      *zap.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	o := &options{}
	rootCmd := &cobra.Command{
		Use:   "costsctl",
		Short: "Operate the costs service catalog",
		Long: `costsctl manages the platform plan registry and provider cost catalog.

Read commands query Postgres, or an offline YAML catalog with --file.

Examples:
  costsctl migrate
  costsctl seed --file catalog.yaml
  costsctl resolve twilio-sms-segment --as-of 2025-08-01T00:00:00Z
  costsctl resolve --file catalog.yaml
  costsctl history anthropic-sonnet-4.6-tokens-input`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			if o.dsn == "" {
				o.dsn = os.Getenv("POSTGRES_DSN")
			}
			logger, err := logging.New(o.logLevel, "console")
			if err != nil {
				return err
			}
			o.logger = logger
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&o.dsn, "dsn", "", "Postgres DSN (default $POSTGRES_DSN)")
	rootCmd.PersistentFlags().StringVarP(&o.catalogFile, "file", "f", "", "YAML catalog file")
	rootCmd.PersistentFlags().StringVar(&o.logLevel, "log-level", "warn", "log level")

	rootCmd.AddCommand(
		newMigrateCmd(o),
		newSeedCmd(o),
		newResolveCmd(o),
		newHistoryCmd(o),
		newKeysCmd(o),
	)
	return rootCmd
}

// Execute runs the CLI
func Execute() error {
	return NewRootCmd().Execute()
}

func (o *options) openPool(ctx context.Context) (*pgxpool.Pool, error) {
	if o.dsn == "" {
		return nil, errors.New("POSTGRES_DSN or --dsn is required")
	}
	pool, err := pgxpool.New(ctx, o.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}

// readStore returns the offline catalog loaded into memory when --file is
// set, Postgres otherwise.
func (o *options) readStore(ctx context.Context) (pricing.Store, func(), error) {
	if o.catalogFile != "" {
		catalog, err := seeder.LoadFile(o.catalogFile)
		if err != nil {
			return nil, nil, err
		}
		store := pricing.NewMemoryStore()
		if _, err := catalog.Apply(ctx, store, o.logger); err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
	pool, err := o.openPool(ctx)
	if err != nil {
		return nil, nil, err
	}
	return pricing.NewPostgresStore(pool), pool.Close, nil
}
