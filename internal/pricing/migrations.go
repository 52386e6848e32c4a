package pricing

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the part of a pgx pool or connection the migrations need.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type migration struct {
	name string
	sql  string
}

// Uniqueness lives in the unique indexes so concurrent appends with the same
// effective_from cannot both succeed.
var migrations = []migration{
	{
		name: "create_platform_plans",
		sql: `
CREATE TABLE IF NOT EXISTS platform_plans (
    id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    provider       TEXT NOT NULL,
    plan_tier      TEXT NOT NULL,
    billing_cycle  TEXT NOT NULL,
    effective_from TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_platform_plans_provider ON platform_plans (provider);
CREATE UNIQUE INDEX IF NOT EXISTS idx_platform_plans_provider_effective ON platform_plans (provider, effective_from DESC);
`,
	},
	{
		name: "create_providers_costs",
		sql: `
CREATE TABLE IF NOT EXISTS providers_costs (
    id                         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name                       TEXT NOT NULL,
    provider                   TEXT NOT NULL,
    plan_tier                  TEXT NOT NULL,
    billing_cycle              TEXT NOT NULL,
    cost_per_unit_in_usd_cents NUMERIC(20, 10) NOT NULL CHECK (cost_per_unit_in_usd_cents >= 0),
    effective_from             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at                 TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_providers_costs_name ON providers_costs (name);
CREATE INDEX IF NOT EXISTS idx_providers_costs_name_effective ON providers_costs (name, effective_from DESC);
CREATE UNIQUE INDEX IF NOT EXISTS idx_providers_costs_name_plan_effective
    ON providers_costs (name, plan_tier, billing_cycle, effective_from);
`,
	},
}

// Migrate creates the plan and price tables. Every statement is idempotent.
func Migrate(ctx context.Context, db Execer) error {
	for _, m := range migrations {
		if _, err := db.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", m.name, err)
		}
	}
	return nil
}
