package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresStore struct {
	db  DB
	now func() time.Time
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

const planColumns = `id::text, provider, plan_tier, billing_cycle, effective_from, created_at`

const priceColumns = `id::text, name, provider, plan_tier, billing_cycle,
		cost_per_unit_in_usd_cents::text, effective_from, created_at`

func (s *PostgresStore) AppendPlan(ctx context.Context, in PlanInput) (*PlanRecord, error) {
	if err := in.normalize(NormalizeTime(s.now())); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO platform_plans (provider, plan_tier, billing_cycle, effective_from)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + planColumns
	rec, err := scanPlan(s.db.QueryRow(ctx, query, in.Provider, in.PlanTier, in.BillingCycle, in.EffectiveFrom))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, newError(ErrConflict, "platform plan for provider %q and effectiveFrom %s already exists",
				in.Provider, in.EffectiveFrom.Format(time.RFC3339Nano))
		}
		return nil, classify("insert platform plan", err)
	}
	return rec, nil
}

func (s *PostgresStore) CurrentPlan(ctx context.Context, provider string, asOf time.Time) (*PlanRecord, error) {
	query := `
		SELECT ` + planColumns + `
		FROM platform_plans
		WHERE provider = $1 AND effective_from <= $2
		ORDER BY effective_from DESC
		LIMIT 1
	`
	rec, err := scanPlan(s.db.QueryRow(ctx, query, provider, asOf))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, newError(ErrNotFound, "no platform plan configured for provider %q", provider)
		}
		return nil, classify("get current platform plan", err)
	}
	return rec, nil
}

func (s *PostgresStore) AllCurrentPlans(ctx context.Context, asOf time.Time) (map[string]*PlanRecord, error) {
	query := `
		SELECT ` + planColumns + `
		FROM platform_plans
		WHERE effective_from <= $1
		ORDER BY provider, effective_from DESC
	`
	rows, err := s.queryPlans(ctx, "list current platform plans", query, asOf)
	if err != nil {
		return nil, err
	}
	return latestPlanPerProvider(rows), nil
}

func (s *PostgresStore) PlanHistory(ctx context.Context, provider string) ([]*PlanRecord, error) {
	query := `
		SELECT ` + planColumns + `
		FROM platform_plans
		WHERE provider = $1
		ORDER BY effective_from DESC
	`
	rows, err := s.queryPlans(ctx, "get platform plan history", query, provider)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, newError(ErrNotFound, "no platform plan configured for provider %q", provider)
	}
	return rows, nil
}

func (s *PostgresStore) AppendPrice(ctx context.Context, in PriceInput) (*PriceRecord, error) {
	if err := in.normalize(NormalizeTime(s.now())); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO providers_costs (name, provider, plan_tier, billing_cycle, cost_per_unit_in_usd_cents, effective_from)
		VALUES ($1, $2, $3, $4, CAST($5::text AS NUMERIC), $6)
		RETURNING ` + priceColumns
	rec, err := scanPrice(s.db.QueryRow(ctx, query,
		in.Name, in.Provider, in.PlanTier, in.BillingCycle, in.CostPerUnit.String(), in.EffectiveFrom,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, newError(ErrConflict, "provider cost with this name, plan, billing cycle, and effectiveFrom already exists")
		}
		return nil, classify("insert provider cost", err)
	}
	return rec, nil
}

func (s *PostgresStore) CurrentPrice(ctx context.Context, name, planTier, billingCycle string, asOf time.Time) (*PriceRecord, error) {
	query := `
		SELECT ` + priceColumns + `
		FROM providers_costs
		WHERE name = $1 AND plan_tier = $2 AND billing_cycle = $3 AND effective_from <= $4
		ORDER BY effective_from DESC
		LIMIT 1
	`
	rec, err := scanPrice(s.db.QueryRow(ctx, query, name, planTier, billingCycle, asOf))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, newError(ErrNotFound, "no cost found for %q on plan %s/%s", name, planTier, billingCycle)
		}
		return nil, classify("get current provider cost", err)
	}
	return rec, nil
}

func (s *PostgresStore) PriceHistory(ctx context.Context, name string) ([]*PriceRecord, error) {
	query := `
		SELECT ` + priceColumns + `
		FROM providers_costs
		WHERE name = $1
		ORDER BY effective_from DESC
	`
	rows, err := s.queryPrices(ctx, "get provider cost history", query, name)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, newError(ErrNotFound, "provider cost %q not found", name)
	}
	return rows, nil
}

func (s *PostgresStore) PlanOptions(ctx context.Context, name string, asOf time.Time) ([]*PriceRecord, error) {
	query := `
		SELECT ` + priceColumns + `
		FROM providers_costs
		WHERE name = $1 AND effective_from <= $2
		ORDER BY plan_tier, billing_cycle, effective_from DESC
	`
	rows, err := s.queryPrices(ctx, "get provider cost plans", query, name, asOf)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, newError(ErrNotFound, "provider cost %q not found", name)
	}
	return firstPerKey(rows, pricePlanKey, nil), nil
}

func (s *PostgresStore) DeleteAll(ctx context.Context, name string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM providers_costs WHERE name = $1`, name)
	if err != nil {
		return 0, classify("delete provider cost", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) ProviderOf(ctx context.Context, name string) (string, error) {
	var provider string
	err := s.db.QueryRow(ctx, `SELECT provider FROM providers_costs WHERE name = $1 LIMIT 1`, name).Scan(&provider)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", newError(ErrNotFound, "provider cost %q not found", name)
		}
		return "", classify("get provider of cost", err)
	}
	return provider, nil
}

func (s *PostgresStore) EffectiveRows(ctx context.Context, asOf time.Time) ([]*PriceRecord, error) {
	query := `
		SELECT ` + priceColumns + `
		FROM providers_costs
		WHERE effective_from <= $1
		ORDER BY name, effective_from DESC
	`
	return s.queryPrices(ctx, "list provider costs", query, asOf)
}

func (s *PostgresStore) queryPlans(ctx context.Context, op, query string, args ...any) ([]*PlanRecord, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []*PlanRecord
	for rows.Next() {
		rec, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan platform plan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

func (s *PostgresStore) queryPrices(ctx context.Context, op, query string, args ...any) ([]*PriceRecord, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []*PriceRecord
	for rows.Next() {
		rec, err := scanPrice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider cost: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

func scanPlan(row pgx.Row) (*PlanRecord, error) {
	var p PlanRecord
	if err := row.Scan(&p.ID, &p.Provider, &p.PlanTier, &p.BillingCycle, &p.EffectiveFrom, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.EffectiveFrom = p.EffectiveFrom.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func scanPrice(row pgx.Row) (*PriceRecord, error) {
	var (
		p    PriceRecord
		cost string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Provider, &p.PlanTier, &p.BillingCycle, &cost, &p.EffectiveFrom, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(cost)
	if err != nil {
		return nil, fmt.Errorf("invalid stored cost %q: %w", cost, err)
	}
	p.CostPerUnit = d
	p.EffectiveFrom = p.EffectiveFrom.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// classify wraps err for op. Errors that never reached Postgres (dial
// failures, timeouts, closed pools) become ErrStoreUnavailable so callers can
// retry them; server-side errors stay plain failures.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return &Error{Kind: ErrStoreUnavailable, Message: "store unavailable", Err: fmt.Errorf("failed to %s: %w", op, err)}
}
