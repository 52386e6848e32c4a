package seeder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vnmchuo/costs-service/internal/auth"
	"github.com/vnmchuo/costs-service/internal/pricing"
	"go.uber.org/zap"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.NotEmpty(t, c.Plans)
	require.NotEmpty(t, c.Prices)
	assert.NoError(t, c.Validate())
}

func TestDefaultCatalogContents(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	byName := map[string]PriceEntry{}
	for _, p := range c.Prices {
		byName[p.Name] = p
	}

	tests := []struct {
		name, provider, tier, cycle, cost string
	}{
		{"instantly-email-send", "instantly", "growth", "monthly", "0.9400000000"},
		{"twilio-sms-segment", "twilio", "pay-as-you-go", "monthly", "1.3300000000"},
		{"anthropic-sonnet-4.6-tokens-input", "anthropic", "pay-as-you-go", "monthly", "0.0003000000"},
		{"anthropic-sonnet-4.6-tokens-output", "anthropic", "pay-as-you-go", "monthly", "0.0015000000"},
		{"anthropic-opus-4-6-input-token", "anthropic", "pay-as-you-go", "monthly", "0.0005000000"},
		{"anthropic-opus-4-6-output-token", "anthropic", "pay-as-you-go", "monthly", "0.0025000000"},
		{"apollo-enrichment-credit", "apollo", "basic", "monthly", "2.3600000000"},
		{"apollo-person-match-credit", "apollo", "basic", "monthly", "2.3600000000"},
		{"apollo-search-credit", "apollo", "basic", "monthly", "0.0000000000"},
		{"postmark-email-send", "postmark", "basic", "monthly", "0.1800000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := byName[tt.name]
			require.True(t, ok)
			assert.Equal(t, tt.provider, p.Provider)
			assert.Equal(t, tt.tier, p.PlanTier)
			assert.Equal(t, tt.cycle, p.BillingCycle)
			assert.Equal(t, tt.cost, p.CostPerUnitInUsdCents)
		})
	}
}

func TestValidate(t *testing.T) {
	c, err := Parse([]byte(`
plans:
  - {provider: a, planTier: basic, billingCycle: monthly}
  - {provider: b, planTier: pro, billingCycle: annual}
prices:
  - {name: a-unit, provider: a, planTier: basic, billingCycle: monthly, costPerUnitInUsdCents: "1"}
  - {name: b-unit, provider: b, planTier: basic, billingCycle: monthly, costPerUnitInUsdCents: "1"}
  - {name: c-unit, provider: c, planTier: basic, billingCycle: monthly, costPerUnitInUsdCents: "-1"}
`))
	require.NoError(t, err)

	err = c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `plan for "b" (pro/annual) has no matching cost`)
	assert.Contains(t, err.Error(), `missing platform plan for provider "c"`)
	assert.Contains(t, err.Error(), "must not be negative")
	assert.NotContains(t, err.Error(), `"a"`)
}

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c, err := Default()
	require.NoError(t, err)
	store := pricing.NewMemoryStore()

	first, err := c.Apply(ctx, store, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, len(c.Plans), first.PlansCreated)
	assert.Equal(t, len(c.Prices), first.PricesCreated)
	assert.Zero(t, first.Skipped)

	second, err := c.Apply(ctx, store, zap.NewNop())
	require.NoError(t, err)
	assert.Zero(t, second.PlansCreated)
	assert.Zero(t, second.PricesCreated)
	assert.Equal(t, len(c.Plans)+len(c.Prices), second.Skipped)

	// Every seeded name resolves under its provider's plan.
	r := pricing.NewResolver(store, store, nil)
	all, err := r.ResolveAll(ctx, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, all, len(c.Prices))

	got, err := r.ResolveOne(ctx, "twilio-sms-segment", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "1.3300000000", pricing.FormatCost(got.CostPerUnit))
}

func TestApplyRejectsBadEntries(t *testing.T) {
	c := &Catalog{Prices: []PriceEntry{{
		Name: "x", Provider: "p", PlanTier: "basic", BillingCycle: "monthly",
		CostPerUnitInUsdCents: "abc",
	}}}
	_, err := c.Apply(context.Background(), pricing.NewMemoryStore(), zap.NewNop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, pricing.ErrInvalidArgument))

	c = &Catalog{Plans: []PlanEntry{{Provider: "p", PlanTier: "basic", BillingCycle: "monthly", EffectiveFrom: "tomorrow"}}}
	_, err = c.Apply(context.Background(), pricing.NewMemoryStore(), zap.NewNop())
	assert.Error(t, err)
}

func TestApplyWritesNothingForInvalidCatalog(t *testing.T) {
	ctx := context.Background()
	c, err := Parse([]byte(`
plans:
  - {provider: a, planTier: basic, billingCycle: monthly, effectiveFrom: "2025-01-01T00:00:00Z"}
prices:
  - {name: a-unit, provider: a, planTier: basic, billingCycle: monthly, costPerUnitInUsdCents: "1", effectiveFrom: "2025-01-01T00:00:00Z"}
  - {name: b-unit, provider: b, planTier: basic, billingCycle: monthly, costPerUnitInUsdCents: "1", effectiveFrom: "2025-01-01T00:00:00Z"}
`))
	require.NoError(t, err)
	store := pricing.NewMemoryStore()

	res, err := c.Apply(ctx, store, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing platform plan for provider "b"`)
	assert.Equal(t, Result{}, res)

	plans, err := store.AllCurrentPlans(ctx, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, plans)
	_, err = store.PriceHistory(ctx, "a-unit")
	assert.True(t, errors.Is(err, pricing.ErrNotFound))
}

type mockAuthStore struct {
	created []*auth.APIKey
	err     error
}

func (m *mockAuthStore) GetByKey(ctx context.Context, key string) (*auth.APIKey, error) {
	return nil, auth.ErrKeyNotFound
}

func (m *mockAuthStore) Create(ctx context.Context, apiKey *auth.APIKey) error {
	if m.err != nil {
		return m.err
	}
	apiKey.ID = "key-1"
	m.created = append(m.created, apiKey)
	return nil
}

func (m *mockAuthStore) Revoke(ctx context.Context, keyID string) error { return nil }

func (m *mockAuthStore) List(ctx context.Context) ([]*auth.APIKey, error) { return nil, nil }

func TestSeedAdminAPIKey(t *testing.T) {
	store := &mockAuthStore{}
	SeedAdminAPIKey(context.Background(), store, "", zap.NewNop())
	assert.Empty(t, store.created)

	SeedAdminAPIKey(context.Background(), store, "admin-secret", zap.NewNop())
	require.Len(t, store.created, 1)
	assert.Equal(t, auth.HashKey("admin-secret"), store.created[0].KeyHash)
	assert.True(t, store.created[0].Active)

	// A duplicate key is logged and ignored.
	SeedAdminAPIKey(context.Background(), &mockAuthStore{err: errors.New("duplicate key")}, "admin-secret", zap.NewNop())
}
