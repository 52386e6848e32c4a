package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

type countingRecorder struct {
	outcomes map[string]int
}

func (c *countingRecorder) RecordResolution(outcome string) {
	if c.outcomes == nil {
		c.outcomes = map[string]int{}
	}
	c.outcomes[outcome]++
}

func mustPlan(t *testing.T, s *MemoryStore, provider, tier, cycle string, eff time.Time) {
	t.Helper()
	_, err := s.AppendPlan(context.Background(), PlanInput{
		Provider: provider, PlanTier: tier, BillingCycle: cycle, EffectiveFrom: eff,
	})
	require.NoError(t, err)
}

func mustPrice(t *testing.T, s *MemoryStore, name, provider, tier, cycle, cost string, eff time.Time) {
	t.Helper()
	_, err := s.AppendPrice(context.Background(), PriceInput{
		Name: name, Provider: provider, PlanTier: tier, BillingCycle: cycle,
		CostPerUnit: decimal.RequireFromString(cost), EffectiveFrom: eff,
	})
	require.NoError(t, err)
}

func TestResolveOne_ExampleScenario(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := NewResolver(store, store, nil)

	mustPlan(t, store, "p", "basic", "monthly", day("2025-01-01"))
	mustPrice(t, store, "x", "p", "basic", "monthly", "0.10", day("2025-01-01"))
	mustPrice(t, store, "x", "p", "basic", "monthly", "0.05", day("2025-06-01"))

	got, err := r.ResolveOne(ctx, "x", day("2025-08-01"))
	require.NoError(t, err)
	assert.Equal(t, "0.0500000000", FormatCost(got.CostPerUnit))
	assert.Equal(t, "p", got.Provider)
	assert.True(t, got.EffectiveFrom.Equal(day("2025-06-01")))

	// Switching plans without a matching price row leaves the name unpriced.
	mustPlan(t, store, "p", "business", "annual", day("2025-09-01"))
	_, err = r.ResolveOne(ctx, "x", day("2025-10-01"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrUnconfigured))

	// Before the switch the basic price still applies.
	got, err = r.ResolveOne(ctx, "x", day("2025-08-31"))
	require.NoError(t, err)
	assert.Equal(t, "0.0500000000", FormatCost(got.CostPerUnit))
}

func TestResolveOne_MonotonicResolution(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := NewResolver(store, store, nil)

	mustPlan(t, store, "t", "basic", "monthly", day("2024-01-01"))
	mustPrice(t, store, "test", "t", "basic", "monthly", "0.10", day("2025-01-01"))
	mustPrice(t, store, "test", "t", "basic", "monthly", "0.20", day("2025-06-01"))
	mustPrice(t, store, "test", "t", "basic", "monthly", "0.30", day("2025-09-01"))

	tests := []struct {
		asOf time.Time
		want string
	}{
		{day("2025-01-01"), "0.1000000000"},
		{day("2025-05-31"), "0.1000000000"},
		{day("2025-06-01"), "0.2000000000"},
		{day("2025-08-01"), "0.2000000000"},
		{day("2025-09-01").Add(-time.Nanosecond), "0.2000000000"},
		{day("2025-09-01"), "0.3000000000"},
		{day("2030-01-01"), "0.3000000000"},
	}
	for _, tt := range tests {
		t.Run(tt.asOf.Format(time.RFC3339Nano), func(t *testing.T) {
			got, err := r.ResolveOne(ctx, "test", tt.asOf)
			require.NoError(t, err)
			assert.Equal(t, tt.want, FormatCost(got.CostPerUnit))
		})
	}
}

func TestResolveOne_FutureRowsInvisible(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := NewResolver(store, store, nil)

	mustPlan(t, store, "t", "basic", "monthly", day("2024-01-01"))
	mustPrice(t, store, "test", "t", "basic", "monthly", "0.10", day("2030-01-01"))

	_, err := r.ResolveOne(ctx, "test", day("2025-01-01"))
	assert.True(t, errors.Is(err, ErrNotFound))

	all, err := r.ResolveAll(ctx, day("2025-01-01"))
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestResolveOne_PlanGatedVisibility(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := NewResolver(store, store, nil)

	mustPrice(t, store, "apollo-enrichment-credit", "apollo", "basic", "monthly", "2.36", day("2025-01-01"))
	mustPrice(t, store, "apollo-enrichment-credit", "apollo", "business", "annual", "1.50", day("2025-01-01"))
	mustPlan(t, store, "apollo", "basic", "monthly", day("2025-01-01"))
	mustPlan(t, store, "apollo", "business", "annual", day("2025-03-01"))

	got, err := r.ResolveOne(ctx, "apollo-enrichment-credit", day("2025-02-28"))
	require.NoError(t, err)
	assert.Equal(t, "2.3600000000", FormatCost(got.CostPerUnit))

	got, err = r.ResolveOne(ctx, "apollo-enrichment-credit", day("2025-03-01"))
	require.NoError(t, err)
	assert.Equal(t, "1.5000000000", FormatCost(got.CostPerUnit))
	assert.True(t, got.EffectiveFrom.Equal(day("2025-01-01")))
}

func TestResolveOne_Failures(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	rec := &countingRecorder{}
	r := NewResolver(store, store, rec)

	mustPrice(t, store, "orphan-item", "nobody", "basic", "monthly", "1", day("2025-01-01"))
	mustPlan(t, store, "future", "basic", "monthly", day("2030-01-01"))
	mustPrice(t, store, "future-item", "future", "basic", "monthly", "1", day("2025-01-01"))

	_, err := r.ResolveOne(ctx, "missing", day("2025-06-01"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, Message(err), "no such cost name")

	_, err = r.ResolveOne(ctx, "orphan-item", day("2025-06-01"))
	assert.True(t, errors.Is(err, ErrUnconfigured))
	assert.Contains(t, Message(err), `"nobody"`)

	// Plans that only start in the future count as unconfigured.
	_, err = r.ResolveOne(ctx, "future-item", day("2025-06-01"))
	assert.True(t, errors.Is(err, ErrUnconfigured))

	assert.Equal(t, 1, rec.outcomes[OutcomeNotFound])
	assert.Equal(t, 2, rec.outcomes[OutcomeUnconfigured])
}

type failingCatalog struct {
	*MemoryStore
	err error
}

func (f failingCatalog) ProviderOf(context.Context, string) (string, error) { return "", f.err }

func (f failingCatalog) EffectiveRows(context.Context, time.Time) ([]*PriceRecord, error) {
	return nil, f.err
}

func TestResolve_PropagatesStoreErrors(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	unavailable := &Error{Kind: ErrStoreUnavailable, Message: "store unavailable", Err: errors.New("dial tcp: refused")}
	rec := &countingRecorder{}
	r := NewResolver(store, failingCatalog{MemoryStore: store, err: unavailable}, rec)

	_, err := r.ResolveOne(ctx, "x", time.Now())
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
	assert.False(t, errors.Is(err, ErrNotFound))

	_, err = r.ResolveAll(ctx, time.Now())
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
	assert.Equal(t, 1, rec.outcomes[OutcomeError])
}

func TestResolveAll_DedupAcrossPlans(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := NewResolver(store, store, nil)

	mustPlan(t, store, "anthropic", "pay-as-you-go", "monthly", day("2025-01-01"))
	mustPlan(t, store, "apollo", "basic", "monthly", day("2025-01-01"))
	mustPlan(t, store, "apollo", "business", "annual", day("2026-01-01"))

	mustPrice(t, store, "anthropic-sonnet-4.5-tokens-input", "anthropic", "pay-as-you-go", "monthly", "0.0004", day("2025-01-01"))
	mustPrice(t, store, "anthropic-sonnet-4.5-tokens-input", "anthropic", "pay-as-you-go", "monthly", "0.0003", day("2025-05-01"))
	mustPrice(t, store, "anthropic-sonnet-4.5-tokens-input", "anthropic", "pay-as-you-go", "monthly", "0.0002", day("2031-01-01"))
	// Newer row under a plan that is not active must not shadow the active one.
	mustPrice(t, store, "apollo-enrichment-credit", "apollo", "basic", "monthly", "2.36", day("2025-01-01"))
	mustPrice(t, store, "apollo-enrichment-credit", "apollo", "business", "annual", "1.80", day("2025-07-01"))
	mustPrice(t, store, "apollo-search-credit", "apollo", "basic", "monthly", "0", day("2025-01-01"))
	// Provider with no plan is dropped.
	mustPrice(t, store, "postmark-email-send", "postmark", "basic", "monthly", "0.18", day("2025-01-01"))
	// Name priced only under an inactive plan is dropped.
	mustPrice(t, store, "apollo-mobile-credit", "apollo", "business", "annual", "5", day("2025-01-01"))

	got, err := r.ResolveAll(ctx, day("2025-08-01"))
	require.NoError(t, err)

	byName := map[string]*ResolvedPrice{}
	for _, p := range got {
		_, dup := byName[p.Name]
		require.False(t, dup, "duplicate entry for %s", p.Name)
		byName[p.Name] = p
	}
	require.Len(t, byName, 3)
	assert.Equal(t, "0.0003000000", FormatCost(byName["anthropic-sonnet-4.5-tokens-input"].CostPerUnit))
	assert.Equal(t, "2.3600000000", FormatCost(byName["apollo-enrichment-credit"].CostPerUnit))
	assert.Equal(t, "0.0000000000", FormatCost(byName["apollo-search-credit"].CostPerUnit))

	// After apollo switches plans, enrichment follows and search drops out.
	got, err = r.ResolveAll(ctx, day("2026-02-01"))
	require.NoError(t, err)
	byName = map[string]*ResolvedPrice{}
	for _, p := range got {
		byName[p.Name] = p
	}
	require.Len(t, byName, 3)
	assert.Equal(t, "1.8000000000", FormatCost(byName["apollo-enrichment-credit"].CostPerUnit))
	assert.Equal(t, "5.0000000000", FormatCost(byName["apollo-mobile-credit"].CostPerUnit))
	assert.NotContains(t, byName, "apollo-search-credit")

	// Each entry agrees with ResolveOne.
	for name, p := range byName {
		one, err := r.ResolveOne(ctx, name, day("2026-02-01"))
		require.NoError(t, err)
		assert.True(t, one.CostPerUnit.Equal(p.CostPerUnit), name)
	}
}

func TestResolveAll_EmptyStore(t *testing.T) {
	store := NewMemoryStore()
	r := NewResolver(store, store, nil)

	got, err := r.ResolveAll(context.Background(), time.Now())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
