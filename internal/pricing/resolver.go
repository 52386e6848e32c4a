package pricing

import (
	"context"
	"errors"
	"time"
)

// Resolution outcomes reported to a Recorder.
const (
	OutcomeResolved     = "resolved"
	OutcomeNotFound     = "not_found"
	OutcomeUnconfigured = "unconfigured"
	OutcomeError        = "error"
)

// Recorder receives one outcome per ResolveOne call.
type Recorder interface {
	RecordResolution(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordResolution(string) {}

// Resolver answers "what is the unit price of name at asOf" by composing a
// PlanRegistry and a PriceCatalog. It holds no state of its own.
type Resolver struct {
	plans    PlanRegistry
	prices   PriceCatalog
	recorder Recorder
}

func NewResolver(plans PlanRegistry, prices PriceCatalog, recorder Recorder) *Resolver {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Resolver{plans: plans, prices: prices, recorder: recorder}
}

func (r *Resolver) ResolveOne(ctx context.Context, name string, asOf time.Time) (*ResolvedPrice, error) {
	price, err := r.currentRow(ctx, name, asOf)
	r.recorder.RecordResolution(outcome(err))
	if err != nil {
		return nil, err
	}
	return resolved(price), nil
}

// CurrentRow is ResolveOne returning the full price row.
func (r *Resolver) CurrentRow(ctx context.Context, name string, asOf time.Time) (*PriceRecord, error) {
	price, err := r.currentRow(ctx, name, asOf)
	r.recorder.RecordResolution(outcome(err))
	return price, err
}

func (r *Resolver) currentRow(ctx context.Context, name string, asOf time.Time) (*PriceRecord, error) {
	provider, err := r.prices.ProviderOf(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, newError(ErrNotFound, "no such cost name %q", name)
		}
		return nil, err
	}

	plan, err := r.plans.CurrentPlan(ctx, provider, asOf)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, newError(ErrUnconfigured, "no platform plan configured for provider %q", provider)
		}
		return nil, err
	}

	price, err := r.prices.CurrentPrice(ctx, name, plan.PlanTier, plan.BillingCycle, asOf)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, newError(ErrNotFound, "no price for %q under active plan %s/%s", name, plan.PlanTier, plan.BillingCycle)
		}
		return nil, err
	}
	return price, nil
}

// ResolveAll returns one ResolvedPrice per resolvable name. Names whose
// provider has no active plan, or that have no row under it, are left out.
func (r *Resolver) ResolveAll(ctx context.Context, asOf time.Time) ([]*ResolvedPrice, error) {
	rows, err := r.ResolveAllRows(ctx, asOf)
	if err != nil {
		return nil, err
	}
	out := make([]*ResolvedPrice, 0, len(rows))
	for _, row := range rows {
		out = append(out, resolved(row))
	}
	return out, nil
}

// ResolveAllRows is ResolveAll returning the full price rows, ordered by name.
func (r *Resolver) ResolveAllRows(ctx context.Context, asOf time.Time) ([]*PriceRecord, error) {
	planMap, err := r.plans.AllCurrentPlans(ctx, asOf)
	if err != nil {
		return nil, err
	}
	rows, err := r.prices.EffectiveRows(ctx, asOf)
	if err != nil {
		return nil, err
	}

	// A name can be priced under several plans at once; the answer is the
	// newest row within the active plan, not the newest row overall.
	current := firstPerKey(rows, priceName, func(p *PriceRecord) bool {
		return p.Matches(planMap[p.Provider])
	})
	if current == nil {
		current = []*PriceRecord{}
	}
	return current, nil
}

func resolved(p *PriceRecord) *ResolvedPrice {
	return &ResolvedPrice{
		Name:          p.Name,
		CostPerUnit:   p.CostPerUnit,
		Provider:      p.Provider,
		EffectiveFrom: p.EffectiveFrom,
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeResolved
	case errors.Is(err, ErrUnconfigured):
		return OutcomeUnconfigured
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	default:
		return OutcomeError
	}
}
