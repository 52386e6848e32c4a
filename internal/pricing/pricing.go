// Package pricing holds the time-versioned plan registry and price catalog and
// the resolver that combines them into the effective unit price of a cost name.
package pricing

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PlanRecord says which commercial plan a provider is on from EffectiveFrom.
type PlanRecord struct {
	ID            string
	Provider      string
	PlanTier      string
	BillingCycle  string
	EffectiveFrom time.Time
	CreatedAt     time.Time
}

// PriceRecord is the cost of one unit of Name under one plan from EffectiveFrom.
// CostPerUnit is in US cents.
type PriceRecord struct {
	ID            string
	Name          string
	Provider      string
	PlanTier      string
	BillingCycle  string
	CostPerUnit   decimal.Decimal
	EffectiveFrom time.Time
	CreatedAt     time.Time
}

// ResolvedPrice is the answer to "what do I pay for Name right now".
type ResolvedPrice struct {
	Name          string
	CostPerUnit   decimal.Decimal
	Provider      string
	EffectiveFrom time.Time
}

// PlanInput is the payload of AppendPlan. A zero EffectiveFrom means "now".
type PlanInput struct {
	Provider      string
	PlanTier      string
	BillingCycle  string
	EffectiveFrom time.Time
}

// PriceInput is the payload of AppendPrice. A zero EffectiveFrom means "now".
type PriceInput struct {
	Name          string
	Provider      string
	PlanTier      string
	BillingCycle  string
	CostPerUnit   decimal.Decimal
	EffectiveFrom time.Time
}

// PlanRegistry stores the append-only plan timeline of every provider.
type PlanRegistry interface {
	AppendPlan(ctx context.Context, in PlanInput) (*PlanRecord, error)
	CurrentPlan(ctx context.Context, provider string, asOf time.Time) (*PlanRecord, error)
	AllCurrentPlans(ctx context.Context, asOf time.Time) (map[string]*PlanRecord, error)
	PlanHistory(ctx context.Context, provider string) ([]*PlanRecord, error)
}

// PriceCatalog stores the append-only price timelines of every cost name.
type PriceCatalog interface {
	AppendPrice(ctx context.Context, in PriceInput) (*PriceRecord, error)
	CurrentPrice(ctx context.Context, name, planTier, billingCycle string, asOf time.Time) (*PriceRecord, error)
	PriceHistory(ctx context.Context, name string) ([]*PriceRecord, error)
	PlanOptions(ctx context.Context, name string, asOf time.Time) ([]*PriceRecord, error)
	DeleteAll(ctx context.Context, name string) (int64, error)
	ProviderOf(ctx context.Context, name string) (string, error)
	// EffectiveRows returns every row with EffectiveFrom <= asOf ordered by
	// name ascending, then EffectiveFrom descending.
	EffectiveRows(ctx context.Context, asOf time.Time) ([]*PriceRecord, error)
}

// Store is a backend serving both tables.
type Store interface {
	PlanRegistry
	PriceCatalog
}

// NormalizeTime maps t onto the resolution both backends store: UTC,
// microseconds.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func (in *PlanInput) normalize(now time.Time) error {
	in.Provider = strings.TrimSpace(in.Provider)
	in.PlanTier = strings.TrimSpace(in.PlanTier)
	in.BillingCycle = strings.TrimSpace(in.BillingCycle)
	switch {
	case in.Provider == "":
		return newError(ErrInvalidArgument, "provider is required")
	case in.PlanTier == "":
		return newError(ErrInvalidArgument, "planTier is required")
	case in.BillingCycle == "":
		return newError(ErrInvalidArgument, "billingCycle is required")
	}
	if in.EffectiveFrom.IsZero() {
		in.EffectiveFrom = now
	}
	in.EffectiveFrom = NormalizeTime(in.EffectiveFrom)
	return nil
}

func (in *PriceInput) normalize(now time.Time) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Provider = strings.TrimSpace(in.Provider)
	in.PlanTier = strings.TrimSpace(in.PlanTier)
	in.BillingCycle = strings.TrimSpace(in.BillingCycle)
	switch {
	case in.Name == "":
		return newError(ErrInvalidArgument, "name is required")
	case in.Provider == "":
		return newError(ErrInvalidArgument, "provider is required")
	case in.PlanTier == "":
		return newError(ErrInvalidArgument, "planTier is required")
	case in.BillingCycle == "":
		return newError(ErrInvalidArgument, "billingCycle is required")
	}
	if err := ValidateCost(in.CostPerUnit); err != nil {
		return err
	}
	if in.EffectiveFrom.IsZero() {
		in.EffectiveFrom = now
	}
	in.EffectiveFrom = NormalizeTime(in.EffectiveFrom)
	return nil
}

// Matches reports whether the price row is billed under plan.
func (p *PriceRecord) Matches(plan *PlanRecord) bool {
	return plan != nil && p.PlanTier == plan.PlanTier && p.BillingCycle == plan.BillingCycle
}
