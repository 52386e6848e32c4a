package pricing

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps both tables in process. The uniqueness check and the
// insert happen under one write lock, which makes each append atomic.
type MemoryStore struct {
	mu     sync.RWMutex
	plans  []*PlanRecord
	prices []*PriceRecord
	now    func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// WithClock replaces the clock used for defaulted effectiveFrom and createdAt.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) AppendPlan(_ context.Context, in PlanInput) (*PlanRecord, error) {
	now := NormalizeTime(s.now())
	if err := in.normalize(now); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.plans {
		if p.Provider == in.Provider && p.EffectiveFrom.Equal(in.EffectiveFrom) {
			return nil, newError(ErrConflict, "platform plan for provider %q and effectiveFrom %s already exists",
				in.Provider, in.EffectiveFrom.Format(time.RFC3339Nano))
		}
	}

	rec := &PlanRecord{
		ID:            uuid.New().String(),
		Provider:      in.Provider,
		PlanTier:      in.PlanTier,
		BillingCycle:  in.BillingCycle,
		EffectiveFrom: in.EffectiveFrom,
		CreatedAt:     now,
	}
	s.plans = append(s.plans, rec)
	return clonePlan(rec), nil
}

func (s *MemoryStore) CurrentPlan(_ context.Context, provider string, asOf time.Time) (*PlanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *PlanRecord
	for _, p := range s.plans {
		if p.Provider != provider || p.EffectiveFrom.After(asOf) {
			continue
		}
		if best == nil || p.EffectiveFrom.After(best.EffectiveFrom) {
			best = p
		}
	}
	if best == nil {
		return nil, newError(ErrNotFound, "no platform plan configured for provider %q", provider)
	}
	return clonePlan(best), nil
}

func (s *MemoryStore) AllCurrentPlans(_ context.Context, asOf time.Time) (map[string]*PlanRecord, error) {
	s.mu.RLock()
	rows := make([]*PlanRecord, 0, len(s.plans))
	for _, p := range s.plans {
		if !p.EffectiveFrom.After(asOf) {
			rows = append(rows, clonePlan(p))
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(rows, func(a, b *PlanRecord) int {
		if c := cmp.Compare(a.Provider, b.Provider); c != 0 {
			return c
		}
		return b.EffectiveFrom.Compare(a.EffectiveFrom)
	})
	return latestPlanPerProvider(rows), nil
}

func (s *MemoryStore) PlanHistory(_ context.Context, provider string) ([]*PlanRecord, error) {
	s.mu.RLock()
	var rows []*PlanRecord
	for _, p := range s.plans {
		if p.Provider == provider {
			rows = append(rows, clonePlan(p))
		}
	}
	s.mu.RUnlock()

	if len(rows) == 0 {
		return nil, newError(ErrNotFound, "no platform plan configured for provider %q", provider)
	}
	slices.SortFunc(rows, func(a, b *PlanRecord) int {
		return b.EffectiveFrom.Compare(a.EffectiveFrom)
	})
	return rows, nil
}

func (s *MemoryStore) AppendPrice(_ context.Context, in PriceInput) (*PriceRecord, error) {
	now := NormalizeTime(s.now())
	if err := in.normalize(now); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.prices {
		if p.Name == in.Name && p.PlanTier == in.PlanTier && p.BillingCycle == in.BillingCycle &&
			p.EffectiveFrom.Equal(in.EffectiveFrom) {
			return nil, newError(ErrConflict, "provider cost with this name, plan, billing cycle, and effectiveFrom already exists")
		}
	}

	rec := &PriceRecord{
		ID:            uuid.New().String(),
		Name:          in.Name,
		Provider:      in.Provider,
		PlanTier:      in.PlanTier,
		BillingCycle:  in.BillingCycle,
		CostPerUnit:   in.CostPerUnit,
		EffectiveFrom: in.EffectiveFrom,
		CreatedAt:     now,
	}
	s.prices = append(s.prices, rec)
	return clonePrice(rec), nil
}

func (s *MemoryStore) CurrentPrice(_ context.Context, name, planTier, billingCycle string, asOf time.Time) (*PriceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *PriceRecord
	for _, p := range s.prices {
		if p.Name != name || p.PlanTier != planTier || p.BillingCycle != billingCycle || p.EffectiveFrom.After(asOf) {
			continue
		}
		if best == nil || p.EffectiveFrom.After(best.EffectiveFrom) {
			best = p
		}
	}
	if best == nil {
		return nil, newError(ErrNotFound, "no cost found for %q on plan %s/%s", name, planTier, billingCycle)
	}
	return clonePrice(best), nil
}

func (s *MemoryStore) PriceHistory(_ context.Context, name string) ([]*PriceRecord, error) {
	rows := s.selectPrices(func(p *PriceRecord) bool { return p.Name == name })
	if len(rows) == 0 {
		return nil, newError(ErrNotFound, "provider cost %q not found", name)
	}
	slices.SortStableFunc(rows, func(a, b *PriceRecord) int {
		return b.EffectiveFrom.Compare(a.EffectiveFrom)
	})
	return rows, nil
}

func (s *MemoryStore) PlanOptions(_ context.Context, name string, asOf time.Time) ([]*PriceRecord, error) {
	rows := s.selectPrices(func(p *PriceRecord) bool {
		return p.Name == name && !p.EffectiveFrom.After(asOf)
	})
	if len(rows) == 0 {
		return nil, newError(ErrNotFound, "provider cost %q not found", name)
	}
	slices.SortFunc(rows, func(a, b *PriceRecord) int {
		if c := cmp.Compare(a.PlanTier, b.PlanTier); c != 0 {
			return c
		}
		if c := cmp.Compare(a.BillingCycle, b.BillingCycle); c != 0 {
			return c
		}
		return b.EffectiveFrom.Compare(a.EffectiveFrom)
	})
	return firstPerKey(rows, pricePlanKey, nil), nil
}

func (s *MemoryStore) DeleteAll(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.prices[:0]
	var deleted int64
	for _, p := range s.prices {
		if p.Name == name {
			deleted++
			continue
		}
		kept = append(kept, p)
	}
	clear(s.prices[len(kept):])
	s.prices = kept
	return deleted, nil
}

func (s *MemoryStore) ProviderOf(_ context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.prices {
		if p.Name == name {
			return p.Provider, nil
		}
	}
	return "", newError(ErrNotFound, "provider cost %q not found", name)
}

func (s *MemoryStore) EffectiveRows(_ context.Context, asOf time.Time) ([]*PriceRecord, error) {
	rows := s.selectPrices(func(p *PriceRecord) bool { return !p.EffectiveFrom.After(asOf) })
	slices.SortStableFunc(rows, func(a, b *PriceRecord) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return b.EffectiveFrom.Compare(a.EffectiveFrom)
	})
	return rows, nil
}

func (s *MemoryStore) selectPrices(match func(*PriceRecord) bool) []*PriceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []*PriceRecord
	for _, p := range s.prices {
		if match(p) {
			rows = append(rows, clonePrice(p))
		}
	}
	return rows
}

func clonePlan(p *PlanRecord) *PlanRecord {
	c := *p
	return &c
}

func clonePrice(p *PriceRecord) *PriceRecord {
	c := *p
	return &c
}
