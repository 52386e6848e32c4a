package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerStore guards a Store with a circuit breaker. Only ErrStoreUnavailable
// counts as a failure; not-found, conflict and validation errors are answers.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

var _ Store = (*BreakerStore)(nil)

type BreakerSettings struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	OnStateChange       func(name string, from, to gobreaker.State)
}

func NewBreakerStore(next Store, s BreakerSettings) *BreakerStore {
	if s.Name == "" {
		s.Name = "costs-store"
	}
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 30 * time.Second
	}
	threshold := s.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrStoreUnavailable)
		},
		OnStateChange: s.OnStateChange,
	})
	return &BreakerStore{next: next, cb: cb}
}

// State reports the breaker state, for health reporting.
func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

func guarded[T any](b *BreakerStore, fn func() (T, error)) (T, error) {
	var zero T
	v, err := b.cb.Execute(func() (interface{}, error) {
		res, err := fn()
		return res, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, &Error{Kind: ErrStoreUnavailable, Message: "store unavailable", Err: err}
		}
		return zero, err
	}
	return v.(T), nil
}

func (b *BreakerStore) AppendPlan(ctx context.Context, in PlanInput) (*PlanRecord, error) {
	return guarded(b, func() (*PlanRecord, error) { return b.next.AppendPlan(ctx, in) })
}

func (b *BreakerStore) CurrentPlan(ctx context.Context, provider string, asOf time.Time) (*PlanRecord, error) {
	return guarded(b, func() (*PlanRecord, error) { return b.next.CurrentPlan(ctx, provider, asOf) })
}

func (b *BreakerStore) AllCurrentPlans(ctx context.Context, asOf time.Time) (map[string]*PlanRecord, error) {
	return guarded(b, func() (map[string]*PlanRecord, error) { return b.next.AllCurrentPlans(ctx, asOf) })
}

func (b *BreakerStore) PlanHistory(ctx context.Context, provider string) ([]*PlanRecord, error) {
	return guarded(b, func() ([]*PlanRecord, error) { return b.next.PlanHistory(ctx, provider) })
}

func (b *BreakerStore) AppendPrice(ctx context.Context, in PriceInput) (*PriceRecord, error) {
	return guarded(b, func() (*PriceRecord, error) { return b.next.AppendPrice(ctx, in) })
}

func (b *BreakerStore) CurrentPrice(ctx context.Context, name, planTier, billingCycle string, asOf time.Time) (*PriceRecord, error) {
	return guarded(b, func() (*PriceRecord, error) {
		return b.next.CurrentPrice(ctx, name, planTier, billingCycle, asOf)
	})
}

func (b *BreakerStore) PriceHistory(ctx context.Context, name string) ([]*PriceRecord, error) {
	return guarded(b, func() ([]*PriceRecord, error) { return b.next.PriceHistory(ctx, name) })
}

func (b *BreakerStore) PlanOptions(ctx context.Context, name string, asOf time.Time) ([]*PriceRecord, error) {
	return guarded(b, func() ([]*PriceRecord, error) { return b.next.PlanOptions(ctx, name, asOf) })
}

func (b *BreakerStore) DeleteAll(ctx context.Context, name string) (int64, error) {
	return guarded(b, func() (int64, error) { return b.next.DeleteAll(ctx, name) })
}

func (b *BreakerStore) ProviderOf(ctx context.Context, name string) (string, error) {
	return guarded(b, func() (string, error) { return b.next.ProviderOf(ctx, name) })
}

func (b *BreakerStore) EffectiveRows(ctx context.Context, asOf time.Time) ([]*PriceRecord, error) {
	return guarded(b, func() ([]*PriceRecord, error) { return b.next.EffectiveRows(ctx, asOf) })
}
