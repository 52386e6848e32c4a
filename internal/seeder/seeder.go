// Package seeder loads catalogs of platform plans and provider costs and
// appends them idempotently to a pricing store.
package seeder

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vnmchuo/costs-service/internal/auth"
	"github.com/vnmchuo/costs-service/internal/pricing"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type PlanEntry struct {
	Provider      string `yaml:"provider"`
	PlanTier      string `yaml:"planTier"`
	BillingCycle  string `yaml:"billingCycle"`
	EffectiveFrom string `yaml:"effectiveFrom"`
}

type PriceEntry struct {
	Name                  string `yaml:"name"`
	Provider              string `yaml:"provider"`
	PlanTier              string `yaml:"planTier"`
	BillingCycle          string `yaml:"billingCycle"`
	CostPerUnitInUsdCents string `yaml:"costPerUnitInUsdCents"`
	EffectiveFrom         string `yaml:"effectiveFrom"`
}

type Catalog struct {
	Plans  []PlanEntry  `yaml:"plans"`
	Prices []PriceEntry `yaml:"prices"`
}

// Result counts what Apply wrote. Skipped rows already existed.
type Result struct {
	PlansCreated  int
	PricesCreated int
	Skipped       int
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return &c, nil
}

func Read(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Validate checks that every plan is reachable: each entry carries the
// required fields, and every plan matches at least one price row of its
// provider. Providers priced without any plan are reported too.
func (c *Catalog) Validate() error {
	var errs []error
	planned := map[string]bool{}
	for i, p := range c.Plans {
		if p.Provider == "" || p.PlanTier == "" || p.BillingCycle == "" {
			errs = append(errs, fmt.Errorf("plans[%d]: provider, planTier and billingCycle are required", i))
			continue
		}
		if _, err := parseTime(p.EffectiveFrom); err != nil {
			errs = append(errs, fmt.Errorf("plans[%d]: %w", i, err))
		}
		planned[p.Provider] = true
		matched := false
		for _, price := range c.Prices {
			if price.Provider == p.Provider && price.PlanTier == p.PlanTier && price.BillingCycle == p.BillingCycle {
				matched = true
				break
			}
		}
		if !matched {
			errs = append(errs, fmt.Errorf("plan for %q (%s/%s) has no matching cost", p.Provider, p.PlanTier, p.BillingCycle))
		}
	}
	for i, p := range c.Prices {
		if p.Name == "" || p.Provider == "" || p.PlanTier == "" || p.BillingCycle == "" {
			errs = append(errs, fmt.Errorf("prices[%d]: name, provider, planTier and billingCycle are required", i))
			continue
		}
		if _, err := pricing.ParseCost(p.CostPerUnitInUsdCents); err != nil {
			errs = append(errs, fmt.Errorf("prices[%d] %s: %w", i, p.Name, err))
		}
		if _, err := parseTime(p.EffectiveFrom); err != nil {
			errs = append(errs, fmt.Errorf("prices[%d] %s: %w", i, p.Name, err))
		}
		if !planned[p.Provider] {
			errs = append(errs, fmt.Errorf("missing platform plan for provider %q", p.Provider))
			planned[p.Provider] = true
		}
	}
	return errors.Join(errs...)
}

// Apply validates the catalog, then appends every entry to store. Rows that
// already exist are skipped, so Apply can run on every start. An invalid
// catalog writes nothing.
func (c *Catalog) Apply(ctx context.Context, store pricing.Store, logger *zap.Logger) (Result, error) {
	var res Result
	if err := c.Validate(); err != nil {
		return res, fmt.Errorf("invalid catalog: %w", err)
	}
	for _, p := range c.Plans {
		eff, err := parseTime(p.EffectiveFrom)
		if err != nil {
			return res, fmt.Errorf("plan %s: %w", p.Provider, err)
		}
		_, err = store.AppendPlan(ctx, pricing.PlanInput{
			Provider:      p.Provider,
			PlanTier:      p.PlanTier,
			BillingCycle:  p.BillingCycle,
			EffectiveFrom: eff,
		})
		switch {
		case err == nil:
			res.PlansCreated++
		case errors.Is(err, pricing.ErrConflict):
			res.Skipped++
		default:
			return res, fmt.Errorf("failed to seed plan for %s: %w", p.Provider, err)
		}
	}

	for _, p := range c.Prices {
		eff, err := parseTime(p.EffectiveFrom)
		if err != nil {
			return res, fmt.Errorf("price %s: %w", p.Name, err)
		}
		cost, err := pricing.ParseCost(p.CostPerUnitInUsdCents)
		if err != nil {
			return res, fmt.Errorf("price %s: %w", p.Name, err)
		}
		_, err = store.AppendPrice(ctx, pricing.PriceInput{
			Name:          p.Name,
			Provider:      p.Provider,
			PlanTier:      p.PlanTier,
			BillingCycle:  p.BillingCycle,
			CostPerUnit:   cost,
			EffectiveFrom: eff,
		})
		switch {
		case err == nil:
			res.PricesCreated++
		case errors.Is(err, pricing.ErrConflict):
			res.Skipped++
		default:
			return res, fmt.Errorf("failed to seed price %s: %w", p.Name, err)
		}
	}

	logger.Info("seed complete",
		zap.Int("plans_created", res.PlansCreated),
		zap.Int("prices_created", res.PricesCreated),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid effectiveFrom %q: %w", raw, err)
	}
	return t, nil
}

// SeedAdminAPIKey registers key as an active admin credential. An existing
// key is left alone.
func SeedAdminAPIKey(ctx context.Context, store auth.Store, key string, logger *zap.Logger) {
	if key == "" {
		return
	}
	apiKey := &auth.APIKey{
		Name:    "admin",
		KeyHash: auth.HashKey(key),
		Active:  true,
	}
	if err := store.Create(ctx, apiKey); err != nil {
		logger.Info("admin API key may already exist, skipping", zap.Error(err))
		return
	}
	logger.Info("admin API key created", zap.String("key_id", apiKey.ID))
}
