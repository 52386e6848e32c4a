package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vnmchuo/costs-service/internal/pricing"
)

type priceResponse struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name"`
	Provider              string    `json:"provider"`
	PlanTier              string    `json:"planTier"`
	BillingCycle          string    `json:"billingCycle"`
	CostPerUnitInUsdCents string    `json:"costPerUnitInUsdCents"`
	EffectiveFrom         time.Time `json:"effectiveFrom"`
	CreatedAt             time.Time `json:"createdAt"`
}

type planResponse struct {
	ID            string    `json:"id"`
	Provider      string    `json:"provider"`
	PlanTier      string    `json:"planTier"`
	BillingCycle  string    `json:"billingCycle"`
	EffectiveFrom time.Time `json:"effectiveFrom"`
	CreatedAt     time.Time `json:"createdAt"`
}

type resolvedResponse struct {
	Name                   string    `json:"name"`
	PricePerUnitInUsdCents string    `json:"pricePerUnitInUsdCents"`
	Provider               string    `json:"provider"`
	EffectiveFrom          time.Time `json:"effectiveFrom"`
}

func toPrice(p *pricing.PriceRecord) priceResponse {
	return priceResponse{
		ID:                    p.ID,
		Name:                  p.Name,
		Provider:              p.Provider,
		PlanTier:              p.PlanTier,
		BillingCycle:          p.BillingCycle,
		CostPerUnitInUsdCents: pricing.FormatCost(p.CostPerUnit),
		EffectiveFrom:         p.EffectiveFrom,
		CreatedAt:             p.CreatedAt,
	}
}

func toPrices(rows []*pricing.PriceRecord) []priceResponse {
	out := make([]priceResponse, 0, len(rows))
	for _, p := range rows {
		out = append(out, toPrice(p))
	}
	return out
}

func toPlan(p *pricing.PlanRecord) planResponse {
	return planResponse{
		ID:            p.ID,
		Provider:      p.Provider,
		PlanTier:      p.PlanTier,
		BillingCycle:  p.BillingCycle,
		EffectiveFrom: p.EffectiveFrom,
		CreatedAt:     p.CreatedAt,
	}
}

func toPlans(rows []*pricing.PlanRecord) []planResponse {
	out := make([]planResponse, 0, len(rows))
	for _, p := range rows {
		out = append(out, toPlan(p))
	}
	return out
}

func toResolved(p *pricing.ResolvedPrice) resolvedResponse {
	return resolvedResponse{
		Name:                   p.Name,
		PricePerUnitInUsdCents: pricing.FormatCost(p.CostPerUnit),
		Provider:               p.Provider,
		EffectiveFrom:          p.EffectiveFrom,
	}
}

type putPriceRequest struct {
	CostPerUnitInUsdCents json.RawMessage `json:"costPerUnitInUsdCents"`
	Provider              string          `json:"provider"`
	PlanTier              string          `json:"planTier"`
	BillingCycle          string          `json:"billingCycle"`
	EffectiveFrom         string          `json:"effectiveFrom"`
}

type putPlanRequest struct {
	PlanTier      string `json:"planTier"`
	BillingCycle  string `json:"billingCycle"`
	EffectiveFrom string `json:"effectiveFrom"`
}

func (req *putPriceRequest) toInput(name string) (pricing.PriceInput, error) {
	cost, err := parseCostField(req.CostPerUnitInUsdCents)
	if err != nil {
		return pricing.PriceInput{}, err
	}
	eff, err := parseEffectiveFrom(req.EffectiveFrom)
	if err != nil {
		return pricing.PriceInput{}, err
	}
	return pricing.PriceInput{
		Name:          name,
		Provider:      req.Provider,
		PlanTier:      req.PlanTier,
		BillingCycle:  req.BillingCycle,
		CostPerUnit:   cost,
		EffectiveFrom: eff,
	}, nil
}

func (req *putPlanRequest) toInput(provider string) (pricing.PlanInput, error) {
	eff, err := parseEffectiveFrom(req.EffectiveFrom)
	if err != nil {
		return pricing.PlanInput{}, err
	}
	return pricing.PlanInput{
		Provider:      provider,
		PlanTier:      req.PlanTier,
		BillingCycle:  req.BillingCycle,
		EffectiveFrom: eff,
	}, nil
}

// parseCostField accepts the cost as a JSON string or a JSON number. Numbers
// are taken from their literal text so no float rounding happens.
func parseCostField(raw json.RawMessage) (decimal.Decimal, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return decimal.Decimal{}, invalid("costPerUnitInUsdCents is required")
	}
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Decimal{}, invalid("costPerUnitInUsdCents must be a decimal string or number")
		}
		text = s
	}
	return pricing.ParseCost(text)
}

func parseEffectiveFrom(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, invalid(fmt.Sprintf("effectiveFrom %q is not an RFC3339 timestamp", raw))
	}
	return t, nil
}

func invalid(msg string) error {
	return &pricing.Error{Kind: pricing.ErrInvalidArgument, Message: msg}
}
