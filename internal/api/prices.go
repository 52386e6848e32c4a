package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vnmchuo/costs-service/internal/auth"
	"github.com/vnmchuo/costs-service/internal/pricing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// HandleListPrices serves GET /v1/prices.
func (h *Handler) HandleListPrices(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	r, span := h.startSpan(r, "costs.resolve_all", attribute.String("as_of", asOf.Format(time.RFC3339)))
	defer span.End()

	prices, err := h.resolver.ResolveAll(r.Context(), asOf)
	if err != nil {
		h.writeError(w, r, span, err)
		return
	}
	out := make([]resolvedResponse, 0, len(prices))
	for _, p := range prices {
		out = append(out, toResolved(p))
	}
	span.SetAttributes(attribute.Int("result_count", len(out)))
	writeJSON(w, http.StatusOK, out)
}

// HandleGetPrice serves GET /v1/prices/{name}.
func (h *Handler) HandleGetPrice(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	r, span := h.startSpan(r, "costs.resolve_one",
		attribute.String("cost_name", name),
		attribute.String("as_of", asOf.Format(time.RFC3339)),
	)
	defer span.End()

	price, err := h.resolver.ResolveOne(r.Context(), name, asOf)
	if err != nil {
		h.writeError(w, r, span, err)
		return
	}
	span.SetAttributes(attribute.String("provider", price.Provider))
	writeJSON(w, http.StatusOK, toResolved(price))
}

// HandleListProviderCosts serves GET /v1/providers-costs: the current row of
// every resolvable name.
func (h *Handler) HandleListProviderCosts(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	r, span := h.startSpan(r, "costs.list_current", attribute.String("as_of", asOf.Format(time.RFC3339)))
	defer span.End()

	rows, err := h.resolver.ResolveAllRows(r.Context(), asOf)
	if err != nil {
		h.writeError(w, r, span, err)
		return
	}
	writeJSON(w, http.StatusOK, toPrices(rows))
}

// HandleGetProviderCost serves GET /v1/providers-costs/{name}.
func (h *Handler) HandleGetProviderCost(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	r, span := h.startSpan(r, "costs.current_row",
		attribute.String("cost_name", name),
		attribute.String("as_of", asOf.Format(time.RFC3339)),
	)
	defer span.End()

	row, err := h.resolver.CurrentRow(r.Context(), name, asOf)
	if err != nil {
		h.writeError(w, r, span, err)
		return
	}
	writeJSON(w, http.StatusOK, toPrice(row))
}

// HandleProviderCostHistory serves GET /v1/providers-costs/{name}/history.
func (h *Handler) HandleProviderCostHistory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	r, span := h.startSpan(r, "costs.price_history", attribute.String("cost_name", name))
	defer span.End()

	rows, err := h.prices.PriceHistory(r.Context(), name)
	if err != nil {
		h.writeError(w, r, span, err)
		return
	}
	writeJSON(w, http.StatusOK, toPrices(rows))
}

// HandleProviderCostPlans serves GET /v1/providers-costs/{name}/plans.
func (h *Handler) HandleProviderCostPlans(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	r, span := h.startSpan(r, "costs.plan_options",
		attribute.String("cost_name", name),
		attribute.String("as_of", asOf.Format(time.RFC3339)),
	)
	defer span.End()

	rows, err := h.prices.PlanOptions(r.Context(), name, asOf)
	if err != nil {
		h.writeError(w, r, span, err)
		return
	}
	writeJSON(w, http.StatusOK, toPrices(rows))
}

// HandlePutProviderCost serves PUT /v1/providers-costs/{name}, appending a
// new price row.
func (h *Handler) HandlePutProviderCost(w http.ResponseWriter, r *http.Request) {
	if !h.allowWrite(w, r) {
		return
	}
	name := chi.URLParam(r, "name")
	r, span := h.startSpan(r, "costs.append_price", attribute.String("cost_name", name))
	defer span.End()

	var req putPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.appends.RecordAppend("price", "invalid")
		h.writeError(w, r, span, invalid("Invalid request body"))
		return
	}
	in, err := req.toInput(name)
	if err == nil {
		var rec *pricing.PriceRecord
		rec, err = h.prices.AppendPrice(r.Context(), in)
		if err == nil {
			h.appends.RecordAppend("price", appendOutcome(nil))
			h.logger.Info("price appended",
				zap.String("name", rec.Name),
				zap.String("provider", rec.Provider),
				zap.String("plan_tier", rec.PlanTier),
				zap.String("billing_cycle", rec.BillingCycle),
				zap.String("cost", pricing.FormatCost(rec.CostPerUnit)),
				zap.Time("effective_from", rec.EffectiveFrom),
				zap.String("api_key_id", auth.GetAPIKeyID(r.Context())),
			)
			writeJSON(w, http.StatusOK, toPrice(rec))
			return
		}
	}
	h.appends.RecordAppend("price", appendOutcome(err))
	h.writeError(w, r, span, err)
}

// HandleDeleteProviderCost serves DELETE /v1/providers-costs/{name}, removing
// every row of the name across all plans.
func (h *Handler) HandleDeleteProviderCost(w http.ResponseWriter, r *http.Request) {
	if !h.allowWrite(w, r) {
		return
	}
	name := chi.URLParam(r, "name")
	r, span := h.startSpan(r, "costs.delete_price", attribute.String("cost_name", name))
	defer span.End()

	n, err := h.prices.DeleteAll(r.Context(), name)
	if err != nil {
		h.writeError(w, r, span, err)
		return
	}
	if n == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Provider cost not found"})
		return
	}
	h.logger.Info("price deleted",
		zap.String("name", name),
		zap.Int64("rows", n),
		zap.String("api_key_id", auth.GetAPIKeyID(r.Context())),
	)
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}
