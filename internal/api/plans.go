package api

import (
	"cmp"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vnmchuo/costs-service/internal/auth"
	"github.com/vnmchuo/costs-service/internal/pricing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// HandleListPlatformPlans serves GET /v1/platform-plans: the active plan of
// every provider, ordered by provider.
func (h *Handler) HandleListPlatformPlans(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	r, span := h.startSpan(r, "costs.list_plans", attribute.String("as_of", asOf.Format(time.RFC3339)))
	defer span.End()

	current, err := h.plans.AllCurrentPlans(r.Context(), asOf)
	if err != nil {
		h.writeError(w, r, span, err)
		return
	}
	rows := make([]*pricing.PlanRecord, 0, len(current))
	for _, p := range current {
		rows = append(rows, p)
	}
	slices.SortFunc(rows, func(a, b *pricing.PlanRecord) int {
		return cmp.Compare(a.Provider, b.Provider)
	})
	writeJSON(w, http.StatusOK, toPlans(rows))
}

func (h *Handler) HandleGetPlatformPlan(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	r, span := h.startSpan(r, "costs.current_plan",
		attribute.String("provider", provider),
		attribute.String("as_of", asOf.Format(time.RFC3339)),
	)
	defer span.End()

	plan, err := h.plans.CurrentPlan(r.Context(), provider, asOf)
	if err != nil {
		h.writeError(w, r, span, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlan(plan))
}

func (h *Handler) HandlePlatformPlanHistory(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	r, span := h.startSpan(r, "costs.plan_history", attribute.String("provider", provider))
	defer span.End()

	rows, err := h.plans.PlanHistory(r.Context(), provider)
	if err != nil {
		h.writeError(w, r, span, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlans(rows))
}

// HandlePutPlatformPlan serves PUT /v1/platform-plans/{provider}. A new row
// switches the provider's plan from its effectiveFrom on.
func (h *Handler) HandlePutPlatformPlan(w http.ResponseWriter, r *http.Request) {
	if !h.allowWrite(w, r) {
		return
	}
	provider := chi.URLParam(r, "provider")
	r, span := h.startSpan(r, "costs.append_plan", attribute.String("provider", provider))
	defer span.End()

	var req putPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.appends.RecordAppend("plan", "invalid")
		h.writeError(w, r, span, invalid("Invalid request body"))
		return
	}
	in, err := req.toInput(provider)
	if err == nil {
		var rec *pricing.PlanRecord
		rec, err = h.plans.AppendPlan(r.Context(), in)
		if err == nil {
			h.appends.RecordAppend("plan", appendOutcome(nil))
			h.logger.Info("platform plan appended",
				zap.String("provider", rec.Provider),
				zap.String("plan_tier", rec.PlanTier),
				zap.String("billing_cycle", rec.BillingCycle),
				zap.Time("effective_from", rec.EffectiveFrom),
				zap.String("api_key_id", auth.GetAPIKeyID(r.Context())),
			)
			writeJSON(w, http.StatusOK, toPlan(rec))
			return
		}
	}
	h.appends.RecordAppend("plan", appendOutcome(err))
	h.writeError(w, r, span, err)
}
