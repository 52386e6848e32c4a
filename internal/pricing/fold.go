package pricing

// firstPerKey folds rows that arrive grouped by key, newest first within a
// group, keeping the first row of each group accepted by keep. Groups must be
// contiguous; no state survives a key change.
func firstPerKey[T any](rows []T, key func(T) string, keep func(T) bool) []T {
	var (
		out     []T
		current string
		done    bool
	)
	for i, row := range rows {
		if k := key(row); i == 0 || k != current {
			current = k
			done = false
		}
		if done || (keep != nil && !keep(row)) {
			continue
		}
		out = append(out, row)
		done = true
	}
	return out
}

func planProvider(p *PlanRecord) string { return p.Provider }

func priceName(p *PriceRecord) string { return p.Name }

func pricePlanKey(p *PriceRecord) string { return p.PlanTier + "\x00" + p.BillingCycle }

func latestPlanPerProvider(rows []*PlanRecord) map[string]*PlanRecord {
	current := firstPerKey(rows, planProvider, nil)
	out := make(map[string]*PlanRecord, len(current))
	for _, p := range current {
		out[p.Provider] = p
	}
	return out
}
