package core

// UsagePercentages are bounded [0, 100] views of usage against the account
// limits. A zero limit means "unlimited" and reports 0 rather than 100.
type UsagePercentages struct {
	TokenUsagePct   float64 `json:"token_usage_pct"`
	CostUsagePct    float64 `json:"cost_usage_pct"`
	RequestUsagePct float64 `json:"request_usage_pct"`
}

// ComputeUsagePercentages derives bounded percentages from a period snapshot
// and the account limits. Token usage compares the snapshot's total against
// the token quota; cost and request-rate compare the summary's live counters
// against their caps.
func ComputeUsagePercentages(snap PeriodSnapshot, limits Limits) UsagePercentages {
	return UsagePercentages{
		TokenUsagePct:   boundedPct(float64(snap.AllTokens), float64(limits.TokenQuota)),
		CostUsagePct:    boundedPct(limits.DailyCostUsed, limits.DailyCostCap),
		RequestUsagePct: boundedPct(float64(limits.WindowRequests), float64(limits.WindowLimit)),
	}
}

func boundedPct(used, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	pct := used / limit * 100
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}
