package core

import (
	"fmt"
	"time"
)

// Period is one of the two fixed aggregation windows the relay reports on.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodMonthly Period = "monthly"
)

func ParsePeriod(raw string) (Period, error) {
	switch Period(raw) {
	case PeriodDaily:
		return PeriodDaily, nil
	case PeriodMonthly:
		return PeriodMonthly, nil
	default:
		return "", fmt.Errorf("%w: unsupported period %q", ErrValidation, raw)
	}
}

// APIToken is a stored relay credential. IsActive is derived from the
// catalog's single active-id pointer and is never persisted.
type APIToken struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Value      string     `json:"value"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	IsActive   bool       `json:"-"`
}

// Limits are the account's quota caps plus the live counters the relay
// reports against them.
type Limits struct {
	TokenQuota     int64   `json:"token_quota"`
	DailyCostCap   float64 `json:"daily_cost_cap"`
	DailyCostUsed  float64 `json:"daily_cost_used"`
	MaxConcurrency int     `json:"max_concurrency"`
	WindowLimit    int64   `json:"window_limit"`
	WindowRequests int64   `json:"window_requests"`
}

type Restrictions struct {
	ModelListEnabled  bool     `json:"model_list_enabled"`
	ModelAllowList    []string `json:"model_allow_list,omitempty"`
	ModelDenyList     []string `json:"model_deny_list,omitempty"`
	ClientListEnabled bool     `json:"client_list_enabled"`
	ClientAllowList   []string `json:"client_allow_list,omitempty"`
}

// AccountSummary is the relay account's metadata for the active token.
type AccountSummary struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Plan         string       `json:"plan"`
	CreatedAt    time.Time    `json:"created_at"`
	ExpiresAt    *time.Time   `json:"expires_at,omitempty"`
	Limits       Limits       `json:"limits"`
	Restrictions Restrictions `json:"restrictions"`
}

// PeriodSnapshot is a full-replace aggregate of usage for one period.
type PeriodSnapshot struct {
	Period            Period  `json:"period"`
	Requests          int64   `json:"requests"`
	InputTokens       int64   `json:"input_tokens"`
	OutputTokens      int64   `json:"output_tokens"`
	CacheCreateTokens int64   `json:"cache_create_tokens"`
	CacheReadTokens   int64   `json:"cache_read_tokens"`
	AllTokens         int64   `json:"all_tokens"`
	Cost              float64 `json:"cost"`
	FormattedCost     string  `json:"formatted_cost"`
}

// ZeroSnapshot is the well-defined default returned before any fetch has
// succeeded. Counters are zero and the cost renders as "$0.000000".
func ZeroSnapshot(period Period) PeriodSnapshot {
	return PeriodSnapshot{Period: period, FormattedCost: FormatCost(0)}
}

// ModelStat is one row per model actually used in the selected period.
type ModelStat struct {
	Model             string  `json:"model"`
	Requests          int64   `json:"requests"`
	InputTokens       int64   `json:"input_tokens"`
	OutputTokens      int64   `json:"output_tokens"`
	CacheCreateTokens int64   `json:"cache_create_tokens"`
	CacheReadTokens   int64   `json:"cache_read_tokens"`
	Cost              float64 `json:"cost"`
}

func (m ModelStat) AllTokens() int64 {
	return m.InputTokens + m.OutputTokens + m.CacheCreateTokens + m.CacheReadTokens
}

// FormatCost renders a dollar amount with fixed six-decimal precision.
func FormatCost(cost float64) string {
	return fmt.Sprintf("$%.6f", cost)
}
