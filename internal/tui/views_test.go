package tui

import (
	"strings"
	"testing"

	"github.com/relaydeck/relaydeck/internal/core"
)

func TestMaskTokenValue(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sk-abcdef1234", "sk-a…1234"},
		{"short", "*****"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := maskTokenValue(tt.in); got != tt.want {
			t.Errorf("maskTokenValue(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{9_999, "9999"},
		{10_000, "10.0K"},
		{1_500_000, "1.50M"},
		{2_000_000_000, "2.00B"},
	}
	for _, tt := range tests {
		if got := formatCount(tt.in); got != tt.want {
			t.Errorf("formatCount(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPeriodLabel(t *testing.T) {
	if got := periodLabel(core.PeriodDaily); got != "today" {
		t.Errorf("daily label = %q", got)
	}
	if got := periodLabel(core.PeriodMonthly); got != "this month" {
		t.Errorf("monthly label = %q", got)
	}
}

func TestGaugeColorThresholds(t *testing.T) {
	warn, crit := 0.70, 0.90

	if got := gaugeColor(50, warn, crit); got != colorOK {
		t.Errorf("50%% used should be OK, got %v", got)
	}
	if got := gaugeColor(75, warn, crit); got != colorWarn {
		t.Errorf("75%% used should warn, got %v", got)
	}
	if got := gaugeColor(95, warn, crit); got != colorCrit {
		t.Errorf("95%% used should be critical, got %v", got)
	}
	// Boundary is inclusive.
	if got := gaugeColor(90, warn, crit); got != colorCrit {
		t.Errorf("90%% used should be critical, got %v", got)
	}
}

func TestRenderUsageGaugeNA(t *testing.T) {
	out := RenderUsageGauge(-1, 10, 0.70, 0.90)
	if !strings.Contains(out, "N/A") {
		t.Errorf("negative percent should render N/A, got %q", out)
	}
}

func TestRenderUsageGaugeClamps(t *testing.T) {
	out := RenderUsageGauge(240, 10, 0.70, 0.90)
	if !strings.Contains(out, "100.0%") {
		t.Errorf("over-100 percent should clamp to 100.0%%, got %q", out)
	}
}

func TestRenderTokenRowActiveMarker(t *testing.T) {
	active := core.APIToken{Name: "Prod", Value: "sk-abcdef1234", IsActive: true}
	inactive := core.APIToken{Name: "Dev", Value: "sk-abcdef5678"}

	if out := renderTokenRow(active, 40); !strings.Contains(out, "●") {
		t.Errorf("active row missing marker: %q", out)
	}
	if out := renderTokenRow(inactive, 40); strings.Contains(out, "●") {
		t.Errorf("inactive row has marker: %q", out)
	}
}

func TestRenderCostChartEmpty(t *testing.T) {
	out := RenderCostChart(nil, 40, 5, "")
	if !strings.Contains(out, "No usage history") {
		t.Errorf("empty data should show placeholder, got %q", out)
	}
}

func TestRenderCostChartPlots(t *testing.T) {
	out := RenderCostChart([]float64{0.1, 0.4, 0.2, 0.9}, 40, 5, "cost")
	if !strings.Contains(out, "cost") {
		t.Errorf("chart caption missing: %q", out)
	}
	if strings.TrimSpace(out) == "" {
		t.Error("chart output empty")
	}
}
