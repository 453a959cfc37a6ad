package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/relaydeck/relaydeck/internal/core"
)

func (m Model) View() string {
	width := m.width
	if width <= 0 {
		width = 100
	}

	leftWidth := width / 3
	if leftWidth < minLeftWidth {
		leftWidth = minLeftWidth
	}
	if leftWidth > maxLeftWidth {
		leftWidth = maxLeftWidth
	}
	rightWidth := width - leftWidth - 4

	var b strings.Builder
	b.WriteString(m.renderHeader(width))
	b.WriteString("\n")

	left := panelStyle.Width(leftWidth).Render(m.renderTokenList(leftWidth))
	right := panelStyle.Width(rightWidth).Render(m.renderUsagePanel(rightWidth))
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, right))
	b.WriteString("\n")

	if m.status != "" {
		b.WriteString(errorStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(m.renderFooter())

	return b.String()
}

func (m Model) renderHeader(width int) string {
	brand := headerBrandStyle.Render("relaydeck")

	var account string
	if summary, ok := m.cache.Summary(); ok {
		account = headerStyle.Render(summary.Name)
		if summary.Plan != "" {
			account += dimStyle.Render(" · " + summary.Plan)
		}
	} else {
		account = dimStyle.Render("no account data")
	}

	spin := " "
	if m.refreshing {
		spin = dimStyle.Render("⟳")
	}

	line := fmt.Sprintf("%s  %s %s", brand, account, spin)
	return lipgloss.NewStyle().Width(width).Render(line)
}

func (m Model) renderTokenList(width int) string {
	tokens := m.catalog.List()
	if len(tokens) == 0 {
		return dimStyle.Render("No tokens yet.\nAdd one with: relaydeck token add <value>")
	}

	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render("Tokens"))
	b.WriteString("\n")

	for i, tok := range tokens {
		line := renderTokenRow(tok, width-2)
		if i == m.cursor {
			b.WriteString(cardSelectedStyle.Render(line))
		} else {
			b.WriteString(cardNormalStyle.Render(line))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderTokenRow(tok core.APIToken, width int) string {
	marker := "  "
	name := valueStyle.Render(tok.Name)
	if tok.IsActive {
		marker = activeBadgeStyle.Render("● ")
		name = activeBadgeStyle.Render(tok.Name)
	}

	hint := dimStyle.Render(maskTokenValue(tok.Value))
	line := marker + name + " " + hint
	if lipgloss.Width(line) > width && width > 0 {
		line = marker + name
	}
	return line
}

// maskTokenValue keeps the leading prefix and trailing 4 characters visible.
func maskTokenValue(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:4] + "…" + value[len(value)-4:]
}

func (m Model) renderUsagePanel(width int) string {
	period := m.cache.SelectedPeriod()
	snap := m.cache.CurrentSnapshot()

	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render("Usage"))
	b.WriteString(dimStyle.Render(" · " + periodLabel(period)))
	b.WriteString("\n\n")

	b.WriteString(renderCounterLine("Requests", formatCount(snap.Requests)))
	b.WriteString(renderCounterLine("Input tokens", formatCount(snap.InputTokens)))
	b.WriteString(renderCounterLine("Output tokens", formatCount(snap.OutputTokens)))
	b.WriteString(renderCounterLine("Cache create", formatCount(snap.CacheCreateTokens)))
	b.WriteString(renderCounterLine("Cache read", formatCount(snap.CacheReadTokens)))
	b.WriteString(renderCounterLine("All tokens", formatCount(snap.AllTokens)))
	b.WriteString(renderCounterLine("Cost", snap.FormattedCost))
	b.WriteString("\n")

	b.WriteString(m.renderGauges(width))

	if models := m.cache.ModelStats(); len(models) > 0 {
		b.WriteString("\n")
		b.WriteString(renderModelTable(models, width))
	}

	if err := m.cache.LastError(); err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("stale: " + err.Error()))
	}

	return b.String()
}

func renderCounterLine(label, value string) string {
	return fmt.Sprintf("%s %s\n",
		labelStyle.Render(fmt.Sprintf("%-14s", label)),
		valueStyle.Render(value))
}

func (m Model) renderGauges(width int) string {
	pct := m.cache.Percentages()
	gaugeWidth := width - 28
	if gaugeWidth < 10 {
		gaugeWidth = 10
	}

	var b strings.Builder
	rows := []struct {
		label string
		value float64
	}{
		{"Token quota", pct.TokenUsagePct},
		{"Daily cost", pct.CostUsagePct},
		{"Request rate", pct.RequestUsagePct},
	}
	for _, row := range rows {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-14s", row.label)))
		b.WriteString(" ")
		b.WriteString(RenderUsageGauge(row.value, gaugeWidth, m.warnThreshold, m.critThreshold))
		b.WriteString("\n")
	}
	return b.String()
}

func renderModelTable(models []core.ModelStat, width int) string {
	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render("By model"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("%-28s %10s %14s %12s", "MODEL", "REQS", "TOKENS", "COST")))
	b.WriteString("\n")

	for _, stat := range models {
		name := stat.Model
		if len(name) > 28 {
			name = name[:27] + "…"
		}
		b.WriteString(fmt.Sprintf("%-28s %10s %14s %12s\n",
			valueStyle.Render(fmt.Sprintf("%-28s", name)),
			formatCount(stat.Requests),
			formatCount(stat.AllTokens()),
			core.FormatCost(stat.Cost)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderFooter() string {
	if m.showHelp {
		return renderHelp()
	}
	keys := []struct{ key, action string }{
		{"↑/↓", "select"},
		{"enter", "activate"},
		{"d", "remove"},
		{"p", "period"},
		{"r", "refresh"},
		{"?", "help"},
		{"q", "quit"},
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, helpKeyStyle.Render(k.key)+helpStyle.Render(" "+k.action))
	}
	return helpStyle.Render(" ") + strings.Join(parts, helpStyle.Render("  ·  "))
}

func renderHelp() string {
	lines := []string{
		"Keys:",
		"  ↑/k, ↓/j   move selection in the token list",
		"  enter      make the selected token active",
		"  d          remove the selected token",
		"  p          toggle daily / monthly usage",
		"  r          refresh account summary and usage now",
		"  ?          toggle this help",
		"  q          quit",
	}
	return helpStyle.Render(strings.Join(lines, "\n"))
}

func periodLabel(p core.Period) string {
	switch p {
	case core.PeriodMonthly:
		return "this month"
	default:
		return "today"
	}
}

func formatCount(n int64) string {
	switch {
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.2fB", float64(n)/1_000_000_000)
	case n >= 1_000_000:
		return fmt.Sprintf("%.2fM", float64(n)/1_000_000)
	case n >= 10_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
