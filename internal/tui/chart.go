package tui

import (
	"github.com/guptarohit/asciigraph"
)

// RenderCostChart plots a daily cost series as an ASCII line chart.
func RenderCostChart(data []float64, width, height int, caption string) string {
	if len(data) == 0 {
		return dimStyle.Render("No usage history recorded yet.")
	}
	if width < 20 {
		width = 20
	}
	if height < 3 {
		height = 3
	}

	return asciigraph.Plot(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	)
}
