package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/relaydeck/relaydeck/internal/config"
	"github.com/relaydeck/relaydeck/internal/core"
	"github.com/spf13/cobra"
)

func newUsageCommand(cfg config.Config) *cobra.Command {
	var (
		periodFlag string
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show the active token's usage for a period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			period, err := core.ParsePeriod(periodFlag)
			if err != nil {
				return err
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			active, ok := a.catalog.Active()
			if !ok {
				return fmt.Errorf("no tokens registered; add one with 'relaydeck token add'")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			summary, err := a.cache.RefreshSummary(ctx, active.Value)
			if err != nil {
				return err
			}
			a.catalog.TouchLastUsed(active.ID)

			snap, err := a.cache.RefreshPeriod(ctx, summary.ID, period)
			if err != nil {
				return err
			}
			pct := core.ComputeUsagePercentages(snap, summary.Limits)

			if jsonOut {
				payload := struct {
					Account     string                `json:"account"`
					Plan        string                `json:"plan"`
					Snapshot    core.PeriodSnapshot   `json:"snapshot"`
					Percentages core.UsagePercentages `json:"percentages"`
				}{summary.Name, summary.Plan, snap, pct}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(payload)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Account: %s", summary.Name)
			if summary.Plan != "" {
				fmt.Fprintf(out, " (%s)", summary.Plan)
			}
			fmt.Fprintf(out, "\nPeriod:  %s\n\n", period)

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Requests\t%d\n", snap.Requests)
			fmt.Fprintf(w, "Input tokens\t%d\n", snap.InputTokens)
			fmt.Fprintf(w, "Output tokens\t%d\n", snap.OutputTokens)
			fmt.Fprintf(w, "Cache create\t%d\n", snap.CacheCreateTokens)
			fmt.Fprintf(w, "Cache read\t%d\n", snap.CacheReadTokens)
			fmt.Fprintf(w, "All tokens\t%d\n", snap.AllTokens)
			fmt.Fprintf(w, "Cost\t%s\n", snap.FormattedCost)
			fmt.Fprintf(w, "Token quota used\t%.1f%%\n", pct.TokenUsagePct)
			fmt.Fprintf(w, "Daily cost used\t%.1f%%\n", pct.CostUsagePct)
			fmt.Fprintf(w, "Request rate used\t%.1f%%\n", pct.RequestUsagePct)
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&periodFlag, "period", "p", string(core.PeriodDaily), "aggregation period: daily or monthly")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit machine-readable JSON")
	return cmd
}
