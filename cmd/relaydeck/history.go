package main

import (
	"context"
	"fmt"
	"time"

	"github.com/relaydeck/relaydeck/internal/config"
	"github.com/relaydeck/relaydeck/internal/core"
	"github.com/relaydeck/relaydeck/internal/tui"
	"github.com/spf13/cobra"
)

func newHistoryCommand(cfg config.Config) *cobra.Command {
	var (
		periodFlag string
		days       int
		width      int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Chart locally recorded cost history for the active token's account",
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

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			accountID, err := a.cache.ResolveIdentity(ctx, active.Value)
			if err != nil {
				return err
			}

			points, err := a.history.RecentCosts(ctx, accountID, period, days)
			if err != nil {
				return err
			}
			if len(points) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No usage history recorded yet. Run 'relaydeck usage' a few times first.")
				return nil
			}

			costs := make([]float64, len(points))
			for i, p := range points {
				costs[i] = p.Cost
			}

			caption := fmt.Sprintf("%s cost, last %d day(s), %d sample(s)", period, days, len(points))
			fmt.Fprintln(cmd.OutOrStdout(), tui.RenderCostChart(costs, width, 10, caption))
			return nil
		},
	}

	cmd.Flags().StringVarP(&periodFlag, "period", "p", string(core.PeriodDaily), "aggregation period: daily or monthly")
	cmd.Flags().IntVar(&days, "days", cfg.HistoryDays, "how many days back to chart")
	cmd.Flags().IntVar(&width, "width", 70, "chart width in columns")
	return cmd
}
