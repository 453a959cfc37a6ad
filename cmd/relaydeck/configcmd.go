package main

import (
	"fmt"
	"net/url"

	"github.com/relaydeck/relaydeck/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCommand(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and adjust relaydeck settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config file:      %s\n", config.ConfigPath())
			fmt.Fprintf(out, "State file:       %s\n", config.StatePath())
			fmt.Fprintf(out, "History database: %s\n", config.HistoryPath())
			fmt.Fprintf(out, "Relay base URL:   %s\n", cfg.RelayBaseURL)
			fmt.Fprintf(out, "History days:     %d\n", cfg.HistoryDays)
			fmt.Fprintf(out, "Refresh interval: %ds\n", cfg.UI.RefreshIntervalSeconds)
			fmt.Fprintf(out, "Warn threshold:   %.2f\n", cfg.UI.WarnThreshold)
			fmt.Fprintf(out, "Crit threshold:   %.2f\n", cfg.UI.CritThreshold)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-url <base-url>",
		Short: "Point relaydeck at a different relay deployment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := url.Parse(args[0])
			if err != nil || parsed.Scheme == "" || parsed.Host == "" {
				return fmt.Errorf("invalid relay URL %q", args[0])
			}
			if err := config.SaveRelayBaseURL(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Relay base URL set to %s\n", args[0])
			return nil
		},
	})

	return cmd
}
