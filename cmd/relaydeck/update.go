package main

import (
	"fmt"

	"github.com/relaydeck/relaydeck/internal/appupdate"
	"github.com/relaydeck/relaydeck/internal/version"
	"github.com/spf13/cobra"
)

func newUpdateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Check whether a newer relaydeck release is available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := appupdate.Check(cmd.Context(), appupdate.CheckOptions{
				CurrentVersion: version.Version,
			})
			if err != nil {
				return fmt.Errorf("update check: %w", err)
			}

			out := cmd.OutOrStdout()
			if result.CurrentVersion == "" {
				fmt.Fprintln(out, "Running a development build; skipping the release check.")
				return nil
			}
			if !result.UpdateAvailable {
				fmt.Fprintf(out, "relaydeck %s is up to date.\n", result.CurrentVersion)
				return nil
			}

			fmt.Fprintf(out, "relaydeck %s is available (you have %s).\n", result.LatestVersion, result.CurrentVersion)
			fmt.Fprintf(out, "Upgrade: %s\n", result.UpgradeHint)
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "relaydeck "+version.String())
		},
	}
}
