package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/relaydeck/relaydeck/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	if os.Getenv("RELAYDECK_DEBUG") != "" {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(io.Discard)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		fmt.Fprintf(os.Stderr, "Config path: %s\n", config.ConfigPath())
		os.Exit(1)
	}

	root := cobra.Command{
		Use:   "relaydeck",
		Short: "relaydeck is a terminal console for managing relay API tokens and usage.",
		Run: func(_ *cobra.Command, _ []string) {
			runDashboard(cfg)
		},
	}

	root.AddCommand(newTokenCommand(cfg))
	root.AddCommand(newUsageCommand(cfg))
	root.AddCommand(newHistoryCommand(cfg))
	root.AddCommand(newConfigCommand(cfg))
	root.AddCommand(newUpdateCommand())
	root.AddCommand(newVersionCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
