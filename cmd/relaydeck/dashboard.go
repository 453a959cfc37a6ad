package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/relaydeck/relaydeck/internal/config"
	"github.com/relaydeck/relaydeck/internal/tui"
)

func runDashboard(cfg config.Config) {
	a, err := newApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	// Pick up token edits made by other relaydeck processes.
	if err := a.catalog.WatchStore(a.store); err != nil {
		log.Printf("state watch: %v", err)
	}

	model := tui.NewModel(a.catalog, a.cache, cfg)
	program := tea.NewProgram(model, tea.WithAltScreen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Warm both period snapshots so the first toggle is instant.
	go func() {
		active, ok := a.catalog.Active()
		if !ok {
			return
		}
		if _, err := a.cache.RefreshSummary(ctx, active.Value); err != nil {
			log.Printf("initial refresh: %v", err)
			return
		}
		a.cache.PrewarmPeriods(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
		program.Quit()
	}()

	if _, err := program.Run(); err != nil {
		log.SetOutput(os.Stderr)
		log.Fatalf("TUI error: %v", err)
	}
}
