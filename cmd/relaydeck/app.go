package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/relaydeck/relaydeck/internal/catalog"
	"github.com/relaydeck/relaydeck/internal/config"
	"github.com/relaydeck/relaydeck/internal/history"
	"github.com/relaydeck/relaydeck/internal/kvstore"
	"github.com/relaydeck/relaydeck/internal/relayapi"
	"github.com/relaydeck/relaydeck/internal/stats"
)

// app wires the console's subsystems together: the persisted token catalog,
// the relay API client, the stats cache and the local usage history.
type app struct {
	cfg     config.Config
	store   *kvstore.FileStore
	history *history.Store
	cache   *stats.Cache
	catalog *catalog.Catalog
}

func newApp(cfg config.Config) (*app, error) {
	return newAppAt(cfg, config.StatePath(), config.HistoryPath())
}

func newAppAt(cfg config.Config, statePath, historyPath string) (*app, error) {
	store := kvstore.NewFileStore(statePath)

	hist, err := history.OpenStore(historyPath)
	if err != nil {
		return nil, fmt.Errorf("opening usage history: %w", err)
	}

	// Keep the history bounded by the configured retention window.
	if cfg.HistoryDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -cfg.HistoryDays)
		if _, err := hist.Prune(context.Background(), cutoff); err != nil {
			log.Printf("history prune: %v", err)
		}
	}

	client := relayapi.NewClient(cfg.RelayBaseURL)
	cache := stats.New(client, stats.WithRecorder(hist))

	cat, err := catalog.New(store, cache)
	if err != nil {
		hist.Close()
		return nil, fmt.Errorf("loading token catalog: %w", err)
	}

	return &app{
		cfg:     cfg,
		store:   store,
		history: hist,
		cache:   cache,
		catalog: cat,
	}, nil
}

func (a *app) Close() {
	if a.history != nil {
		a.history.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}
