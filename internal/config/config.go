// Package config persists the console's settings as JSON in the user config
// dir. Missing files yield defaults; bad values are clamped on load.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

type UIConfig struct {
	RefreshIntervalSeconds int     `json:"refresh_interval_seconds"`
	WarnThreshold          float64 `json:"warn_threshold"`
	CritThreshold          float64 `json:"crit_threshold"`
}

type Config struct {
	RelayBaseURL string   `json:"relay_base_url"`
	HistoryDays  int      `json:"history_days"`
	UI           UIConfig `json:"ui"`
}

func DefaultConfig() Config {
	return Config{
		RelayBaseURL: "https://relay.example.com",
		HistoryDays:  90,
		UI: UIConfig{
			RefreshIntervalSeconds: 30,
			WarnThreshold:          0.70,
			CritThreshold:          0.90,
		},
	}
}

func ConfigDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "relaydeck")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "relaydeck")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "settings.json")
}

// StatePath is the key/value store file holding the token catalog.
func StatePath() string {
	return filepath.Join(ConfigDir(), "state.json")
}

// HistoryPath is the sqlite file holding recorded usage snapshots.
func HistoryPath() string {
	return filepath.Join(ConfigDir(), "history.db")
}

func Load() (Config, error) {
	return LoadFrom(ConfigPath())
}

func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.RelayBaseURL == "" {
		cfg.RelayBaseURL = DefaultConfig().RelayBaseURL
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 90
	}
	if cfg.UI.RefreshIntervalSeconds <= 0 {
		cfg.UI.RefreshIntervalSeconds = 30
	}
	if cfg.UI.WarnThreshold <= 0 {
		cfg.UI.WarnThreshold = 0.70
	}
	if cfg.UI.CritThreshold <= 0 {
		cfg.UI.CritThreshold = 0.90
	}

	return cfg, nil
}

// saveMu guards read-modify-write cycles on the config file.
var saveMu sync.Mutex

func Save(cfg Config) error {
	return SaveTo(ConfigPath(), cfg)
}

func SaveTo(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// SaveRelayBaseURL persists a relay URL into the config file
// (read-modify-write).
func SaveRelayBaseURL(baseURL string) error {
	return SaveRelayBaseURLTo(ConfigPath(), baseURL)
}

func SaveRelayBaseURLTo(path, baseURL string) error {
	saveMu.Lock()
	defer saveMu.Unlock()

	cfg, err := LoadFrom(path)
	if err != nil {
		cfg = DefaultConfig()
	}
	cfg.RelayBaseURL = baseURL
	return SaveTo(path, cfg)
}
