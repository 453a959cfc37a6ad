// Package history keeps an append-only record of successful period refreshes
// so the console can chart spend over time. Loss of this data is cosmetic;
// the stats cache records into it best-effort.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/relaydeck/relaydeck/internal/core"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func OpenStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("history: creating DB dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("history: opening DB: %w", err)
	}

	store := NewStore(db)
	if err := store.Init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS usage_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id TEXT NOT NULL,
			period TEXT NOT NULL,
			captured_at TEXT NOT NULL,
			requests INTEGER NOT NULL,
			input_tokens INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL,
			cache_create_tokens INTEGER NOT NULL,
			cache_read_tokens INTEGER NOT NULL,
			all_tokens INTEGER NOT NULL,
			cost_usd REAL NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_usage_snapshots_key
			ON usage_snapshots(account_id, period, captured_at);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("history: init schema: %w", err)
		}
	}
	return nil
}

// Record appends one observed snapshot for an account and period.
func (s *Store) Record(ctx context.Context, accountID string, snap core.PeriodSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_snapshots (
			account_id, period, captured_at, requests, input_tokens, output_tokens,
			cache_create_tokens, cache_read_tokens, all_tokens, cost_usd
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		accountID,
		string(snap.Period),
		s.now().UTC().Format(time.RFC3339Nano),
		snap.Requests,
		snap.InputTokens,
		snap.OutputTokens,
		snap.CacheCreateTokens,
		snap.CacheReadTokens,
		snap.AllTokens,
		snap.Cost,
	)
	if err != nil {
		return fmt.Errorf("history: insert snapshot: %w", err)
	}
	return nil
}

// CostPoint is one charted observation.
type CostPoint struct {
	CapturedAt time.Time
	Cost       float64
	AllTokens  int64
}

// RecentCosts returns observations for the account and period captured within
// the last `days` days, oldest first.
func (s *Store) RecentCosts(ctx context.Context, accountID string, period core.Period, days int) ([]CostPoint, error) {
	if days <= 0 {
		days = 30
	}
	cutoff := s.now().UTC().AddDate(0, 0, -days).Format(time.RFC3339Nano)

	rows, err := s.db.QueryContext(ctx, `
		SELECT captured_at, cost_usd, all_tokens
		FROM usage_snapshots
		WHERE account_id = ? AND period = ? AND captured_at >= ?
		ORDER BY captured_at ASC
	`, accountID, string(period), cutoff)
	if err != nil {
		return nil, fmt.Errorf("history: query snapshots: %w", err)
	}
	defer rows.Close()

	var out []CostPoint
	for rows.Next() {
		var capturedAt string
		var point CostPoint
		if err := rows.Scan(&capturedAt, &point.Cost, &point.AllTokens); err != nil {
			return nil, fmt.Errorf("history: scan snapshot: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, capturedAt)
		if err != nil {
			continue
		}
		point.CapturedAt = ts
		out = append(out, point)
	}
	return out, rows.Err()
}

// Prune drops observations older than the cutoff.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM usage_snapshots WHERE captured_at < ?`,
		olderThan.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
