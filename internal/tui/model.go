// Package tui renders the relaydeck terminal dashboard: the token list on
// the left, the active account's usage for the selected period on the right.
package tui

import (
	"context"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/relaydeck/relaydeck/internal/catalog"
	"github.com/relaydeck/relaydeck/internal/config"
	"github.com/relaydeck/relaydeck/internal/core"
	"github.com/relaydeck/relaydeck/internal/stats"
)

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type refreshDoneMsg struct{ err error }

type activateDoneMsg struct {
	id  string
	err error
}

type removeDoneMsg struct {
	name string
	err  error
}

type periodSwitchedMsg struct{ period core.Period }

const (
	minLeftWidth = 26
	maxLeftWidth = 36

	opTimeout = 10 * time.Second
)

type Model struct {
	catalog *catalog.Catalog
	cache   *stats.Cache

	cursor   int
	width    int
	height   int
	showHelp bool

	refreshing  bool
	lastRefresh time.Time
	status      string

	refreshInterval time.Duration
	warnThreshold   float64
	critThreshold   float64
}

func NewModel(cat *catalog.Catalog, cache *stats.Cache, cfg config.Config) Model {
	return Model{
		catalog:         cat,
		cache:           cache,
		refreshInterval: time.Duration(cfg.UI.RefreshIntervalSeconds) * time.Second,
		warnThreshold:   cfg.UI.WarnThreshold,
		critThreshold:   cfg.UI.CritThreshold,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.refreshCmd())
}

// refreshCmd re-fetches the active token's summary; the cache chains the
// selected period's snapshot behind a successful summary fetch.
func (m Model) refreshCmd() tea.Cmd {
	active, ok := m.catalog.Active()
	if !ok {
		return nil
	}
	cache := m.cache
	cat := m.catalog
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		_, err := cache.RefreshSummary(ctx, active.Value)
		if err != nil {
			log.Printf("dashboard refresh: %v", err)
		} else {
			cat.TouchLastUsed(active.ID)
		}
		return refreshDoneMsg{err: err}
	}
}

func (m Model) activateCmd(id string) tea.Cmd {
	cat := m.catalog
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		err := cat.SetActive(ctx, id)
		return activateDoneMsg{id: id, err: err}
	}
}

func (m Model) removeCmd(token core.APIToken) tea.Cmd {
	cat := m.catalog
	cache := m.cache
	return func() tea.Msg {
		err := cat.Remove(token.ID)
		if err == nil && token.IsActive {
			// Removing the active token invalidates the cached stats; the
			// promoted token's numbers arrive with the follow-up refresh.
			cache.Clear()
		}
		return removeDoneMsg{name: token.Name, err: err}
	}
}

func (m Model) switchPeriodCmd(period core.Period) tea.Cmd {
	cache := m.cache
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		cache.SwitchPeriod(ctx, period)
		return periodSwitchedMsg{period: period}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if m.refreshInterval > 0 && !m.refreshing &&
			time.Since(m.lastRefresh) >= m.refreshInterval {
			if cmd := m.refreshCmd(); cmd != nil {
				m.refreshing = true
				m.lastRefresh = time.Now()
				return m, tea.Batch(tickCmd(), cmd)
			}
			m.lastRefresh = time.Now()
		}
		return m, tickCmd()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case refreshDoneMsg:
		m.refreshing = false
		m.lastRefresh = time.Now()
		if msg.err != nil {
			m.status = "refresh failed: " + msg.err.Error()
		} else {
			m.status = ""
		}
		return m, nil

	case activateDoneMsg:
		if msg.err != nil {
			m.status = "activate failed: " + msg.err.Error()
		} else {
			m.status = ""
		}
		return m, nil

	case removeDoneMsg:
		if msg.err != nil {
			m.status = "remove failed: " + msg.err.Error()
			return m, nil
		}
		m.status = "removed " + msg.name
		m.clampCursor()
		return m, m.refreshCmd()

	case periodSwitchedMsg:
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down", "j":
		if m.cursor < m.catalog.Count()-1 {
			m.cursor++
		}
		return m, nil

	case "enter":
		tokens := m.catalog.List()
		if m.cursor >= len(tokens) {
			return m, nil
		}
		selected := tokens[m.cursor]
		if selected.IsActive {
			return m, nil
		}
		return m, m.activateCmd(selected.ID)

	case "d":
		tokens := m.catalog.List()
		if m.cursor >= len(tokens) {
			return m, nil
		}
		return m, m.removeCmd(tokens[m.cursor])

	case "p":
		next := core.PeriodMonthly
		if m.cache.SelectedPeriod() == core.PeriodMonthly {
			next = core.PeriodDaily
		}
		return m, m.switchPeriodCmd(next)

	case "r":
		if m.refreshing {
			return m, nil
		}
		if cmd := m.refreshCmd(); cmd != nil {
			m.refreshing = true
			m.lastRefresh = time.Now()
			return m, cmd
		}
		return m, nil
	}

	return m, nil
}

func (m *Model) clampCursor() {
	if count := m.catalog.Count(); m.cursor >= count && count > 0 {
		m.cursor = count - 1
	} else if count == 0 {
		m.cursor = 0
	}
}
