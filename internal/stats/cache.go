// Package stats caches the relay account summary and the period-keyed usage
// snapshots. A refresh replaces a snapshot wholesale; a failed refresh keeps
// the previous snapshot and parks the error in a single lastError slot.
// Concurrent refreshes of one (account, period) key collapse into a single
// flight, and a generation counter keeps superseded completions from
// overwriting newer state.
package stats

import (
	"context"
	"sync"

	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	"github.com/relaydeck/relaydeck/internal/core"
)

// Client is the remote surface the cache consumes; *relayapi.Client satisfies
// it.
type Client interface {
	ResolveIdentity(ctx context.Context, tokenValue string) (string, error)
	AccountSummary(ctx context.Context, accountID string) (core.AccountSummary, error)
	PeriodModelStats(ctx context.Context, accountID string, period core.Period) ([]core.ModelStat, error)
}

// Recorder receives successful period snapshots; *history.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, accountID string, snap core.PeriodSnapshot) error
}

type Cache struct {
	mu     sync.Mutex
	client Client
	rec    Recorder

	resolved  map[string]string // token value → account id
	accountID string
	summary   *core.AccountSummary

	snapshots  map[core.Period]core.PeriodSnapshot
	modelStats map[core.Period][]core.ModelStat
	selected   core.Period
	lastErr    error

	loading map[core.Period]bool
	gen     map[core.Period]uint64
	flight  singleflight.Group

	listeners map[int]func()
	nextSub   int
}

type Option func(*Cache)

// WithRecorder wires a snapshot recorder; recording failures are swallowed.
func WithRecorder(rec Recorder) Option {
	return func(c *Cache) { c.rec = rec }
}

func New(client Client, opts ...Option) *Cache {
	c := &Cache{
		client:     client,
		resolved:   make(map[string]string),
		snapshots:  make(map[core.Period]core.PeriodSnapshot),
		modelStats: make(map[core.Period][]core.ModelStat),
		selected:   core.PeriodDaily,
		loading:    make(map[core.Period]bool),
		gen:        make(map[core.Period]uint64),
		listeners:  make(map[int]func()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers a listener invoked synchronously after each state
// change. The returned function unregisters it.
func (c *Cache) Subscribe(fn func()) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Cache) notify() {
	c.mu.Lock()
	fns := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// ResolveIdentity maps a credential to its relay account id, remembering the
// answer for the credential's lifetime.
func (c *Cache) ResolveIdentity(ctx context.Context, tokenValue string) (string, error) {
	c.mu.Lock()
	if id, ok := c.resolved[tokenValue]; ok {
		c.lastErr = nil
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	id, err := c.client.ResolveIdentity(ctx, tokenValue)
	if err != nil {
		c.setErr(err)
		return "", err
	}

	c.mu.Lock()
	c.resolved[tokenValue] = id
	c.lastErr = nil
	c.mu.Unlock()
	return id, nil
}

// ResolveTokenAccount resolves a credential to its account id and account
// name without touching the cache's current view; the catalog uses it to name
// a token being added.
func (c *Cache) ResolveTokenAccount(ctx context.Context, tokenValue string) (string, string, error) {
	id, err := c.ResolveIdentity(ctx, tokenValue)
	if err != nil {
		return "", "", err
	}
	summary, err := c.client.AccountSummary(ctx, id)
	if err != nil {
		c.setErr(err)
		return "", "", err
	}

	c.mu.Lock()
	c.lastErr = nil
	c.mu.Unlock()
	return id, summary.Name, nil
}

// RefreshSummary resolves the credential (unless already known), replaces the
// cached account summary, and then refreshes the selected period so the
// current view is never stale relative to the summary. The period refresh is
// sequenced after the summary fetch because it needs the resolved account id.
func (c *Cache) RefreshSummary(ctx context.Context, tokenValue string) (core.AccountSummary, error) {
	accountID, err := c.ResolveIdentity(ctx, tokenValue)
	if err != nil {
		return core.AccountSummary{}, err
	}

	summary, err := c.client.AccountSummary(ctx, accountID)
	if err != nil {
		c.setErr(err)
		return core.AccountSummary{}, err
	}

	c.mu.Lock()
	c.accountID = accountID
	c.summary = &summary
	c.lastErr = nil
	period := c.selected
	c.mu.Unlock()
	c.notify()

	// Best-effort: a failed period refresh leaves the stale snapshot in
	// place and records itself in lastErr.
	_, _ = c.RefreshPeriod(ctx, accountID, period)
	return summary, nil
}

// RefreshPeriod fetches the model breakdown for one period, derives the
// aggregate snapshot, and replaces both wholesale. Concurrent callers for the
// same (account, period) share one in-flight fetch.
func (c *Cache) RefreshPeriod(ctx context.Context, accountID string, period core.Period) (core.PeriodSnapshot, error) {
	c.mu.Lock()
	startGen := c.gen[period]
	c.loading[period] = true
	c.mu.Unlock()

	key := accountID + "|" + string(period)
	result, err, _ := c.flight.Do(key, func() (any, error) {
		models, err := c.client.PeriodModelStats(ctx, accountID, period)
		if err != nil {
			return nil, err
		}
		return models, nil
	})

	c.mu.Lock()
	c.loading[period] = false
	if err != nil {
		c.lastErr = err
		c.mu.Unlock()
		c.notify()
		return core.PeriodSnapshot{}, err
	}

	models := result.([]core.ModelStat)
	snap := aggregate(period, models)

	// A Clear (or a newer completed refresh) bumped the generation while we
	// were in flight; our result is stale and must not overwrite.
	if c.gen[period] != startGen || c.accountID != "" && c.accountID != accountID {
		c.mu.Unlock()
		return snap, nil
	}
	c.gen[period]++
	c.snapshots[period] = snap
	c.modelStats[period] = models
	c.lastErr = nil
	rec := c.rec
	c.mu.Unlock()
	c.notify()

	if rec != nil {
		// History is cosmetic; a recording failure never fails the refresh.
		_ = rec.Record(ctx, accountID, snap)
	}
	return snap, nil
}

// aggregate derives the period snapshot by summing the per-model counters.
// Cache tokens count toward the total.
func aggregate(period core.Period, models []core.ModelStat) core.PeriodSnapshot {
	snap := core.PeriodSnapshot{
		Period:            period,
		Requests:          lo.SumBy(models, func(m core.ModelStat) int64 { return m.Requests }),
		InputTokens:       lo.SumBy(models, func(m core.ModelStat) int64 { return m.InputTokens }),
		OutputTokens:      lo.SumBy(models, func(m core.ModelStat) int64 { return m.OutputTokens }),
		CacheCreateTokens: lo.SumBy(models, func(m core.ModelStat) int64 { return m.CacheCreateTokens }),
		CacheReadTokens:   lo.SumBy(models, func(m core.ModelStat) int64 { return m.CacheReadTokens }),
		Cost:              lo.SumBy(models, func(m core.ModelStat) float64 { return m.Cost }),
	}
	snap.AllTokens = snap.InputTokens + snap.OutputTokens + snap.CacheCreateTokens + snap.CacheReadTokens
	snap.FormattedCost = core.FormatCost(snap.Cost)
	return snap
}

// SwitchPeriod selects a period and refreshes it. Selecting the already
// current period, or one whose fetch is in flight, is a no-op. The other
// period's snapshot stays cached.
func (c *Cache) SwitchPeriod(ctx context.Context, period core.Period) {
	c.mu.Lock()
	if c.selected == period || c.loading[period] {
		c.mu.Unlock()
		return
	}
	c.selected = period
	accountID := c.accountID
	c.mu.Unlock()
	c.notify()

	if accountID == "" {
		return
	}
	// Error already parked in lastErr; the stale snapshot stays visible.
	_, _ = c.RefreshPeriod(ctx, accountID, period)
}

// PrewarmPeriods fetches both periods concurrently; used on initial load so a
// later SwitchPeriod is instant.
func (c *Cache) PrewarmPeriods(ctx context.Context) {
	c.mu.Lock()
	accountID := c.accountID
	c.mu.Unlock()
	if accountID == "" {
		return
	}

	var wg sync.WaitGroup
	for _, period := range []core.Period{core.PeriodDaily, core.PeriodMonthly} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.RefreshPeriod(ctx, accountID, period)
		}()
	}
	wg.Wait()
}

// CurrentSnapshot returns the selected period's snapshot, or the zero-valued
// default before any fetch succeeded. It is never absent.
func (c *Cache) CurrentSnapshot() core.PeriodSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if snap, ok := c.snapshots[c.selected]; ok {
		return snap
	}
	return core.ZeroSnapshot(c.selected)
}

// Snapshot returns the cached snapshot for an explicit period.
func (c *Cache) Snapshot(period core.Period) core.PeriodSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if snap, ok := c.snapshots[period]; ok {
		return snap
	}
	return core.ZeroSnapshot(period)
}

// ModelStats returns the selected period's per-model rows.
func (c *Cache) ModelStats() []core.ModelStat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.ModelStat(nil), c.modelStats[c.selected]...)
}

// Summary returns the cached account summary, if one has been fetched.
func (c *Cache) Summary() (core.AccountSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.summary == nil {
		return core.AccountSummary{}, false
	}
	return *c.summary, true
}

// Percentages derives the bounded usage percentages for the current view.
// Without a summary every percentage is zero.
func (c *Cache) Percentages() core.UsagePercentages {
	c.mu.Lock()
	summary := c.summary
	snap, ok := c.snapshots[c.selected]
	if !ok {
		snap = core.ZeroSnapshot(c.selected)
	}
	c.mu.Unlock()

	if summary == nil {
		return core.UsagePercentages{}
	}
	return core.ComputeUsagePercentages(snap, summary.Limits)
}

func (c *Cache) SelectedPeriod() core.Period {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// LastError returns the most recent refresh failure; nil after a subsequent
// success or a Clear.
func (c *Cache) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Clear drops every cached summary, snapshot, model stat, and the remembered
// account id; used when the active token is removed. In-flight fetches that
// complete afterwards are discarded via the generation bump.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.accountID = ""
	c.summary = nil
	c.snapshots = make(map[core.Period]core.PeriodSnapshot)
	c.modelStats = make(map[core.Period][]core.ModelStat)
	c.resolved = make(map[string]string)
	c.lastErr = nil
	c.gen[core.PeriodDaily]++
	c.gen[core.PeriodMonthly]++
	c.mu.Unlock()
	c.notify()
}

func (c *Cache) setErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	c.notify()
}

// AccountID returns the account the cache currently tracks, if any.
func (c *Cache) AccountID() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accountID == "" {
		return "", false
	}
	return c.accountID, true
}
