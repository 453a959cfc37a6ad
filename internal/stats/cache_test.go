package stats

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relaydeck/relaydeck/internal/core"
)

type fakeClient struct {
	mu           sync.Mutex
	resolveCalls int
	summaryCalls int
	periodCalls  map[core.Period]int

	accountID  string
	summary    core.AccountSummary
	models     map[core.Period][]core.ModelStat
	resolveErr error
	summaryErr error
	periodErr  error

	// blockPeriod, when non-nil, is received from before a period fetch
	// returns; lets tests hold a fetch in flight.
	blockPeriod chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		accountID: "acct1",
		summary: core.AccountSummary{
			ID:   "acct1",
			Name: "Dev Key",
			Plan: "pro",
			Limits: core.Limits{
				TokenQuota:     1000,
				DailyCostCap:   10,
				DailyCostUsed:  5,
				WindowLimit:    100,
				WindowRequests: 25,
			},
		},
		models: map[core.Period][]core.ModelStat{
			core.PeriodDaily: {
				{Model: "gpt-5", Requests: 3, InputTokens: 100, OutputTokens: 50, CacheCreateTokens: 10, CacheReadTokens: 40, Cost: 0.5},
				{Model: "claude-4", Requests: 2, InputTokens: 200, OutputTokens: 100, Cost: 1.0},
			},
			core.PeriodMonthly: {
				{Model: "gpt-5", Requests: 90, InputTokens: 9000, OutputTokens: 4500, Cost: 12.5},
			},
		},
		periodCalls: make(map[core.Period]int),
	}
}

func (f *fakeClient) ResolveIdentity(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	f.resolveCalls++
	f.mu.Unlock()
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	return f.accountID, nil
}

func (f *fakeClient) AccountSummary(_ context.Context, _ string) (core.AccountSummary, error) {
	f.mu.Lock()
	f.summaryCalls++
	f.mu.Unlock()
	if f.summaryErr != nil {
		return core.AccountSummary{}, f.summaryErr
	}
	return f.summary, nil
}

func (f *fakeClient) PeriodModelStats(_ context.Context, _ string, period core.Period) ([]core.ModelStat, error) {
	f.mu.Lock()
	f.periodCalls[period]++
	block := f.blockPeriod
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if f.periodErr != nil {
		return nil, f.periodErr
	}
	return f.models[period], nil
}

func TestCurrentSnapshotDefault(t *testing.T) {
	cache := New(newFakeClient())

	snap := cache.CurrentSnapshot()
	if snap.AllTokens != 0 || snap.Requests != 0 {
		t.Errorf("default snapshot has counters: %+v", snap)
	}
	if snap.FormattedCost != "$0.000000" {
		t.Errorf("FormattedCost = %q, want $0.000000", snap.FormattedCost)
	}
}

func TestRefreshPeriodAggregates(t *testing.T) {
	cache := New(newFakeClient())

	snap, err := cache.RefreshPeriod(context.Background(), "acct1", core.PeriodDaily)
	if err != nil {
		t.Fatalf("RefreshPeriod error: %v", err)
	}

	if snap.Requests != 5 {
		t.Errorf("Requests = %d, want 5", snap.Requests)
	}
	if snap.InputTokens != 300 || snap.OutputTokens != 150 {
		t.Errorf("tokens = %d/%d, want 300/150", snap.InputTokens, snap.OutputTokens)
	}
	// Cache tokens count toward the total.
	if snap.AllTokens != 500 {
		t.Errorf("AllTokens = %d, want 500", snap.AllTokens)
	}
	if snap.FormattedCost != "$1.500000" {
		t.Errorf("FormattedCost = %q, want $1.500000", snap.FormattedCost)
	}

	if got := cache.CurrentSnapshot(); got != snap {
		t.Errorf("CurrentSnapshot = %+v, want the fresh snapshot", got)
	}
	if models := cache.ModelStats(); len(models) != 2 {
		t.Errorf("ModelStats = %d rows, want 2", len(models))
	}
}

func TestRefreshPeriodReplacesWholesale(t *testing.T) {
	client := newFakeClient()
	cache := New(client)
	ctx := context.Background()

	if _, err := cache.RefreshPeriod(ctx, "acct1", core.PeriodDaily); err != nil {
		t.Fatal(err)
	}

	client.models[core.PeriodDaily] = []core.ModelStat{
		{Model: "gpt-5", Requests: 1, InputTokens: 10, Cost: 0.1},
	}
	snap, err := cache.RefreshPeriod(ctx, "acct1", core.PeriodDaily)
	if err != nil {
		t.Fatal(err)
	}

	if snap.Requests != 1 || snap.AllTokens != 10 {
		t.Errorf("snapshot merged with stale values: %+v", snap)
	}
	if models := cache.ModelStats(); len(models) != 1 {
		t.Errorf("model rows = %d, want 1 (wholesale replace)", len(models))
	}
}

func TestRefreshPeriodFailureKeepsStaleSnapshot(t *testing.T) {
	client := newFakeClient()
	cache := New(client)
	ctx := context.Background()

	before, err := cache.RefreshPeriod(ctx, "acct1", core.PeriodDaily)
	if err != nil {
		t.Fatal(err)
	}

	client.periodErr = core.ErrNetwork
	if _, err := cache.RefreshPeriod(ctx, "acct1", core.PeriodDaily); !errors.Is(err, core.ErrNetwork) {
		t.Fatalf("error = %v, want ErrNetwork", err)
	}

	if got := cache.CurrentSnapshot(); got != before {
		t.Errorf("stale snapshot dropped on failure: %+v", got)
	}
	if !errors.Is(cache.LastError(), core.ErrNetwork) {
		t.Errorf("LastError = %v, want ErrNetwork", cache.LastError())
	}

	// The next success clears the error slot.
	client.periodErr = nil
	if _, err := cache.RefreshPeriod(ctx, "acct1", core.PeriodDaily); err != nil {
		t.Fatal(err)
	}
	if cache.LastError() != nil {
		t.Errorf("LastError = %v after success, want nil", cache.LastError())
	}
}

func TestRefreshSummarySequencesPeriodRefresh(t *testing.T) {
	client := newFakeClient()
	cache := New(client)

	summary, err := cache.RefreshSummary(context.Background(), "sk-aaaaaaaaaa")
	if err != nil {
		t.Fatalf("RefreshSummary error: %v", err)
	}
	if summary.Name != "Dev Key" {
		t.Errorf("summary name = %q", summary.Name)
	}

	if got, _ := cache.Summary(); got.Plan != "pro" {
		t.Errorf("cached summary = %+v", got)
	}
	if client.periodCalls[core.PeriodDaily] != 1 {
		t.Errorf("daily fetches = %d, want 1 (triggered by summary refresh)", client.periodCalls[core.PeriodDaily])
	}
	if cache.CurrentSnapshot().AllTokens == 0 {
		t.Error("current period should be warm after summary refresh")
	}
	if id, ok := cache.AccountID(); !ok || id != "acct1" {
		t.Errorf("AccountID = %q, %v", id, ok)
	}
}

func TestRefreshSummaryResolvesOnce(t *testing.T) {
	client := newFakeClient()
	cache := New(client)
	ctx := context.Background()

	if _, err := cache.RefreshSummary(ctx, "sk-aaaaaaaaaa"); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.RefreshSummary(ctx, "sk-aaaaaaaaaa"); err != nil {
		t.Fatal(err)
	}

	if client.resolveCalls != 1 {
		t.Errorf("resolve calls = %d, want 1 (identity remembered per token)", client.resolveCalls)
	}
}

func TestResolveIdentitySuccessClearsLastError(t *testing.T) {
	client := newFakeClient()
	client.resolveErr = core.ErrNetwork
	cache := New(client)
	ctx := context.Background()

	if _, err := cache.ResolveIdentity(ctx, "sk-aaaaaaaaaa"); !errors.Is(err, core.ErrNetwork) {
		t.Fatalf("error = %v, want ErrNetwork", err)
	}
	if !errors.Is(cache.LastError(), core.ErrNetwork) {
		t.Fatalf("LastError = %v, want ErrNetwork", cache.LastError())
	}

	// A successful retry must not leave the old failure visible.
	client.resolveErr = nil
	if _, err := cache.ResolveIdentity(ctx, "sk-aaaaaaaaaa"); err != nil {
		t.Fatal(err)
	}
	if cache.LastError() != nil {
		t.Errorf("LastError = %v after successful resolve, want nil", cache.LastError())
	}

	// The memoized hit counts as a success too.
	client.periodErr = core.ErrNetwork
	_, _ = cache.RefreshPeriod(ctx, "acct1", core.PeriodDaily)
	if !errors.Is(cache.LastError(), core.ErrNetwork) {
		t.Fatalf("LastError = %v, want ErrNetwork from period fetch", cache.LastError())
	}
	if _, err := cache.ResolveIdentity(ctx, "sk-aaaaaaaaaa"); err != nil {
		t.Fatal(err)
	}
	if cache.LastError() != nil {
		t.Errorf("LastError = %v after memoized resolve, want nil", cache.LastError())
	}
}

func TestResolveTokenAccountSuccessClearsLastError(t *testing.T) {
	client := newFakeClient()
	client.summaryErr = core.ErrRemote
	cache := New(client)
	ctx := context.Background()

	if _, _, err := cache.ResolveTokenAccount(ctx, "sk-aaaaaaaaaa"); !errors.Is(err, core.ErrRemote) {
		t.Fatalf("error = %v, want ErrRemote", err)
	}
	if !errors.Is(cache.LastError(), core.ErrRemote) {
		t.Fatalf("LastError = %v, want ErrRemote", cache.LastError())
	}

	client.summaryErr = nil
	if _, _, err := cache.ResolveTokenAccount(ctx, "sk-aaaaaaaaaa"); err != nil {
		t.Fatal(err)
	}
	if cache.LastError() != nil {
		t.Errorf("LastError = %v after successful resolve, want nil", cache.LastError())
	}
}

func TestRefreshSummaryFailurePropagates(t *testing.T) {
	client := newFakeClient()
	client.summaryErr = core.ErrRemote
	cache := New(client)

	if _, err := cache.RefreshSummary(context.Background(), "sk-aaaaaaaaaa"); !errors.Is(err, core.ErrRemote) {
		t.Fatalf("error = %v, want ErrRemote", err)
	}
	if _, ok := cache.Summary(); ok {
		t.Error("failed refresh must not install a summary")
	}
	if client.periodCalls[core.PeriodDaily] != 0 {
		t.Error("period refresh must not run when the summary fetch failed")
	}
}

func TestSwitchPeriod(t *testing.T) {
	client := newFakeClient()
	cache := New(client)
	ctx := context.Background()

	if _, err := cache.RefreshSummary(ctx, "sk-aaaaaaaaaa"); err != nil {
		t.Fatal(err)
	}

	cache.SwitchPeriod(ctx, core.PeriodMonthly)
	if cache.SelectedPeriod() != core.PeriodMonthly {
		t.Error("period not switched")
	}
	if client.periodCalls[core.PeriodMonthly] != 1 {
		t.Errorf("monthly fetches = %d, want 1", client.periodCalls[core.PeriodMonthly])
	}
	if cache.CurrentSnapshot().Requests != 90 {
		t.Errorf("current snapshot = %+v, want monthly numbers", cache.CurrentSnapshot())
	}

	// Switching to the already-selected period is a no-op.
	cache.SwitchPeriod(ctx, core.PeriodMonthly)
	if client.periodCalls[core.PeriodMonthly] != 1 {
		t.Errorf("monthly fetches = %d after redundant switch, want 1", client.periodCalls[core.PeriodMonthly])
	}

	// The other period's snapshot stayed cached.
	if cache.Snapshot(core.PeriodDaily).Requests != 5 {
		t.Error("daily snapshot discarded by the switch")
	}
}

func TestSwitchPeriodNoOpWhileTargetInFlight(t *testing.T) {
	client := newFakeClient()
	cache := New(client)
	ctx := context.Background()

	if _, err := cache.RefreshSummary(ctx, "sk-aaaaaaaaaa"); err != nil {
		t.Fatal(err)
	}

	client.mu.Lock()
	client.blockPeriod = make(chan struct{})
	client.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = cache.RefreshPeriod(ctx, "acct1", core.PeriodMonthly)
	}()
	// Give the monthly fetch time to enter flight.
	time.Sleep(20 * time.Millisecond)

	cache.SwitchPeriod(ctx, core.PeriodMonthly)
	if cache.SelectedPeriod() != core.PeriodDaily {
		t.Errorf("selected = %v, want daily while the monthly fetch is in flight", cache.SelectedPeriod())
	}

	close(client.blockPeriod)
	<-done

	if client.periodCalls[core.PeriodMonthly] != 1 {
		t.Errorf("monthly fetches = %d, want 1 (switch must not start a second)", client.periodCalls[core.PeriodMonthly])
	}
}

func TestClearDiscardsInFlightResult(t *testing.T) {
	client := newFakeClient()
	client.blockPeriod = make(chan struct{})
	cache := New(client)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = cache.RefreshPeriod(context.Background(), "acct1", core.PeriodDaily)
	}()

	// Give the fetch time to enter flight, then clear underneath it.
	time.Sleep(20 * time.Millisecond)
	cache.Clear()
	close(client.blockPeriod)
	<-done

	if snap := cache.CurrentSnapshot(); snap.AllTokens != 0 {
		t.Errorf("stale in-flight result overwrote cleared cache: %+v", snap)
	}
}

func TestClear(t *testing.T) {
	client := newFakeClient()
	cache := New(client)
	ctx := context.Background()

	if _, err := cache.RefreshSummary(ctx, "sk-aaaaaaaaaa"); err != nil {
		t.Fatal(err)
	}
	cache.Clear()

	if _, ok := cache.Summary(); ok {
		t.Error("summary survived Clear")
	}
	if _, ok := cache.AccountID(); ok {
		t.Error("account id survived Clear")
	}
	if cache.CurrentSnapshot().AllTokens != 0 {
		t.Error("snapshot survived Clear")
	}
	if cache.LastError() != nil {
		t.Error("lastError survived Clear")
	}
}

func TestPercentages(t *testing.T) {
	client := newFakeClient()
	cache := New(client)
	ctx := context.Background()

	if got := cache.Percentages(); got != (core.UsagePercentages{}) {
		t.Errorf("percentages without summary = %+v, want zeros", got)
	}

	if _, err := cache.RefreshSummary(ctx, "sk-aaaaaaaaaa"); err != nil {
		t.Fatal(err)
	}

	got := cache.Percentages()
	if got.TokenUsagePct != 50 { // 500 of 1000
		t.Errorf("TokenUsagePct = %v, want 50", got.TokenUsagePct)
	}
	if got.CostUsagePct != 50 { // 5 of 10
		t.Errorf("CostUsagePct = %v, want 50", got.CostUsagePct)
	}
	if got.RequestUsagePct != 25 { // 25 of 100
		t.Errorf("RequestUsagePct = %v, want 25", got.RequestUsagePct)
	}
}

func TestResolveTokenAccount(t *testing.T) {
	client := newFakeClient()
	cache := New(client)

	id, name, err := cache.ResolveTokenAccount(context.Background(), "sk-aaaaaaaaaa")
	if err != nil {
		t.Fatalf("ResolveTokenAccount error: %v", err)
	}
	if id != "acct1" || name != "Dev Key" {
		t.Errorf("resolved = %q, %q", id, name)
	}

	// Resolution must not install a current view.
	if _, ok := cache.Summary(); ok {
		t.Error("ResolveTokenAccount must not set the cached summary")
	}
	if _, ok := cache.AccountID(); ok {
		t.Error("ResolveTokenAccount must not set the current account")
	}
}

type fakeRecorder struct {
	mu    sync.Mutex
	snaps []core.PeriodSnapshot
}

func (f *fakeRecorder) Record(_ context.Context, _ string, snap core.PeriodSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps = append(f.snaps, snap)
	return nil
}

func TestRecorderReceivesSnapshots(t *testing.T) {
	rec := &fakeRecorder{}
	cache := New(newFakeClient(), WithRecorder(rec))

	if _, err := cache.RefreshPeriod(context.Background(), "acct1", core.PeriodDaily); err != nil {
		t.Fatal(err)
	}
	if len(rec.snaps) != 1 || rec.snaps[0].AllTokens != 500 {
		t.Errorf("recorded = %+v, want one daily snapshot", rec.snaps)
	}
}

func TestSubscribeNotifiedOnRefresh(t *testing.T) {
	cache := New(newFakeClient())

	calls := 0
	unsubscribe := cache.Subscribe(func() { calls++ })
	defer unsubscribe()

	if _, err := cache.RefreshPeriod(context.Background(), "acct1", core.PeriodDaily); err != nil {
		t.Fatal(err)
	}
	if calls == 0 {
		t.Error("listener not invoked after refresh")
	}
}
