package relayapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/relaydeck/relaydeck/internal/core"
)

func TestResolveIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/auth/resolve" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.Token != "sk-aaaaaaaaaa" {
			t.Errorf("token = %q", body.Token)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]string{"id": "acct1"},
		})
	}))
	defer srv.Close()

	id, err := NewClient(srv.URL).ResolveIdentity(context.Background(), "sk-aaaaaaaaaa")
	if err != nil {
		t.Fatalf("ResolveIdentity error: %v", err)
	}
	if id != "acct1" {
		t.Errorf("id = %q, want acct1", id)
	}
}

func TestResolveIdentityRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"message": "invalid token",
		})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).ResolveIdentity(context.Background(), "sk-bad")
	if !errors.Is(err, core.ErrRemote) {
		t.Fatalf("error = %v, want ErrRemote", err)
	}
	if got := err.Error(); !contains(got, "invalid token") {
		t.Errorf("error %q should carry the server message", got)
	}
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on

	_, err := NewClient(srv.URL).ResolveIdentity(context.Background(), "sk-aaaaaaaaaa")
	if !errors.Is(err, core.ErrNetwork) {
		t.Fatalf("error = %v, want ErrNetwork", err)
	}
}

func TestAccountSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/accounts/acct1/summary" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"name": "Dev Key",
				"plan": "pro",
				"limits": map[string]any{
					"token_quota":    1000000,
					"daily_cost_cap": 25.0,
				},
				"restrictions": map[string]any{
					"model_list_enabled": true,
					"model_allow_list":   []string{"gpt-5"},
				},
			},
		})
	}))
	defer srv.Close()

	summary, err := NewClient(srv.URL).AccountSummary(context.Background(), "acct1")
	if err != nil {
		t.Fatalf("AccountSummary error: %v", err)
	}
	if summary.Name != "Dev Key" || summary.Plan != "pro" {
		t.Errorf("summary = %+v", summary)
	}
	if summary.ID != "acct1" {
		t.Errorf("ID = %q, want acct1 backfilled", summary.ID)
	}
	if summary.Limits.TokenQuota != 1000000 {
		t.Errorf("TokenQuota = %d", summary.Limits.TokenQuota)
	}
	if !summary.Restrictions.ModelListEnabled || len(summary.Restrictions.ModelAllowList) != 1 {
		t.Errorf("restrictions = %+v", summary.Restrictions)
	}
}

func TestPeriodModelStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/accounts/acct1/models" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("period"); got != "monthly" {
			t.Errorf("period = %q, want monthly", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": []map[string]any{
				{"model": "gpt-5", "requests": 10, "input_tokens": 100, "output_tokens": 50, "cost": 0.25},
			},
		})
	}))
	defer srv.Close()

	stats, err := NewClient(srv.URL).PeriodModelStats(context.Background(), "acct1", core.PeriodMonthly)
	if err != nil {
		t.Fatalf("PeriodModelStats error: %v", err)
	}
	if len(stats) != 1 || stats[0].Model != "gpt-5" || stats[0].Requests != 10 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestHTTPErrorWithoutEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).AccountSummary(context.Background(), "acct1")
	if !errors.Is(err, core.ErrRemote) {
		t.Fatalf("error = %v, want ErrRemote", err)
	}
}

func TestEnvelopeFailureWithHTTPError(t *testing.T) {
	// success=false plus a non-2xx status is still one RemoteError carrying
	// the server message; no status taxonomy is assumed.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "account disabled"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).AccountSummary(context.Background(), "acct1")
	if !errors.Is(err, core.ErrRemote) {
		t.Fatalf("error = %v, want ErrRemote", err)
	}
	if !contains(err.Error(), "account disabled") {
		t.Errorf("error %q should carry the server message", err)
	}
}

func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}
