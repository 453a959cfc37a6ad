// Package relayapi is the HTTP client for the relay service's console API.
// Every response travels in a {success, data, message} envelope; a business
// failure (success=false) and a transport failure surface as distinct error
// kinds but are both recoverable for callers.
package relayapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/relaydeck/relaydeck/internal/core"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// NewClientWithHTTP lets tests and callers with custom transports inject the
// underlying HTTP client.
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	c := NewClient(baseURL)
	if httpClient != nil {
		c.http = httpClient
	}
	return c
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// ResolveIdentity exchanges a credential for the relay account id it belongs
// to.
func (c *Client) ResolveIdentity(ctx context.Context, tokenValue string) (string, error) {
	payload, err := json.Marshal(map[string]string{"token": tokenValue})
	if err != nil {
		return "", fmt.Errorf("marshal resolve request: %w", err)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/resolve", payload, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", fmt.Errorf("%w: resolve returned no account id", core.ErrRemote)
	}
	return out.ID, nil
}

// AccountSummary fetches the account's plan, limits, and restrictions.
func (c *Client) AccountSummary(ctx context.Context, accountID string) (core.AccountSummary, error) {
	var out core.AccountSummary
	path := "/api/v1/accounts/" + url.PathEscape(accountID) + "/summary"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return core.AccountSummary{}, err
	}
	if out.ID == "" {
		out.ID = accountID
	}
	return out, nil
}

// PeriodModelStats fetches the per-model usage breakdown for one period.
func (c *Client) PeriodModelStats(ctx context.Context, accountID string, period core.Period) ([]core.ModelStat, error) {
	var out []core.ModelStat
	path := "/api/v1/accounts/" + url.PathEscape(accountID) + "/models?period=" + url.QueryEscape(string(period))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", core.ErrNetwork, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 300 {
			return fmt.Errorf("%w: HTTP %d", core.ErrRemote, resp.StatusCode)
		}
		return fmt.Errorf("%w: decoding response: %v", core.ErrRemote, err)
	}

	if !env.Success {
		msg := strings.TrimSpace(env.Message)
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return fmt.Errorf("%w: %s", core.ErrRemote, msg)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%w: decoding payload: %v", core.ErrRemote, err)
		}
	}
	return nil
}
