// Package client provides a small HTTP client for the TOIL engine API.
// It is used by toilctl and can be embedded in other tools.
package client

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
)

// Client talks to a running TOIL engine server.
type Client struct {
	baseURL string
	http    *http.Client
}

// Summary mirrors the server's summary response.
type Summary struct {
	UserID    string  `json:"userId"`
	MonthYear string  `json:"monthYear"`
	Accrued   float64 `json:"accrued"`
	Used      float64 `json:"used"`
	Remaining float64 `json:"remaining"`
}

// Record mirrors the server's record response.
type Record struct {
	ID        string  `json:"id"`
	UserID    string  `json:"userId"`
	Date      string  `json:"date"`
	Hours     float64 `json:"hours"`
	MonthYear string  `json:"monthYear"`
	EntryID   string  `json:"entryId"`
	Status    string  `json:"status"`
}

type apiError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// New creates a client against the given base URL, e.g. "http://localhost:8080".
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Summary fetches the accrued/used/remaining summary for a user-month.
// Month may be empty; the server then uses the current month.
func (c *Client) Summary(ctx context.Context, userID, month string) (*Summary, error) {
	path := fmt.Sprintf("/api/users/%s/summary", url.PathEscape(userID))
	if month != "" {
		path += "?month=" + url.QueryEscape(month)
	}
	var out Summary
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Records fetches the user's accrual record history.
func (c *Client) Records(ctx context.Context, userID, month string) ([]Record, error) {
	path := fmt.Sprintf("/api/users/%s/records", url.PathEscape(userID))
	if month != "" {
		path += "?month=" + url.QueryEscape(month)
	}
	var out []Record
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Recalculate triggers the accrual calculation for a user-day.
func (c *Client) Recalculate(ctx context.Context, userID, date string) (*Summary, error) {
	path := fmt.Sprintf("/api/users/%s/recalculate", url.PathEscape(userID))
	var out Summary
	err := c.do(ctx, http.MethodPost, path, map[string]string{"date": date}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RecordUsage records TOIL consumption for a user.
func (c *Client) RecordUsage(ctx context.Context, userID, date string, hours float64, entryID string) (*Summary, error) {
	path := fmt.Sprintf("/api/users/%s/usage", url.PathEscape(userID))
	body := map[string]any{"date": date, "hours": hours, "entryId": entryID}
	var out Summary
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Dedup asks the server to void duplicate records. Returns the voided count.
func (c *Client) Dedup(ctx context.Context) (int, error) {
	var out map[string]int
	if err := c.do(ctx, http.MethodPost, "/api/admin/dedup", nil, &out); err != nil {
		return 0, err
	}
	return out["voided"], nil
}

// ClearCache drops all cached summaries on the server.
func (c *Client) ClearCache(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/admin/cache/clear", nil, nil)
}

// DisableCalculations flips the server-side kill-switch.
func (c *Client) DisableCalculations(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/admin/calculations/disable", nil, nil)
}

// ResumeCalculations lifts the server-side kill-switch.
func (c *Client) ResumeCalculations(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/admin/calculations/resume", nil, nil)
}

// Health checks server liveness.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			if apiErr.Details != "" {
				return fmt.Errorf("%s: %s (status %d)", apiErr.Error, apiErr.Details, resp.StatusCode)
			}
			return fmt.Errorf("%s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
