// Package vaultsdk is a Go client for the portal vault service. It wraps the
// HTTP surface in typed calls and classifies error responses so callers can
// branch on MFA-required and retryable conditions without inspecting bodies.
package vaultsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to one vault service instance.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a client. The default timeout is generous because an
// acquire call holds the request open for the whole browser-driven login.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 3 * time.Minute,
		},
	}
}

// Acquire submits credentials and blocks until the service resolves the
// acquisition or rejects it. An *APIError with MFARequired() true means the
// caller should resubmit with a one-time code.
func (c *Client) Acquire(ctx context.Context, req AcquireRequest) (*AcquireResponse, error) {
	form := url.Values{}
	form.Set("account_id", req.AccountID)
	form.Set("secret", req.Secret)
	if req.OTPCode != "" {
		form.Set("otp_code", req.OTPCode)
	}
	if req.OTPSecret != "" {
		form.Set("otp_secret", req.OTPSecret)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/v1/tokens", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out AcquireResponse
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status reports whether a valid token exists for the account.
func (c *Client) Status(ctx context.Context, accountID string) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.get(ctx, "/v1/tokens/status?account_id="+url.QueryEscape(accountID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History lists token record metadata for the account, newest first. A
// non-positive limit uses the server default.
func (c *Client) History(ctx context.Context, accountID string, limit int) (*HistoryResponse, error) {
	path := "/v1/tokens/history?account_id=" + url.QueryEscape(accountID)
	if limit > 0 {
		path += "&limit=" + strconv.Itoa(limit)
	}

	var out HistoryResponse
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Livez checks the liveness probe.
func (c *Client) Livez(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.get(ctx, "/livez", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Readyz checks the readiness probe.
func (c *Client) Readyz(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.get(ctx, "/readyz", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
