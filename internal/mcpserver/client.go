package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the CopySentry API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	APIKey string // Optional bearer token for deployments behind an auth proxy
}

// CopysentryClient is a pure HTTP client for the CopySentry dashboard API.
type CopysentryClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewCopysentryClient creates a new client for the CopySentry API.
func NewCopysentryClient(cfg Config) *CopysentryClient {
	return &CopysentryClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *CopysentryClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// GetSummary returns the dashboard overview for one store.
func (c *CopysentryClient) GetSummary(ctx context.Context, storeID string) (json.RawMessage, error) {
	path := "/v1/stores/" + url.PathEscape(storeID) + "/dashboard"
	return c.doRequest(ctx, http.MethodGet, path, nil, nil)
}

// ListVisitors returns a store's visitor profiles sorted by risk.
func (c *CopysentryClient) ListVisitors(ctx context.Context, storeID string, limit, offset int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/v1/stores/" + url.PathEscape(storeID) + "/visitors"
	return c.doRequest(ctx, http.MethodGet, path, q, nil)
}

// GetVisitor returns one visitor profile with its recent visits.
func (c *CopysentryClient) GetVisitor(ctx context.Context, storeID, visitorID string) (json.RawMessage, error) {
	path := "/v1/stores/" + url.PathEscape(storeID) + "/visitors/" + url.PathEscape(visitorID)
	return c.doRequest(ctx, http.MethodGet, path, nil, nil)
}

// ListAlerts returns a store's alerts, optionally filtered by triage status.
func (c *CopysentryClient) ListAlerts(ctx context.Context, storeID, status string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/stores/" + url.PathEscape(storeID) + "/alerts"
	return c.doRequest(ctx, http.MethodGet, path, q, nil)
}

// UpdateAlertStatus applies a triage transition to an alert.
func (c *CopysentryClient) UpdateAlertStatus(ctx context.Context, alertID, status string) (json.RawMessage, error) {
	path := "/v1/alerts/" + url.PathEscape(alertID)
	body := map[string]string{"status": status}
	return c.doRequest(ctx, http.MethodPatch, path, nil, body)
}

// GetActivity returns a store's recent visit feed.
func (c *CopysentryClient) GetActivity(ctx context.Context, storeID string, limit int, cursor string) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	path := "/v1/stores/" + url.PathEscape(storeID) + "/activity"
	return c.doRequest(ctx, http.MethodGet, path, q, nil)
}
