package mcpserver

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

// Config holds the configuration for connecting to the CRIS API.
type Config struct {
	APIURL      string // Base URL, e.g. "http://localhost:8080"
	AdminSecret string // Admin secret for model management tools, optional
}

// CRISClient is a pure HTTP client for the CRIS scoring API.
type CRISClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewCRISClient creates a new client for the CRIS API.
func NewCRISClient(cfg Config) *CRISClient {
	return &CRISClient{
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
func (c *CRISClient) doRequest(ctx context.Context, method, path string, query url.Values, admin bool) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if admin && c.cfg.AdminSecret != "" {
		req.Header.Set("X-Admin-Secret", c.cfg.AdminSecret)
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

// ScoreCustomer scores a single customer by id.
func (c *CRISClient) ScoreCustomer(ctx context.Context, id int64) (json.RawMessage, error) {
	path := "/v1/customers/" + strconv.FormatInt(id, 10) + "/score"
	return c.doRequest(ctx, http.MethodGet, path, nil, false)
}

// ScorePortfolio scores a set of customers, or everyone when ids is empty.
func (c *CRISClient) ScorePortfolio(ctx context.Context, ids []int64, minProbability string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if len(ids) > 0 {
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = strconv.FormatInt(id, 10)
		}
		q.Set("ids", strings.Join(parts, ","))
	}
	if minProbability != "" {
		q.Set("min_probability", minProbability)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/scores", q, false)
}

// ListCustomers returns the customer directory.
func (c *CRISClient) ListCustomers(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/customers", nil, false)
}

// PortfolioSummary returns tier counts and averages for the whole book.
func (c *CRISClient) PortfolioSummary(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/portfolio/summary", nil, false)
}

// ModelInfo returns metadata for the active model.
func (c *CRISClient) ModelInfo(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/model", nil, false)
}

// ReloadModel asks the service to re-read model artifacts from disk.
func (c *CRISClient) ReloadModel(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/admin/model/reload", nil, true)
}
