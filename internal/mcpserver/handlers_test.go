package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test helpers ---

func newTestSetup(handler http.Handler) (*Handlers, func()) {
	ts := httptest.NewServer(handler)
	cfg := Config{
		APIURL:      ts.URL,
		AdminSecret: "test-secret",
	}
	client := NewCRISClient(cfg)
	h := NewHandlers(client)
	return h, ts.Close
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func scoreBody(id int64, p float64, label string) map[string]any {
	return map[string]any{
		"customerId":      id,
		"riskProbability": p,
		"riskLabel":       label,
		"features": map[string]any{
			"recency_days": 90.0,
			"frequency":    2.0,
			"monetary":     120.50,
		},
		"portfolioAverages": map[string]any{
			"recencyDays": 33.2,
			"frequency":   5.1,
			"monetary":    840.0,
		},
	}
}

// ============================================================
// Client tests
// ============================================================

func TestClient_AdminHeaderOnlyOnAdminRoutes(t *testing.T) {
	headers := make(map[string]string)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers[r.URL.Path] = r.Header.Get("X-Admin-Secret")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewCRISClient(Config{APIURL: ts.URL, AdminSecret: "s3cret"})

	_, err := client.ModelInfo(context.Background())
	require.NoError(t, err)
	_, err = client.ReloadModel(context.Background())
	require.NoError(t, err)

	assert.Empty(t, headers["/v1/model"])
	assert.Equal(t, "s3cret", headers["/v1/admin/model/reload"])
}

func TestClient_HTTPError_WithAPIMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "customer_not_found",
			"message": "No feature row exists for this customer",
		})
	}))
	defer ts.Close()

	client := NewCRISClient(Config{APIURL: ts.URL})
	_, err := client.ScoreCustomer(context.Background(), 404)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "No feature row exists")
}

func TestClient_HTTPError_NonJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream timeout"))
	}))
	defer ts.Close()

	client := NewCRISClient(Config{APIURL: ts.URL})
	_, err := client.ListCustomers(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream timeout")
}

func TestClient_ConnectionRefused(t *testing.T) {
	client := NewCRISClient(Config{APIURL: "http://127.0.0.1:1"})
	_, err := client.ListCustomers(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestClient_CancelledContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewCRISClient(Config{APIURL: ts.URL})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.ListCustomers(ctx)
	require.Error(t, err)
}

func TestClient_ScorePortfolioQuery(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"scores": [], "count": 0, "scored": 0}`))
	}))
	defer ts.Close()

	client := NewCRISClient(Config{APIURL: ts.URL})
	_, err := client.ScorePortfolio(context.Background(), []int64{1, 7, 42}, "0.7", 10)
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "ids=1%2C7%2C42")
	assert.Contains(t, gotQuery, "min_probability=0.7")
	assert.Contains(t, gotQuery, "limit=10")
}

// ============================================================
// score_customer
// ============================================================

func TestHandleScoreCustomer_Success(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/customers/7/score", r.URL.Path)
		_ = json.NewEncoder(w).Encode(scoreBody(7, 0.83, "HIGH RISK"))
	}))
	defer cleanup()

	result, err := h.HandleScoreCustomer(context.Background(), makeRequest(map[string]any{
		"customer_id": 7,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Customer 7")
	assert.Contains(t, text, "HIGH RISK")
	assert.Contains(t, text, "83.0%")
	assert.Contains(t, text, "recency_days: 90")
	assert.Contains(t, text, "Portfolio averages")
}

func TestHandleScoreCustomer_MissingID(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should reach the API")
	}))
	defer cleanup()

	result, err := h.HandleScoreCustomer(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "customer_id is required")
}

func TestHandleScoreCustomer_NotFound(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "customer_not_found",
			"message": "No feature row exists for this customer",
		})
	}))
	defer cleanup()

	result, err := h.HandleScoreCustomer(context.Background(), makeRequest(map[string]any{
		"customer_id": 999,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "No feature row exists")
}

// ============================================================
// score_portfolio
// ============================================================

func TestHandleScorePortfolio_WholeBook(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/scores", r.URL.Path)
		assert.Empty(t, r.URL.Query().Get("ids"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"scores": []map[string]any{
				scoreBody(2, 0.91, "HIGH RISK"),
				scoreBody(5, 0.42, "MEDIUM RISK"),
			},
			"count":  2,
			"scored": 10,
		})
	}))
	defer cleanup()

	result, err := h.HandleScorePortfolio(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Scored 10 customer(s), showing 2")
	assert.Contains(t, text, "1. Customer 2: HIGH RISK (91.0%)")
	assert.Contains(t, text, "2. Customer 5: MEDIUM RISK (42.0%)")
}

func TestHandleScorePortfolio_BadIDList(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should reach the API")
	}))
	defer cleanup()

	result, err := h.HandleScorePortfolio(context.Background(), makeRequest(map[string]any{
		"customer_ids": "1,banana,3",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "invalid customer id")
}

func TestHandleScorePortfolio_Empty(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"scores": [], "count": 0, "scored": 5}`))
	}))
	defer cleanup()

	result, err := h.HandleScorePortfolio(context.Background(), makeRequest(map[string]any{
		"min_probability": "0.99",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "No customers matched")
}

// ============================================================
// list_customers
// ============================================================

func TestHandleListCustomers_Success(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/customers", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"customers": []map[string]any{
				{"customerId": 1, "name": "Acme Ltd"},
				{"customerId": 2, "name": ""},
			},
			"count": 2,
		})
	}))
	defer cleanup()

	result, err := h.HandleListCustomers(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Found 2 customer(s)")
	assert.Contains(t, text, "1: Acme Ltd")
	assert.Contains(t, text, "2: (unnamed)")
}

func TestHandleListCustomers_BadFormat(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`"not an object"`))
	}))
	defer cleanup()

	result, err := h.HandleListCustomers(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// ============================================================
// get_portfolio_summary
// ============================================================

func TestHandleGetPortfolioSummary_Success(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/portfolio/summary", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"customers":       120,
			"tiers":           map[string]any{"high": 18, "medium": 40, "low": 62},
			"meanProbability": 0.31,
			"portfolioAverages": map[string]any{
				"recencyDays": 44.5,
				"frequency":   3.8,
				"monetary":    612.4,
			},
			"model": "Gradient Boosting",
		})
	}))
	defer cleanup()

	result, err := h.HandleGetPortfolioSummary(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Customers scored: 120")
	assert.Contains(t, text, "High risk: 18 | Medium risk: 40 | Low risk: 62")
	assert.Contains(t, text, "Mean churn probability: 31.0%")
	assert.Contains(t, text, "Model: Gradient Boosting")
}

// ============================================================
// get_model_info / reload_model
// ============================================================

func TestHandleGetModelInfo_Success(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/model", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"modelName": "Logistic Regression",
			"prAuc":     0.81,
		})
	}))
	defer cleanup()

	result, err := h.HandleGetModelInfo(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Logistic Regression")
}

func TestHandleReloadModel_Success(t *testing.T) {
	var gotSecret string
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotSecret = r.Header.Get("X-Admin-Secret")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":    "reloaded",
			"modelName": "Random Forest",
		})
	}))
	defer cleanup()

	result, err := h.HandleReloadModel(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, "test-secret", gotSecret)
	assert.Contains(t, resultText(t, result), "Random Forest")
}

func TestHandleReloadModel_Forbidden(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "forbidden",
			"message": "Invalid admin secret",
		})
	}))
	defer cleanup()

	result, err := h.HandleReloadModel(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Invalid admin secret")
}
