package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *CRISClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *CRISClient) *Handlers {
	return &Handlers{client: client}
}

// HandleScoreCustomer scores one customer.
func (h *Handlers) HandleScoreCustomer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetInt("customer_id", 0)
	if id <= 0 {
		return mcp.NewToolResultError("customer_id is required and must be a positive integer"), nil
	}

	raw, err := h.client.ScoreCustomer(ctx, int64(id))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to score customer: %v", err)), nil
	}

	text, err := formatScore(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse score: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleScorePortfolio scores a batch of customers or the whole book.
func (h *Handlers) HandleScorePortfolio(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawIDs := req.GetString("customer_ids", "")
	minProbability := req.GetString("min_probability", "")
	limit := req.GetInt("limit", 20)

	var ids []int64
	if rawIDs != "" {
		for _, part := range strings.Split(rawIDs, ",") {
			var id int64
			if _, err := fmt.Sscanf(strings.TrimSpace(part), "%d", &id); err != nil || id <= 0 {
				return mcp.NewToolResultError(fmt.Sprintf("invalid customer id %q in customer_ids", part)), nil
			}
			ids = append(ids, id)
		}
	}

	raw, err := h.client.ScorePortfolio(ctx, ids, minProbability, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to score portfolio: %v", err)), nil
	}

	text, err := formatScoreList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse scores: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleListCustomers lists the customer directory.
func (h *Handlers) HandleListCustomers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.ListCustomers(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list customers: %v", err)), nil
	}

	text, err := formatCustomerList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse customers: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetPortfolioSummary returns portfolio-wide risk statistics.
func (h *Handlers) HandleGetPortfolioSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.PortfolioSummary(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get portfolio summary: %v", err)), nil
	}

	text, err := formatSummary(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse summary: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetModelInfo returns active model metadata.
func (h *Handlers) HandleGetModelInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.ModelInfo(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get model info: %v", err)), nil
	}

	return mcp.NewToolResultText(formatJSON(raw)), nil
}

// HandleReloadModel swaps in freshly trained artifacts.
func (h *Handlers) HandleReloadModel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.ReloadModel(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Reload failed: %v", err)), nil
	}

	var resp map[string]any
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse reload response: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Model reloaded successfully.\nActive model: %s",
		getString(resp, "modelName"))), nil
}

// --- Formatting helpers ---

type scoreInfo struct {
	CustomerID  int64
	Probability float64
	Label       string
	Features    map[string]any
}

func parseScore(m map[string]any) scoreInfo {
	s := scoreInfo{
		Label: getString(m, "riskLabel", "risk_label"),
	}
	if v, ok := getFloat(m, "customerId", "customer_id"); ok {
		s.CustomerID = int64(v)
	}
	if v, ok := getFloat(m, "riskProbability", "risk_probability"); ok {
		s.Probability = v
	}
	if f, ok := m["features"].(map[string]any); ok {
		s.Features = f
	}
	return s
}

func formatScore(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}
	s := parseScore(m)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Customer %d: %s (churn probability %.1f%%)\n", s.CustomerID, s.Label, s.Probability*100)

	if len(s.Features) > 0 {
		sb.WriteString("\nKey behavior:\n")
		for _, key := range []string{"recency_days", "frequency", "monetary", "avg_days_between_orders"} {
			if v, ok := getFloat(s.Features, key); ok {
				fmt.Fprintf(&sb, "  %s: %g\n", key, v)
			}
		}
	}
	if avg, ok := m["portfolioAverages"].(map[string]any); ok {
		sb.WriteString("\nPortfolio averages:\n")
		for _, key := range []string{"recencyDays", "frequency", "monetary"} {
			if v, ok := getFloat(avg, key); ok {
				fmt.Fprintf(&sb, "  %s: %.1f\n", key, v)
			}
		}
	}
	return sb.String(), nil
}

func formatScoreList(raw json.RawMessage) (string, error) {
	var resp struct {
		Scores []map[string]any `json:"scores"`
		Count  int              `json:"count"`
		Scored int              `json:"scored"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if len(resp.Scores) == 0 {
		return "No customers matched the filters.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Scored %d customer(s), showing %d (riskiest first):\n\n", resp.Scored, resp.Count)
	for i, m := range resp.Scores {
		s := parseScore(m)
		fmt.Fprintf(&sb, "%d. Customer %d: %s (%.1f%%)\n", i+1, s.CustomerID, s.Label, s.Probability*100)
	}
	return sb.String(), nil
}

func formatCustomerList(raw json.RawMessage) (string, error) {
	var resp struct {
		Customers []map[string]any `json:"customers"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Customers == nil {
		return "", fmt.Errorf("unexpected customers response format")
	}
	if len(resp.Customers) == 0 {
		return "No customers in the feature store.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d customer(s):\n\n", len(resp.Customers))
	for _, c := range resp.Customers {
		id, _ := getFloat(c, "customerId", "id")
		name := getString(c, "name")
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(&sb, "  %d: %s\n", int64(id), name)
	}
	return sb.String(), nil
}

func formatSummary(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("Portfolio churn risk summary:\n")
	if v, ok := getFloat(m, "customers"); ok {
		fmt.Fprintf(&sb, "  Customers scored: %.0f\n", v)
	}
	if tiers, ok := m["tiers"].(map[string]any); ok {
		high, _ := getFloat(tiers, "high")
		medium, _ := getFloat(tiers, "medium")
		low, _ := getFloat(tiers, "low")
		fmt.Fprintf(&sb, "  High risk: %.0f | Medium risk: %.0f | Low risk: %.0f\n", high, medium, low)
	}
	if v, ok := getFloat(m, "meanProbability"); ok {
		fmt.Fprintf(&sb, "  Mean churn probability: %.1f%%\n", v*100)
	}
	if avg, ok := m["portfolioAverages"].(map[string]any); ok {
		if v, ok := getFloat(avg, "recencyDays"); ok {
			fmt.Fprintf(&sb, "  Avg days since last order: %.1f\n", v)
		}
		if v, ok := getFloat(avg, "monetary"); ok {
			fmt.Fprintf(&sb, "  Avg customer spend: %.2f\n", v)
		}
	}
	if v := getString(m, "model"); v != "" {
		fmt.Fprintf(&sb, "  Model: %s\n", v)
	}
	return sb.String(), nil
}

func formatJSON(raw json.RawMessage) string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return string(raw)
	}
	return pretty.String()
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}

// getFloat extracts a float64 value from a map, trying multiple key names.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}
