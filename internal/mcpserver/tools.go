package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the CRIS MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolScoreCustomer = mcp.NewTool("score_customer",
	mcp.WithDescription(
		"Score a single customer's churn risk. "+
			"Returns the churn probability, the risk label (HIGH RISK, MEDIUM RISK, LOW RISK), "+
			"the behavioral features behind the score, and portfolio averages for context."),
	mcp.WithNumber("customer_id",
		mcp.Required(),
		mcp.Description("The customer's numeric id")),
)

var ToolScorePortfolio = mcp.NewTool("score_portfolio",
	mcp.WithDescription(
		"Score many customers at once, sorted riskiest first. "+
			"Omit customer_ids to scan the entire portfolio. "+
			"Use min_probability to focus on the customers most likely to churn."),
	mcp.WithString("customer_ids",
		mcp.Description("Comma-separated customer ids (e.g. '1,7,42'). Omit to score everyone.")),
	mcp.WithString("min_probability",
		mcp.Description("Only return customers at or above this churn probability (e.g. '0.7' for high risk only)")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of results to return (default 20)")),
)

var ToolListCustomers = mcp.NewTool("list_customers",
	mcp.WithDescription(
		"List the customers known to the feature store. "+
			"Use this to find customer ids before scoring."),
)

var ToolGetPortfolioSummary = mcp.NewTool("get_portfolio_summary",
	mcp.WithDescription(
		"Get a portfolio-wide churn risk summary: customer counts per risk tier, "+
			"the mean churn probability, and average recency, frequency, and spend."),
)

var ToolGetModelInfo = mcp.NewTool("get_model_info",
	mcp.WithDescription(
		"Get metadata for the active churn model: algorithm, validation metrics "+
			"(PR-AUC, ROC-AUC, F1), feature schema, and the risk tier thresholds."),
)

var ToolReloadModel = mcp.NewTool("reload_model",
	mcp.WithDescription(
		"Reload the churn model artifacts from disk after a retrain. "+
			"Requires the server to be configured with an admin secret."),
)
