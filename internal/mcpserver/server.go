package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all CRIS tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("cris", "1.0.0")
	client := NewCRISClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolScoreCustomer, h.HandleScoreCustomer)
	s.AddTool(ToolScorePortfolio, h.HandleScorePortfolio)
	s.AddTool(ToolListCustomers, h.HandleListCustomers)
	s.AddTool(ToolGetPortfolioSummary, h.HandleGetPortfolioSummary)
	s.AddTool(ToolGetModelInfo, h.HandleGetModelInfo)
	s.AddTool(ToolReloadModel, h.HandleReloadModel)

	return s
}
